package streak

import (
	"testing"
	"time"
)

func TestAdvanceConsecutiveCheckIns(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	state := State{}
	for day := 0; day < 10; day++ {
		now := start.Add(time.Duration(day)*24*time.Hour + 8*time.Hour)
		state = Advance(state, start, now, UnitPerTask)
	}

	if state.CurrentStreak != 10 {
		t.Errorf("expected current streak 10, got %d", state.CurrentStreak)
	}
	if state.LongestStreak != 10 {
		t.Errorf("expected longest streak 10, got %d", state.LongestStreak)
	}
	if state.TotalCheckIns != 10 {
		t.Errorf("expected 10 total check-ins, got %d", state.TotalCheckIns)
	}
}

func TestAdvanceLongestSurvivesReset(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(8 * time.Hour)

	state := State{CurrentStreak: 0, LongestStreak: 9, TotalCheckIns: 12}
	state = Advance(state, start, now, UnitPerTask)

	if state.CurrentStreak != 1 {
		t.Errorf("expected current streak 1 after reset, got %d", state.CurrentStreak)
	}
	if state.LongestStreak != 9 {
		t.Errorf("expected longest streak to stay 9, got %d", state.LongestStreak)
	}
}

func TestAdvancePerDayUnit(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	morning := start.Add(8 * time.Hour)
	evening := start.Add(20 * time.Hour)

	state := State{}
	state = Advance(state, start, morning, UnitPerDay)
	state = Advance(state, start, evening, UnitPerDay)

	if state.CurrentStreak != 1 {
		t.Errorf("per-day unit: expected streak 1 after two same-day check-ins, got %d", state.CurrentStreak)
	}
	if state.TotalCheckIns != 2 {
		t.Errorf("expected 2 total check-ins, got %d", state.TotalCheckIns)
	}

	nextDay := start.Add(32 * time.Hour)
	state = Advance(state, start, nextDay, UnitPerDay)
	if state.CurrentStreak != 2 {
		t.Errorf("per-day unit: expected streak 2 on the next day, got %d", state.CurrentStreak)
	}
}

func TestAdvancePerDayUnitAcrossTimezones(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, loc)

	// A 10pm local check-in comes back from the database as 3am UTC
	// the next day. The next local evening is still the next day.
	lastUTC := time.Date(2026, 3, 1, 22, 0, 0, 0, loc).UTC()
	state := State{CurrentStreak: 1, LongestStreak: 1, TotalCheckIns: 1, LastCheckInAt: &lastUTC}

	state = Advance(state, start, time.Date(2026, 3, 2, 20, 0, 0, 0, loc), UnitPerDay)
	if state.CurrentStreak != 2 {
		t.Errorf("cross-timezone next day: expected streak 2, got %d", state.CurrentStreak)
	}

	// A second check-in the same local evening must not bump again.
	state = Advance(state, start, time.Date(2026, 3, 2, 22, 0, 0, 0, loc), UnitPerDay)
	if state.CurrentStreak != 2 {
		t.Errorf("same local day: expected streak to stay 2, got %d", state.CurrentStreak)
	}
}

func TestAdvancePerTaskUnitCountsEveryTask(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(8 * time.Hour)

	state := State{}
	for i := 0; i < 3; i++ {
		state = Advance(state, start, now.Add(time.Duration(i)*time.Minute), UnitPerTask)
	}

	if state.CurrentStreak != 3 {
		t.Errorf("per-task unit: expected streak 3 after three tasks in one day, got %d", state.CurrentStreak)
	}
}

func TestCompletionRateBounds(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		total int
		now   time.Time
	}{
		{"same instant as start", 1, start},
		{"many check-ins day one", 50, start.Add(2 * time.Hour)},
		{"sparse check-ins", 3, start.Add(30 * 24 * time.Hour)},
		{"zero check-ins", 0, start.Add(5 * 24 * time.Hour)},
	}

	for _, tc := range cases {
		rate := CompletionRate(tc.total, start, tc.now)
		if rate < 0 || rate > 100 {
			t.Errorf("%s: rate %f out of bounds", tc.name, rate)
		}
	}
}

func TestCompletionRateFirstDay(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rate := CompletionRate(1, start, start.Add(3*time.Hour))
	if rate != 100 {
		t.Errorf("one check-in on day one should be 100%%, got %f", rate)
	}
}

func TestIsMilestoneExactMembership(t *testing.T) {
	events := 0
	for _, s := range []int{5, 6, 7, 8} {
		if IsMilestone(s) {
			events++
			if s != 7 {
				t.Errorf("unexpected milestone at streak %d", s)
			}
		}
	}
	if events != 1 {
		t.Errorf("expected exactly one milestone event in 5..8, got %d", events)
	}
}

func TestIsMilestoneFullSet(t *testing.T) {
	for _, m := range Milestones {
		if !IsMilestone(m) {
			t.Errorf("milestone %d not detected", m)
		}
	}
	if IsMilestone(0) || IsMilestone(366) {
		t.Error("non-milestone values detected as milestones")
	}
}

func TestJudgeDayGraceThenReset(t *testing.T) {
	// graceSkipsPerWeek=1: first miss burns the grace skip, second
	// miss resets the streak.
	first := JudgeDay(1, 0, true, 0, 1)
	if !first.Missed || !first.UseGrace || first.ResetStreak {
		t.Errorf("first miss: expected grace skip, got %+v", first)
	}

	second := JudgeDay(1, 0, true, 1, 1)
	if !second.Missed || second.UseGrace || !second.ResetStreak {
		t.Errorf("second miss: expected streak reset, got %+v", second)
	}
}

func TestJudgeDayCompletedDay(t *testing.T) {
	outcome := JudgeDay(3, 3, true, 0, 2)
	if outcome.Missed || outcome.UseGrace || outcome.ResetStreak {
		t.Errorf("fully completed day should be a no-op, got %+v", outcome)
	}
}

func TestJudgeDayPartialCompletionIsMissed(t *testing.T) {
	outcome := JudgeDay(3, 2, false, 0, 0)
	if !outcome.Missed || !outcome.ResetStreak {
		t.Errorf("2 of 3 tasks without grace should reset, got %+v", outcome)
	}
}

func TestJudgeDayNoTasks(t *testing.T) {
	if out := JudgeDay(0, 1, false, 0, 0); out.Missed {
		t.Errorf("task-less challenge with a check-in should pass, got %+v", out)
	}
	if out := JudgeDay(0, 0, false, 0, 0); !out.Missed {
		t.Errorf("task-less challenge with no check-ins should miss, got %+v", out)
	}
}

func TestJudgeDayGraceDisabled(t *testing.T) {
	outcome := JudgeDay(1, 0, false, 0, 5)
	if !outcome.ResetStreak || outcome.UseGrace {
		t.Errorf("grace disabled: expected reset, got %+v", outcome)
	}
}

// Scenario from the product: single task, no grace skips. Check in on
// day 1, skip day 2, check in on day 3.
func TestStreakBreakAndRecoverScenario(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	state := Advance(State{}, start, start.Add(9*time.Hour), UnitPerTask)
	if state.CurrentStreak != 1 {
		t.Fatalf("day 1: expected streak 1, got %d", state.CurrentStreak)
	}

	// Day-2 reconciliation judges the missed day and resets.
	outcome := JudgeDay(1, 0, false, 0, 0)
	if !outcome.ResetStreak {
		t.Fatalf("day 2 reconciliation should reset, got %+v", outcome)
	}
	state.CurrentStreak = 0

	state = Advance(state, start, start.Add(2*24*time.Hour+9*time.Hour), UnitPerTask)
	if state.CurrentStreak != 1 {
		t.Errorf("day 3: expected streak 1 after recovery, got %d", state.CurrentStreak)
	}
	if state.LongestStreak != 1 {
		t.Errorf("day 3: expected longest streak 1, got %d", state.LongestStreak)
	}
}

func TestParseUnit(t *testing.T) {
	if ParseUnit("per_day") != UnitPerDay {
		t.Error("per_day not parsed")
	}
	if ParseUnit("per_task") != UnitPerTask {
		t.Error("per_task not parsed")
	}
	if ParseUnit("") != UnitPerTask {
		t.Error("default unit should be per_task")
	}
}
