package streak

import (
	"math"
	"time"
)

// Unit decides what one streak increment means. UnitPerTask bumps the
// streak on every task check-in; UnitPerDay bumps it only on the first
// check-in of a calendar day. Per-task matches the product's observed
// behavior and is the default.
type Unit string

const (
	UnitPerTask Unit = "per_task"
	UnitPerDay  Unit = "per_day"
)

func ParseUnit(s string) Unit {
	if s == string(UnitPerDay) {
		return UnitPerDay
	}
	return UnitPerTask
}

// State is the derived-counter snapshot of an enrollment that a
// check-in advances.
type State struct {
	CurrentStreak  int
	LongestStreak  int
	TotalCheckIns  int
	CompletionRate float64
	LastCheckInAt  *time.Time
}

// Advance applies one successful check-in to the prior state. Pure:
// callers persist the result with a conditional update.
func Advance(prior State, startDate, now time.Time, unit Unit) State {
	next := prior
	next.TotalCheckIns = prior.TotalCheckIns + 1

	switch unit {
	case UnitPerDay:
		// LastCheckInAt round-trips through the database in whatever
		// location the driver decodes, so the calendar-day comparison
		// has to happen in now's reference location.
		if prior.LastCheckInAt == nil || !sameDay(prior.LastCheckInAt.In(now.Location()), now) {
			next.CurrentStreak = prior.CurrentStreak + 1
		}
	default:
		next.CurrentStreak = prior.CurrentStreak + 1
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}

	next.CompletionRate = CompletionRate(next.TotalCheckIns, startDate, now)
	next.LastCheckInAt = &now
	return next
}

// CompletionRate is check-ins per elapsed day, as a 0-100 percentage.
// Days elapsed are rounded up and floored at one.
func CompletionRate(totalCheckIns int, startDate, now time.Time) float64 {
	elapsed := now.Sub(startDate)
	days := math.Ceil(elapsed.Hours() / 24)
	if days < 1 {
		days = 1
	}

	rate := float64(totalCheckIns) / days * 100
	if rate > 100 {
		rate = 100
	}
	if rate < 0 {
		rate = 0
	}
	return rate
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Milestones is the fixed set of streak lengths that trigger a
// celebration. Detection is exact membership, so a jump over a value
// never fires it.
var Milestones = []int{7, 14, 21, 30, 50, 75, 100, 200, 365}

func IsMilestone(streak int) bool {
	for _, m := range Milestones {
		if streak == m {
			return true
		}
	}
	return false
}

// DayOutcome is the verdict for one enrollment's prior day.
type DayOutcome struct {
	Missed      bool
	UseGrace    bool
	ResetStreak bool
}

// JudgeDay decides grace-skip-or-reset for yesterday. A challenge with
// tasks counts as missed when not every task was checked in; one
// without tasks counts as missed only when nothing was logged at all.
func JudgeDay(taskCount, tasksCompleted int, allowGraceSkips bool, graceSkipsUsed, graceSkipsPerWeek int) DayOutcome {
	var missed bool
	if taskCount > 0 {
		missed = tasksCompleted < taskCount
	} else {
		missed = tasksCompleted == 0
	}

	if !missed {
		return DayOutcome{}
	}

	if allowGraceSkips && graceSkipsUsed < graceSkipsPerWeek {
		return DayOutcome{Missed: true, UseGrace: true}
	}
	return DayOutcome{Missed: true, ResetStreak: true}
}
