package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumAPI/internal/types/enrollment"
	"momentumAPI/services"
	"momentumAPI/tests/helpers"
)

// TestReconcileGraceThenReset misses two days in a row on a challenge
// with one grace skip per week. Day one burns the grace skip and keeps
// the streak; day two resets it.
func TestReconcileGraceThenReset(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	reconciler := services.NewReconcilerService(pool, notificationService, services.NewInsightService(""), time.UTC, 50)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, _ := helpers.CreateTestChallenge(t, pool, userID, 60, true, 1, "Practice guitar")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)
	helpers.BackdateEnrollment(t, pool, enr.ID, 5, 55)
	_, err = pool.Exec(ctx, `UPDATE enrollments SET current_streak = 4, longest_streak = 4 WHERE id = $1`, enr.ID)
	require.NoError(t, err)

	now := time.Now().UTC()

	// Day one: no check-ins yesterday, grace budget available.
	summary, err := reconciler.ReconcileDaily(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Errors)
	assert.GreaterOrEqual(t, summary.GraceSkips, 1)

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.CurrentStreak, "grace skip preserves the streak")
	assert.Equal(t, 1, reloaded.GraceSkipsUsed)
	assert.Equal(t, 1, reloaded.MissedDays)
	require.NotNil(t, reloaded.LastReconciledDate)

	// Same trigger again: the guard makes it a no-op.
	_, err = reconciler.ReconcileDaily(ctx, now)
	require.NoError(t, err)

	reloaded, err = challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.GraceSkipsUsed, "rerun must not double-penalize")
	assert.Equal(t, 1, reloaded.MissedDays)
	assert.Equal(t, 4, reloaded.CurrentStreak)

	// Day two: budget exhausted, the streak resets.
	summary, err = reconciler.ReconcileDaily(ctx, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.StreakResets, 1)

	reloaded, err = challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.CurrentStreak)
	assert.Equal(t, 4, reloaded.LongestStreak, "longest streak survives the reset")
	assert.Equal(t, 2, reloaded.MissedDays)
}

// TestReconcileCompletedDayIsClean records every task for yesterday
// and verifies reconciliation touches nothing but the watermark.
func TestReconcileCompletedDayIsClean(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	reconciler := services.NewReconcilerService(pool, notificationService, services.NewInsightService(""), time.UTC, 50)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, taskIDs := helpers.CreateTestChallenge(t, pool, userID, 60, true, 1, "Read", "Write")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)
	helpers.BackdateEnrollment(t, pool, enr.ID, 3, 57)
	_, err = pool.Exec(ctx, `UPDATE enrollments SET current_streak = 6, longest_streak = 6 WHERE id = $1`, enr.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	for _, taskID := range taskIDs {
		_, err = pool.Exec(ctx, `
			INSERT INTO check_ins (enrollment_id, user_id, challenge_id, task_id, date, logged_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, enr.ID, userID, challengeID, taskID, yesterday)
		require.NoError(t, err)
	}

	_, err = reconciler.ReconcileDaily(ctx, now)
	require.NoError(t, err)

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, reloaded.CurrentStreak)
	assert.Equal(t, 0, reloaded.MissedDays)
	assert.Equal(t, 0, reloaded.GraceSkipsUsed)
	require.NotNil(t, reloaded.LastReconciledDate)
	assert.Equal(t, yesterday.Format("2006-01-02"), reloaded.LastReconciledDate.Format("2006-01-02"))
}

// TestReconcilePromotesExpiredEnrollments ends a challenge and checks
// the completion pass flips status and rebalances the counters.
func TestReconcilePromotesExpiredEnrollments(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	reconciler := services.NewReconcilerService(pool, notificationService, services.NewInsightService(""), time.UTC, 50)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, _ := helpers.CreateTestChallenge(t, pool, userID, 30, false, 0, "Run")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)
	// end_date in the past puts the enrollment in the completion pass.
	helpers.BackdateEnrollment(t, pool, enr.ID, 31, -1)

	summary, err := reconciler.ReconcileDaily(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Completions, 1)

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, reloaded.Status)
	assert.NotNil(t, reloaded.CompletedAt)

	var activeChallenges, completedChallenges int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT active_challenges, completed_challenges FROM users WHERE id = $1
	`, userID).Scan(&activeChallenges, &completedChallenges))
	assert.Equal(t, 0, activeChallenges)
	assert.Equal(t, 1, completedChallenges)

	ch, err := challengeService.GetChallenge(ctx, challengeID)
	require.NoError(t, err)
	assert.Equal(t, 0, ch.ActiveUsers)

	// A second run finds nothing left to promote.
	summary, err = reconciler.ReconcileDaily(ctx, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, pool.QueryRow(ctx, `
		SELECT active_challenges, completed_challenges FROM users WHERE id = $1
	`, userID).Scan(&activeChallenges, &completedChallenges))
	assert.Equal(t, 1, completedChallenges, "completion is applied once")
}

// TestReconcileCompletionBacklogPaged promotes more expired
// enrollments than fit in one batch so the completion pass has to page.
func TestReconcileCompletionBacklogPaged(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	reconciler := services.NewReconcilerService(pool, notificationService, services.NewInsightService(""), time.UTC, 2)

	ctx := context.Background()
	creatorID, _ := helpers.CreateTestUser(t, pool)
	challengeID, _ := helpers.CreateTestChallenge(t, pool, creatorID, 30, false, 0, "Run")

	var enrollmentIDs []uuid.UUID
	for i := 0; i < 5; i++ {
		userID, _ := helpers.CreateTestUser(t, pool)
		enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
		require.NoError(t, err)
		helpers.BackdateEnrollment(t, pool, enr.ID, 31, -1)
		enrollmentIDs = append(enrollmentIDs, enr.ID)
	}

	summary, err := reconciler.ReconcileDaily(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Completions, 5)

	for _, id := range enrollmentIDs {
		reloaded, err := challengeService.GetEnrollment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusCompleted, reloaded.Status, "enrollment %s", id)
	}
}

// TestGraceBudgetWeeklyReset rolls an enrollment's week over and
// verifies the budget refills exactly once.
func TestGraceBudgetWeeklyReset(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	reconciler := services.NewReconcilerService(pool, notificationService, services.NewInsightService(""), time.UTC, 50)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, _ := helpers.CreateTestChallenge(t, pool, userID, 60, true, 2, "Swim")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		UPDATE enrollments
		SET week_start_date = CURRENT_DATE - 10, grace_skips_used = 2
		WHERE id = $1
	`, enr.ID)
	require.NoError(t, err)

	summary, err := reconciler.ResetGraceBudgets(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Reset, 1)

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.GraceSkipsUsed)
	assert.True(t, reloaded.WeekStartDate.After(enr.WeekStartDate.AddDate(0, 0, -11)),
		"week start advances by whole weeks")

	// The advanced week start is inside the last seven days, so a
	// rerun matches nothing.
	before := reloaded.WeekStartDate
	_, err = reconciler.ResetGraceBudgets(ctx, time.Now().UTC())
	require.NoError(t, err)

	reloaded, err = challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Format("2006-01-02"), reloaded.WeekStartDate.Format("2006-01-02"))
}
