package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumAPI/internal/apperrors"
	"momentumAPI/internal/streak"
	"momentumAPI/services"
	"momentumAPI/tests/helpers"
)

// TestCheckInFlow walks the happy path: join a challenge, check in two
// tasks, get rejected on the duplicate, edit the note, then leave.
func TestCheckInFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	checkInService := services.NewCheckInService(pool, notificationService, services.NewInsightService(""), time.UTC, streak.UnitPerTask)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, taskIDs := helpers.CreateTestChallenge(t, pool, userID, 30, true, 1, "Read 20 pages", "Run 5k")

	// Step 1: Join
	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)
	assert.Equal(t, 0, enr.CurrentStreak)
	assert.Equal(t, 0, enr.TotalCheckIns)

	// A second join while active must lose to the partial unique index.
	_, err = challengeService.JoinChallenge(ctx, userID, challengeID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyEnrolled)

	// Step 2: Check in both tasks
	ci, err := checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[0], userID, "first one", nil)
	require.NoError(t, err)
	assert.Equal(t, "first one", ci.Note)
	assert.False(t, ci.IsEdited)

	_, err = checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[1], userID, "", nil)
	require.NoError(t, err)

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.CurrentStreak)
	assert.Equal(t, 2, reloaded.LongestStreak)
	assert.Equal(t, 2, reloaded.TotalCheckIns)
	assert.NotNil(t, reloaded.LastCheckInAt)

	// Step 3: Same task, same day is a duplicate
	_, err = checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[0], userID, "again", nil)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateCheckIn)

	reloaded, err = challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.TotalCheckIns, "duplicate must not advance counters")

	// Step 4: Unknown task and wrong user are rejected
	_, err = checkInService.RecordCheckIn(ctx, enr.ID, uuid.New(), userID, "", nil)
	assert.ErrorIs(t, err, apperrors.ErrTaskNotFound)

	strangerID, _ := helpers.CreateTestUser(t, pool)
	_, err = checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[0], strangerID, "", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Step 5: Edit the note inside the window
	edited, err := checkInService.EditCheckInNote(ctx, ci.ID, userID, "better note")
	require.NoError(t, err)
	assert.Equal(t, "better note", edited.Note)
	assert.True(t, edited.IsEdited)

	_, err = checkInService.EditCheckInNote(ctx, ci.ID, strangerID, "hijack")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Step 6: Leave, then everything on the enrollment is closed
	err = challengeService.LeaveChallenge(ctx, enr.ID, userID)
	require.NoError(t, err)

	err = challengeService.LeaveChallenge(ctx, enr.ID, userID)
	assert.ErrorIs(t, err, apperrors.ErrEnrollmentNotActive)

	_, err = checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[1], userID, "", nil)
	assert.ErrorIs(t, err, apperrors.ErrEnrollmentNotActive)
}

// TestCheckInNoteEditWindowExpired backdates logged_at past the edit
// window and verifies the edit is refused.
func TestCheckInNoteEditWindowExpired(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	checkInService := services.NewCheckInService(pool, notificationService, services.NewInsightService(""), time.UTC, streak.UnitPerTask)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, taskIDs := helpers.CreateTestChallenge(t, pool, userID, 30, false, 0, "Meditate")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)

	ci, err := checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[0], userID, "on time", nil)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE check_ins SET logged_at = NOW() - INTERVAL '16 minutes' WHERE id = $1`, ci.ID)
	require.NoError(t, err)

	_, err = checkInService.EditCheckInNote(ctx, ci.ID, userID, "too late")
	assert.ErrorIs(t, err, apperrors.ErrEditWindowExpired)
}

// TestConcurrentDuplicateCheckIns hammers the same (enrollment, task,
// day) from many goroutines. Exactly one insert may win.
func TestConcurrentDuplicateCheckIns(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	checkInService := services.NewCheckInService(pool, notificationService, services.NewInsightService(""), time.UTC, streak.UnitPerTask)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, taskIDs := helpers.CreateTestChallenge(t, pool, userID, 30, false, 0, "Write")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)

	const workers = 10
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := checkInService.RecordCheckIn(ctx, enr.ID, taskIDs[0], userID, "", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, duplicates int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, apperrors.ErrDuplicateCheckIn):
			duplicates++
		}
	}
	assert.Equal(t, 1, wins, "exactly one goroutine records the check-in")
	assert.Equal(t, workers-1, duplicates)

	var rowCount int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM check_ins WHERE enrollment_id = $1`, enr.ID).Scan(&rowCount)
	require.NoError(t, err)
	assert.Equal(t, 1, rowCount)

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TotalCheckIns)
	assert.Equal(t, 1, reloaded.CurrentStreak)
}

// TestLifecycleCounters checks the plus-minus-one bookkeeping on users
// and challenges across join and leave.
func TestLifecycleCounters(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)

	ctx := context.Background()
	userID, _ := helpers.CreateTestUser(t, pool)
	challengeID, _ := helpers.CreateTestChallenge(t, pool, userID, 30, false, 0, "Stretch")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)

	ch, err := challengeService.GetChallenge(ctx, challengeID)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.TotalUsers)
	assert.Equal(t, 1, ch.ActiveUsers)

	var activeChallenges int
	require.NoError(t, pool.QueryRow(ctx, `SELECT active_challenges FROM users WHERE id = $1`, userID).Scan(&activeChallenges))
	assert.Equal(t, 1, activeChallenges)

	require.NoError(t, challengeService.ExitChallenge(ctx, enr.ID, userID))

	ch, err = challengeService.GetChallenge(ctx, challengeID)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.TotalUsers, "total is forever")
	assert.Equal(t, 0, ch.ActiveUsers)

	require.NoError(t, pool.QueryRow(ctx, `SELECT active_challenges FROM users WHERE id = $1`, userID).Scan(&activeChallenges))
	assert.Equal(t, 0, activeChallenges)

	// Rejoining after exit opens a fresh enrollment.
	enr2, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)
	assert.NotEqual(t, enr.ID, enr2.ID)
	assert.Equal(t, 0, enr2.CurrentStreak)
}
