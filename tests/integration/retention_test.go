package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentumAPI/internal/types/enrollment"
	"momentumAPI/internal/types/notification"
	"momentumAPI/services"
	"momentumAPI/tests/helpers"
)

// TestRetentionSweep seeds one of each expired record kind and checks
// the sweep removes exactly those.
func TestRetentionSweep(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	challengeService := services.NewChallengeService(pool, notificationService)
	retention := services.NewRetentionService(pool, notificationService)

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, pool)
	challengeID, _ := helpers.CreateTestChallenge(t, pool, userID, 30, false, 0, "Journal")

	enr, err := challengeService.JoinChallenge(ctx, userID, challengeID)
	require.NoError(t, err)

	// Expired and live insight messages.
	require.NoError(t, retention.SaveInsightMessage(ctx, userID.String(), enr.ID.String(), "stale copy", -time.Hour))
	require.NoError(t, retention.SaveInsightMessage(ctx, userID.String(), enr.ID.String(), "fresh copy", time.Hour))

	// An old read notification and a recent unread one.
	old := notificationService.Send(ctx, userID, notification.NotificationStreakMilestone, "old", "old", nil)
	require.NotNil(t, old)
	require.NoError(t, notificationService.MarkAsRead(ctx, old.ID, clerkID))
	_, err = pool.Exec(ctx, `UPDATE notifications SET created_at = NOW() - INTERVAL '31 days' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	recent := notificationService.Send(ctx, userID, notification.NotificationStreakMilestone, "recent", "recent", nil)
	require.NotNil(t, recent)

	// A long-finished enrollment ready for archival.
	_, err = pool.Exec(ctx, `
		UPDATE enrollments
		SET status = 'completed', completed_at = NOW() - INTERVAL '91 days'
		WHERE id = $1
	`, enr.ID)
	require.NoError(t, err)

	summary := retention.Sweep(ctx, time.Now())
	assert.Equal(t, 0, summary.Errors)
	assert.GreaterOrEqual(t, summary.InsightMessagesDeleted, int64(1))
	assert.GreaterOrEqual(t, summary.NotificationsDeleted, int64(1))
	assert.GreaterOrEqual(t, summary.EnrollmentsArchived, int64(1))

	var insightCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM insight_messages WHERE enrollment_id = $1`, enr.ID).Scan(&insightCount))
	assert.Equal(t, 1, insightCount, "only the expired message goes")

	count, err := notificationService.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the recent unread notification stays")

	reloaded, err := challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusArchived, reloaded.Status)

	// Archival is a one-way trip; a second sweep changes nothing.
	summary = retention.Sweep(ctx, time.Now())
	assert.Equal(t, 0, summary.Errors)

	reloaded, err = challengeService.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusArchived, reloaded.Status)
}
