package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"momentumAPI/internal/metrics"
)

const (
	readNotificationRetention = 30 * 24 * time.Hour
	completedArchiveAfter     = 90 * 24 * time.Hour
)

type SweepSummary struct {
	InsightMessagesDeleted int64 `json:"insight_messages_deleted"`
	NotificationsDeleted   int64 `json:"notifications_deleted"`
	EnrollmentsArchived    int64 `json:"enrollments_archived"`
	Errors                 int   `json:"errors"`
}

// RetentionService is pure housekeeping: it deletes expired insight
// messages, prunes old read notifications, and archives long-completed
// enrollments. No counters depend on it and skipping a run is safe.
type RetentionService struct {
	db                  *pgxpool.Pool
	notificationService *NotificationService
}

func NewRetentionService(db *pgxpool.Pool, notificationService *NotificationService) *RetentionService {
	return &RetentionService{db: db, notificationService: notificationService}
}

func (s *RetentionService) Sweep(ctx context.Context, now time.Time) *SweepSummary {
	summary := &SweepSummary{}

	tag, err := s.db.Exec(ctx, `DELETE FROM insight_messages WHERE expires_at < $1`, now)
	if err != nil {
		summary.Errors++
		metrics.SweepErrors.WithLabelValues("retention_sweep").Inc()
		log.Printf("Retention: failed to delete expired insight messages: %v", err)
	} else {
		summary.InsightMessagesDeleted = tag.RowsAffected()
	}

	deleted, err := s.notificationService.DeleteOldRead(ctx, now.Add(-readNotificationRetention))
	if err != nil {
		summary.Errors++
		metrics.SweepErrors.WithLabelValues("retention_sweep").Inc()
		log.Printf("Retention: failed to delete old notifications: %v", err)
	} else {
		summary.NotificationsDeleted = deleted
	}

	tag, err = s.db.Exec(ctx, `
		UPDATE enrollments SET status = 'archived', updated_at = NOW()
		WHERE status = 'completed' AND completed_at < $1
	`, now.Add(-completedArchiveAfter))
	if err != nil {
		summary.Errors++
		metrics.SweepErrors.WithLabelValues("retention_sweep").Inc()
		log.Printf("Retention: failed to archive completed enrollments: %v", err)
	} else {
		summary.EnrollmentsArchived = tag.RowsAffected()
	}

	if summary.Errors == 0 {
		metrics.JobRuns.WithLabelValues("retention_sweep", "ok").Inc()
	} else {
		metrics.JobRuns.WithLabelValues("retention_sweep", "error").Inc()
	}

	log.Printf("Retention sweep: %d insight messages, %d notifications, %d archived, %d errors",
		summary.InsightMessagesDeleted, summary.NotificationsDeleted, summary.EnrollmentsArchived, summary.Errors)
	return summary
}

// SaveInsightMessage stores ephemeral generated copy with its expiry.
// The sweeper removes it once expired.
func (s *RetentionService) SaveInsightMessage(ctx context.Context, userID, enrollmentID string, body string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO insight_messages (user_id, enrollment_id, body, expires_at)
		VALUES ($1, $2, $3, $4)
	`, userID, enrollmentID, body, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to save insight message: %w", err)
	}
	return nil
}
