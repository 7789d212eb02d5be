package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"momentumAPI/internal/apperrors"
	"momentumAPI/internal/metrics"
	"momentumAPI/internal/streak"
	"momentumAPI/internal/types/checkin"
	"momentumAPI/internal/types/enrollment"
	"momentumAPI/internal/types/notification"
)

type CheckInService struct {
	db                  *pgxpool.Pool
	notificationService *NotificationService
	insightService      *InsightService
	loc                 *time.Location
	unit                streak.Unit
}

func NewCheckInService(db *pgxpool.Pool, notificationService *NotificationService, insightService *InsightService, loc *time.Location, unit streak.Unit) *CheckInService {
	if loc == nil {
		loc = time.UTC
	}
	return &CheckInService{
		db:                  db,
		notificationService: notificationService,
		insightService:      insightService,
		loc:                 loc,
		unit:                unit,
	}
}

// RecordCheckIn logs one task check-in for today and advances the
// enrollment's derived counters. The unique index on
// (enrollment_id, task_id, date) decides duplicates, so two concurrent
// calls for the same task end with exactly one row and one
// ErrDuplicateCheckIn. Milestone and partner notifications run after
// the write and never roll it back.
func (s *CheckInService) RecordCheckIn(ctx context.Context, enrollmentID, taskID, actingUserID uuid.UUID, note string, photoURL *string) (*checkin.CheckIn, error) {
	enr, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enr.UserID != actingUserID {
		return nil, fmt.Errorf("enrollment %s: %w", enrollmentID, apperrors.ErrUnauthorized)
	}
	if enr.Status != enrollment.StatusActive {
		return nil, fmt.Errorf("enrollment %s has status %s: %w", enrollmentID, enr.Status, apperrors.ErrEnrollmentNotActive)
	}

	var taskExists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM challenge_tasks WHERE id = $1 AND challenge_id = $2)
	`, taskID, enr.ChallengeID).Scan(&taskExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check task: %w", err)
	}
	if !taskExists {
		return nil, fmt.Errorf("task %s in challenge %s: %w", taskID, enr.ChallengeID, apperrors.ErrTaskNotFound)
	}

	now := time.Now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	ci := &checkin.CheckIn{}
	err = s.db.QueryRow(ctx, `
		INSERT INTO check_ins (enrollment_id, user_id, challenge_id, task_id, date, logged_at, note, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (enrollment_id, task_id, date) DO NOTHING
		RETURNING id, enrollment_id, user_id, challenge_id, task_id, date, logged_at, note, photo_url, verified, is_edited
	`, enrollmentID, enr.UserID, enr.ChallengeID, taskID, today, now, note, photoURL).Scan(
		&ci.ID, &ci.EnrollmentID, &ci.UserID, &ci.ChallengeID, &ci.TaskID, &ci.Date,
		&ci.LoggedAt, &ci.Note, &ci.PhotoURL, &ci.Verified, &ci.IsEdited,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.DuplicateCheckIns.Inc()
			return nil, fmt.Errorf("enrollment %s task %s date %s: %w", enrollmentID, taskID, today.Format("2006-01-02"), apperrors.ErrDuplicateCheckIn)
		}
		return nil, fmt.Errorf("failed to insert check-in: %w", err)
	}

	newStreak, err := s.advanceCounters(ctx, enr, now)
	if err != nil {
		// The check-in row exists; a failed counter update is surfaced
		// so the caller can retry.
		return nil, fmt.Errorf("check-in recorded but counters not updated: %w", err)
	}

	metrics.CheckInsRecorded.Inc()

	if streak.IsMilestone(newStreak) {
		s.notifyMilestone(ctx, enr, newStreak)
	}
	s.notifyPartners(ctx, enr)

	return ci, nil
}

// advanceCounters runs the pure streak calculator against a fresh read
// of the enrollment and persists the result with a compare-and-swap on
// total_check_ins. Concurrent check-ins on the same enrollment retry
// instead of clobbering each other.
func (s *CheckInService) advanceCounters(ctx context.Context, enr *enrollment.Enrollment, now time.Time) (int, error) {
	const maxAttempts = 5

	for attempt := 0; attempt < maxAttempts; attempt++ {
		prior := streak.State{
			CurrentStreak:  enr.CurrentStreak,
			LongestStreak:  enr.LongestStreak,
			TotalCheckIns:  enr.TotalCheckIns,
			CompletionRate: enr.CompletionRate,
			LastCheckInAt:  enr.LastCheckInAt,
		}
		next := streak.Advance(prior, enr.StartDate, now, s.unit)

		tag, err := s.db.Exec(ctx, `
			UPDATE enrollments
			SET current_streak = $2, longest_streak = $3, total_check_ins = $4,
			    completion_rate = $5, last_check_in_at = $6, updated_at = NOW()
			WHERE id = $1 AND total_check_ins = $7
		`, enr.ID, next.CurrentStreak, next.LongestStreak, next.TotalCheckIns,
			next.CompletionRate, now, prior.TotalCheckIns)
		if err != nil {
			return 0, fmt.Errorf("failed to update counters: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return next.CurrentStreak, nil
		}

		// Lost the race; reload and recompute.
		fresh, err := s.loadEnrollment(ctx, enr.ID)
		if err != nil {
			return 0, err
		}
		enr = fresh
	}

	return 0, fmt.Errorf("enrollment %s: counter update contended %d times", enr.ID, maxAttempts)
}

func (s *CheckInService) notifyMilestone(ctx context.Context, enr *enrollment.Enrollment, newStreak int) {
	metrics.MilestonesHit.Inc()

	body := fmt.Sprintf("You hit a %d-day streak. Keep it rolling!", newStreak)
	if s.insightService != nil {
		stats := InsightStats{
			CurrentStreak:  newStreak,
			LongestStreak:  enr.LongestStreak,
			TotalCheckIns:  enr.TotalCheckIns + 1,
			MissedDays:     enr.MissedDays,
			CompletionRate: enr.CompletionRate,
		}
		if text, err := s.insightService.Describe(ctx, stats); err == nil {
			body = text
		} else {
			log.Printf("Insight service unavailable, using default milestone copy: %v", err)
		}
	}

	s.notificationService.Send(ctx, enr.UserID, notification.NotificationStreakMilestone,
		fmt.Sprintf("%d-day streak!", newStreak), body,
		map[string]any{"enrollment_id": enr.ID.String(), "streak": newStreak})
}

func (s *CheckInService) notifyPartners(ctx context.Context, enr *enrollment.Enrollment) {
	for _, partnerID := range enr.PartnerIDs {
		s.notificationService.Send(ctx, partnerID, notification.NotificationPartnerCheckIn,
			"Your partner checked in",
			"Your challenge partner completed a task today.",
			map[string]any{"enrollment_id": enr.ID.String()})
	}
}

// EditCheckInNote updates a check-in's note inside the fixed
// post-creation window. The window check is repeated in SQL so a
// request that slips past a stale read still cannot edit late.
func (s *CheckInService) EditCheckInNote(ctx context.Context, checkInID, actingUserID uuid.UUID, note string) (*checkin.CheckIn, error) {
	prior := &checkin.CheckIn{ID: checkInID}
	err := s.db.QueryRow(ctx, `SELECT user_id, logged_at FROM check_ins WHERE id = $1`, checkInID).Scan(&prior.UserID, &prior.LoggedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("check-in %s: %w", checkInID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load check-in: %w", err)
	}
	if prior.UserID != actingUserID {
		return nil, fmt.Errorf("check-in %s: %w", checkInID, apperrors.ErrUnauthorized)
	}

	now := time.Now()
	if !prior.CanEditNote(now) {
		return nil, fmt.Errorf("check-in %s logged at %s: %w", checkInID, prior.LoggedAt.Format(time.RFC3339), apperrors.ErrEditWindowExpired)
	}

	ci := &checkin.CheckIn{}
	err = s.db.QueryRow(ctx, `
		UPDATE check_ins
		SET note = $2, is_edited = TRUE
		WHERE id = $1 AND logged_at > $3
		RETURNING id, enrollment_id, user_id, challenge_id, task_id, date, logged_at, note, photo_url, verified, is_edited
	`, checkInID, note, now.Add(-checkin.NoteEditWindow)).Scan(
		&ci.ID, &ci.EnrollmentID, &ci.UserID, &ci.ChallengeID, &ci.TaskID, &ci.Date,
		&ci.LoggedAt, &ci.Note, &ci.PhotoURL, &ci.Verified, &ci.IsEdited,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("check-in %s: %w", checkInID, apperrors.ErrEditWindowExpired)
		}
		return nil, fmt.Errorf("failed to edit note: %w", err)
	}
	return ci, nil
}

func (s *CheckInService) loadEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*enrollment.Enrollment, error) {
	enr := &enrollment.Enrollment{}
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, challenge_id, partner_ids, status, start_date, end_date,
		       current_streak, longest_streak, total_check_ins, missed_days, grace_skips_used,
		       week_start_date, completion_rate, last_check_in_at, last_reconciled_date,
		       completed_at, created_at, updated_at
		FROM enrollments WHERE id = $1
	`, enrollmentID).Scan(
		&enr.ID, &enr.UserID, &enr.ChallengeID, &enr.PartnerIDs, &enr.Status, &enr.StartDate, &enr.EndDate,
		&enr.CurrentStreak, &enr.LongestStreak, &enr.TotalCheckIns, &enr.MissedDays, &enr.GraceSkipsUsed,
		&enr.WeekStartDate, &enr.CompletionRate, &enr.LastCheckInAt, &enr.LastReconciledDate,
		&enr.CompletedAt, &enr.CreatedAt, &enr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("enrollment %s: %w", enrollmentID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enr, nil
}
