package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"momentumAPI/internal/apperrors"
	"momentumAPI/internal/types/challenge"
	"momentumAPI/internal/types/enrollment"
)

type ChallengeService struct {
	db                  *pgxpool.Pool
	notificationService *NotificationService
}

func NewChallengeService(db *pgxpool.Pool, notificationService *NotificationService) *ChallengeService {
	return &ChallengeService{db: db, notificationService: notificationService}
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, creatorID uuid.UUID, req *challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ch := &challenge.Challenge{}
	err = tx.QueryRow(ctx, `
		INSERT INTO challenges (creator_id, name, description, duration_days, allow_grace_skips, grace_skips_per_week)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, creator_id, name, description, duration_days, frequency,
		          allow_grace_skips, grace_skips_per_week, total_users, active_users, created_at, updated_at
	`, creatorID, req.Name, req.Description, req.DurationDays, req.AllowGraceSkips, req.GraceSkipsPerWeek).Scan(
		&ch.ID, &ch.CreatorID, &ch.Name, &ch.Description, &ch.DurationDays, &ch.Frequency,
		&ch.AllowGraceSkips, &ch.GraceSkipsPerWeek, &ch.TotalUsers, &ch.ActiveUsers, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	for i, title := range req.Tasks {
		task := challenge.Task{}
		err = tx.QueryRow(ctx, `
			INSERT INTO challenge_tasks (challenge_id, title, sort_order)
			VALUES ($1, $2, $3)
			RETURNING id, challenge_id, title, sort_order
		`, ch.ID, title, i).Scan(&task.ID, &task.ChallengeID, &task.Title, &task.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
		ch.Tasks = append(ch.Tasks, task)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit challenge: %w", err)
	}
	return ch, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	ch := &challenge.Challenge{}
	err := s.db.QueryRow(ctx, `
		SELECT id, creator_id, name, description, duration_days, frequency,
		       allow_grace_skips, grace_skips_per_week, total_users, active_users, created_at, updated_at
		FROM challenges WHERE id = $1
	`, challengeID).Scan(
		&ch.ID, &ch.CreatorID, &ch.Name, &ch.Description, &ch.DurationDays, &ch.Frequency,
		&ch.AllowGraceSkips, &ch.GraceSkipsPerWeek, &ch.TotalUsers, &ch.ActiveUsers, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %s: %w", challengeID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	tasks, err := s.GetChallengeTasks(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	ch.Tasks = tasks
	return ch, nil
}

func (s *ChallengeService) GetChallengeTasks(ctx context.Context, challengeID uuid.UUID) ([]challenge.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, challenge_id, title, sort_order
		FROM challenge_tasks WHERE challenge_id = $1
		ORDER BY sort_order
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks: %w", err)
	}
	defer rows.Close()

	var tasks []challenge.Task
	for rows.Next() {
		var t challenge.Task
		if err := rows.Scan(&t.ID, &t.ChallengeID, &t.Title, &t.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// JoinChallenge opens a new active enrollment. The partial unique
// index on (user_id, challenge_id) WHERE status = 'active' is what
// keeps this to one live enrollment per pair, so a concurrent double
// join loses cleanly with ErrAlreadyEnrolled.
func (s *ChallengeService) JoinChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*enrollment.Enrollment, error) {
	var durationDays int
	err := s.db.QueryRow(ctx, `SELECT duration_days FROM challenges WHERE id = $1`, challengeID).Scan(&durationDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %s: %w", challengeID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endDate := startDate.AddDate(0, 0, durationDays)

	enr := &enrollment.Enrollment{}
	err = tx.QueryRow(ctx, `
		INSERT INTO enrollments (user_id, challenge_id, status, start_date, end_date, week_start_date)
		VALUES ($1, $2, 'active', $3, $4, $3)
		RETURNING id, user_id, challenge_id, partner_ids, status, start_date, end_date,
		          current_streak, longest_streak, total_check_ins, missed_days, grace_skips_used,
		          week_start_date, completion_rate, last_check_in_at, last_reconciled_date,
		          completed_at, created_at, updated_at
	`, userID, challengeID, startDate, endDate).Scan(
		&enr.ID, &enr.UserID, &enr.ChallengeID, &enr.PartnerIDs, &enr.Status, &enr.StartDate, &enr.EndDate,
		&enr.CurrentStreak, &enr.LongestStreak, &enr.TotalCheckIns, &enr.MissedDays, &enr.GraceSkipsUsed,
		&enr.WeekStartDate, &enr.CompletionRate, &enr.LastCheckInAt, &enr.LastReconciledDate,
		&enr.CompletedAt, &enr.CreatedAt, &enr.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("user %s, challenge %s: %w", userID, challengeID, apperrors.ErrAlreadyEnrolled)
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE challenges SET total_users = total_users + 1, active_users = active_users + 1, updated_at = NOW() WHERE id = $1`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to bump challenge counters: %w", err)
	}
	_, err = tx.Exec(ctx, `UPDATE users SET active_challenges = active_challenges + 1, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to bump user counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit enrollment: %w", err)
	}
	return enr, nil
}

// LeaveChallenge moves an active enrollment to abandoned.
func (s *ChallengeService) LeaveChallenge(ctx context.Context, enrollmentID, actingUserID uuid.UUID) error {
	return s.closeEnrollment(ctx, enrollmentID, actingUserID, enrollment.StatusAbandoned)
}

// ExitChallenge moves an active enrollment to exited. Same mechanics
// as leaving; the status distinction matters to downstream stats.
func (s *ChallengeService) ExitChallenge(ctx context.Context, enrollmentID, actingUserID uuid.UUID) error {
	return s.closeEnrollment(ctx, enrollmentID, actingUserID, enrollment.StatusExited)
}

func (s *ChallengeService) closeEnrollment(ctx context.Context, enrollmentID, actingUserID uuid.UUID, status enrollment.Status) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID, challengeID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT user_id, challenge_id FROM enrollments WHERE id = $1`, enrollmentID).Scan(&userID, &challengeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("enrollment %s: %w", enrollmentID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to load enrollment: %w", err)
	}
	if userID != actingUserID {
		return fmt.Errorf("enrollment %s: %w", enrollmentID, apperrors.ErrUnauthorized)
	}

	// Conditional on status so a double leave, or a leave racing the
	// daily completion pass, changes nothing twice.
	tag, err := tx.Exec(ctx, `UPDATE enrollments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'active'`, enrollmentID, status)
	if err != nil {
		return fmt.Errorf("failed to close enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("enrollment %s: %w", enrollmentID, apperrors.ErrEnrollmentNotActive)
	}

	_, err = tx.Exec(ctx, `UPDATE challenges SET active_users = GREATEST(active_users - 1, 0), updated_at = NOW() WHERE id = $1`, challengeID)
	if err != nil {
		return fmt.Errorf("failed to decrement challenge counters: %w", err)
	}
	_, err = tx.Exec(ctx, `UPDATE users SET active_challenges = GREATEST(active_challenges - 1, 0), updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to decrement user counters: %w", err)
	}

	return tx.Commit(ctx)
}

// AddPartner links another user to an enrollment so they receive
// partner check-in notifications.
func (s *ChallengeService) AddPartner(ctx context.Context, enrollmentID, actingUserID, partnerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE enrollments
		SET partner_ids = array_append(partner_ids, $3), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT ($3 = ANY(partner_ids))
	`, enrollmentID, actingUserID, partnerID)
	if err != nil {
		return fmt.Errorf("failed to add partner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("enrollment %s: %w", enrollmentID, apperrors.ErrNotFound)
	}
	return nil
}

func (s *ChallengeService) GetEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*enrollment.Enrollment, error) {
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

func (s *ChallengeService) ListEnrollments(ctx context.Context, userID uuid.UUID) ([]*enrollment.Enrollment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, challenge_id, partner_ids, status, start_date, end_date,
		       current_streak, longest_streak, total_check_ins, missed_days, grace_skips_used,
		       week_start_date, completion_rate, last_check_in_at, last_reconciled_date,
		       completed_at, created_at, updated_at
		FROM enrollments WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*enrollment.Enrollment
	for rows.Next() {
		enr := &enrollment.Enrollment{}
		if err := rows.Scan(
			&enr.ID, &enr.UserID, &enr.ChallengeID, &enr.PartnerIDs, &enr.Status, &enr.StartDate, &enr.EndDate,
			&enr.CurrentStreak, &enr.LongestStreak, &enr.TotalCheckIns, &enr.MissedDays, &enr.GraceSkipsUsed,
			&enr.WeekStartDate, &enr.CompletionRate, &enr.LastCheckInAt, &enr.LastReconciledDate,
			&enr.CompletedAt, &enr.CreatedAt, &enr.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, enr)
	}
	return enrollments, rows.Err()
}

func (s *ChallengeService) GetUserIDFromClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user not found for clerk_id %s: %w", clerkID, apperrors.ErrNotFound)
	}
	return userID, nil
}
