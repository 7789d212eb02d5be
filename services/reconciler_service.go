package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"momentumAPI/internal/metrics"
	"momentumAPI/internal/streak"
	"momentumAPI/internal/types/notification"
)

// ReconciliationSummary is the JSON body returned to the trigger
// caller. Errors counts enrollments that were skipped this run and
// will be retried on the next one.
type ReconciliationSummary struct {
	Date         string `json:"date"`
	Processed    int    `json:"processed"`
	MissedDays   int    `json:"missed_days"`
	GraceSkips   int    `json:"grace_skips"`
	StreakResets int    `json:"streak_resets"`
	Completions  int    `json:"completions"`
	Errors       int    `json:"errors"`
}

type GraceResetSummary struct {
	Date  string `json:"date"`
	Reset int    `json:"reset"`
}

type ReconcilerService struct {
	db                  *pgxpool.Pool
	notificationService *NotificationService
	insightService      *InsightService
	loc                 *time.Location
	batchSize           int

	runningMu sync.Mutex
	running   bool
}

func NewReconcilerService(db *pgxpool.Pool, notificationService *NotificationService, insightService *InsightService, loc *time.Location, batchSize int) *ReconcilerService {
	if loc == nil {
		loc = time.UTC
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ReconcilerService{
		db:                  db,
		notificationService: notificationService,
		insightService:      insightService,
		loc:                 loc,
		batchSize:           batchSize,
	}
}

// challengePolicy is the slice of a challenge the daily judgment
// needs, cached per sweep.
type challengePolicy struct {
	taskCount         int
	allowGraceSkips   bool
	graceSkipsPerWeek int
	name              string
}

type reconcileCandidate struct {
	id             uuid.UUID
	userID         uuid.UUID
	challengeID    uuid.UUID
	currentStreak  int
	graceSkipsUsed int
}

// ReconcileDaily judges yesterday for every active enrollment, applies
// grace-skip-or-reset, and promotes enrollments past their end date.
// Each enrollment is its own conditional update guarded by
// last_reconciled_date, so the sweep is idempotent per day, safe to
// re-run after a partial failure, and tolerant of overlapping
// triggers.
func (s *ReconcilerService) ReconcileDaily(ctx context.Context, now time.Time) (*ReconciliationSummary, error) {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		log.Println("Daily reconciliation already running, skipping")
		return nil, fmt.Errorf("daily reconciliation already running")
	}
	s.running = true
	s.runningMu.Unlock()
	defer func() {
		s.runningMu.Lock()
		s.running = false
		s.runningMu.Unlock()
	}()

	startTime := time.Now()
	now = now.In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	yesterday := today.AddDate(0, 0, -1)

	summary := &ReconciliationSummary{Date: yesterday.Format("2006-01-02")}
	policies := make(map[uuid.UUID]challengePolicy)

	var lastID uuid.UUID
	for {
		batch, err := s.nextBatch(ctx, yesterday, lastID)
		if err != nil {
			metrics.JobRuns.WithLabelValues("daily_reconciliation", "error").Inc()
			return summary, fmt.Errorf("failed to page enrollments: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, cand := range batch {
			lastID = cand.id
			if err := s.reconcileOne(ctx, cand, yesterday, policies, summary); err != nil {
				summary.Errors++
				metrics.SweepErrors.WithLabelValues("daily_reconciliation").Inc()
				log.Printf("Reconciliation: enrollment %s skipped: %v", cand.id, err)
				continue
			}
			summary.Processed++
		}
	}

	if err := s.completeExpired(ctx, today, summary); err != nil {
		log.Printf("Reconciliation: completion pass failed: %v", err)
		summary.Errors++
	}

	metrics.JobRuns.WithLabelValues("daily_reconciliation", "ok").Inc()
	log.Printf("Daily reconciliation for %s done in %s: %d processed, %d missed, %d grace, %d resets, %d completions, %d errors",
		summary.Date, time.Since(startTime), summary.Processed, summary.MissedDays,
		summary.GraceSkips, summary.StreakResets, summary.Completions, summary.Errors)
	return summary, nil
}

// nextBatch pages active enrollments by id so a sweep never loads the
// whole table. Enrollments already reconciled for yesterday, or that
// only started today, are filtered out in SQL.
func (s *ReconcilerService) nextBatch(ctx context.Context, yesterday time.Time, afterID uuid.UUID) ([]reconcileCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, challenge_id, current_streak, grace_skips_used
		FROM enrollments
		WHERE status = 'active'
		  AND start_date <= $1
		  AND (last_reconciled_date IS NULL OR last_reconciled_date < $1)
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`, yesterday, afterID, s.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []reconcileCandidate
	for rows.Next() {
		var c reconcileCandidate
		if err := rows.Scan(&c.id, &c.userID, &c.challengeID, &c.currentStreak, &c.graceSkipsUsed); err != nil {
			return nil, err
		}
		batch = append(batch, c)
	}
	return batch, rows.Err()
}

func (s *ReconcilerService) reconcileOne(ctx context.Context, cand reconcileCandidate, yesterday time.Time, policies map[uuid.UUID]challengePolicy, summary *ReconciliationSummary) error {
	policy, ok := policies[cand.challengeID]
	if !ok {
		err := s.db.QueryRow(ctx, `
			SELECT c.allow_grace_skips, c.grace_skips_per_week, c.name,
			       (SELECT COUNT(*) FROM challenge_tasks t WHERE t.challenge_id = c.id)
			FROM challenges c WHERE c.id = $1
		`, cand.challengeID).Scan(&policy.allowGraceSkips, &policy.graceSkipsPerWeek, &policy.name, &policy.taskCount)
		if err != nil {
			return fmt.Errorf("failed to load challenge policy: %w", err)
		}
		policies[cand.challengeID] = policy
	}

	var tasksCompleted int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM check_ins WHERE enrollment_id = $1 AND date = $2
	`, cand.id, yesterday).Scan(&tasksCompleted)
	if err != nil {
		return fmt.Errorf("failed to count yesterday's check-ins: %w", err)
	}

	outcome := streak.JudgeDay(policy.taskCount, tasksCompleted, policy.allowGraceSkips, cand.graceSkipsUsed, policy.graceSkipsPerWeek)

	// One conditional write per enrollment. The last_reconciled_date
	// guard makes a duplicate trigger run a no-op: the second pass
	// matches zero rows instead of double-penalizing the day.
	var tagQuery string
	switch {
	case !outcome.Missed:
		tagQuery = `
			UPDATE enrollments SET last_reconciled_date = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'active'
			  AND (last_reconciled_date IS NULL OR last_reconciled_date < $2)`
	case outcome.UseGrace:
		tagQuery = `
			UPDATE enrollments
			SET missed_days = missed_days + 1, grace_skips_used = grace_skips_used + 1,
			    last_reconciled_date = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'active'
			  AND (last_reconciled_date IS NULL OR last_reconciled_date < $2)`
	default:
		tagQuery = `
			UPDATE enrollments
			SET missed_days = missed_days + 1, current_streak = 0,
			    last_reconciled_date = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'active'
			  AND (last_reconciled_date IS NULL OR last_reconciled_date < $2)`
	}

	tag, err := s.db.Exec(ctx, tagQuery, cand.id, yesterday)
	if err != nil {
		return fmt.Errorf("failed to apply day outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Another run got here first.
		return nil
	}

	if !outcome.Missed {
		return nil
	}

	summary.MissedDays++
	if outcome.UseGrace {
		summary.GraceSkips++
		metrics.GraceSkipsUsed.Inc()
		s.notificationService.Send(ctx, cand.userID, notification.NotificationGraceSkipUsed,
			"Grace skip used",
			fmt.Sprintf("You missed a day of %s, but a grace skip saved your %d-day streak.", policy.name, cand.currentStreak),
			map[string]any{"enrollment_id": cand.id.String(), "date": yesterday.Format("2006-01-02")})
	} else {
		summary.StreakResets++
		metrics.StreakResets.Inc()
		s.notificationService.Send(ctx, cand.userID, notification.NotificationMissedCheckIn,
			"Streak reset",
			fmt.Sprintf("You missed a day of %s and your %d-day streak reset. Today is a fresh start.", policy.name, cand.currentStreak),
			map[string]any{"enrollment_id": cand.id.String(), "date": yesterday.Format("2006-01-02")})
	}
	return nil
}

type expiredCandidate struct {
	id, userID, challengeID                      uuid.UUID
	curStreak, longStreak, totalCheckIns, missed int
	completionRate                               float64
}

// completeExpired promotes active enrollments past their end date.
// Keyset-paged like the missed-day sweep so a long backlog never loads
// into memory at once. Each enrollment gets its own transaction so a
// crash mid-pass leaves completed rows completed and pending rows for
// the next run.
func (s *ReconcilerService) completeExpired(ctx context.Context, today time.Time, summary *ReconciliationSummary) error {
	var afterID uuid.UUID
	for {
		batch, err := s.nextExpiredBatch(ctx, today, afterID)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, e := range batch {
			afterID = e.id

			if err := s.completeOne(ctx, e.id, e.userID, e.challengeID); err != nil {
				summary.Errors++
				metrics.SweepErrors.WithLabelValues("daily_reconciliation").Inc()
				log.Printf("Reconciliation: failed to complete enrollment %s: %v", e.id, err)
				continue
			}

			summary.Completions++
			metrics.ChallengesCompleted.Inc()

			body := fmt.Sprintf("Challenge finished with a longest streak of %d days and %d check-ins. Well done!", e.longStreak, e.totalCheckIns)
			if s.insightService != nil {
				stats := InsightStats{
					CurrentStreak:  e.curStreak,
					LongestStreak:  e.longStreak,
					TotalCheckIns:  e.totalCheckIns,
					MissedDays:     e.missed,
					CompletionRate: e.completionRate,
				}
				if text, err := s.insightService.Describe(ctx, stats); err == nil {
					body = text
				}
			}
			s.notificationService.Send(ctx, e.userID, notification.NotificationChallengeComplete,
				"Challenge complete!", body,
				map[string]any{"enrollment_id": e.id.String()})
		}
	}
}

func (s *ReconcilerService) nextExpiredBatch(ctx context.Context, today time.Time, afterID uuid.UUID) ([]expiredCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, challenge_id, current_streak, longest_streak, total_check_ins, missed_days, completion_rate
		FROM enrollments
		WHERE status = 'active' AND end_date <= $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, today, afterID, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired enrollments: %w", err)
	}
	defer rows.Close()

	var batch []expiredCandidate
	for rows.Next() {
		var e expiredCandidate
		if err := rows.Scan(&e.id, &e.userID, &e.challengeID, &e.curStreak, &e.longStreak, &e.totalCheckIns, &e.missed, &e.completionRate); err != nil {
			return nil, fmt.Errorf("failed to scan expired enrollment: %w", err)
		}
		batch = append(batch, e)
	}
	return batch, rows.Err()
}

func (s *ReconcilerService) completeOne(ctx context.Context, enrollmentID, userID, challengeID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Conditional on status: a concurrent leave or a duplicate run
	// matches zero rows and the counters stay balanced.
	tag, err := tx.Exec(ctx, `
		UPDATE enrollments SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to promote enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET active_challenges = GREATEST(active_challenges - 1, 0),
		       completed_challenges = completed_challenges + 1, updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to adjust user counters: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE challenges SET active_users = GREATEST(active_users - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, challengeID)
	if err != nil {
		return fmt.Errorf("failed to adjust challenge counters: %w", err)
	}

	return tx.Commit(ctx)
}

// ResetGraceBudgets replenishes grace skips for every active
// enrollment whose own week has rolled over. week_start_date advances
// by whole weeks, so the reset window is per enrollment rather than a
// global calendar weekday, and running the job twice changes nothing.
func (s *ReconcilerService) ResetGraceBudgets(ctx context.Context, now time.Time) (*GraceResetSummary, error) {
	now = now.In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)

	tag, err := s.db.Exec(ctx, `
		UPDATE enrollments
		SET grace_skips_used = 0,
		    week_start_date = week_start_date + ((($1::date - week_start_date) / 7) * 7),
		    updated_at = NOW()
		WHERE status = 'active' AND week_start_date <= $1::date - 7
	`, today)
	if err != nil {
		metrics.JobRuns.WithLabelValues("grace_reset", "error").Inc()
		return nil, fmt.Errorf("failed to reset grace budgets: %w", err)
	}

	metrics.JobRuns.WithLabelValues("grace_reset", "ok").Inc()
	summary := &GraceResetSummary{Date: today.Format("2006-01-02"), Reset: int(tag.RowsAffected())}
	log.Printf("Grace budget reset for %s: %d enrollments replenished", summary.Date, summary.Reset)
	return summary, nil
}
