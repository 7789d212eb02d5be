package enrollment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusExited    Status = "exited"
	StatusArchived  Status = "archived"
)

// Enrollment is one user's run through a challenge. The counter fields
// are derived from the check-in history and are only ever changed by
// conditional single-row updates.
type Enrollment struct {
	ID                 uuid.UUID   `json:"id" db:"id"`
	UserID             uuid.UUID   `json:"user_id" db:"user_id"`
	ChallengeID        uuid.UUID   `json:"challenge_id" db:"challenge_id"`
	PartnerIDs         []uuid.UUID `json:"partner_ids" db:"partner_ids"`
	Status             Status      `json:"status" db:"status"`
	StartDate          time.Time   `json:"start_date" db:"start_date"`
	EndDate            time.Time   `json:"end_date" db:"end_date"`
	CurrentStreak      int         `json:"current_streak" db:"current_streak"`
	LongestStreak      int         `json:"longest_streak" db:"longest_streak"`
	TotalCheckIns      int         `json:"total_check_ins" db:"total_check_ins"`
	MissedDays         int         `json:"missed_days" db:"missed_days"`
	GraceSkipsUsed     int         `json:"grace_skips_used" db:"grace_skips_used"`
	WeekStartDate      time.Time   `json:"week_start_date" db:"week_start_date"`
	CompletionRate     float64     `json:"completion_rate" db:"completion_rate"`
	LastCheckInAt      *time.Time  `json:"last_check_in_at" db:"last_check_in_at"`
	LastReconciledDate *time.Time  `json:"last_reconciled_date" db:"last_reconciled_date"`
	CompletedAt        *time.Time  `json:"completed_at" db:"completed_at"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}
