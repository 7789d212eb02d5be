package challenge

import (
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	FrequencyDaily Frequency = "daily"
)

type Challenge struct {
	ID                uuid.UUID `json:"id" db:"id"`
	CreatorID         uuid.UUID `json:"creator_id" db:"creator_id"`
	Name              string    `json:"name" db:"name"`
	Description       string    `json:"description" db:"description"`
	DurationDays      int       `json:"duration_days" db:"duration_days"`
	Frequency         Frequency `json:"frequency" db:"frequency"`
	AllowGraceSkips   bool      `json:"allow_grace_skips" db:"allow_grace_skips"`
	GraceSkipsPerWeek int       `json:"grace_skips_per_week" db:"grace_skips_per_week"`
	TotalUsers        int       `json:"total_users" db:"total_users"`
	ActiveUsers       int       `json:"active_users" db:"active_users"`
	Tasks             []Task    `json:"tasks"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

type Task struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ChallengeID uuid.UUID `json:"challenge_id" db:"challenge_id"`
	Title       string    `json:"title" db:"title"`
	SortOrder   int       `json:"sort_order" db:"sort_order"`
}

type CreateChallengeRequest struct {
	Name              string   `json:"name" validate:"required"`
	Description       string   `json:"description"`
	DurationDays      int      `json:"duration_days" validate:"required"`
	AllowGraceSkips   bool     `json:"allow_grace_skips"`
	GraceSkipsPerWeek int      `json:"grace_skips_per_week"`
	Tasks             []string `json:"tasks"`
}
