package checkin

import (
	"time"

	"github.com/google/uuid"
)

// NoteEditWindow bounds how long after logging a check-in its note can
// still be changed.
const NoteEditWindow = 15 * time.Minute

type CheckIn struct {
	ID           uuid.UUID `json:"id" db:"id"`
	EnrollmentID uuid.UUID `json:"enrollment_id" db:"enrollment_id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	ChallengeID  uuid.UUID `json:"challenge_id" db:"challenge_id"`
	TaskID       uuid.UUID `json:"task_id" db:"task_id"`
	Date         time.Time `json:"date" db:"date"`
	LoggedAt     time.Time `json:"logged_at" db:"logged_at"`
	Note         string    `json:"note" db:"note"`
	PhotoURL     *string   `json:"photo_url" db:"photo_url"`
	Verified     *bool     `json:"verified" db:"verified"`
	IsEdited     bool      `json:"is_edited" db:"is_edited"`
}

// CanEditNote reports whether the note edit window is still open at
// the given instant.
func (c *CheckIn) CanEditNote(now time.Time) bool {
	return now.Sub(c.LoggedAt) <= NoteEditWindow
}

type RecordCheckInRequest struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	TaskID       string  `json:"task_id" validate:"required"`
	Note         string  `json:"note"`
	PhotoURL     *string `json:"photo_url"`
}

type EditNoteRequest struct {
	Note string `json:"note" validate:"required"`
}
