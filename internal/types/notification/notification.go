package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationStreakMilestone   NotificationType = "streak_milestone"
	NotificationMissedCheckIn     NotificationType = "missed_check_in"
	NotificationGraceSkipUsed     NotificationType = "grace_skip_used"
	NotificationChallengeComplete NotificationType = "challenge_complete"
	NotificationPartnerCheckIn    NotificationType = "partner_check_in"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	Data      map[string]any   `json:"data" db:"data"`
	ReadAt    *time.Time       `json:"read_at" db:"read_at"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Preferences gates delivery per notification type. A type missing
// from EnabledTypes counts as enabled.
type Preferences struct {
	UserID       uuid.UUID       `json:"user_id" db:"user_id"`
	EnabledTypes map[string]bool `json:"enabled_types" db:"enabled_types"`
	PushEnabled  bool            `json:"push_enabled" db:"push_enabled"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (p *Preferences) Allows(t NotificationType) bool {
	if p == nil {
		return true
	}
	if enabled, ok := p.EnabledTypes[string(t)]; ok {
		return enabled
	}
	return true
}

type DeviceToken struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	Token    string    `json:"token" db:"token"`
	Platform string    `json:"platform" db:"platform"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform"`
}

type UpdatePreferencesRequest struct {
	EnabledTypes map[string]bool `json:"enabled_types"`
	PushEnabled  *bool           `json:"push_enabled"`
}

type NotificationListResponse struct {
	Notifications []*Notification `json:"notifications"`
	Total         int             `json:"total"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
}
