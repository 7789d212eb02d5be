package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"momentumAPI/internal/apperrors"
	"momentumAPI/internal/types/notification"
)

// PushProvider is the transport behind best-effort push delivery. The
// FCM implementation lives in internal/notification.
type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

type NotificationService struct {
	db           *pgxpool.Pool
	pushProvider PushProvider
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) SetPushProvider(p PushProvider) {
	s.pushProvider = p
}

// Send persists a notification for a user and pushes it to their
// devices. Delivery is best-effort: every failure is logged and
// swallowed so a dead notifier can never roll back engine state.
// Returns the row, or nil when the user disabled this type.
func (s *NotificationService) Send(ctx context.Context, userID uuid.UUID, notifType notification.NotificationType, title, body string, data map[string]any) *notification.Notification {
	prefs, err := s.GetPreferencesByUserID(ctx, userID)
	if err != nil {
		log.Printf("Notifier: failed to load preferences for %s, proceeding with defaults: %v", userID, err)
		prefs = nil
	}
	if !prefs.Allows(notifType) {
		return nil
	}

	if data == nil {
		data = map[string]any{}
	}
	dataJSON, _ := json.Marshal(data)

	query := `
		INSERT INTO notifications (user_id, type, title, body, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, type, title, body, created_at
	`

	notif := &notification.Notification{Data: data}
	err = s.db.QueryRow(ctx, query, userID, notifType, title, body, dataJSON).Scan(
		&notif.ID, &notif.UserID, &notif.Type, &notif.Title, &notif.Body, &notif.CreatedAt,
	)
	if err != nil {
		log.Printf("Notifier: failed to persist notification for %s: %v", userID, err)
		return nil
	}

	if s.pushProvider != nil && (prefs == nil || prefs.PushEnabled) {
		tokens, err := s.getDeviceTokens(ctx, userID)
		if err != nil {
			log.Printf("Notifier: failed to load device tokens for %s: %v", userID, err)
			return notif
		}
		if err := s.pushProvider.SendPush(ctx, tokens, title, body, data); err != nil {
			log.Printf("Notifier: push delivery failed for %s: %v", userID, err)
		}
	}

	return notif
}

func (s *NotificationService) getDeviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT id, user_id, token, platform FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *NotificationService) GetNotifications(ctx context.Context, clerkID string, page, pageSize int, unreadOnly bool) (*notification.NotificationListResponse, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	offset := (page - 1) * pageSize
	whereClause := "WHERE user_id = $1"
	if unreadOnly {
		whereClause += " AND read_at IS NULL"
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notifications %s", whereClause)
	if err := s.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, type, title, body, data, read_at, created_at
		FROM notifications
		%s
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, whereClause)

	rows, err := s.db.Query(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*notification.Notification{}
	for rows.Next() {
		notif := &notification.Notification{}
		var dataJSON []byte
		if err := rows.Scan(&notif.ID, &notif.UserID, &notif.Type, &notif.Title, &notif.Body, &dataJSON, &notif.ReadAt, &notif.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		json.Unmarshal(dataJSON, &notif.Data)
		notifications = append(notifications, notif)
	}

	return &notification.NotificationListResponse{
		Notifications: notifications,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, clerkID string) (int, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uuid.UUID, clerkID string) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", notificationID, apperrors.ErrNotFound)
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, clerkID string) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark all as read: %w", err)
	}
	return nil
}

func (s *NotificationService) GetPreferences(ctx context.Context, clerkID string) (*notification.Preferences, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	return s.GetPreferencesByUserID(ctx, userID)
}

func (s *NotificationService) GetPreferencesByUserID(ctx context.Context, userID uuid.UUID) (*notification.Preferences, error) {
	prefs := &notification.Preferences{}
	var enabledJSON []byte

	err := s.db.QueryRow(ctx, `
		SELECT user_id, enabled_types, push_enabled, updated_at
		FROM notification_preferences WHERE user_id = $1
	`, userID).Scan(&prefs.UserID, &enabledJSON, &prefs.PushEnabled, &prefs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No row yet means everything enabled.
			return &notification.Preferences{UserID: userID, EnabledTypes: map[string]bool{}, PushEnabled: true}, nil
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	json.Unmarshal(enabledJSON, &prefs.EnabledTypes)
	if prefs.EnabledTypes == nil {
		prefs.EnabledTypes = map[string]bool{}
	}
	return prefs, nil
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, clerkID string, req *notification.UpdatePreferencesRequest) (*notification.Preferences, error) {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	current, err := s.GetPreferencesByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.EnabledTypes != nil {
		for k, v := range req.EnabledTypes {
			current.EnabledTypes[k] = v
		}
	}
	if req.PushEnabled != nil {
		current.PushEnabled = *req.PushEnabled
	}

	enabledJSON, _ := json.Marshal(current.EnabledTypes)
	err = s.db.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, enabled_types, push_enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET enabled_types = $2, push_enabled = $3, updated_at = NOW()
		RETURNING updated_at
	`, userID, enabledJSON, current.PushEnabled).Scan(&current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}

	return current, nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, clerkID string, req notification.RegisterDeviceRequest) error {
	userID, err := s.getUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET platform = $3
	`, userID, req.Token, req.Platform)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

// DeleteOldRead removes read notifications past the retention cutoff.
// Called by the retention sweeper.
func (s *NotificationService) DeleteOldRead(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE read_at IS NOT NULL AND created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *NotificationService) getUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user not found for clerk_id %s: %w", clerkID, apperrors.ErrNotFound)
	}
	return userID, nil
}
