// Package notify exposes a user's notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Store interface {
	ListNotifications(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]*domain.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int64, error)
	GetNotification(ctx context.Context, id int64) (*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID int64, at time.Time) (int64, error)
}

type Inbox struct {
	Items  []*domain.Notification `json:"items"`
	Unread int64                  `json:"unread_count"`
}

type Service struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

func NewService(store Store, log logger.Logger) *Service {
	return &Service{store: store, logger: log, now: time.Now}
}

// List returns the newest notifications of userID with the unread count.
func (s *Service) List(ctx context.Context, userID int64, limit int, unreadOnly bool) (*Inbox, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	items, err := s.store.ListNotifications(ctx, userID, limit, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	unread, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return &Inbox{Items: items, Unread: unread}, nil
}

// MarkRead marks one notification read. Only its owner may do so.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) (*domain.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.NotFound("notification")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	if n.UserID != userID {
		return nil, apperr.Forbidden()
	}
	if n.IsRead {
		return n, nil
	}

	at := s.now().UTC()
	if err := s.store.MarkNotificationRead(ctx, id, at); err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	n.IsRead, n.ReadAt = true, &at
	return n, nil
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	if n > 0 {
		s.logger.Debug("notifications marked read",
			logger.Int64("user_id", userID),
			logger.Int64("count", n))
	}
	return n, nil
}
