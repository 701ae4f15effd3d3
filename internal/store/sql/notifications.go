package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

var notificationColumns = []string{"id", "user_id", "type", "title", "message", "link", "is_read", "read_at", "created_at"}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n            domain.Notification
		link, readAt sql.NullString
		created      string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &link, &n.IsRead, &readAt, &created); err != nil {
		return nil, err
	}
	n.Link = link.String
	n.ReadAt = timePtr(readAt)
	n.CreatedAt = parseTime(created)
	return &n, nil
}

// CreateNotifications inserts the batch in one transaction.
func (s *Store) CreateNotifications(ctx context.Context, batch []*domain.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *Store) error {
		now := tx.now()
		for _, n := range batch {
			q := tx.sq.Insert("notifications").
				Columns("user_id", "type", "title", "message", "link", "is_read", "created_at").
				Values(n.UserID, n.Type, n.Title, n.Message, nullString(n.Link), false, formatTime(now))
			id, err := tx.insertReturningID(ctx, q)
			if err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
			n.ID = id
			n.CreatedAt = now
		}
		return nil
	})
}

// ListNotifications returns the user's newest notifications.
func (s *Store) ListNotifications(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]*domain.Notification, error) {
	q := s.sq.Select(notificationColumns...).From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if unreadOnly {
		q = q.Where(sq.Eq{"is_read": false})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	q := s.sq.Select("COUNT(*)").From("notifications").
		Where(sq.Eq{"user_id": userID, "is_read": false})
	var n int64
	if err := s.queryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *Store) GetNotification(ctx context.Context, id int64) (*domain.Notification, error) {
	q := s.sq.Select(notificationColumns...).From("notifications").Where(sq.Eq{"id": id})
	n, err := scanNotification(s.queryRow(ctx, q))
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id int64, at time.Time) error {
	q := s.sq.Update("notifications").
		Set("is_read", true).
		Set("read_at", formatTime(at)).
		Where(sq.Eq{"id": id})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the user and
// returns how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	q := s.sq.Update("notifications").
		Set("is_read", true).
		Set("read_at", formatTime(at)).
		Where(sq.Eq{"user_id": userID, "is_read": false})
	res, err := s.exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// DeleteReadNotificationsBefore purges read notifications created before cutoff.
func (s *Store) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.sq.Delete("notifications").
		Where(sq.Eq{"is_read": true}).
		Where(sq.Lt{"created_at": formatTime(cutoff)})
	res, err := s.exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}
