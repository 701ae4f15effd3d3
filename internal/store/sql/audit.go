package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

var auditColumns = []string{
	"id", "request_id", "user_id", "action", "resource_type", "resource_id", "description",
	"ip_address", "user_agent", "old_values", "new_values", "status", "error_message", "created_at",
}

func (s *Store) InsertAuditLog(ctx context.Context, l *domain.AuditLog) error {
	now := s.now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	q := s.sq.Insert("audit_logs").
		Columns(auditColumns[1:]...).
		Values(l.RequestID, nullInt64(l.UserID), string(l.Action), l.ResourceType, nullString(l.ResourceID),
			nullString(l.Description), nullString(l.IPAddress), nullString(l.UserAgent),
			nullString(l.OldValues), nullString(l.NewValues), l.Status, nullString(l.ErrorMessage),
			formatTime(l.CreatedAt))
	id, err := s.insertReturningID(ctx, q)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	l.ID = id
	return nil
}

// ListAuditLogs returns one page of logs, newest first, and the total.
func (s *Store) ListAuditLogs(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLog, int64, error) {
	where := sq.And{}
	if f.UserID != nil {
		where = append(where, sq.Eq{"user_id": *f.UserID})
	}
	if f.Action != "" {
		where = append(where, sq.Eq{"action": string(f.Action)})
	}
	if f.ResourceType != "" {
		where = append(where, sq.Eq{"resource_type": f.ResourceType})
	}

	var total int64
	countQ := s.sq.Select("COUNT(*)").From("audit_logs")
	if len(where) > 0 {
		countQ = countQ.Where(where)
	}
	if err := s.queryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > domain.MaxPerPage {
		perPage = 50
	}
	q := s.sq.Select(auditColumns...).From("audit_logs").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(perPage)).
		Offset(uint64((page - 1) * perPage))
	if len(where) > 0 {
		q = q.Where(where)
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.AuditLog, 0)
	for rows.Next() {
		var (
			l                               domain.AuditLog
			userID                          sql.NullInt64
			action, created                 string
			resID, desc, ip, ua, oldV, newV sql.NullString
			errMsg                          sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.RequestID, &userID, &action, &l.ResourceType, &resID, &desc,
			&ip, &ua, &oldV, &newV, &l.Status, &errMsg, &created); err != nil {
			return nil, 0, fmt.Errorf("scan audit log: %w", err)
		}
		l.UserID = int64Ptr(userID)
		l.Action = domain.AuditAction(action)
		l.ResourceID = resID.String
		l.Description = desc.String
		l.IPAddress = ip.String
		l.UserAgent = ua.String
		l.OldValues = oldV.String
		l.NewValues = newV.String
		l.ErrorMessage = errMsg.String
		l.CreatedAt = parseTime(created)
		out = append(out, &l)
	}
	return out, total, rows.Err()
}

// DeleteAuditLogsBefore purges logs created before cutoff.
func (s *Store) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.sq.Delete("audit_logs").Where(sq.Lt{"created_at": formatTime(cutoff)})
	res, err := s.exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("purge audit logs: %w", err)
	}
	return res.RowsAffected()
}
