package sqlstore

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

func applyWindow(q sq.SelectBuilder, w domain.Window) sq.SelectBuilder {
	if !w.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": formatTime(w.Since)})
	}
	if !w.Until.IsZero() {
		q = q.Where(sq.Lt{"created_at": formatTime(w.Until)})
	}
	if len(w.Types) > 0 {
		q = q.Where(sq.Eq{"type": w.Types})
	}
	if w.Marked != nil {
		q = q.Where(sq.Eq{"is_marked": *w.Marked})
	}
	return q
}

// groupable columns of breach_records.
var groupColumns = map[string]bool{"type": true, "source": true, "domain": true}

// CountBreaches counts the records visible in scope within w.
func (s *Store) CountBreaches(ctx context.Context, scope watchlist.Scope, w domain.Window) (int64, error) {
	q := applyWindow(scope.Apply(s.sq.Select("COUNT(*)").From("breach_records")), w)
	var n int64
	if err := s.queryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count breaches: %w", err)
	}
	return n, nil
}

// GroupCount counts visible records per non-empty value of column, largest
// first. limit <= 0 returns every group.
func (s *Store) GroupCount(ctx context.Context, scope watchlist.Scope, column string, w domain.Window, limit int) ([]domain.KeyCount, error) {
	if !groupColumns[column] {
		return nil, fmt.Errorf("group by %q not allowed", column)
	}
	q := s.sq.Select(column, "COUNT(*) AS n").From("breach_records").
		Where(sq.And{sq.NotEq{column: nil}, sq.NotEq{column: ""}})
	q = applyWindow(scope.Apply(q), w).
		GroupBy(column).
		OrderBy("n DESC", column+" ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.keyCounts(ctx, q)
}

// DailyCounts counts visible records per UTC day (YYYY-MM-DD) created at or
// after since. Days without records are absent.
func (s *Store) DailyCounts(ctx context.Context, scope watchlist.Scope, since time.Time) ([]domain.KeyCount, error) {
	const day = "SUBSTR(created_at, 1, 10)"
	q := s.sq.Select(day, "COUNT(*)").From("breach_records").
		Where(sq.GtOrEq{"created_at": formatTime(since)})
	q = scope.Apply(q).GroupBy(day).OrderBy(day + " ASC")
	return s.keyCounts(ctx, q)
}

// RecentBreaches returns the newest visible records.
func (s *Store) RecentBreaches(ctx context.Context, scope watchlist.Scope, limit int) ([]*domain.BreachRecord, error) {
	q := scope.Apply(s.sq.Select(breachColumns...).From("breach_records")).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	return s.listBreaches(ctx, q)
}

func (s *Store) keyCounts(ctx context.Context, q sq.SelectBuilder) ([]domain.KeyCount, error) {
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("group count: %w", err)
	}
	defer rows.Close()

	out := make([]domain.KeyCount, 0)
	for rows.Next() {
		var kc domain.KeyCount
		if err := rows.Scan(&kc.Key, &kc.Count); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}
