package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

var breachColumns = []string{
	"id", "external_id", "domain", "username", "url", "password", "source", "type",
	"is_marked", "marked_by", "marked_at", "created_by", "created_at", "updated_at",
}

func scanBreach(row rowScanner) (*domain.BreachRecord, error) {
	var (
		r                                    domain.BreachRecord
		externalID, dom, username, url, pass sql.NullString
		source, typ, markedAt                sql.NullString
		markedBy, createdBy                  sql.NullInt64
		created, updated                     string
	)
	err := row.Scan(&r.ID, &externalID, &dom, &username, &url, &pass, &source, &typ,
		&r.IsMarked, &markedBy, &markedAt, &createdBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.ExternalID = externalID.String
	r.Domain = dom.String
	r.Username = username.String
	r.URL = url.String
	r.Password = pass.String
	r.Source = source.String
	r.Type = typ.String
	r.MarkedBy = int64Ptr(markedBy)
	r.MarkedAt = timePtr(markedAt)
	r.CreatedBy = int64Ptr(createdBy)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func (s *Store) breachInsert(r *domain.BreachRecord, now time.Time) sq.InsertBuilder {
	created := now
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt
	}
	return s.sq.Insert("breach_records").
		Columns("external_id", "domain", "username", "url", "password", "source", "type",
			"is_marked", "created_by", "created_at", "updated_at").
		Values(nullString(r.ExternalID), nullString(r.Domain), nullString(r.Username), nullString(r.URL),
			nullString(r.Password), nullString(r.Source), nullString(r.Type),
			false, nullInt64(r.CreatedBy), formatTime(created), formatTime(now))
}

func (s *Store) CreateBreach(ctx context.Context, r *domain.BreachRecord) error {
	now := s.now()
	id, err := s.insertReturningID(ctx, s.breachInsert(r, now))
	if err != nil {
		return fmt.Errorf("insert breach: %w", err)
	}
	r.ID = id
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// InsertBreaches inserts records in one transaction, skipping those whose
// external id already exists. It returns the records actually inserted.
func (s *Store) InsertBreaches(ctx context.Context, records []*domain.BreachRecord) ([]*domain.BreachRecord, error) {
	var inserted []*domain.BreachRecord
	err := s.WithTx(ctx, func(tx *Store) error {
		now := tx.now()
		for _, r := range records {
			q := tx.breachInsert(r, now).Suffix("ON CONFLICT (external_id) DO NOTHING RETURNING id")
			var id int64
			err := tx.queryRow(ctx, q).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert breach: %w", err)
			}
			r.ID = id
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			r.UpdatedAt = now
			inserted = append(inserted, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// UpdateBreach writes the descriptive and matched fields. Mark state is
// changed only through SetBreachMark.
func (s *Store) UpdateBreach(ctx context.Context, r *domain.BreachRecord) error {
	now := s.now()
	q := s.sq.Update("breach_records").
		Set("domain", nullString(r.Domain)).
		Set("username", nullString(r.Username)).
		Set("url", nullString(r.URL)).
		Set("password", nullString(r.Password)).
		Set("source", nullString(r.Source)).
		Set("type", nullString(r.Type)).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": r.ID})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("update breach %d: %w", r.ID, err)
	}
	r.UpdatedAt = now
	return nil
}

// SetBreachMark sets or clears the mark. Clearing drops marked_by and marked_at.
func (s *Store) SetBreachMark(ctx context.Context, id int64, marked bool, by *int64, at time.Time) error {
	q := s.sq.Update("breach_records").
		Set("is_marked", marked).
		Set("updated_at", formatTime(s.now())).
		Where(sq.Eq{"id": id})
	if marked {
		q = q.Set("marked_by", nullInt64(by)).Set("marked_at", formatTime(at))
	} else {
		q = q.Set("marked_by", nil).Set("marked_at", nil)
	}
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("mark breach %d: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteBreach(ctx context.Context, id int64) error {
	q := s.sq.Delete("breach_records").Where(sq.Eq{"id": id})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("delete breach %d: %w", id, err)
	}
	return nil
}

func (s *Store) GetBreach(ctx context.Context, id int64) (*domain.BreachRecord, error) {
	q := s.sq.Select(breachColumns...).From("breach_records").Where(sq.Eq{"id": id})
	r, err := scanBreach(s.queryRow(ctx, q))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// applyBreachFilter adds the listing filters. Pagination is left to callers.
func (s *Store) applyBreachFilter(q sq.SelectBuilder, f domain.BreachFilter) sq.SelectBuilder {
	if f.Search != "" {
		like := watchlist.ContainsPattern(f.Search)
		q = q.Where(sq.Or{
			sq.Expr("LOWER(domain) LIKE ? ESCAPE '\\'", like),
			sq.Expr("LOWER(username) LIKE ? ESCAPE '\\'", like),
			sq.Expr("LOWER(url) LIKE ? ESCAPE '\\'", like),
			sq.Expr("LOWER(source) LIKE ? ESCAPE '\\'", like),
		})
	}
	if f.Type != "" {
		q = q.Where(sq.Eq{"type": f.Type})
	}
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": f.Source})
	}
	if since, ok := f.DateRange.Since(s.now()); ok {
		q = q.Where(sq.GtOrEq{"created_at": formatTime(since)})
	}
	if f.Marked != nil {
		q = q.Where(sq.Eq{"is_marked": *f.Marked})
	}
	return q
}

// ListBreaches returns one page of the records visible in scope, newest
// first, with the total across all pages. f must be normalized.
func (s *Store) ListBreaches(ctx context.Context, scope watchlist.Scope, f domain.BreachFilter) (*domain.BreachPage, error) {
	countQ := s.applyBreachFilter(scope.Apply(s.sq.Select("COUNT(*)").From("breach_records")), f)
	var total int64
	if err := s.queryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, fmt.Errorf("count breaches: %w", err)
	}

	q := s.applyBreachFilter(scope.Apply(s.sq.Select(breachColumns...).From("breach_records")), f).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.PerPage)).
		Offset(uint64(f.Offset()))
	items, err := s.listBreaches(ctx, q)
	if err != nil {
		return nil, err
	}
	return &domain.BreachPage{Items: items, Total: total, Page: f.Page, PerPage: f.PerPage}, nil
}

// ExportBreaches returns every filtered record visible in scope, newest
// first, capped at limit when limit > 0.
func (s *Store) ExportBreaches(ctx context.Context, scope watchlist.Scope, f domain.BreachFilter, limit int) ([]*domain.BreachRecord, error) {
	q := s.applyBreachFilter(scope.Apply(s.sq.Select(breachColumns...).From("breach_records")), f).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.listBreaches(ctx, q)
}

// SearchBreaches matches term against domain, username and url within scope.
func (s *Store) SearchBreaches(ctx context.Context, scope watchlist.Scope, term string, limit int) ([]*domain.BreachRecord, error) {
	like := watchlist.ContainsPattern(term)
	q := scope.Apply(s.sq.Select(breachColumns...).From("breach_records")).
		Where(sq.Or{
			sq.Expr("LOWER(domain) LIKE ? ESCAPE '\\'", like),
			sq.Expr("LOWER(username) LIKE ? ESCAPE '\\'", like),
			sq.Expr("LOWER(url) LIKE ? ESCAPE '\\'", like),
		}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	return s.listBreaches(ctx, q)
}

func (s *Store) listBreaches(ctx context.Context, q sq.SelectBuilder) ([]*domain.BreachRecord, error) {
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.BreachRecord, 0)
	for rows.Next() {
		r, err := scanBreach(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breach: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
