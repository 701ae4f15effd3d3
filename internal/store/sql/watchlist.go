package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

var watchlistColumns = []string{"id", "company_id", "entry_type", "entry_value", "description", "created_at", "updated_at"}

func scanWatchlistEntry(row rowScanner) (*domain.WatchlistEntry, error) {
	var (
		e                domain.WatchlistEntry
		entryType        string
		created, updated string
	)
	if err := row.Scan(&e.ID, &e.CompanyID, &entryType, &e.EntryValue, &e.Description, &created, &updated); err != nil {
		return nil, err
	}
	e.EntryType = domain.EntryType(entryType)
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return &e, nil
}

// ListWatchlist returns the company's entries, oldest first.
func (s *Store) ListWatchlist(ctx context.Context, companyID int64) ([]*domain.WatchlistEntry, error) {
	q := s.sq.Select(watchlistColumns...).From("watchlist_entries").
		Where(sq.Eq{"company_id": companyID}).
		OrderBy("id ASC")
	return s.listWatchlist(ctx, q)
}

// ListAllWatchlists groups every entry by company id.
func (s *Store) ListAllWatchlists(ctx context.Context) (map[int64][]*domain.WatchlistEntry, error) {
	q := s.sq.Select(watchlistColumns...).From("watchlist_entries").OrderBy("company_id ASC", "id ASC")
	entries, err := s.listWatchlist(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]*domain.WatchlistEntry)
	for _, e := range entries {
		out[e.CompanyID] = append(out[e.CompanyID], e)
	}
	return out, nil
}

func (s *Store) listWatchlist(ctx context.Context, q sq.SelectBuilder) ([]*domain.WatchlistEntry, error) {
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var out []*domain.WatchlistEntry
	for rows.Next() {
		e, err := scanWatchlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) FindWatchlistEntry(ctx context.Context, companyID int64, entryType domain.EntryType, value string) (*domain.WatchlistEntry, error) {
	q := s.sq.Select(watchlistColumns...).From("watchlist_entries").
		Where(sq.Eq{"company_id": companyID, "entry_type": string(entryType), "entry_value": value}).
		Limit(1)
	e, err := scanWatchlistEntry(s.queryRow(ctx, q))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Store) GetWatchlistEntry(ctx context.Context, id int64) (*domain.WatchlistEntry, error) {
	q := s.sq.Select(watchlistColumns...).From("watchlist_entries").Where(sq.Eq{"id": id})
	e, err := scanWatchlistEntry(s.queryRow(ctx, q))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (s *Store) InsertWatchlistEntry(ctx context.Context, e *domain.WatchlistEntry) error {
	now := s.now()
	q := s.sq.Insert("watchlist_entries").
		Columns("company_id", "entry_type", "entry_value", "description", "created_at", "updated_at").
		Values(e.CompanyID, string(e.EntryType), e.EntryValue, e.Description, formatTime(now), formatTime(now))
	id, err := s.insertReturningID(ctx, q)
	if err != nil {
		return fmt.Errorf("insert watchlist entry: %w", err)
	}
	e.ID = id
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

func (s *Store) DeleteWatchlistEntry(ctx context.Context, id int64) error {
	q := s.sq.Delete("watchlist_entries").Where(sq.Eq{"id": id})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("delete watchlist entry %d: %w", id, err)
	}
	return nil
}
