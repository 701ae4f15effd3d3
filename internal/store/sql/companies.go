package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

var companyColumns = []string{"id", "name", "domain", "company_type", "description", "created_at", "updated_at"}

func scanCompany(row rowScanner) (*domain.Company, error) {
	var (
		c                domain.Company
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.CompanyType, &c.Description, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func (s *Store) CreateCompany(ctx context.Context, c *domain.Company) error {
	now := s.now()
	q := s.sq.Insert("companies").
		Columns("name", "domain", "company_type", "description", "created_at", "updated_at").
		Values(c.Name, c.Domain, c.CompanyType, c.Description, formatTime(now), formatTime(now))
	id, err := s.insertReturningID(ctx, q)
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	c.ID = id
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

func (s *Store) UpdateCompany(ctx context.Context, c *domain.Company) error {
	now := s.now()
	q := s.sq.Update("companies").
		Set("name", c.Name).
		Set("domain", c.Domain).
		Set("company_type", c.CompanyType).
		Set("description", c.Description).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": c.ID})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("update company %d: %w", c.ID, err)
	}
	c.UpdatedAt = now
	return nil
}

// DeleteCompany removes the company; its watchlist cascades and its users
// are unlinked.
func (s *Store) DeleteCompany(ctx context.Context, id int64) error {
	q := s.sq.Delete("companies").Where(sq.Eq{"id": id})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("delete company %d: %w", id, err)
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	return s.getCompany(ctx, sq.Eq{"id": id})
}

func (s *Store) GetCompanyByDomain(ctx context.Context, d string) (*domain.Company, error) {
	return s.getCompany(ctx, sq.Eq{"domain": d})
}

func (s *Store) GetCompanyByName(ctx context.Context, name string) (*domain.Company, error) {
	return s.getCompany(ctx, sq.Eq{"name": name})
}

func (s *Store) getCompany(ctx context.Context, where sq.Sqlizer) (*domain.Company, error) {
	q := s.sq.Select(companyColumns...).From("companies").Where(where)
	c, err := scanCompany(s.queryRow(ctx, q))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCompanies returns companies ordered by name. A non-empty search
// matches name or domain; limit <= 0 means no limit.
func (s *Store) ListCompanies(ctx context.Context, search string, limit int) ([]*domain.Company, error) {
	q := s.sq.Select(companyColumns...).From("companies").OrderBy("name ASC")
	if search != "" {
		like := watchlist.ContainsPattern(search)
		q = q.Where(sq.Or{
			sq.Expr("LOWER(name) LIKE ? ESCAPE '\\'", like),
			sq.Expr("LOWER(domain) LIKE ? ESCAPE '\\'", like),
		})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []*domain.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
