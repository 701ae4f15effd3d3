package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

var userColumns = []string{
	"u.id", "u.username", "u.email", "u.password_hash", "u.role", "u.company_id",
	"u.is_active", "u.last_login", "u.created_at", "u.updated_at",
	"COALESCE(c.domain, '')",
}

func (s *Store) selectUsers() sq.SelectBuilder {
	return s.sq.Select(userColumns...).
		From("users u").
		LeftJoin("companies c ON c.id = u.company_id")
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                domain.User
		role             string
		companyID        sql.NullInt64
		lastLogin        sql.NullString
		created, updated string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &companyID,
		&u.IsActive, &lastLogin, &created, &updated, &u.CompanyDomain)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.CompanyID = int64Ptr(companyID)
	u.LastLogin = timePtr(lastLogin)
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	now := s.now()
	q := s.sq.Insert("users").
		Columns("username", "email", "password_hash", "role", "company_id", "is_active", "created_at", "updated_at").
		Values(u.Username, u.Email, u.PasswordHash, string(u.Role), nullInt64(u.CompanyID), u.IsActive, formatTime(now), formatTime(now))
	id, err := s.insertReturningID(ctx, q)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// UpdateUser writes every mutable column, password hash included.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	now := s.now()
	q := s.sq.Update("users").
		Set("username", u.Username).
		Set("email", u.Email).
		Set("password_hash", u.PasswordHash).
		Set("role", string(u.Role)).
		Set("company_id", nullInt64(u.CompanyID)).
		Set("is_active", u.IsActive).
		Set("updated_at", formatTime(now)).
		Where(sq.Eq{"id": u.ID})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	u.UpdatedAt = now
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	q := s.sq.Delete("users").Where(sq.Eq{"id": id})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// TouchLastLogin stamps a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	q := s.sq.Update("users").Set("last_login", formatTime(at)).Where(sq.Eq{"id": id})
	if err := affectedOne(s.exec(ctx, q)); err != nil {
		return fmt.Errorf("touch last login %d: %w", id, err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.getUser(ctx, sq.Eq{"u.id": id})
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, sq.Eq{"u.username": username})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, sq.Eq{"u.email": email})
}

func (s *Store) getUser(ctx context.Context, where sq.Sqlizer) (*domain.User, error) {
	u, err := scanUser(s.queryRow(ctx, s.selectUsers().Where(where)))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	q := s.selectUsers().OrderBy("u.username ASC")
	if f.CompanyID != nil {
		q = q.Where(sq.Eq{"u.company_id": *f.CompanyID})
	}
	if f.Role != "" {
		q = q.Where(sq.Eq{"u.role": string(f.Role)})
	}
	if f.ActiveOnly {
		q = q.Where(sq.Eq{"u.is_active": true})
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountUsers returns the number of user rows.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.queryRow(ctx, s.sq.Select("COUNT(*)").From("users")).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
