package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

type Store interface {
	GetCompanyByDomain(ctx context.Context, d string) (*domain.Company, error)
	CreateCompany(ctx context.Context, c *domain.Company) error
	FindWatchlistEntry(ctx context.Context, companyID int64, entryType domain.EntryType, value string) (*domain.WatchlistEntry, error)
	InsertWatchlistEntry(ctx context.Context, e *domain.WatchlistEntry) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Summary counts what Apply created and what already existed.
type Summary struct {
	CompaniesCreated int `json:"companies_created"`
	EntriesCreated   int `json:"entries_created"`
	UsersCreated     int `json:"users_created"`
	Skipped          int `json:"skipped"`
}

type Applier struct {
	store  Store
	hasher PasswordHasher
	cache  watchlist.Invalidator
	logger logger.Logger
}

func NewApplier(store Store, hasher PasswordHasher, cache watchlist.Invalidator, log logger.Logger) *Applier {
	return &Applier{store: store, hasher: hasher, cache: cache, logger: log}
}

// Apply creates what is missing. Existing companies, entries and users are
// left untouched, so running the same plan twice is a no-op.
func (a *Applier) Apply(ctx context.Context, plan *Plan) (*Summary, error) {
	var sum Summary

	for _, cp := range plan.Companies {
		c, err := a.store.GetCompanyByDomain(ctx, cp.Company.Domain)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c = cp.Company
			if err := a.store.CreateCompany(ctx, c); err != nil {
				return nil, fmt.Errorf("create company %s: %w", c.Domain, err)
			}
			sum.CompaniesCreated++
		case err != nil:
			return nil, fmt.Errorf("look up company %s: %w", cp.Company.Domain, err)
		default:
			sum.Skipped++
		}

		for _, e := range cp.Entries {
			_, err := a.store.FindWatchlistEntry(ctx, c.ID, e.EntryType, e.EntryValue)
			if err == nil {
				sum.Skipped++
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("look up watchlist entry: %w", err)
			}
			e.CompanyID = c.ID
			if err := a.store.InsertWatchlistEntry(ctx, e); err != nil {
				return nil, fmt.Errorf("insert watchlist entry %s=%s: %w", e.EntryType, e.EntryValue, err)
			}
			sum.EntriesCreated++
		}
	}

	for _, up := range plan.Users {
		_, err := a.store.GetUserByUsername(ctx, up.User.Username)
		if err == nil {
			sum.Skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("look up user %s: %w", up.User.Username, err)
		}

		u := up.User
		if up.CompanyDomain != "" {
			c, err := a.store.GetCompanyByDomain(ctx, up.CompanyDomain)
			if err != nil {
				return nil, fmt.Errorf("user %s: company %s: %w", u.Username, up.CompanyDomain, err)
			}
			u.CompanyID = &c.ID
		}
		if u.PasswordHash, err = a.hasher.Hash(up.Password); err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", u.Username, err)
		}
		if err := a.store.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("create user %s: %w", u.Username, err)
		}
		sum.UsersCreated++
	}

	if sum.CompaniesCreated+sum.EntriesCreated > 0 && a.cache != nil {
		if err := a.cache.Invalidate(ctx); err != nil {
			a.logger.Warn("failed to invalidate stats cache", logger.Error(err))
		}
	}

	a.logger.Info("seed applied",
		logger.Int("companies_created", sum.CompaniesCreated),
		logger.Int("entries_created", sum.EntriesCreated),
		logger.Int("users_created", sum.UsersCreated),
		logger.Int("skipped", sum.Skipped))
	return &sum, nil
}
