package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/validation"
)

// Repository is the storage the service needs. Lookups return
// domain.ErrNotFound for missing rows.
type Repository interface {
	GetCompany(ctx context.Context, id int64) (*domain.Company, error)
	ListWatchlist(ctx context.Context, companyID int64) ([]*domain.WatchlistEntry, error)
	FindWatchlistEntry(ctx context.Context, companyID int64, entryType domain.EntryType, value string) (*domain.WatchlistEntry, error)
	GetWatchlistEntry(ctx context.Context, id int64) (*domain.WatchlistEntry, error)
	InsertWatchlistEntry(ctx context.Context, e *domain.WatchlistEntry) error
	DeleteWatchlistEntry(ctx context.Context, id int64) error
}

// Invalidator drops cached aggregates after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Auditor records a write. Implementations are best-effort.
type Auditor interface {
	Record(ctx context.Context, entry *domain.AuditLog)
}

type AddEntryInput struct {
	EntryType   string `json:"entry_type" validate:"required,oneof=domain url email slug ip_address"`
	EntryValue  string `json:"entry_value" validate:"required,max=255"`
	Description string `json:"description" validate:"max=500"`
}

func (in *AddEntryInput) normalize() {
	in.EntryType = strings.ToLower(strings.TrimSpace(in.EntryType))
	in.EntryValue = strings.ToLower(strings.TrimSpace(in.EntryValue))
	in.Description = strings.TrimSpace(in.Description)
}

type Service struct {
	repo   Repository
	cache  Invalidator
	audit  Auditor
	logger logger.Logger
}

func NewService(repo Repository, cache Invalidator, audit Auditor, log logger.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: log}
}

// ResolveCaller loads the watchlist of user's company for this request.
func (s *Service) ResolveCaller(ctx context.Context, user *domain.User) (Caller, error) {
	c := Caller{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CompanyID: user.CompanyID,
		Domain:    normalizeDomain(user.CompanyDomain),
	}
	if c.IsAdmin() || user.CompanyID == nil {
		return c, nil
	}
	entries, err := s.repo.ListWatchlist(ctx, *user.CompanyID)
	if err != nil {
		return Caller{}, fmt.Errorf("failed to load watchlist: %w", err)
	}
	c.Watchlist = domain.Values(entries)
	return c, nil
}

// CanManage reports whether actor may read or edit companyID's watchlist.
func CanManage(actor Caller, companyID int64) bool {
	return actor.IsAdmin() || actor.OwnsCompany(companyID)
}

// ListWatchlist returns every entry of the company, newest first.
func (s *Service) ListWatchlist(ctx context.Context, companyID int64) ([]*domain.WatchlistEntry, error) {
	entries, err := s.repo.ListWatchlist(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	return entries, nil
}

// AddEntry validates and inserts an entry. A (type, value) pair already
// present for the same company is rejected.
func (s *Service) AddEntry(ctx context.Context, actor Caller, companyID int64, in AddEntryInput) (*domain.WatchlistEntry, error) {
	if !CanManage(actor, companyID) {
		return nil, apperr.Forbidden()
	}

	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.NotFound("company")
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	entryType := domain.EntryType(in.EntryType)
	existing, err := s.repo.FindWatchlistEntry(ctx, companyID, entryType, in.EntryValue)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check duplicate entry: %w", err)
	}
	if existing != nil {
		return nil, apperr.AlreadyExists("watchlist entry")
	}

	entry := &domain.WatchlistEntry{
		CompanyID:   companyID,
		EntryType:   entryType,
		EntryValue:  in.EntryValue,
		Description: in.Description,
	}
	if err := s.repo.InsertWatchlistEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert watchlist entry: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, actor, domain.AuditCreate, entry,
		fmt.Sprintf("Added %s watchlist entry %q", entry.EntryType, entry.EntryValue))

	s.logger.Info("watchlist entry added",
		logger.Int64("company_id", companyID),
		logger.String("entry_type", string(entry.EntryType)),
		logger.Int64("actor_id", actor.UserID))

	return entry, nil
}

// RemoveEntry deletes entryID, which must belong to companyID.
func (s *Service) RemoveEntry(ctx context.Context, actor Caller, companyID, entryID int64) error {
	if !CanManage(actor, companyID) {
		return apperr.Forbidden()
	}

	entry, err := s.repo.GetWatchlistEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("watchlist entry")
		}
		return fmt.Errorf("failed to load watchlist entry: %w", err)
	}
	if entry.CompanyID != companyID {
		return apperr.NotFound("watchlist entry")
	}

	if err := s.repo.DeleteWatchlistEntry(ctx, entryID); err != nil {
		return fmt.Errorf("failed to delete watchlist entry: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, actor, domain.AuditDelete, entry,
		fmt.Sprintf("Removed %s watchlist entry %q", entry.EntryType, entry.EntryValue))

	s.logger.Info("watchlist entry removed",
		logger.Int64("company_id", companyID),
		logger.Int64("entry_id", entryID),
		logger.Int64("actor_id", actor.UserID))

	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", logger.Error(err))
	}
}

func (s *Service) record(ctx context.Context, actor Caller, action domain.AuditAction, entry *domain.WatchlistEntry, desc string) {
	if s.audit == nil {
		return
	}
	uid := actor.UserID
	log := &domain.AuditLog{
		UserID:       &uid,
		Action:       action,
		ResourceType: "watchlist_entry",
		ResourceID:   strconv.FormatInt(entry.ID, 10),
		Description:  desc,
		Status:       domain.AuditSuccess,
	}
	switch action {
	case domain.AuditDelete:
		log.OldValues = entryJSON(entry)
	default:
		log.NewValues = entryJSON(entry)
	}
	s.audit.Record(ctx, log)
}

func entryJSON(e *domain.WatchlistEntry) string {
	b, _ := json.Marshal(map[string]any{
		"company_id":  e.CompanyID,
		"entry_type":  e.EntryType,
		"entry_value": e.EntryValue,
	})
	return string(b)
}
