// Package breach serves breach records to callers through their watchlist
// scope and fans out notifications when new records arrive.
package breach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/validation"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

const (
	MinSearchLength    = 2
	searchRecordLimit  = 5
	searchCandidates   = 25 // ranked down to searchRecordLimit
	searchCompanyLimit = 3

	// MaxExportRows caps a single export.
	MaxExportRows = 10000
)

// Repository is the storage the service needs. Lookups return
// domain.ErrNotFound for missing rows.
type Repository interface {
	ListBreaches(ctx context.Context, scope watchlist.Scope, f domain.BreachFilter) (*domain.BreachPage, error)
	ExportBreaches(ctx context.Context, scope watchlist.Scope, f domain.BreachFilter, limit int) ([]*domain.BreachRecord, error)
	SearchBreaches(ctx context.Context, scope watchlist.Scope, term string, limit int) ([]*domain.BreachRecord, error)
	GetBreach(ctx context.Context, id int64) (*domain.BreachRecord, error)
	CreateBreach(ctx context.Context, r *domain.BreachRecord) error
	UpdateBreach(ctx context.Context, r *domain.BreachRecord) error
	SetBreachMark(ctx context.Context, id int64, marked bool, by *int64, at time.Time) error
	DeleteBreach(ctx context.Context, id int64) error

	ListCompanies(ctx context.Context, search string, limit int) ([]*domain.Company, error)
	ListAllWatchlists(ctx context.Context) (map[int64][]*domain.WatchlistEntry, error)
	ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error)
	CreateNotifications(ctx context.Context, batch []*domain.Notification) error
}

// Input is the writable part of a record. At least one of Domain and
// Username must be set.
type Input struct {
	ExternalID string `json:"external_id" validate:"max=255"`
	Domain     string `json:"domain" validate:"required_without=Username,max=255"`
	Username   string `json:"username" validate:"required_without=Domain,max=255"`
	Password   string `json:"password" validate:"max=255"`
	URL        string `json:"url" validate:"max=2048"`
	Source     string `json:"source" validate:"max=255"`
	Type       string `json:"type" validate:"max=50"`
}

func (in Input) record() *domain.BreachRecord {
	r := &domain.BreachRecord{
		ExternalID: in.ExternalID,
		Domain:     in.Domain,
		Username:   in.Username,
		Password:   in.Password,
		URL:        in.URL,
		Source:     in.Source,
		Type:       in.Type,
	}
	r.Normalize()
	return r
}

// SearchResult is the quick-search payload. Companies are only returned
// to admins.
type SearchResult struct {
	Breaches  []*domain.BreachRecord `json:"breaches"`
	Companies []*domain.Company      `json:"companies,omitempty"`
}

type Service struct {
	repo   Repository
	cache  watchlist.Invalidator
	audit  watchlist.Auditor
	logger logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, cache watchlist.Invalidator, audit watchlist.Auditor, log logger.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: log, now: time.Now}
}

// List returns one page of the records the caller may see.
func (s *Service) List(ctx context.Context, caller watchlist.Caller, f domain.BreachFilter) (*domain.BreachPage, error) {
	f.Normalize()
	page, err := s.repo.ListBreaches(ctx, watchlist.ScopeFor(caller), f)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaches: %w", err)
	}
	return page, nil
}

// Get loads a record and runs the access gate on it.
func (s *Service) Get(ctx context.Context, caller watchlist.Caller, id int64) (*domain.BreachRecord, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := watchlist.Authorize(r, caller); err != nil {
		s.logDenied(caller, r)
		return nil, err
	}
	return r, nil
}

// Create inserts a record entered by an admin and notifies every tenant
// whose watchlist claims it.
func (s *Service) Create(ctx context.Context, actor watchlist.Caller, in Input) (*domain.BreachRecord, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	r := in.record()
	uid := actor.UserID
	r.CreatedBy = &uid
	if err := s.repo.CreateBreach(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create breach: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, actor, domain.AuditCreate, r.ID, "", recordJSON(r),
		fmt.Sprintf("Created breach record %d", r.ID))
	s.Notify(ctx, []*domain.BreachRecord{r})

	s.logger.Info("breach created",
		logger.Int64("breach_id", r.ID),
		logger.String("type", r.Type),
		logger.Int64("actor_id", actor.UserID))
	return r, nil
}

// Update overwrites the writable fields of a record. Admin only.
func (s *Service) Update(ctx context.Context, actor watchlist.Caller, id int64, in Input) (*domain.BreachRecord, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	old := recordJSON(r)

	next := in.record()
	r.Domain = next.Domain
	r.Username = next.Username
	r.Password = next.Password
	r.URL = next.URL
	r.Source = next.Source
	r.Type = next.Type
	if err := s.repo.UpdateBreach(ctx, r); err != nil {
		return nil, s.mapMissing(err, "failed to update breach")
	}

	s.invalidate(ctx)
	s.record(ctx, actor, domain.AuditUpdate, r.ID, old, recordJSON(r),
		fmt.Sprintf("Updated breach record %d", r.ID))
	return r, nil
}

// Delete removes a record. Admin only.
func (s *Service) Delete(ctx context.Context, actor watchlist.Caller, id int64) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden()
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBreach(ctx, id); err != nil {
		return s.mapMissing(err, "failed to delete breach")
	}

	s.invalidate(ctx)
	s.record(ctx, actor, domain.AuditDelete, id, recordJSON(r), "",
		fmt.Sprintf("Deleted breach record %d", id))
	return nil
}

// ToggleMark flips the mark of a record the caller may access.
func (s *Service) ToggleMark(ctx context.Context, caller watchlist.Caller, id int64) (*domain.BreachRecord, error) {
	r, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	at := s.now().UTC()
	uid := caller.UserID
	marked := !r.IsMarked
	if err := s.repo.SetBreachMark(ctx, id, marked, &uid, at); err != nil {
		return nil, s.mapMissing(err, "failed to mark breach")
	}

	r.IsMarked = marked
	action, verb := domain.AuditUnmark, "Unmarked"
	r.MarkedBy, r.MarkedAt = nil, nil
	if marked {
		action, verb = domain.AuditMark, "Marked"
		r.MarkedBy, r.MarkedAt = &uid, &at
	}

	s.invalidate(ctx)
	s.record(ctx, caller, action, id, "", "", fmt.Sprintf("%s breach record %d", verb, id))
	return r, nil
}

// Search matches q against the caller's records, and company names and
// domains for admins.
func (s *Service) Search(ctx context.Context, caller watchlist.Caller, q string) (*SearchResult, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < MinSearchLength {
		return nil, apperr.Validation(fmt.Sprintf("search query must be at least %d characters", MinSearchLength))
	}

	records, err := s.repo.SearchBreaches(ctx, watchlist.ScopeFor(caller), q, searchCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to search breaches: %w", err)
	}
	out := &SearchResult{Breaches: make([]*domain.BreachRecord, 0, searchRecordLimit)}
	for _, c := range domain.RankBreaches(q, records) {
		if len(out.Breaches) == searchRecordLimit {
			break
		}
		out.Breaches = append(out.Breaches, c.Record)
	}

	if caller.IsAdmin() {
		if out.Companies, err = s.repo.ListCompanies(ctx, q, searchCompanyLimit); err != nil {
			return nil, fmt.Errorf("failed to search companies: %w", err)
		}
	}
	return out, nil
}

// Export returns the filtered records the caller may see, newest first,
// capped at MaxExportRows.
func (s *Service) Export(ctx context.Context, caller watchlist.Caller, f domain.BreachFilter, format string) ([]*domain.BreachRecord, error) {
	f.Normalize()
	records, err := s.repo.ExportBreaches(ctx, watchlist.ScopeFor(caller), f, MaxExportRows)
	if err != nil {
		return nil, fmt.Errorf("failed to export breaches: %w", err)
	}

	s.record(ctx, caller, domain.AuditExport, 0, "", "",
		fmt.Sprintf("Exported %d breach records as %s", len(records), format))
	return records, nil
}

// Notify creates one notification per interested active user for each
// record: members of every company whose scope matches it, plus every
// active admin. Failures are logged and never returned.
func (s *Service) Notify(ctx context.Context, records []*domain.BreachRecord) {
	if len(records) == 0 {
		return
	}
	batch, err := s.notifications(ctx, records)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipients", logger.Error(err))
		return
	}
	if err := s.repo.CreateNotifications(ctx, batch); err != nil {
		s.logger.Warn("failed to create notifications",
			logger.Int("count", len(batch)),
			logger.Error(err))
	}
}

func (s *Service) notifications(ctx context.Context, records []*domain.BreachRecord) ([]*domain.Notification, error) {
	companies, err := s.repo.ListCompanies(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	watchlists, err := s.repo.ListAllWatchlists(ctx)
	if err != nil {
		return nil, err
	}
	admins, err := s.repo.ListUsers(ctx, domain.UserFilter{Role: domain.RoleAdmin, ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	type tenant struct {
		scope   watchlist.Scope
		members []*domain.User
	}
	tenants := make([]tenant, 0, len(companies))
	for _, c := range companies {
		id := c.ID
		scope := watchlist.ScopeFor(watchlist.Caller{
			Role:      domain.RoleMember,
			CompanyID: &id,
			Domain:    c.Domain,
			Watchlist: domain.Values(watchlists[c.ID]),
		})
		members, err := s.repo.ListUsers(ctx, domain.UserFilter{CompanyID: &id, ActiveOnly: true})
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			tenants = append(tenants, tenant{scope: scope, members: members})
		}
	}

	var batch []*domain.Notification
	for _, r := range records {
		seen := make(map[int64]struct{})
		add := func(u *domain.User) {
			if _, dup := seen[u.ID]; dup {
				return
			}
			seen[u.ID] = struct{}{}
			batch = append(batch, newBreachNotification(u.ID, r))
		}
		for _, t := range tenants {
			if !t.scope.Matches(r) {
				continue
			}
			for _, u := range t.members {
				add(u)
			}
		}
		for _, u := range admins {
			add(u)
		}
	}
	return batch, nil
}

func newBreachNotification(userID int64, r *domain.BreachRecord) *domain.Notification {
	subject := r.Username
	if subject == "" {
		subject = r.Domain
	}
	kind := r.Type
	if kind == "" {
		kind = "breach"
	}
	return &domain.Notification{
		UserID:  userID,
		Type:    domain.NotificationNewBreach,
		Title:   "New breach detected",
		Message: fmt.Sprintf("New %s credential found for %s", kind, subject),
		Link:    "/api/breaches/" + strconv.FormatInt(r.ID, 10),
	}
}

func (s *Service) load(ctx context.Context, id int64) (*domain.BreachRecord, error) {
	r, err := s.repo.GetBreach(ctx, id)
	if err != nil {
		return nil, s.mapMissing(err, "failed to load breach")
	}
	return r, nil
}

func (s *Service) mapMissing(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound("breach record")
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// logDenied keeps the failing decision server-side only.
func (s *Service) logDenied(caller watchlist.Caller, r *domain.BreachRecord) {
	s.logger.Debug("breach access denied",
		logger.Int64("user_id", caller.UserID),
		logger.Int64("breach_id", r.ID))
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", logger.Error(err))
	}
}

func (s *Service) record(ctx context.Context, actor watchlist.Caller, action domain.AuditAction, id int64, oldV, newV, desc string) {
	if s.audit == nil {
		return
	}
	uid := actor.UserID
	entry := &domain.AuditLog{
		UserID:       &uid,
		Action:       action,
		ResourceType: "breach_record",
		Description:  desc,
		OldValues:    oldV,
		NewValues:    newV,
		Status:       domain.AuditSuccess,
	}
	if id > 0 {
		entry.ResourceID = strconv.FormatInt(id, 10)
	}
	s.audit.Record(ctx, entry)
}

// recordJSON omits the password.
func recordJSON(r *domain.BreachRecord) string {
	b, _ := json.Marshal(map[string]any{
		"domain":   r.Domain,
		"username": r.Username,
		"url":      r.URL,
		"source":   r.Source,
		"type":     r.Type,
	})
	return string(b)
}
