// Package account administers companies and users.
package account

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
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

type Repository interface {
	CreateCompany(ctx context.Context, c *domain.Company) error
	UpdateCompany(ctx context.Context, c *domain.Company) error
	DeleteCompany(ctx context.Context, id int64) error
	GetCompany(ctx context.Context, id int64) (*domain.Company, error)
	GetCompanyByDomain(ctx context.Context, d string) (*domain.Company, error)
	GetCompanyByName(ctx context.Context, name string) (*domain.Company, error)
	ListCompanies(ctx context.Context, search string, limit int) ([]*domain.Company, error)

	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
	DeleteUser(ctx context.Context, id int64) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error)
}

// PasswordHasher turns a plain password into the stored hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

type CompanyInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Domain      string `json:"domain" validate:"required,max=253,tenant_domain"`
	CompanyType string `json:"company_type" validate:"max=50"`
	Description string `json:"description" validate:"max=1000"`
}

func (in *CompanyInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Domain = strings.ToLower(strings.TrimSpace(in.Domain))
	in.CompanyType = strings.TrimSpace(in.CompanyType)
	in.Description = strings.TrimSpace(in.Description)
}

type CreateUserInput struct {
	Username  string `json:"username" validate:"required,min=3,max=50,username"`
	Email     string `json:"email" validate:"required,max=255,email"`
	Password  string `json:"password" validate:"required,min=8,max=128,strong_password"`
	Role      string `json:"role" validate:"required,oneof=admin member"`
	CompanyID *int64 `json:"company_id"`
	IsActive  *bool  `json:"is_active"`
}

// UpdateUserInput changes only the fields that are set. Unlink detaches
// the user from its company and wins over CompanyID.
type UpdateUserInput struct {
	Username  string `json:"username" validate:"omitempty,min=3,max=50,username"`
	Email     string `json:"email" validate:"omitempty,max=255,email"`
	Password  string `json:"password" validate:"omitempty,min=8,max=128,strong_password"`
	Role      string `json:"role" validate:"omitempty,oneof=admin member"`
	CompanyID *int64 `json:"company_id"`
	Unlink    bool   `json:"unlink_company"`
	IsActive  *bool  `json:"is_active"`
}

type Service struct {
	repo   Repository
	hasher PasswordHasher
	cache  watchlist.Invalidator
	audit  watchlist.Auditor
	logger logger.Logger
}

func NewService(repo Repository, hasher PasswordHasher, cache watchlist.Invalidator, audit watchlist.Auditor, log logger.Logger) *Service {
	return &Service{repo: repo, hasher: hasher, cache: cache, audit: audit, logger: log}
}

// ─────────────────────────────
// Companies
// ─────────────────────────────

func (s *Service) ListCompanies(ctx context.Context, actor watchlist.Caller, search string) ([]*domain.Company, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	out, err := s.repo.ListCompanies(ctx, strings.TrimSpace(search), 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return out, nil
}

// GetCompany is open to admins and to members of that company.
func (s *Service) GetCompany(ctx context.Context, actor watchlist.Caller, id int64) (*domain.Company, error) {
	if !watchlist.CanManage(actor, id) {
		return nil, apperr.Forbidden()
	}
	return s.loadCompany(ctx, id)
}

func (s *Service) CreateCompany(ctx context.Context, actor watchlist.Caller, in CompanyInput) (*domain.Company, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.checkCompanyUnique(ctx, 0, in); err != nil {
		return nil, err
	}

	c := &domain.Company{
		Name:        in.Name,
		Domain:      in.Domain,
		CompanyType: in.CompanyType,
		Description: in.Description,
	}
	if err := s.repo.CreateCompany(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	s.record(ctx, actor, domain.AuditCreate, "company", c.ID, "", toJSON(c),
		fmt.Sprintf("Created company %q", c.Name))
	s.logger.Info("company created",
		logger.Int64("company_id", c.ID),
		logger.String("domain", c.Domain))
	return c, nil
}

// UpdateCompany rewrites a company. A domain change alters what its
// members can see, so cached statistics are dropped.
func (s *Service) UpdateCompany(ctx context.Context, actor watchlist.Caller, id int64, in CompanyInput) (*domain.Company, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	c, err := s.loadCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCompanyUnique(ctx, id, in); err != nil {
		return nil, err
	}

	old := toJSON(c)
	domainChanged := c.Domain != in.Domain
	c.Name, c.Domain, c.CompanyType, c.Description = in.Name, in.Domain, in.CompanyType, in.Description
	if err := s.repo.UpdateCompany(ctx, c); err != nil {
		return nil, mapMissing(err, "company", "failed to update company")
	}

	if domainChanged {
		s.invalidate(ctx)
	}
	s.record(ctx, actor, domain.AuditUpdate, "company", c.ID, old, toJSON(c),
		fmt.Sprintf("Updated company %q", c.Name))
	return c, nil
}

// DeleteCompany removes the company and its watchlist. Linked users are
// kept but lose their company.
func (s *Service) DeleteCompany(ctx context.Context, actor watchlist.Caller, id int64) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden()
	}
	c, err := s.loadCompany(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCompany(ctx, id); err != nil {
		return mapMissing(err, "company", "failed to delete company")
	}

	s.invalidate(ctx)
	s.record(ctx, actor, domain.AuditDelete, "company", id, toJSON(c), "",
		fmt.Sprintf("Deleted company %q", c.Name))
	s.logger.Info("company deleted", logger.Int64("company_id", id))
	return nil
}

func (s *Service) checkCompanyUnique(ctx context.Context, selfID int64, in CompanyInput) error {
	c, err := s.repo.GetCompanyByDomain(ctx, in.Domain)
	if err := uniqueErr(err, c != nil && c.ID != selfID, "company", "domain"); err != nil {
		return err
	}
	c, err = s.repo.GetCompanyByName(ctx, in.Name)
	return uniqueErr(err, c != nil && c.ID != selfID, "company", "name")
}

func (s *Service) loadCompany(ctx context.Context, id int64) (*domain.Company, error) {
	c, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return nil, mapMissing(err, "company", "failed to load company")
	}
	return c, nil
}

// ─────────────────────────────
// Users
// ─────────────────────────────

func (s *Service) ListUsers(ctx context.Context, actor watchlist.Caller, f domain.UserFilter) ([]*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	out, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out, nil
}

func (s *Service) GetUser(ctx context.Context, actor watchlist.Caller, id int64) (*domain.User, error) {
	if !actor.IsAdmin() && actor.UserID != id {
		return nil, apperr.Forbidden()
	}
	return s.loadUser(ctx, id)
}

// CreateUser adds an account. A member created without a company is
// linked to the company whose domain equals the email's domain, if any.
func (s *Service) CreateUser(ctx context.Context, actor watchlist.Caller, in CreateUserInput) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.checkUserUnique(ctx, 0, in.Username, in.Email); err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:  in.Username,
		Email:     in.Email,
		Role:      domain.Role(in.Role),
		CompanyID: in.CompanyID,
		IsActive:  in.IsActive == nil || *in.IsActive,
	}
	if err := s.resolveCompany(ctx, u); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = hash

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.record(ctx, actor, domain.AuditCreate, "user", u.ID, "", userJSON(u),
		fmt.Sprintf("Created user %q", u.Username))
	s.logger.Info("user created",
		logger.Int64("user_id", u.ID),
		logger.String("role", string(u.Role)),
		logger.Bool("linked", u.CompanyID != nil))
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, actor watchlist.Caller, id int64, in UpdateUserInput) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden()
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkUserUnique(ctx, id, in.Username, in.Email); err != nil {
		return nil, err
	}
	old := userJSON(u)

	if in.Username != "" {
		u.Username = in.Username
	}
	if in.Email != "" {
		u.Email = in.Email
	}
	if in.Role != "" {
		u.Role = domain.Role(in.Role)
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	switch {
	case in.Unlink:
		u.CompanyID = nil
	case in.CompanyID != nil:
		u.CompanyID = in.CompanyID
		if err := s.resolveCompany(ctx, u); err != nil {
			return nil, err
		}
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		u.PasswordHash = hash
	}

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, mapMissing(err, "user", "failed to update user")
	}

	// reload for the joined company domain
	if u, err = s.loadUser(ctx, id); err != nil {
		return nil, err
	}
	s.record(ctx, actor, domain.AuditUpdate, "user", u.ID, old, userJSON(u),
		fmt.Sprintf("Updated user %q", u.Username))
	return u, nil
}

// DeleteUser removes an account. Users cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor watchlist.Caller, id int64) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden()
	}
	if actor.UserID == id {
		return apperr.Conflict("You cannot delete your own account.")
	}
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return mapMissing(err, "user", "failed to delete user")
	}

	s.record(ctx, actor, domain.AuditDelete, "user", id, userJSON(u), "",
		fmt.Sprintf("Deleted user %q", u.Username))
	return nil
}

// resolveCompany checks an explicit company link, or derives one from the
// email domain for members.
func (s *Service) resolveCompany(ctx context.Context, u *domain.User) error {
	if u.CompanyID != nil {
		if _, err := s.loadCompany(ctx, *u.CompanyID); err != nil {
			return err
		}
		return nil
	}
	if u.Role != domain.RoleMember {
		return nil
	}
	d := domain.EmailDomain(u.Email)
	if d == "" {
		return nil
	}
	c, err := s.repo.GetCompanyByDomain(ctx, d)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up company by email domain: %w", err)
	}
	u.CompanyID = &c.ID
	return nil
}

func (s *Service) checkUserUnique(ctx context.Context, selfID int64, username, email string) error {
	if username != "" {
		u, err := s.repo.GetUserByUsername(ctx, username)
		if err := uniqueErr(err, u != nil && u.ID != selfID, "user", "username"); err != nil {
			return err
		}
	}
	if email != "" {
		u, err := s.repo.GetUserByEmail(ctx, email)
		if err := uniqueErr(err, u != nil && u.ID != selfID, "user", "email"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, mapMissing(err, "user", "failed to load user")
	}
	return u, nil
}

// ─────────────────────────────
// Helpers
// ─────────────────────────────

// uniqueErr turns a unique-column lookup into AlreadyExists when another
// row holds the value.
func uniqueErr(lookupErr error, clash bool, resource, field string) error {
	switch {
	case errors.Is(lookupErr, domain.ErrNotFound):
		return nil
	case lookupErr != nil:
		return fmt.Errorf("failed to check %s %s: %w", resource, field, lookupErr)
	case clash:
		return apperr.AlreadyExists(resource).WithDetail("field", field)
	}
	return nil
}

func mapMissing(err error, resource, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound(resource)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", logger.Error(err))
	}
}

func (s *Service) record(ctx context.Context, actor watchlist.Caller, action domain.AuditAction, resource string, id int64, oldV, newV, desc string) {
	if s.audit == nil {
		return
	}
	uid := actor.UserID
	s.audit.Record(ctx, &domain.AuditLog{
		UserID:       &uid,
		Action:       action,
		ResourceType: resource,
		ResourceID:   strconv.FormatInt(id, 10),
		Description:  desc,
		OldValues:    oldV,
		NewValues:    newV,
		Status:       domain.AuditSuccess,
	})
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// userJSON relies on domain.User hiding the password hash.
func userJSON(u *domain.User) string { return toJSON(u) }
