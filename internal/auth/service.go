// Package auth verifies credentials and access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/validation"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

const (
	invalidCredentials = "Invalid username or password."
	invalidSession     = "Authentication required."
)

// dummyHash is compared against when the user does not exist so both paths
// cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("breachwatch"), bcrypt.MinCost)

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

type LoginInput struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

type Service struct {
	users  UserStore
	hasher *BcryptHasher
	tokens *Tokens
	audit  watchlist.Auditor
	logger logger.Logger
	now    func() time.Time
}

func NewService(users UserStore, hasher *BcryptHasher, tokens *Tokens, audit watchlist.Auditor, log logger.Logger) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens, audit: audit, logger: log, now: time.Now}
}

// Login checks the credentials of an active user, stamps last_login and
// returns a signed access token. Unknown users, wrong passwords and
// disabled accounts all produce the same error.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if u == nil {
		s.hasher.Compare(string(dummyHash), in.Password)
		s.recordLogin(ctx, nil, in.Username, "unknown user")
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if !s.hasher.Compare(u.PasswordHash, in.Password) {
		s.recordLogin(ctx, u, in.Username, "wrong password")
		return nil, apperr.Unauthorized(invalidCredentials)
	}
	if !u.IsActive {
		s.recordLogin(ctx, u, in.Username, "account disabled")
		return nil, apperr.Unauthorized(invalidCredentials)
	}

	at := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, u.ID, at); err != nil {
		return nil, fmt.Errorf("failed to stamp last login: %w", err)
	}
	u.LastLogin = &at

	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.recordLogin(ctx, u, in.Username, "")
	s.logger.Info("user logged in",
		logger.Int64("user_id", u.ID),
		logger.String("role", string(u.Role)))
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Authenticate resolves a bearer token to its active user. The user is
// reloaded on every call so role and company changes apply immediately.
func (s *Service) Authenticate(ctx context.Context, raw string) (*domain.User, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, apperr.Unauthorized(invalidSession).WithCause(err)
	}
	id, _ := claims.UserID()

	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.Unauthorized(invalidSession)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !u.IsActive {
		return nil, apperr.Unauthorized(invalidSession)
	}
	return u, nil
}

func (s *Service) recordLogin(ctx context.Context, u *domain.User, username, failure string) {
	if s.audit == nil {
		return
	}
	entry := &domain.AuditLog{
		Action:       domain.AuditLogin,
		ResourceType: "user",
		Status:       domain.AuditSuccess,
		Description:  fmt.Sprintf("Login for %q", username),
	}
	if u != nil {
		uid := u.ID
		entry.UserID = &uid
		entry.ResourceID = strconv.FormatInt(u.ID, 10)
	}
	if failure != "" {
		entry.Status = domain.AuditFailure
		entry.ErrorMessage = failure
	}
	s.audit.Record(ctx, entry)
}
