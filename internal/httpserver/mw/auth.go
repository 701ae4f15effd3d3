package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

// Authenticator turns a bearer token into an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*domain.User, error)
}

// CallerResolver loads the watchlist scope of a user.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, user *domain.User) (watchlist.Caller, error)
}

type callerKey struct{}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c watchlist.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the authenticated caller of the request.
func CallerFrom(ctx context.Context) (watchlist.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(watchlist.Caller)
	return c, ok
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// resolves the caller's watchlist once per request.
func Authenticate(authn Authenticator, resolver CallerResolver, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				respond.Fail(w, apperr.Unauthorized("Authentication required."))
				return
			}

			user, err := authn.Authenticate(r.Context(), raw)
			if err != nil {
				respond.Error(w, r, log, err)
				return
			}

			caller, err := resolver.ResolveCaller(r.Context(), user)
			if err != nil {
				respond.Error(w, r, log, err)
				return
			}

			noteUser(r.Context(), caller.Username)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFrom(r.Context())
		if !ok || !c.IsAdmin() {
			respond.Fail(w, apperr.Forbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
