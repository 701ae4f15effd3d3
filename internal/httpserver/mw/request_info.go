package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/breachwatch/internal/audit"
	"github.com/MrSnakeDoc/breachwatch/internal/utils"
)

const maxRequestIDLen = 64

// RequestInfo assigns every request an id (an incoming X-Request-ID is kept
// when it is short enough), echoes it back, and attaches the id, client ip and
// user agent to the context for audit records.
func RequestInfo(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(middleware.RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
			ctx = audit.WithRequest(ctx, audit.RequestInfo{
				ID:        id,
				IP:        utils.ClientIP(r, trustProxy),
				UserAgent: r.UserAgent(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
