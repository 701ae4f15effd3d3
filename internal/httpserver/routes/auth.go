package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/mw"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:           d.LoginBurst,
		RefillPerMinute: d.LoginRefillPerMin,
		MaxEntries:      10000,
		TrustProxy:      d.TrustProxy,
	})
	r.With(limit).Post("/api/auth/login", handlers.Login(d))
	r.With(authenticated(d)).Get("/api/me", handlers.Me(d))
}
