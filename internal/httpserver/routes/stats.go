package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
)

func init() { Register(registerStats) }

func registerStats(r chi.Router, d deps.Deps) {
	r.Route("/api/stats", func(r chi.Router) {
		r.Use(authenticated(d))
		r.Get("/analysis", handlers.Analysis(d))
		r.Get("/dashboard", handlers.Dashboard(d))
	})
}
