package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/mw"
)

func init() { Register(registerCompanies) }

// Members may read their own company and manage its watchlist; the
// services enforce that. Everything else is admin-only.
func registerCompanies(r chi.Router, d deps.Deps) {
	r.Route("/api/companies", func(r chi.Router) {
		r.Use(authenticated(d))
		r.Get("/{id}", handlers.GetCompany(d))
		r.Get("/{id}/watchlist", handlers.ListWatchlist(d))
		r.Post("/{id}/watchlist", handlers.AddWatchlistEntry(d))
		r.Delete("/{id}/watchlist/{entryID}", handlers.RemoveWatchlistEntry(d))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin)
			r.Get("/", handlers.ListCompanies(d))
			r.Post("/", handlers.CreateCompany(d))
			r.Put("/{id}", handlers.UpdateCompany(d))
			r.Delete("/{id}", handlers.DeleteCompany(d))
		})
	})
}
