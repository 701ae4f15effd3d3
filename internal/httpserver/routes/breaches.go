package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/mw"
)

func init() { Register(registerBreaches) }

func registerBreaches(r chi.Router, d deps.Deps) {
	r.Route("/api/breaches", func(r chi.Router) {
		r.Use(authenticated(d))
		r.Get("/", handlers.ListBreaches(d))
		r.Get("/export", handlers.ExportBreaches(d))
		r.Get("/{id}", handlers.GetBreach(d))
		r.Post("/{id}/mark", handlers.ToggleBreachMark(d))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin)
			r.Post("/", handlers.CreateBreach(d))
			r.Put("/{id}", handlers.UpdateBreach(d))
			r.Delete("/{id}", handlers.DeleteBreach(d))
		})
	})

	r.With(authenticated(d)).Get("/api/search", handlers.Search(d))
}
