package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/mw"
)

func init() { Register(registerUsers) }

func registerUsers(r chi.Router, d deps.Deps) {
	r.Route("/api/users", func(r chi.Router) {
		r.Use(authenticated(d), mw.RequireAdmin)
		r.Get("/", handlers.ListUsers(d))
		r.Post("/", handlers.CreateUser(d))
		r.Get("/{id}", handlers.GetUser(d))
		r.Put("/{id}", handlers.UpdateUser(d))
		r.Delete("/{id}", handlers.DeleteUser(d))
	})

	r.With(authenticated(d), mw.RequireAdmin).Get("/api/audit", handlers.ListAuditLogs(d))
}
