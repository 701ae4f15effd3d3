package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
)

func init() { Register(registerNotifications) }

func registerNotifications(r chi.Router, d deps.Deps) {
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(authenticated(d))
		r.Get("/", handlers.ListNotifications(d))
		r.Post("/read-all", handlers.MarkAllNotificationsRead(d))
		r.Post("/{id}/read", handlers.MarkNotificationRead(d))
	})
}
