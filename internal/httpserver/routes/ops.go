package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/handlers"
)

func init() { Register(registerOps) }

func registerOps(r chi.Router, d deps.Deps) {
	ops := r.With(opsOnly(d))
	ops.Get("/healthz", handlers.Healthz(d))
	ops.Get("/readyz", handlers.Readyz(d))
	ops.Get("/infra", handlers.Infra(d))
}
