package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Mode       string `json:"mode,omitempty"`
	Impact     string `json:"impact,omitempty"`
	LastImport string `json:"last_import,omitempty"`
	Inserted   *int   `json:"inserted,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		components := map[string]componentStatus{
			"database": checkDatabase(r.Context(), d),
			"cache":    checkCache(r.Context(), d),
			"feed":     feedStatus(d),
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(infraResponse{
			Status:     overallStatus(components),
			Components: components,
		})
	}
}

// overallStatus is "critical" without a database and "degraded" when only
// the shared cache is down.
func overallStatus(components map[string]componentStatus) string {
	if db, ok := components["database"]; ok && !db.OK {
		return "critical"
	}
	if c, ok := components["cache"]; ok && !c.OK {
		return "degraded"
	}
	return "operational"
}

func checkDatabase(ctx context.Context, d deps.Deps) componentStatus {
	if d.DB == nil {
		return componentStatus{Error: "not initialized"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := d.DB.Ping(ctx); err != nil {
		return componentStatus{Error: "unreachable"}
	}
	return componentStatus{OK: true}
}

func checkCache(ctx context.Context, d deps.Deps) componentStatus {
	if d.Cache == nil {
		return componentStatus{OK: true, Mode: "memory", Impact: "per-process statistics cache"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := d.Cache.Ping(ctx); err != nil {
		return componentStatus{Mode: d.CacheMode, Impact: "statistics computed on every request", Error: "timeout"}
	}
	return componentStatus{OK: true, Mode: d.CacheMode}
}

func feedStatus(d deps.Deps) componentStatus {
	if d.Feed == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	last := d.Feed.Last()
	if last == nil {
		return componentStatus{OK: true, Mode: "file", LastImport: "never"}
	}
	inserted := last.Inserted
	return componentStatus{
		OK:         true,
		Mode:       "file",
		LastImport: last.File,
		Inserted:   &inserted,
	}
}
