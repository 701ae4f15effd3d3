package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
)

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type healthzResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	CacheMode     string    `json:"cache_mode,omitempty"`
	Build         buildInfo `json:"build"`
}

// Healthz is liveness only and never touches a dependency.
func Healthz(d deps.Deps) http.HandlerFunc {
	build := buildInfo{Version: d.Version, Commit: d.Commit, BuildDate: d.BuildDate, GoVersion: d.GoVersion}
	return func(w http.ResponseWriter, r *http.Request) {
		respond.OK(w, healthzResponse{
			Status:        "ok",
			UptimeSeconds: d.Now().Sub(d.StartTime).Round(time.Millisecond).Seconds(),
			CacheMode:     d.CacheMode,
			Build:         build,
		})
	}
}
