package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/account"
	"github.com/MrSnakeDoc/breachwatch/internal/audit"
	"github.com/MrSnakeDoc/breachwatch/internal/auth"
	"github.com/MrSnakeDoc/breachwatch/internal/breach"
	"github.com/MrSnakeDoc/breachwatch/internal/export"
	"github.com/MrSnakeDoc/breachwatch/internal/feeds"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/notify"
	"github.com/MrSnakeDoc/breachwatch/internal/stats"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

// Pinger is a component /readyz and /infra can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FeedStatus reports the last feed import, nil when none ran yet.
type FeedStatus interface {
	Last() *feeds.Result
}

type Deps struct {
	Logger            logger.Logger
	StartTime         time.Time
	Version           string
	Commit            string
	BuildDate         string
	GoVersion         string
	TimeNow           func() time.Time // for testing, defaults to time.Now
	AllowedHosts      []string         // Host headers allowed to call /reload
	AllowedCIDRS      []string         // IPs allowed to access ops endpoints
	TrustProxy        bool             // true if running behind a trusted reverse proxy
	CORSOrigins       []string         // browser origins allowed to call /api
	LoginBurst        int              // login attempts per client IP before throttling
	LoginRefillPerMin int              // login attempts regained per minute

	DB        Pinger     // primary database
	Cache     Pinger     // stats cache, nil for the in-process cache
	CacheMode string     // "redis" | "memory"
	Feed      FeedStatus // nil if no feed file is configured

	Auth          *auth.Service
	Watchlist     *watchlist.Service
	Breaches      *breach.Service
	Stats         *stats.Service
	Accounts      *account.Service
	Notifications *notify.Service
	Audit         *audit.Recorder
	Exporters     *export.Registry

	ReloadTrigger chan struct{} // manual feed import, nil if feeds are disabled
}

// Now returns d.TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
