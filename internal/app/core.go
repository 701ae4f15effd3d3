package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/breachwatch/internal/account"
	"github.com/MrSnakeDoc/breachwatch/internal/audit"
	"github.com/MrSnakeDoc/breachwatch/internal/auth"
	"github.com/MrSnakeDoc/breachwatch/internal/breach"
	"github.com/MrSnakeDoc/breachwatch/internal/cache"
	"github.com/MrSnakeDoc/breachwatch/internal/config"
	"github.com/MrSnakeDoc/breachwatch/internal/feeds"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/notify"
	"github.com/MrSnakeDoc/breachwatch/internal/redis"
	"github.com/MrSnakeDoc/breachwatch/internal/sources/seed"
	"github.com/MrSnakeDoc/breachwatch/internal/stats"
	redisstore "github.com/MrSnakeDoc/breachwatch/internal/store/redis"
	sqlstore "github.com/MrSnakeDoc/breachwatch/internal/store/sql"
	"github.com/MrSnakeDoc/breachwatch/internal/utils"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

// Core is everything a command needs besides the HTTP server: the store,
// the stats cache and the services built on top of them.
type Core struct {
	cfg    *config.Config
	logger logger.Logger

	Store       *sqlstore.Store
	RedisClient *goredis.Client // nil when the in-process cache is used
	CacheMode   string

	Audit         *audit.Recorder
	Hasher        *auth.BcryptHasher
	Stats         *stats.Service
	Watchlist     *watchlist.Service
	Breaches      *breach.Service
	Accounts      *account.Service
	Notifications *notify.Service
	Auth          *auth.Service
	Importer      *feeds.Importer
}

// OpenCore connects to the database (and Redis when configured) and wires
// the services. Migrations are applied when migrate is set.
func OpenCore(ctx context.Context, cfg *config.Config, log logger.Logger, migrate bool) (*Core, error) {
	log.Info("connecting to database", logger.String("driver", cfg.DBDriver))
	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:          sqlstore.Dialect(cfg.DBDriver),
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if migrate {
		applied, err := store.Migrate(ctx)
		if err != nil {
			utils.MustClose(store, "database", log)
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", logger.Strings("files", applied))
		}
	}

	c := &Core{cfg: cfg, logger: log, Store: store}

	var statsCache stats.Cache
	if cfg.RedisAddr != "" {
		log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		c.RedisClient, err = redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			utils.MustClose(store, "database", log)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		statsCache = redisstore.NewStatsCache(c.RedisClient, cfg.StatsCacheTTL)
		c.CacheMode = "redis"
	} else {
		log.Info("no redis configured, using in-process stats cache")
		statsCache = cache.NewMemory(cfg.StatsCacheTTL)
		c.CacheMode = "memory"
	}

	c.Audit = audit.NewRecorder(store, log)
	c.Hasher = auth.NewBcryptHasher(cfg.BcryptCost)
	c.Stats = stats.NewService(store, statsCache, log)
	c.Watchlist = watchlist.NewService(store, c.Stats, c.Audit, log)
	c.Breaches = breach.NewService(store, c.Stats, c.Audit, log)
	c.Accounts = account.NewService(store, c.Hasher, c.Stats, c.Audit, log)
	c.Notifications = notify.NewService(store, log)
	c.Auth = auth.NewService(store, c.Hasher, auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL), c.Audit, log)
	c.Importer = feeds.NewImporter(store, feeds.Default(), c.Stats, c.Breaches, c.Audit, log)
	return c, nil
}

// Seed loads, validates and applies a seed file.
func (c *Core) Seed(ctx context.Context, path string) (*seed.Summary, error) {
	f, err := seed.NewLoader(path).Load()
	if err != nil {
		return nil, err
	}
	plan, err := seed.NewMapper().Map(f)
	if err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return seed.NewApplier(c.Store, c.Hasher, c.Stats, c.logger).Apply(ctx, plan)
}

func (c *Core) Close() {
	if c.RedisClient != nil {
		utils.MustClose(c.RedisClient, "redis", c.logger)
	}
	utils.MustClose(c.Store, "database", c.logger)
}
