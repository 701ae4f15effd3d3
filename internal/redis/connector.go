package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/validation"
)

// ConnectOptions defines the Redis connection and its retry behavior.
type ConnectOptions struct {
	Addr     string `validate:"required"`
	User     string
	Password string
	RedisDB  int `validate:"gte=0"`

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int `validate:"gte=0"`

	// ConnectTimeout bounds all attempts together. The wait between attempts
	// starts at RetryInterval and doubles up to MaxWait.
	ConnectTimeout time.Duration `validate:"gt=0"`
	RetryInterval  time.Duration `validate:"gt=0"`
	MaxWait        time.Duration `validate:"gt=0"`
	PingTimeout    time.Duration `validate:"gt=0"`

	// WarnThreshold is how many failed attempts are logged as warnings
	// before they are logged as errors.
	WarnThreshold int `validate:"gte=0"`
}

// Backoff returns the wait after the given failed attempt (1-based):
// initial doubled per attempt, capped at maxWait.
func Backoff(initial, maxWait time.Duration, attempt int) time.Duration {
	wait := initial
	for i := 1; i < attempt && wait < maxWait; i++ {
		wait *= 2
	}
	return min(wait, maxWait)
}

// New creates the Redis client backing the statistics cache, retrying with
// exponential backoff until ConnectTimeout is reached or ctx is cancelled.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := validation.Struct(opts); err != nil {
		log.Error("invalid redis connect options", logger.Error(err))
		return nil, fmt.Errorf("redis options: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	c := &connector{client: client, opts: opts, log: log.With(logger.String("addr", opts.Addr))}
	if err := c.connect(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type connector struct {
	client *redis.Client
	opts   ConnectOptions
	log    logger.Logger
}

func (c *connector) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	defer cancel()
	return c.client.Ping(pingCtx).Err()
}

func (c *connector) connect(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, c.opts.ConnectTimeout)
	defer cancel()

	start := time.Now()
	c.log.Info("connecting to redis stats cache", logger.Duration("timeout", c.opts.ConnectTimeout))

	for attempt := 1; ; attempt++ {
		err := c.ping(ctx)
		if err == nil {
			if attempt > 1 {
				c.log.Warn("connected to redis after retry",
					logger.Int("attempts", attempt),
					logger.Duration("elapsed", time.Since(start)))
			} else {
				c.log.Info("connected to redis")
			}
			return nil
		}

		wait := Backoff(c.opts.RetryInterval, c.opts.MaxWait, attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.log.Error("redis unavailable - failed to connect after timeout",
				logger.Int("attempts", attempt),
				logger.Duration("timeout", c.opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
				c.opts.Addr, attempt, c.opts.ConnectTimeout, err)
		case <-timer.C:
			c.logRetry(ctx, attempt, wait, err)
		}
	}
}

func (c *connector) logRetry(ctx context.Context, attempt int, wait time.Duration, err error) {
	fields := []logger.Field{
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", wait),
		logger.Error(err),
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < 10*time.Second {
		c.log.Error("redis still down - retrying but timeout approaching",
			append(fields, logger.Duration("remaining", time.Until(deadline)))...)
		return
	}
	if attempt <= c.opts.WarnThreshold {
		c.log.Warn("redis connection failed, retrying", fields...)
		return
	}
	c.log.Error("redis still unavailable - connection attempts failing", fields...)
}
