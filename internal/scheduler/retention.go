package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

// DefaultRetention is how long audit logs and read notifications are kept.
const DefaultRetention = 180 * 24 * time.Hour

type RetentionStore interface {
	DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionCollector purges old audit logs and read notifications.
type RetentionCollector struct {
	store     RetentionStore
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewRetentionCollector(store RetentionStore, log logger.Logger, interval, threshold time.Duration) *RetentionCollector {
	if threshold == 0 {
		threshold = DefaultRetention
	}
	return &RetentionCollector{
		store:     store,
		logger:    log,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

func (rc *RetentionCollector) Start(ctx context.Context) error {
	if _, err := rc.Collect(ctx); err != nil {
		rc.logger.Warn("initial retention run failed", logger.Error(err))
	}

	ticker := time.NewTicker(rc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := rc.Collect(ctx); err != nil {
					rc.logger.Error("retention run failed", logger.Error(err))
				}
			case <-rc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (rc *RetentionCollector) Stop() {
	rc.stopOnce.Do(func() { close(rc.stopCh) })
}

// Collect deletes rows older than the threshold and returns how many went.
// Both tables are attempted even when one fails.
func (rc *RetentionCollector) Collect(ctx context.Context) (int64, error) {
	cutoff := rc.now().Add(-rc.threshold)

	logs, errLogs := rc.store.DeleteAuditLogsBefore(ctx, cutoff)
	notes, errNotes := rc.store.DeleteReadNotificationsBefore(ctx, cutoff)
	if err := errors.Join(errLogs, errNotes); err != nil {
		return logs + notes, err
	}

	if total := logs + notes; total > 0 {
		rc.logger.Info("retention completed",
			logger.Int64("audit_logs_deleted", logs),
			logger.Int64("notifications_deleted", notes),
			logger.Duration("threshold", rc.threshold))
	} else {
		rc.logger.Debug("nothing to purge")
	}
	return logs + notes, nil
}
