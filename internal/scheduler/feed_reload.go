package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/feeds"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

// FeedImporter is satisfied by *feeds.Importer.
type FeedImporter interface {
	Import(ctx context.Context, path, format string) (*feeds.Result, error)
}

// FeedReloader re-imports a feed file periodically and on manual trigger.
type FeedReloader struct {
	importer      FeedImporter
	path          string
	format        string
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}

	mu       sync.Mutex
	lastMod  time.Time
	lastSize int64
	last     *feeds.Result
}

func NewFeedReloader(
	importer FeedImporter,
	path, format string,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *FeedReloader {
	return &FeedReloader{
		importer:      importer,
		path:          path,
		format:        format,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start imports once, then keeps watching until Stop or ctx is done.
// A failing first import is logged, not fatal: the file may appear later.
func (fr *FeedReloader) Start(ctx context.Context) error {
	if fr.interval <= 0 {
		return fmt.Errorf("feed reload interval must be positive, got %s", fr.interval)
	}

	if _, err := fr.Reload(ctx, false); err != nil {
		fr.logger.Warn("initial feed import failed", logger.String("file", fr.path), logger.Error(err))
	}

	ticker := time.NewTicker(fr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := fr.Reload(ctx, false); err != nil {
					fr.logger.Error("failed to import feed", logger.Error(err))
				}
			case <-fr.manualTrigger:
				fr.logger.Info("manual feed import triggered")
				if _, err := fr.Reload(ctx, true); err != nil {
					fr.logger.Error("failed to import feed", logger.Error(err))
				}
			case <-fr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (fr *FeedReloader) Stop() {
	fr.stopOnce.Do(func() { close(fr.stopCh) })
}

// Reload imports the file when its size or mtime changed since the last
// successful import, or always when force is set. A nil result means the
// file was unchanged.
func (fr *FeedReloader) Reload(ctx context.Context, force bool) (*feeds.Result, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	info, err := os.Stat(fr.path)
	if err != nil {
		return nil, fmt.Errorf("stat feed file: %w", err)
	}
	if !force && info.ModTime().Equal(fr.lastMod) && info.Size() == fr.lastSize {
		fr.logger.Debug("feed file unchanged", logger.String("file", fr.path))
		return nil, nil
	}

	res, err := fr.importer.Import(ctx, fr.path, fr.format)
	if err != nil {
		return nil, err
	}
	fr.lastMod = info.ModTime()
	fr.lastSize = info.Size()
	fr.last = res
	return res, nil
}

// Last returns the result of the most recent import, nil before the first.
func (fr *FeedReloader) Last() *feeds.Result {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.last
}
