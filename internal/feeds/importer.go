package feeds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

const DefaultBatchSize = 500

type Store interface {
	// InsertBreaches returns the records actually inserted; records whose
	// external id is already stored are skipped.
	InsertBreaches(ctx context.Context, records []*domain.BreachRecord) ([]*domain.BreachRecord, error)
}

// Notifier is told about newly inserted records.
type Notifier interface {
	Notify(ctx context.Context, records []*domain.BreachRecord)
}

// Result counts one import.
type Result struct {
	File       string        `json:"file"`
	Format     string        `json:"format"`
	Read       int           `json:"read"`
	Inserted   int           `json:"inserted"`
	Invalid    int           `json:"invalid"`
	Duplicates int           `json:"duplicates"`
	Took       time.Duration `json:"took"`
}

type Importer struct {
	store     Store
	parsers   *Registry
	cache     watchlist.Invalidator
	notifier  Notifier
	audit     watchlist.Auditor
	logger    logger.Logger
	batchSize int
}

func NewImporter(store Store, parsers *Registry, cache watchlist.Invalidator, notifier Notifier, audit watchlist.Auditor, log logger.Logger) *Importer {
	return &Importer{
		store:     store,
		parsers:   parsers,
		cache:     cache,
		notifier:  notifier,
		audit:     audit,
		logger:    log,
		batchSize: DefaultBatchSize,
	}
}

// FormatFor returns format, or the file extension when format is empty.
func FormatFor(path, format string) string {
	if f := strings.ToLower(strings.TrimSpace(format)); f != "" {
		return f
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Import parses path and inserts its valid rows. Rows with neither a
// username nor a domain are counted as invalid and skipped.
func (im *Importer) Import(ctx context.Context, path, format string) (*Result, error) {
	start := time.Now()
	format = FormatFor(path, format)
	p, ok := im.parsers.Get(format)
	if !ok {
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	rows, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s feed: %w", format, err)
	}

	res := &Result{File: path, Format: format, Read: len(rows)}
	valid := make([]*domain.BreachRecord, 0, len(rows))
	for _, r := range rows {
		r.Normalize()
		if r.Username == "" && r.Domain == "" {
			res.Invalid++
			continue
		}
		valid = append(valid, r)
	}

	var inserted []*domain.BreachRecord
	for i := 0; i < len(valid); i += im.batchSize {
		end := min(i+im.batchSize, len(valid))
		batch, err := im.store.InsertBreaches(ctx, valid[i:end])
		if err != nil {
			return nil, fmt.Errorf("insert batch at row %d: %w", i, err)
		}
		inserted = append(inserted, batch...)
	}
	res.Inserted = len(inserted)
	res.Duplicates = len(valid) - len(inserted)
	res.Took = time.Since(start)

	if res.Inserted > 0 {
		im.invalidate(ctx)
		if im.notifier != nil {
			im.notifier.Notify(ctx, inserted)
		}
	}
	im.record(ctx, res)

	im.logger.Info("feed imported",
		logger.String("file", path),
		logger.String("format", format),
		logger.Int("read", res.Read),
		logger.Int("inserted", res.Inserted),
		logger.Int("invalid", res.Invalid),
		logger.Int("duplicates", res.Duplicates),
		logger.Duration("took", res.Took))
	return res, nil
}

func (im *Importer) invalidate(ctx context.Context) {
	if im.cache == nil {
		return
	}
	if err := im.cache.Invalidate(ctx); err != nil {
		im.logger.Warn("failed to invalidate stats cache", logger.Error(err))
	}
}

func (im *Importer) record(ctx context.Context, res *Result) {
	if im.audit == nil {
		return
	}
	im.audit.Record(ctx, &domain.AuditLog{
		Action:       domain.AuditImport,
		ResourceType: "breach_record",
		Description: fmt.Sprintf("Imported %d of %d rows from %s (%d invalid, %d duplicates)",
			res.Inserted, res.Read, filepath.Base(res.File), res.Invalid, res.Duplicates),
		Status: domain.AuditSuccess,
	})
}
