package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/feeds"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	sqlstore "github.com/MrSnakeDoc/breachwatch/internal/store/sql"
)

type countingImporter struct {
	calls int
	err   error
}

func (c *countingImporter) Import(_ context.Context, path, format string) (*feeds.Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &feeds.Result{File: path, Format: format, Inserted: 1}, nil
}

func TestFeedReloaderSkipsUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	if err := os.WriteFile(path, []byte("username,domain\nbob,acme.io\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	imp := &countingImporter{}
	fr := NewFeedReloader(imp, path, "csv", logger.New("error", false), time.Hour, nil)
	ctx := context.Background()

	res, err := fr.Reload(ctx, false)
	if err != nil || res == nil {
		t.Fatalf("first Reload() = %v, %v", res, err)
	}

	res, err = fr.Reload(ctx, false)
	if err != nil {
		t.Fatalf("second Reload() error = %v", err)
	}
	if res != nil || imp.calls != 1 {
		t.Errorf("unchanged file was imported again (calls=%d)", imp.calls)
	}

	if _, err := fr.Reload(ctx, true); err != nil {
		t.Fatalf("forced Reload() error = %v", err)
	}
	if imp.calls != 2 {
		t.Errorf("forced reload calls = %d, want 2", imp.calls)
	}

	if err := os.WriteFile(path, []byte("username,domain\nbob,acme.io\ncarol,acme.io\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := fr.Reload(ctx, false); err != nil {
		t.Fatalf("Reload() after change error = %v", err)
	}
	if imp.calls != 3 {
		t.Errorf("changed file calls = %d, want 3", imp.calls)
	}
	if fr.Last() == nil || fr.Last().Inserted != 1 {
		t.Errorf("Last() = %+v", fr.Last())
	}
}

func TestFeedReloaderRetriesAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	if err := os.WriteFile(path, []byte(`{"username":"bob"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	imp := &countingImporter{err: errors.New("db down")}
	fr := NewFeedReloader(imp, path, "jsonl", logger.New("error", false), time.Hour, nil)
	ctx := context.Background()

	if _, err := fr.Reload(ctx, false); err == nil {
		t.Fatal("expected import error")
	}
	imp.err = nil
	if _, err := fr.Reload(ctx, false); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if imp.calls != 2 {
		t.Errorf("calls = %d, want 2: a failed import must not mark the file as seen", imp.calls)
	}
}

func TestFeedReloaderMissingFile(t *testing.T) {
	fr := NewFeedReloader(&countingImporter{}, "/nonexistent/feed.csv", "csv", logger.New("error", false), time.Hour, nil)
	if _, err := fr.Reload(context.Background(), false); err == nil {
		t.Error("Reload() with missing file should return error")
	}
}

func TestFeedReloaderManualTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	if err := os.WriteFile(path, []byte("username\nbob\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	trigger := make(chan struct{}, 1)
	imp := &countingImporter{}
	fr := NewFeedReloader(imp, path, "csv", logger.New("error", false), time.Hour, trigger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := fr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer fr.Stop()

	trigger <- struct{}{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fr.mu.Lock()
		calls := imp.calls
		fr.mu.Unlock()
		if calls == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("manual trigger did not force an import")
}

func TestRetentionCollector_Collect(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.Options{Driver: sqlstore.DialectSQLite, DSN: ":memory:"}, logger.New("error", false))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
	if _, err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{10 * 24 * time.Hour, 200 * 24 * time.Hour} {
		l := &domain.AuditLog{RequestID: "r", Action: domain.AuditLogin, ResourceType: "user", Status: "success", CreatedAt: now.Add(-age)}
		if err := store.InsertAuditLog(ctx, l); err != nil {
			t.Fatalf("InsertAuditLog() error = %v", err)
		}
	}

	rc := NewRetentionCollector(store, logger.New("error", false), time.Hour, 0)
	rc.now = func() time.Time { return now }

	n, err := rc.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Collect() deleted %d rows, want 1", n)
	}

	logs, total, err := store.ListAuditLogs(ctx, domain.AuditFilter{})
	if err != nil {
		t.Fatalf("ListAuditLogs() error = %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Errorf("remaining logs = %d, want 1", total)
	}
}

type failingRetention struct{ notes int64 }

func (failingRetention) DeleteAuditLogsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("locked")
}

func (f failingRetention) DeleteReadNotificationsBefore(context.Context, time.Time) (int64, error) {
	return f.notes, nil
}

func TestRetentionCollectorKeepsGoingOnError(t *testing.T) {
	rc := NewRetentionCollector(failingRetention{notes: 3}, logger.New("error", false), time.Hour, time.Hour)
	n, err := rc.Collect(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 3 {
		t.Errorf("Collect() = %d, want 3", n)
	}
}
