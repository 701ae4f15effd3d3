package stats

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/breachwatch/internal/cache"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

// memStore evaluates the aggregates over a slice using the in-memory form of
// the scope.
type memStore struct {
	records []*domain.BreachRecord
	calls   int
}

func (m *memStore) visible(scope watchlist.Scope, w domain.Window) []*domain.BreachRecord {
	out := make([]*domain.BreachRecord, 0, len(m.records))
	for _, r := range m.records {
		if !scope.Matches(r) {
			continue
		}
		if !w.Since.IsZero() && r.CreatedAt.Before(w.Since) {
			continue
		}
		if !w.Until.IsZero() && !r.CreatedAt.Before(w.Until) {
			continue
		}
		if len(w.Types) > 0 && !contains(w.Types, r.Type) {
			continue
		}
		if w.Marked != nil && r.IsMarked != *w.Marked {
			continue
		}
		out = append(out, r)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (m *memStore) CountBreaches(_ context.Context, scope watchlist.Scope, w domain.Window) (int64, error) {
	m.calls++
	return int64(len(m.visible(scope, w))), nil
}

func (m *memStore) GroupCount(_ context.Context, scope watchlist.Scope, column string, w domain.Window, limit int) ([]domain.KeyCount, error) {
	m.calls++
	counts := map[string]int64{}
	for _, r := range m.visible(scope, w) {
		var v string
		switch column {
		case "type":
			v = r.Type
		case "source":
			v = r.Source
		case "domain":
			v = r.Domain
		}
		if v != "" {
			counts[v]++
		}
	}
	out := make([]domain.KeyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, domain.KeyCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DailyCounts(_ context.Context, scope watchlist.Scope, since time.Time) ([]domain.KeyCount, error) {
	m.calls++
	counts := map[string]int64{}
	for _, r := range m.visible(scope, domain.Window{Since: since}) {
		counts[r.CreatedAt.UTC().Format("2006-01-02")]++
	}
	out := make([]domain.KeyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, domain.KeyCount{Key: k, Count: n})
	}
	return out, nil
}

func (m *memStore) RecentBreaches(_ context.Context, scope watchlist.Scope, limit int) ([]*domain.BreachRecord, error) {
	m.calls++
	out := m.visible(scope, domain.Window{})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, any) (bool, error) { return false, errors.New("down") }
func (brokenCache) Set(context.Context, string, any) error         { return errors.New("down") }
func (brokenCache) Invalidate(context.Context) error               { return errors.New("down") }

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 0, 0, 0, time.UTC)
}

func fixture() *memStore {
	return &memStore{records: []*domain.BreachRecord{
		{ID: 1, Domain: "a.com", Username: "u1@a.com", Type: "combolist", Source: "feed-a", CreatedAt: at(time.October, 1, 9)},
		{ID: 2, Domain: "a.com", Username: "u2@a.com", Type: "combolist", Source: "feed-a", CreatedAt: at(time.October, 5, 9)},
		{ID: 3, Domain: "b.com", Username: "u3@b.com", Type: "combolist", Source: "feed-b", CreatedAt: at(time.October, 19, 8), IsMarked: true},
		{ID: 4, Domain: "a.com", Username: "u4@a.com", Type: "stealer", Source: "feed-b", CreatedAt: at(time.September, 15, 9)},
		{ID: 5, Domain: "a.com", Username: "u5@a.com", Type: "pastebin", CreatedAt: at(time.October, 18, 9)},
		{ID: 6, Domain: "c.com", Username: "u6@c.com", Type: "pastebin", Source: "feed-a", CreatedAt: at(time.August, 10, 9)},
	}}
}

var (
	admin    = watchlist.Caller{UserID: 1, Role: domain.RoleAdmin}
	companyA = int64(10)
	memberA  = watchlist.Caller{UserID: 2, Role: domain.RoleMember, CompanyID: &companyA, Domain: "a.com"}
	now      = at(time.October, 19, 12)
)

func TestAnalysisAdmin(t *testing.T) {
	svc := NewService(fixture(), nil, logger.Nop())

	a, err := svc.Analysis(context.Background(), admin)
	require.NoError(t, err)

	assert.EqualValues(t, 6, a.Total)
	assert.Empty(t, a.Domain)
	assert.Equal(t, map[string]int64{"combolist": 3, "stealer": 1, "pastebin": 2}, a.ByType)
	assert.Equal(t, map[string]int64{"feed-a": 3, "feed-b": 2}, a.BySource)
	assert.Equal(t, []domain.KeyCount{{Key: "a.com", Count: 4}, {Key: "b.com", Count: 1}, {Key: "c.com", Count: 1}}, a.ByDomain)
	assert.EqualValues(t, 1, a.MarkedCount)
	require.Len(t, a.Recent, 6)
	assert.EqualValues(t, 3, a.Recent[0].ID)
}

func TestAnalysisMemberIsScoped(t *testing.T) {
	svc := NewService(fixture(), nil, logger.Nop())

	a, err := svc.Analysis(context.Background(), memberA)
	require.NoError(t, err)

	assert.Equal(t, "a.com", a.Domain)
	assert.EqualValues(t, 4, a.Total)
	assert.Equal(t, []domain.KeyCount{{Key: "a.com", Count: 4}}, a.ByDomain)
	assert.Zero(t, a.MarkedCount)
}

func TestAnalysisUnlinkedMemberSeesNothing(t *testing.T) {
	svc := NewService(fixture(), nil, logger.Nop())

	a, err := svc.Analysis(context.Background(), watchlist.Caller{UserID: 3, Role: domain.RoleMember})
	require.NoError(t, err)
	assert.Zero(t, a.Total)
	assert.Empty(t, a.ByType)
	assert.Empty(t, a.Recent)
}

func TestDashboardCards(t *testing.T) {
	svc := NewService(fixture(), nil, logger.Nop())

	d, err := svc.Dashboard(context.Background(), admin, now)
	require.NoError(t, err)

	assert.Equal(t, Card{
		Count: 6, ThisMonth: 4, PreviousMonth: 1, Change: 5,
		ChangeText: "+5 since Sep 2026", ChangePercent: 300,
	}, d.Total)
	assert.Equal(t, Card{
		Count: 3, ThisMonth: 3, PreviousMonth: 0, Change: 3,
		ChangeText: "+3 since Sep 2026", ChangePercent: 100,
	}, d.Consumer)
	assert.Equal(t, Card{
		Count: 1, ThisMonth: 0, PreviousMonth: 1, Change: 0,
		ChangeText: "↔ Stable", ChangePercent: -100,
	}, d.Corporate)

	assert.Equal(t, map[string]int64{"combolist": 3, "pastebin": 1}, d.RecentExposure)
	assert.Equal(t, map[string]int64{"consumer": 3, "corporate": 1}, d.CategoryDistribution)
	assert.Equal(t, map[string]int64{"combolist": 3, "stealer": 1, "pastebin": 2}, d.TypeDistribution)
	assert.Len(t, d.LatestEvents, 6)
}

func TestDashboardChart(t *testing.T) {
	svc := NewService(fixture(), nil, logger.Nop())

	d, err := svc.Dashboard(context.Background(), admin, now)
	require.NoError(t, err)

	require.Len(t, d.ChartLabels, 30)
	require.Len(t, d.ChartData, 30)
	assert.Equal(t, "09/20", d.ChartLabels[0])
	assert.Equal(t, "10/19", d.ChartLabels[29])

	var sum int64
	for _, n := range d.ChartData {
		sum += n
	}
	assert.EqualValues(t, 4, sum)
	assert.EqualValues(t, 1, d.ChartData[11]) // Oct 1
	assert.EqualValues(t, 1, d.ChartData[29]) // today
}

func TestResultsAreCachedUntilInvalidated(t *testing.T) {
	store := fixture()
	mem := cache.NewMemory(time.Minute)
	svc := NewService(store, mem, logger.Nop())
	ctx := context.Background()

	first, err := svc.Analysis(ctx, memberA)
	require.NoError(t, err)
	calls := store.calls

	second, err := svc.Analysis(ctx, memberA)
	require.NoError(t, err)
	assert.Equal(t, calls, store.calls)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.ByDomain, second.ByDomain)

	// admins use their own key
	_, err = svc.Analysis(ctx, admin)
	require.NoError(t, err)
	assert.Greater(t, store.calls, calls)

	require.NoError(t, svc.Invalidate(ctx))
	assert.Zero(t, mem.Len())
	calls = store.calls
	_, err = svc.Analysis(ctx, memberA)
	require.NoError(t, err)
	assert.Greater(t, store.calls, calls)
}

func TestDashboardKeyIncludesDay(t *testing.T) {
	store := fixture()
	svc := NewService(store, cache.NewMemory(time.Hour), logger.Nop())
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, admin, now)
	require.NoError(t, err)
	calls := store.calls

	_, err = svc.Dashboard(ctx, admin, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, calls, store.calls)

	_, err = svc.Dashboard(ctx, admin, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Greater(t, store.calls, calls)
}

func TestBrokenCacheFallsBackToStore(t *testing.T) {
	svc := NewService(fixture(), brokenCache{}, logger.Nop())

	a, err := svc.Analysis(context.Background(), admin)
	require.NoError(t, err)
	assert.EqualValues(t, 6, a.Total)
}

func TestChangePercent(t *testing.T) {
	tests := []struct {
		current, previous int64
		want              float64
	}{
		{0, 0, 0},
		{5, 0, 100},
		{3, 3, 0},
		{2, 3, -33.3},
		{4, 3, 33.3},
	}
	for _, tt := range tests {
		if got := changePercent(tt.current, tt.previous); got != tt.want {
			t.Errorf("changePercent(%d, %d) = %v, want %v", tt.current, tt.previous, got, tt.want)
		}
	}
}
