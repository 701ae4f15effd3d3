// Package stats computes the scoped aggregates behind the analysis and
// dashboard views, read through a short-lived cache.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

const (
	topDomains   = 10
	recentLimit  = 10
	chartDays    = 30
	chartLabel   = "01/02"
	monthLabel   = "Jan 2006"
	stableChange = "↔ Stable"
)

type Store interface {
	CountBreaches(ctx context.Context, scope watchlist.Scope, w domain.Window) (int64, error)
	GroupCount(ctx context.Context, scope watchlist.Scope, column string, w domain.Window, limit int) ([]domain.KeyCount, error)
	DailyCounts(ctx context.Context, scope watchlist.Scope, since time.Time) ([]domain.KeyCount, error)
	RecentBreaches(ctx context.Context, scope watchlist.Scope, limit int) ([]*domain.BreachRecord, error)
}

// Cache is satisfied by the Redis and in-memory caches.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Invalidate(ctx context.Context) error
}

type Analysis struct {
	Domain      string                 `json:"user_domain,omitempty"`
	Total       int64                  `json:"total"`
	ByType      map[string]int64       `json:"by_type"`
	BySource    map[string]int64       `json:"by_source"`
	ByDomain    []domain.KeyCount      `json:"by_domain"`
	Recent      []*domain.BreachRecord `json:"recent"`
	MarkedCount int64                  `json:"marked_count"`
}

// Card is one headline counter with its month-over-month movement.
type Card struct {
	Count         int64   `json:"count"`
	ThisMonth     int64   `json:"this_month"`
	PreviousMonth int64   `json:"previous_month"`
	Change        int64   `json:"change"`
	ChangeText    string  `json:"change_text"`
	ChangePercent float64 `json:"change_percent"`
}

type Dashboard struct {
	Domain               string                 `json:"user_domain,omitempty"`
	Total                Card                   `json:"total"`
	Consumer             Card                   `json:"consumer"`
	Corporate            Card                   `json:"corporate"`
	RecentExposure       map[string]int64       `json:"recent_exposure"`
	LatestEvents         []*domain.BreachRecord `json:"latest_events"`
	ChartLabels          []string               `json:"chart_labels"`
	ChartData            []int64                `json:"chart_data"`
	CategoryDistribution map[string]int64       `json:"category_distribution"`
	TypeDistribution     map[string]int64       `json:"type_distribution"`
}

type Service struct {
	store  Store
	cache  Cache
	logger logger.Logger
}

func NewService(store Store, cache Cache, log logger.Logger) *Service {
	return &Service{store: store, cache: cache, logger: log}
}

// Invalidate drops every cached aggregate.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// Analysis returns totals, breakdowns by type, source and top domains, the
// newest records and the marked count, all within the caller's scope.
func (s *Service) Analysis(ctx context.Context, caller watchlist.Caller) (*Analysis, error) {
	scope := watchlist.ScopeFor(caller)
	key := "analysis:" + scope.Key()

	var out Analysis
	if s.cached(ctx, key, &out) {
		return &out, nil
	}

	a, err := s.computeAnalysis(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !scope.Unrestricted() {
		a.Domain = caller.Domain
	}
	s.save(ctx, key, a)
	return a, nil
}

func (s *Service) computeAnalysis(ctx context.Context, scope watchlist.Scope) (*Analysis, error) {
	var (
		a   Analysis
		err error
	)
	if a.Total, err = s.store.CountBreaches(ctx, scope, domain.Window{}); err != nil {
		return nil, fmt.Errorf("failed to count breaches: %w", err)
	}

	byType, err := s.store.GroupCount(ctx, scope, "type", domain.Window{}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to group by type: %w", err)
	}
	a.ByType = toMap(byType)

	bySource, err := s.store.GroupCount(ctx, scope, "source", domain.Window{}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to group by source: %w", err)
	}
	a.BySource = toMap(bySource)

	if a.ByDomain, err = s.store.GroupCount(ctx, scope, "domain", domain.Window{}, topDomains); err != nil {
		return nil, fmt.Errorf("failed to group by domain: %w", err)
	}
	if a.Recent, err = s.store.RecentBreaches(ctx, scope, recentLimit); err != nil {
		return nil, fmt.Errorf("failed to load recent breaches: %w", err)
	}

	marked := true
	if a.MarkedCount, err = s.store.CountBreaches(ctx, scope, domain.Window{Marked: &marked}); err != nil {
		return nil, fmt.Errorf("failed to count marked breaches: %w", err)
	}
	return &a, nil
}

// Dashboard returns the headline cards, this month's exposure by type, the
// latest events and a 30-day chart ending on now's day.
func (s *Service) Dashboard(ctx context.Context, caller watchlist.Caller, now time.Time) (*Dashboard, error) {
	now = now.UTC()
	scope := watchlist.ScopeFor(caller)
	key := "dashboard:" + scope.Key() + ":" + now.Format("2006-01-02")

	var out Dashboard
	if s.cached(ctx, key, &out) {
		return &out, nil
	}

	d, err := s.computeDashboard(ctx, scope, now)
	if err != nil {
		return nil, err
	}
	if !scope.Unrestricted() {
		d.Domain = caller.Domain
	}
	s.save(ctx, key, d)
	return d, nil
}

func (s *Service) computeDashboard(ctx context.Context, scope watchlist.Scope, now time.Time) (*Dashboard, error) {
	monthStart := domain.MonthStart(now)
	prevStart := monthStart.AddDate(0, -1, 0)

	var (
		d   Dashboard
		err error
	)
	if d.Total, err = s.card(ctx, scope, nil, monthStart, prevStart); err != nil {
		return nil, err
	}
	if d.Consumer, err = s.card(ctx, scope, domain.ConsumerTypes, monthStart, prevStart); err != nil {
		return nil, err
	}
	if d.Corporate, err = s.card(ctx, scope, domain.CorporateTypes, monthStart, prevStart); err != nil {
		return nil, err
	}

	exposure, err := s.store.GroupCount(ctx, scope, "type", domain.Window{Since: monthStart}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to group this month by type: %w", err)
	}
	d.RecentExposure = toMap(exposure)

	if d.LatestEvents, err = s.store.RecentBreaches(ctx, scope, recentLimit); err != nil {
		return nil, fmt.Errorf("failed to load latest events: %w", err)
	}

	y, m, dd := now.Date()
	today := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	first := today.AddDate(0, 0, -(chartDays - 1))
	daily, err := s.store.DailyCounts(ctx, scope, first)
	if err != nil {
		return nil, fmt.Errorf("failed to count daily breaches: %w", err)
	}
	perDay := toMap(daily)
	d.ChartLabels = make([]string, 0, chartDays)
	d.ChartData = make([]int64, 0, chartDays)
	for i := 0; i < chartDays; i++ {
		day := first.AddDate(0, 0, i)
		d.ChartLabels = append(d.ChartLabels, day.Format(chartLabel))
		d.ChartData = append(d.ChartData, perDay[day.Format("2006-01-02")])
	}

	d.CategoryDistribution = map[string]int64{
		"consumer":  d.Consumer.Count,
		"corporate": d.Corporate.Count,
	}

	types, err := s.store.GroupCount(ctx, scope, "type", domain.Window{}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to group by type: %w", err)
	}
	d.TypeDistribution = toMap(types)
	return &d, nil
}

// card counts records of types (all when nil) overall, this month and last
// month. Change is the overall count minus last month's.
func (s *Service) card(ctx context.Context, scope watchlist.Scope, types []string, monthStart, prevStart time.Time) (Card, error) {
	var (
		c   Card
		err error
	)
	if c.Count, err = s.store.CountBreaches(ctx, scope, domain.Window{Types: types}); err != nil {
		return Card{}, fmt.Errorf("failed to count breaches: %w", err)
	}
	if c.ThisMonth, err = s.store.CountBreaches(ctx, scope, domain.Window{Types: types, Since: monthStart}); err != nil {
		return Card{}, fmt.Errorf("failed to count this month: %w", err)
	}
	if c.PreviousMonth, err = s.store.CountBreaches(ctx, scope, domain.Window{Types: types, Since: prevStart, Until: monthStart}); err != nil {
		return Card{}, fmt.Errorf("failed to count previous month: %w", err)
	}
	c.Change = c.Count - c.PreviousMonth
	c.ChangeText = changeText(c.Change, prevStart)
	c.ChangePercent = changePercent(c.ThisMonth, c.PreviousMonth)
	return c, nil
}

func changeText(change int64, prevStart time.Time) string {
	if change == 0 {
		return stableChange
	}
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%d since %s", sign, change, prevStart.Format(monthLabel))
}

// changePercent is rounded to one decimal. Growth from zero reports 100.
func changePercent(current, previous int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	p := float64(current-previous) / float64(previous) * 100
	return math.Round(p*10) / 10
}

func toMap(counts []domain.KeyCount) map[string]int64 {
	out := make(map[string]int64, len(counts))
	for _, kc := range counts {
		out[kc.Key] = kc.Count
	}
	return out
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.Warn("stats cache read failed", logger.String("key", key), logger.Error(err))
		return false
	}
	return hit
}

func (s *Service) save(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.logger.Warn("stats cache write failed", logger.String("key", key), logger.Error(err))
	}
}
