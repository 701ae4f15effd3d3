package sqlstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, Options{Driver: DialectSQLite, DSN: ":memory:"}, logger.New("error", false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.sql"}, applied)
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func seedTechcorp(t *testing.T, s *Store) *domain.Company {
	t.Helper()
	ctx := context.Background()
	c := &domain.Company{Name: "TechCorp", Domain: "techcorp.com"}
	require.NoError(t, s.CreateCompany(ctx, c))
	require.NoError(t, s.InsertWatchlistEntry(ctx, &domain.WatchlistEntry{CompanyID: c.ID, EntryType: domain.EntryDomain, EntryValue: "techcorp.com"}))
	require.NoError(t, s.InsertWatchlistEntry(ctx, &domain.WatchlistEntry{CompanyID: c.ID, EntryType: domain.EntryEmail, EntryValue: "admin@techcorp.com"}))
	return c
}

func memberCaller(t *testing.T, s *Store, c *domain.Company) watchlist.Caller {
	t.Helper()
	entries, err := s.ListWatchlist(context.Background(), c.ID)
	require.NoError(t, err)
	id := c.ID
	return watchlist.Caller{
		UserID:    2,
		Role:      domain.RoleMember,
		CompanyID: &id,
		Domain:    c.Domain,
		Watchlist: domain.Values(entries),
	}
}

func TestTechcorpScenarioThroughSQL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := seedTechcorp(t, s)

	records := []*domain.BreachRecord{
		{Username: "user1@it.techcorp.com", Type: "stealer", Source: "feed-a"},
		{Username: "random", Domain: "othercorp.com", Type: "combolist", Source: "feed-a"},
		{Domain: "TECHCORP.com", Username: "bob", Type: "combolist", Source: "feed-b"},
		{URL: "https://sso.techcorp.com/login", Type: "phishing", Source: "feed-b"},
		{Username: "carol@acme.io", Type: "malware", Source: "feed-c"},
		{Username: "admin@techcorp.com", Type: "stealer", Source: "feed-c"},
	}
	for _, r := range records {
		require.NoError(t, s.CreateBreach(ctx, r))
	}

	memberScope := watchlist.ScopeFor(memberCaller(t, s, c))
	page, err := s.ListBreaches(ctx, memberScope, normalized(domain.BreachFilter{}))
	require.NoError(t, err)

	var got []string
	for _, r := range page.Items {
		got = append(got, r.Username+"|"+r.Domain+"|"+r.URL)
	}
	sort.Strings(got)
	assert.Equal(t, []string{
		"admin@techcorp.com||",
		"bob|TECHCORP.com|",
		"user1@it.techcorp.com||",
		"||https://sso.techcorp.com/login",
	}, got)
	assert.EqualValues(t, 4, page.Total)

	// The SQL filter and the in-memory predicate agree on every row.
	all, err := s.ListBreaches(ctx, watchlist.ScopeFor(watchlist.Caller{Role: domain.RoleAdmin}), normalized(domain.BreachFilter{PerPage: 100}))
	require.NoError(t, err)
	assert.EqualValues(t, len(records), all.Total)
	visible := make(map[int64]bool)
	for _, r := range page.Items {
		visible[r.ID] = true
	}
	for _, r := range all.Items {
		assert.Equal(t, memberScope.Matches(r), visible[r.ID], "record %d (%s)", r.ID, r.Username)
	}

	// Members without a company see nothing.
	none, err := s.ListBreaches(ctx, watchlist.ScopeFor(watchlist.Caller{Role: domain.RoleMember}), normalized(domain.BreachFilter{}))
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Zero(t, none.Total)
}

func TestWatchlistEditChangesVisibility(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := seedTechcorp(t, s)

	rec := &domain.BreachRecord{Username: "x@partner.net", Type: "stealer"}
	require.NoError(t, s.CreateBreach(ctx, rec))

	count := func() int64 {
		n, err := s.CountBreaches(ctx, watchlist.ScopeFor(memberCaller(t, s, c)), domain.Window{})
		require.NoError(t, err)
		return n
	}
	assert.Zero(t, count())

	entry := &domain.WatchlistEntry{CompanyID: c.ID, EntryType: domain.EntryDomain, EntryValue: "partner.net"}
	require.NoError(t, s.InsertWatchlistEntry(ctx, entry))
	assert.EqualValues(t, 1, count())

	require.NoError(t, s.DeleteWatchlistEntry(ctx, entry.ID))
	assert.Zero(t, count())
}

func TestCompanyWithoutEntriesFallsBackToDomain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := &domain.Company{Name: "Acme", Domain: "acme.io"}
	require.NoError(t, s.CreateCompany(ctx, c))

	require.NoError(t, s.CreateBreach(ctx, &domain.BreachRecord{Domain: "acme.io"}))
	require.NoError(t, s.CreateBreach(ctx, &domain.BreachRecord{Username: "bob@acme.io"}))
	require.NoError(t, s.CreateBreach(ctx, &domain.BreachRecord{Domain: "mail.acme.io"}))

	page, err := s.ListBreaches(ctx, watchlist.ScopeFor(memberCaller(t, s, c)), normalized(domain.BreachFilter{}))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "acme.io", page.Items[0].Domain)
}

func TestListBreachesFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	records := []*domain.BreachRecord{
		{Domain: "a.com", Username: "one", Type: "stealer", Source: "feed-a", CreatedAt: now.Add(-time.Hour)},
		{Domain: "b.com", Username: "two", Type: "combolist", Source: "feed-b", CreatedAt: now.AddDate(0, 0, -3)},
		{Domain: "c.com", Username: "three_x", Type: "combolist", Source: "feed-a", CreatedAt: now.AddDate(0, 0, -20)},
		{Domain: "d.com", Username: "four", Type: "malware", Source: "feed-b", CreatedAt: now.AddDate(0, -3, 0)},
	}
	for _, r := range records {
		require.NoError(t, s.CreateBreach(ctx, r))
	}
	require.NoError(t, s.SetBreachMark(ctx, records[1].ID, true, nil, now))

	admin := watchlist.ScopeFor(watchlist.Caller{Role: domain.RoleAdmin})
	yes := true

	tests := []struct {
		name   string
		filter domain.BreachFilter
		want   int64
	}{
		{name: "no filter", filter: domain.BreachFilter{}, want: 4},
		{name: "type", filter: domain.BreachFilter{Type: "COMBOLIST"}, want: 2},
		{name: "source", filter: domain.BreachFilter{Source: "feed-a"}, want: 2},
		{name: "today", filter: domain.BreachFilter{DateRange: domain.RangeToday}, want: 1},
		{name: "week", filter: domain.BreachFilter{DateRange: domain.RangeWeek}, want: 2},
		{name: "month", filter: domain.BreachFilter{DateRange: domain.RangeMonth}, want: 3},
		{name: "marked", filter: domain.BreachFilter{Marked: &yes}, want: 1},
		{name: "search", filter: domain.BreachFilter{Search: "B.COM"}, want: 1},
		{name: "search wildcard is literal", filter: domain.BreachFilter{Search: "_x"}, want: 1},
		{name: "combined", filter: domain.BreachFilter{Type: "combolist", Source: "feed-a"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListBreaches(ctx, admin, normalized(tt.filter))
			require.NoError(t, err)
			assert.Equal(t, tt.want, page.Total)
			assert.Len(t, page.Items, int(tt.want))
		})
	}
}

func TestListBreachesPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.CreateBreach(ctx, &domain.BreachRecord{Domain: "x.com"}))
	}
	admin := watchlist.ScopeFor(watchlist.Caller{Role: domain.RoleAdmin})

	page, err := s.ListBreaches(ctx, admin, normalized(domain.BreachFilter{Page: 3}))
	require.NoError(t, err)
	assert.EqualValues(t, 25, page.Total)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, domain.DefaultPerPage, page.PerPage)
}

func TestInsertBreachesSkipsKnownExternalIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.InsertBreaches(ctx, []*domain.BreachRecord{
		{ExternalID: "f-1", Domain: "a.com"},
		{ExternalID: "f-2", Domain: "b.com"},
		{Domain: "no-id.com"},
	})
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := s.InsertBreaches(ctx, []*domain.BreachRecord{
		{ExternalID: "f-2", Domain: "b.com"},
		{ExternalID: "f-3", Domain: "c.com"},
		{Domain: "no-id.com"},
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "f-3", second[0].ExternalID)

	n, err := s.CountBreaches(ctx, watchlist.ScopeFor(watchlist.Caller{Role: domain.RoleAdmin}), domain.Window{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestBreachMarkRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := &domain.User{Username: "analyst", Email: "analyst@x.com", PasswordHash: "h", Role: domain.RoleAdmin, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	r := &domain.BreachRecord{Domain: "a.com"}
	require.NoError(t, s.CreateBreach(ctx, r))

	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetBreachMark(ctx, r.ID, true, &u.ID, at))
	got, err := s.GetBreach(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.IsMarked)
	require.NotNil(t, got.MarkedBy)
	assert.Equal(t, u.ID, *got.MarkedBy)
	require.NotNil(t, got.MarkedAt)
	assert.True(t, at.Equal(*got.MarkedAt))

	require.NoError(t, s.SetBreachMark(ctx, r.ID, false, nil, at))
	got, err = s.GetBreach(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, got.IsMarked)
	assert.Nil(t, got.MarkedBy)
	assert.Nil(t, got.MarkedAt)

	assert.ErrorIs(t, s.SetBreachMark(ctx, 999, true, nil, at), domain.ErrNotFound)
}

func TestUserCompanyDomainJoin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := seedTechcorp(t, s)

	linked := &domain.User{Username: "alice", Email: "alice@techcorp.com", PasswordHash: "h", Role: domain.RoleMember, CompanyID: &c.ID, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, linked))
	unlinked := &domain.User{Username: "bob", Email: "bob@gmail.com", PasswordHash: "h", Role: domain.RoleMember, IsActive: false}
	require.NoError(t, s.CreateUser(ctx, unlinked))

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "techcorp.com", got.CompanyDomain)
	assert.True(t, got.IsActive)

	got, err = s.GetUserByEmail(ctx, "bob@gmail.com")
	require.NoError(t, err)
	assert.Empty(t, got.CompanyDomain)
	assert.Nil(t, got.CompanyID)
	assert.False(t, got.IsActive)

	active, err := s.ListUsers(ctx, domain.UserFilter{CompanyID: &c.ID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Username)

	// Deleting the company unlinks users and drops its watchlist.
	require.NoError(t, s.DeleteCompany(ctx, c.ID))
	got, err = s.GetUser(ctx, linked.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CompanyID)
	entries, err := s.ListAllWatchlists(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.GetUser(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	add := func(typ, source, dom string, at time.Time) {
		require.NoError(t, s.CreateBreach(ctx, &domain.BreachRecord{Type: typ, Source: source, Domain: dom, CreatedAt: at}))
	}
	add("stealer", "feed-a", "a.com", now)
	add("stealer", "feed-a", "a.com", now.Add(-time.Hour))
	add("combolist", "feed-b", "b.com", now.AddDate(0, 0, -1))
	add("malware", "", "", now.AddDate(0, 0, -40))

	admin := watchlist.ScopeFor(watchlist.Caller{Role: domain.RoleAdmin})

	byType, err := s.GroupCount(ctx, admin, "type", domain.Window{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.KeyCount{{Key: "stealer", Count: 2}, {Key: "combolist", Count: 1}, {Key: "malware", Count: 1}}, byType)

	bySource, err := s.GroupCount(ctx, admin, "source", domain.Window{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.KeyCount{{Key: "feed-a", Count: 2}}, bySource)

	_, err = s.GroupCount(ctx, admin, "password", domain.Window{}, 0)
	assert.Error(t, err)

	corporate, err := s.CountBreaches(ctx, admin, domain.Window{Types: domain.CorporateTypes, Since: now.AddDate(0, 0, -30)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, corporate)

	daily, err := s.DailyCounts(ctx, admin, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, []domain.KeyCount{{Key: "2026-10-18", Count: 1}, {Key: "2026-10-19", Count: 2}}, daily)

	recent, err := s.RecentBreaches(ctx, admin, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CreatedAt.Equal(now))
}

func TestNotificationsAndRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := &domain.User{Username: "alice", Email: "alice@x.com", PasswordHash: "h", Role: domain.RoleMember, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))

	batch := []*domain.Notification{
		{UserID: u.ID, Type: domain.NotificationNewBreach, Title: "one"},
		{UserID: u.ID, Type: domain.NotificationNewBreach, Title: "two", Link: "/breaches/2"},
	}
	require.NoError(t, s.CreateNotifications(ctx, batch))
	unread, err := s.CountUnreadNotifications(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.MarkNotificationRead(ctx, batch[0].ID, later))
	list, err := s.ListNotifications(ctx, u.ID, 10, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two", list[0].Title)
	assert.Equal(t, "/breaches/2", list[0].Link)

	n, err := s.MarkAllNotificationsRead(ctx, u.ID, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	purged, err := s.DeleteReadNotificationsBefore(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)

	log := &domain.AuditLog{RequestID: "r-1", UserID: &u.ID, Action: domain.AuditLogin, ResourceType: "user", Status: domain.AuditSuccess}
	require.NoError(t, s.InsertAuditLog(ctx, log))
	logs, total, err := s.ListAuditLogs(ctx, domain.AuditFilter{UserID: &u.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AuditLogin, logs[0].Action)

	gone, err := s.DeleteAuditLogsBefore(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 1, gone)
}

func normalized(f domain.BreachFilter) domain.BreachFilter {
	f.Normalize()
	return f
}

func TestPredicateAgreesInMemoryAndSQL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []*domain.BreachRecord{
		{Domain: "ÉCOLE.fr"},
		{Username: "Jürgen@ÉCOLE.fr"},
		{Username: "prof@Lycée.ÉCOLE.fr"},
		{URL: "https://ÉCOLE.fr/connexion"},
		{Domain: "ecole.fr"},
		{Domain: "x_y.com"},
		{Domain: "xzy.com"},
		{Domain: "100%.com"},
		{Username: "ÖSTERREICH"},
	}
	for _, r := range records {
		require.NoError(t, s.CreateBreach(ctx, r))
	}

	for _, values := range [][]string{
		{"école.fr"},
		{"ÉCOLE.FR"},
		{"x_y.com"},
		{"100%.com"},
		{"österreich"},
	} {
		pred := watchlist.BuildMatchPredicate(values)
		require.NotNil(t, pred)

		var inMemory []int64
		for _, r := range records {
			if pred.Matches(r) {
				inMemory = append(inMemory, r.ID)
			}
		}

		rows, err := s.query(ctx, s.sq.Select("id").From("breach_records").Where(pred).OrderBy("id"))
		require.NoError(t, err)
		var inSQL []int64
		for rows.Next() {
			var id int64
			require.NoError(t, rows.Scan(&id))
			inSQL = append(inSQL, id)
		}
		require.NoError(t, rows.Err())
		require.NoError(t, rows.Close())

		assert.NotEmpty(t, inMemory, "%v", values)
		assert.Equal(t, inMemory, inSQL, "%v", values)
	}
}
