package watchlist

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

type fakeRepo struct {
	mu        sync.Mutex
	companies map[int64]*domain.Company
	entries   map[int64]*domain.WatchlistEntry
	nextID    int64
	failList  error
}

func newFakeRepo(companies ...*domain.Company) *fakeRepo {
	r := &fakeRepo{
		companies: make(map[int64]*domain.Company),
		entries:   make(map[int64]*domain.WatchlistEntry),
	}
	for _, c := range companies {
		r.companies[c.ID] = c
	}
	return r
}

func (r *fakeRepo) GetCompany(_ context.Context, id int64) (*domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) ListWatchlist(_ context.Context, companyID int64) ([]*domain.WatchlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	var out []*domain.WatchlistEntry
	for _, e := range r.entries {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) FindWatchlistEntry(_ context.Context, companyID int64, t domain.EntryType, v string) (*domain.WatchlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.CompanyID == companyID && e.EntryType == t && e.EntryValue == v {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) GetWatchlistEntry(_ context.Context, id int64) (*domain.WatchlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (r *fakeRepo) InsertWatchlistEntry(_ context.Context, e *domain.WatchlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.entries[e.ID] = e
	return nil
}

func (r *fakeRepo) DeleteWatchlistEntry(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type memoryAuditor struct{ logs []*domain.AuditLog }

func (m *memoryAuditor) Record(_ context.Context, e *domain.AuditLog) { m.logs = append(m.logs, e) }

func newTestService(t *testing.T) (*Service, *fakeRepo, *countingInvalidator, *memoryAuditor) {
	t.Helper()
	repo := newFakeRepo(
		&domain.Company{ID: 1, Name: "TechCorp", Domain: "techcorp.com"},
		&domain.Company{ID: 2, Name: "Acme", Domain: "acme.io"},
	)
	inv := &countingInvalidator{}
	aud := &memoryAuditor{}
	return NewService(repo, inv, aud, logger.New("error", false)), repo, inv, aud
}

var adminCaller = Caller{UserID: 1, Role: domain.RoleAdmin}

func TestAddEntry(t *testing.T) {
	svc, _, inv, aud := newTestService(t)
	ctx := context.Background()

	entry, err := svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{
		EntryType:   " Domain ",
		EntryValue:  "  TechCorp.COM ",
		Description: " primary ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryDomain, entry.EntryType)
	assert.Equal(t, "techcorp.com", entry.EntryValue)
	assert.Equal(t, "primary", entry.Description)
	assert.Equal(t, 1, inv.calls)
	require.Len(t, aud.logs, 1)
	assert.Equal(t, domain.AuditCreate, aud.logs[0].Action)
	assert.Equal(t, "watchlist_entry", aud.logs[0].ResourceType)
}

func TestAddEntryValidation(t *testing.T) {
	tests := []struct {
		name  string
		input AddEntryInput
	}{
		{name: "unknown type", input: AddEntryInput{EntryType: "hostname", EntryValue: "techcorp.com"}},
		{name: "missing type", input: AddEntryInput{EntryValue: "techcorp.com"}},
		{name: "blank value", input: AddEntryInput{EntryType: "domain", EntryValue: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, inv, _ := newTestService(t)
			_, err := svc.AddEntry(context.Background(), adminCaller, 1, tt.input)
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeValidation), "got %v", err)
			assert.Empty(t, repo.entries)
			assert.Zero(t, inv.calls)
		})
	}
}

func TestAddEntryAllTypes(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	for _, et := range domain.EntryTypes {
		_, err := svc.AddEntry(context.Background(), adminCaller, 1, AddEntryInput{
			EntryType:  string(et),
			EntryValue: "value-" + string(et),
		})
		assert.NoError(t, err, "entry type %s", et)
	}
}

func TestAddEntryDuplicate(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{EntryType: "domain", EntryValue: "techcorp.com"})
	require.NoError(t, err)

	_, err = svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{EntryType: "domain", EntryValue: " TECHCORP.com"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyExists))

	// Same value with another type is a different pair.
	_, err = svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{EntryType: "slug", EntryValue: "techcorp.com"})
	assert.NoError(t, err)

	// Same pair for another company succeeds independently.
	_, err = svc.AddEntry(ctx, adminCaller, 2, AddEntryInput{EntryType: "domain", EntryValue: "techcorp.com"})
	assert.NoError(t, err)
}

func TestAddEntryUnknownCompany(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.AddEntry(context.Background(), adminCaller, 99, AddEntryInput{EntryType: "domain", EntryValue: "x.com"})
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestAddEntryPermissions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	member := Caller{UserID: 5, Role: domain.RoleMember, CompanyID: int64Ptr(1), Domain: "techcorp.com"}

	_, err := svc.AddEntry(ctx, member, 1, AddEntryInput{EntryType: "domain", EntryValue: "techcorp.io"})
	assert.NoError(t, err)

	_, err = svc.AddEntry(ctx, member, 2, AddEntryInput{EntryType: "domain", EntryValue: "techcorp.io"})
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	unlinked := Caller{UserID: 6, Role: domain.RoleMember}
	_, err = svc.AddEntry(ctx, unlinked, 1, AddEntryInput{EntryType: "domain", EntryValue: "x.com"})
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}

func TestRemoveEntry(t *testing.T) {
	svc, repo, inv, aud := newTestService(t)
	ctx := context.Background()

	entry, err := svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{EntryType: "email", EntryValue: "admin@techcorp.com"})
	require.NoError(t, err)

	err = svc.RemoveEntry(ctx, adminCaller, 2, entry.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "entry of another company must look missing")

	require.NoError(t, svc.RemoveEntry(ctx, adminCaller, 1, entry.ID))
	assert.Empty(t, repo.entries)
	assert.Equal(t, 2, inv.calls)
	require.Len(t, aud.logs, 2)
	assert.Equal(t, domain.AuditDelete, aud.logs[1].Action)
	assert.Contains(t, aud.logs[1].OldValues, "admin@techcorp.com")

	err = svc.RemoveEntry(ctx, adminCaller, 1, entry.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestResolveCaller(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{EntryType: "domain", EntryValue: "techcorp.com"})
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, adminCaller, 1, AddEntryInput{EntryType: "email", EntryValue: "admin@techcorp.com"})
	require.NoError(t, err)

	member := &domain.User{ID: 7, Role: domain.RoleMember, CompanyID: int64Ptr(1), CompanyDomain: "techcorp.com"}
	caller, err := svc.ResolveCaller(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, "techcorp.com", caller.Domain)
	assert.Equal(t, []string{"techcorp.com", "admin@techcorp.com"}, caller.Watchlist)
	assert.True(t, UserCanAccess(&domain.BreachRecord{Username: "user1@it.techcorp.com"}, caller))

	admin := &domain.User{ID: 1, Role: domain.RoleAdmin}
	caller, err = svc.ResolveCaller(ctx, admin)
	require.NoError(t, err)
	assert.True(t, caller.IsAdmin())
	assert.Empty(t, caller.Watchlist)
}

func TestResolveCallerPropagatesStoreErrors(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	repo.failList = errors.New("connection refused")

	member := &domain.User{ID: 7, Role: domain.RoleMember, CompanyID: int64Ptr(1), CompanyDomain: "techcorp.com"}
	_, err := svc.ResolveCaller(context.Background(), member)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.failList)
}

func TestResolveCallerNormalizesDomain(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	member := &domain.User{ID: 7, Role: domain.RoleMember, CompanyID: int64Ptr(1), CompanyDomain: "  TechCorp.com "}
	caller, err := svc.ResolveCaller(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, "techcorp.com", caller.Domain)

	blank := &domain.User{ID: 8, Role: domain.RoleMember, CompanyID: int64Ptr(1), CompanyDomain: "   "}
	caller, err = svc.ResolveCaller(ctx, blank)
	require.NoError(t, err)
	assert.Empty(t, caller.Domain)
	assert.Equal(t, scopeKeyNone, ScopeFor(caller).Key())
}
