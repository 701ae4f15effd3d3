package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/breachwatch/internal/account"
	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/audit"
	"github.com/MrSnakeDoc/breachwatch/internal/auth"
	"github.com/MrSnakeDoc/breachwatch/internal/breach"
	"github.com/MrSnakeDoc/breachwatch/internal/cache"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/export"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
	"github.com/MrSnakeDoc/breachwatch/internal/notify"
	"github.com/MrSnakeDoc/breachwatch/internal/stats"
	sqlstore "github.com/MrSnakeDoc/breachwatch/internal/store/sql"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

type apiFixture struct {
	srv      *httptest.Server
	store    *sqlstore.Store
	techcorp *domain.Company
	acme     *domain.Company
	mine     *domain.BreachRecord
	foreign  *domain.BreachRecord
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupAPI(t *testing.T, tweak func(*deps.Deps)) *apiFixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()

	store, err := sqlstore.Open(ctx, sqlstore.Options{Driver: sqlstore.DialectSQLite, DSN: ":memory:"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.Migrate(ctx)
	require.NoError(t, err)

	hasher := auth.NewBcryptHasher(4)
	f := &apiFixture{store: store}
	f.techcorp = &domain.Company{Name: "TechCorp", Domain: "techcorp.com"}
	require.NoError(t, store.CreateCompany(ctx, f.techcorp))
	require.NoError(t, store.InsertWatchlistEntry(ctx, &domain.WatchlistEntry{
		CompanyID: f.techcorp.ID, EntryType: domain.EntryDomain, EntryValue: "techcorp.com",
	}))
	f.acme = &domain.Company{Name: "Acme", Domain: "acme.io"}
	require.NoError(t, store.CreateCompany(ctx, f.acme))

	for _, u := range []struct {
		user     *domain.User
		password string
	}{
		{&domain.User{Username: "root", Email: "root@example.com", Role: domain.RoleAdmin, IsActive: true}, "Admin123"},
		{&domain.User{Username: "alice", Email: "alice@techcorp.com", Role: domain.RoleMember, CompanyID: &f.techcorp.ID, IsActive: true}, "Alice123"},
	} {
		u.user.PasswordHash, err = hasher.Hash(u.password)
		require.NoError(t, err)
		require.NoError(t, store.CreateUser(ctx, u.user))
	}

	f.mine = &domain.BreachRecord{Domain: "techcorp.com", Username: "dev@techcorp.com", Password: "p1", Type: "stealer"}
	require.NoError(t, store.CreateBreach(ctx, f.mine))
	f.foreign = &domain.BreachRecord{Domain: "acme.io", Username: "ops@acme.io", Password: "p2", Type: "combolist"}
	require.NoError(t, store.CreateBreach(ctx, f.foreign))

	recorder := audit.NewRecorder(store, log)
	statsSvc := stats.NewService(store, cache.NewMemory(time.Minute), log)
	d := deps.Deps{
		Logger:            log,
		StartTime:         time.Now(),
		Version:           "test",
		LoginBurst:        20,
		LoginRefillPerMin: 20,
		DB:                store,
		CacheMode:         "memory",
		Auth:              auth.NewService(store, hasher, auth.NewTokens(strings.Repeat("s", 32), "breachwatch", time.Hour), recorder, log),
		Watchlist:         watchlist.NewService(store, statsSvc, recorder, log),
		Breaches:          breach.NewService(store, statsSvc, recorder, log),
		Stats:             statsSvc,
		Accounts:          account.NewService(store, hasher, statsSvc, recorder, log),
		Notifications:     notify.NewService(store, log),
		Audit:             recorder,
		Exporters:         export.Default(),
	}
	if tweak != nil {
		tweak(&d)
	}

	f.srv = httptest.NewServer(NewRouter(5*time.Second, d))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) (*http.Response, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var env envelope
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return res, env
}

func (f *apiFixture) login(t *testing.T, username, password string) string {
	t.Helper()
	res, env := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestLoginAndMe(t *testing.T) {
	f := setupAPI(t, nil)
	token := f.login(t, "alice", "Alice123")

	res, env := f.do(t, http.MethodGet, "/api/me", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var me struct {
		User struct {
			Username      string `json:"username"`
			CompanyDomain string `json:"company_domain"`
		} `json:"user"`
		Watchlist []string `json:"watchlist"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "alice", me.User.Username)
	assert.Equal(t, "techcorp.com", me.User.CompanyDomain)
	assert.Equal(t, []string{"techcorp.com"}, me.Watchlist)
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := setupAPI(t, nil)

	resWrong, envWrong := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"nope"}`)
	resGhost, envGhost := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"ghost","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, resWrong.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, resGhost.StatusCode)
	require.NotNil(t, envWrong.Error)
	require.NotNil(t, envGhost.Error)
	assert.Equal(t, envWrong.Error.Message, envGhost.Error.Message)
	assert.False(t, envWrong.Success)
}

func TestLoginIsRateLimited(t *testing.T) {
	f := setupAPI(t, func(d *deps.Deps) {
		d.LoginBurst = 2
		d.LoginRefillPerMin = 1
	})

	for i := 0; i < 2; i++ {
		res, _ := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}
	res, env := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"Alice123"}`)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperr.CodeRateLimited), env.Error.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := setupAPI(t, nil)

	res, env := f.do(t, http.MethodGet, "/api/breaches", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperr.CodeUnauthorized), env.Error.Code)

	res, _ = f.do(t, http.MethodGet, "/api/breaches", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestMemberSeesOnlyItsScope(t *testing.T) {
	f := setupAPI(t, nil)
	token := f.login(t, "alice", "Alice123")

	res, env := f.do(t, http.MethodGet, "/api/breaches", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var page domain.BreachPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, f.mine.ID, page.Items[0].ID)

	res, env = f.do(t, http.MethodGet, "/api/breaches/"+itoa(f.foreign.ID), token, "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.AccessDeniedMessage, env.Error.Message)

	res, _ = f.do(t, http.MethodPost, "/api/breaches/"+itoa(f.foreign.ID)+"/mark", token, "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, env = f.do(t, http.MethodPost, "/api/breaches/"+itoa(f.mine.ID)+"/mark", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var marked domain.BreachRecord
	require.NoError(t, json.Unmarshal(env.Data, &marked))
	assert.True(t, marked.IsMarked)
}

func TestAdminOnlyRoutes(t *testing.T) {
	f := setupAPI(t, nil)
	member := f.login(t, "alice", "Alice123")
	admin := f.login(t, "root", "Admin123")

	for _, path := range []string{"/api/users", "/api/companies", "/api/audit"} {
		res, _ := f.do(t, http.MethodGet, path, member, "")
		assert.Equal(t, http.StatusForbidden, res.StatusCode, path)

		res, env := f.do(t, http.MethodGet, path, admin, "")
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
		assert.True(t, env.Success, path)
	}

	res, _ := f.do(t, http.MethodPost, "/api/breaches", member, `{"domain":"techcorp.com"}`)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, env := f.do(t, http.MethodPost, "/api/breaches", admin, `{"domain":"techcorp.com","username":"new@techcorp.com","type":"stealer"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.True(t, env.Success)

	// alice is notified about the new record in her scope
	res, env = f.do(t, http.MethodGet, "/api/notifications", member, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var inbox notify.Inbox
	require.NoError(t, json.Unmarshal(env.Data, &inbox))
	assert.EqualValues(t, 1, inbox.Unread)
}

func TestMemberManagesOwnWatchlist(t *testing.T) {
	f := setupAPI(t, nil)
	token := f.login(t, "alice", "Alice123")

	res, env := f.do(t, http.MethodPost, "/api/companies/"+itoa(f.techcorp.ID)+"/watchlist", token,
		`{"entry_type":"email","entry_value":"ops@acme.io"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(env.Data))

	res, _ = f.do(t, http.MethodPost, "/api/companies/"+itoa(f.acme.ID)+"/watchlist", token,
		`{"entry_type":"domain","entry_value":"techcorp.com"}`)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = f.do(t, http.MethodGet, "/api/companies/"+itoa(f.acme.ID)+"/watchlist", token, "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// the new entry claims the acme record on the next request
	res, env = f.do(t, http.MethodGet, "/api/breaches", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var page domain.BreachPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 2, page.Total)
}

func TestExport(t *testing.T) {
	f := setupAPI(t, nil)
	token := f.login(t, "alice", "Alice123")

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/breaches/export?format=CSV", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "breached_credentials_")
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Domain,Username"))
	assert.Contains(t, lines[1], "dev@techcorp.com")

	resBad, env := f.do(t, http.MethodGet, "/api/breaches/export?format=pdf", token, "")
	assert.Equal(t, http.StatusBadRequest, resBad.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperr.CodeValidation), env.Error.Code)
}

func TestStatsEndpoints(t *testing.T) {
	f := setupAPI(t, nil)
	token := f.login(t, "alice", "Alice123")

	res, env := f.do(t, http.MethodGet, "/api/stats/analysis", token, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var a stats.Analysis
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.EqualValues(t, 1, a.Total)

	res, _ = f.do(t, http.MethodGet, "/api/stats/dashboard", token, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestOpsEndpoints(t *testing.T) {
	trigger := make(chan struct{}, 1)
	f := setupAPI(t, func(d *deps.Deps) { d.ReloadTrigger = trigger })

	res, _ := f.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, env := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(env.Data), `"status":"ok"`)

	res, _ = f.do(t, http.MethodPost, "/reload", "", "")
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	res, _ = f.do(t, http.MethodPost, "/reload", "", "")
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
}

func TestOpsEndpointsRespectCIDRs(t *testing.T) {
	f := setupAPI(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })

	res, _ := f.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	f := setupAPI(t, func(d *deps.Deps) { d.CORSOrigins = []string{"https://app.example.com"} })

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/breaches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "https://app.example.com", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestUnknownRoute(t *testing.T) {
	f := setupAPI(t, nil)
	res, env := f.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	require.NotNil(t, env.Error)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
