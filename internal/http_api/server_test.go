package http_api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/guard/guardtest"
	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/internal/redistribute"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	adminSecret  = "admin-secret"
	viewerSecret = "viewer-secret"
)

type fakeConsole struct {
	models.ConsoleI

	mu           sync.Mutex
	ads          []*models.Ad
	bans         map[string]*models.BannedIP
	patched      models.AdPatch
	aggResult    *models.RedistributionResult
	aggErr       error
	banErr       error
	savedMetrics []models.CampaignMetrics
	rangePatch   models.MetricsPatch
}

func (f *fakeConsole) ListAds(context.Context) ([]*models.Ad, error) {
	return f.ads, nil
}

func (f *fakeConsole) GetAd(_ context.Context, id string) (*models.Ad, error) {
	for _, ad := range f.ads {
		if ad.ID == id {
			return ad, nil
		}
	}
	return nil, fmt.Errorf("failed to get ad: %w", models.ErrNotFound)
}

func (f *fakeConsole) PatchAd(_ context.Context, id string, patch models.AdPatch) (*models.Ad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = patch
	return &models.Ad{ID: id}, nil
}

func (f *fakeConsole) EditAggregate(context.Context, models.AggregateMetric, float64) (*models.RedistributionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggResult, f.aggErr
}

func (f *fakeConsole) setAggregate(result *models.RedistributionResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggResult, f.aggErr = result, err
}

func (f *fakeConsole) lastPatch() models.AdPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patched
}

func (f *fakeConsole) ExportCSV(_ context.Context, w io.Writer) error {
	_, err := io.WriteString(w, "\uFEFFCampaign performance report\n")
	return err
}

func (f *fakeConsole) IsBanned(_ context.Context, ip string) (*models.BannedIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banErr != nil {
		return nil, f.banErr
	}
	return f.bans[ip], nil
}

func (f *fakeConsole) BanIP(_ context.Context, ip, reason, by string) (*models.BannedIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ban := &models.BannedIP{IPAddress: ip, Reason: &reason, BannedBy: &by, IsActive: true}
	f.bans[ip] = ban
	return ban, nil
}

func (f *fakeConsole) CampaignMetrics(context.Context) ([]models.CampaignMetrics, error) {
	rows := models.DefaultCampaignMetrics()
	for i := range rows {
		rows[i].Label = rows[i].DateRange.Label()
	}
	return rows, nil
}

func (f *fakeConsole) SaveCampaignMetrics(ctx context.Context, rows []models.CampaignMetrics) ([]models.CampaignMetrics, error) {
	f.mu.Lock()
	f.savedMetrics = rows
	f.mu.Unlock()
	return f.CampaignMetrics(ctx)
}

func (f *fakeConsole) PatchCampaignMetrics(_ context.Context, r models.DateRange, patch models.MetricsPatch) (*models.CampaignMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangePatch = patch
	row := models.CampaignMetrics{DateRange: r, Label: r.Label()}
	if err := models.ApplyMetricsPatch(&row, patch); err != nil {
		return nil, err
	}
	return &row, nil
}

type nopSessions struct{}

func (nopSessions) CreateSession(context.Context, guard.DeviceInfo, time.Time) (string, error) {
	return "session-1", nil
}
func (nopSessions) TouchSession(context.Context, string, time.Time) error      { return nil }
func (nopSessions) DeactivateSession(context.Context, string, time.Time) error { return nil }

type fakeFeed struct {
	events []models.ChangeEvent
}

func (f *fakeFeed) Subscribe(int) (<-chan models.ChangeEvent, func()) {
	ch := make(chan models.ChangeEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}
}

type testEnv struct {
	console *fakeConsole
	sched   *guardtest.Scheduler
	guards  *guard.Registry
	server  *httptest.Server
	client  *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sched := guardtest.NewScheduler(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := guard.NewMemoryStore()
	addresses := guard.NewAddressLocks(store, nil)
	registry := guard.NewRegistry(func(key string) *guard.Guard {
		return guard.New(key, guard.Options{
			Secrets: guard.Secrets{Admin: adminSecret, Viewer: viewerSecret},
		}, guard.Deps{State: store, Sessions: nopSessions{}, Scheduler: sched, Addresses: addresses})
	}, sched, time.Hour, 0, logger.NewNop())

	console := &fakeConsole{
		ads:  []*models.Ad{{ID: "ad-1", Name: "Spring sale", Status: models.AdStatusActive}},
		bans: make(map[string]*models.BannedIP),
	}
	srv := NewHTTPServer(Options{AllowedOrigins: []string{"https://console.example.com"}}, Deps{
		Console: console,
		Guards:  registry,
		Feed:    &fakeFeed{events: []models.ChangeEvent{{Table: "ads", Op: models.OpUpdate, ID: "ad-1"}}},
		Logger:  logger.NewNop(),
	})

	ts := httptest.NewServer(srv.Handler())
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}
	t.Cleanup(func() {
		client.CloseIdleConnections()
		ts.Close()
		registry.Close()
	})
	return &testEnv{console: console, sched: sched, guards: registry, server: ts, client: client}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return res, out
}

func (e *testEnv) login(t *testing.T, secret string) {
	t.Helper()
	res, body := e.do(t, http.MethodPost, "/api/v1/auth/login", obj{"password": secret})
	require.Equal(t, http.StatusOK, res.StatusCode, body)
}

type obj = map[string]interface{}

func TestLoginLockoutAndRoles(t *testing.T) {
	env := newTestEnv(t)

	res, _ := env.do(t, http.MethodGet, "/api/v1/ads", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body := env.do(t, http.MethodPost, "/api/v1/auth/login", obj{"password": "guess"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "wrong password", body["error"])

	// The right secret is refused while the lockout runs.
	res, body = env.do(t, http.MethodPost, "/api/v1/auth/login", obj{"password": adminSecret})
	assert.Equal(t, http.StatusLocked, res.StatusCode)
	assert.Equal(t, float64(120), body["retry_after_seconds"])

	env.sched.Advance(50 * time.Second)
	res, body = env.do(t, http.MethodGet, "/api/v1/auth/status", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(70), body["retry_after_seconds"])

	env.sched.Advance(70 * time.Second)
	env.login(t, viewerSecret)

	res, body = env.do(t, http.MethodGet, "/api/v1/ads", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["ads"], 1)

	res, body = env.do(t, http.MethodPost, "/api/v1/ads", obj{"name": "New"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "read-only access", body["error"])

	res, _ = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = env.do(t, http.MethodGet, "/api/v1/ads", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

// post sends a request without the cookie jar, the way a script would.
func (e *testEnv) post(t *testing.T, path string, body interface{}, header http.Header) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	plain := &http.Client{}
	defer plain.CloseIdleConnections()
	res, err := plain.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	return res.StatusCode
}

func TestLockoutWithoutCookie(t *testing.T) {
	env := newTestEnv(t)
	login := "/api/v1/auth/login"

	assert.Equal(t, http.StatusUnauthorized, env.post(t, login, obj{"password": "guess"}, nil))
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusLocked, env.post(t, login, obj{"password": "guess"}, nil))
	}
	assert.Equal(t, http.StatusLocked, env.post(t, login, obj{"password": adminSecret}, nil))

	// Forwarded headers from an untrusted peer do not change the address.
	spoofed := http.Header{"X-Forwarded-For": []string{"198.51.100.9"}}
	assert.Equal(t, http.StatusLocked, env.post(t, login, obj{"password": adminSecret}, spoofed))

	// The browser client shares the address, so it waits too.
	res, body := env.do(t, http.MethodPost, login, obj{"password": adminSecret})
	assert.Equal(t, http.StatusLocked, res.StatusCode)
	assert.Equal(t, float64(120), body["retry_after_seconds"])

	env.sched.Advance(120 * time.Second)
	assert.Equal(t, http.StatusOK, env.post(t, login, obj{"password": adminSecret}, nil))
}

func TestCookielessReadsDoNotGrowRegistry(t *testing.T) {
	env := newTestEnv(t)
	plain := &http.Client{}
	defer plain.CloseIdleConnections()

	for i := 0; i < 20; i++ {
		res, err := plain.Get(env.server.URL + "/api/v1/auth/status")
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)

		res, err = plain.Get(env.server.URL + "/api/v1/ads")
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	}
	assert.Zero(t, env.guards.Len())

	// A login is kept, and later reads reuse it.
	env.login(t, viewerSecret)
	assert.Equal(t, 1, env.guards.Len())
	res, _ := env.do(t, http.MethodGet, "/api/v1/auth/status", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, env.guards.Len())
}

func TestBannedClientIsRejected(t *testing.T) {
	env := newTestEnv(t)
	reason := "scraping"
	env.console.mu.Lock()
	env.console.bans["127.0.0.1"] = &models.BannedIP{IPAddress: "127.0.0.1", Reason: &reason, IsActive: true}
	env.console.mu.Unlock()

	res, body := env.do(t, http.MethodPost, "/api/v1/auth/login", obj{"password": adminSecret})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "scraping", body["reason"])

	// A failing ban lookup does not lock everybody out.
	env.console.mu.Lock()
	env.console.banErr = models.ErrExternalStore
	env.console.mu.Unlock()
	env.login(t, adminSecret)
}

func TestPatchAd(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, adminSecret)

	res, body := env.do(t, http.MethodPatch, "/api/v1/ads/ad-1", obj{"field": "ctr", "value": 5})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body["error"], "unknown field")

	res, _ = env.do(t, http.MethodPatch, "/api/v1/ads/ad-1", obj{"field": "clicks", "value": -3})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = env.do(t, http.MethodPatch, "/api/v1/ads/ad-1", obj{"field": "clicks", "value": 120})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, models.SetClicks{Value: 120}, env.console.lastPatch())

	res, _ = env.do(t, http.MethodGet, "/api/v1/ads/missing", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEditAggregate(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, adminSecret)

	res, _ := env.do(t, http.MethodPut, "/api/v1/ads/totals/ctr", obj{"total": 10})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	env.console.setAggregate(nil, redistribute.ErrUndefinedRedistribution)
	res, _ = env.do(t, http.MethodPut, "/api/v1/ads/totals/clicks", obj{"total": 10})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	partial := &models.RedistributionResult{
		Metric: models.MetricClicks, Total: 10, Applied: []string{"ad-1"}, Failed: []string{"ad-2"},
	}
	env.console.setAggregate(partial, fmt.Errorf("%w: 1 of 2 ads not updated", models.ErrPartialUpdate))
	res, body := env.do(t, http.MethodPut, "/api/v1/ads/totals/clicks", obj{"total": 10})
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, []interface{}{"ad-2"}, result["failed"])

	env.console.setAggregate(partial, nil)
	res, _ = env.do(t, http.MethodPut, "/api/v1/ads/totals/clicks", obj{"total": 10})
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCampaignMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, viewerSecret)

	res, body := env.do(t, http.MethodGet, "/api/v1/campaign-metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	rows := body["metrics"].([]interface{})
	require.Len(t, rows, 4)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "today", first["date_range"])
	assert.Equal(t, "Today", first["label"])

	row := obj{"date_range": "Last 7 days", "impressions": 10, "cost": 5, "conversions": 1, "cpa": 5}
	res, _ = env.do(t, http.MethodPut, "/api/v1/campaign-metrics", obj{"metrics": []obj{row}})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	env.login(t, adminSecret)

	res, _ = env.do(t, http.MethodPut, "/api/v1/campaign-metrics", obj{"metrics": []obj{row}})
	require.Equal(t, http.StatusOK, res.StatusCode)
	env.console.mu.Lock()
	saved := env.console.savedMetrics
	env.console.mu.Unlock()
	require.Len(t, saved, 1)
	assert.Equal(t, models.RangeLast7Days, saved[0].DateRange)
	assert.Equal(t, int64(10), saved[0].Impressions)

	res, body = env.do(t, http.MethodPut, "/api/v1/campaign-metrics",
		obj{"metrics": []obj{{"date_range": "yesterday", "impressions": 1}}})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body["error"], "unknown field")

	res, _ = env.do(t, http.MethodPatch, "/api/v1/campaign-metrics/all_time", obj{"field": "ctr", "value": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = env.do(t, http.MethodPatch, "/api/v1/campaign-metrics/all_time", obj{"field": "cost", "value": -1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = env.do(t, http.MethodPatch, "/api/v1/campaign-metrics/last_year", obj{"field": "cost", "value": 1})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = env.do(t, http.MethodPatch, "/api/v1/campaign-metrics/all_time", obj{"field": "cpa", "value": 150.5})
	require.Equal(t, http.StatusOK, res.StatusCode)
	patched := body["metrics"].(map[string]interface{})
	assert.Equal(t, "All time", patched["label"])
	assert.Equal(t, 150.5, patched["cpa"])
	env.console.mu.Lock()
	assert.Equal(t, models.SetRangeCPA{Value: 150.5}, env.console.rangePatch)
	env.console.mu.Unlock()
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, viewerSecret)

	res, err := env.client.Get(env.server.URL + "/api/v1/ads/export.csv")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Regexp(t, `^attachment; filename="Campaign_\d{4}-\d{2}-\d{2}_\d{6}\.csv"$`, res.Header.Get("Content-Disposition"))
}

func TestChangesStream(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, viewerSecret)

	res, err := env.client.Get(env.server.URL + "/api/v1/changes")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/event-stream"))

	var lines []string
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	assert.Contains(t, lines, "event:change")
	assert.Contains(t, strings.Join(lines, "\n"), `"table":"ads"`)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/ads", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example.com")
	res, err := env.client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "https://console.example.com", res.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.net")
	res, err = env.client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{guard.ErrDenied, http.StatusUnauthorized},
		{&guard.LockedError{Remaining: time.Minute}, http.StatusLocked},
		{guard.ErrAttemptInFlight, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{fmt.Errorf("toggle: %w", models.ErrInvalidTransition), http.StatusConflict},
		{models.ErrUnknownField, http.StatusBadRequest},
		{redistribute.ErrInvalidInput, http.StatusBadRequest},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrPartialUpdate, http.StatusBadGateway},
		{fmt.Errorf("list ads: %w", models.ErrExternalStore), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestParseUserAgent(t *testing.T) {
	d := parseUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0")
	assert.Equal(t, "Firefox", d.BrowserName)
	assert.Equal(t, "desktop", d.DeviceType)

	d = parseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "mobile", d.DeviceType)

	d = parseUserAgent("")
	assert.Empty(t, d.DeviceType)
}
