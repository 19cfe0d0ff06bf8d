package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lksh/markboard/internal/application/command"
	"github.com/lksh/markboard/internal/application/query"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
	"github.com/lksh/markboard/internal/interface/http/handlers"
	"github.com/lksh/markboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeResults struct {
	results []standings.Result
	err     error
}

func (f fakeResults) Handle(context.Context) ([]standings.Result, error) { return f.results, f.err }

type fakeRanked struct {
	rows []standings.Row
	err  error
}

func (f fakeRanked) Handle(context.Context) ([]standings.Row, error) { return f.rows, f.err }

type fakePersonal struct {
	byID map[shared.EJID]standings.PersonalResult
	err  error
}

func (f fakePersonal) Handle(_ context.Context, q query.GetPersonalResultQuery) (*query.PersonalResultDTO, error) {
	if f.err != nil {
		return nil, f.err
	}
	res, ok := f.byID[q.EJID]
	if !ok {
		return &query.PersonalResultDTO{Found: false, Error: standings.NotFoundMessage}, nil
	}
	return &query.PersonalResultDTO{Found: true, Result: &res}, nil
}

type fakeSyncer struct {
	result *command.SyncStandingsResult
	err    error
	calls  int
}

func (f *fakeSyncer) Handle(context.Context) (*command.SyncStandingsResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSnapshots struct {
	gotLimit int
	err      error
}

func (f *fakeSnapshots) Handle(_ context.Context, q query.ListSnapshotsQuery) ([]standings.Summary, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	f.gotLimit = q.Limit
	return []standings.Summary{{ID: "snap-1", Students: 2}}, f.err
}

const testAdminKey = "s3cret-admin-key"

func newTestServer(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()

	hash, err := handlers.HashAdminKey(testAdminKey)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.AdminAPIKeyHash = hash
	cfg.Version = "test"

	deps.Logger = logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
	return NewServer(cfg, deps).Handler()
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

var sampleResults = []standings.Result{
	{FirstName: "Иван", LastName: "Иванов", Group: "A", Score: 5, EJID: 101},
	{FirstName: "Anna", LastName: "Smith", Group: "B", Score: 0, EJID: 202},
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetResults_WritesBareArray(t *testing.T) {
	h := newTestServer(t, Dependencies{Results: fakeResults{results: sampleResults}})

	rec := do(t, h, http.MethodGet, "/api/v1/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"first_name":"Иван"`)

	var got []standings.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sampleResults, got)
}

func TestGetResults_EmptyIsArray(t *testing.T) {
	h := newTestServer(t, Dependencies{Results: fakeResults{}})

	rec := do(t, h, http.MethodGet, "/api/v1/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetResults_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"upstream down", shared.ErrEjudgeUnavailable, http.StatusBadGateway, "upstream_error"},
		{
			"broken page",
			shared.WrapError("ejudge", "Fetch", shared.ErrExternalService, "invalid standings page",
				shared.NewDomainError("standings", "ParseEJID", shared.ErrInvalidID, "ejudge ID is not a number")),
			http.StatusBadGateway, "upstream_error",
		},
		{"empty standings", shared.ErrEmptyStandings, http.StatusBadGateway, "upstream_error"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"in progress", shared.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
		{"not found", shared.ErrSnapshotNotFound, http.StatusNotFound, "not_found"},
		{"unexpected", io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Dependencies{Results: fakeResults{err: tt.err}})

			rec := do(t, h, http.MethodGet, "/api/v1/results", nil)
			assert.Equal(t, tt.status, rec.Code)

			resp := decodeEnvelope(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestGetResultsCSV(t *testing.T) {
	rows := []standings.Row{
		{Group: "A", LastName: "Иванов", FirstName: "Иван", EJID: 101, Mark: 5},
	}
	h := newTestServer(t, Dependencies{Ranked: fakeRanked{rows: rows}})

	rec := do(t, h, http.MethodGet, "/api/v1/results.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="results.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "A,Иванов,Иван,101,5")
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSONAL
// ══════════════════════════════════════════════════════════════════════════════

func TestGetPersonalResult(t *testing.T) {
	deps := Dependencies{Personal: fakePersonal{byID: map[shared.EJID]standings.PersonalResult{
		101: {FirstName: "Иван", LastName: "Иванов", Group: "A", Score: 2, Solved: []int{1, 0, 1}, EJID: 101},
	}}}
	h := newTestServer(t, deps)

	t.Run("found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/results/101", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got standings.PersonalResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2, got.Score)
		assert.Equal(t, []int{1, 0, 1}, got.Solved)
	})

	t.Run("missing student", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/results/999", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"ID не найден"}`, rec.Body.String())
	})

	t.Run("zero and negative ids are lookups", func(t *testing.T) {
		for _, id := range []string{"0", "-5"} {
			rec := do(t, h, http.MethodGet, "/api/v1/results/"+id, nil)
			assert.Equal(t, http.StatusNotFound, rec.Code, id)
			assert.JSONEq(t, `{"error":"ID не найден"}`, rec.Body.String(), id)
		}
	})

	t.Run("non-numeric id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/results/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_ejid", decodeEnvelope(t, rec).Error.Code)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

func TestListSnapshots(t *testing.T) {
	snaps := &fakeSnapshots{}
	h := newTestServer(t, Dependencies{Snapshots: snaps})

	rec := do(t, h, http.MethodGet, "/api/v1/snapshots?limit=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, query.MaxSnapshotsLimit, snaps.gotLimit)

	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 1, *resp.Count)

	rec = do(t, h, http.MethodGet, "/api/v1/snapshots?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/snapshots?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnconfiguredEndpoints(t *testing.T) {
	h := newTestServer(t, Dependencies{})

	for _, target := range []string{
		"/api/v1/results",
		"/api/v1/results.csv",
		"/api/v1/results/1",
		"/api/v1/snapshots",
		"/api/v1/snapshots/abc/results",
	} {
		rec := do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code, target)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func TestRefresh(t *testing.T) {
	syncer := &fakeSyncer{result: &command.SyncStandingsResult{
		SnapshotID: "snap-1",
		Students:   2,
		Cached:     true,
		FetchedAt:  time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}}
	h := newTestServer(t, Dependencies{Sync: syncer})

	rec := do(t, h, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/refresh", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, syncer.calls)

	rec = do(t, h, http.MethodPost, "/api/v1/refresh", map[string]string{"X-API-Key": testAdminKey})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, syncer.calls)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Contains(t, rec.Body.String(), `"snapshot_id":"snap-1"`)

	rec = do(t, h, http.MethodGet, "/api/v1/refresh", map[string]string{"X-API-Key": testAdminKey})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefresh_InProgress(t *testing.T) {
	h := newTestServer(t, Dependencies{Sync: &fakeSyncer{err: shared.ErrSyncInProgress}})

	rec := do(t, h, http.MethodPost, "/api/v1/refresh", map[string]string{"Authorization": "Bearer " + testAdminKey})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MISC
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthEndpoints(t *testing.T) {
	checker := handlers.NewStoreHealth("test", pingStore{}, nil)
	h := newTestServer(t, Dependencies{HealthChecker: checker})

	for _, target := range []string{"/health", "/healthz", "/ready", "/live", "/"} {
		rec := do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}

	rec := do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type pingStore struct{ err error }

func (p pingStore) Ping(context.Context) error { return p.err }

func TestHealthEndpoints_StoreDown(t *testing.T) {
	checker := handlers.NewStoreHealth("test", nil, pingStore{err: errors.New("connection refused")})
	h := newTestServer(t, Dependencies{HealthChecker: checker})

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable: redis")

	rec = do(t, h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newTestServer(t, Dependencies{Results: panicResults{}})

	rec := do(t, h, http.MethodGet, "/api/v1/results", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "internal_server_error"))
}

type panicResults struct{}

func (panicResults) Handle(context.Context) ([]standings.Result, error) { panic("boom") }

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(2, time.Minute)
	now := time.Now()

	_, ok := l.Allow("1.2.3.4", now)
	assert.True(t, ok)
	_, ok = l.Allow("1.2.3.4", now.Add(time.Second))
	assert.True(t, ok)

	wait, ok := l.Allow("1.2.3.4", now.Add(10*time.Second))
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, wait)

	_, ok = l.Allow("5.6.7.8", now.Add(10*time.Second))
	assert.True(t, ok)

	_, ok = l.Allow("1.2.3.4", now.Add(time.Minute))
	assert.True(t, ok, "a new window starts fresh")
}

func TestIPLimiter_SweepsExpiredWindows(t *testing.T) {
	l := newIPLimiter(1, time.Minute)
	now := time.Now()

	l.Allow("1.2.3.4", now)
	l.Allow("5.6.7.8", now)
	require.Len(t, l.buckets, 2)

	l.Allow("9.9.9.9", now.Add(2*time.Minute))
	assert.Len(t, l.buckets, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 1
	deps := Dependencies{Logger: logger.New(logger.Options{Output: io.Discard})}
	h := NewServer(cfg, deps).Handler()

	rec := do(t, h, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeEnvelope(t, rec).Error.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	h := newTestServer(t, Dependencies{})

	rec := do(t, h, http.MethodGet, "/live", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
