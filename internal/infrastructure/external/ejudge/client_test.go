package ejudge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContests = shared.ContestRange{From: "030813", To: "030817"}

func testClientConfig(baseURL string) ClientConfig {
	cfg := DefaultClientConfig(baseURL, testContests)
	cfg.Timeout = 2 * time.Second
	cfg.RetryInitialDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	cfg.Pacing = PacerConfig{
		PerSecond: 1000,
		MaxWait:   time.Second,
		Hold:      5 * time.Millisecond,
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestStandingsURL(t *testing.T) {
	assert.Equal(t,
		"https://ejudge.lksh.ru/standings/dk/stand.php?from=030813&to=030817",
		StandingsURL("https://ejudge.lksh.ru/", "030813", "030817"),
	)
}

func TestClient_FetchStandings(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/standings/dk/stand.php", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, standingsPage)
	}))
	defer srv.Close()

	client := NewClient(testClientConfig(srv.URL))
	page, err := client.FetchStandings(context.Background())

	require.NoError(t, err)
	assert.Equal(t, standingsPage, string(page))
	assert.Equal(t, "from=030813&to=030817", gotQuery)
	assert.Equal(t, "markboard/1.0", gotUA)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "<table></table>")
	}))
	defer srv.Close()

	page, err := NewClient(testClientConfig(srv.URL)).FetchStandings(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "<table></table>", string(page))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, "<table></table>")
	}))
	defer srv.Close()

	_, err := NewClient(testClientConfig(srv.URL)).FetchStandings(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(testClientConfig(srv.URL)).FetchStandings(context.Background())

	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(testClientConfig(srv.URL)).FetchStandings(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	cfg.MaxAttempts = 1
	cfg.BreakerThreshold = 2
	cfg.BreakerTimeout = time.Hour
	client := NewClient(cfg)

	for i := 0; i < 2; i++ {
		_, err := client.FetchStandings(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, client.breaker.State())

	_, err := client.FetchStandings(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(testClientConfig(srv.URL)).FetchStandings(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSource_FetchParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, standingsPage)
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	source := NewSource(NewClient(cfg), smallGrid, cfg.Logger)

	table, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestSource_FetchBrokenPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body>maintenance</body></html>")
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	source := NewSource(NewClient(cfg), smallGrid, cfg.Logger)

	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestPacer_SpacesSlots(t *testing.T) {
	p := NewPacer(PacerConfig{PerSecond: 10})
	now := time.Now()

	d, err := p.reserve(now)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = p.reserve(now)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)

	d, err = p.reserve(now.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestPacer_HoldBlocks(t *testing.T) {
	p := NewPacer(PacerConfig{PerSecond: 1000, MaxWait: 10 * time.Millisecond})

	require.NoError(t, p.Wait(context.Background()))

	p.Hold(time.Minute)
	err := p.Wait(context.Background())

	var rateLimitErr *RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Greater(t, rateLimitErr.RetryAfter, 50*time.Second)
}

func TestPacer_HoldDefault(t *testing.T) {
	p := NewPacer(PacerConfig{PerSecond: 1000, Hold: time.Hour})
	p.Hold(0)

	d, err := p.reserve(time.Now())
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Hour), float64(d), float64(time.Second))
}

func TestPacer_CancelledWait(t *testing.T) {
	p := NewPacer(PacerConfig{PerSecond: 1})
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
