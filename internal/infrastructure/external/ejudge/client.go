// Package ejudge implements access to the ejudge standings page.
// It downloads the merged standings of a contest range and parses
// per-student solved flags out of the HTML table.
package ejudge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/pkg/circuitbreaker"
	"github.com/lksh/markboard/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultBaseURL is the LKSH ejudge instance.
	DefaultBaseURL = "https://ejudge.lksh.ru"

	// standingsPath is the merged standings script of the dk server.
	standingsPath = "/standings/dk/stand.php"

	// maxPageSize bounds the downloaded page.
	maxPageSize = 32 << 20
)

// ClientConfig contains configuration for the ejudge client.
type ClientConfig struct {
	// BaseURL is the ejudge base URL
	BaseURL string

	// Contests is the contest range merged into the standings page
	Contests shared.ContestRange

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// UserAgent is sent with every request
	UserAgent string

	// MaxAttempts is the number of attempts per fetch (including the first one)
	MaxAttempts int

	// RetryInitialDelay is the backoff before the first retry
	RetryInitialDelay time.Duration

	// RetryMaxDelay caps the backoff between retries
	RetryMaxDelay time.Duration

	// BreakerThreshold is the number of consecutive failed fetches that opens the circuit
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open
	BreakerTimeout time.Duration

	// Pacing spaces requests to ejudge
	Pacing PacerConfig

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string, contests shared.ContestRange) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Contests:          contests,
		Timeout:           30 * time.Second,
		UserAgent:         "markboard/1.0",
		MaxAttempts:       3,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMaxDelay:     10 * time.Second,
		BreakerThreshold:  3,
		BreakerTimeout:    60 * time.Second,
		Pacing:            DefaultPacerConfig(),
	}
}

// StandingsURL builds the standings page URL for a contest range.
func StandingsURL(baseURL, from, to string) string {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	return strings.TrimRight(baseURL, "/") + standingsPath + "?" + q.Encode()
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client downloads standings pages from ejudge.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	pacer       *Pacer
	breaker     *circuitbreaker.Breaker
	backoff     retry.Backoff
}

// NewClient creates a new ejudge client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:      config.Logger.With("component", "ejudge_client"),
		pacer:       NewPacer(config.Pacing),
	}

	c.breaker = circuitbreaker.ForEjudge(
		config.BreakerThreshold,
		config.BreakerTimeout,
		func(from, to circuitbreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"from", from.String(),
				"to", to.String(),
			)
		},
	)

	c.backoff = retry.Backoff{
		Attempts: config.MaxAttempts,
		First:    config.RetryInitialDelay,
		Ceiling:  config.RetryMaxDelay,
		Jitter:   0.2,
		OnRetry: func(attempt int, err error, pause time.Duration) {
			c.logger.Warn("retrying standings fetch",
				"attempt", attempt,
				"pause", pause,
				"error", err,
			)
		},
	}

	return c
}

// URL returns the standings page URL this client fetches.
func (c *Client) URL() string {
	return StandingsURL(c.config.BaseURL, c.config.Contests.From, c.config.Contests.To)
}

// FetchStandings downloads the raw standings HTML.
func (c *Client) FetchStandings(ctx context.Context) ([]byte, error) {
	var page []byte

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.backoff.Run(ctx, func(ctx context.Context) error {
			if err := c.pacer.Wait(ctx); err != nil {
				return err
			}

			body, err := c.doSingleRequest(ctx)
			if err != nil {
				var rateLimitErr *RateLimitError
				if errors.As(err, &rateLimitErr) {
					c.pacer.Hold(rateLimitErr.RetryAfter)
				}
				return err
			}
			page = body
			return nil
		})
	})
	if err != nil {
		return nil, c.classify(err)
	}

	c.logger.Debug("standings page fetched", "bytes", len(page))
	return page, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	StatusCode int
	URL        string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("ejudge: unexpected status %d from %s", e.StatusCode, e.URL)
}

// doSingleRequest performs a single HTTP request. Errors worth retrying are
// marked with retry.Transient.
func (c *Client) doSingleRequest(ctx context.Context) ([]byte, error) {
	fullURL := c.URL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Transient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.Transient(&RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    "ejudge rate limit exceeded",
		})
	case resp.StatusCode >= 500:
		return nil, retry.Transient(&StatusError{StatusCode: resp.StatusCode, URL: fullURL})
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: fullURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read response: %w", err))
	}
	return body, nil
}

// classify maps transport errors onto domain error kinds.
func (c *Client) classify(err error) error {
	var rateLimitErr *RateLimitError
	var statusErr *StatusError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return shared.WrapError("ejudge", "FetchStandings", shared.ErrServiceUnavailable, "circuit breaker is open", err)
	case errors.As(err, &rateLimitErr):
		return shared.WrapError("ejudge", "FetchStandings", shared.ErrRateLimited, "ejudge rate limit exceeded", err)
	case errors.As(err, &statusErr) && statusErr.StatusCode < 500:
		return shared.WrapError("ejudge", "FetchStandings", shared.ErrExternalService, "ejudge rejected the request", err)
	default:
		return shared.WrapError("ejudge", "FetchStandings", shared.ErrEjudgeUnavailable, "standings fetch failed", err)
	}
}

// parseRetryAfter parses a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
