// Package http implements the REST API of markboard: the results dashboard
// JSON, the ranked CSV export, snapshot history, an administrative refresh
// endpoint and health checks.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lksh/markboard/internal/application/command"
	"github.com/lksh/markboard/internal/application/query"
	"github.com/lksh/markboard/internal/domain/standings"
	"github.com/lksh/markboard/internal/infrastructure/scheduler"
	"github.com/lksh/markboard/internal/interface/http/handlers"
	"github.com/lksh/markboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout time.Duration
	// WriteTimeout must exceed the ejudge timeout: /refresh runs a full sync.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AllowedOrigins for CORS. Empty disables CORS headers.
	AllowedOrigins []string

	// RateLimitPerMinute per client IP. Zero disables the limiter.
	RateLimitPerMinute int

	// AdminAPIKeyHash is the bcrypt hash of the admin key. Empty disables
	// the admin endpoints.
	AdminAPIKeyHash string

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       90 * time.Second,
		IdleTimeout:        60 * time.Second,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		Version:            "dev",
	}
}

// Address is host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ResultsReader returns the bulk results in table order.
type ResultsReader interface {
	Handle(ctx context.Context) ([]standings.Result, error)
}

// RankedReader returns the ranked export rows.
type RankedReader interface {
	Handle(ctx context.Context) ([]standings.Row, error)
}

// PersonalReader looks up one student.
type PersonalReader interface {
	Handle(ctx context.Context, q query.GetPersonalResultQuery) (*query.PersonalResultDTO, error)
}

// SnapshotLister lists stored snapshots.
type SnapshotLister interface {
	Handle(ctx context.Context, q query.ListSnapshotsQuery) ([]standings.Summary, error)
}

// SnapshotResultsReader returns the results of one stored snapshot.
type SnapshotResultsReader interface {
	Handle(ctx context.Context, snapshotID string) ([]standings.Result, error)
}

// StandingsSyncer runs a standings synchronization.
type StandingsSyncer interface {
	Handle(ctx context.Context) (*command.SyncStandingsResult, error)
}

// JobLister reports the state of background jobs.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// Dependencies of the HTTP layer. A nil reader makes its endpoints answer 501.
type Dependencies struct {
	Results         ResultsReader
	Ranked          RankedReader
	Personal        PersonalReader
	Snapshots       SnapshotLister
	SnapshotResults SnapshotResultsReader

	Sync StandingsSyncer
	Jobs JobLister

	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the markboard HTTP API.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger
	adminAuth  *handlers.AdminKeyAuth
	limiter    *ipLimiter
}

// NewServer wires the routes. It does not listen until StartAsync.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:    config,
		deps:      deps,
		router:    chi.NewRouter(),
		logger:    deps.Logger,
		adminAuth: handlers.NewAdminKeyAuth(handlers.DefaultAdminKeyHeader, config.AdminAPIKeyHash),
	}

	if s.logger == nil {
		s.logger = logger.New(logger.Options{})
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewStoreHealth(config.Version, nil, nil)
	}
	if config.RateLimitPerMinute > 0 {
		s.limiter = newIPLimiter(config.RateLimitPerMinute, time.Minute)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupMiddleware installs the global middleware, outermost first.
func (s *Server) setupMiddleware() {
	s.router.Use(chiMiddleware.RealIP)
	if s.limiter != nil {
		s.router.Use(s.rateLimitMiddleware)
	}
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(handlers.SecurityHeadersMiddleware)
}

func (s *Server) setupRoutes() {
	r := s.router

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/results", s.handleGetResults)
		r.Get("/results.csv", s.handleGetResultsCSV)
		r.Get("/results/{ejid}", s.handleGetPersonalResult)
		r.Get("/snapshots", s.handleListSnapshots)
		r.Get("/snapshots/{id}/results", s.handleGetSnapshotResults)

		r.Group(func(r chi.Router) {
			r.Use(s.adminAuth.Middleware)
			r.Use(handlers.NoCacheMiddleware)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/jobs", s.handleListJobs)
		})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestIDMiddleware keeps the caller's X-Request-ID or issues a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// requestLog is the server logger bound to the request ID.
func (s *Server) requestLog(r *http.Request) *logger.Logger {
	return s.logger.WithRequestID(requestID(r))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requestLog(r).Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Latency(time.Since(start)),
			logger.String("ip", clientIP(r)),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500 envelope.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.requestLog(r).Error("panic recovered",
				logger.Any("panic", rec),
				logger.String("path", r.URL.Path),
				logger.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, "+requestIDHeader)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := s.limiter.Allow(clientIP(r), time.Now()); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the host part of RemoteAddr, which RealIP has already
// rewritten from X-Forwarded-For or X-Real-IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// StartAsync listens in a goroutine. The channel yields a listen error, if
// any, and is closed when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// envelope wraps every JSON answer except the results endpoints, whose
// bodies are fixed contracts.
type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Count     *int      `json:"count,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Time      time.Time `json:"time"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeRawJSON(w, status, envelope{
		Success:   status < http.StatusBadRequest,
		Data:      data,
		RequestID: requestID(r),
		Time:      time.Now().UTC(),
	})
}

// writeList is writeData for collections; the count is always present.
func writeList(w http.ResponseWriter, r *http.Request, data any, n int) {
	writeRawJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Count:     &n,
		RequestID: requestID(r),
		Time:      time.Now().UTC(),
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeRawJSON(w, status, envelope{
		Error: &apiError{Code: code, Message: message},
		Time:  time.Now().UTC(),
	})
}

func writeNotImplemented(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotImplemented, "not_implemented", message)
}

func writeRawJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITING
// ══════════════════════════════════════════════════════════════════════════════

// ipLimiter counts requests per client IP in fixed windows. Expired
// windows are dropped on the first request after a window boundary.
type ipLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	swept   time.Time
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	n     int
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// Allow counts one request from ip at now. When refused, wait is the time
// left in the current window.
func (l *ipLimiter) Allow(ip string, now time.Time) (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) >= l.window {
		for k, b := range l.buckets {
			if now.Sub(b.start) >= l.window {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}

	b, found := l.buckets[ip]
	if !found || now.Sub(b.start) >= l.window {
		l.buckets[ip] = &bucket{start: now, n: 1}
		return 0, true
	}
	if b.n >= l.limit {
		return l.window - now.Sub(b.start), false
	}
	b.n++
	return 0, true
}
