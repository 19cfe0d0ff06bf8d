package handlers

import (
	"context"
	"strings"
	"time"
)

// HealthChecker reports whether the stores behind the API answer.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthStatus is the body of /health.
type HealthStatus struct {
	Healthy bool                   `json:"healthy"`
	Message string                 `json:"message"`
	Version string                 `json:"version,omitempty"`
	Uptime  string                 `json:"uptime"`
	Stores  map[string]StoreStatus `json:"stores,omitempty"`
}

// StoreStatus is the outcome of one ping.
type StoreStatus struct {
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// Pinger is implemented by the PostgreSQL connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// storePingTimeout bounds each ping.
const storePingTimeout = 3 * time.Second

// StoreHealth pings PostgreSQL and Redis. A nil store is not configured and
// is left out of the report; with neither configured the service is healthy.
type StoreHealth struct {
	version  string
	started  time.Time
	postgres Pinger
	redis    Pinger
}

// NewStoreHealth creates a checker for the given stores.
func NewStoreHealth(version string, postgres, redis Pinger) *StoreHealth {
	return &StoreHealth{version: version, started: time.Now(), postgres: postgres, redis: redis}
}

// Check pings every configured store.
func (h *StoreHealth) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Message: "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}

	var down []string
	for _, store := range []struct {
		name string
		p    Pinger
	}{{"postgres", h.postgres}, {"redis", h.redis}} {
		if store.p == nil {
			continue
		}
		if status.Stores == nil {
			status.Stores = make(map[string]StoreStatus, 2)
		}
		s := ping(ctx, store.p)
		status.Stores[store.name] = s
		if !s.Healthy {
			down = append(down, store.name)
		}
	}

	if len(down) > 0 {
		status.Healthy = false
		status.Message = "unavailable: " + strings.Join(down, ", ")
	}
	return status
}

func ping(ctx context.Context, p Pinger) StoreStatus {
	ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	s := StoreStatus{Healthy: err == nil, Latency: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
