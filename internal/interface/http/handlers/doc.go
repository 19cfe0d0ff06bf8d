// Package handlers contains reusable HTTP building blocks of the markboard API.
//
// This package provides:
//   - The store health checker behind /health and /ready
//   - Admin API key authentication backed by a bcrypt hash
//   - Cache control and security header middleware
//
// # Health Checks
//
// StoreHealth pings PostgreSQL and Redis; a store that is not configured is
// passed as nil and left out:
//
//	checker := handlers.NewStoreHealth("v1.0.0", conn, cache)
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    slog.Warn("health check failed", "message", status.Message)
//	}
//
// # Admin Authentication
//
// Only the bcrypt hash of the admin key is configured (ADMIN_API_KEY_HASH).
// The key itself is sent in the X-API-Key header or as a Bearer token:
//
//	auth := handlers.NewAdminKeyAuth(handlers.DefaultAdminKeyHeader, cfg.HTTP.AdminAPIKeyHash)
//	r.With(auth.Middleware).Post("/api/v1/refresh", refresh)
package handlers
