package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN KEY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAdminKeyHeader carries the admin key. A Bearer token works too.
const DefaultAdminKeyHeader = "X-API-Key"

// AdminKeyAuth guards /refresh and /jobs with one shared key. Only its
// bcrypt hash is configured.
type AdminKeyAuth struct {
	header string
	hash   []byte
}

// NewAdminKeyAuth with an empty hash turns the admin endpoints off.
func NewAdminKeyAuth(header, bcryptHash string) *AdminKeyAuth {
	if header == "" {
		header = DefaultAdminKeyHeader
	}
	return &AdminKeyAuth{header: header, hash: []byte(bcryptHash)}
}

func (a *AdminKeyAuth) Enabled() bool {
	return len(a.hash) > 0
}

// Accepts compares a plaintext key with the hash.
func (a *AdminKeyAuth) Accepts(key string) bool {
	return a.Enabled() && key != "" && bcrypt.CompareHashAndPassword(a.hash, []byte(key)) == nil
}

// presented returns the key from the configured header or the bearer token.
func (a *AdminKeyAuth) presented(r *http.Request) string {
	if key := r.Header.Get(a.header); key != "" {
		return key
	}
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return key
	}
	return ""
}

func (a *AdminKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeAuthError(w, http.StatusForbidden, "admin_disabled", "Administrative API is disabled")
			return
		}
		switch key := a.presented(r); {
		case key == "":
			writeAuthError(w, http.StatusUnauthorized, "missing_api_key", "API key is required")
		case !a.Accepts(key):
			writeAuthError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// HashAdminKey produces the value for ADMIN_API_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(hash), err
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// NoCacheMiddleware marks admin answers as never cacheable.
var NoCacheMiddleware = chiMiddleware.NoCache

// SecurityHeadersMiddleware sets headers for a JSON-only API.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	h := next
	for name, value := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	} {
		h = chiMiddleware.SetHeader(name, value)(h)
	}
	return h
}
