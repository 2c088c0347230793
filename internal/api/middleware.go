package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/errmodel"
	"github.com/ArtemFilin1990/bitrix24-mcp-proxy/internal/proxy"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// --- Token cache ---

// tokenCache remembers tokens that already passed the bcrypt check.
// Keys are SHA-256 digests so plaintext tokens are never held.
type tokenCache struct {
	entries sync.Map // map[string]time.Time (expiry)
	ttl     time.Duration
	now     func() time.Time
}

func newTokenCache(ttl time.Duration) *tokenCache {
	return &tokenCache{ttl: ttl, now: time.Now}
}

func (c *tokenCache) valid(key string) bool {
	v, ok := c.entries.Load(key)
	if !ok {
		return false
	}
	if c.now().Before(v.(time.Time)) {
		return true
	}
	c.entries.Delete(key)
	return false
}

func (c *tokenCache) remember(key string) {
	c.entries.Store(key, c.now().Add(c.ttl))
}

// --- Auth middleware ---

// authMiddleware gates next behind the shared bearer token when
// TokenHash is set. An empty hash leaves the route open.
func (d *Dependencies) authMiddleware(next http.Handler) http.Handler {
	if d.TokenHash == "" {
		return next
	}
	hash := []byte(d.TokenHash)
	cache := newTokenCache(d.CacheTTL)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{
				Message: "Missing or invalid Authorization header",
				Code:    errmodel.CodeUnauthorized,
			})
			return
		}

		sum := sha256.Sum256([]byte(token))
		key := hex.EncodeToString(sum[:])
		if cache.valid(key) {
			next.ServeHTTP(w, r)
			return
		}

		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			d.Logger.Warn("auth failed", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{
				Message: "Invalid token",
				Code:    errmodel.CodeUnauthorized,
			})
			return
		}
		cache.remember(key)
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// --- Request id ---

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(proxy.WithRequestID(r.Context(), id)))
	})
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming MCP responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Mcp-Session-Id, Mcp-Protocol-Version, "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id, "+RequestIDHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
