package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/infrastructure/identity"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRUSTED IDENTITY MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidTokenHash is returned when the configured proxy token hash is not a bcrypt hash.
var ErrInvalidTokenHash = errors.New("proxy token hash is not a valid bcrypt hash")

// ProxyIdentity accepts the user email set by an authenticating proxy.
// When a token hash is configured, the identity header is trusted only if
// the request also carries the matching proxy token.
type ProxyIdentity struct {
	identityHeader string
	tokenHeader    string
	tokenHash      []byte

	// bcrypt is slow on purpose; accepted tokens are remembered.
	mu       sync.RWMutex
	verified map[string]struct{}
}

// NewProxyIdentity creates the middleware. An empty tokenHash trusts the
// identity header unconditionally.
func NewProxyIdentity(identityHeader, tokenHeader, tokenHash string) (*ProxyIdentity, error) {
	p := &ProxyIdentity{
		identityHeader: identityHeader,
		tokenHeader:    tokenHeader,
		verified:       make(map[string]struct{}),
	}
	if tokenHash != "" {
		if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
			return nil, ErrInvalidTokenHash
		}
		p.tokenHash = []byte(tokenHash)
	}
	return p, nil
}

// Middleware stores the trusted identity in the request context.
// Requests without the identity header stay anonymous.
func (p *ProxyIdentity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(p.identityHeader)
		if strings.TrimSpace(email) == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !p.tokenValid(r.Header.Get(p.tokenHeader)) {
			writeMiddlewareError(w, http.StatusUnauthorized, "invalid_proxy_token", "Identity header requires a valid proxy token")
			return
		}

		ctx := identity.WithIdentity(r.Context(), progress.Identity{Email: email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (p *ProxyIdentity) tokenValid(token string) bool {
	if p.tokenHash == nil {
		return true
	}
	if token == "" {
		return false
	}

	p.mu.RLock()
	_, ok := p.verified[token]
	p.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword(p.tokenHash, []byte(token)) != nil {
		return false
	}

	p.mu.Lock()
	p.verified[token] = struct{}{}
	p.mu.Unlock()
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	lastGC   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter allowing rps requests per second with
// the given burst for each IP.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      10 * time.Minute,
		lastGC:   time.Now(),
	}
}

// Allow reports whether a request from ip may proceed.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	if now.Sub(l.lastGC) > l.ttl {
		for key, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.limiters, key)
			}
		}
		l.lastGC = now
	}
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeMiddlewareError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client IP from the request.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMEOUT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// TimeoutMiddleware bounds the request context. Handlers observe the
// deadline through ctx; the response is still written by the handler.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// NoCacheMiddleware prevents caching of per-user responses.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeMiddlewareError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain chains multiple middleware functions. The first one is outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// ChainHandler chains middleware and wraps a final handler.
func ChainHandler(handler http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(handler)
}

// writeMiddlewareError writes the same envelope shape as the API handlers.
func writeMiddlewareError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"data":    nil,
		"error":   map[string]string{"code": code, "message": message},
		"meta":    map[string]interface{}{"timestamp": time.Now().UTC()},
	})
}
