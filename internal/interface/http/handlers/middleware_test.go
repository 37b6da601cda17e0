package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduplatform/progress-hub/internal/infrastructure/identity"
)

// whoami echoes the identity the middleware stored.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(id.Email))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProxyIdentity_NoHashTrustsHeader(t *testing.T) {
	p, err := NewProxyIdentity("X-User-Email", "X-Proxy-Token", "")
	require.NoError(t, err)
	h := p.Middleware(whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "anonymous", serve(h, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Email", "  Ana@Example.com ")
	assert.Equal(t, "ana@example.com", serve(h, req).Body.String())
}

func TestProxyIdentity_TokenRequired(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	p, err := NewProxyIdentity("X-User-Email", "X-Proxy-Token", string(hash))
	require.NoError(t, err)
	h := p.Middleware(whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Email", "ana@example.com")
	rec := serve(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_proxy_token")

	req.Header.Set("X-Proxy-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	for i := 0; i < 2; i++ {
		req.Header.Set("X-Proxy-Token", "s3cret")
		rec = serve(h, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ana@example.com", rec.Body.String())
	}

	// Anonymous requests never need the token.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "anonymous", serve(h, req).Body.String())
}

func TestNewProxyIdentity_RejectsBadHash(t *testing.T) {
	_, err := NewProxyIdentity("X-User-Email", "X-Proxy-Token", "plain-text")
	assert.ErrorIs(t, err, ErrInvalidTokenHash)
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	h := l.Middleware(whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	rec := serve(h, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	assert.Equal(t, http.StatusOK, serve(h, other).Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:40000"
	assert.Equal(t, "192.168.1.7", ClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.3")
	assert.Equal(t, "172.16.0.3", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h := RequestSizeLimitMiddleware(8)(whoami)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	rec := serve(h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "payload_too_large")
}

func TestChain_FirstIsOutermost(t *testing.T) {
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := ChainHandler(whoami, mark("a"), mark("b"), mark("c"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSecurityAndNoCacheHeaders(t *testing.T) {
	h := ChainHandler(whoami, SecurityHeadersMiddleware, NoCacheMiddleware)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}
