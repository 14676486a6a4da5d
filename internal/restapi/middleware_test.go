package restapi

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	})
}

func TestRequestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger(&buf, slog.LevelInfo)

	handler := NewRequestLoggingMiddleware(logger)(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/rules?key=secret", nil)
	req.Header.Set("User-Agent", "test-client/1.0")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)

	output := buf.String()
	assert.Contains(t, output, `"msg":"http_request"`)
	assert.Contains(t, output, `"method":"GET"`)
	assert.Contains(t, output, `"path":"/api/v1/rules"`)
	assert.Contains(t, output, `"status":200`)
	assert.Contains(t, output, `"bytes":13`)
	assert.Contains(t, output, `"user_agent":"test-client/1.0"`)
	assert.Contains(t, output, `"component":"http_server"`)
	assert.NotContains(t, output, "secret")
}

func TestRequestLoggingMiddlewareStoresLogger(t *testing.T) {
	logger := logging.NewStructuredLogger(io.Discard, slog.LevelInfo)
	var got *slog.Logger
	handler := NewRequestLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/audits", nil))
	assert.Same(t, logger, got)
	assert.Equal(t, http.StatusTeapot, recorder.Code)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	headers := rec.Header()
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", headers.Get("Strict-Transport-Security"))
	assert.Equal(t, "strict-origin-when-cross-origin", headers.Get("Referrer-Policy"))
	assert.Empty(t, headers.Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeadersWithCORSPreflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/api/v1/audits", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	securityHeaders(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, rec.Body.String())
}

func TestCompressionMiddleware(t *testing.T) {
	large := strings.Repeat(`{"rule_id":"RI01"}`, 500)
	handler := CompressionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(large))
	}))

	req := httptest.NewRequest("GET", "/api/v1/rules", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, large, string(decoded))

	// small responses stay uncompressed
	small := CompressionMiddleware(okHandler())
	rec = httptest.NewRecorder()
	small.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "test response", rec.Body.String())
}

func TestRateLimitMiddleware_BlocksRequestsOverLimit(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)
	defer rl.Stop()
	limited := rl.rateLimitHandler(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest("GET", "/test?key=test-api-key", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}

	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest("GET", "/test?key=test-api-key", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")

	// other clients have their own budget
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest("GET", "/test?key=other-key", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_KeylessRequestsUseClientAddress(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.Stop()
	limited := rl.rateLimitHandler(okHandler())

	first := httptest.NewRequest("GET", "/healthz", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	second := httptest.NewRequest("GET", "/healthz", nil)
	second.RemoteAddr = "10.0.0.1:5678"
	third := httptest.NewRequest("GET", "/healthz", nil)
	third.RemoteAddr = "10.0.0.2:1234"

	codes := make([]int, 0, 3)
	for _, r := range []*http.Request{first, second, third} {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}, codes)
}

func TestRateLimitMiddleware_DisabledWhenZero(t *testing.T) {
	limited := NewRateLimitMiddleware(0, time.Second)(okHandler())
	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
