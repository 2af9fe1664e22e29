package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskguard/riskguard/internal/auth"
	"github.com/riskguard/riskguard/internal/config"
	"github.com/riskguard/riskguard/internal/logger"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Environment = "development"
	cfg.Cookie.SessionName = "session"
	cfg.Security.RateLimiting.Enabled = true
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

type stubVerifier map[string]string

func (s stubVerifier) Verify(token string) (*auth.Claims, error) {
	sub, ok := s[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	c := &auth.Claims{}
	c.Subject = sub
	return c, nil
}

func TestAuth(t *testing.T) {
	m := New(nil, logger.Nop(), testConfig())
	h := m.Auth(stubVerifier{"good": "user-1"})(okHandler())

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{"no credentials", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK, "user-1"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, http.StatusOK, "user-1"},
		{"session cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "good"}) }, http.StatusOK, "user-1"},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer forged") }, http.StatusUnauthorized, ""},
		{"identity header only", func(r *http.Request) { r.Header.Set("X-User-ID", "admin") }, http.StatusUnauthorized, ""},
		{"identity header is ignored", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer good")
			r.Header.Set("X-User-ID", "admin")
		}, http.StatusOK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/evaluate", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) Consume(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], window, nil
}

func TestRateLimit_RejectsOverLimitPerIP(t *testing.T) {
	limiter := &fakeLimiter{}
	m := New(limiter, logger.Nop(), testConfig())
	h := m.RateLimit(RateLimitConfig{Scope: "evaluate", Limit: 2, Window: time.Minute, KeyFn: m.IPKey})(okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.7:1000").Code)
	rec := send("198.51.100.7:1001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = send("198.51.100.7:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", errorCode(t, rec))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("198.51.100.8:1000").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	m := New(&fakeLimiter{err: errors.New("redis down")}, logger.Nop(), testConfig())
	h := m.RateLimit(RateLimitConfig{Scope: "evaluate", Limit: 1, Window: time.Minute, KeyFn: m.IPKey})(okHandler())

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimiting.Enabled = false
	limiter := &fakeLimiter{}
	m := New(limiter, logger.Nop(), cfg)
	h := m.RateLimit(RateLimitConfig{Scope: "evaluate", Limit: 1, Window: time.Minute, KeyFn: m.IPKey})(okHandler())

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, limiter.counts)
}

func TestRedisLimiter_UnreachableRedisFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	m := New(NewRedisLimiter(client, "riskguard:ratelimit"), logger.Nop(), testConfig())
	h := m.RateLimit(RateLimitConfig{Scope: "evaluate", Limit: 1, Window: time.Minute, KeyFn: m.IPKey})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecover(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	t.Run("development shows detail", func(t *testing.T) {
		m := New(nil, logger.Nop(), testConfig())
		rec := httptest.NewRecorder()
		m.Recover(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "boom")
	})

	t.Run("production hides detail", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.Environment = "production"
		m := New(nil, logger.Nop(), cfg)
		rec := httptest.NewRecorder()
		m.Recover(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal_error", errorCode(t, rec))
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}

func TestRequestID(t *testing.T) {
	m := New(nil, logger.Nop(), testConfig())
	var seen string
	h := m.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestCORS(t *testing.T) {
	m := New(nil, logger.Nop(), testConfig())
	h := m.CORS([]string{"https://app.example.com"})(okHandler())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/risk/evaluate", nil)
	preflight.Header.Set("Origin", "https://app.example.com")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	foreign := httptest.NewRequest(http.MethodPost, "/api/v1/risk/evaluate", nil)
	foreign.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, foreign)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TLS.Enabled = true
	m := New(nil, logger.Nop(), cfg)

	rec := httptest.NewRecorder()
	m.SecurityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}
