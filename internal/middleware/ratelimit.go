package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for a specific rate limit
type RateLimitConfig struct {
	Scope  string
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
}

// Limiter counts hits on a key within a fixed window
type Limiter interface {
	// Consume records one hit and returns the count in the current window
	// and the time until the window resets.
	Consume(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// INCR and PEXPIRE in one round trip, so a crash between them can never
// leave a counter without expiry.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter is a fixed-window Limiter backed by Redis
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

// NewRedisLimiter creates a limiter storing counters under prefix
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

// Consume implements Limiter
func (l *RedisLimiter) Consume(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, errors.New("rate limit script: unexpected reply")
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// RateLimit rejects requests over cfg.Limit per cfg.Window and key. It fails
// open: a limiter error lets the request through.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.limiter == nil || !m.cfg.Security.RateLimiting.Enabled || cfg.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.Scope + ":" + cfg.KeyFn(r)
			count, ttl, err := m.limiter.Consume(r.Context(), key, cfg.Window)
			if err != nil {
				m.log.Warn().Err(err).Str("scope", cfg.Scope).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(cfg.Limit)-count), 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if count > int64(cfg.Limit) {
				retry := max(1, int64((ttl+time.Second-1)/time.Second))
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey keys the limit on the client IP, honouring proxy headers only when
// configured to
func (m *Middleware) IPKey(r *http.Request) string {
	return m.ips.ClientIP(r)
}
