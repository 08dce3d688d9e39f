// Package gateway provides API gateway functionality including rate limiting
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "nsxenrich:ratelimit"

// fixedWindow counts a hit and returns {count, remaining window in ms}.
var fixedWindow = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {current, ttl}
`)

// RateLimiter is a Redis backed fixed-window limiter shared by every server
// instance. Redis failures let requests through.
type RateLimiter struct {
	redis  *redis.Client
	logger *zap.Logger
	config RateLimitConfig
	// OnLimited is called with the request path each time a request is
	// rejected. Optional.
	OnLimited func(path string)
}

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	IncludeHeaders    bool          `yaml:"include_headers"`
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
	Reason     string
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client, cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		redis:  redisClient,
		logger: logger,
		config: cfg,
	}
}

// Check counts one request from clientID against path.
func (rl *RateLimiter) Check(ctx context.Context, clientID, path string) *RateLimitResult {
	key := fmt.Sprintf("%s:%s:%s", keyPrefix, clientID, path)
	now := time.Now()

	vals, err := fixedWindow.Run(ctx, rl.redis, []string{key}, rl.config.Window.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		rl.logger.Warn("Rate limit check failed, allowing request", zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: rl.config.RequestsPerWindow, Remaining: rl.config.RequestsPerWindow}
	}

	return rl.decide(now, vals[0], time.Duration(vals[1])*time.Millisecond)
}

// decide turns a window count into a verdict. A negative ttl means the key
// has no expiry, which only happens if PEXPIRE was lost; the full window is
// assumed.
func (rl *RateLimiter) decide(now time.Time, count int64, ttl time.Duration) *RateLimitResult {
	if ttl < 0 {
		ttl = rl.config.Window
	}

	limit := rl.config.RequestsPerWindow
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	result := &RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   now.Add(ttl),
	}
	if !result.Allowed {
		result.RetryAfter = ttl
		result.Reason = "Rate limit exceeded"
	}
	return result
}

// Middleware returns an HTTP middleware for rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := rl.Check(r.Context(), getClientIP(r), r.URL.Path)

		if rl.config.IncludeHeaders {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.ResetAt.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			}
		}

		if !result.Allowed {
			rl.reject(w, r, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, result *RateLimitResult) {
	if rl.OnLimited != nil {
		rl.OnLimited(r.URL.Path)
	}
	retryAfter := int(result.RetryAfter.Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     result.Reason,
		"retry_after": retryAfter,
	})
}

// getClientIP keys on the connection address only. Forwarding headers are
// client controlled; behind a trusted proxy the router rewrites RemoteAddr
// before this runs.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
