// internal/middleware/ratelimit.go
package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"translator-back/internal/config"
	"translator-back/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after_ms = interval_ms - (now_ms - last_refill)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// limiter decides whether key may proceed and, if not, how long to wait.
type limiter interface {
	allow(c *gin.Context, key string) (allowed bool, remaining int64, retryAfter time.Duration, err error)
}

// RateLimit guards expensive routes with a per-user token bucket. With a
// Redis client the bucket is shared across instances; without one each
// process keeps its own buckets.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	var l limiter
	if rdb != nil {
		l = &redisLimiter{cfg: cfg, rdb: rdb}
	} else {
		l = newLocalLimiter(cfg)
	}

	return func(c *gin.Context) {
		key := rateKey(cfg, c)
		allowed, remaining, retry, err := l.allow(c, key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			metrics.RateLimitedTotal.Inc()
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}

func rateKey(cfg config.RateLimitConfig, c *gin.Context) string {
	if uid := UserID(c); uid != "" {
		return fmt.Sprintf("%s:user:%s", cfg.Prefix, uid)
	}
	return fmt.Sprintf("%s:ip:%s", cfg.Prefix, c.ClientIP())
}

type redisLimiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

func (r *redisLimiter) allow(c *gin.Context, key string) (bool, int64, time.Duration, error) {
	vals, err := tokenBucketScript.Run(c.Request.Context(), r.rdb, []string{key},
		time.Now().UnixMilli(),
		r.cfg.Capacity,
		r.cfg.RefillTokens,
		r.cfg.RefillInterval.Milliseconds(),
		int64(r.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected limiter result %v", vals)
	}
	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}

type localLimiter struct {
	cfg     config.RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	return &localLimiter{cfg: cfg, buckets: make(map[string]*localBucket)}
}

func (l *localLimiter) allow(_ *gin.Context, key string) (bool, int64, time.Duration, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.TTL {
			delete(l.buckets, k)
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		every := l.cfg.RefillInterval / time.Duration(l.cfg.RefillTokens)
		b = &localBucket{lim: rate.NewLimiter(rate.Every(every), l.cfg.Capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay, nil
	}
	return true, int64(b.lim.TokensAt(now)), 0, nil
}
