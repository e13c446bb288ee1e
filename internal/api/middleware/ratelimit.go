package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps a token bucket per key in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*rate.Limiter
}

// NewMemoryLimiter allows rps requests per second per key with the given burst.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*rate.Limiter),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.visitors[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.visitors[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow(), nil
}

// RedisLimiter is a sliding-window limiter shared by every server process
// that points at the same Redis.
type RedisLimiter struct {
	client *redis.Client
	name   string
	rate   int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows at most rate requests per key in any window.
func NewRedisLimiter(client *redis.Client, name string, rate int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, name: name, rate: rate, window: window, now: time.Now}
}

// NewRedisLimiterFromRate approximates a token bucket of rps and burst with a
// window that holds burst requests.
func NewRedisLimiterFromRate(client *redis.Client, name string, rps float64, burst int) *RedisLimiter {
	if burst < 1 {
		burst = 1
	}
	window := time.Second
	if rps > 0 {
		window = time.Duration(math.Ceil(float64(burst) / rps * float64(time.Second)))
	}
	return NewRedisLimiter(client, name, burst, window)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("taskhub:rate_limit:%s:%s", l.name, key)
	now := l.now().UnixNano()
	windowStart := now - l.window.Nanoseconds()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: fmt.Sprintf("%d-%s", now, uuid.NewString())})
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	return countCmd.Val() < int64(l.rate), nil
}

// RateLimit rejects requests with 429 once the client IP exceeds the limiter.
// A limiter backend error lets the request through.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.Warn("Rate limiter unavailable", "error", err)
			c.Header("X-RateLimit-Error", "true")
			c.Next()
			return
		}
		if !allowed {
			abort(c, http.StatusTooManyRequests, "Request was throttled.")
			return
		}
		c.Next()
	}
}
