package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zainab-hr/ProjetProduits/pkg/response"
	pkgredis "github.com/zainab-hr/ProjetProduits/pkg/redis"
	"github.com/zainab-hr/ProjetProduits/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Requests per second per client IP (0 disables the limiter)
	RequestsPerSecond int
	// Token bucket capacity
	BurstSize int
	// UseRedis enables distributed limiting across gateway replicas
	UseRedis bool
	// RedisClient is required when UseRedis is true
	RedisClient *pkgredis.Client
	// KeyPrefix namespaces the Redis keys
	KeyPrefix string
	// CleanupInterval for stale local entries
	CleanupInterval time.Duration
	// EntryTTL after which an idle local entry is dropped
	EntryTTL time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         50,
		UseRedis:          false,
		KeyPrefix:         "ratelimit:",
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
	}
}

type bucketEntry struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// LocalRateLimiter implements an in-memory token bucket per client key
type LocalRateLimiter struct {
	config  RateLimitConfig
	entries sync.Map
	stop    chan struct{}
}

// NewLocalRateLimiter creates a new local rate limiter
func NewLocalRateLimiter(config RateLimitConfig) *LocalRateLimiter {
	rl := &LocalRateLimiter{
		config: config,
		stop:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow checks if a request should be allowed
func (rl *LocalRateLimiter) Allow(key string) bool {
	now := time.Now()

	entry, _ := rl.entries.LoadOrStore(key, &bucketEntry{
		tokens:     float64(rl.config.BurstSize),
		lastUpdate: now,
	})
	e := entry.(*bucketEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	elapsed := now.Sub(e.lastUpdate).Seconds()
	e.tokens = min(float64(rl.config.BurstSize), e.tokens+elapsed*float64(rl.config.RequestsPerSecond))
	e.lastUpdate = now

	if e.tokens >= 1 {
		e.tokens--
		return true
	}
	return false
}

func (rl *LocalRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.config.EntryTTL)
			rl.entries.Range(func(key, value interface{}) bool {
				e := value.(*bucketEntry)
				e.mu.Lock()
				if e.lastUpdate.Before(cutoff) {
					rl.entries.Delete(key)
				}
				e.mu.Unlock()
				return true
			})
		case <-rl.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *LocalRateLimiter) Stop() {
	close(rl.stop)
}

// RedisRateLimiter implements a distributed token bucket
type RedisRateLimiter struct {
	config RateLimitConfig
	script string
}

// NewRedisRateLimiter creates a new Redis rate limiter
func NewRedisRateLimiter(config RateLimitConfig) *RedisRateLimiter {
	// Atomic token bucket; state and the refill both live server-side
	script := `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "last_update")
local tokens = tonumber(data[1]) or burst
local last_update = tonumber(data[2]) or now

local elapsed = now - last_update
tokens = math.min(burst, tokens + elapsed * rate)

if tokens >= 1 then
    tokens = tokens - 1
    redis.call("HMSET", key, "tokens", tokens, "last_update", now)
    redis.call("EXPIRE", key, 60)
    return 1
else
    redis.call("HMSET", key, "tokens", tokens, "last_update", now)
    redis.call("EXPIRE", key, 60)
    return 0
end
`
	return &RedisRateLimiter{config: config, script: script}
}

// Allow checks if a request should be allowed using Redis
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / 1e9

	result := rl.config.RedisClient.Eval(ctx, rl.script,
		[]string{rl.config.KeyPrefix + key},
		float64(rl.config.RequestsPerSecond),
		float64(rl.config.BurstSize),
		now,
	)
	if result.Err() != nil {
		return false, result.Err()
	}

	switch v, err := result.Result(); {
	case err != nil:
		return false, err
	default:
		switch allowed := v.(type) {
		case int64:
			return allowed == 1, nil
		case string:
			n, perr := strconv.ParseInt(allowed, 10, 64)
			return n == 1, perr
		default:
			return false, fmt.Errorf("unexpected eval result type %T", v)
		}
	}
}

// RateLimiter creates a rate limiting middleware keyed by client IP.
// A Redis failure never blocks a request.
func RateLimiter(config RateLimitConfig) gin.HandlerFunc {
	if config.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var localLimiter *LocalRateLimiter
	var redisLimiter *RedisRateLimiter

	if config.UseRedis && config.RedisClient != nil {
		redisLimiter = NewRedisRateLimiter(config)
	} else {
		localLimiter = NewLocalRateLimiter(config)
	}

	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "middleware.rate_limiter")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		clientIP := c.ClientIP()
		span.SetAttributes(attribute.String("client_ip", clientIP))

		allowed := true
		if redisLimiter != nil {
			ok, err := redisLimiter.Allow(ctx, clientIP)
			if err == nil {
				allowed = ok
			}
		} else {
			allowed = localLimiter.Allow(clientIP)
		}

		if !allowed {
			span.SetAttributes(attribute.Bool("rate_limited", true))
			response.Error(c, 429, "Too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}
