// Package ratelimit provides per-client token-bucket limits for the directory API.
//
// Two limiters are used: a general one for every request, and a much
// tighter one that only counts requests forcing a live registry fetch.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting
type Config struct {
	// RequestsPerMinute is the max requests per client per minute
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to clean old entries
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60, // 1 req/sec average
		BurstSize:         10, // Allow bursts of 10
		CleanupInterval:   time.Minute,
	}
}

// RefreshConfig limits forced refreshes: each one costs a full registry pass.
func RefreshConfig(perMinute int) Config {
	if perMinute <= 0 {
		perMinute = 6
	}
	return Config{
		RequestsPerMinute: perMinute,
		BurstSize:         max(1, perMinute/3),
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks rate limits by key
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]*clientState
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

type clientState struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a new rate limiter and starts its cleanup loop.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string]*clientState),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

// cleanup removes stale entries periodically
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops clients whose bucket has had time to refill completely.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.refillTime())
	for key, state := range l.clients {
		if state.lastCheck.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *Limiter) refillTime() time.Duration {
	perToken := time.Minute / time.Duration(l.cfg.RequestsPerMinute)
	return time.Duration(l.cfg.BurstSize)*perToken + time.Minute
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow checks if a request should be allowed
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, exists := l.clients[key]

	if !exists {
		l.clients[key] = &clientState{
			tokens:    float64(l.cfg.BurstSize - 1),
			lastCheck: now,
		}
		return true
	}

	// Token bucket algorithm
	elapsed := now.Sub(state.lastCheck).Seconds()
	state.tokens += elapsed * l.tokensPerSecond()

	// Cap at burst size
	if state.tokens > float64(l.cfg.BurstSize) {
		state.tokens = float64(l.cfg.BurstSize)
	}

	state.lastCheck = now

	if state.tokens >= 1 {
		state.tokens--
		return true
	}

	return false
}

func (l *Limiter) tokensPerSecond() float64 {
	return float64(l.cfg.RequestsPerMinute) / 60.0
}

// retryAfter is the whole number of seconds until one token is available.
func (l *Limiter) retryAfter() int {
	return int(math.Ceil(1 / l.tokensPerSecond()))
}

// Middleware returns a Gin middleware that rate limits by client IP
func (l *Limiter) Middleware() gin.HandlerFunc {
	return l.middleware(nil, "rate_limit_exceeded", "Too many requests. Please slow down.")
}

// RefreshMiddleware limits only requests carrying a truthy refresh parameter.
func (l *Limiter) RefreshMiddleware() gin.HandlerFunc {
	return l.middleware(forcesRefresh, "refresh_limit_exceeded", "Too many forced refreshes. Cached results are still available without refresh.")
}

func (l *Limiter) middleware(applies func(*gin.Context) bool, code, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if applies != nil && !applies(c) {
			c.Next()
			return
		}

		if !l.Allow(c.ClientIP()) {
			retry := l.retryAfter()
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       code,
				"message":     message,
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

func forcesRefresh(c *gin.Context) bool {
	v := strings.ToLower(strings.TrimSpace(c.Query("refresh")))
	return v == "true" || v == "1"
}
