package middlewares

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key (client IP by default).
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	keyFunc func(c *gin.Context) string

	mu       sync.Mutex
	limiters map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows n requests per interval per client IP.
func NewRateLimiter(n int, interval time.Duration) *RateLimiter {
	if n <= 0 {
		n = 50
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &RateLimiter{
		limit:    rate.Every(interval / time.Duration(n)),
		burst:    n,
		keyFunc:  func(c *gin.Context) string { return c.ClientIP() },
		limiters: make(map[string]*visitor),
	}
}

// PerUser keys the buckets by the authenticated user instead of the IP.
func (rl *RateLimiter) PerUser() *RateLimiter {
	rl.keyFunc = func(c *gin.Context) string {
		if id, ok := c.Get("user_id"); ok {
			if uid, ok := id.(uint); ok {
				return "user:" + strconv.FormatUint(uint64(uid), 10)
			}
		}
		return c.ClientIP()
	}
	return rl
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = now

	if len(rl.limiters) > 10000 {
		for k, old := range rl.limiters {
			if now.Sub(old.lastSeen) > 10*time.Minute {
				delete(rl.limiters, k)
			}
		}
	}
	return v.limiter
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.get(rl.keyFunc(c)).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": "Too many requests, please slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// NewStrictRateLimiter is used on login and register: 5 attempts per minute
// per IP.
func NewStrictRateLimiter() gin.HandlerFunc {
	return NewRateLimiter(5, time.Minute).RateLimit()
}
