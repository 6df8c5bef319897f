package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = time.Hour
	limiterSweepEvery = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiters struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

func newIPLimiters(rps float64, burst int, idle time.Duration) *ipLimiters {
	return &ipLimiters{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = l.now()
	return e.limiter
}

// evict drops limiters not seen for longer than the idle window.
func (l *ipLimiters) evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for ip, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.entries, ip)
			n++
		}
	}
	return n
}

// RateLimit keeps one token bucket per client IP. Buckets idle for an hour
// are swept every few minutes.
func RateLimit(rps float64, burst int, log *zap.Logger) gin.HandlerFunc {
	limiters := newIPLimiters(rps, burst, limiterIdleTTL)

	sweep := time.NewTicker(limiterSweepEvery)
	go func() {
		for range sweep.C {
			if n := limiters.evict(); n > 0 {
				log.Debug("evicted idle rate limiters", zap.Int("count", n))
			}
		}
	}()

	return rateLimit(limiters, log)
}

func rateLimit(limiters *ipLimiters, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiters.get(ip).Allow() {
			log.Warn("too many requests", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
