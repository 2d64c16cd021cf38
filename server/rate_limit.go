package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"golang.org/x/time/rate"
)

const limiterIdleTimeout = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP. Buckets idle for
// longer than limiterIdleTimeout are dropped on the next sweep.
type ipRateLimiter struct {
	rps       rate.Limit
	burst     int
	limiters  map[string]*ipLimiter
	lock      sync.Mutex
	lastSweep time.Time
	nowTime   func() time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*ipLimiter),
		nowTime:  time.Now,
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.nowTime()
	if now.Sub(l.lastSweep) > limiterIdleTimeout {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTimeout {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RateLimitMiddleware answers 429 once a client IP exceeds its bucket. It is a
// no-op unless rate limiting is enabled.
func (s *Server) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, apperrors.New(http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later."))
			return
		}
		next(w, r)
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
