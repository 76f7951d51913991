package rpc

import (
	"encoding/hex"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tradeescrow/observability/metrics"
)

const limiterIdleTTL = 10 * time.Minute

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles each authenticated caller with a token bucket.
// Unauthenticated requests fall back to the client address.
type rateLimiter struct {
	limit    rate.Limit
	burst    int
	metrics  *metrics.APIMetrics
	mu       sync.Mutex
	visitors map[string]*rateEntry
	clockNow func() time.Time
}

func newRateLimiter(perSecond float64, burst int, m *metrics.APIMetrics) *rateLimiter {
	return &rateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		metrics:  m,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(visitorKey(r)) {
			l.metrics.RecordThrottle("rate_limit")
			writeProblem(w, http.StatusTooManyRequests, "RateLimited", http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *rateLimiter) allow(key string) bool {
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.visitors {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.visitors, id)
		}
	}
	entry, ok := l.visitors[key]
	if !ok {
		burst := l.burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(l.limit, burst)}
		l.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func visitorKey(r *http.Request) string {
	if caller, ok := callerFrom(r.Context()); ok {
		return hex.EncodeToString(caller[:])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
