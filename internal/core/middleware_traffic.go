package core

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gradboard/internal/types"
)

// clientLimiter tracks a single client's token bucket and when it was last
// used, so that idle entries can be evicted.
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter enforces a per-client request rate. Clients are keyed by the
// authenticated actor when available, falling back to the remote address for
// unauthenticated traffic. A background goroutine evicts idle entries.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute sustained
// requests with the given burst per client, and starts the eviction loop.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	rl := &RateLimiter{
		limit:           rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:           burst,
		limiters:        make(map[string]*clientLimiter),
		cleanupInterval: 5 * time.Minute,
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop terminates the background eviction goroutine. Safe to call more than
// once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// Middleware returns the HTTP middleware enforcing the limit.
func (rl *RateLimiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			if !rl.allow(key) {
				retryAfter := rl.retryAfterSeconds()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				logger.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
				)

				Error(w, r, types.NewAppErrorWithDetails(
					types.ErrCodeRateLimit,
					"too many requests, retry later",
					nil,
					map[string]any{"retry_after_seconds": retryAfter},
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// EntryCount reports the number of tracked clients. Used by tests and
// metrics.
func (rl *RateLimiter) EntryCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastAccess = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

// retryAfterSeconds estimates the seconds until one token refills.
func (rl *RateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil(1.0 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops entries idle for more than twice the cleanup interval.
func (rl *RateLimiter) cleanup() {
	ttl := rl.cleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
	rl.mu.Unlock()
}

// clientKey identifies the client for rate limiting purposes. Authenticated
// requests are keyed by the actor so a user cannot evade limits by rotating
// addresses; everything else falls back to the remote IP.
func clientKey(r *http.Request) string {
	if actor, ok := types.GetActor(r.Context()); ok && actor.ClerkUserID != "" {
		return "user:" + actor.ClerkUserID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}
