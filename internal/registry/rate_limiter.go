package registry

import (
	"sync"
	"time"
)

// RateLimiter paces directory API calls. It is a token bucket: up to
// `burst` requests go through immediately, then callers are spaced at the
// configured requests-per-second. A negative balance queues waiters in
// arrival order.
type RateLimiter struct {
	mu         sync.Mutex
	interval   time.Duration
	maxTokens  float64
	tokens     float64
	lastRefill time.Time
}

func NewRateLimiter(requestsPerSecond, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		interval:   time.Second / time.Duration(requestsPerSecond),
		maxTokens:  float64(burst),
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

func (r *RateLimiter) WaitTurn() {
	r.mu.Lock()
	now := time.Now()
	r.tokens += float64(now.Sub(r.lastRefill)) / float64(r.interval)
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now

	r.tokens--
	var wait time.Duration
	if r.tokens < 0 {
		wait = time.Duration(-r.tokens * float64(r.interval))
	}
	r.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
}
