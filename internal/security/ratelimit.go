package security

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      int
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter allowing rate operations per second with
// bursts of up to burst operations.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return newRateLimiter(rate, burst, time.Now)
}

func newRateLimiter(rate float64, burst int, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst), // Start full
		lastRefill: now(),
		now:        now,
	}
}

// Allow reports whether one more operation fits under the limit and, if so,
// consumes a token.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.rate
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}
	r.lastRefill = now

	if r.tokens >= 1.0 {
		r.tokens--
		return true
	}
	return false
}

func (r *RateLimiter) idleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefill
}

// IPRateLimiter keeps one token bucket per client address. Buckets idle for
// longer than the cleanup interval are dropped.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
	rate     float64
	burst    int
	cleanup  time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter creates a per-client limiter and starts its cleanup loop.
// Call Stop to release the loop.
func NewIPRateLimiter(rate float64, burst int, cleanup time.Duration) *IPRateLimiter {
	ipl := &IPRateLimiter{
		limiters: make(map[string]*RateLimiter),
		rate:     rate,
		burst:    burst,
		cleanup:  cleanup,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go ipl.cleanupLoop()
	return ipl
}

// Allow reports whether a request from ip is allowed.
func (ipl *IPRateLimiter) Allow(ip string) bool {
	ipl.mu.Lock()
	limiter, ok := ipl.limiters[ip]
	if !ok {
		limiter = newRateLimiter(ipl.rate, ipl.burst, ipl.now)
		ipl.limiters[ip] = limiter
	}
	ipl.mu.Unlock()

	return limiter.Allow()
}

// Len returns the number of tracked clients.
func (ipl *IPRateLimiter) Len() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	return len(ipl.limiters)
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() { close(ipl.stop) })
}

func (ipl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(ipl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ipl.stop:
			return
		case <-ticker.C:
			ipl.evictIdle()
		}
	}
}

func (ipl *IPRateLimiter) evictIdle() {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	now := ipl.now()
	for ip, limiter := range ipl.limiters {
		if now.Sub(limiter.idleSince()) > ipl.cleanup {
			delete(ipl.limiters, ip)
		}
	}
}
