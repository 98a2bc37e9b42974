package safety

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements token bucket rate limiting for broker API calls
type RateLimiter struct {
	name       string
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter starting with a full bucket
func NewRateLimiter(name string, capacity, refillRate float64) *RateLimiter {
	return &RateLimiter{
		name:       name,
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow reports whether one operation is allowed right now
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until an operation is allowed or the context is cancelled
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill(time.Now())
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		deficit := 1 - rl.tokens
		rl.mu.Unlock()

		wait := time.Duration(deficit/rl.refillRate*float64(time.Second)) + 10*time.Millisecond

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill must be called with the mutex held
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}

// Tokens returns the current token count (after refill)
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return rl.tokens
}

// RateLimiterManager manages rate limiters keyed by operation name
type RateLimiterManager struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewRateLimiterManager creates a new rate limiter manager
func NewRateLimiterManager() *RateLimiterManager {
	return &RateLimiterManager{
		limiters: make(map[string]*RateLimiter),
	}
}

// GetOrCreate gets an existing rate limiter or creates a new one
func (rlm *RateLimiterManager) GetOrCreate(name string, capacity, refillRate float64) *RateLimiter {
	rlm.mu.RLock()
	if rl, exists := rlm.limiters[name]; exists {
		rlm.mu.RUnlock()
		return rl
	}
	rlm.mu.RUnlock()

	rlm.mu.Lock()
	defer rlm.mu.Unlock()

	if rl, exists := rlm.limiters[name]; exists {
		return rl
	}

	rl := NewRateLimiter(name, capacity, refillRate)
	rlm.limiters[name] = rl
	return rl
}

// Get gets an existing rate limiter
func (rlm *RateLimiterManager) Get(name string) (*RateLimiter, bool) {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()

	rl, exists := rlm.limiters[name]
	return rl, exists
}
