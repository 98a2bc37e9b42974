package safety

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns the string representation of the breaker state
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds configuration for a circuit breaker
type BreakerConfig struct {
	FailureThreshold uint32        // Consecutive failures before opening
	SuccessThreshold uint32        // Successes in half-open required to close
	CoolDown         time.Duration // Time to stay open before probing
}

// CircuitBreaker guards a broker operation against cascading failures.
// After FailureThreshold consecutive failures it opens and rejects calls
// until CoolDown elapses, then allows probe calls in half-open state.
type CircuitBreaker struct {
	name          string
	config        BreakerConfig
	state         BreakerState
	failures      uint32
	successes     uint32
	lastFailure   time.Time
	nextProbe     time.Time
	mu            sync.Mutex
	onStateChange func(name string, from, to BreakerState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 3
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if config.CoolDown == 0 {
		config.CoolDown = time.Minute
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  BreakerClosed,
	}
}

// SetStateChangeCallback sets a callback invoked on every state transition
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from, to BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = callback
}

// Call executes fn under circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return fmt.Errorf("circuit breaker %s is open", cb.name)
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

// allow reports whether a call may proceed, moving open breakers to
// half-open once the cool-down has elapsed
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if time.Now().After(cb.nextProbe) {
			cb.transition(BreakerHalfOpen)
			cb.successes = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0

	if cb.state == BreakerHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(BreakerClosed)
			cb.successes = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case BreakerClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.open()
		}
	case BreakerHalfOpen:
		// A probe failure reopens immediately
		cb.open()
	case BreakerOpen:
		cb.nextProbe = time.Now().Add(cb.config.CoolDown)
	}
}

// open must be called with the mutex held
func (cb *CircuitBreaker) open() {
	cb.transition(BreakerOpen)
	cb.nextProbe = time.Now().Add(cb.config.CoolDown)
	cb.successes = 0
}

// transition must be called with the mutex held
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	if cb.onStateChange != nil {
		// Run outside the lock to avoid deadlocks in callbacks
		go cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(BreakerClosed)
	cb.failures = 0
	cb.successes = 0
}

// BreakerStats holds a snapshot of breaker state for diagnostics
type BreakerStats struct {
	Name        string
	State       BreakerState
	Failures    uint32
	LastFailure time.Time
	NextProbe   time.Time
}

// Stats returns a snapshot of the breaker
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		Name:        cb.name,
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
		NextProbe:   cb.nextProbe,
	}
}

// BreakerManager manages circuit breakers keyed by operation name
type BreakerManager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
}

// NewBreakerManager creates a new breaker manager
func NewBreakerManager() *BreakerManager {
	return &BreakerManager{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate gets an existing breaker or creates a new one
func (bm *BreakerManager) GetOrCreate(name string, config BreakerConfig) *CircuitBreaker {
	bm.mu.RLock()
	if cb, exists := bm.breakers[name]; exists {
		bm.mu.RUnlock()
		return cb
	}
	bm.mu.RUnlock()

	bm.mu.Lock()
	defer bm.mu.Unlock()

	if cb, exists := bm.breakers[name]; exists {
		return cb
	}

	cb := NewCircuitBreaker(name, config)
	bm.breakers[name] = cb
	return cb
}

// Get gets an existing breaker
func (bm *BreakerManager) Get(name string) (*CircuitBreaker, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	cb, exists := bm.breakers[name]
	return cb, exists
}

// HasOpenBreakers returns true if any breaker is open
func (bm *BreakerManager) HasOpenBreakers() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	for _, cb := range bm.breakers {
		if cb.State() == BreakerOpen {
			return true
		}
	}
	return false
}

// OpenBreakers returns the names of all open breakers
func (bm *BreakerManager) OpenBreakers() []string {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	var open []string
	for name, cb := range bm.breakers {
		if cb.State() == BreakerOpen {
			open = append(open, name)
		}
	}
	return open
}

// Stats returns snapshots of all breakers
func (bm *BreakerManager) Stats() []BreakerStats {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	stats := make([]BreakerStats, 0, len(bm.breakers))
	for _, cb := range bm.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}
