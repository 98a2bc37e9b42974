package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks liveness signals from the engine loops and serves
// them as a health endpoint
type HealthChecker struct {
	mu             sync.RWMutex
	lastEvaluation time.Time
	lastFeatureAt  time.Time
	brokerUp       bool
	breakerTripped bool
	errors         []string
}

type HealthStatus struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	LastEvaluation time.Time `json:"last_evaluation"`
	LastFeatureAt  time.Time `json:"last_feature_update"`
	BrokerUp       bool      `json:"broker_up"`
	BreakerTripped bool      `json:"breaker_tripped"`
	Uptime         string    `json:"uptime"`
	Errors         []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// SetBrokerUp records broker connectivity
func (h *HealthChecker) SetBrokerUp(up bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.brokerUp = up
}

// SetBreakerTripped records whether the daily loss breaker is tripped
func (h *HealthChecker) SetBreakerTripped(tripped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakerTripped = tripped
}

// MarkEvaluation records a completed evaluation loop pass
func (h *HealthChecker) MarkEvaluation() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastEvaluation = time.Now()
}

// MarkFeatureUpdate records a completed feature refresh pass
func (h *HealthChecker) MarkFeatureUpdate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFeatureAt = time.Now()
}

// RecordError appends an error to the health report, keeping the last few
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.brokerUp || time.Since(h.lastFeatureAt) > 5*time.Minute {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if h.breakerTripped {
		status = "halted"
	}

	health := HealthStatus{
		Status:         status,
		Timestamp:      time.Now(),
		LastEvaluation: h.lastEvaluation,
		LastFeatureAt:  h.lastFeatureAt,
		BrokerUp:       h.brokerUp,
		BreakerTripped: h.breakerTripped,
		Uptime:         time.Since(startTime).String(),
		Errors:         h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
