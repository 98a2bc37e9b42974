package regime

import (
	"sync"
	"time"
)

// Manager classifies the market sentiment score into a regime and caches the
// resulting parameter snapshot for a configured refresh interval. Sizing and
// lifecycle components read the snapshot; the feature-refresh loop is the
// only caller of Update.
type Manager struct {
	mu              sync.RWMutex
	refreshInterval time.Duration
	current         Params
	hasData         bool
}

// NewManager creates a regime manager. Until the first Update the manager
// reports NEUTRAL defaults.
func NewManager(refreshInterval time.Duration) *Manager {
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}
	return &Manager{
		refreshInterval: refreshInterval,
		current:         defaultParams(RegimeNeutral),
	}
}

// Update recomputes the regime snapshot from a sentiment score. Calls inside
// the refresh interval are ignored unless the score crosses into a different
// regime bucket. Negative scores mean "sentiment unavailable" and are ignored.
func (m *Manager) Update(sentiment float64, now time.Time) Params {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sentiment < 0 {
		return m.current
	}

	newRegime := Classify(sentiment)
	if m.hasData && now.Sub(m.current.ComputedAt) < m.refreshInterval && newRegime == m.current.Regime {
		return m.current
	}

	params := defaultParams(newRegime)
	params.Sentiment = sentiment
	params.ComputedAt = now
	m.current = params
	m.hasData = true
	return m.current
}

// Params returns the current immutable parameter snapshot
func (m *Manager) Params() Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// HasData reports whether a real sentiment score has been observed yet
func (m *Manager) HasData() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasData
}
