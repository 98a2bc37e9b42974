package cooldown

import (
	"sync"
	"time"
)

// Record tracks the loss streak and entry ban for one symbol. At most one
// live record exists per symbol; the next winning trade clears it.
type Record struct {
	Symbol                  string    `json:"symbol"`
	ConsecutiveLosses       int       `json:"consecutive_losses"`
	CooldownUntil           time.Time `json:"cooldown_until"`
	SizeMultiplier          float64   `json:"size_multiplier"`
	ConfidenceBoostRequired float64   `json:"confidence_boost_required"`
	LastLossAt              time.Time `json:"last_loss_at"`
}

// Verdict is the outcome of an entry check against the cooldown table
type Verdict struct {
	Allowed                 bool      `json:"allowed"`
	SizeMultiplier          float64   `json:"size_multiplier"`
	ConfidenceBoostRequired float64   `json:"confidence_boost_required"`
	CooldownUntil           time.Time `json:"cooldown_until,omitempty"`
	Reason                  string    `json:"reason,omitempty"`
}

// Config holds the cooldown policy thresholds
type Config struct {
	LossesBeforeBan   int           `json:"losses_before_ban"`   // Consecutive losses that trigger a ban
	BanDuration       time.Duration `json:"ban_duration"`        // Ban after LossesBeforeBan losses
	ExtendedBan       time.Duration `json:"extended_ban"`        // Ban after LossesBeforeBan+1 or more
	ReentrySizeMult   float64       `json:"reentry_size_mult"`   // Size multiplier after a normal ban expires
	ExtendedSizeMult  float64       `json:"extended_size_mult"`  // Size multiplier after an extended ban expires
	ConfidenceBoost   float64       `json:"confidence_boost"`    // Confidence floor raise after a normal ban
	ExtendedConfBoost float64       `json:"extended_conf_boost"` // Confidence floor raise after an extended ban
}

// DefaultConfig returns the default cooldown policy
func DefaultConfig() Config {
	return Config{
		LossesBeforeBan:   2,
		BanDuration:       24 * time.Hour,
		ExtendedBan:       48 * time.Hour,
		ReentrySizeMult:   0.5,
		ExtendedSizeMult:  0.25,
		ConfidenceBoost:   10,
		ExtendedConfBoost: 20,
	}
}

// Manager owns the per-symbol cooldown table. It is the only mutator of
// the table; entry checks are read-only.
type Manager struct {
	mu      sync.RWMutex
	config  Config
	records map[string]*Record
}

// NewManager creates a cooldown manager
func NewManager(config Config) *Manager {
	if config.LossesBeforeBan <= 0 {
		config = DefaultConfig()
	}
	return &Manager{
		config:  config,
		records: make(map[string]*Record),
	}
}

// RecordLoss registers a stop-loss exit for a symbol and recomputes its
// ban window and re-entry penalties
func (m *Manager) RecordLoss(symbol string, now time.Time) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[symbol]
	if !exists {
		rec = &Record{Symbol: symbol, SizeMultiplier: 1.0}
		m.records[symbol] = rec
	}

	rec.ConsecutiveLosses++
	rec.LastLossAt = now

	switch {
	case rec.ConsecutiveLosses > m.config.LossesBeforeBan:
		rec.CooldownUntil = now.Add(m.config.ExtendedBan)
		rec.SizeMultiplier = m.config.ExtendedSizeMult
		rec.ConfidenceBoostRequired = m.config.ExtendedConfBoost
	case rec.ConsecutiveLosses == m.config.LossesBeforeBan:
		rec.CooldownUntil = now.Add(m.config.BanDuration)
		rec.SizeMultiplier = m.config.ReentrySizeMult
		rec.ConfidenceBoostRequired = m.config.ConfidenceBoost
	}

	cp := *rec
	return &cp
}

// RecordWin clears the cooldown record for a symbol
func (m *Manager) RecordWin(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, symbol)
}

// Check evaluates whether a new entry on the symbol is allowed at the given
// time. While the ban window is live the entry is rejected outright; after
// expiry the entry carries the record's size and confidence penalties until
// a winning trade clears them.
func (m *Manager) Check(symbol string, now time.Time) Verdict {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[symbol]
	if !exists || rec.ConsecutiveLosses < m.config.LossesBeforeBan {
		return Verdict{Allowed: true, SizeMultiplier: 1.0}
	}

	if now.Before(rec.CooldownUntil) {
		return Verdict{
			Allowed:       false,
			CooldownUntil: rec.CooldownUntil,
			Reason:        "symbol in cooldown after consecutive losses",
		}
	}

	return Verdict{
		Allowed:                 true,
		SizeMultiplier:          rec.SizeMultiplier,
		ConfidenceBoostRequired: rec.ConfidenceBoostRequired,
		Reason:                  "re-entry at reduced size after cooldown",
	}
}

// ConsecutiveLosses returns the live loss streak for a symbol
func (m *Manager) ConsecutiveLosses(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, exists := m.records[symbol]; exists {
		return rec.ConsecutiveLosses
	}
	return 0
}

// Record returns a copy of the live record for a symbol, if any
func (m *Manager) Record(symbol string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[symbol]
	if !exists {
		return nil, false
	}
	cp := *rec
	return &cp, true
}
