package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestCheck_NoHistory tests that an unknown symbol is always allowed at full size
func TestCheck_NoHistory(t *testing.T) {
	m := NewManager(DefaultConfig())

	verdict := m.Check("AAPL", time.Now())
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 1.0, verdict.SizeMultiplier)
	assert.Equal(t, 0.0, verdict.ConfidenceBoostRequired)
}

// TestCheck_OneLossNoBan tests that a single loss does not trigger a ban
func TestCheck_OneLossNoBan(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := time.Now()

	m.RecordLoss("AAPL", now)
	verdict := m.Check("AAPL", now)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 1.0, verdict.SizeMultiplier)
}

// TestCheck_TwoLossesBan tests the 24h ban after two consecutive losses
func TestCheck_TwoLossesBan(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := time.Now()

	m.RecordLoss("AAPL", now.Add(-time.Hour))
	m.RecordLoss("AAPL", now)

	inside := m.Check("AAPL", now.Add(23*time.Hour))
	assert.False(t, inside.Allowed)

	after := m.Check("AAPL", now.Add(25*time.Hour))
	assert.True(t, after.Allowed)
	assert.Equal(t, 0.5, after.SizeMultiplier)
	assert.Equal(t, 10.0, after.ConfidenceBoostRequired)
}

// TestCheck_ThreeLossesExtendedBan tests the 48h ban and harsher re-entry
// penalties after a third consecutive loss
func TestCheck_ThreeLossesExtendedBan(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := time.Now()

	m.RecordLoss("TSLA", now.Add(-2*time.Hour))
	m.RecordLoss("TSLA", now.Add(-time.Hour))
	m.RecordLoss("TSLA", now)

	inside := m.Check("TSLA", now.Add(47*time.Hour))
	assert.False(t, inside.Allowed)
	assert.WithinDuration(t, now.Add(48*time.Hour), inside.CooldownUntil, time.Second)

	after := m.Check("TSLA", now.Add(49*time.Hour))
	assert.True(t, after.Allowed)
	assert.Equal(t, 0.25, after.SizeMultiplier)
	assert.Equal(t, 20.0, after.ConfidenceBoostRequired)
}

// TestRecordWin_ClearsPenalties tests that a winning trade clears the record
func TestRecordWin_ClearsPenalties(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := time.Now()

	m.RecordLoss("AAPL", now)
	m.RecordLoss("AAPL", now)
	assert.Equal(t, 2, m.ConsecutiveLosses("AAPL"))

	m.RecordWin("AAPL")
	assert.Equal(t, 0, m.ConsecutiveLosses("AAPL"))

	verdict := m.Check("AAPL", now)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, 1.0, verdict.SizeMultiplier)
}

// TestCheck_PenaltiesPersistAfterExpiry tests that re-entry penalties stay
// until a win, not just until the ban expires
func TestCheck_PenaltiesPersistAfterExpiry(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := time.Now()

	m.RecordLoss("NVDA", now)
	m.RecordLoss("NVDA", now)

	first := m.Check("NVDA", now.Add(30*time.Hour))
	second := m.Check("NVDA", now.Add(60*time.Hour))
	assert.True(t, first.Allowed)
	assert.True(t, second.Allowed)
	assert.Equal(t, first.SizeMultiplier, second.SizeMultiplier)
	assert.Equal(t, first.ConfidenceBoostRequired, second.ConfidenceBoostRequired)
}

// TestCooldown_PerSymbolIsolation tests that one symbol's ban does not
// affect another
func TestCooldown_PerSymbolIsolation(t *testing.T) {
	m := NewManager(DefaultConfig())
	now := time.Now()

	m.RecordLoss("AAPL", now)
	m.RecordLoss("AAPL", now)

	assert.False(t, m.Check("AAPL", now).Allowed)
	assert.True(t, m.Check("MSFT", now).Allowed)
}
