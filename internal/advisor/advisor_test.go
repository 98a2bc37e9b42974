package advisor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/signal"
)

func candidate(symbol string) *signal.Signal {
	return &signal.Signal{Symbol: symbol, Side: broker.SideBuy, Confidence: 75, Timestamp: time.Now()}
}

// slowAdvisor blocks until its context is cancelled
type slowAdvisor struct{}

func (slowAdvisor) Review(ctx context.Context, sig *signal.Signal) (*Advice, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingAdvisor always errors
type failingAdvisor struct{}

func (failingAdvisor) Review(ctx context.Context, sig *signal.Signal) (*Advice, error) {
	return nil, fmt.Errorf("advisory backend down")
}

// TestRuleAdvisor_VetoesBlockedSymbols vetoes listed symbols, passes others
func TestRuleAdvisor_VetoesBlockedSymbols(t *testing.T) {
	ra := NewRuleAdvisor(map[string]string{"GME": "restricted symbol"})

	advice, err := ra.Review(context.Background(), candidate("GME"))
	assert.NoError(t, err)
	assert.True(t, advice.Veto)
	assert.Equal(t, "restricted symbol", advice.Reason)

	advice, err = ra.Review(context.Background(), candidate("AAPL"))
	assert.NoError(t, err)
	assert.False(t, advice.Veto)
}

// TestFailOpen_NilInnerAlwaysPasses verifies a missing advisor never blocks
func TestFailOpen_NilInnerAlwaysPasses(t *testing.T) {
	fo := NewFailOpen(nil, time.Second, nil)

	advice, err := fo.Review(context.Background(), candidate("AAPL"))
	assert.NoError(t, err)
	assert.False(t, advice.Veto)
	assert.False(t, advice.Unavailable)
}

// TestFailOpen_InnerVetoPropagates verifies a reachable advisor's veto is
// passed through unchanged.
func TestFailOpen_InnerVetoPropagates(t *testing.T) {
	fo := NewFailOpen(NewRuleAdvisor(map[string]string{"GME": "restricted"}), time.Second, nil)

	advice, err := fo.Review(context.Background(), candidate("GME"))
	assert.NoError(t, err)
	assert.True(t, advice.Veto)
}

// TestFailOpen_ErrorDoesNotBlockTrade verifies an advisor error yields
// unvetoed, unavailable advice rather than an error.
func TestFailOpen_ErrorDoesNotBlockTrade(t *testing.T) {
	fo := NewFailOpen(failingAdvisor{}, time.Second, nil)

	advice, err := fo.Review(context.Background(), candidate("AAPL"))
	assert.NoError(t, err)
	assert.False(t, advice.Veto)
	assert.True(t, advice.Unavailable)
}

// TestFailOpen_TimeoutDoesNotBlockTrade verifies a hung advisor is cut off at
// the timeout and the trade proceeds.
func TestFailOpen_TimeoutDoesNotBlockTrade(t *testing.T) {
	fo := NewFailOpen(slowAdvisor{}, 30*time.Millisecond, nil)

	start := time.Now()
	advice, err := fo.Review(context.Background(), candidate("AAPL"))
	assert.NoError(t, err)
	assert.True(t, advice.Unavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
