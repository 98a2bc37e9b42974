package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Flat buffer regardless of session so assertions don't depend on the
	// wall clock of the test run
	cfg.RegularHoursBufferPct = 0.002
	cfg.ExtendedHoursBufferPct = 0.002
	cfg.FillTimeout = 200 * time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond
	return cfg
}

// TestExecute_BracketFromFillPrice verifies the bracket is derived from the
// actual fill, not the signal price: signal 50.00 filled at 50.05 with risk
// 1.00 and R:R 2.0 yields stop 49.05 and target 52.05; 0.10% slippage sits
// exactly at the threshold and still counts as clean.
func TestExecute_BracketFromFillPrice(t *testing.T) {
	pb := broker.NewPaperBroker(100_000)
	pb.SetQuote("XYZ", 50.00)
	pb.SetSlippage(0.001)

	exec, err := NewSmartOrderExecutor(testConfig(), pb, nil)
	assert.NoError(t, err)

	res, err := exec.Execute(context.Background(), Request{
		Symbol:      "XYZ",
		Side:        broker.SideBuy,
		Quantity:    100,
		SignalPrice: 50.00,
		RiskAmount:  1.00,
		RiskReward:  2.0,
	})

	assert.NoError(t, err)
	assert.True(t, res.Filled)
	assert.InDelta(t, 50.05, res.FillPrice, 0.0001)
	assert.InDelta(t, 49.05, res.StopPrice, 0.0001)
	assert.InDelta(t, 52.05, res.TargetPrice, 0.0001)
	assert.InDelta(t, 0.001, res.SlippagePct, 0.00001)
	assert.True(t, res.Clean)
	assert.Equal(t, 100, res.FilledQty)
	assert.NotEmpty(t, res.OrderID)
}

// TestExecute_ExcessSlippageFlagged verifies a fill past the slippage
// threshold completes but is flagged unclean.
func TestExecute_ExcessSlippageFlagged(t *testing.T) {
	pb := broker.NewPaperBroker(100_000)
	pb.SetQuote("XYZ", 50.00)
	pb.SetSlippage(0.0015)

	cfg := testConfig()
	cfg.RegularHoursBufferPct = 0.004
	cfg.ExtendedHoursBufferPct = 0.004
	exec, err := NewSmartOrderExecutor(cfg, pb, nil)
	assert.NoError(t, err)

	res, err := exec.Execute(context.Background(), Request{
		Symbol:      "XYZ",
		Side:        broker.SideBuy,
		Quantity:    10,
		SignalPrice: 50.00,
		RiskAmount:  1.00,
		RiskReward:  2.0,
	})

	assert.NoError(t, err)
	assert.True(t, res.Filled)
	assert.False(t, res.Clean)
	assert.InDelta(t, 0.0015, res.SlippagePct, 0.00001)
}

// TestExecute_ShortBracket mirrors the bracket geometry for a sell entry
func TestExecute_ShortBracket(t *testing.T) {
	pb := broker.NewPaperBroker(100_000)
	pb.SetQuote("XYZ", 50.00)

	exec, err := NewSmartOrderExecutor(testConfig(), pb, nil)
	assert.NoError(t, err)

	res, err := exec.Execute(context.Background(), Request{
		Symbol:      "XYZ",
		Side:        broker.SideSell,
		Quantity:    10,
		SignalPrice: 50.00,
		RiskAmount:  1.00,
		RiskReward:  2.0,
	})

	assert.NoError(t, err)
	assert.True(t, res.Filled)
	assert.InDelta(t, 50.00, res.FillPrice, 0.0001)
	assert.InDelta(t, 51.00, res.StopPrice, 0.0001)
	assert.InDelta(t, 48.00, res.TargetPrice, 0.0001)
}

// TestExecute_Validation rejects malformed requests before submission
func TestExecute_Validation(t *testing.T) {
	pb := broker.NewPaperBroker(100_000)
	exec, err := NewSmartOrderExecutor(testConfig(), pb, nil)
	assert.NoError(t, err)

	base := Request{Symbol: "XYZ", Side: broker.SideBuy, Quantity: 10, SignalPrice: 50, RiskAmount: 1, RiskReward: 2}

	req := base
	req.Symbol = ""
	_, err = exec.Execute(context.Background(), req)
	assert.Error(t, err)

	req = base
	req.Quantity = 0
	_, err = exec.Execute(context.Background(), req)
	assert.Error(t, err)

	req = base
	req.SignalPrice = 0
	_, err = exec.Execute(context.Background(), req)
	assert.Error(t, err)

	req = base
	req.RiskReward = 1.5 // below the 2.0 minimum
	_, err = exec.Execute(context.Background(), req)
	assert.Error(t, err)
}

// TestExecute_TimeoutCancels verifies an order that never fills is cancelled
// after the fill timeout and reported unfilled.
func TestExecute_TimeoutCancels(t *testing.T) {
	pb := broker.NewPaperBroker(100_000)
	pb.SetQuote("XYZ", 50.00)
	pb.SetSlippage(0.001) // adverse fill never crosses a zero-buffer limit

	cfg := testConfig()
	cfg.RegularHoursBufferPct = 0
	cfg.ExtendedHoursBufferPct = 0
	exec, err := NewSmartOrderExecutor(cfg, pb, nil)
	assert.NoError(t, err)

	res, err := exec.Execute(context.Background(), Request{
		Symbol:      "XYZ",
		Side:        broker.SideBuy,
		Quantity:    10,
		SignalPrice: 50.00,
		RiskAmount:  1.00,
		RiskReward:  2.0,
	})

	assert.NoError(t, err)
	assert.False(t, res.Filled)
	assert.NotEmpty(t, res.OrderID)

	order, err := pb.GetOrderStatus(context.Background(), res.OrderID)
	assert.NoError(t, err)
	assert.Equal(t, broker.OrderStatusCancelled, order.Status)
}

// TestExecute_DryRunSuppressesSubmission verifies dry-run computes the full
// bracket without touching the broker.
func TestExecute_DryRunSuppressesSubmission(t *testing.T) {
	cfg := testConfig()
	cfg.RegularHoursBufferPct = 0
	cfg.ExtendedHoursBufferPct = 0
	cfg.DryRun = true
	exec, err := NewSmartOrderExecutor(cfg, nil, nil)
	assert.NoError(t, err)

	res, err := exec.Execute(context.Background(), Request{
		Symbol:      "XYZ",
		Side:        broker.SideBuy,
		Quantity:    10,
		SignalPrice: 50.00,
		RiskAmount:  1.00,
		RiskReward:  2.0,
	})

	assert.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.True(t, res.Filled)
	assert.Empty(t, res.OrderID)
	assert.InDelta(t, 50.00, res.FillPrice, 0.0001)
	assert.InDelta(t, 49.00, res.StopPrice, 0.0001)
	assert.InDelta(t, 52.00, res.TargetPrice, 0.0001)
}

// flakyBroker fails the first N submissions with a transient network error
type flakyBroker struct {
	*broker.PaperBroker
	failures int
}

func (f *flakyBroker) SubmitOrder(ctx context.Context, params broker.OrderParams) (*broker.Order, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("connection reset by peer")
	}
	return f.PaperBroker.SubmitOrder(ctx, params)
}

// TestExecute_RetriesTransientSubmitOnce verifies one transient network
// failure is absorbed, while two in a row surface as an execution error.
func TestExecute_RetriesTransientSubmitOnce(t *testing.T) {
	pb := broker.NewPaperBroker(100_000)
	pb.SetQuote("XYZ", 50.00)
	fb := &flakyBroker{PaperBroker: pb, failures: 1}

	exec, err := NewSmartOrderExecutor(testConfig(), fb, nil)
	assert.NoError(t, err)

	req := Request{Symbol: "XYZ", Side: broker.SideBuy, Quantity: 10, SignalPrice: 50, RiskAmount: 1, RiskReward: 2}

	res, err := exec.Execute(context.Background(), req)
	assert.NoError(t, err)
	assert.True(t, res.Filled)

	fb.failures = 2
	_, err = exec.Execute(context.Background(), req)
	assert.Error(t, err)
}
