package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/errors"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/logger"
)

// Config holds the executor's slippage and session parameters
type Config struct {
	RegularHoursBufferPct  float64       `json:"regular_hours_buffer_pct"`  // Limit price buffer during regular hours (0.0005 = 0.05%)
	ExtendedHoursBufferPct float64       `json:"extended_hours_buffer_pct"` // Limit price buffer during extended hours (0.0002 = 0.02%)
	MaxSlippagePct         float64       `json:"max_slippage_pct"`          // Realized slippage above this flags the fill (0.001 = 0.10%)
	MinRiskReward          float64       `json:"min_risk_reward"`           // Minimum R:R required before submission
	FillTimeout            time.Duration `json:"fill_timeout"`              // How long to wait for a fill before cancelling
	PollInterval           time.Duration `json:"poll_interval"`             // Order status poll cadence
	RegularOpen            string        `json:"regular_open"`              // Session open, HH:MM exchange time
	RegularClose           string        `json:"regular_close"`             // Session close, HH:MM exchange time
	Timezone               string        `json:"timezone"`                  // Exchange timezone
	DryRun                 bool          `json:"dry_run"`                   // Compute and record, skip submission
}

// DefaultConfig returns the default executor parameters
func DefaultConfig() Config {
	return Config{
		RegularHoursBufferPct:  0.0005,
		ExtendedHoursBufferPct: 0.0002,
		MaxSlippagePct:         0.001,
		MinRiskReward:          2.0,
		FillTimeout:            30 * time.Second,
		PollInterval:           time.Second,
		RegularOpen:            "09:30",
		RegularClose:           "16:00",
		Timezone:               "America/New_York",
	}
}

// Request is an approved, sized entry handed to the executor
type Request struct {
	Symbol      string           `json:"symbol"`
	Side        broker.OrderSide `json:"side"`
	Quantity    int              `json:"quantity"`
	SignalPrice float64          `json:"signal_price"` // Price the decision was made at
	RiskAmount  float64          `json:"risk_amount"`  // Intended risk per share in price units
	RiskReward  float64          `json:"risk_reward"`  // Target R:R ratio for the bracket
}

// Result reports the outcome of an execution attempt. Stop and target are
// derived from the actual fill price so the bracket geometry is exact
// regardless of slippage.
type Result struct {
	Filled      bool      `json:"filled"`
	DryRun      bool      `json:"dry_run"`
	OrderID     string    `json:"order_id,omitempty"`
	FillPrice   float64   `json:"fill_price"`
	FilledQty   int       `json:"filled_qty"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	SlippagePct float64   `json:"slippage_pct"`
	Clean       bool      `json:"clean"` // Slippage within threshold
	SubmittedAt time.Time `json:"submitted_at"`
	FilledAt    time.Time `json:"filled_at,omitempty"`
}

// SmartOrderExecutor turns approved signals into slippage-guarded limit
// orders and derives the protective bracket from the actual fill
type SmartOrderExecutor struct {
	config Config
	broker broker.Broker
	log    *logger.Logger
	tz     *time.Location
}

// NewSmartOrderExecutor creates an executor
func NewSmartOrderExecutor(config Config, b broker.Broker, log *logger.Logger) (*SmartOrderExecutor, error) {
	if config.MinRiskReward == 0 {
		config = DefaultConfig()
	}

	tz, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", config.Timezone, err)
	}

	return &SmartOrderExecutor{
		config: config,
		broker: b,
		log:    log,
		tz:     tz,
	}, nil
}

// Execute submits the entry as a limit order, waits for the fill and returns
// the fill-derived bracket. Transient submission failures are retried once;
// a fill timeout cancels the order and reports unfilled.
func (e *SmartOrderExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	limitPrice := e.limitPrice(req, time.Now().In(e.tz))

	if e.config.DryRun {
		// Compute the full action, record it, suppress the submission
		stop, target := e.bracket(req.Side, limitPrice, req.RiskAmount, req.RiskReward)
		e.log.Trade("DRY RUN %s %s x%d limit $%.2f stop $%.2f target $%.2f",
			req.Side, req.Symbol, req.Quantity, limitPrice, stop, target)
		return &Result{
			Filled:      true,
			DryRun:      true,
			FillPrice:   limitPrice,
			FilledQty:   req.Quantity,
			StopPrice:   stop,
			TargetPrice: target,
			Clean:       true,
			SubmittedAt: time.Now(),
			FilledAt:    time.Now(),
		}, nil
	}

	order, err := e.submitWithRetry(ctx, broker.OrderParams{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		OrderType:     broker.OrderTypeLimit,
		LimitPrice:    limitPrice,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return nil, errors.NewExecutionFailure("executor", "submit_order", err)
	}

	submittedAt := time.Now()
	filled, err := e.awaitFill(ctx, order)
	if err != nil {
		return nil, err
	}
	if filled.Status != broker.OrderStatusFilled {
		// Timed out or cancelled: the intended position was never opened
		return &Result{Filled: false, OrderID: order.OrderID, SubmittedAt: submittedAt}, nil
	}

	fillPrice := filled.AvgFillPrice
	stop, target := e.bracket(req.Side, fillPrice, req.RiskAmount, req.RiskReward)

	slippage := math.Abs(fillPrice-req.SignalPrice) / req.SignalPrice
	clean := slippage <= e.config.MaxSlippagePct
	if !clean {
		e.log.LogWarning("Executor", "%s fill slippage %.3f%% exceeds threshold %.3f%%",
			req.Symbol, slippage*100, e.config.MaxSlippagePct*100)
	}

	e.log.LogTradeExecution(req.Symbol, string(req.Side), filled.OrderID,
		filled.FilledQty, fillPrice, stop, target, slippage)

	return &Result{
		Filled:      true,
		OrderID:     filled.OrderID,
		FillPrice:   fillPrice,
		FilledQty:   filled.FilledQty,
		StopPrice:   stop,
		TargetPrice: target,
		SlippagePct: slippage,
		Clean:       clean,
		SubmittedAt: submittedAt,
		FilledAt:    time.Now(),
	}, nil
}

// validate rejects malformed requests before anything touches the wire
func (e *SmartOrderExecutor) validate(req Request) error {
	if req.Symbol == "" {
		return errors.NewValidationError("executor", "execute", "symbol is required")
	}
	if req.Quantity <= 0 {
		return errors.NewValidationError("executor", "execute", fmt.Sprintf("invalid quantity %d", req.Quantity))
	}
	if req.SignalPrice <= 0 {
		// No usable price feed: never submit an order of unknown size/price
		return errors.NewValidationError("executor", "execute", "signal price unavailable")
	}
	if req.RiskAmount <= 0 {
		return errors.NewValidationError("executor", "execute", "risk amount must be positive")
	}
	if req.RiskReward < e.config.MinRiskReward {
		return errors.NewValidationError("executor", "execute",
			fmt.Sprintf("risk:reward %.2f below minimum %.2f", req.RiskReward, e.config.MinRiskReward))
	}
	return nil
}

// limitPrice places the limit against the trader by the time-of-day buffer
func (e *SmartOrderExecutor) limitPrice(req Request, now time.Time) float64 {
	buffer := e.config.RegularHoursBufferPct
	if e.isExtendedHours(now) {
		buffer = e.config.ExtendedHoursBufferPct
	}

	if req.Side == broker.SideBuy {
		return req.SignalPrice * (1 + buffer)
	}
	return req.SignalPrice * (1 - buffer)
}

// isExtendedHours reports whether now falls outside the regular session
func (e *SmartOrderExecutor) isExtendedHours(now time.Time) bool {
	sessionOpen, errOpen := time.ParseInLocation("15:04", e.config.RegularOpen, e.tz)
	sessionClose, errClose := time.ParseInLocation("15:04", e.config.RegularClose, e.tz)
	if errOpen != nil || errClose != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	openMin := sessionOpen.Hour()*60 + sessionOpen.Minute()
	closeMin := sessionClose.Hour()*60 + sessionClose.Minute()
	return minutes < openMin || minutes >= closeMin
}

// bracket derives stop and target from the given basis price so that the
// 1:RiskReward geometry holds exactly
func (e *SmartOrderExecutor) bracket(side broker.OrderSide, basis, riskAmount, riskReward float64) (stop, target float64) {
	if side == broker.SideBuy {
		return basis - riskAmount, basis + riskAmount*riskReward
	}
	return basis + riskAmount, basis - riskAmount*riskReward
}

// submitWithRetry retries a transient submission failure exactly once
func (e *SmartOrderExecutor) submitWithRetry(ctx context.Context, params broker.OrderParams) (*broker.Order, error) {
	order, err := e.broker.SubmitOrder(ctx, params)
	if err == nil {
		return order, nil
	}

	categorized := errors.Categorize(err, "executor", "submit_order")
	if !categorized.IsRetryable() {
		return nil, err
	}

	e.log.LogWarning("Executor", "transient submit failure for %s, retrying once: %v", params.Symbol, err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
	}

	return e.broker.SubmitOrder(ctx, params)
}

// awaitFill polls the order until it fills, the timeout lapses, or the
// context is cancelled. On timeout the order is cancelled and the final
// state re-read, since a fill can race the cancel.
func (e *SmartOrderExecutor) awaitFill(ctx context.Context, order *broker.Order) (*broker.Order, error) {
	if order.Status == broker.OrderStatusFilled {
		return order, nil
	}

	deadline := time.Now().Add(e.config.FillTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.config.PollInterval):
		}

		current, err := e.broker.GetOrderStatus(ctx, order.OrderID)
		if err != nil {
			e.log.LogWarning("Executor", "failed to poll order %s: %v", order.OrderID, err)
			continue
		}
		if current.Status.IsTerminal() {
			return current, nil
		}
	}

	if err := e.broker.CancelOrder(ctx, order.OrderID); err != nil {
		e.log.LogWarning("Executor", "failed to cancel unfilled order %s: %v", order.OrderID, err)
	}

	final, err := e.broker.GetOrderStatus(ctx, order.OrderID)
	if err != nil {
		return &broker.Order{OrderID: order.OrderID, Status: broker.OrderStatusCancelled}, nil
	}
	return final, nil
}
