package position

import (
	"fmt"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
)

// ProtectionState is the lifecycle state of an open position's bracket
type ProtectionState string

const (
	StateActive             ProtectionState = "ACTIVE"
	StatePartialTaken       ProtectionState = "PARTIAL_TAKEN"
	StateTrailing           ProtectionState = "TRAILING"
	StateBreakevenProtected ProtectionState = "BREAKEVEN_PROTECTED"
	StateClosed             ProtectionState = "CLOSED"
)

// PartialExit records one fired profit milestone. The milestone key makes
// each milestone idempotent per position.
type PartialExit struct {
	MilestoneKey string    `json:"milestone_key"`
	RMultiple    float64   `json:"r_multiple"`
	Quantity     int       `json:"quantity"`
	Price        float64   `json:"price"`
	ExitedAt     time.Time `json:"exited_at"`
}

// Position is the mutable record of one open trade. It is created on fill
// confirmation, owned and mutated exclusively by the Manager, and destroyed
// when the remaining quantity reaches zero.
type Position struct {
	Symbol              string           `json:"symbol"`
	Side                broker.OrderSide `json:"side"`
	EntryPrice          float64          `json:"entry_price"`
	OriginalQuantity    int              `json:"original_quantity"`
	RemainingQuantity   int              `json:"remaining_quantity"`
	StopPrice           float64          `json:"stop_price"`
	TargetPrice         float64          `json:"target_price"`
	InitialRiskPerShare float64          `json:"initial_risk_per_share"`
	State               ProtectionState  `json:"state"`
	PartialExits        []PartialExit    `json:"partial_exits"`
	MomentumAdjusted    bool             `json:"momentum_adjusted"` // Bracket extension applied (once per position)
	OpenedAt            time.Time        `json:"opened_at"`

	// Protective stop order at the venue
	StopOrderID string    `json:"stop_order_id,omitempty"`
	NextRearmAt time.Time `json:"next_rearm_at,omitempty"` // Earliest next protection re-arm attempt

	// Divergence tracking: extreme price and the RSI printed there
	extremePrice  float64
	rsiAtExtreme  float64
	lastEvalPrice float64
}

// RMultiple returns the position's profit as a multiple of the initial
// per-share risk at the given price
func (p *Position) RMultiple(price float64) float64 {
	if p.InitialRiskPerShare <= 0 {
		return 0
	}
	if p.Side == broker.SideBuy {
		return (price - p.EntryPrice) / p.InitialRiskPerShare
	}
	return (p.EntryPrice - price) / p.InitialRiskPerShare
}

// milestoneFired reports whether a milestone key has already fired
func (p *Position) milestoneFired(key string) bool {
	for _, pe := range p.PartialExits {
		if pe.MilestoneKey == key {
			return true
		}
	}
	return false
}

// improvesStop reports whether a candidate stop is strictly better than the
// current one. Stops only ever tighten toward price, never regress.
func (p *Position) improvesStop(candidate float64) bool {
	if p.Side == broker.SideBuy {
		return candidate > p.StopPrice
	}
	return candidate < p.StopPrice
}

// stopHit reports whether the price has crossed the protective stop
func (p *Position) stopHit(price float64) bool {
	if p.Side == broker.SideBuy {
		return price <= p.StopPrice
	}
	return price >= p.StopPrice
}

// targetHit reports whether the price has reached the take-profit target
func (p *Position) targetHit(price float64) bool {
	if p.TargetPrice <= 0 {
		return false
	}
	if p.Side == broker.SideBuy {
		return price >= p.TargetPrice
	}
	return price <= p.TargetPrice
}

// CloseReason explains why a position was closed or reduced
type CloseReason string

const (
	ReasonStopLoss     CloseReason = "stop_loss"
	ReasonTakeProfit   CloseReason = "take_profit"
	ReasonTrailingStop CloseReason = "trailing_stop"
	ReasonPartialTake  CloseReason = "partial_take"
	ReasonEODFlatten   CloseReason = "eod_flatten"
	ReasonDivergence   CloseReason = "rsi_divergence"
	ReasonMomentumLoss CloseReason = "momentum_loss"
	ReasonManual       CloseReason = "manual"
)

// ClosedTrade is the immutable record of a fully closed position, handed to
// the journal and the cooldown bookkeeping
type ClosedTrade struct {
	Symbol     string           `json:"symbol"`
	Side       broker.OrderSide `json:"side"`
	EntryPrice float64          `json:"entry_price"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   int              `json:"quantity"` // Original position size
	RMultiple  float64          `json:"r_multiple"`
	PnL        float64          `json:"pnl"`
	Reason     CloseReason      `json:"reason"`
	Partials   int              `json:"partials"` // Number of partial exits taken on the way
	OpenedAt   time.Time        `json:"opened_at"`
	ClosedAt   time.Time        `json:"closed_at"`
}

// Event describes one lifecycle action taken during an evaluation, for
// logging and metrics
type Event struct {
	Symbol string
	Kind   EventKind
	Detail string
}

// EventKind enumerates lifecycle actions
type EventKind string

const (
	EventPartialExit   EventKind = "partial_exit"
	EventBreakevenMove EventKind = "breakeven_move"
	EventTrailingMove  EventKind = "trailing_move"
	EventBracketExtend EventKind = "bracket_extend"
	EventClose         EventKind = "close"
	EventProtectionGap EventKind = "protection_gap"
	EventRearm         EventKind = "rearm"
)

func (e Event) String() string {
	return fmt.Sprintf("%s %s: %s", e.Symbol, e.Kind, e.Detail)
}
