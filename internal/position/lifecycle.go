package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/errors"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/logger"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/regime"
)

// Config holds the lifecycle thresholds
type Config struct {
	TrailingActivationR  float64       `json:"trailing_activation_r"`   // Profit in R that arms the trailing stop
	PartialExitFraction  float64       `json:"partial_exit_fraction"`   // Fraction of remaining qty sold at the first milestone
	ExtensionTriggerR    float64       `json:"extension_trigger_r"`     // Profit in R that evaluates bracket extension
	ExtensionBonusR      float64       `json:"extension_bonus_r"`       // Added to the target when momentum is strong
	ExtensionStopOffsetR float64       `json:"extension_stop_offset_r"` // Stop advance beyond breakeven on extension
	ExtensionMomentum    float64       `json:"extension_momentum"`      // Momentum strength required to extend
	EODFlattenTime       string        `json:"eod_flatten_time"`        // HH:MM exchange time, empty disables
	Timezone             string        `json:"timezone"`
	RearmCooldown        time.Duration `json:"rearm_cooldown"` // Min delay between protection re-arm attempts
	DryRun               bool          `json:"dry_run"`
}

// DefaultConfig returns the default lifecycle thresholds
func DefaultConfig() Config {
	return Config{
		TrailingActivationR:  1.5,
		PartialExitFraction:  0.5,
		ExtensionTriggerR:    0.75,
		ExtensionBonusR:      1.0,
		ExtensionStopOffsetR: 0.5,
		ExtensionMomentum:    0.7,
		EODFlattenTime:       "15:55",
		Timezone:             "America/New_York",
		RearmCooldown:        30 * time.Second,
	}
}

// entry pairs a position with its own mutex so evaluations for the same
// symbol are serialized while different symbols proceed independently
type entry struct {
	mu  sync.Mutex
	pos *Position
}

// Manager owns the open-position table and drives the per-position state
// machine: partial profits, breakeven protection, trailing stops, momentum
// bracket extension and forced exits. It is the only component that mutates
// positions.
type Manager struct {
	config Config
	broker broker.Broker
	log    *logger.Logger
	tz     *time.Location

	mu        sync.RWMutex
	positions map[string]*entry

	onClosed func(ClosedTrade)
}

// NewManager creates a lifecycle manager
func NewManager(config Config, b broker.Broker, log *logger.Logger) (*Manager, error) {
	if config.PartialExitFraction <= 0 || config.PartialExitFraction > 1 {
		config = DefaultConfig()
	}

	tz, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", config.Timezone, err)
	}

	return &Manager{
		config:    config,
		broker:    b,
		log:       log,
		tz:        tz,
		positions: make(map[string]*entry),
	}, nil
}

// SetCloseHandler registers the callback invoked with every fully closed
// trade. Must be set before the first Open.
func (m *Manager) SetCloseHandler(fn func(ClosedTrade)) {
	m.onClosed = fn
}

// Open registers a freshly filled position and arms its protective stop.
// One position per symbol; a second open on the same symbol is rejected.
func (m *Manager) Open(ctx context.Context, pos *Position) error {
	if err := validateNew(pos); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.positions[pos.Symbol]; exists {
		m.mu.Unlock()
		return errors.NewValidationError("lifecycle", "open", fmt.Sprintf("position already open for %s", pos.Symbol))
	}
	pos.State = StateActive
	pos.extremePrice = pos.EntryPrice
	e := &entry{pos: pos}
	m.positions[pos.Symbol] = e
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.armStop(ctx, pos); err != nil {
		// The position is live without a stop: a protection gap from birth.
		// Keep it registered; the monitor loop re-arms on its cadence.
		m.log.LogError("failed to arm initial stop for "+pos.Symbol, err)
		pos.NextRearmAt = time.Now().Add(m.config.RearmCooldown)
	}

	m.log.Trade("OPEN %s %s x%d @ $%.2f stop $%.2f target $%.2f (risk $%.2f/share)",
		pos.Side, pos.Symbol, pos.OriginalQuantity, pos.EntryPrice, pos.StopPrice, pos.TargetPrice, pos.InitialRiskPerShare)
	return nil
}

// Adopt registers a position discovered at the broker on startup that has no
// protective stop (a protection gap). The stop is computed by the caller.
func (m *Manager) Adopt(ctx context.Context, pos *Position) error {
	return m.Open(ctx, pos)
}

// validateNew rejects malformed positions before they enter the table
func validateNew(pos *Position) error {
	if pos == nil || pos.Symbol == "" {
		return errors.NewValidationError("lifecycle", "open", "position symbol is required")
	}
	if pos.RemainingQuantity <= 0 || pos.RemainingQuantity > pos.OriginalQuantity {
		return errors.NewValidationError("lifecycle", "open",
			fmt.Sprintf("invalid quantities: remaining %d original %d", pos.RemainingQuantity, pos.OriginalQuantity))
	}
	if pos.InitialRiskPerShare <= 0 {
		return errors.NewValidationError("lifecycle", "open", "initial risk per share must be positive")
	}
	// Stop must start on the losing side of the entry
	if pos.Side == broker.SideBuy && pos.StopPrice >= pos.EntryPrice {
		return errors.NewValidationError("lifecycle", "open", "stop must be below entry for a long")
	}
	if pos.Side == broker.SideSell && pos.StopPrice <= pos.EntryPrice {
		return errors.NewValidationError("lifecycle", "open", "stop must be above entry for a short")
	}
	return nil
}

// Get returns a copy of the open position for a symbol
func (m *Manager) Get(symbol string) (*Position, bool) {
	m.mu.RLock()
	e, exists := m.positions[symbol]
	m.mu.RUnlock()
	if !exists {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.pos
	return &cp, true
}

// Symbols returns the symbols with open positions
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of open positions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// Evaluate runs one state-machine pass for a symbol against the freshest
// snapshot. Evaluations for the same symbol are serialized; re-evaluating
// with unchanged inputs is a no-op.
func (m *Manager) Evaluate(ctx context.Context, symbol string, snap *market.FeatureSnapshot, params regime.Params, momentum float64, now time.Time) ([]Event, error) {
	m.mu.RLock()
	e, exists := m.positions[symbol]
	m.mu.RUnlock()
	if !exists {
		return nil, nil
	}
	if snap == nil || snap.Price <= 0 {
		return nil, errors.NewValidationError("lifecycle", "evaluate", "no usable price for "+symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos.State == StateClosed {
		return nil, nil
	}
	return m.evaluateLocked(ctx, e.pos, snap, params, momentum, now)
}

// evaluateLocked is the state machine body; the entry mutex is held
func (m *Manager) evaluateLocked(ctx context.Context, pos *Position, snap *market.FeatureSnapshot, params regime.Params, momentum float64, now time.Time) ([]Event, error) {
	var events []Event
	price := snap.Price

	// Reconcile the venue stop first: it may have filled or vanished
	if ev, closed := m.reconcileStop(ctx, pos, now); ev != nil {
		events = append(events, *ev)
		if closed {
			return events, nil
		}
	}

	// Hard exits before any bracket management
	if pos.stopHit(price) {
		reason := ReasonStopLoss
		if pos.State == StateTrailing {
			reason = ReasonTrailingStop
		}
		ev, err := m.closeAll(ctx, pos, price, reason, now)
		if ev != nil {
			events = append(events, *ev)
		}
		return events, err
	}
	if m.pastEODCutoff(now) {
		ev, err := m.closeAll(ctx, pos, price, ReasonEODFlatten, now)
		if ev != nil {
			events = append(events, *ev)
		}
		return events, err
	}

	// First profit milestone: the regime-supplied target is authoritative
	milestoneR := regime.AdjustedProfitTargetR(params, momentum)
	if !pos.milestoneFired(firstMilestoneKey) && pos.RMultiple(price) >= milestoneR {
		evs, closed, err := m.takePartial(ctx, pos, price, milestoneR, now)
		events = append(events, evs...)
		if err != nil || closed {
			return events, err
		}
	}

	if pos.targetHit(price) {
		ev, err := m.closeAll(ctx, pos, price, ReasonTakeProfit, now)
		if ev != nil {
			events = append(events, *ev)
		}
		return events, err
	}

	// Independent exit advice, regardless of R-multiple
	if reason, hit := m.exitAdvice(pos, snap); hit {
		ev, err := m.closeAll(ctx, pos, price, reason, now)
		if ev != nil {
			events = append(events, *ev)
		}
		return events, err
	}

	// One-shot momentum bracket extension
	if !pos.MomentumAdjusted && pos.TargetPrice > 0 && pos.RMultiple(price) >= m.config.ExtensionTriggerR {
		if ev := m.maybeExtendBracket(ctx, pos, snap, momentum); ev != nil {
			events = append(events, *ev)
		}
	}

	// Trailing stop
	if pos.RMultiple(price) >= m.config.TrailingActivationR {
		if ev := m.trail(ctx, pos, snap, params, momentum); ev != nil {
			events = append(events, *ev)
		}
	}

	m.trackExtremes(pos, snap)
	pos.lastEvalPrice = price
	return events, nil
}

const firstMilestoneKey = "partial_1"

// takePartial sells the configured fraction at the first milestone, then
// moves the stop to breakeven. Returns closed=true when the partial consumed
// the whole position.
func (m *Manager) takePartial(ctx context.Context, pos *Position, price, milestoneR float64, now time.Time) ([]Event, bool, error) {
	qty := int(math.Floor(float64(pos.RemainingQuantity) * m.config.PartialExitFraction))
	if qty < 1 {
		qty = 1
	}
	if qty >= pos.RemainingQuantity {
		ev, err := m.closeAll(ctx, pos, price, ReasonTakeProfit, now)
		if ev != nil {
			return []Event{*ev}, true, err
		}
		return nil, true, err
	}

	if !m.config.DryRun {
		_, err := m.broker.SubmitOrder(ctx, broker.OrderParams{
			Symbol:    pos.Symbol,
			Side:      pos.Side.Opposite(),
			Quantity:  qty,
			OrderType: broker.OrderTypeMarket,
		})
		if err != nil {
			return nil, false, errors.NewExecutionFailure("lifecycle", "partial_exit", err)
		}
	}

	pos.RemainingQuantity -= qty
	pos.PartialExits = append(pos.PartialExits, PartialExit{
		MilestoneKey: firstMilestoneKey,
		RMultiple:    milestoneR,
		Quantity:     qty,
		Price:        price,
		ExitedAt:     now,
	})
	pos.State = StatePartialTaken
	// Remainder runs on the trail; the fixed target no longer applies
	pos.TargetPrice = 0

	events := []Event{{
		Symbol: pos.Symbol,
		Kind:   EventPartialExit,
		Detail: fmt.Sprintf("sold %d @ $%.2f at +%.2fR milestone", qty, price, milestoneR),
	}}

	m.log.Trade("PARTIAL %s sold %d/%d @ $%.2f (+%.2fR)", pos.Symbol, qty, qty+pos.RemainingQuantity, price, milestoneR)

	// Breakeven protection immediately follows the qualifying partial
	if pos.improvesStop(pos.EntryPrice) {
		if err := m.moveStop(ctx, pos, pos.EntryPrice); err != nil {
			m.log.LogError("failed to move stop to breakeven for "+pos.Symbol, err)
		} else {
			pos.State = StateBreakevenProtected
			events = append(events, Event{
				Symbol: pos.Symbol,
				Kind:   EventBreakevenMove,
				Detail: fmt.Sprintf("stop moved to breakeven $%.2f", pos.EntryPrice),
			})
		}
	}
	return events, false, nil
}

// maybeExtendBracket extends the take-profit and advances the stop past
// breakeven when momentum is strong; applied at most once per position
func (m *Manager) maybeExtendBracket(ctx context.Context, pos *Position, snap *market.FeatureSnapshot, momentum float64) *Event {
	strength := momentum
	if snap.HasADX() {
		strength = regime.MomentumStrength(snap.ADX, snap.VolumeRatio, trendStrengthOf(snap))
	}
	if strength < m.config.ExtensionMomentum {
		return nil
	}

	pos.MomentumAdjusted = true

	bonus := m.config.ExtensionBonusR * pos.InitialRiskPerShare
	offset := m.config.ExtensionStopOffsetR * pos.InitialRiskPerShare

	var newStop float64
	if pos.Side == broker.SideBuy {
		pos.TargetPrice += bonus
		newStop = pos.EntryPrice + offset
	} else {
		pos.TargetPrice -= bonus
		newStop = pos.EntryPrice - offset
	}

	if pos.improvesStop(newStop) {
		if err := m.moveStop(ctx, pos, newStop); err != nil {
			m.log.LogError("failed to advance stop on extension for "+pos.Symbol, err)
		}
	}

	m.log.Trade("EXTEND %s target to $%.2f, stop to $%.2f (momentum %.2f)",
		pos.Symbol, pos.TargetPrice, pos.StopPrice, strength)

	return &Event{
		Symbol: pos.Symbol,
		Kind:   EventBracketExtend,
		Detail: fmt.Sprintf("target $%.2f stop $%.2f on momentum %.2f", pos.TargetPrice, pos.StopPrice, strength),
	}
}

// trail recomputes the trailing stop and applies it only when it improves.
// The trailing distance uses the tighter of ATR and the initial risk as its
// base so a calm tape trails closer than the original stop did.
func (m *Manager) trail(ctx context.Context, pos *Position, snap *market.FeatureSnapshot, params regime.Params, momentum float64) *Event {
	distR := regime.AdjustedTrailingStopR(params, momentum)

	base := pos.InitialRiskPerShare
	if snap.ATR > 0 && snap.ATR < base {
		base = snap.ATR
	}
	distance := distR * base

	var candidate float64
	if pos.Side == broker.SideBuy {
		candidate = snap.Price - distance
	} else {
		candidate = snap.Price + distance
	}

	if !pos.improvesStop(candidate) {
		return nil
	}

	if err := m.moveStop(ctx, pos, candidate); err != nil {
		m.log.LogError("failed to move trailing stop for "+pos.Symbol, err)
		return nil
	}
	pos.State = StateTrailing

	return &Event{
		Symbol: pos.Symbol,
		Kind:   EventTrailingMove,
		Detail: fmt.Sprintf("stop trailed to $%.2f (%.2fR distance)", candidate, distR),
	}
}

// exitAdvice checks the independent full-close triggers: price/RSI
// divergence and trend-strength collapse
func (m *Manager) exitAdvice(pos *Position, snap *market.FeatureSnapshot) (CloseReason, bool) {
	// Bearish divergence for longs: a higher price high on a weaker RSI.
	// Mirrored for shorts.
	if snap.HasRSI() && pos.rsiAtExtreme > 0 {
		if pos.Side == broker.SideBuy && snap.Price > pos.extremePrice && snap.RSI < pos.rsiAtExtreme {
			return ReasonDivergence, true
		}
		if pos.Side == broker.SideSell && snap.Price < pos.extremePrice && snap.RSI > pos.rsiAtExtreme {
			return ReasonDivergence, true
		}
	}

	if snap.HasADX() && snap.ADX < 20 {
		return ReasonMomentumLoss, true
	}
	return "", false
}

// trackExtremes records the favorable price extreme and the RSI printed
// there for divergence detection
func (m *Manager) trackExtremes(pos *Position, snap *market.FeatureSnapshot) {
	improved := (pos.Side == broker.SideBuy && snap.Price > pos.extremePrice) ||
		(pos.Side == broker.SideSell && snap.Price < pos.extremePrice)
	if !improved {
		return
	}
	pos.extremePrice = snap.Price
	if snap.HasRSI() {
		pos.rsiAtExtreme = snap.RSI
	}
}

// Close closes the position for a symbol at the given reference price
func (m *Manager) Close(ctx context.Context, symbol string, price float64, reason CloseReason) error {
	m.mu.RLock()
	e, exists := m.positions[symbol]
	m.mu.RUnlock()
	if !exists {
		return errors.NewValidationError("lifecycle", "close", "no open position for "+symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos.State == StateClosed {
		return nil
	}
	_, err := m.closeAll(ctx, e.pos, price, reason, time.Now())
	return err
}

// closeAll flattens the remaining quantity, cancels the venue stop and
// reports the closed trade
func (m *Manager) closeAll(ctx context.Context, pos *Position, price float64, reason CloseReason, now time.Time) (*Event, error) {
	if !m.config.DryRun {
		if pos.StopOrderID != "" {
			if err := m.broker.CancelOrder(ctx, pos.StopOrderID); err != nil {
				m.log.LogWarning("Lifecycle", "failed to cancel stop order for %s: %v", pos.Symbol, err)
			}
			pos.StopOrderID = ""
		}
		_, err := m.broker.SubmitOrder(ctx, broker.OrderParams{
			Symbol:    pos.Symbol,
			Side:      pos.Side.Opposite(),
			Quantity:  pos.RemainingQuantity,
			OrderType: broker.OrderTypeMarket,
		})
		if err != nil {
			return nil, errors.NewExecutionFailure("lifecycle", "close_position", err)
		}
	}

	m.finalize(pos, price, reason, now)

	return &Event{
		Symbol: pos.Symbol,
		Kind:   EventClose,
		Detail: fmt.Sprintf("closed %d @ $%.2f (%s, %+.2fR)", pos.OriginalQuantity, price, reason, pos.RMultiple(price)),
	}, nil
}

// finalize marks the position closed, removes it from the table and invokes
// the close handler
func (m *Manager) finalize(pos *Position, exitPrice float64, reason CloseReason, now time.Time) {
	pos.State = StateClosed

	direction := 1.0
	if pos.Side == broker.SideSell {
		direction = -1.0
	}

	// Realized P/L across partials plus the final exit
	pnl := direction * float64(pos.RemainingQuantity) * (exitPrice - pos.EntryPrice)
	for _, pe := range pos.PartialExits {
		pnl += direction * float64(pe.Quantity) * (pe.Price - pos.EntryPrice)
	}
	pos.RemainingQuantity = 0

	trade := ClosedTrade{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.OriginalQuantity,
		RMultiple:  pos.RMultiple(exitPrice),
		PnL:        pnl,
		Reason:     reason,
		Partials:   len(pos.PartialExits),
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   now,
	}

	m.mu.Lock()
	delete(m.positions, pos.Symbol)
	m.mu.Unlock()

	m.log.LogPositionClosed(pos.Symbol, pos.EntryPrice, exitPrice, trade.RMultiple, string(reason))

	if m.onClosed != nil {
		m.onClosed(trade)
	}
}

// pastEODCutoff reports whether the forced end-of-day flatten time has passed
func (m *Manager) pastEODCutoff(now time.Time) bool {
	if m.config.EODFlattenTime == "" {
		return false
	}
	cutoff, err := time.ParseInLocation("15:04", m.config.EODFlattenTime, m.tz)
	if err != nil {
		return false
	}

	local := now.In(m.tz)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= cutoff.Hour()*60+cutoff.Minute()
}

// armStop places the protective stop order at the venue
func (m *Manager) armStop(ctx context.Context, pos *Position) error {
	if m.config.DryRun {
		return nil
	}

	order, err := m.broker.SubmitOrder(ctx, broker.OrderParams{
		Symbol:    pos.Symbol,
		Side:      pos.Side.Opposite(),
		Quantity:  pos.RemainingQuantity,
		OrderType: broker.OrderTypeStop,
		StopPrice: pos.StopPrice,
	})
	if err != nil {
		return fmt.Errorf("failed to place stop order: %w", err)
	}
	pos.StopOrderID = order.OrderID
	return nil
}

// moveStop updates the stop price and replaces the venue stop order.
// Callers must have verified the move improves the stop.
func (m *Manager) moveStop(ctx context.Context, pos *Position, newStop float64) error {
	if !m.config.DryRun && pos.StopOrderID != "" {
		if err := m.broker.CancelOrder(ctx, pos.StopOrderID); err != nil {
			m.log.LogWarning("Lifecycle", "failed to cancel old stop for %s: %v", pos.Symbol, err)
		}
		pos.StopOrderID = ""
	}

	pos.StopPrice = newStop

	if err := m.armStop(ctx, pos); err != nil {
		// The price level is updated locally; the venue order is re-armed by
		// the protection-gap path on the next evaluation
		pos.NextRearmAt = time.Now().Add(m.config.RearmCooldown)
		return err
	}
	return nil
}

// reconcileStop checks the venue stop order: a filled stop closes the
// position at its fill price, a vanished stop is a protection gap that gets
// re-armed on a cooldown to prevent recreation thrash
func (m *Manager) reconcileStop(ctx context.Context, pos *Position, now time.Time) (*Event, bool) {
	if m.config.DryRun {
		return nil, false
	}

	if pos.StopOrderID != "" {
		order, err := m.broker.GetOrderStatus(ctx, pos.StopOrderID)
		if err != nil {
			// Can't see the order; leave it alone rather than double-arm
			return nil, false
		}
		switch order.Status {
		case broker.OrderStatusFilled:
			reason := ReasonStopLoss
			if pos.State == StateTrailing {
				reason = ReasonTrailingStop
			}
			fill := order.AvgFillPrice
			if fill <= 0 {
				fill = pos.StopPrice
			}
			pos.StopOrderID = ""
			m.finalize(pos, fill, reason, now)
			return &Event{
				Symbol: pos.Symbol,
				Kind:   EventClose,
				Detail: fmt.Sprintf("venue stop filled @ $%.2f (%s)", fill, reason),
			}, true
		case broker.OrderStatusCancelled, broker.OrderStatusRejected:
			pos.StopOrderID = ""
		default:
			return nil, false
		}
	}

	// No live stop order: protection gap
	if now.Before(pos.NextRearmAt) {
		return nil, false
	}
	pos.NextRearmAt = now.Add(m.config.RearmCooldown)

	if err := m.armStop(ctx, pos); err != nil {
		m.log.LogError("protection gap re-arm failed for "+pos.Symbol, err)
		return &Event{
			Symbol: pos.Symbol,
			Kind:   EventProtectionGap,
			Detail: "stop re-arm failed, will retry after cooldown",
		}, false
	}

	return &Event{
		Symbol: pos.Symbol,
		Kind:   EventRearm,
		Detail: fmt.Sprintf("protective stop re-armed @ $%.2f", pos.StopPrice),
	}, false
}

// trendStrengthOf derives a 0-1 trend strength proxy from a snapshot's EMA
// separation when the feed does not supply one
func trendStrengthOf(snap *market.FeatureSnapshot) float64 {
	if snap.EMA9 <= 0 || snap.EMA21 <= 0 {
		return 0.5
	}
	spread := math.Abs(snap.EMA9-snap.EMA21) / snap.EMA21
	// 1% separation saturates
	strength := spread * 100
	if strength > 1 {
		strength = 1
	}
	return strength
}
