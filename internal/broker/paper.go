package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker is an in-memory broker that fills orders immediately against a
// caller-supplied quote source. It backs dry-run mode and tests; no external
// calls are made.
type PaperBroker struct {
	mu          sync.Mutex
	cash        float64
	equity      float64
	positions   map[string]*Position
	orders      map[string]*Order
	quotes      map[string]float64
	slippagePct float64 // simulated adverse slippage per fill
	marketOpen  bool
	connected   bool
}

// NewPaperBroker creates a paper broker with a starting cash balance
func NewPaperBroker(startingCash float64) *PaperBroker {
	return &PaperBroker{
		cash:       startingCash,
		equity:     startingCash,
		positions:  make(map[string]*Position),
		orders:     make(map[string]*Order),
		quotes:     make(map[string]float64),
		marketOpen: true,
	}
}

// SetQuote sets the simulated market price for a symbol
func (p *PaperBroker) SetQuote(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = price
}

// SetSlippage sets the simulated adverse slippage fraction (e.g. 0.0005)
func (p *PaperBroker) SetSlippage(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slippagePct = pct
}

// SetMarketOpen toggles the simulated market session
func (p *PaperBroker) SetMarketOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marketOpen = open
}

// GetName returns the venue name
func (p *PaperBroker) GetName() string { return "paper" }

// IsPaper always returns true
func (p *PaperBroker) IsPaper() bool { return true }

// Connect marks the broker connected
func (p *PaperBroker) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect marks the broker disconnected
func (p *PaperBroker) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// IsMarketOpen returns the simulated session state
func (p *PaperBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marketOpen, nil
}

// GetAccount returns the simulated account snapshot
func (p *PaperBroker) GetAccount(ctx context.Context) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for _, pos := range p.positions {
		mark := p.quotes[pos.Symbol]
		if mark == 0 {
			mark = pos.AvgEntryPrice
		}
		if pos.Side == SideBuy {
			equity += float64(pos.Quantity) * mark
		} else {
			equity += float64(pos.Quantity) * (2*pos.AvgEntryPrice - mark)
		}
	}
	p.equity = equity

	return &Account{
		Equity:      equity,
		Cash:        p.cash,
		BuyingPower: p.cash,
		UpdatedTime: time.Now(),
	}, nil
}

// GetPositions returns all simulated open positions
func (p *PaperBroker) GetPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		cp := *pos
		if mark, ok := p.quotes[pos.Symbol]; ok {
			cp.MarkPrice = mark
			direction := 1.0
			if pos.Side == SideSell {
				direction = -1.0
			}
			cp.UnrealizedPnL = direction * float64(pos.Quantity) * (mark - pos.AvgEntryPrice)
		}
		out = append(out, cp)
	}
	return out, nil
}

// SubmitOrder fills the order immediately at the quote plus simulated
// slippage. Limit orders fill only when the quote satisfies the limit.
func (p *PaperBroker) SubmitOrder(ctx context.Context, params OrderParams) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.marketOpen {
		return nil, ErrMarketClosed
	}
	if params.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", params.Quantity)
	}

	quote, ok := p.quotes[params.Symbol]
	if !ok || quote <= 0 {
		return nil, fmt.Errorf("no quote available for %s", params.Symbol)
	}

	fillPrice := quote
	if p.slippagePct > 0 {
		// Slippage always moves against the trader
		if params.Side == SideBuy {
			fillPrice = quote * (1 + p.slippagePct)
		} else {
			fillPrice = quote * (1 - p.slippagePct)
		}
	}

	order := &Order{
		OrderID:       uuid.NewString(),
		ClientOrderID: params.ClientOrderID,
		Symbol:        params.Symbol,
		Side:          params.Side,
		OrderType:     params.OrderType,
		Quantity:      params.Quantity,
		LimitPrice:    params.LimitPrice,
		StopPrice:     params.StopPrice,
		CreatedTime:   time.Now(),
		UpdatedTime:   time.Now(),
	}

	if params.OrderType == OrderTypeStop {
		// Protective stops rest until cancelled; exits are simulated by the
		// caller closing at market
		order.Status = OrderStatusNew
		p.orders[order.OrderID] = order
		return order, nil
	}

	if params.OrderType == OrderTypeLimit && params.LimitPrice > 0 {
		crossed := (params.Side == SideBuy && fillPrice <= params.LimitPrice) ||
			(params.Side == SideSell && fillPrice >= params.LimitPrice)
		if !crossed {
			// Rests on the simulated book; never fills unless cancelled
			order.Status = OrderStatusNew
			p.orders[order.OrderID] = order
			return order, nil
		}
	}

	notional := float64(params.Quantity) * fillPrice
	if params.Side == SideBuy && notional > p.cash+1e-9 {
		return nil, ErrInsufficientBuyingPower
	}

	order.Status = OrderStatusFilled
	order.FilledQty = params.Quantity
	order.AvgFillPrice = math.Round(fillPrice*10000) / 10000
	p.orders[order.OrderID] = order
	p.applyFill(order)

	return order, nil
}

// applyFill updates cash and position state; must hold the mutex
func (p *PaperBroker) applyFill(order *Order) {
	notional := float64(order.FilledQty) * order.AvgFillPrice

	pos, exists := p.positions[order.Symbol]
	switch {
	case !exists:
		p.positions[order.Symbol] = &Position{
			Symbol:        order.Symbol,
			Side:          order.Side,
			Quantity:      order.FilledQty,
			AvgEntryPrice: order.AvgFillPrice,
			UpdatedTime:   time.Now(),
		}
		if order.Side == SideBuy {
			p.cash -= notional
		} else {
			p.cash += notional
		}
	case pos.Side == order.Side:
		// Add to position, update weighted average entry
		total := float64(pos.Quantity)*pos.AvgEntryPrice + notional
		pos.Quantity += order.FilledQty
		pos.AvgEntryPrice = total / float64(pos.Quantity)
		pos.UpdatedTime = time.Now()
		if order.Side == SideBuy {
			p.cash -= notional
		} else {
			p.cash += notional
		}
	default:
		// Reduce or close
		closed := order.FilledQty
		if closed > pos.Quantity {
			closed = pos.Quantity
		}
		direction := 1.0
		if pos.Side == SideSell {
			direction = -1.0
		}
		pnl := direction * float64(closed) * (order.AvgFillPrice - pos.AvgEntryPrice)
		p.cash += float64(closed)*pos.AvgEntryPrice + pnl
		pos.Quantity -= closed
		pos.UpdatedTime = time.Now()
		if pos.Quantity <= 0 {
			delete(p.positions, order.Symbol)
		}
	}
}

// GetOrderStatus returns the simulated order by ID
func (p *PaperBroker) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	cp := *order
	return &cp, nil
}

// CancelOrder cancels a resting simulated order
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("order %s already %s", orderID, order.Status)
	}
	order.Status = OrderStatusCancelled
	order.UpdatedTime = time.Now()
	return nil
}
