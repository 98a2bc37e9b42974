package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/safety"
)

// ProtectedBroker decorates a Broker with rate limiting and circuit breaker
// protection per operation class. Trading calls get the strict breaker,
// account and market-data calls the lenient one.
type ProtectedBroker struct {
	inner    Broker
	breakers *safety.BreakerManager
	limiters *safety.RateLimiterManager
}

// NewProtectedBroker wraps a broker with safety infrastructure
func NewProtectedBroker(inner Broker) *ProtectedBroker {
	breakers := safety.NewBreakerManager()
	limiters := safety.NewRateLimiterManager()

	// Trading operations are stricter than reads
	breakers.GetOrCreate("trading", safety.BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		CoolDown:         2 * time.Minute,
	})
	breakers.GetOrCreate("account", safety.BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		CoolDown:         time.Minute,
	})

	limiters.GetOrCreate("trading", 10, 10)
	limiters.GetOrCreate("account", 20, 20)

	return &ProtectedBroker{
		inner:    inner,
		breakers: breakers,
		limiters: limiters,
	}
}

// Breakers exposes the breaker manager for monitoring
func (p *ProtectedBroker) Breakers() *safety.BreakerManager {
	return p.breakers
}

// call runs fn under the named limiter and breaker
func (p *ProtectedBroker) call(ctx context.Context, class string, fn func() error) error {
	rl, _ := p.limiters.Get(class)
	if rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	cb, _ := p.breakers.Get(class)
	if cb == nil {
		return fn()
	}
	return cb.Call(fn)
}

func (p *ProtectedBroker) GetName() string { return p.inner.GetName() }
func (p *ProtectedBroker) IsPaper() bool   { return p.inner.IsPaper() }

func (p *ProtectedBroker) Connect(ctx context.Context) error { return p.inner.Connect(ctx) }
func (p *ProtectedBroker) Disconnect() error                 { return p.inner.Disconnect() }

func (p *ProtectedBroker) GetAccount(ctx context.Context) (*Account, error) {
	var result *Account
	err := p.call(ctx, "account", func() error {
		var innerErr error
		result, innerErr = p.inner.GetAccount(ctx)
		return innerErr
	})
	return result, err
}

func (p *ProtectedBroker) GetPositions(ctx context.Context) ([]Position, error) {
	var result []Position
	err := p.call(ctx, "account", func() error {
		var innerErr error
		result, innerErr = p.inner.GetPositions(ctx)
		return innerErr
	})
	return result, err
}

func (p *ProtectedBroker) SubmitOrder(ctx context.Context, params OrderParams) (*Order, error) {
	var result *Order
	err := p.call(ctx, "trading", func() error {
		var innerErr error
		result, innerErr = p.inner.SubmitOrder(ctx, params)
		return innerErr
	})
	return result, err
}

func (p *ProtectedBroker) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	var result *Order
	err := p.call(ctx, "account", func() error {
		var innerErr error
		result, innerErr = p.inner.GetOrderStatus(ctx, orderID)
		return innerErr
	})
	return result, err
}

func (p *ProtectedBroker) CancelOrder(ctx context.Context, orderID string) error {
	return p.call(ctx, "trading", func() error {
		return p.inner.CancelOrder(ctx, orderID)
	})
}

func (p *ProtectedBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	var result bool
	err := p.call(ctx, "account", func() error {
		var innerErr error
		result, innerErr = p.inner.IsMarketOpen(ctx)
		return innerErr
	})
	return result, err
}
