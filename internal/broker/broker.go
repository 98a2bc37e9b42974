package broker

import (
	"context"
	"time"
)

// Broker defines the interface for order routing and account state.
// Concrete venues (paper, Bybit) implement it; the engine never talks to a
// venue SDK directly.
type Broker interface {
	// Venue identification
	GetName() string
	IsPaper() bool

	// Account management
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)

	// Trading operations
	SubmitOrder(ctx context.Context, params OrderParams) (*Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error

	// Market session
	IsMarketOpen(ctx context.Context) (bool, error)

	// Connection management
	Connect(ctx context.Context) error
	Disconnect() error
}

// OrderSide represents buy or sell side
type OrderSide string

const (
	SideBuy  OrderSide = "Buy"
	SideSell OrderSide = "Sell"
)

// Opposite returns the closing side for a position opened on this side
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents different order types
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
	OrderTypeStop   OrderType = "Stop"
)

// OrderParams represents parameters for placing an order
type OrderParams struct {
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Quantity      int       `json:"quantity"`
	OrderType     OrderType `json:"order_type"`
	LimitPrice    float64   `json:"limit_price,omitempty"` // Limit orders
	StopPrice     float64   `json:"stop_price,omitempty"`  // Stop orders
	ClientOrderID string    `json:"client_order_id,omitempty"`
}

// OrderStatus represents the lifecycle state of an order at the venue
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// IsTerminal reports whether the order can no longer fill
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order represents order information returned by the venue
type Order struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	OrderType     OrderType   `json:"order_type"`
	Quantity      int         `json:"quantity"`
	LimitPrice    float64     `json:"limit_price,omitempty"`
	StopPrice     float64     `json:"stop_price,omitempty"`
	FilledQty     int         `json:"filled_qty"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
	Status        OrderStatus `json:"status"`
	CreatedTime   time.Time   `json:"created_time"`
	UpdatedTime   time.Time   `json:"updated_time"`
}

// Account represents the trading account snapshot
type Account struct {
	Equity      float64   `json:"equity"`
	Cash        float64   `json:"cash"`
	BuyingPower float64   `json:"buying_power"`
	UpdatedTime time.Time `json:"updated_time"`
}

// Position represents a venue-side open position
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Quantity      int       `json:"quantity"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedTime   time.Time `json:"updated_time"`
}

// BrokerError represents a standardized venue error
type BrokerError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	IsRetryable bool   `json:"is_retryable"`
}

func (e *BrokerError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Common error values
var (
	ErrInsufficientBuyingPower = &BrokerError{
		Code:        "INSUFFICIENT_BUYING_POWER",
		Message:     "insufficient buying power for order",
		IsRetryable: false,
	}

	ErrUnknownOrder = &BrokerError{
		Code:        "UNKNOWN_ORDER",
		Message:     "order not found",
		IsRetryable: false,
	}

	ErrMarketClosed = &BrokerError{
		Code:        "MARKET_CLOSED",
		Message:     "market is closed",
		IsRetryable: false,
	}

	ErrConnectionFailed = &BrokerError{
		Code:        "CONNECTION_FAILED",
		Message:     "failed to connect to broker",
		IsRetryable: true,
	}
)
