package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// BybitBroker implements Broker over Bybit's v5 unified trading API. It lets
// the engine run against a 24/7 crypto venue with the same decision core;
// IsMarketOpen always reports true.
type BybitBroker struct {
	httpClient *bybit_api.Client
	category   string // linear or spot
	demo       bool
	connected  bool
}

// BybitConfig holds the configuration for the Bybit broker
type BybitConfig struct {
	APIKey    string
	APISecret string
	Category  string // defaults to "linear"
	Testnet   bool
	Demo      bool // demo trading environment (paper)
}

// NewBybitBroker creates a Bybit-backed broker
func NewBybitBroker(cfg BybitConfig) *BybitBroker {
	var baseURL string
	if cfg.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	if cfg.Category == "" {
		cfg.Category = "linear"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		cfg.APIKey,
		cfg.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &BybitBroker{
		httpClient: httpClient,
		category:   cfg.Category,
		demo:       cfg.Demo,
	}
}

// GetName returns the venue name
func (b *BybitBroker) GetName() string { return "bybit" }

// IsPaper reports whether the broker runs against the demo environment
func (b *BybitBroker) IsPaper() bool { return b.demo }

// Connect verifies API connectivity by fetching the wallet
func (b *BybitBroker) Connect(ctx context.Context) error {
	if _, err := b.GetAccount(ctx); err != nil {
		return fmt.Errorf("failed to connect to bybit: %w", err)
	}
	b.connected = true
	return nil
}

// Disconnect marks the broker disconnected; the HTTP client is stateless
func (b *BybitBroker) Disconnect() error {
	b.connected = false
	return nil
}

// IsMarketOpen always returns true: crypto trades around the clock
func (b *BybitBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	return true, nil
}

// bybitOrder mirrors the order fields of the v5 API we consume
type bybitOrder struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	OrderStatus string `json:"orderStatus"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

// SubmitOrder places an order on Bybit
func (b *BybitBroker) SubmitOrder(ctx context.Context, params OrderParams) (*Order, error) {
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if params.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", params.Quantity)
	}

	apiParams := map[string]interface{}{
		"category":  b.category,
		"symbol":    params.Symbol,
		"side":      string(params.Side),
		"orderType": string(params.OrderType),
		"qty":       strconv.Itoa(params.Quantity),
	}
	if params.OrderType == OrderTypeLimit {
		if params.LimitPrice <= 0 {
			return nil, fmt.Errorf("limit price is required for limit orders")
		}
		apiParams["price"] = strconv.FormatFloat(params.LimitPrice, 'f', -1, 64)
		apiParams["timeInForce"] = "GTC"
	}
	if params.ClientOrderID != "" {
		apiParams["orderLinkId"] = params.ClientOrderID
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := b.decodeResult(result, &placed); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}

	// The placement response carries only IDs; fetch the full order state
	order, err := b.GetOrderStatus(ctx, placed.OrderID)
	if err != nil {
		// Order exists at the venue even when the follow-up read fails
		return &Order{
			OrderID:       placed.OrderID,
			ClientOrderID: placed.OrderLinkID,
			Symbol:        params.Symbol,
			Side:          params.Side,
			OrderType:     params.OrderType,
			Quantity:      params.Quantity,
			LimitPrice:    params.LimitPrice,
			Status:        OrderStatusNew,
			CreatedTime:   time.Now(),
			UpdatedTime:   time.Now(),
		}, nil
	}
	return order, nil
}

// GetOrderStatus retrieves an order, checking open orders then history
func (b *BybitBroker) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	params := map[string]interface{}{
		"category": b.category,
		"orderId":  orderID,
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err == nil {
		if order, found := b.findOrder(result, orderID); found {
			return order, nil
		}
	}

	result, err = b.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}
	if order, found := b.findOrder(result, orderID); found {
		return order, nil
	}

	return nil, ErrUnknownOrder
}

// CancelOrder cancels an open order
func (b *BybitBroker) CancelOrder(ctx context.Context, orderID string) error {
	params := map[string]interface{}{
		"category": b.category,
		"orderId":  orderID,
	}

	if _, err := b.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetPositions retrieves open positions, settled in USDT
func (b *BybitBroker) GetPositions(ctx context.Context) ([]Position, error) {
	params := map[string]interface{}{
		"category":   b.category,
		"settleCoin": "USDT",
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	var list struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			UpdatedTime   string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := b.decodeResult(result, &list); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}

	positions := make([]Position, 0, len(list.List))
	for _, p := range list.List {
		size := parseFloat(p.Size)
		if size <= 0 {
			continue
		}
		side := SideBuy
		if p.Side == "Sell" {
			side = SideSell
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Side:          side,
			Quantity:      int(size),
			AvgEntryPrice: parseFloat(p.AvgPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			UnrealizedPnL: parseFloat(p.UnrealisedPnl),
			UpdatedTime:   parseMillis(p.UpdatedTime),
		})
	}
	return positions, nil
}

// GetAccount retrieves the unified account wallet snapshot
func (b *BybitBroker) GetAccount(ctx context.Context) (*Account, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account wallet: %w", err)
	}

	var wallet struct {
		List []struct {
			TotalEquity           string `json:"totalEquity"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
		} `json:"list"`
	}
	if err := b.decodeResult(result, &wallet); err != nil {
		return nil, fmt.Errorf("failed to parse wallet response: %w", err)
	}
	if len(wallet.List) == 0 {
		return nil, fmt.Errorf("empty wallet response")
	}

	w := wallet.List[0]
	return &Account{
		Equity:      parseFloat(w.TotalEquity),
		Cash:        parseFloat(w.TotalWalletBalance),
		BuyingPower: parseFloat(w.TotalAvailableBalance),
		UpdatedTime: time.Now(),
	}, nil
}

// findOrder scans an order-list response for the given order ID
func (b *BybitBroker) findOrder(response interface{}, orderID string) (*Order, bool) {
	var list struct {
		List []bybitOrder `json:"list"`
	}
	if err := b.decodeResult(response, &list); err != nil {
		return nil, false
	}

	for _, o := range list.List {
		if o.OrderID != orderID {
			continue
		}
		return b.toOrder(o), true
	}
	return nil, false
}

// toOrder converts a venue order into the common Order type
func (b *BybitBroker) toOrder(o bybitOrder) *Order {
	side := SideBuy
	if o.Side == "Sell" {
		side = SideSell
	}

	var status OrderStatus
	switch o.OrderStatus {
	case "Filled":
		status = OrderStatusFilled
	case "PartiallyFilled":
		status = OrderStatusPartiallyFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		status = OrderStatusCancelled
	case "Rejected":
		status = OrderStatusRejected
	default:
		status = OrderStatusNew
	}

	return &Order{
		OrderID:       o.OrderID,
		ClientOrderID: o.OrderLinkID,
		Symbol:        o.Symbol,
		Side:          side,
		OrderType:     OrderType(o.OrderType),
		Quantity:      int(parseFloat(o.Qty)),
		LimitPrice:    parseFloat(o.Price),
		FilledQty:     int(parseFloat(o.CumExecQty)),
		AvgFillPrice:  parseFloat(o.AvgPrice),
		Status:        status,
		CreatedTime:   parseMillis(o.CreatedTime),
		UpdatedTime:   parseMillis(o.UpdatedTime),
	}
}

// decodeResult extracts the Result payload of a v5 API response into out
func (b *BybitBroker) decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return &BrokerError{
			Code:        strconv.Itoa(serverResp.RetCode),
			Message:     serverResp.RetMsg,
			IsRetryable: serverResp.RetCode >= 10000, // system-level codes
		}
	}

	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to re-encode result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
