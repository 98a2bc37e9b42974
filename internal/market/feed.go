package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Feed defines the interface to the market-data pipeline. Streaming,
// reconnects and indicator computation live behind this interface; the
// trading core only pulls ready-made snapshots.
type Feed interface {
	// GetLatestFeatures returns the freshest single-timeframe snapshot
	GetLatestFeatures(ctx context.Context, symbol string) (*FeatureSnapshot, error)

	// GetTimeframeBundle returns per-timeframe snapshots for the
	// multi-timeframe filter
	GetTimeframeBundle(ctx context.Context, symbol string) (*TimeframeBundle, error)

	// GetMarketContext returns market-wide sentiment and volatility inputs
	GetMarketContext(ctx context.Context) (*MarketContext, error)
}

// SnapshotCache is the process-wide feature cache shared by the evaluation
// and lifecycle loops. The refresh loop is the only writer; readers get
// copies so a slow consumer never observes a half-updated snapshot.
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]*FeatureSnapshot
	bundles   map[string]*TimeframeBundle
	context   *MarketContext
	maxAge    time.Duration
}

// NewSnapshotCache creates a snapshot cache. Entries older than maxAge are
// treated as missing; zero maxAge disables expiry.
func NewSnapshotCache(maxAge time.Duration) *SnapshotCache {
	return &SnapshotCache{
		snapshots: make(map[string]*FeatureSnapshot),
		bundles:   make(map[string]*TimeframeBundle),
		maxAge:    maxAge,
	}
}

// Put stores the latest snapshot for a symbol
func (c *SnapshotCache) Put(snapshot *FeatureSnapshot) {
	if snapshot == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapshot.Symbol] = snapshot
}

// PutBundle stores the latest timeframe bundle for a symbol
func (c *SnapshotCache) PutBundle(bundle *TimeframeBundle) {
	if bundle == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles[bundle.Symbol] = bundle
}

// PutContext stores the latest market-wide context
func (c *SnapshotCache) PutContext(mc *MarketContext) {
	if mc == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = mc
}

// Get returns the cached snapshot for a symbol
func (c *SnapshotCache) Get(symbol string) (*FeatureSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[symbol]
	if !ok {
		return nil, fmt.Errorf("no cached features for %s", symbol)
	}
	if c.maxAge > 0 && time.Since(snap.Timestamp) > c.maxAge {
		return nil, fmt.Errorf("cached features for %s are stale (age %s)", symbol, time.Since(snap.Timestamp).Round(time.Second))
	}

	cp := *snap
	return &cp, nil
}

// GetBundle returns the cached timeframe bundle for a symbol
func (c *SnapshotCache) GetBundle(symbol string) (*TimeframeBundle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bundle, ok := c.bundles[symbol]
	if !ok {
		return nil, fmt.Errorf("no cached timeframe bundle for %s", symbol)
	}

	cp := *bundle
	return &cp, nil
}

// GetContext returns the cached market context, or nil when never set
func (c *SnapshotCache) GetContext() *MarketContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.context == nil {
		return nil
	}
	cp := *c.context
	return &cp
}

// Symbols returns all symbols with a cached snapshot
func (c *SnapshotCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.snapshots))
	for s := range c.snapshots {
		symbols = append(symbols, s)
	}
	return symbols
}
