package signal

import (
	"time"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/broker"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
)

// Generator produces candidate signals from a feature snapshot by indicator
// consensus voting. Each indicator votes for one side; the candidate's raw
// confidence scales with how one-sided the vote is. The multi-timeframe
// filter and risk gates downstream decide whether a candidate becomes an
// order.
type Generator struct {
	minVotes int
}

// NewGenerator creates a signal generator requiring minVotes agreeing
// indicator votes before emitting a candidate
func NewGenerator(minVotes int) *Generator {
	if minVotes <= 0 {
		minVotes = 3
	}
	return &Generator{minVotes: minVotes}
}

// Generate returns a candidate signal for the snapshot, or nil when the
// indicators disagree too much to trade
func (g *Generator) Generate(snap *market.FeatureSnapshot, now time.Time) *Signal {
	if snap == nil || snap.Price <= 0 {
		return nil
	}

	buyVotes, sellVotes, total := 0, 0, 0

	vote := func(buy, sell bool) {
		total++
		if buy {
			buyVotes++
		} else if sell {
			sellVotes++
		}
	}

	// Fast EMA cross
	if snap.EMA9 > 0 && snap.EMA21 > 0 {
		vote(snap.EMA9 > snap.EMA21, snap.EMA9 < snap.EMA21)
	}
	// Price vs intermediate trend
	if snap.EMA50 > 0 {
		vote(snap.Price > snap.EMA50, snap.Price < snap.EMA50)
	}
	// RSI regime, excluding exhaustion extremes
	if snap.HasRSI() {
		vote(snap.RSI > 50 && snap.RSI < 70, snap.RSI < 50 && snap.RSI > 30)
	}
	// MACD histogram direction
	if snap.MACDHistogram != 0 {
		vote(snap.MACDHistogram > 0, snap.MACDHistogram < 0)
	}
	// Participation: expansion volume confirms either side, so it votes with
	// the fast EMA cross
	if snap.VolumeRatio > 1.2 && snap.EMA9 > 0 && snap.EMA21 > 0 {
		vote(snap.EMA9 > snap.EMA21, snap.EMA9 < snap.EMA21)
	}

	if total == 0 {
		return nil
	}

	var side broker.OrderSide
	votes := 0
	switch {
	case buyVotes > sellVotes && buyVotes >= g.minVotes:
		side, votes = broker.SideBuy, buyVotes
	case sellVotes > buyVotes && sellVotes >= g.minVotes:
		side, votes = broker.SideSell, sellVotes
	default:
		return nil
	}

	// Consensus strength maps to 50-100: unanimous votes reach the top band
	confidence := 50 + 50*float64(votes)/float64(total)
	if confidence > 100 {
		confidence = 100
	}

	return &Signal{
		Symbol:     snap.Symbol,
		Side:       side,
		Confidence: confidence,
		Features:   snap,
		Timestamp:  now,
	}
}
