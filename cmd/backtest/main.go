package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/backtest"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/journal"
	"github.com/codebytelabs/DayTraderAI-sub002/internal/market"
	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

func main() {
	var (
		dataDir    = flag.String("data", "data", "Directory with <SYMBOL>_<timeframe>.csv candle files")
		symbol     = flag.String("symbol", "", "Symbol to replay (e.g., AAPL)")
		timeframe  = flag.String("timeframe", "5min", "Candle timeframe of the data files")
		equity     = flag.Float64("equity", 100000, "Starting equity")
		confidence = flag.Float64("confidence", 60, "Minimum raw signal confidence")
		optimize   = flag.Bool("optimize", false, "Grid-search confidence, risk and trail activation")
		workers    = flag.Int("workers", 0, "Sweep workers (0 = one per CPU)")
		showTrades = flag.Bool("trades", false, "Print the per-trade log")
		exportXLSX = flag.String("xlsx", "", "Export the trade log to an Excel workbook")
	)
	flag.Parse()

	if *symbol == "" {
		log.Fatal("Please specify a symbol with -symbol flag")
	}

	provider := market.NewCSVProvider(*dataDir)
	candles, err := provider.GetCandles(context.Background(), strings.ToUpper(*symbol), market.Timeframe(*timeframe), 0)
	if err != nil {
		log.Fatalf("Failed to load candles: %v", err)
	}
	fmt.Printf("📂 Loaded %d %s candles for %s\n", len(candles), *timeframe, strings.ToUpper(*symbol))

	cfg := backtest.DefaultConfig()
	cfg.StartingEquity = *equity
	cfg.MinConfidence = *confidence

	if *optimize {
		runSweep(cfg, strings.ToUpper(*symbol), candles, *workers)
		return
	}

	results, err := backtest.New(cfg).Run(strings.ToUpper(*symbol), candles)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	results.PrintSummary()
	if *showTrades {
		results.PrintTrades()
	}
	if *exportXLSX != "" {
		exportJournal(results, *exportXLSX)
	}
}

// runSweep grid-searches the replay parameters and reports the best cell
func runSweep(base backtest.Config, symbol string, candles []types.OHLCV, workers int) {
	fmt.Println("🔍 Running parameter sweep...")

	optimizer := backtest.NewOptimizer(base, backtest.DefaultSweepRanges(), workers)
	best, err := optimizer.Optimize(symbol, candles)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	fmt.Printf("✅ %d parameter sets evaluated (%d failed)\n", best.JobsRun, best.JobsFailed)
	fmt.Printf("🏆 Best: confidence %.0f, risk %.3f, trail activation %.1fR\n",
		best.Config.MinConfidence, best.Config.Risk.MaxRiskPerTradePct, best.Config.TrailingActivationR)
	best.Results.PrintSummary()
}

// exportJournal reuses the session journal's Excel writer for replay trades
func exportJournal(results *backtest.Results, path string) {
	j := journal.New()
	for _, trade := range results.Trades {
		j.Append(trade)
	}
	if err := j.ExportXLSX(path); err != nil {
		log.Fatalf("Failed to export workbook: %v", err)
	}
	fmt.Printf("📊 Trade log exported to %s\n", path)
}
