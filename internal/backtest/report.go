package backtest

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintSummary renders the replay results to stdout
func (r *Results) PrintSummary() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("BACKTEST %s", r.Symbol))
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💼 Start Equity", fmt.Sprintf("$%.2f", r.StartEquity)},
		{"💰 End Equity", fmt.Sprintf("$%.2f", r.EndEquity)},
		{"📈 Total Return", fmt.Sprintf("%+.2f%%", r.TotalReturn*100)},
		{"📉 Max Drawdown", fmt.Sprintf("%.2f%%", r.MaxDrawdown*100)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"🔄 Trades", fmt.Sprintf("%d", len(r.Trades))},
		{"🎯 Win Rate", fmt.Sprintf("%.1f%%", r.CalculateWinRate())},
		{"⚖️ Profit Factor", formatProfitFactor(r.CalculateProfitFactor())},
		{"📊 Expectancy", fmt.Sprintf("%+.2fR", r.CalculateExpectancy())},
		{"📐 Sharpe", fmt.Sprintf("%.2f", r.CalculateSharpeRatio())},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, WidthMax: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 16, WidthMax: 24, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintTrades renders the per-trade log to stdout
func (r *Results) PrintTrades() {
	if len(r.Trades) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADES")
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Side", "Entry", "Exit", "Qty", "R", "P/L", "Reason", "Closed"})

	for i, trade := range r.Trades {
		t.AppendRow(table.Row{
			i + 1,
			trade.Side,
			fmt.Sprintf("$%.2f", trade.EntryPrice),
			fmt.Sprintf("$%.2f", trade.ExitPrice),
			trade.Quantity,
			fmt.Sprintf("%+.2f", trade.RMultiple),
			fmt.Sprintf("$%.2f", trade.PnL),
			trade.Reason,
			trade.ClosedAt.Format("2006-01-02 15:04"),
		})
	}

	t.Render()
	fmt.Println()
}

func formatProfitFactor(pf float64) string {
	if pf > 1e6 {
		return "∞"
	}
	return fmt.Sprintf("%.2f", pf)
}
