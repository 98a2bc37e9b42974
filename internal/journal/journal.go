package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"github.com/codebytelabs/DayTraderAI-sub002/internal/position"
)

// Journal collects closed trades for the session and produces the console
// summary and the Excel export
type Journal struct {
	mu     sync.Mutex
	trades []position.ClosedTrade
	start  time.Time
}

// New creates an empty session journal
func New() *Journal {
	return &Journal{start: time.Now()}
}

// Append records one closed trade
func (j *Journal) Append(trade position.ClosedTrade) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, trade)
}

// Trades returns a copy of the recorded trades
func (j *Journal) Trades() []position.ClosedTrade {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]position.ClosedTrade, len(j.trades))
	copy(out, j.trades)
	return out
}

// Stats summarizes the session
type Stats struct {
	Trades   int
	Wins     int
	Losses   int
	WinRate  float64
	TotalPnL float64
	AvgR     float64
	BestR    float64
	WorstR   float64
}

// Stats computes the session summary
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	var s Stats
	s.Trades = len(j.trades)
	if s.Trades == 0 {
		return s
	}

	var sumR float64
	s.BestR = j.trades[0].RMultiple
	s.WorstR = j.trades[0].RMultiple
	for _, t := range j.trades {
		s.TotalPnL += t.PnL
		sumR += t.RMultiple
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if t.RMultiple > s.BestR {
			s.BestR = t.RMultiple
		}
		if t.RMultiple < s.WorstR {
			s.WorstR = t.RMultiple
		}
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	s.AvgR = sumR / float64(s.Trades)
	return s
}

// PrintSummary renders the session summary table to stdout
func (j *Journal) PrintSummary() {
	s := j.Stats()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🔄 Trades", fmt.Sprintf("%d", s.Trades)},
		{"✅ Wins", fmt.Sprintf("%d", s.Wins)},
		{"❌ Losses", fmt.Sprintf("%d", s.Losses)},
		{"🎯 Win Rate", fmt.Sprintf("%.1f%%", s.WinRate)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"💰 Total P/L", fmt.Sprintf("$%.2f", s.TotalPnL)},
		{"📊 Avg R", fmt.Sprintf("%+.2fR", s.AvgR)},
		{"📈 Best", fmt.Sprintf("%+.2fR", s.BestR)},
		{"📉 Worst", fmt.Sprintf("%+.2fR", s.WorstR)},
		{"⏰ Session", time.Since(j.start).Round(time.Second).String()},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 14, WidthMax: 14, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 30, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// ExportXLSX writes the trade log and summary to an Excel workbook
func (j *Journal) ExportXLSX(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const summarySheet = "Summary"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(summarySheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"1F4E79"},
			Pattern: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := j.writeTradesSheet(fx, tradesSheet, headerStyle); err != nil {
		return err
	}
	if err := j.writeSummarySheet(fx, summarySheet, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (j *Journal) writeTradesSheet(fx *excelize.File, sheet string, headerStyle int) error {
	headers := []string{"Symbol", "Side", "Entry", "Exit", "Qty", "R", "P/L", "Reason", "Partials", "Opened", "Closed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
	}
	endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", endCell, headerStyle); err != nil {
		return err
	}

	for row, t := range j.Trades() {
		values := []interface{}{
			t.Symbol,
			string(t.Side),
			t.EntryPrice,
			t.ExitPrice,
			t.Quantity,
			t.RMultiple,
			t.PnL,
			string(t.Reason),
			t.Partials,
			t.OpenedAt.Format("2006-01-02 15:04:05"),
			t.ClosedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
	}
	return nil
}

func (j *Journal) writeSummarySheet(fx *excelize.File, sheet string, headerStyle int) error {
	s := j.Stats()

	fx.SetCellValue(sheet, "A1", "Metric")
	fx.SetCellValue(sheet, "B1", "Value")
	if err := fx.SetCellStyle(sheet, "A1", "B1", headerStyle); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Trades", s.Trades},
		{"Wins", s.Wins},
		{"Losses", s.Losses},
		{"Win Rate %", s.WinRate},
		{"Total P/L", s.TotalPnL},
		{"Avg R", s.AvgR},
		{"Best R", s.BestR},
		{"Worst R", s.WorstR},
	}
	for i, row := range rows {
		fx.SetCellValue(sheet, fmt.Sprintf("A%d", i+2), row[0])
		fx.SetCellValue(sheet, fmt.Sprintf("B%d", i+2), row[1])
	}
	return nil
}
