package market

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/codebytelabs/DayTraderAI-sub002/pkg/types"
)

// Provider supplies raw candle history for the feature pipeline
type Provider interface {
	// GetCandles returns up to limit candles in chronological order, the
	// latest candle last
	GetCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]types.OHLCV, error)
}

// bybitIntervals maps internal timeframes onto Bybit kline intervals
var bybitIntervals = map[Timeframe]string{
	Timeframe1Min:  "1",
	Timeframe5Min:  "5",
	Timeframe15Min: "15",
	TimeframeDaily: "D",
}

// BybitProvider fetches kline data from the Bybit market endpoints. Market
// data needs no credentials.
type BybitProvider struct {
	client   *bybit_api.Client
	category string
}

// NewBybitProvider creates a Bybit market-data provider
func NewBybitProvider(testnet bool, category string) *BybitProvider {
	baseURL := bybit_api.MAINNET
	if testnet {
		baseURL = bybit_api.TESTNET
	}
	if category == "" {
		category = "linear"
	}
	return &BybitProvider{
		client:   bybit_api.NewBybitHttpClient("", "", bybit_api.WithBaseURL(baseURL)),
		category: category,
	}
}

// GetCandles fetches kline data and returns it oldest-first
func (p *BybitProvider) GetCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]types.OHLCV, error) {
	interval, ok := bybitIntervals[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %s", timeframe)
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	params := map[string]interface{}{
		"category": p.category,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}

	result, err := p.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}
	serverResp, ok := interface{}(result).(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected kline response type %T", result)
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("kline request rejected: %s (code %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kline result: %w", err)
	}
	var klines struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klines); err != nil {
		return nil, fmt.Errorf("failed to parse kline result: %w", err)
	}

	// Bybit returns newest first; reverse into chronological order
	out := make([]types.OHLCV, 0, len(klines.List))
	for i := len(klines.List) - 1; i >= 0; i-- {
		row := klines.List[i]
		if len(row) < 6 {
			continue
		}
		candle, err := parseKlineRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

// parseKlineRow converts one Bybit kline row [start, open, high, low, close,
// volume, ...] into a candle
func parseKlineRow(row []string) (types.OHLCV, error) {
	millis, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return types.OHLCV{}, fmt.Errorf("invalid kline timestamp %q: %w", row[0], err)
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return types.OHLCV{}, fmt.Errorf("invalid kline value %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	return types.OHLCV{
		Timestamp: time.UnixMilli(millis),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// CSVProvider reads candle history from CSV files laid out as
// <dir>/<SYMBOL>_<timeframe>.csv with a timestamp,open,high,low,close,volume
// header row. It backs replay runs and tests.
type CSVProvider struct {
	dir string
}

// NewCSVProvider creates a CSV-backed provider rooted at dir
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// GetCandles loads the file for the symbol and timeframe, returning the
// trailing limit candles
func (p *CSVProvider) GetCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]types.OHLCV, error) {
	path := filepath.Join(p.dir, fmt.Sprintf("%s_%s.csv", symbol, timeframe))
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candle file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil { // header
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	var data []types.OHLCV
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s at line %d: %w", path, line, err)
		}
		line++
		if len(record) < 6 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			// Also accept unix millis
			millis, merr := strconv.ParseInt(record[0], 10, 64)
			if merr != nil {
				continue
			}
			ts = time.UnixMilli(millis)
		}

		var vals [5]float64
		ok := true
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}

		data = append(data, types.OHLCV{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}

	if limit > 0 && len(data) > limit {
		data = data[len(data)-limit:]
	}
	return data, nil
}
