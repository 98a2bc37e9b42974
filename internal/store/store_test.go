package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestFileStore_DrainsOnClose verifies queued records land in the per-kind
// JSONL file once Close has flushed the worker.
func TestFileStore_DrainsOnClose(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	assert.NoError(t, err)

	s.SaveRecord("decision", map[string]interface{}{"symbol": "AAPL", "approved": true})
	s.SaveRecord("decision", map[string]interface{}{"symbol": "MSFT", "approved": false})
	s.SaveRecord("closed_trade", map[string]interface{}{"symbol": "AAPL", "pnl": 350.0})
	assert.NoError(t, s.Close())

	date := time.Now().Format("2006-01-02")

	decisions := readLines(t, filepath.Join(dir, "decision_"+date+".jsonl"))
	assert.Len(t, decisions, 2)

	var env struct {
		Kind   string `json:"kind"`
		Record struct {
			Symbol string `json:"symbol"`
		} `json:"record"`
	}
	assert.NoError(t, json.Unmarshal([]byte(decisions[0]), &env))
	assert.Equal(t, "decision", env.Kind)
	assert.Equal(t, "AAPL", env.Record.Symbol)

	trades := readLines(t, filepath.Join(dir, "closed_trade_"+date+".jsonl"))
	assert.Len(t, trades, 1)
}

// TestFileStore_CloseIsIdempotent verifies double Close does not panic or
// deadlock.
func TestFileStore_CloseIsIdempotent(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	assert.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

// TestNopStore discards everything without error
func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	s.SaveRecord("decision", "anything")
	assert.NoError(t, s.Close())
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
