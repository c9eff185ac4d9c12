package journal

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/bandtrader/broker"
	"github.com/rustyeddy/bandtrader/risk"
)

var ts = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func sampleLedger() *Ledger {
	l := NewLedger()
	l.OnOrder(broker.OrderEvent{
		OrderID: "O1", FillID: "F1", TradeID: "T1", Status: broker.Completed,
		Time: ts, Side: risk.Buy, Price: 100, Size: 2, Value: 200, Commission: 0.2,
		Diagnostics: optional.Some(risk.Diagnostics{
			Price: 99.5, EMA: 101, ATR: 1.25, Exposure: 1.5, TargetPosition: 2, CurrentPosition: 0,
		}),
	})
	l.OnOrder(broker.OrderEvent{OrderID: "O2", Status: broker.Margin, Time: ts.AddDate(0, 0, 1), Side: risk.Buy})
	l.OnOrder(broker.OrderEvent{
		OrderID: "O3", FillID: "F3", TradeID: "T1", Status: broker.Completed,
		Time: ts.AddDate(0, 0, 2), Side: risk.Sell, Price: 110, Size: -2, Value: 220, PnL: 20,
	})
	return l
}

func TestLedgerRecordsCompletedOrdersOnly(t *testing.T) {
	t.Parallel()

	l := sampleLedger()
	require.Equal(t, 2, l.Len())

	fills := l.Fills()
	assert.Equal(t, "F1", fills[0].ID)
	assert.True(t, fills[0].IsBuy)
	assert.True(t, fills[0].Diagnostics.IsSome())
	assert.Equal(t, "F3", fills[1].ID)
	assert.False(t, fills[1].IsBuy)
	assert.Equal(t, -2.0, fills[1].Size)

	fills[0].Price = -1
	assert.Equal(t, 100.0, l.Fills()[0].Price, "Fills returns a copy")
}

func TestLedgerMarkClosed(t *testing.T) {
	t.Parallel()

	l := sampleLedger()
	assert.True(t, l.MarkClosed(broker.TradeClosed{TradeID: "T1", FillID: "F3", PnL: 19.5}))

	fills := l.Fills()
	assert.False(t, fills[0].Closed)
	assert.True(t, fills[1].Closed)
	assert.Equal(t, 19.5, fills[1].PnL)

	assert.False(t, l.MarkClosed(broker.TradeClosed{FillID: "missing"}))
	assert.False(t, l.MarkClosed(broker.TradeClosed{}))
	assert.Equal(t, fills, l.Fills(), "misses change nothing")
}

func TestLedgerMarkClosedFirstMatchWins(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.RecordFill(Fill{ID: "dup", Time: ts})
	l.RecordFill(Fill{ID: "dup", Time: ts})
	l.OnTradeClosed(broker.TradeClosed{FillID: "dup", PnL: 3})

	fills := l.Fills()
	assert.True(t, fills[0].Closed)
	assert.False(t, fills[1].Closed)
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestLedgerWriteCSVPlain(t *testing.T) {
	t.Parallel()

	l := sampleLedger()
	l.MarkClosed(broker.TradeClosed{FillID: "F3", PnL: 20})

	var buf bytes.Buffer
	require.NoError(t, l.WriteCSV(&buf, Plain))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "IsBuy", "Price", "Size", "Value", "PnL", "Closed"}, rows[0])
	assert.Equal(t, []string{"2024-03-15 00:00:00", "true", "100", "2", "200", "0", "false"}, rows[1])
	assert.Equal(t, []string{"2024-03-17 00:00:00", "false", "110", "-2", "220", "20", "true"}, rows[2])
}

func TestLedgerWriteCSVDiagnostic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, sampleLedger().WriteCSV(&buf, Diagnostic))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "IsBuy", "Price", "Size", "Value", "PnL",
		"x", "ema200", "atr", "y", "TargetPosition", "CurrentPosition", "Closed"}, rows[0])
	assert.Equal(t, []string{"99.5", "101", "1.25", "1.5", "2", "0"}, rows[1][6:12])
	assert.Equal(t, []string{"", "", "", "", "", ""}, rows[2][6:12], "missing diagnostics are empty")
	for _, r := range rows {
		assert.Len(t, r, 13)
	}
}

func TestLedgerWriteCSVKeepsSmallSizes(t *testing.T) {
	t.Parallel()

	l := NewLedger()
	l.RecordFill(Fill{ID: "F1", Time: ts, IsBuy: true, Price: 100, Size: 5e-7, Value: 5e-5,
		Diagnostics: optional.Some(Diagnostics{ATR: 1.2345678901})})

	var buf bytes.Buffer
	require.NoError(t, l.WriteCSV(&buf, Diagnostic))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 2)
	size, err := strconv.ParseFloat(rows[1][3], 64)
	require.NoError(t, err)
	assert.Equal(t, 5e-7, size)
	assert.Equal(t, "1.2345678901", rows[1][8])
}

func TestLedgerWriteCSVEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewLedger().WriteCSV(&buf, Plain))
	assert.Equal(t, "Date,IsBuy,Price,Size,Value,PnL,Closed\n", buf.String())
}

func TestLedgerExportCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out", "fills.csv")
	require.NoError(t, sampleLedger().ExportCSV(path, Diagnostic))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readCSV(t, string(data)), 3)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLedgerExportCSVError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := sampleLedger().ExportCSV(filepath.Join(blocker, "fills.csv"), Plain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal:")
}

func TestWriteEquityCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "equity.csv")
	curve := []EquitySnapshot{
		{Time: ts, Cash: 1000, Position: 0, Value: 1000},
		{Time: ts.AddDate(0, 0, 1), Cash: 800, Position: 2, Value: 1010.5},
	}
	require.NoError(t, WriteEquityCSV(path, curve))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows := readCSV(t, string(data))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"time", "cash", "position", "value"}, rows[0])
	assert.Equal(t, []string{"2024-03-16 00:00:00", "800", "2", "1010.5"}, rows[2])
}

func TestParseLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Layout
		err  bool
	}{
		{"", Plain, false},
		{"plain", Plain, false},
		{" Diagnostic ", Diagnostic, false},
		{"diag", Diagnostic, false},
		{"fancy", Plain, true},
	}
	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) Layout {
	t.Helper()
	l, err := ParseLayout(s)
	require.NoError(t, err)
	return l
}
