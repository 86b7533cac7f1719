package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camuig/bbma-trader/internal/aggregator"
	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/news"
	"github.com/camuig/bbma-trader/internal/signal"
)

func TestFormat(t *testing.T) {
	tp := 1.2049999999
	c := Cycle{
		Timestamp: time.Date(2026, 3, 2, 12, 45, 0, 0, time.UTC),
		Symbol:    "EURUSD",
		Signals: []TimeframeSignal{
			{Timeframe: market.M1, Signal: signal.Buy, Available: true},
			{Timeframe: market.M5, Signal: signal.Hold, Available: true, Filtered: "ranging"},
			{Timeframe: market.H4, Available: false},
		},
		Decision: aggregator.HoldDueToNews,
		Suggestions: []aggregator.Suggestion{
			{Label: "TP1 (M1)", Timeframe: market.M1, TakeProfit: &tp},
			{Label: "TP2 (M15)", Timeframe: market.M15},
		},
		News: []news.Item{{Title: "Key rate decision", Published: time.Date(2026, 3, 2, 12, 40, 0, 0, time.UTC)}},
	}

	out := Format(c, false)
	for _, want := range []string{
		"Timestamp: 2026-03-02 12:45:00",
		"Symbol: EURUSD",
		"Signals: {M1: Buy, M5: Hold (ranging), H4: n/a}",
		"Final Decision: HOLD (Due to News)",
		"Suggested Take Profit Points: {TP1 (M1): 1.205, TP2 (M15): None}",
		"High-impact news detected",
		"12:40 - Key rate decision",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colour codes in plain output")
	}
	if !strings.Contains(Format(Cycle{Decision: aggregator.Buy}, true), "\x1b[32mBUY") {
		t.Fatalf("buy not coloured green")
	}
}

func TestPrinterOnBufferHasNoColour(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Print(Cycle{Symbol: "SBER", Decision: aggregator.Sell})
	if !strings.Contains(buf.String(), "Final Decision: SELL\n") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrinterOnRegularFileHasNoColour(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "cycle.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	p := NewPrinter(f)
	if p.color {
		t.Fatalf("regular file treated as terminal")
	}
	p.Print(Cycle{Symbol: "SBER", Decision: aggregator.Buy})
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "\x1b[") || !strings.Contains(string(data), "Final Decision: BUY\n") {
		t.Fatalf("unexpected output %q", data)
	}
}
