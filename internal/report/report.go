// Package report prints the per-cycle console summary.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/shopspring/decimal"

	"github.com/camuig/bbma-trader/internal/aggregator"
	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/news"
	"github.com/camuig/bbma-trader/internal/signal"
)

// tpPlaces is the rounding applied to displayed take-profit levels.
const tpPlaces = 5

// TimeframeSignal is one row of the signal line.
type TimeframeSignal struct {
	Timeframe market.Timeframe `json:"timeframe"`
	Signal    signal.Signal    `json:"signal"`
	Available bool             `json:"available"`
	Stale     bool             `json:"stale,omitempty"`
	Filtered  string           `json:"filtered,omitempty"`
}

// Cycle is everything shown for one scheduler cycle.
type Cycle struct {
	Timestamp   time.Time
	Symbol      string
	Signals     []TimeframeSignal
	Decision    aggregator.Decision
	Suggestions []aggregator.Suggestion
	News        []news.Item
	NewsFailed  bool
}

type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter writes to w. Colour is used only when w is a terminal; escape
// sequences go through go-colorable so they render on Windows consoles too.
func NewPrinter(w io.Writer) *Printer {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return &Printer{w: colorable.NewColorable(f), color: true}
	}
	return &Printer{w: w}
}

func (p *Printer) Print(c Cycle) {
	fmt.Fprint(p.w, Format(c, p.color))
}

// Format renders the summary; colour wraps the decision in ANSI codes.
func Format(c Cycle, color bool) string {
	var sb strings.Builder

	sb.WriteString("\n========================================\n")
	sb.WriteString(fmt.Sprintf("Timestamp: %s\n", c.Timestamp.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Symbol: %s\n", c.Symbol))

	parts := make([]string, 0, len(c.Signals))
	for _, s := range c.Signals {
		parts = append(parts, fmt.Sprintf("%s: %s", s.Timeframe, signalLabel(s)))
	}
	sb.WriteString(fmt.Sprintf("Signals: {%s}\n", strings.Join(parts, ", ")))

	sb.WriteString(fmt.Sprintf("\nFinal Decision: %s\n", decisionLabel(c.Decision, color)))

	tps := make([]string, 0, len(c.Suggestions))
	for _, s := range c.Suggestions {
		tps = append(tps, fmt.Sprintf("%s: %s", s.Label, tpLabel(s.TakeProfit)))
	}
	sb.WriteString(fmt.Sprintf("Suggested Take Profit Points: {%s}\n", strings.Join(tps, ", ")))

	if c.NewsFailed {
		sb.WriteString("\nNews check unavailable, trading without news filter\n")
	}
	if len(c.News) > 0 {
		sb.WriteString("\n⚠️ High-impact news detected, avoid trading ⚠️\n")
		for _, n := range c.News {
			sb.WriteString(n.String() + "\n")
		}
	}
	return sb.String()
}

func signalLabel(s TimeframeSignal) string {
	switch {
	case !s.Available:
		return "n/a"
	case s.Filtered != "":
		return fmt.Sprintf("%s (%s)", s.Signal, s.Filtered)
	case s.Stale:
		return fmt.Sprintf("%s (stale)", s.Signal)
	}
	return string(s.Signal)
}

func tpLabel(tp *float64) string {
	if tp == nil {
		return "None"
	}
	return decimal.NewFromFloat(*tp).Round(tpPlaces).String()
}

func decisionLabel(d aggregator.Decision, color bool) string {
	if !color {
		return string(d)
	}
	code := "33" // yellow
	switch d {
	case aggregator.Buy:
		code = "32"
	case aggregator.Sell:
		code = "31"
	}
	return "\x1b[" + code + "m" + string(d) + "\x1b[0m"
}
