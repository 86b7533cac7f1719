package aggregator

import (
	"fmt"

	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/signal"
)

type Decision string

const (
	Buy           Decision = "BUY"
	Sell          Decision = "SELL"
	Hold          Decision = "HOLD"
	HoldDueToNews Decision = "HOLD (Due to News)"
)

// Actionable reports whether the decision opens a position.
func (d Decision) Actionable() bool {
	return d == Buy || d == Sell
}

// Vote is one timeframe's contribution to a cycle. Available is false when
// the timeframe's candles could not be used.
type Vote struct {
	Signal    signal.Signal
	Available bool
}

// Aggregate applies the unanimity rule over every timeframe in set.
// News risk vetoes everything; a missing or unavailable timeframe forces Hold.
func Aggregate(votes map[market.Timeframe]Vote, set market.TimeframeSet, newsRisk bool) Decision {
	if newsRisk {
		return HoldDueToNews
	}
	if len(set) == 0 {
		return Hold
	}

	first := signal.Hold
	for i, tf := range set {
		v, ok := votes[tf]
		if !ok || !v.Available {
			return Hold
		}
		if i == 0 {
			first = v.Signal
			continue
		}
		if v.Signal != first {
			return Hold
		}
	}

	switch first {
	case signal.Buy:
		return Buy
	case signal.Sell:
		return Sell
	default:
		return Hold
	}
}

// Suggestion is one row of the take-profit table.
type Suggestion struct {
	Label      string
	Timeframe  market.Timeframe
	TakeProfit *float64
}

// Suggestions lists the classifier take-profit of each key timeframe, in order.
// A timeframe without a result or without a TP yields a nil value.
func Suggestions(results map[market.Timeframe]signal.Result, keys []market.Timeframe) []Suggestion {
	out := make([]Suggestion, 0, len(keys))
	for i, tf := range keys {
		s := Suggestion{
			Label:     fmt.Sprintf("TP%d (%s)", i+1, tf),
			Timeframe: tf,
		}
		if r, ok := results[tf]; ok && r.TakeProfit != nil {
			tp := *r.TakeProfit
			s.TakeProfit = &tp
		}
		out = append(out, s)
	}
	return out
}
