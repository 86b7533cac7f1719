package aggregator

import (
	"testing"

	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/signal"
)

func votes(sigs ...signal.Signal) map[market.Timeframe]Vote {
	out := make(map[market.Timeframe]Vote, len(sigs))
	for i, s := range sigs {
		out[market.DefaultTimeframes[i]] = Vote{Signal: s, Available: true}
	}
	return out
}

func TestAggregate(t *testing.T) {
	B, S, H := signal.Buy, signal.Sell, signal.Hold
	cases := []struct {
		name  string
		votes map[market.Timeframe]Vote
		news  bool
		want  Decision
	}{
		{"all buy", votes(B, B, B, B, B, B), false, Buy},
		{"all sell", votes(S, S, S, S, S, S), false, Sell},
		{"one dissent", votes(B, B, B, B, B, S), false, Hold},
		{"hold present", votes(B, B, H, B, B, B), false, Hold},
		{"all hold", votes(H, H, H, H, H, H), false, Hold},
		{"news overrides buy", votes(B, B, B, B, B, B), true, HoldDueToNews},
		{"news overrides mixed", votes(B, S, H, B, S, H), true, HoldDueToNews},
		{"missing timeframe", votes(B, B, B, B, B), false, Hold},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Aggregate(tc.votes, market.DefaultTimeframes, tc.news); got != tc.want {
				t.Fatalf("Aggregate=%s want %s", got, tc.want)
			}
		})
	}
}

func TestAggregateUnavailableTimeframeIsHold(t *testing.T) {
	v := votes(signal.Buy, signal.Buy, signal.Buy, signal.Buy, signal.Buy, signal.Buy)
	v[market.H4] = Vote{Signal: signal.Buy, Available: false}
	if got := Aggregate(v, market.DefaultTimeframes, false); got != Hold {
		t.Fatalf("Aggregate=%s want HOLD when a timeframe failed", got)
	}
}

func TestSuggestions(t *testing.T) {
	tp := 1.2345
	results := map[market.Timeframe]signal.Result{
		market.M1:  {Signal: signal.Buy, TakeProfit: &tp},
		market.M15: {Signal: signal.Hold},
	}
	got := Suggestions(results, []market.Timeframe{market.M1, market.M15, market.H1})
	if len(got) != 3 {
		t.Fatalf("len=%d want 3", len(got))
	}
	if got[0].Label != "TP1 (M1)" || got[0].TakeProfit == nil || *got[0].TakeProfit != tp {
		t.Fatalf("unexpected first row %+v", got[0])
	}
	if got[1].TakeProfit != nil || got[2].TakeProfit != nil {
		t.Fatalf("rows without tp must be nil: %+v %+v", got[1], got[2])
	}
	if got[2].Label != "TP3 (H1)" {
		t.Fatalf("label=%s", got[2].Label)
	}
}
