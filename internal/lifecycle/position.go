package lifecycle

import (
	"math"
	"time"

	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/indicator"
)

type State string

const (
	Idle    State = "idle"
	Opening State = "opening"
	Open    State = "open"
	Closing State = "closing"
)

// Position is the single open trade.
type Position struct {
	ID         string
	Side       execution.Side
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
	Volume     float64
	OpenedAt   time.Time
}

// RefLevels are the band levels of the reference timeframe's newest bar.
type RefLevels struct {
	Upper float64
	Mid   float64
	Lower float64
}

func RefFromSnapshot(s indicator.Snapshot) RefLevels {
	return RefLevels{Upper: s.Upper, Mid: s.Mid, Lower: s.Lower}
}

func (r RefLevels) Valid() bool {
	return indicator.IsDefined(r.Upper) && indicator.IsDefined(r.Lower)
}

// Levels returns take-profit and stop-loss for side: a buy targets the upper
// band and stops at the lower one, a sell the reverse.
func Levels(side execution.Side, ref RefLevels) (tp, sl float64) {
	if side == execution.SideSell {
		return ref.Lower, ref.Upper
	}
	return ref.Upper, ref.Lower
}

const levelEpsilon = 1e-9

func sameLevel(a, b float64) bool {
	return math.Abs(a-b) <= levelEpsilon*math.Max(1, math.Abs(a))
}
