package lifecycle

import (
	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
)

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) PositionOpened(p Position) {
	for _, obs := range o {
		obs.PositionOpened(p)
	}
}

func (o Observers) EntryRejected(side execution.Side, err error) {
	for _, obs := range o {
		obs.EntryRejected(side, err)
	}
}

func (o Observers) LevelsAdjusted(p Position) {
	for _, obs := range o {
		obs.LevelsAdjusted(p)
	}
}

func (o Observers) PositionClosed(p Position, rec journal.TradeRecord, profit float64) {
	for _, obs := range o {
		obs.PositionClosed(p, rec, profit)
	}
}
