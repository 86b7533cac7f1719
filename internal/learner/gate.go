package learner

import "github.com/camuig/bbma-trader/internal/execution"

// Gate vetoes entries whose predicted win probability is below Min.
// An untrained model allows everything.
type Gate struct {
	Learner *Learner
	Min     float64
}

func (g Gate) AllowEntry(_ execution.Side, entry, takeProfit, stopLoss float64) bool {
	p, ok := g.Learner.Predict(entry, takeProfit, stopLoss)
	if !ok {
		return true
	}
	return p >= g.Min
}
