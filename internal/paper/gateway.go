// Package paper simulates order execution against the live candle feed.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/logger"
	"github.com/camuig/bbma-trader/internal/market"
)

// lookback is how many bars of the fill timeframe ClosedDeals inspects.
const lookback = 500

type position struct {
	req      execution.OrderRequest
	entry    float64
	openedAt time.Time
}

// Gateway fills market orders at the quoted price and closes a position
// when a later bar trades through its take-profit or stop-loss.
type Gateway struct {
	feed   market.Provider
	tf     market.Timeframe
	spread float64
	logger *logger.Logger

	mu        sync.Mutex
	positions map[string]*position

	now func() time.Time
}

// New builds a Gateway. Quotes are the newest close on tf, widened by
// spread on each side.
func New(feed market.Provider, tf market.Timeframe, spread float64, log *logger.Logger) *Gateway {
	return &Gateway{
		feed:      feed,
		tf:        tf,
		spread:    spread,
		logger:    log.With("component", "paper"),
		positions: make(map[string]*position),
		now:       time.Now,
	}
}

func (g *Gateway) Quote(ctx context.Context, symbol string) (execution.Quote, error) {
	bars, err := g.feed.Fetch(ctx, symbol, g.tf, 1)
	if err != nil {
		return execution.Quote{}, fmt.Errorf("fetch quote bar: %w", err)
	}
	if len(bars) == 0 {
		return execution.Quote{}, fmt.Errorf("no bars for %s %s", symbol, g.tf)
	}
	last := bars[len(bars)-1].Close
	return execution.Quote{Bid: last - g.spread/2, Ask: last + g.spread/2}, nil
}

func (g *Gateway) Submit(_ context.Context, req execution.OrderRequest) (execution.Ack, error) {
	if err := validLevels(req.Side, req.Price, req.StopLoss, req.TakeProfit); err != nil {
		return execution.Ack{}, err
	}

	id := uuid.NewString()
	g.mu.Lock()
	g.positions[id] = &position{req: req, entry: req.Price, openedAt: g.now()}
	g.mu.Unlock()

	g.logger.Info("paper order filled", "position", id, "side", req.Side, "price", req.Price,
		"tp", req.TakeProfit, "sl", req.StopLoss)
	return execution.Ack{PositionID: id, Price: req.Price}, nil
}

// Track re-attaches a position restored from storage after a restart.
func (g *Gateway) Track(id string, req execution.OrderRequest, openedAt time.Time) error {
	if err := validLevels(req.Side, req.Price, req.StopLoss, req.TakeProfit); err != nil {
		return err
	}
	g.mu.Lock()
	g.positions[id] = &position{req: req, entry: req.Price, openedAt: openedAt}
	g.mu.Unlock()
	return nil
}

func (g *Gateway) Modify(_ context.Context, positionID string, stopLoss, takeProfit float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.positions[positionID]
	if !ok {
		return &execution.Rejection{Op: "modify", Reason: "unknown position " + positionID}
	}
	if err := validLevels(p.req.Side, p.entry, stopLoss, takeProfit); err != nil {
		return err
	}
	p.req.StopLoss = stopLoss
	p.req.TakeProfit = takeProfit
	return nil
}

// ClosedDeals scans bars opened after entry, oldest first. When one bar
// touches both levels the stop-loss is assumed to have filled first.
func (g *Gateway) ClosedDeals(ctx context.Context, positionID string) ([]execution.Deal, error) {
	g.mu.Lock()
	p, ok := g.positions[positionID]
	var snapshot position
	if ok {
		snapshot = *p
	}
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown position %s", positionID)
	}

	bars, err := g.feed.Fetch(ctx, snapshot.req.Symbol, g.tf, lookback)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	for _, b := range bars {
		if !b.Time.After(snapshot.openedAt) {
			continue
		}
		exit, hit := exitPrice(snapshot.req, b)
		if !hit {
			continue
		}

		g.mu.Lock()
		delete(g.positions, positionID)
		g.mu.Unlock()

		profit := (exit - snapshot.entry) * snapshot.req.Volume
		if snapshot.req.Side == execution.SideSell {
			profit = -profit
		}
		g.logger.Info("paper position closed", "position", positionID, "exit", exit, "profit", profit)
		return []execution.Deal{{PositionID: positionID, Profit: profit, Price: exit}}, nil
	}
	return nil, nil
}

func exitPrice(req execution.OrderRequest, b market.Bar) (float64, bool) {
	if req.Side == execution.SideBuy {
		switch {
		case b.Low <= req.StopLoss:
			return req.StopLoss, true
		case b.High >= req.TakeProfit:
			return req.TakeProfit, true
		}
		return 0, false
	}
	switch {
	case b.High >= req.StopLoss:
		return req.StopLoss, true
	case b.Low <= req.TakeProfit:
		return req.TakeProfit, true
	}
	return 0, false
}

func validLevels(side execution.Side, price, sl, tp float64) error {
	ok := sl < price && price < tp
	if side == execution.SideSell {
		ok = tp < price && price < sl
	}
	if !ok {
		return &execution.Rejection{
			Op:     "submit",
			Reason: fmt.Sprintf("invalid stops for %s at %.5f: sl=%.5f tp=%.5f", side, price, sl, tp),
		}
	}
	return nil
}
