package storage

import (
	"time"

	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/lifecycle"
	"github.com/camuig/bbma-trader/internal/logger"
)

// TradeLog mirrors lifecycle events into the trades table. Write failures are
// logged; trading continues.
type TradeLog struct {
	repo   *Repository
	symbol string
	logger *logger.Logger
	now    func() time.Time
}

func NewTradeLog(repo *Repository, symbol string, log *logger.Logger) *TradeLog {
	return &TradeLog{repo: repo, symbol: symbol, logger: log, now: time.Now}
}

func (t *TradeLog) PositionOpened(p lifecycle.Position) {
	err := t.repo.SaveTrade(&Trade{
		Symbol:     t.symbol,
		PositionID: p.ID,
		Side:       string(p.Side),
		EntryPrice: p.EntryPrice,
		Volume:     p.Volume,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Status:     StatusOpen,
		OpenedAt:   p.OpenedAt,
	})
	if err != nil {
		t.logger.Error("save trade", "position", p.ID, "error", err)
	}
}

func (t *TradeLog) EntryRejected(execution.Side, error) {}

func (t *TradeLog) LevelsAdjusted(p lifecycle.Position) {
	if err := t.repo.UpdateLevels(p.ID, p.StopLoss, p.TakeProfit); err != nil {
		t.logger.Error("update trade levels", "position", p.ID, "error", err)
	}
}

func (t *TradeLog) PositionClosed(p lifecycle.Position, rec journal.TradeRecord, profit float64) {
	if err := t.repo.CloseTrade(p.ID, profit, string(rec.Result), t.now()); err != nil {
		t.logger.Error("close trade", "position", p.ID, "error", err)
	}
}

// OpenPosition rebuilds the lifecycle position of an open trade, if any.
func (r *Repository) OpenPosition(symbol string) (*lifecycle.Position, error) {
	tr, err := r.GetOpenTrade(symbol)
	if err != nil || tr == nil {
		return nil, err
	}
	return &lifecycle.Position{
		ID:         tr.PositionID,
		Side:       execution.Side(tr.Side),
		EntryPrice: tr.EntryPrice,
		TakeProfit: tr.TakeProfit,
		StopLoss:   tr.StopLoss,
		Volume:     tr.Volume,
		OpenedAt:   tr.OpenedAt,
	}, nil
}
