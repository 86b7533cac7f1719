package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Trades

func (r *Repository) SaveTrade(trade *Trade) error {
	return r.db.Create(trade).Error
}

// GetOpenTrade returns the open trade for symbol, or nil when flat.
func (r *Repository) GetOpenTrade(symbol string) (*Trade, error) {
	var trade Trade
	err := r.db.Where("status = ? AND symbol = ?", StatusOpen, symbol).
		Order("created_at DESC").First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (r *Repository) UpdateLevels(positionID string, stopLoss, takeProfit float64) error {
	return r.db.Model(&Trade{}).Where("position_id = ?", positionID).
		Updates(map[string]any{"stop_loss": stopLoss, "take_profit": takeProfit}).Error
}

func (r *Repository) CloseTrade(positionID string, profit float64, result string, closedAt time.Time) error {
	res := r.db.Model(&Trade{}).Where("position_id = ? AND status = ?", positionID, StatusOpen).
		Updates(map[string]any{
			"profit":    profit,
			"result":    result,
			"status":    StatusClosed,
			"closed_at": closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) GetRecentTrades(limit int) ([]Trade, error) {
	var trades []Trade
	err := r.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

func (r *Repository) GetTodayPnL() (float64, error) {
	today := time.Now().Truncate(24 * time.Hour)
	var total float64
	err := r.db.Model(&Trade{}).
		Where("status = ? AND closed_at >= ?", StatusClosed, today).
		Select("COALESCE(SUM(profit), 0)").Scan(&total).Error
	return total, err
}

func (r *Repository) GetTotalPnL() (float64, error) {
	var total float64
	err := r.db.Model(&Trade{}).
		Where("status = ?", StatusClosed).
		Select("COALESCE(SUM(profit), 0)").Scan(&total).Error
	return total, err
}

// WinStats counts closed trades and wins.
func (r *Repository) WinStats() (closed, wins int64, err error) {
	if err = r.db.Model(&Trade{}).Where("status = ?", StatusClosed).Count(&closed).Error; err != nil {
		return 0, 0, err
	}
	err = r.db.Model(&Trade{}).Where("status = ? AND result = ?", StatusClosed, "win").Count(&wins).Error
	return closed, wins, err
}

// Analysis Logs

func (r *Repository) SaveAnalysisLog(log *AnalysisLog) error {
	return r.db.Create(log).Error
}

func (r *Repository) GetRecentAnalysis(limit int) ([]AnalysisLog, error) {
	var logs []AnalysisLog
	err := r.db.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// Model runs

func (r *Repository) SaveModelRun(run *ModelRun) error {
	return r.db.Create(run).Error
}

func (r *Repository) GetLatestModelRun() (*ModelRun, error) {
	var run ModelRun
	err := r.db.Order("created_at DESC, id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
