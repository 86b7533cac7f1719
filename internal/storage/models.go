package storage

import "time"

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Trade is one position from entry to closure.
type Trade struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Symbol     string  `gorm:"index;not null" json:"symbol"`
	PositionID string  `gorm:"uniqueIndex;not null" json:"position_id"`
	Side       string  `gorm:"not null" json:"side"` // BUY or SELL
	EntryPrice float64 `gorm:"not null" json:"entry_price"`
	Volume     float64 `gorm:"not null" json:"volume"`

	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`

	Profit   float64    `json:"profit"`
	Result   string     `json:"result"` // win, loss
	Status   string     `gorm:"index;not null;default:'open'" json:"status"`
	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at"`
}

// AnalysisLog is one scheduler cycle.
type AnalysisLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Symbol          string `gorm:"index" json:"symbol"`
	Decision        string `json:"decision"`
	SignalsJSON     string `gorm:"type:text" json:"signals_json"`
	SuggestionsJSON string `gorm:"type:text" json:"suggestions_json"`
	NewsEvents      string `gorm:"type:text" json:"news_events"`
	State           string `json:"state"`
	StaleFrames     int    `json:"stale_frames"`
	Error           string `json:"error"`
}

// ModelRun records one learner retrain.
type ModelRun struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Symbol  string `gorm:"index" json:"symbol"`
	Samples int    `json:"samples"`
	Wins    int    `json:"wins"`
	Path    string `json:"path"`
}
