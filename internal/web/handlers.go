package web

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/report"
	"github.com/camuig/bbma-trader/internal/storage"
)

const (
	recentTrades   = 20
	recentAnalysis = 30
)

var funcs = template.FuncMap{
	"price": func(v float64) string { return formatPrice(v) },
	"ts":    func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	"signals": func(raw string) []report.TimeframeSignal {
		var rows []report.TimeframeSignal
		_ = json.Unmarshal([]byte(raw), &rows)
		return rows
	},
}

type DashboardData struct {
	Symbol      string
	Mode        string
	DailyPnL    float64
	TotalPnL    float64
	Closed      int64
	Wins        int64
	WinRate     float64
	OpenTrade   *storage.Trade
	Trades      []storage.Trade
	Analysis    []storage.AnalysisLog
	LatestModel *storage.ModelRun
}

// Status is the JSON view of the bot.
type Status struct {
	Symbol       string            `json:"symbol"`
	Mode         string            `json:"mode"`
	OpenTrade    *storage.Trade    `json:"open_trade"`
	LastDecision string            `json:"last_decision,omitempty"`
	LastCycleAt  *time.Time        `json:"last_cycle_at,omitempty"`
	DailyPnL     float64           `json:"daily_pnl"`
	TotalPnL     float64           `json:"total_pnl"`
	LatestModel  *storage.ModelRun `json:"latest_model,omitempty"`
}

func (s *Server) mode() string {
	switch {
	case s.config.Execution.Mode == config.ModePaper:
		return "PAPER"
	case s.config.IsSandbox():
		return "SANDBOX"
	default:
		return "LIVE"
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := DashboardData{Symbol: s.config.Symbol, Mode: s.mode()}

	if pnl, err := s.repo.GetTodayPnL(); err == nil {
		data.DailyPnL = pnl
	}
	if pnl, err := s.repo.GetTotalPnL(); err == nil {
		data.TotalPnL = pnl
	}
	if closed, wins, err := s.repo.WinStats(); err == nil {
		data.Closed, data.Wins = closed, wins
		if closed > 0 {
			data.WinRate = float64(wins) / float64(closed) * 100
		}
	}
	if t, err := s.repo.GetOpenTrade(s.config.Symbol); err == nil {
		data.OpenTrade = t
	}
	if trades, err := s.repo.GetRecentTrades(recentTrades); err == nil {
		data.Trades = trades
	}
	if logs, err := s.repo.GetRecentAnalysis(recentAnalysis); err == nil {
		data.Analysis = logs
	}
	if run, err := s.repo.GetLatestModelRun(); err == nil {
		data.LatestModel = run
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error("execute template", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Symbol: s.config.Symbol, Mode: s.mode()}

	var err error
	if st.OpenTrade, err = s.repo.GetOpenTrade(s.config.Symbol); err != nil {
		s.logger.Error("status: open trade", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if logs, err := s.repo.GetRecentAnalysis(1); err == nil && len(logs) > 0 {
		st.LastDecision = logs[0].Decision
		at := logs[0].CreatedAt
		st.LastCycleAt = &at
	}
	st.DailyPnL, _ = s.repo.GetTodayPnL()
	st.TotalPnL, _ = s.repo.GetTotalPnL()
	st.LatestModel, _ = s.repo.GetLatestModelRun()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Error("encode status", "error", err)
	}
}

func formatPrice(v float64) string {
	return decimal.NewFromFloat(v).Round(5).String()
}
