package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/logger"
	"github.com/camuig/bbma-trader/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Store is the read side of the repository the dashboard shows.
type Store interface {
	GetOpenTrade(symbol string) (*storage.Trade, error)
	GetRecentTrades(limit int) ([]storage.Trade, error)
	GetTodayPnL() (float64, error)
	GetTotalPnL() (float64, error)
	WinStats() (closed, wins int64, err error)
	GetRecentAnalysis(limit int) ([]storage.AnalysisLog, error)
	GetLatestModelRun() (*storage.ModelRun, error)
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	repo       Store
	tmpl       *template.Template
	config     *config.Config
	logger     *logger.Logger
}

// NewServer serves the dashboard, a JSON status view and the metrics in gatherer.
func NewServer(repo Store, gatherer prometheus.Gatherer, cfg *config.Config, log *logger.Logger) (*Server, error) {
	tmpl, err := template.New("dashboard.html").Funcs(funcs).ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}

	s := &Server{
		repo:   repo,
		tmpl:   tmpl,
		config: cfg,
		logger: log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.handler = mux

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
