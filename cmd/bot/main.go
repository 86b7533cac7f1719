package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/camuig/bbma-trader/internal/ai"
	"github.com/camuig/bbma-trader/internal/broker"
	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/indicator"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/learner"
	"github.com/camuig/bbma-trader/internal/lifecycle"
	"github.com/camuig/bbma-trader/internal/logger"
	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/metrics"
	"github.com/camuig/bbma-trader/internal/news"
	"github.com/camuig/bbma-trader/internal/paper"
	"github.com/camuig/bbma-trader/internal/report"
	"github.com/camuig/bbma-trader/internal/scheduler"
	bbma "github.com/camuig/bbma-trader/internal/signal"
	"github.com/camuig/bbma-trader/internal/storage"
	"github.com/camuig/bbma-trader/internal/telegram"
	"github.com/camuig/bbma-trader/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Init logger
	log := logger.NewWithFile(cfg.Logging.Level, logger.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   true,
	})
	defer log.Close()

	mode := "LIVE"
	switch {
	case cfg.Execution.Mode == config.ModePaper:
		mode = "PAPER"
	case cfg.IsSandbox():
		mode = "SANDBOX"
	}
	log.Info("starting bbma-trader", "symbol", cfg.Symbol, "mode", mode)

	// Init database
	db, err := storage.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	// Context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init broker client: the candle feed in every mode, the gateway in tinkoff mode
	bc, err := broker.NewBrokerClient(ctx, cfg, log)
	if err != nil {
		log.Error("broker client init failed", "error", err)
		os.Exit(1)
	}
	if err := bc.Ping(cfg.Symbol); err != nil {
		log.Error("symbol unavailable", "symbol", cfg.Symbol, "error", err)
		os.Exit(1)
	}
	log.Info("broker connected", "account_id", bc.AccountID())

	var gateway execution.Gateway = bc
	if cfg.Execution.Mode == config.ModePaper {
		gateway = paper.New(bc, market.M1, cfg.Execution.PaperSpread, log)
	}

	// Signal engine
	classifier, err := bbma.NewClassifier(signalConfig(cfg))
	if err != nil {
		log.Error("classifier init failed", "error", err)
		os.Exit(1)
	}
	loader := market.NewLoader(bc, cfg.Trading.Candles, cfg.Signal.BollingerWindow, cfg.Feed.StaleAfterBars)

	// Outcome log and learner
	tradeLog := journal.New(journal.PathFor(cfg.Storage.DataDir, cfg.Symbol))
	model := learner.New(learner.PathFor(cfg.Storage.DataDir, cfg.Symbol), cfg.Learner.MinSamples)
	if err := model.Load(); err != nil {
		log.Warn("load model, starting untrained", "error", err)
	}

	// Observers
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)
	notifier := telegram.NewNotifier(cfg, log)

	manager := lifecycle.NewManager(lifecycle.Config{
		Symbol:     cfg.Symbol,
		Volume:     cfg.Trading.Volume,
		AdjustOpen: cfg.Trading.AdjustOpenPosition,
		Closure: lifecycle.ClosureConfig{
			PollInterval: cfg.ClosurePollInterval(),
			Backoff:      cfg.Closure.Backoff,
			MaxDelay:     cfg.ClosureMaxDelay(),
			MaxAttempts:  cfg.Closure.MaxAttempts,
			Timeout:      cfg.ClosureTimeout(),
		},
	}, gateway, tradeLog, lifecycle.Observers{storage.NewTradeLog(repo, cfg.Symbol, log), notifier, recorder}, log)

	if cfg.Learner.EntryThreshold > 0 {
		manager.SetEntryFilter(learner.Gate{Learner: model, Min: cfg.Learner.EntryThreshold})
	}

	if err := restorePosition(repo, manager, gateway, cfg.Symbol); err != nil {
		log.Error("restore open position", "error", err)
		os.Exit(1)
	}

	// News oracle
	var oracle scheduler.NewsOracle
	if cfg.News.Enabled {
		var classifierLLM news.Classifier
		if cfg.News.UseLLM {
			classifierLLM = ai.NewDeepSeekClient(cfg.DeepSeek.APIKey, cfg.DeepSeek.BaseURL, cfg.DeepSeek.Model, cfg.Symbol, cfg.DeepSeekTimeout(), log)
		}
		oracle = news.NewOracle(news.NewMOEXClient(cfg.News.Source, cfg.Location()), classifierLLM, cfg.News.Keywords, cfg.NewsLookback(), log)
	}

	sched := scheduler.NewScheduler(scheduler.Deps{
		Loader:     loader,
		News:       oracle,
		Classifier: classifier,
		Manager:    manager,
		Journal:    tradeLog,
		Learner:    model,
		Store:      repo,
		Alerts:     notifier,
		Metrics:    recorder,
		Printer:    report.NewPrinter(os.Stdout),
	}, cfg, log)

	webServer, err := web.NewServer(repo, reg, cfg, log)
	if err != nil {
		log.Error("web server init failed", "error", err)
		os.Exit(1)
	}

	// Start scheduler in goroutine
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// Start web server in goroutine
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	notifier.NotifyStatus(fmt.Sprintf("🤖 BBMA %s started (%s)", cfg.Symbol, mode))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	// Graceful shutdown
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	if err := bc.Stop(); err != nil {
		log.Error("broker client stop error", "error", err)
	}

	notifier.NotifyStatus(fmt.Sprintf("🛑 BBMA %s stopped", cfg.Symbol))
	log.Info("bbma-trader stopped")
}

func signalConfig(cfg *config.Config) bbma.Config {
	sc := bbma.DefaultConfig()
	sc.Reference = bbma.ReferenceMA(cfg.Signal.Reference)
	sc.RangingFilter = cfg.Signal.RangingFilter
	sc.VolatilityFilter = cfg.Signal.VolatilityFilter
	sc.VolatilityQuantile = cfg.Signal.VolatilityQuantile
	sc.Params = indicator.DefaultParams()
	sc.Params.BollingerWindow = cfg.Signal.BollingerWindow
	sc.Params.Deviations = cfg.Signal.Deviations
	sc.Params.ATRWindow = cfg.Signal.ATRWindow
	return sc
}

// tracker is implemented by gateways that keep per-position state.
type tracker interface {
	Track(id string, req execution.OrderRequest, openedAt time.Time) error
}

// restorePosition re-attaches a trade left open by a previous run.
func restorePosition(repo *storage.Repository, m *lifecycle.Manager, gw execution.Gateway, symbol string) error {
	pos, err := repo.OpenPosition(symbol)
	if err != nil || pos == nil {
		return err
	}
	if tr, ok := gw.(tracker); ok {
		if err := tr.Track(pos.ID, execution.OrderRequest{
			Symbol:     symbol,
			Side:       pos.Side,
			Volume:     pos.Volume,
			Price:      pos.EntryPrice,
			StopLoss:   pos.StopLoss,
			TakeProfit: pos.TakeProfit,
		}, pos.OpenedAt); err != nil {
			return fmt.Errorf("track position %s: %w", pos.ID, err)
		}
	}
	return m.Restore(*pos)
}
