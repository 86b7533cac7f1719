package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/camuig/bbma-trader/internal/aggregator"
	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/learner"
	"github.com/camuig/bbma-trader/internal/lifecycle"
	"github.com/camuig/bbma-trader/internal/logger"
	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/metrics"
	"github.com/camuig/bbma-trader/internal/news"
	"github.com/camuig/bbma-trader/internal/report"
	"github.com/camuig/bbma-trader/internal/signal"
	"github.com/camuig/bbma-trader/internal/storage"
)

type SeriesLoader interface {
	Load(ctx context.Context, symbol string, tf market.Timeframe) (market.Series, error)
}

type NewsOracle interface {
	Check(ctx context.Context, symbol string) news.Report
}

type OutcomeLog interface {
	Records() ([]journal.TradeRecord, error)
}

// CycleStore persists per-cycle and retrain history for the dashboard.
type CycleStore interface {
	SaveAnalysisLog(log *storage.AnalysisLog) error
	SaveModelRun(run *storage.ModelRun) error
}

type Alerts interface {
	NotifyNews(events []news.Item)
	NotifyError(context string, err error)
}

type Deps struct {
	Loader     SeriesLoader
	News       NewsOracle // nil disables the news check
	Classifier *signal.Classifier
	Manager    *lifecycle.Manager
	Journal    OutcomeLog
	Learner    *learner.Learner
	Store      CycleStore
	Alerts     Alerts
	Metrics    *metrics.Recorder
	Printer    *report.Printer
}

type Scheduler struct {
	deps   Deps
	config *config.Config
	logger *logger.Logger

	set      market.TimeframeSet
	refTF    market.Timeframe
	tpFrames []market.Timeframe
	loc      *time.Location

	lastNews string
	now      func() time.Time
}

func NewScheduler(deps Deps, cfg *config.Config, log *logger.Logger) *Scheduler {
	return &Scheduler{
		deps:     deps,
		config:   cfg,
		logger:   log,
		set:      cfg.TimeframeSet(),
		refTF:    cfg.ReferenceTimeframe(),
		tpFrames: cfg.TPTimeframes(),
		loc:      cfg.Location(),
		now:      time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config.TradingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval.String(), "symbol", s.config.Symbol)

	// Run immediately on start
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Skipped   bool
	Decision  aggregator.Decision
	Results   map[market.Timeframe]signal.Result
	Step      lifecycle.StepResult
	Retrained bool
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduler cycle", "panic", fmt.Sprint(r))
			s.deps.Alerts.NotifyError("scheduler panic", fmt.Errorf("%v", r))
			s.deps.Metrics.RecordCycle("panic", 0)
		}
	}()
	s.RunCycle(ctx)
}

// RunCycle performs one analysis and trading pass.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	started := s.now()

	if !s.isWithinTradingHours(started) {
		s.logger.Info("outside trading hours, skipping cycle")
		s.deps.Metrics.RecordCycle("skipped", 0)
		return CycleResult{Skipped: true}
	}

	s.logger.Debug("starting analysis cycle")
	entry := &storage.AnalysisLog{Symbol: s.config.Symbol}

	// 1. News veto
	var newsRep news.Report
	if s.deps.News != nil {
		newsRep = s.deps.News.Check(ctx, s.config.Symbol)
		switch {
		case newsRep.Err != nil:
			s.deps.Metrics.RecordNews("error")
		case newsRep.Risk:
			s.deps.Metrics.RecordNews("risk")
		default:
			s.deps.Metrics.RecordNews("clear")
		}
		s.alertNews(newsRep.Events)
	}

	// 2. Per-timeframe signals
	votes := make(map[market.Timeframe]aggregator.Vote, len(s.set))
	results := make(map[market.Timeframe]signal.Result, len(s.set))
	rows := make([]report.TimeframeSignal, 0, len(s.set))
	for _, tf := range s.set {
		row := report.TimeframeSignal{Timeframe: tf, Signal: signal.Hold}

		series, err := s.deps.Loader.Load(ctx, s.config.Symbol, tf)
		switch {
		case errors.Is(err, market.ErrStale):
			s.logger.Warn("stale candles, classifying anyway", "timeframe", tf, "error", err)
			s.deps.Metrics.RecordFeedIssue(string(tf), "stale")
			row.Stale = true
			entry.StaleFrames++
		case err != nil:
			s.logger.Error("load candles", "timeframe", tf, "error", err)
			s.deps.Metrics.RecordFeedIssue(string(tf), "error")
			votes[tf] = aggregator.Vote{Signal: signal.Hold, Available: false}
			rows = append(rows, row)
			continue
		}

		res := s.deps.Classifier.Classify(series)
		results[tf] = res
		votes[tf] = aggregator.Vote{Signal: res.Signal, Available: true}
		s.deps.Metrics.RecordSignal(string(tf), string(res.Signal))

		row.Signal = res.Signal
		row.Available = true
		row.Filtered = res.Filtered
		rows = append(rows, row)
	}

	// 3. Aggregate and report
	decision := aggregator.Aggregate(votes, s.set, newsRep.Risk)
	suggestions := aggregator.Suggestions(results, s.tpFrames)
	s.deps.Metrics.RecordDecision(string(decision))

	if s.deps.Printer != nil {
		s.deps.Printer.Print(report.Cycle{
			Timestamp:   started.In(s.loc),
			Symbol:      s.config.Symbol,
			Signals:     rows,
			Decision:    decision,
			Suggestions: suggestions,
			News:        newsRep.Events,
			NewsFailed:  newsRep.Err != nil,
		})
	}

	// 4. Trade lifecycle
	ref := lifecycle.RefLevels{Upper: math.NaN(), Mid: math.NaN(), Lower: math.NaN()}
	if r, ok := results[s.refTF]; ok {
		ref = lifecycle.RefFromSnapshot(r.Snapshot)
	}

	out := CycleResult{Decision: decision, Results: results}
	step, err := s.deps.Manager.Step(ctx, decision, ref)
	out.Step = step
	if err != nil {
		s.logStepError(err)
		if !errors.Is(err, lifecycle.ErrClosureTimeout) {
			entry.Error = err.Error()
		}
	}

	// 5. Retrain when the outcome log grew
	if step.Closed != nil {
		out.Retrained = s.retrain()
	}

	// 6. Persist the cycle
	entry.Decision = string(decision)
	entry.State = string(step.State)
	entry.SignalsJSON = toJSON(rows)
	entry.SuggestionsJSON = toJSON(suggestions)
	entry.NewsEvents = joinEvents(newsRep.Events)
	if err := s.deps.Store.SaveAnalysisLog(entry); err != nil {
		s.logger.Error("save analysis log", "error", err)
	}

	s.deps.Metrics.RecordCycle("ok", s.now().Sub(started))
	s.logger.Info("analysis cycle completed", "decision", decision, "state", step.State)
	return out
}

func (s *Scheduler) logStepError(err error) {
	var rej *execution.Rejection
	switch {
	case errors.Is(err, lifecycle.ErrClosureTimeout):
		s.logger.Info("position still open", "error", err)
	case errors.As(err, &rej):
		s.logger.Warn("entry rejected", "reason", rej.Reason)
	case errors.Is(err, context.Canceled):
		s.logger.Info("cycle cancelled")
	default:
		s.logger.Error("trade lifecycle step", "error", err)
		s.deps.Alerts.NotifyError("lifecycle", err)
	}
}

func (s *Scheduler) retrain() bool {
	records, err := s.deps.Journal.Records()
	if err != nil {
		s.logger.Error("read trade history", "error", err)
		return false
	}
	retrained, err := s.deps.Learner.MaybeRetrain(records)
	if err != nil {
		s.logger.Error("retrain model", "error", err)
		return false
	}
	if !retrained {
		s.logger.Info("not enough trade history to retrain", "rows", len(records), "need", s.deps.Learner.MinSamples())
		return false
	}

	m := s.deps.Learner.Model()
	s.logger.Info("model retrained", "samples", m.Samples, "wins", m.Wins)
	s.deps.Metrics.RecordRetrain(m.Samples)
	if err := s.deps.Store.SaveModelRun(&storage.ModelRun{
		Symbol:  s.config.Symbol,
		Samples: m.Samples,
		Wins:    m.Wins,
		Path:    s.deps.Learner.Path(),
	}); err != nil {
		s.logger.Error("save model run", "error", err)
	}
	return true
}

// alertNews notifies once per distinct set of events.
func (s *Scheduler) alertNews(events []news.Item) {
	key := joinEvents(events)
	if key == s.lastNews {
		return
	}
	s.lastNews = key
	if len(events) > 0 {
		s.deps.Alerts.NotifyNews(events)
	}
}

func (s *Scheduler) isWithinTradingHours(t time.Time) bool {
	h := s.config.TradingHours
	if !h.Enabled {
		return true
	}
	now := t.In(s.loc)

	if !h.Weekends {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}

	start, end, err := s.config.TradingWindow()
	if err != nil {
		return true
	}
	offset := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	return offset >= start && offset <= end
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func joinEvents(events []news.Item) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, "\n")
}
