package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/lifecycle"
)

// Recorder exposes cycle and trade counters. It also observes the lifecycle.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	decisions     *prometheus.CounterVec
	signals       *prometheus.CounterVec
	feedIssues    *prometheus.CounterVec
	newsChecks    *prometheus.CounterVec
	tradesOpened  *prometheus.CounterVec
	tradesClosed  *prometheus.CounterVec
	rejections    prometheus.Counter
	adjustments   prometheus.Counter
	profit        prometheus.Gauge
	positionOpen  prometheus.Gauge
	retrains      prometheus.Counter
	modelSamples  prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_cycles_total",
			Help: "Scheduler cycles by outcome",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bbma_cycle_duration_seconds",
			Help:    "Duration of one analysis cycle",
			Buckets: prometheus.DefBuckets,
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_decisions_total",
			Help: "Aggregated decisions",
		}, []string{"decision"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_signals_total",
			Help: "Per-timeframe classifier output",
		}, []string{"timeframe", "signal"}),
		feedIssues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_feed_issues_total",
			Help: "Candle feed failures and stale series",
		}, []string{"timeframe", "kind"}),
		newsChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_news_checks_total",
			Help: "News oracle results",
		}, []string{"result"}),
		tradesOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_trades_opened_total",
			Help: "Positions opened",
		}, []string{"side"}),
		tradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bbma_trades_closed_total",
			Help: "Positions closed by outcome",
		}, []string{"result"}),
		rejections: f.NewCounter(prometheus.CounterOpts{
			Name: "bbma_entry_rejections_total",
			Help: "Entries refused by the gateway",
		}),
		adjustments: f.NewCounter(prometheus.CounterOpts{
			Name: "bbma_level_adjustments_total",
			Help: "TP/SL modifications of open positions",
		}),
		profit: f.NewGauge(prometheus.GaugeOpts{
			Name: "bbma_realized_profit",
			Help: "Sum of closed-trade profit since start",
		}),
		positionOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "bbma_position_open",
			Help: "1 while a position is open",
		}),
		retrains: f.NewCounter(prometheus.CounterOpts{
			Name: "bbma_model_retrains_total",
			Help: "Learner retrains",
		}),
		modelSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "bbma_model_samples",
			Help: "Rows used by the latest retrain",
		}),
	}
}

func (r *Recorder) RecordCycle(result string, d time.Duration) {
	r.cycles.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordDecision(decision string) {
	r.decisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) RecordSignal(timeframe, signal string) {
	r.signals.WithLabelValues(timeframe, signal).Inc()
}

// RecordFeedIssue counts kind "error" or "stale" for a timeframe.
func (r *Recorder) RecordFeedIssue(timeframe, kind string) {
	r.feedIssues.WithLabelValues(timeframe, kind).Inc()
}

func (r *Recorder) RecordNews(result string) {
	r.newsChecks.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordRetrain(samples int) {
	r.retrains.Inc()
	r.modelSamples.Set(float64(samples))
}

func (r *Recorder) PositionOpened(p lifecycle.Position) {
	r.tradesOpened.WithLabelValues(string(p.Side)).Inc()
	r.positionOpen.Set(1)
}

func (r *Recorder) EntryRejected(execution.Side, error) {
	r.rejections.Inc()
}

func (r *Recorder) LevelsAdjusted(lifecycle.Position) {
	r.adjustments.Inc()
}

func (r *Recorder) PositionClosed(_ lifecycle.Position, rec journal.TradeRecord, profit float64) {
	r.tradesClosed.WithLabelValues(string(rec.Result)).Inc()
	r.profit.Add(profit)
	r.positionOpen.Set(0)
}
