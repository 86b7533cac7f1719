package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camuig/bbma-trader/internal/aggregator"
	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/logger"
)

// ErrClosureTimeout means the gateway did not report the position closed
// within the wait budget. The position stays open and is polled again later.
var ErrClosureTimeout = errors.New("timed out waiting for position closure")

// Recorder persists closed-trade outcomes.
type Recorder interface {
	Append(rec journal.TradeRecord) error
}

// EntryFilter can veto an entry before it is submitted. The default wiring
// leaves it nil, so every actionable decision is submitted.
type EntryFilter interface {
	AllowEntry(side execution.Side, entry, takeProfit, stopLoss float64) bool
}

// Observer receives lifecycle side effects.
type Observer interface {
	PositionOpened(p Position)
	EntryRejected(side execution.Side, err error)
	LevelsAdjusted(p Position)
	PositionClosed(p Position, rec journal.TradeRecord, profit float64)
}

type ClosureConfig struct {
	PollInterval time.Duration
	Backoff      float64
	MaxDelay     time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

type Config struct {
	Symbol     string
	Volume     float64
	AdjustOpen bool
	Closure    ClosureConfig
}

// StepResult describes what a Step changed.
type StepResult struct {
	State    State
	// Path lists every state entered during the step, in order. Opening and
	// Closing only ever appear here.
	Path     []State
	Opened   *Position
	Closed   *journal.TradeRecord
	Profit   float64
	Adjusted bool
}

// Manager owns at most one position and moves it through
// Idle -> Opening -> Open -> Closing -> Idle.
type Manager struct {
	cfg      Config
	gateway  execution.Gateway
	journal  Recorder
	observer Observer
	filter   EntryFilter
	logger   *logger.Logger

	state State
	pos   *Position

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg Config, gw execution.Gateway, rec Recorder, obs Observer, log *logger.Logger) *Manager {
	if cfg.Volume <= 0 {
		cfg.Volume = 1
	}
	if cfg.Closure.PollInterval <= 0 {
		cfg.Closure.PollInterval = 30 * time.Second
	}
	if cfg.Closure.Backoff < 1 {
		cfg.Closure.Backoff = 1
	}
	if cfg.Closure.MaxAttempts <= 0 {
		cfg.Closure.MaxAttempts = 1
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Manager{
		cfg:      cfg,
		gateway:  gw,
		journal:  rec,
		observer: obs,
		logger:   log,
		state:    Idle,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetEntryFilter installs an optional veto consulted before each entry.
func (m *Manager) SetEntryFilter(f EntryFilter) {
	m.filter = f
}

func (m *Manager) State() State {
	return m.state
}

// Position returns a copy of the open position.
func (m *Manager) Position() (Position, bool) {
	if m.pos == nil {
		return Position{}, false
	}
	return *m.pos, true
}

// Restore re-attaches a position that was open before a restart.
func (m *Manager) Restore(p Position) error {
	if m.pos != nil {
		return fmt.Errorf("position %s already open", m.pos.ID)
	}
	pos := p
	m.pos = &pos
	m.state = Open
	return nil
}

// Step advances the state machine once per cycle. While a position is open the
// decision is ignored: levels may be adjusted and closure is awaited.
func (m *Manager) Step(ctx context.Context, d aggregator.Decision, ref RefLevels) (StepResult, error) {
	if m.pos != nil {
		return m.manageOpen(ctx, ref)
	}
	if !d.Actionable() {
		return StepResult{State: m.state}, nil
	}
	return m.open(ctx, d, ref)
}

func (m *Manager) open(ctx context.Context, d aggregator.Decision, ref RefLevels) (StepResult, error) {
	side := execution.SideBuy
	if d == aggregator.Sell {
		side = execution.SideSell
	}

	if !ref.Valid() {
		return StepResult{State: m.state}, fmt.Errorf("reference bands undefined, %s skipped", side)
	}

	q, err := m.gateway.Quote(ctx, m.cfg.Symbol)
	if err != nil {
		return StepResult{State: m.state}, fmt.Errorf("quote %s: %w", m.cfg.Symbol, err)
	}
	price := q.Ask
	if side == execution.SideSell {
		price = q.Bid
	}
	tp, sl := Levels(side, ref)

	if m.filter != nil && !m.filter.AllowEntry(side, price, tp, sl) {
		m.logger.Info("entry vetoed by filter", "side", side, "price", price)
		return StepResult{State: m.state}, nil
	}

	m.state = Opening
	path := []State{Opening}
	m.logger.Info("submitting order",
		"symbol", m.cfg.Symbol, "side", side, "price", price, "tp", tp, "sl", sl, "volume", m.cfg.Volume)

	ack, err := m.gateway.Submit(ctx, execution.OrderRequest{
		Symbol:     m.cfg.Symbol,
		Side:       side,
		Volume:     m.cfg.Volume,
		Price:      price,
		StopLoss:   sl,
		TakeProfit: tp,
		Comment:    "bbma " + m.cfg.Symbol,
	})
	if err != nil {
		m.state = Idle
		m.observer.EntryRejected(side, err)
		return StepResult{State: m.state, Path: append(path, Idle)}, fmt.Errorf("submit %s: %w", side, err)
	}

	entry := price
	if ack.Price > 0 {
		entry = ack.Price
	}
	m.pos = &Position{
		ID:         ack.PositionID,
		Side:       side,
		EntryPrice: entry,
		TakeProfit: tp,
		StopLoss:   sl,
		Volume:     m.cfg.Volume,
		OpenedAt:   m.now(),
	}
	m.state = Open
	m.observer.PositionOpened(*m.pos)

	opened := *m.pos
	res := StepResult{State: m.state, Path: append(path, Open), Opened: &opened}
	if ack.Unprotected != nil {
		return res, fmt.Errorf("position %s open without TP/SL: %w", ack.PositionID, ack.Unprotected)
	}
	return res, nil
}

func (m *Manager) manageOpen(ctx context.Context, ref RefLevels) (StepResult, error) {
	res := StepResult{State: m.state}

	if m.cfg.AdjustOpen && ref.Valid() {
		res.Adjusted = m.adjust(ctx, ref)
	}

	deals, err := m.awaitClosure(ctx)
	if err != nil {
		return res, err
	}

	m.state = Closing
	path := []State{Closing}
	var profit float64
	for _, d := range deals {
		profit += d.Profit
	}
	pos := *m.pos
	rec := journal.TradeRecord{
		EntryPrice: pos.EntryPrice,
		TakeProfit: pos.TakeProfit,
		StopLoss:   pos.StopLoss,
		Result:     journal.OutcomeFor(profit),
	}
	if err := m.journal.Append(rec); err != nil {
		m.logger.Error("append trade record", "position", pos.ID, "error", err)
	}
	m.observer.PositionClosed(pos, rec, profit)

	m.pos = nil
	m.state = Idle
	return StepResult{State: m.state, Path: append(path, Idle), Closed: &rec, Profit: profit, Adjusted: res.Adjusted}, nil
}

func (m *Manager) adjust(ctx context.Context, ref RefLevels) bool {
	tp, sl := Levels(m.pos.Side, ref)
	if sameLevel(tp, m.pos.TakeProfit) && sameLevel(sl, m.pos.StopLoss) {
		return false
	}
	if err := m.gateway.Modify(ctx, m.pos.ID, sl, tp); err != nil {
		m.logger.Error("update TP/SL failed", "position", m.pos.ID, "tp", tp, "sl", sl, "error", err)
		return false
	}
	m.pos.TakeProfit = tp
	m.pos.StopLoss = sl
	m.logger.Info("updated TP/SL for open trade", "position", m.pos.ID, "tp", tp, "sl", sl)
	m.observer.LevelsAdjusted(*m.pos)
	return true
}

// awaitClosure polls ClosedDeals with exponential backoff until deals appear,
// attempts run out, or the timeout elapses.
func (m *Manager) awaitClosure(parent context.Context) ([]execution.Deal, error) {
	ctx := parent
	if m.cfg.Closure.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, m.cfg.Closure.Timeout)
		defer cancel()
	}

	delay := m.cfg.Closure.PollInterval
	for attempt := 1; ; attempt++ {
		deals, err := m.gateway.ClosedDeals(ctx, m.pos.ID)
		if err != nil {
			if perr := parent.Err(); perr != nil {
				return nil, perr
			}
			if ctx.Err() != nil {
				return nil, ErrClosureTimeout
			}
			return nil, fmt.Errorf("query closed deals: %w", err)
		}
		if len(deals) > 0 {
			return deals, nil
		}
		if attempt >= m.cfg.Closure.MaxAttempts {
			return nil, ErrClosureTimeout
		}
		if err := m.sleep(ctx, delay); err != nil {
			if perr := parent.Err(); perr != nil {
				return nil, perr
			}
			return nil, ErrClosureTimeout
		}
		delay = time.Duration(float64(delay) * m.cfg.Closure.Backoff)
		if m.cfg.Closure.MaxDelay > 0 && delay > m.cfg.Closure.MaxDelay {
			delay = m.cfg.Closure.MaxDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopObserver struct{}

func (nopObserver) PositionOpened(Position)                                {}
func (nopObserver) EntryRejected(execution.Side, error)                    {}
func (nopObserver) LevelsAdjusted(Position)                                {}
func (nopObserver) PositionClosed(Position, journal.TradeRecord, float64) {}
