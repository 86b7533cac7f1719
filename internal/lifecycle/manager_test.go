package lifecycle

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/camuig/bbma-trader/internal/aggregator"
	"github.com/camuig/bbma-trader/internal/execution"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/logger"
	"github.com/camuig/bbma-trader/internal/market"
	"github.com/camuig/bbma-trader/internal/signal"
)

type fakeGateway struct {
	quote      execution.Quote
	submits    []execution.OrderRequest
	submitErr  error
	unprotect  error
	modifies   [][2]float64
	modifyErr  error
	polls      int
	closeAfter int // deals appear on this poll; 0 never
	profit     float64
	pollErr    error
}

func (g *fakeGateway) Quote(context.Context, string) (execution.Quote, error) {
	return g.quote, nil
}

func (g *fakeGateway) Submit(_ context.Context, req execution.OrderRequest) (execution.Ack, error) {
	g.submits = append(g.submits, req)
	if g.submitErr != nil {
		return execution.Ack{}, g.submitErr
	}
	return execution.Ack{PositionID: "pos-1", Unprotected: g.unprotect}, nil
}

func (g *fakeGateway) Modify(_ context.Context, _ string, sl, tp float64) error {
	g.modifies = append(g.modifies, [2]float64{sl, tp})
	return g.modifyErr
}

func (g *fakeGateway) ClosedDeals(_ context.Context, id string) ([]execution.Deal, error) {
	g.polls++
	if g.pollErr != nil {
		return nil, g.pollErr
	}
	if g.closeAfter > 0 && g.polls >= g.closeAfter {
		return []execution.Deal{{PositionID: id, Profit: g.profit}}, nil
	}
	return nil, nil
}

type memJournal struct {
	recs []journal.TradeRecord
	err  error
}

func (j *memJournal) Append(rec journal.TradeRecord) error {
	if j.err != nil {
		return j.err
	}
	j.recs = append(j.recs, rec)
	return nil
}

type recordingObserver struct {
	opened   int
	rejected int
	adjusted int
	closed   int
}

func (o *recordingObserver) PositionOpened(Position)                               { o.opened++ }
func (o *recordingObserver) EntryRejected(execution.Side, error)                   { o.rejected++ }
func (o *recordingObserver) LevelsAdjusted(Position)                               { o.adjusted++ }
func (o *recordingObserver) PositionClosed(Position, journal.TradeRecord, float64) { o.closed++ }

var ref = RefLevels{Upper: 1.2050, Mid: 1.2020, Lower: 1.1990}

func newTestManager(gw *fakeGateway, j *memJournal, obs Observer, adjust bool) (*Manager, *[]time.Duration) {
	m := NewManager(Config{
		Symbol:     "EURUSD",
		Volume:     0.01,
		AdjustOpen: adjust,
		Closure: ClosureConfig{
			PollInterval: 10 * time.Millisecond,
			Backoff:      2,
			MaxDelay:     25 * time.Millisecond,
			MaxAttempts:  3,
		},
	}, gw, j, obs, logger.Nop())
	var delays []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return m, &delays
}

func TestBuyOpensPosition(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1.2004, Ask: 1.2005}}
	obs := &recordingObserver{}
	m, _ := newTestManager(gw, &memJournal{}, obs, false)

	if m.State() != Idle {
		t.Fatalf("initial state %s", m.State())
	}
	res, err := m.Step(context.Background(), aggregator.Buy, ref)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.State != Open || m.State() != Open || res.Opened == nil {
		t.Fatalf("state=%s opened=%v", res.State, res.Opened)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits=%d want 1", len(gw.submits))
	}
	req := gw.submits[0]
	if req.Side != execution.SideBuy || req.Price != 1.2005 || req.TakeProfit != 1.2050 || req.StopLoss != 1.1990 || req.Volume != 0.01 {
		t.Fatalf("unexpected order %+v", req)
	}
	pos, ok := m.Position()
	if !ok || pos.ID != "pos-1" || pos.EntryPrice != 1.2005 {
		t.Fatalf("position %+v ok=%v", pos, ok)
	}
	if obs.opened != 1 {
		t.Fatalf("observer opened=%d", obs.opened)
	}
	if !samePath(res.Path, Opening, Open) {
		t.Fatalf("path %v", res.Path)
	}
}

func samePath(got []State, want ...State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestUnprotectedEntryStaysOpenAndReportsError(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1.2004, Ask: 1.2005}, unprotect: errors.New("stop price off tick")}
	obs := &recordingObserver{}
	m, _ := newTestManager(gw, &memJournal{}, obs, false)

	res, err := m.Step(context.Background(), aggregator.Buy, ref)
	if err == nil {
		t.Fatalf("missing TP/SL was not reported")
	}
	if res.Opened == nil || m.State() != Open || obs.opened != 1 || obs.rejected != 0 {
		t.Fatalf("res=%+v state=%s obs=%+v", res, m.State(), obs)
	}
}

func TestSecondBuyWhileOpenDoesNotSubmit(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1.2004, Ask: 1.2005}}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("first Step: %v", err)
	}
	res, err := m.Step(context.Background(), aggregator.Buy, ref)
	if !errors.Is(err, ErrClosureTimeout) {
		t.Fatalf("expected closure timeout, got %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits=%d want 1", len(gw.submits))
	}
	if res.State != Open || m.State() != Open {
		t.Fatalf("state=%s want open", m.State())
	}
}

func TestSellSwapsLevelsAndUsesBid(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1.2030, Ask: 1.2031}}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)

	if _, err := m.Step(context.Background(), aggregator.Sell, ref); err != nil {
		t.Fatalf("Step: %v", err)
	}
	req := gw.submits[0]
	if req.Side != execution.SideSell || req.Price != 1.2030 || req.TakeProfit != 1.1990 || req.StopLoss != 1.2050 {
		t.Fatalf("unexpected order %+v", req)
	}
}

func TestRejectionReturnsToIdle(t *testing.T) {
	gw := &fakeGateway{
		quote:     execution.Quote{Bid: 1, Ask: 1},
		submitErr: &execution.Rejection{Op: "submit", Reason: "market closed"},
	}
	obs := &recordingObserver{}
	m, _ := newTestManager(gw, &memJournal{}, obs, false)

	_, err := m.Step(context.Background(), aggregator.Buy, ref)
	var rej *execution.Rejection
	if !errors.As(err, &rej) || rej.Reason != "market closed" {
		t.Fatalf("expected rejection, got %v", err)
	}
	if m.State() != Idle {
		t.Fatalf("state=%s want idle", m.State())
	}
	if _, ok := m.Position(); ok {
		t.Fatalf("position kept after rejection")
	}
	if obs.rejected != 1 || gw.polls != 0 {
		t.Fatalf("rejected=%d polls=%d", obs.rejected, gw.polls)
	}
}

func TestHoldWhileIdleDoesNothing(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)
	for _, d := range []aggregator.Decision{aggregator.Hold, aggregator.HoldDueToNews} {
		res, err := m.Step(context.Background(), d, ref)
		if err != nil || res.State != Idle {
			t.Fatalf("%s: state=%s err=%v", d, res.State, err)
		}
	}
	if len(gw.submits) != 0 || gw.polls != 0 {
		t.Fatalf("gateway touched on hold")
	}
}

func TestUndefinedReferenceSkipsEntry(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)
	nan := RefLevels{Upper: math.NaN(), Mid: math.NaN(), Lower: math.NaN()}
	if _, err := m.Step(context.Background(), aggregator.Buy, nan); err == nil {
		t.Fatalf("expected error for undefined bands")
	}
	if len(gw.submits) != 0 || m.State() != Idle {
		t.Fatalf("entry attempted without bands")
	}
}

func TestClosureOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		profit float64
		want   journal.Outcome
	}{
		{"win", 12.5, journal.Win},
		{"loss", -3.0, journal.Loss},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{quote: execution.Quote{Bid: 1.2004, Ask: 1.2005}, closeAfter: 1, profit: tc.profit}
			j := &memJournal{}
			obs := &recordingObserver{}
			m, _ := newTestManager(gw, j, obs, false)

			if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
				t.Fatalf("open: %v", err)
			}
			res, err := m.Step(context.Background(), aggregator.Hold, ref)
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			if res.Closed == nil || res.Closed.Result != tc.want || res.Profit != tc.profit {
				t.Fatalf("result %+v", res)
			}
			if !samePath(res.Path, Closing, Idle) {
				t.Fatalf("path %v", res.Path)
			}
			if len(j.recs) != 1 {
				t.Fatalf("records=%d want exactly 1", len(j.recs))
			}
			want := journal.TradeRecord{EntryPrice: 1.2005, TakeProfit: 1.2050, StopLoss: 1.1990, Result: tc.want}
			if j.recs[0] != want {
				t.Fatalf("record %+v want %+v", j.recs[0], want)
			}
			if m.State() != Idle || obs.closed != 1 {
				t.Fatalf("state=%s closed=%d", m.State(), obs.closed)
			}

			if _, err := m.Step(context.Background(), aggregator.Hold, ref); err != nil {
				t.Fatalf("idle step: %v", err)
			}
			if len(j.recs) != 1 {
				t.Fatalf("closure recorded twice")
			}
		})
	}
}

func TestClosureBackoff(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}, closeAfter: 3, profit: 1}
	m, delays := newTestManager(gw, &memJournal{}, nil, false)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}
	res, err := m.Step(context.Background(), aggregator.Hold, ref)
	if err != nil || res.Closed == nil {
		t.Fatalf("close: res=%+v err=%v", res, err)
	}
	if gw.polls != 3 {
		t.Fatalf("polls=%d want 3", gw.polls)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(*delays) != len(want) {
		t.Fatalf("delays=%v want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("delays=%v want %v", *delays, want)
		}
	}
}

func TestClosureTimeoutKeepsPositionOpen(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}}
	j := &memJournal{}
	m, delays := newTestManager(gw, j, nil, false)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err := m.Step(context.Background(), aggregator.Hold, ref)
	if !errors.Is(err, ErrClosureTimeout) {
		t.Fatalf("err=%v want timeout", err)
	}
	if gw.polls != 3 || len(*delays) != 2 || (*delays)[1] != 20*time.Millisecond {
		t.Fatalf("polls=%d delays=%v", gw.polls, *delays)
	}
	if m.State() != Open || len(j.recs) != 0 {
		t.Fatalf("state=%s records=%d", m.State(), len(j.recs))
	}

	gw.closeAfter = gw.polls + 1
	gw.profit = 2
	res, err := m.Step(context.Background(), aggregator.Hold, ref)
	if err != nil || res.Closed == nil || len(j.recs) != 1 {
		t.Fatalf("later closure not picked up: %+v %v", res, err)
	}
}

func TestClosureWaitHonoursCancellation(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)
	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Step(ctx, aggregator.Hold, ref)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if m.State() != Open {
		t.Fatalf("cancellation must not drop the position")
	}
}

func TestClosureWallClockTimeout(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}}
	m := NewManager(Config{
		Symbol: "EURUSD",
		Closure: ClosureConfig{
			PollInterval: 5 * time.Millisecond,
			MaxAttempts:  1000,
			Timeout:      30 * time.Millisecond,
		},
	}, gw, &memJournal{}, nil, logger.Nop())

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}
	start := time.Now()
	_, err := m.Step(context.Background(), aggregator.Hold, ref)
	if !errors.Is(err, ErrClosureTimeout) {
		t.Fatalf("err=%v want timeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("closure wait not bounded")
	}
}

func TestAdjustOpenPositionLevels(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1.2004, Ask: 1.2005}}
	obs := &recordingObserver{}
	m, _ := newTestManager(gw, &memJournal{}, obs, true)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}

	// unchanged bands: no modify
	_, _ = m.Step(context.Background(), aggregator.Hold, ref)
	if len(gw.modifies) != 0 {
		t.Fatalf("modify sent without level change")
	}

	moved := RefLevels{Upper: 1.2070, Mid: 1.2030, Lower: 1.2000}
	res, _ := m.Step(context.Background(), aggregator.Hold, moved)
	if !res.Adjusted || len(gw.modifies) != 1 {
		t.Fatalf("adjusted=%v modifies=%d", res.Adjusted, len(gw.modifies))
	}
	if gw.modifies[0] != [2]float64{1.2000, 1.2070} {
		t.Fatalf("modify args %v", gw.modifies[0])
	}
	pos, _ := m.Position()
	if pos.TakeProfit != 1.2070 || pos.StopLoss != 1.2000 || obs.adjusted != 1 {
		t.Fatalf("position not updated: %+v", pos)
	}
}

func TestJournalFailureStillReleasesPosition(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}, closeAfter: 1, profit: 5}
	m, _ := newTestManager(gw, &memJournal{err: errors.New("disk full")}, nil, false)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}
	res, err := m.Step(context.Background(), aggregator.Hold, ref)
	if err != nil || res.Closed == nil {
		t.Fatalf("close: %+v %v", res, err)
	}
	if m.State() != Idle {
		t.Fatalf("state=%s want idle", m.State())
	}
}

func TestRestore(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)
	p := Position{ID: "restored", Side: execution.SideSell, EntryPrice: 250, TakeProfit: 240, StopLoss: 255}
	if err := m.Restore(p); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if m.State() != Open {
		t.Fatalf("state=%s", m.State())
	}
	if err := m.Restore(p); err == nil {
		t.Fatalf("second restore accepted")
	}
}

type vetoAll struct{ calls int }

func (v *vetoAll) AllowEntry(execution.Side, float64, float64, float64) bool {
	v.calls++
	return false
}

func TestEntryFilterVeto(t *testing.T) {
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)
	f := &vetoAll{}
	m.SetEntryFilter(f)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if f.calls != 1 || len(gw.submits) != 0 || m.State() != Idle {
		t.Fatalf("veto ignored: calls=%d submits=%d", f.calls, len(gw.submits))
	}
}

// Six timeframes vote Buy, no news, M15 bands 1.2050/1.2020/1.1990, close 1.2005.
func TestEndToEndBuyDecision(t *testing.T) {
	votes := make(map[market.Timeframe]aggregator.Vote)
	for _, tf := range market.DefaultTimeframes {
		votes[tf] = aggregator.Vote{Signal: signal.Buy, Available: true}
	}
	d := aggregator.Aggregate(votes, market.DefaultTimeframes, false)
	if d != aggregator.Buy {
		t.Fatalf("decision=%s want BUY", d)
	}

	gw := &fakeGateway{quote: execution.Quote{Bid: 1.2005, Ask: 1.2005}}
	m, _ := newTestManager(gw, &memJournal{}, nil, false)
	if _, err := m.Step(context.Background(), d, ref); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("submits=%d", len(gw.submits))
	}
	req := gw.submits[0]
	if req.TakeProfit != 1.2050 || req.StopLoss != 1.1990 || req.Price != 1.2005 {
		t.Fatalf("order %+v", req)
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	gw := &fakeGateway{quote: execution.Quote{Bid: 1, Ask: 1}, closeAfter: 1, profit: 1}
	m, _ := newTestManager(gw, &memJournal{}, Observers{a, b}, false)

	if _, err := m.Step(context.Background(), aggregator.Buy, ref); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := m.Step(context.Background(), aggregator.Hold, ref); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i, o := range []*recordingObserver{a, b} {
		if o.opened != 1 || o.closed != 1 {
			t.Fatalf("observer %d: opened=%d closed=%d", i, o.opened, o.closed)
		}
	}
}
