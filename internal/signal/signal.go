package signal

import (
	"fmt"

	"github.com/camuig/bbma-trader/internal/indicator"
	"github.com/camuig/bbma-trader/internal/market"
)

type Signal string

const (
	Hold Signal = "Hold"
	Buy  Signal = "Buy"
	Sell Signal = "Sell"
)

// ReferenceMA selects the series the reentry rule compares the close against.
type ReferenceMA string

const (
	ReferenceShortMA ReferenceMA = "ma5"
	ReferenceMidBand ReferenceMA = "mid"
)

type Config struct {
	Reference          ReferenceMA
	RangingFilter      bool
	VolatilityFilter   bool
	VolatilityQuantile float64
	Params             indicator.Params
}

// DefaultConfig is the unfiltered short-MA variant.
func DefaultConfig() Config {
	return Config{
		Reference:          ReferenceShortMA,
		VolatilityQuantile: 0.9,
		Params:             indicator.DefaultParams(),
	}
}

// Result is the classification of the newest bar in a series.
type Result struct {
	Signal     Signal
	TakeProfit *float64
	Close      float64
	Snapshot   indicator.Snapshot
	// Filtered names the filter that forced Hold, if any.
	Filtered string
}

type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) (*Classifier, error) {
	switch cfg.Reference {
	case ReferenceShortMA, ReferenceMidBand:
	default:
		return nil, fmt.Errorf("unknown reference MA %q", cfg.Reference)
	}
	if cfg.VolatilityQuantile <= 0 || cfg.VolatilityQuantile >= 1 {
		cfg.VolatilityQuantile = 0.9
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify computes indicators over the series and classifies its newest bar.
func (c *Classifier) Classify(s market.Series) Result {
	snaps := indicator.Compute(s.Bars, c.cfg.Params)
	if len(snaps) == 0 {
		return Result{Signal: Hold}
	}
	res := c.ClassifyAt(snaps, s.Bars, len(snaps)-1)
	return c.applyFilters(res, snaps)
}

// ClassifyAt applies the base reentry/momentum rule to bar i, without filters.
func (c *Classifier) ClassifyAt(snaps []indicator.Snapshot, bars []market.Bar, i int) Result {
	res := Result{Signal: Hold}
	if i < 1 || i >= len(bars) || i >= len(snaps) {
		return res
	}
	snap := snaps[i]
	res.Close = bars[i].Close
	res.Snapshot = snap

	ref := c.reference(snap)
	if !indicator.IsDefined(snap.Upper) || !indicator.IsDefined(ref) {
		return res
	}

	closeNow := bars[i].Close
	reentry := Reentry(closeNow, snap, ref)
	momentum := Momentum(closeNow, bars[i-1].Close, snap)

	switch {
	case reentry && momentum:
		res.Signal = Buy
		tp := closeNow + (snap.Upper - snap.Mid)
		res.TakeProfit = &tp
	case reentry:
		res.Signal = Sell
		tp := closeNow - (snap.Mid - snap.Lower)
		res.TakeProfit = &tp
	}
	return res
}

func (c *Classifier) reference(s indicator.Snapshot) float64 {
	if c.cfg.Reference == ReferenceMidBand {
		return s.Mid
	}
	return s.MA5
}

// Reentry: the close sits inside a band on the far side of the reference level.
func Reentry(closeNow float64, s indicator.Snapshot, ref float64) bool {
	return (closeNow < s.Upper && closeNow > ref) || (closeNow > s.Lower && closeNow < ref)
}

// Momentum: the close has just crossed out of the band; prevClose is compared
// against the current bar's band.
func Momentum(closeNow, prevClose float64, s indicator.Snapshot) bool {
	return (closeNow > s.Upper && prevClose <= s.Upper) ||
		(closeNow < s.Lower && prevClose >= s.Lower)
}

func (c *Classifier) applyFilters(res Result, snaps []indicator.Snapshot) Result {
	if res.Signal == Hold {
		return res
	}
	last := snaps[len(snaps)-1]

	if c.cfg.RangingFilter {
		widths := make([]float64, len(snaps))
		for i, s := range snaps {
			widths[i] = s.Width()
		}
		if med := indicator.Median(widths); indicator.IsDefined(med) && last.Width() < med {
			return forceHold(res, "ranging")
		}
	}

	if c.cfg.VolatilityFilter && indicator.IsDefined(last.ATR) {
		atrs := make([]float64, len(snaps))
		for i, s := range snaps {
			atrs[i] = s.ATR
		}
		if q := indicator.Quantile(atrs, c.cfg.VolatilityQuantile); indicator.IsDefined(q) && last.ATR > q {
			return forceHold(res, "volatility")
		}
	}
	return res
}

func forceHold(res Result, reason string) Result {
	res.Signal = Hold
	res.TakeProfit = nil
	res.Filtered = reason
	return res
}
