package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFeed marks a timeframe whose candles could not be used this cycle:
	// the provider failed, or returned empty or short data.
	ErrFeed = errors.New("candle feed unavailable")

	// ErrStale marks candles that were retrieved but whose newest bar is old.
	// The bars are still returned alongside it.
	ErrStale = errors.New("candle feed stale")
)

// Provider fetches the most recent count bars, newest last. It may return
// fewer than count bars near session start.
type Provider interface {
	Fetch(ctx context.Context, symbol string, tf Timeframe, count int) ([]Bar, error)
}

// Loader wraps a Provider with the checks every cycle needs.
type Loader struct {
	provider   Provider
	count      int
	minBars    int
	staleAfter int
	now        func() time.Time
}

// NewLoader builds a Loader. minBars is the shortest usable series; a newest bar
// older than staleAfter bar durations is reported as stale (0 disables the check).
func NewLoader(p Provider, count, minBars, staleAfter int) *Loader {
	return &Loader{
		provider:   p,
		count:      count,
		minBars:    minBars,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Load fetches one timeframe. Errors wrap ErrFeed for unusable data; a usable
// but stale series is returned together with an error wrapping ErrStale.
func (l *Loader) Load(ctx context.Context, symbol string, tf Timeframe) (Series, error) {
	bars, err := l.provider.Fetch(ctx, symbol, tf, l.count)
	if err != nil {
		return Series{}, fmt.Errorf("%w: fetch %s %s: %v", ErrFeed, symbol, tf, err)
	}
	if len(bars) < l.minBars {
		return Series{}, fmt.Errorf("%w: %s %s returned %d bars, need %d", ErrFeed, symbol, tf, len(bars), l.minBars)
	}
	if len(bars) > l.count {
		bars = bars[len(bars)-l.count:]
	}

	s := Series{Symbol: symbol, Timeframe: tf, Bars: bars}

	if l.staleAfter > 0 {
		last, _ := s.Last()
		age := l.now().Sub(last.Time)
		if limit := time.Duration(l.staleAfter) * tf.Duration(); age > limit {
			return s, fmt.Errorf("%w: %s %s newest bar is %s old", ErrStale, symbol, tf, age.Truncate(time.Second))
		}
	}
	return s, nil
}
