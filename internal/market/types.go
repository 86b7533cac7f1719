package market

import (
	"fmt"
	"time"
)

// Bar is one OHLC candle. Bars are never modified once fetched.
type Bar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Series is a fixed-size window of bars for one timeframe, oldest first.
type Series struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []Bar
}

func (s Series) Len() int {
	return len(s.Bars)
}

// Last returns the newest bar.
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

var durations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
}

// Duration returns the bar length, or zero for an unknown label.
func (tf Timeframe) Duration() time.Duration {
	return durations[tf]
}

func (tf Timeframe) Valid() bool {
	_, ok := durations[tf]
	return ok
}

// TimeframeSet is the ordered list of timeframes analysed each cycle.
type TimeframeSet []Timeframe

// DefaultTimeframes is M1 through D1.
var DefaultTimeframes = TimeframeSet{M1, M5, M15, H1, H4, D1}

// ParseTimeframes converts config labels into a TimeframeSet, rejecting duplicates.
func ParseTimeframes(labels []string) (TimeframeSet, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no timeframes configured")
	}
	seen := make(map[Timeframe]bool, len(labels))
	set := make(TimeframeSet, 0, len(labels))
	for _, l := range labels {
		tf := Timeframe(l)
		if !tf.Valid() {
			return nil, fmt.Errorf("unknown timeframe %q", l)
		}
		if seen[tf] {
			return nil, fmt.Errorf("duplicate timeframe %q", l)
		}
		seen[tf] = true
		set = append(set, tf)
	}
	return set, nil
}

func (s TimeframeSet) Contains(tf Timeframe) bool {
	for _, t := range s {
		if t == tf {
			return true
		}
	}
	return false
}
