package indicator

import "github.com/camuig/bbma-trader/internal/market"

// Snapshot holds every indicator value for one bar.
type Snapshot struct {
	Upper  float64
	Mid    float64
	Lower  float64
	MA5    float64
	MA10   float64
	SMA200 float64
	ATR    float64
}

// Width is the band width, undefined while the bands are.
func (s Snapshot) Width() float64 {
	return s.Upper - s.Lower
}

type Params struct {
	BollingerWindow int
	Deviations      float64
	ShortMA         int
	MediumMA        int
	TrendMA         int
	ATRWindow       int
}

func DefaultParams() Params {
	return Params{
		BollingerWindow: 20,
		Deviations:      2,
		ShortMA:         5,
		MediumMA:        10,
		TrendMA:         200,
		ATRWindow:       14,
	}
}

// Compute derives the snapshot series for bars, aligned index for index.
func Compute(bars []market.Bar, p Params) []Snapshot {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	upper, mid, lower := Bollinger(closes, p.BollingerWindow, p.Deviations)
	ma5 := SMA(closes, p.ShortMA)
	ma10 := SMA(closes, p.MediumMA)
	sma200 := SMA(closes, p.TrendMA)
	atr := ATR(bars, p.ATRWindow)

	out := make([]Snapshot, len(bars))
	for i := range bars {
		out[i] = Snapshot{
			Upper:  upper[i],
			Mid:    mid[i],
			Lower:  lower[i],
			MA5:    ma5[i],
			MA10:   ma10[i],
			SMA200: sma200[i],
			ATR:    atr[i],
		}
	}
	return out
}
