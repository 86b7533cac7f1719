package indicator

import (
	"math"
	"sort"

	"github.com/camuig/bbma-trader/internal/market"
)

// Values that cannot be computed yet (not enough samples) are NaN.
// Callers must check IsDefined instead of comparing against zero.

func undefined() float64 { return math.NaN() }

// IsDefined reports whether v holds a computed value.
func IsDefined(v float64) bool {
	return !math.IsNaN(v)
}

func filled(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = undefined()
	}
	return out
}

// SMA returns the simple moving average of the last w values at each index.
func SMA(values []float64, w int) []float64 {
	out := filled(len(values))
	if w <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= w {
			sum -= values[i-w]
		}
		if i >= w-1 {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// RollingStd returns the population standard deviation over the last w values.
// Each window is summed directly so long series do not accumulate drift.
func RollingStd(values []float64, w int) []float64 {
	out := filled(len(values))
	if w <= 0 {
		return out
	}
	for i := w - 1; i < len(values); i++ {
		win := values[i-w+1 : i+1]
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(w)
		var ss float64
		for _, v := range win {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(w))
	}
	return out
}

// Bollinger returns upper, mid and lower bands: mid = SMA(w), bands = mid ± k·std(w).
func Bollinger(values []float64, w int, k float64) (upper, mid, lower []float64) {
	mid = SMA(values, w)
	std := RollingStd(values, w)
	upper = filled(len(values))
	lower = filled(len(values))
	for i := range values {
		if IsDefined(mid[i]) && IsDefined(std[i]) {
			upper[i] = mid[i] + k*std[i]
			lower[i] = mid[i] - k*std[i]
		}
	}
	return upper, mid, lower
}

// TrueRange is undefined on the first bar, which has no previous close.
func TrueRange(bars []market.Bar) []float64 {
	out := filled(len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		h, l := bars[i].High, bars[i].Low
		out[i] = math.Max(h-l, math.Max(math.Abs(h-prev), math.Abs(l-prev)))
	}
	return out
}

// ATR is Wilder's average true range. The first value, at index w, is the mean
// of the first w true ranges; later values are (prev·(w-1) + tr) / w.
func ATR(bars []market.Bar, w int) []float64 {
	out := filled(len(bars))
	if w <= 0 || len(bars) <= w {
		return out
	}
	tr := TrueRange(bars)
	seed := 0.0
	for i := 1; i <= w; i++ {
		seed += tr[i]
	}
	atr := seed / float64(w)
	out[w] = atr
	for i := w + 1; i < len(bars); i++ {
		atr = (atr*float64(w-1) + tr[i]) / float64(w)
		out[i] = atr
	}
	return out
}

func defined(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if IsDefined(v) {
			out = append(out, v)
		}
	}
	return out
}

// Median of the defined values; NaN when there are none.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}

// Quantile of the defined values with linear interpolation between closest ranks.
func Quantile(values []float64, q float64) float64 {
	vs := defined(values)
	if len(vs) == 0 {
		return undefined()
	}
	sort.Float64s(vs)
	if q <= 0 {
		return vs[0]
	}
	if q >= 1 {
		return vs[len(vs)-1]
	}
	pos := q * float64(len(vs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return vs[lo] + (vs[hi]-vs[lo])*frac
}
