package learner

import (
	"math"
	"time"
)

const featureCount = 3

// Model is a logistic regression over standardized (entry, tp, sl) features.
type Model struct {
	Trained   bool      `json:"trained"`
	Bias      float64   `json:"bias"`
	Weights   []float64 `json:"weights"`
	Mean      []float64 `json:"mean"`
	Scale     []float64 `json:"scale"`
	Samples   int       `json:"samples"`
	Wins      int       `json:"wins"`
	TrainedAt time.Time `json:"trained_at"`
}

type fitOptions struct {
	epochs       int
	learningRate float64
	l2           float64
}

var defaultFit = fitOptions{epochs: 2000, learningRate: 0.1, l2: 1e-3}

func features(entry, tp, sl float64) [featureCount]float64 {
	return [featureCount]float64{entry, tp, sl}
}

// fit replaces the model with one trained on the full sample set by batch
// gradient descent.
func fit(xs [][featureCount]float64, ys []float64, opt fitOptions) Model {
	n := len(xs)
	m := Model{
		Trained: true,
		Weights: make([]float64, featureCount),
		Mean:    make([]float64, featureCount),
		Scale:   make([]float64, featureCount),
		Samples: n,
	}
	for _, y := range ys {
		if y > 0.5 {
			m.Wins++
		}
	}

	for j := 0; j < featureCount; j++ {
		for _, x := range xs {
			m.Mean[j] += x[j]
		}
		m.Mean[j] /= float64(n)
		var ss float64
		for _, x := range xs {
			d := x[j] - m.Mean[j]
			ss += d * d
		}
		m.Scale[j] = math.Sqrt(ss / float64(n))
		if m.Scale[j] == 0 {
			m.Scale[j] = 1
		}
	}

	zs := make([][featureCount]float64, n)
	for i, x := range xs {
		zs[i] = m.standardize(x)
	}

	grad := make([]float64, featureCount)
	for epoch := 0; epoch < opt.epochs; epoch++ {
		var gb float64
		for j := range grad {
			grad[j] = 0
		}
		for i, z := range zs {
			diff := m.score(z) - ys[i]
			gb += diff
			for j := 0; j < featureCount; j++ {
				grad[j] += diff * z[j]
			}
		}
		m.Bias -= opt.learningRate * gb / float64(n)
		for j := 0; j < featureCount; j++ {
			g := grad[j]/float64(n) + opt.l2*m.Weights[j]
			m.Weights[j] -= opt.learningRate * g
		}
	}
	return m
}

func (m Model) standardize(x [featureCount]float64) [featureCount]float64 {
	var z [featureCount]float64
	for j := 0; j < featureCount; j++ {
		z[j] = (x[j] - m.Mean[j]) / m.Scale[j]
	}
	return z
}

func (m Model) score(z [featureCount]float64) float64 {
	s := m.Bias
	for j := 0; j < featureCount; j++ {
		s += m.Weights[j] * z[j]
	}
	return 1 / (1 + math.Exp(-s))
}

// WinProbability is the model's score for a prospective trade.
func (m Model) WinProbability(entry, tp, sl float64) (float64, bool) {
	if !m.Trained || len(m.Weights) != featureCount || len(m.Mean) != featureCount || len(m.Scale) != featureCount {
		return 0.5, false
	}
	return m.score(m.standardize(features(entry, tp, sl))), true
}
