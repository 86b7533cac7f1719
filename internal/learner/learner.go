package learner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/camuig/bbma-trader/internal/journal"
)

// DefaultMinSamples is the smallest outcome log the model is fitted on.
const DefaultMinSamples = 30

// PathFor is the model artifact of symbol inside dir.
func PathFor(dir, symbol string) string {
	return filepath.Join(dir, fmt.Sprintf("learning_%s.json", symbol))
}

// Learner owns the process-wide model of one symbol.
type Learner struct {
	path       string
	minSamples int
	model      Model
	now        func() time.Time
}

func New(path string, minSamples int) *Learner {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Learner{path: path, minSamples: minSamples, now: time.Now}
}

// Load restores the last persisted model. A missing artifact leaves the
// learner untrained.
func (l *Learner) Load() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.model = Model{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse model: %w", err)
	}
	l.model = m
	return nil
}

func (l *Learner) Model() Model {
	return l.model
}

// Path is where the model is persisted.
func (l *Learner) Path() string {
	return l.path
}

func (l *Learner) MinSamples() int {
	return l.minSamples
}

// MaybeRetrain refits on the entire log when it holds at least MinSamples rows
// and persists the result. It reports whether a refit happened.
func (l *Learner) MaybeRetrain(records []journal.TradeRecord) (bool, error) {
	if len(records) < l.minSamples {
		return false, nil
	}

	xs := make([][featureCount]float64, len(records))
	ys := make([]float64, len(records))
	for i, r := range records {
		xs[i] = features(r.EntryPrice, r.TakeProfit, r.StopLoss)
		if r.Result == journal.Win {
			ys[i] = 1
		}
	}

	m := fit(xs, ys, defaultFit)
	m.TrainedAt = l.now().UTC()
	l.model = m

	if err := l.save(); err != nil {
		return true, err
	}
	return true, nil
}

// Predict returns the win probability of a prospective trade; ok is false
// until the model has been trained.
func (l *Learner) Predict(entry, tp, sl float64) (float64, bool) {
	return l.model.WinProbability(entry, tp, sl)
}

func (l *Learner) save() error {
	data, err := json.MarshalIndent(l.model, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}
