package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

type Outcome string

const (
	Win  Outcome = "win"
	Loss Outcome = "loss"
)

// OutcomeFor labels a realized profit: strictly positive is a win.
func OutcomeFor(profit float64) Outcome {
	if profit > 0 {
		return Win
	}
	return Loss
}

type TradeRecord struct {
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
	Result     Outcome
}

var header = []string{"Entry Price", "TP", "SL", "Result"}

// Journal is the append-only outcome log of one symbol.
type Journal struct {
	path string
	mu   sync.Mutex
}

// PathFor is the log file of symbol inside dir.
func PathFor(dir, symbol string) string {
	return filepath.Join(dir, fmt.Sprintf("trade_history_%s.csv", symbol))
}

func New(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Path() string {
	return j.path
}

// Append writes one record, creating the file and its header on first use.
// Existing rows are never rewritten.
func (j *Journal) Append(rec TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write journal header: %w", err)
		}
	}
	row := []string{
		formatFloat(rec.EntryPrice),
		formatFloat(rec.TakeProfit),
		formatFloat(rec.StopLoss),
		string(rec.Result),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write journal row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return f.Sync()
}

// Records reads every row in file order. A missing file is an empty log.
func (j *Journal) Records() ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	var out []TradeRecord
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
		if first {
			first = false
			if row[0] == header[0] {
				continue
			}
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse journal row %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (TradeRecord, error) {
	var rec TradeRecord
	var err error
	if rec.EntryPrice, err = strconv.ParseFloat(row[0], 64); err != nil {
		return rec, err
	}
	if rec.TakeProfit, err = strconv.ParseFloat(row[1], 64); err != nil {
		return rec, err
	}
	if rec.StopLoss, err = strconv.ParseFloat(row[2], 64); err != nil {
		return rec, err
	}
	switch Outcome(row[3]) {
	case Win, Loss:
		rec.Result = Outcome(row[3])
	default:
		return rec, fmt.Errorf("unknown result %q", row[3])
	}
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
