// Package news decides whether high-impact news should keep the bot flat.
package news

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/camuig/bbma-trader/internal/logger"
)

// Source lists recent headlines.
type Source interface {
	FetchSince(ctx context.Context, since time.Time) ([]Item, error)
}

// Classifier flags high-impact headlines. It returns the indices of the
// flagged entries.
type Classifier interface {
	HighImpact(ctx context.Context, headlines []string) ([]int, error)
}

// Report is the outcome of one news check.
type Report struct {
	Risk   bool
	Events []Item
	// Err is set when the check degraded to "no news".
	Err error
}

// Oracle reports high-impact news within a lookback window. A headline is
// high impact when it mentions the symbol, matches a keyword, or is flagged
// by the optional classifier.
type Oracle struct {
	source     Source
	classifier Classifier
	keywords   []string
	lookback   time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

func NewOracle(src Source, classifier Classifier, keywords []string, lookback time.Duration, log *logger.Logger) *Oracle {
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			lower = append(lower, strings.ToLower(k))
		}
	}
	return &Oracle{
		source:     src,
		classifier: classifier,
		keywords:   lower,
		lookback:   lookback,
		logger:     log.With("component", "news"),
		now:        time.Now,
	}
}

// Check never fails: source errors are logged and reported as no risk.
func (o *Oracle) Check(ctx context.Context, symbol string) Report {
	items, err := o.source.FetchSince(ctx, o.now().Add(-o.lookback))
	if err != nil {
		o.logger.Error("news check failed, assuming no news", "error", err)
		return Report{Err: err}
	}

	flagged := make([]bool, len(items))
	for i, it := range items {
		title := strings.ToLower(it.Title)
		if mentions(it.Title, symbol) {
			flagged[i] = true
			continue
		}
		for _, k := range o.keywords {
			if strings.Contains(title, k) {
				flagged[i] = true
				break
			}
		}
	}

	if o.classifier != nil && len(items) > 0 {
		headlines := make([]string, len(items))
		for i, it := range items {
			headlines[i] = it.Title
		}
		idx, err := o.classifier.HighImpact(ctx, headlines)
		if err != nil {
			o.logger.Error("headline classification failed, keyword match only", "error", err)
		}
		for _, i := range idx {
			if i >= 0 && i < len(flagged) {
				flagged[i] = true
			}
		}
	}

	var rep Report
	for i, it := range items {
		if flagged[i] {
			rep.Events = append(rep.Events, it)
		}
	}
	rep.Risk = len(rep.Events) > 0
	return rep
}

// mentions reports whether symbol appears in title as a whole word. Keywords
// are stems and match as substrings; tickers must not, or "T" matches everything.
func mentions(title, symbol string) bool {
	if symbol == "" {
		return false
	}
	words := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if strings.EqualFold(w, symbol) {
			return true
		}
	}
	return false
}
