package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	bars []Bar
	err  error
}

func (s stubProvider) Fetch(_ context.Context, _ string, _ Timeframe, _ int) ([]Bar, error) {
	return s.bars, s.err
}

func makeBars(n int, end time.Time, step time.Duration) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{Time: end.Add(-time.Duration(n-1-i) * step), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return bars
}

func TestLoaderProviderError(t *testing.T) {
	l := NewLoader(stubProvider{err: errors.New("boom")}, 100, 21, 0)
	_, err := l.Load(context.Background(), "SBER", M5)
	if !errors.Is(err, ErrFeed) {
		t.Fatalf("expected ErrFeed, got %v", err)
	}
}

func TestLoaderShortData(t *testing.T) {
	now := time.Now()
	l := NewLoader(stubProvider{bars: makeBars(5, now, time.Minute)}, 100, 21, 0)
	_, err := l.Load(context.Background(), "SBER", M1)
	if !errors.Is(err, ErrFeed) {
		t.Fatalf("expected ErrFeed for short data, got %v", err)
	}
}

func TestLoaderTrimsToCount(t *testing.T) {
	now := time.Now()
	l := NewLoader(stubProvider{bars: makeBars(50, now, time.Minute)}, 30, 21, 0)
	s, err := l.Load(context.Background(), "SBER", M1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 30 {
		t.Fatalf("len=%d want 30", s.Len())
	}
	last, _ := s.Last()
	if !last.Time.Equal(now) {
		t.Fatalf("newest bar dropped")
	}
}

func TestLoaderStale(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	l := NewLoader(stubProvider{bars: makeBars(30, now.Add(-time.Hour), time.Minute)}, 100, 21, 5)
	l.now = func() time.Time { return now }

	s, err := l.Load(context.Background(), "SBER", M1)
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if errors.Is(err, ErrFeed) {
		t.Fatalf("stale data must not be reported as a feed failure")
	}
	if s.Len() != 30 {
		t.Fatalf("stale series should still carry bars, got %d", s.Len())
	}
}

func TestParseTimeframes(t *testing.T) {
	set, err := ParseTimeframes([]string{"M1", "M15", "D1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 3 || !set.Contains(M15) || set.Contains(H4) {
		t.Fatalf("unexpected set %v", set)
	}
	if _, err := ParseTimeframes([]string{"M1", "M2"}); err == nil {
		t.Fatalf("expected error for unknown timeframe")
	}
	if _, err := ParseTimeframes([]string{"M1", "M1"}); err == nil {
		t.Fatalf("expected error for duplicate timeframe")
	}
}
