package broker

import (
	"context"
	"fmt"
	"sort"
	"time"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"

	"github.com/camuig/bbma-trader/internal/market"
)

// maxPages bounds how far back Fetch walks when one request window holds
// fewer bars than asked for.
const maxPages = 12

type intervalSpec struct {
	interval pb.CandleInterval
	window   time.Duration // widest range the API accepts per request
}

var intervals = map[market.Timeframe]intervalSpec{
	market.M1:  {pb.CandleInterval_CANDLE_INTERVAL_1_MIN, 24 * time.Hour},
	market.M5:  {pb.CandleInterval_CANDLE_INTERVAL_5_MIN, 24 * time.Hour},
	market.M15: {pb.CandleInterval_CANDLE_INTERVAL_15_MIN, 24 * time.Hour},
	market.H1:  {pb.CandleInterval_CANDLE_INTERVAL_HOUR, 7 * 24 * time.Hour},
	market.H4:  {pb.CandleInterval_CANDLE_INTERVAL_4_HOUR, 30 * 24 * time.Hour},
	market.D1:  {pb.CandleInterval_CANDLE_INTERVAL_DAY, 365 * 24 * time.Hour},
}

// Fetch implements market.Provider. It pages backwards one API window at a
// time until count bars are collected or maxPages is reached.
func (bc *BrokerClient) Fetch(ctx context.Context, symbol string, tf market.Timeframe, count int) ([]market.Bar, error) {
	spec, ok := intervals[tf]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %s", tf)
	}
	uid, err := bc.ResolveTickerToUID(symbol)
	if err != nil {
		return nil, err
	}

	md := bc.Client.NewMarketDataServiceClient()
	to := time.Now()
	var bars []market.Bar
	for page := 0; page < maxPages && len(bars) < count; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		from := to.Add(-spec.window)
		resp, err := md.GetCandles(
			uid,
			spec.interval,
			from, to,
			pb.GetCandlesRequest_CANDLE_SOURCE_EXCHANGE,
			0,
		)
		if err != nil {
			return nil, fmt.Errorf("get candles %s %s: %w", symbol, tf, err)
		}
		bars = append(toBars(resp.GetCandles()), bars...)
		to = from
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

func toBars(candles []*pb.HistoricCandle) []market.Bar {
	out := make([]market.Bar, 0, len(candles))
	for _, c := range candles {
		if c.GetClose() == nil {
			continue
		}
		out = append(out, market.Bar{
			Time:  c.GetTime().AsTime(),
			Open:  c.GetOpen().ToFloat(),
			High:  c.GetHigh().ToFloat(),
			Low:   c.GetLow().ToFloat(),
			Close: c.GetClose().ToFloat(),
		})
	}
	return out
}

// lastClose is the newest one-minute close, used as the quote.
func (bc *BrokerClient) lastClose(uid string) (float64, error) {
	md := bc.Client.NewMarketDataServiceClient()
	now := time.Now()
	resp, err := md.GetCandles(
		uid,
		pb.CandleInterval_CANDLE_INTERVAL_1_MIN,
		now.Add(-24*time.Hour), now,
		pb.GetCandlesRequest_CANDLE_SOURCE_EXCHANGE,
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("get last candle: %w", err)
	}
	candles := resp.GetCandles()
	if len(candles) == 0 {
		return 0, fmt.Errorf("no recent candles for %s", uid)
	}
	return candles[len(candles)-1].GetClose().ToFloat(), nil
}
