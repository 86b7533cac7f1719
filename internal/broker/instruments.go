package broker

import (
	"fmt"
	"strings"
)

// ResolveTickerToUID resolves a ticker to its instrument UID using the instruments service.
// Only an exact ticker match is accepted so a typo never trades a different instrument.
func (bc *BrokerClient) ResolveTickerToUID(ticker string) (string, error) {
	ticker = strings.ToUpper(ticker)

	bc.mu.Lock()
	uid, ok := bc.uids[ticker]
	bc.mu.Unlock()
	if ok {
		return uid, nil
	}

	instruments := bc.Client.NewInstrumentsServiceClient()
	resp, err := instruments.FindInstrument(ticker)
	if err != nil {
		return "", fmt.Errorf("find instrument %s: %w", ticker, err)
	}

	for _, inst := range resp.GetInstruments() {
		if strings.EqualFold(inst.GetTicker(), ticker) {
			bc.mu.Lock()
			bc.uids[ticker] = inst.GetUid()
			bc.mu.Unlock()
			return inst.GetUid(), nil
		}
	}

	return "", fmt.Errorf("instrument not found: %s", ticker)
}

// priceStep returns the instrument's minimum price increment in nano units.
func (bc *BrokerClient) priceStep(uid string) (int64, error) {
	bc.mu.Lock()
	step, ok := bc.steps[uid]
	bc.mu.Unlock()
	if ok {
		return step, nil
	}

	instruments := bc.Client.NewInstrumentsServiceClient()
	resp, err := instruments.InstrumentByUid(uid)
	if err != nil {
		return 0, fmt.Errorf("instrument by uid %s: %w", uid, err)
	}
	step = quotationNanos(resp.GetInstrument().GetMinPriceIncrement())

	bc.mu.Lock()
	bc.steps[uid] = step
	bc.mu.Unlock()
	return step, nil
}
