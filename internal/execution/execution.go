package execution

import (
	"context"
	"fmt"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Quote struct {
	Bid float64
	Ask float64
}

// OrderRequest is a market order with protective levels attached.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// Ack is an accepted order. PositionID identifies the resulting position in
// later Modify and ClosedDeals calls.
type Ack struct {
	PositionID string
	Price      float64
	// Unprotected is set when the position is open but its protective
	// orders could not be attached and it could not be flattened either.
	Unprotected error
}

// Deal is a closing deal reported by the gateway.
type Deal struct {
	PositionID string
	Profit     float64
	Price      float64
}

// Rejection is returned when the gateway refuses a submit or modify.
type Rejection struct {
	Op     string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected: %s", r.Op, r.Reason)
}

// Gateway places and tracks orders for one account.
type Gateway interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Submit(ctx context.Context, req OrderRequest) (Ack, error)
	Modify(ctx context.Context, positionID string, stopLoss, takeProfit float64) error
	// ClosedDeals is empty until the position has been closed.
	ClosedDeals(ctx context.Context, positionID string) ([]Deal, error)
}
