package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"

	"github.com/camuig/bbma-trader/internal/execution"
)

type positionInfo struct {
	InstrumentUID string
	Quantity      float64
	PnL           float64
}

// ClosedDeals implements execution.Gateway. A position counts as closed once
// its instrument no longer appears in the portfolio. The profit is the net
// cash flow of the executed operations on the instrument since entry; the last
// expected yield seen while open is used only when operations are unavailable.
func (bc *BrokerClient) ClosedDeals(ctx context.Context, positionID string) ([]execution.Deal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bc.mu.Lock()
	t, ok := bc.positions[positionID]
	bc.mu.Unlock()
	if !ok {
		uid, err := bc.ResolveTickerToUID(bc.Config.Symbol)
		if err != nil {
			return nil, err
		}
		t = &tracked{uid: uid}
		bc.mu.Lock()
		bc.positions[positionID] = t
		bc.mu.Unlock()
	}

	positions, err := bc.portfolioPositions()
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.InstrumentUID == t.uid && p.Quantity != 0 {
			bc.mu.Lock()
			t.lastYield = p.PnL
			bc.mu.Unlock()
			return nil, nil
		}
	}

	// one leg fired, the other is still resting
	bc.cancelStopOrders(t.slOrderID, t.tpOrderID)

	profit, err := bc.realizedProfit(t)
	if err != nil {
		bc.Logger.Warn("realized profit unavailable, using last expected yield",
			"position", positionID, "yield", t.lastYield, "error", err)
		profit = t.lastYield
	}

	bc.mu.Lock()
	delete(bc.positions, positionID)
	bc.mu.Unlock()

	return []execution.Deal{{PositionID: positionID, Profit: profit}}, nil
}

func (bc *BrokerClient) realizedProfit(t *tracked) (float64, error) {
	if t.openedAt.IsZero() {
		return 0, fmt.Errorf("entry time unknown")
	}
	ops, err := bc.executedOperations(t.openedAt)
	if err != nil {
		return 0, err
	}
	profit, ok := roundTripProfit(ops, t.uid)
	if !ok {
		return 0, fmt.Errorf("no closing trade for %s since %s", t.uid, t.openedAt.Format(time.RFC3339))
	}
	return profit, nil
}

func (bc *BrokerClient) executedOperations(from time.Time) ([]*pb.Operation, error) {
	req := &investgo.GetOperationsRequest{
		AccountId: bc.AccountID(),
		State:     pb.OperationState_OPERATION_STATE_EXECUTED,
		From:      from.Add(-time.Minute),
		To:        time.Now(),
	}

	if bc.Config.IsSandbox() {
		sandbox := bc.Client.NewSandboxServiceClient()
		r, err := sandbox.GetSandboxOperations(req)
		if err != nil {
			return nil, fmt.Errorf("get sandbox operations: %w", err)
		}
		return r.GetOperations(), nil
	}
	ops := bc.Client.NewOperationsServiceClient()
	r, err := ops.GetOperations(req)
	if err != nil {
		return nil, fmt.Errorf("get operations: %w", err)
	}
	return r.GetOperations(), nil
}

// roundTripProfit sums the payments of executed operations on uid, fees
// included. ok is false until both an entry and an exit trade are present.
func roundTripProfit(ops []*pb.Operation, uid string) (profit float64, ok bool) {
	var buys, sells bool
	for _, op := range ops {
		if op.GetInstrumentUid() != uid || op.GetState() != pb.OperationState_OPERATION_STATE_EXECUTED {
			continue
		}
		switch op.GetOperationType() {
		case pb.OperationType_OPERATION_TYPE_BUY:
			buys = true
		case pb.OperationType_OPERATION_TYPE_SELL:
			sells = true
		}
		if pay := op.GetPayment(); pay != nil {
			profit += pay.ToFloat()
		}
	}
	return profit, buys && sells
}

func (bc *BrokerClient) portfolioPositions() ([]positionInfo, error) {
	accountID := bc.AccountID()
	currency := pb.PortfolioRequest_RUB

	var resp interface {
		GetPositions() []*pb.PortfolioPosition
	}

	if bc.Config.IsSandbox() {
		sandbox := bc.Client.NewSandboxServiceClient()
		r, err := sandbox.GetSandboxPortfolio(accountID, currency)
		if err != nil {
			return nil, fmt.Errorf("get sandbox portfolio: %w", err)
		}
		resp = r.PortfolioResponse
	} else {
		ops := bc.Client.NewOperationsServiceClient()
		r, err := ops.GetPortfolio(accountID, currency)
		if err != nil {
			return nil, fmt.Errorf("get portfolio: %w", err)
		}
		resp = r.PortfolioResponse
	}

	var out []positionInfo
	for _, pos := range resp.GetPositions() {
		if pos.GetInstrumentType() == "currency" {
			continue
		}
		pi := positionInfo{InstrumentUID: pos.GetInstrumentUid()}
		if q := pos.GetQuantity(); q != nil {
			pi.Quantity = q.ToFloat()
		}
		if ey := pos.GetExpectedYield(); ey != nil {
			pi.PnL = ey.ToFloat()
		}
		out = append(out, pi)
	}
	return out, nil
}
