package broker

import (
	"context"
	"fmt"
	"math"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"

	"github.com/camuig/bbma-trader/internal/execution"
)

const nanosPerUnit = 1_000_000_000

// Modify implements execution.Gateway by replacing both stop orders.
func (bc *BrokerClient) Modify(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bc.mu.Lock()
	t, ok := bc.positions[positionID]
	bc.mu.Unlock()
	if !ok {
		return &execution.Rejection{Op: "modify", Reason: "unknown position " + positionID}
	}

	bc.cancelStopOrders(t.slOrderID, t.tpOrderID)
	sl, tp, err := bc.placeProtection(t.uid, t.side, t.lots, stopLoss, takeProfit)

	bc.mu.Lock()
	t.slOrderID, t.tpOrderID = sl, tp
	bc.mu.Unlock()
	if err != nil {
		return &execution.Rejection{Op: "modify", Reason: err.Error()}
	}
	return nil
}

// placeProtection places the SL and TP orders closing a position of side.
// Either both legs are placed or neither is left resting.
func (bc *BrokerClient) placeProtection(uid string, side execution.Side, lots int64, stopLoss, takeProfit float64) (slID, tpID string, err error) {
	closing := pb.StopOrderDirection_STOP_ORDER_DIRECTION_SELL
	if side == execution.SideSell {
		closing = pb.StopOrderDirection_STOP_ORDER_DIRECTION_BUY
	}

	slID, err = bc.placeStop(uid, lots, stopLoss, closing, pb.StopOrderType_STOP_ORDER_TYPE_STOP_LOSS)
	if err != nil {
		return "", "", fmt.Errorf("place stop loss at %v: %w", stopLoss, err)
	}
	tpID, err = bc.placeStop(uid, lots, takeProfit, closing, pb.StopOrderType_STOP_ORDER_TYPE_TAKE_PROFIT)
	if err != nil {
		bc.cancelStopOrders(slID)
		return "", "", fmt.Errorf("place take profit at %v: %w", takeProfit, err)
	}
	return slID, tpID, nil
}

func (bc *BrokerClient) placeStop(uid string, lots int64, price float64, dir pb.StopOrderDirection, kind pb.StopOrderType) (string, error) {
	if bc.Config.IsSandbox() {
		// Stop orders are not supported in sandbox
		bc.Logger.Info("stop order skipped in sandbox mode", "instrument", uid, "type", kind.String(), "price", price)
		return "", nil
	}

	step, err := bc.priceStep(uid)
	if err != nil {
		return "", err
	}

	stopOrders := bc.Client.NewStopOrdersServiceClient()
	resp, err := stopOrders.PostStopOrder(&investgo.PostStopOrderRequest{
		InstrumentId:   uid,
		Quantity:       lots,
		StopPrice:      toQuotation(price, step),
		Direction:      dir,
		AccountId:      bc.AccountID(),
		ExpirationType: pb.StopOrderExpirationType_STOP_ORDER_EXPIRATION_TYPE_GOOD_TILL_CANCEL,
		StopOrderType:  kind,
		OrderID:        investgo.CreateUid(),
	})
	if err != nil {
		return "", fmt.Errorf("post stop order: %w", err)
	}
	return resp.GetStopOrderId(), nil
}

func (bc *BrokerClient) cancelStopOrders(ids ...string) {
	if bc.Config.IsSandbox() {
		return
	}

	stopOrders := bc.Client.NewStopOrdersServiceClient()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := stopOrders.CancelStopOrder(bc.AccountID(), id); err != nil {
			bc.Logger.Error("cancel stop order", "order_id", id, "error", err)
		}
	}
}

// toQuotation rounds price to the nearest multiple of step (in nano units,
// 0 meaning no rounding) and splits it without going through a float product.
func toQuotation(price float64, step int64) *pb.Quotation {
	n := int64(math.Round(price * nanosPerUnit))
	if step > 0 {
		n = int64(math.Round(float64(n)/float64(step))) * step
	}
	return &pb.Quotation{Units: n / nanosPerUnit, Nano: int32(n % nanosPerUnit)}
}

func quotationNanos(q *pb.Quotation) int64 {
	return q.GetUnits()*nanosPerUnit + int64(q.GetNano())
}
