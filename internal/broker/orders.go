package broker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"

	"github.com/camuig/bbma-trader/internal/execution"
)

// tracked is the broker-side state of a position opened through Submit.
type tracked struct {
	uid       string
	side      execution.Side
	lots      int64
	openedAt  time.Time
	slOrderID string
	tpOrderID string
	lastYield float64
}

// Quote implements execution.Gateway. The candle close is used for both sides.
func (bc *BrokerClient) Quote(ctx context.Context, symbol string) (execution.Quote, error) {
	if err := ctx.Err(); err != nil {
		return execution.Quote{}, err
	}
	uid, err := bc.ResolveTickerToUID(symbol)
	if err != nil {
		return execution.Quote{}, err
	}
	price, err := bc.lastClose(uid)
	if err != nil {
		return execution.Quote{}, err
	}
	return execution.Quote{Bid: price, Ask: price}, nil
}

// Submit places a market order and protects it with stop-loss and
// take-profit stop orders. When protection cannot be placed the position is
// flattened again and the submit is rejected.
func (bc *BrokerClient) Submit(ctx context.Context, req execution.OrderRequest) (execution.Ack, error) {
	if err := ctx.Err(); err != nil {
		return execution.Ack{}, err
	}
	uid, err := bc.ResolveTickerToUID(req.Symbol)
	if err != nil {
		return execution.Ack{}, err
	}
	lots := volumeToLots(req.Volume)
	openedAt := time.Now()

	res, err := bc.marketOrder(uid, req.Side, lots)
	if err != nil {
		return execution.Ack{}, &execution.Rejection{Op: "submit", Reason: err.Error()}
	}
	bc.Logger.Info("order executed",
		"symbol", req.Symbol, "side", req.Side, "lots", lots, "price", res.ExecutedPrice, "order_id", res.OrderID)

	ack := execution.Ack{PositionID: res.OrderID, Price: res.ExecutedPrice}
	t := &tracked{uid: uid, side: req.Side, lots: lots, openedAt: openedAt}

	t.slOrderID, t.tpOrderID, err = bc.placeProtection(uid, req.Side, lots, req.StopLoss, req.TakeProfit)
	if err != nil {
		bc.Logger.Error("protective orders failed, flattening", "order_id", res.OrderID, "error", err)
		if _, ferr := bc.marketOrder(uid, opposite(req.Side), lots); ferr != nil {
			ack.Unprotected = fmt.Errorf("%w; flatten: %v", err, ferr)
		} else {
			return execution.Ack{}, &execution.Rejection{Op: "submit", Reason: err.Error()}
		}
	}

	bc.mu.Lock()
	bc.positions[res.OrderID] = t
	bc.mu.Unlock()
	return ack, nil
}

// Track re-attaches a position opened by a previous run.
func (bc *BrokerClient) Track(id string, req execution.OrderRequest, openedAt time.Time) error {
	uid, err := bc.ResolveTickerToUID(req.Symbol)
	if err != nil {
		return err
	}
	bc.mu.Lock()
	bc.positions[id] = &tracked{uid: uid, side: req.Side, lots: volumeToLots(req.Volume), openedAt: openedAt}
	bc.mu.Unlock()
	return nil
}

func opposite(side execution.Side) execution.Side {
	if side == execution.SideBuy {
		return execution.SideSell
	}
	return execution.SideBuy
}

type orderResult struct {
	OrderID       string
	ExecutedPrice float64
	ExecutedLots  int64
}

func (bc *BrokerClient) marketOrder(uid string, side execution.Side, lots int64) (*orderResult, error) {
	direction := pb.OrderDirection_ORDER_DIRECTION_BUY
	if side == execution.SideSell {
		direction = pb.OrderDirection_ORDER_DIRECTION_SELL
	}

	req := &investgo.PostOrderRequestShort{
		InstrumentId: uid,
		Quantity:     lots,
		AccountId:    bc.AccountID(),
		OrderType:    pb.OrderType_ORDER_TYPE_MARKET,
		OrderId:      investgo.CreateUid(),
	}

	var resp *investgo.PostOrderResponse
	var err error

	if bc.Config.IsSandbox() {
		sandbox := bc.Client.NewSandboxServiceClient()
		resp, err = sandbox.PostSandboxOrder(&investgo.PostOrderRequest{
			InstrumentId: req.InstrumentId,
			Quantity:     req.Quantity,
			Direction:    direction,
			AccountId:    req.AccountId,
			OrderType:    req.OrderType,
			OrderId:      req.OrderId,
		})
	} else {
		orders := bc.Client.NewOrdersServiceClient()
		if side == execution.SideSell {
			resp, err = orders.Sell(req)
		} else {
			resp, err = orders.Buy(req)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s order: %w", side, err)
	}

	result := &orderResult{
		OrderID:      resp.GetOrderId(),
		ExecutedLots: resp.GetLotsExecuted(),
	}
	if ep := resp.GetExecutedOrderPrice(); ep != nil {
		result.ExecutedPrice = ep.ToFloat()
	}
	return result, nil
}

func volumeToLots(volume float64) int64 {
	lots := int64(math.Round(volume))
	if lots < 1 {
		return 1
	}
	return lots
}
