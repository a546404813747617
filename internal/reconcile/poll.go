package reconcile

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/types"
)

// Checker runs a single check-and-update cycle for one watched order.
type Checker struct {
	store     OrderStore
	gateways  GatewayResolver
	positions PositionSyncer
}

func NewChecker(store OrderStore, gateways GatewayResolver, positions PositionSyncer) *Checker {
	return &Checker{
		store:     store,
		gateways:  gateways,
		positions: positions,
	}
}

// Check fetches the broker's snapshot for the order, persists a status
// transition if one happened, and reports whether the watch should keep
// running. A non-nil error means the cycle failed transiently and should be
// retried after a longer backoff; unrecoverable conditions (missing order,
// inactive connection, unsupported broker, expired credentials) return
// (false, nil) after logging, since retrying them cannot succeed.
func (c *Checker) Check(ctx context.Context, orderID, connectionID uint, brokerOrderID string) (bool, error) {
	logger := log.With().
		Str("component", "order_checker").
		Uint("order_id", orderID).
		Str("broker_order_id", brokerOrderID).
		Logger()

	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		return true, err
	}
	if order == nil {
		logger.Warn().Msg("order no longer exists, stopping watch")
		return false, nil
	}

	// Status is re-read every cycle rather than cached, so a transition
	// recorded by another path (e.g. manual cancellation) ends the watch.
	if order.Status.Terminal() {
		logger.Debug().Str("status", string(order.Status)).Msg("order already in terminal status")
		return false, nil
	}

	conn, err := c.store.GetActiveConnection(ctx, connectionID)
	if err != nil {
		return true, err
	}
	if conn == nil {
		logger.Warn().Uint("connection_id", connectionID).Msg("broker connection missing or inactive, stopping watch")
		return false, nil
	}

	gateway, err := c.gateways.Resolve(conn.BrokerName)
	if err != nil {
		logger.Warn().Str("broker", conn.BrokerName).Msg("status polling not implemented for broker, stopping watch")
		return false, nil
	}

	snapshot, err := gateway.FetchOrderStatus(ctx, conn, brokerOrderID)
	if err != nil {
		if broker.IsAuthError(err) {
			logger.Warn().Err(err).Msg("broker credentials unusable, stopping watch")
			return false, nil
		}
		return true, err
	}
	if snapshot == nil {
		logger.Debug().Msg("no order data from broker yet")
		return true, nil
	}

	newStatus := MapBrokerStatus(snapshot.Status)
	if newStatus == order.Status {
		logger.Debug().Str("status", string(order.Status)).Msg("order status unchanged")
		return true, nil
	}

	executedPrice := snapshot.AveragePrice
	if executedPrice == 0 {
		executedPrice = snapshot.Price
	}
	executedQty := snapshot.FilledQuantity
	if executedQty == 0 {
		executedQty = snapshot.Quantity
	}

	update := OrderUpdate{
		Status:           newStatus,
		ExecutedPrice:    executedPrice,
		ExecutedQuantity: executedQty,
		StatusMessage:    snapshot.Raw,
	}
	if newStatus == types.StatusComplete {
		pnl := ComputePnL(order.Side, order.Price, executedPrice, executedQty)
		update.PnL = &pnl
	}

	if err := c.store.UpdateOrder(ctx, orderID, update); err != nil {
		return true, err
	}

	logger.Info().
		Str("from", string(order.Status)).
		Str("to", string(newStatus)).
		Float64("executed_price", executedPrice).
		Float64("executed_quantity", executedQty).
		Msg("order status updated")

	if !newStatus.Terminal() {
		return true, nil
	}

	// The transition is already committed; position sync is best-effort.
	if newStatus == types.StatusComplete {
		if err := c.positions.Sync(ctx, conn); err != nil {
			logger.Error().Err(err).Msg("position sync after order completion failed")
		}
	}
	return false, nil
}
