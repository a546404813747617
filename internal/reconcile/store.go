package reconcile

import (
	"context"

	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/types"
)

// OrderUpdate carries the fields a status transition persists. The store must
// apply it atomically: all fields or none.
type OrderUpdate struct {
	Status           types.OrderStatus
	ExecutedPrice    float64
	ExecutedQuantity float64
	StatusMessage    string
	// PnL is set only when transitioning to COMPLETE.
	PnL *float64
}

// OpenOrder pairs a non-terminal order with its active broker connection,
// as returned by the recovery sweep query.
type OpenOrder struct {
	Order      types.Order
	Connection types.BrokerConnection
}

// OrderStore is the persistence collaborator. All durable state lives behind
// it; the engine itself persists nothing.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID uint) (*types.Order, error)
	GetActiveConnection(ctx context.Context, connectionID uint) (*types.BrokerConnection, error)
	UpdateOrder(ctx context.Context, orderID uint, update OrderUpdate) error
	ListOpenOrdersWithConnections(ctx context.Context) ([]OpenOrder, error)
}

// GatewayResolver resolves a connection's broker name to a gateway.
type GatewayResolver interface {
	Resolve(brokerName string) (broker.Gateway, error)
}

// PositionSyncer reconciles portfolio holdings after a completed order.
// Best-effort: its failure never reverts a committed status transition.
type PositionSyncer interface {
	Sync(ctx context.Context, conn *types.BrokerConnection) error
}
