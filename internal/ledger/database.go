// Package ledger provides gorm-backed access to the order and
// broker-connection ledger. It implements the reconciliation engine's
// OrderStore contract.
package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ksred/autotrader-api/internal/reconcile"
	"github.com/ksred/autotrader-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(ctx context.Context, order *types.Order) error {
	return d.db.WithContext(ctx).Create(order).Error
}

func (d *Database) CreateConnection(ctx context.Context, conn *types.BrokerConnection) error {
	return d.db.WithContext(ctx).Create(conn).Error
}

// GetOrder returns the order or (nil, nil) when it does not exist.
func (d *Database) GetOrder(ctx context.Context, orderID uint) (*types.Order, error) {
	var order types.Order
	if err := d.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetActiveConnection returns the broker connection only if it exists and is
// active; (nil, nil) otherwise.
func (d *Database) GetActiveConnection(ctx context.Context, connectionID uint) (*types.BrokerConnection, error) {
	var conn types.BrokerConnection
	err := d.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", connectionID, true).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// UpdateOrder persists a status transition as a single UPDATE, so either
// every field lands or none does.
func (d *Database) UpdateOrder(ctx context.Context, orderID uint, update reconcile.OrderUpdate) error {
	fields := map[string]interface{}{
		"status":            update.Status,
		"executed_price":    update.ExecutedPrice,
		"executed_quantity": update.ExecutedQuantity,
		"status_message":    update.StatusMessage,
		"updated_at":        time.Now(),
	}
	if update.PnL != nil {
		fields["pnl"] = *update.PnL
	}

	result := d.db.WithContext(ctx).
		Model(&types.Order{}).
		Where("id = ?", orderID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListOpenOrdersWithConnections returns every non-terminal order that already
// carries a broker order id, joined against its active broker connection.
// Used by the startup recovery sweep.
func (d *Database) ListOpenOrdersWithConnections(ctx context.Context) ([]reconcile.OpenOrder, error) {
	var orders []types.Order
	err := d.db.WithContext(ctx).
		Joins("JOIN broker_connections ON broker_connections.id = orders.broker_connection_id").
		Where("orders.status IN ?", []types.OrderStatus{types.StatusPending, types.StatusOpen}).
		Where("orders.broker_order_id <> ''").
		Where("broker_connections.is_active = ?", true).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	connectionIDs := make([]uint, 0, len(orders))
	for _, order := range orders {
		connectionIDs = append(connectionIDs, order.BrokerConnectionID)
	}

	var connections []types.BrokerConnection
	if len(connectionIDs) > 0 {
		if err := d.db.WithContext(ctx).Find(&connections, connectionIDs).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[uint]types.BrokerConnection, len(connections))
	for _, conn := range connections {
		byID[conn.ID] = conn
	}

	open := make([]reconcile.OpenOrder, 0, len(orders))
	for _, order := range orders {
		open = append(open, reconcile.OpenOrder{
			Order:      order,
			Connection: byID[order.BrokerConnectionID],
		})
	}
	return open, nil
}
