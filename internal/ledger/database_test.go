package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/autotrader-api/internal/database"
	"github.com/ksred/autotrader-api/internal/reconcile"
	"github.com/ksred/autotrader-api/internal/types"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	return NewDatabase(db)
}

func seedConnection(t *testing.T, d *Database, active bool) *types.BrokerConnection {
	t.Helper()
	conn := &types.BrokerConnection{
		UserID:     1,
		BrokerName: "zerodha",
		IsActive:   active,
	}
	require.NoError(t, d.CreateConnection(context.Background(), conn))
	if !active {
		// gorm's default:true tag wins on insert, force the flag off
		require.NoError(t, d.db.Model(conn).Update("is_active", false).Error)
	}
	return conn
}

func seedOrder(t *testing.T, d *Database, connID uint, status types.OrderStatus, brokerOrderID string) *types.Order {
	t.Helper()
	order := &types.Order{
		UserID:             1,
		BrokerConnectionID: connID,
		BrokerOrderID:      brokerOrderID,
		Symbol:             "RELIANCE",
		Side:               types.SideBuy,
		OrderType:          "LIMIT",
		Quantity:           10,
		Price:              100,
		Status:             status,
	}
	require.NoError(t, d.CreateOrder(context.Background(), order))
	return order
}

func TestGetOrderNotFoundReturnsNil(t *testing.T) {
	d := newTestDatabase(t)

	order, err := d.GetOrder(context.Background(), 12345)
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestGetActiveConnectionFiltersInactive(t *testing.T) {
	d := newTestDatabase(t)
	active := seedConnection(t, d, true)
	inactive := seedConnection(t, d, false)

	conn, err := d.GetActiveConnection(context.Background(), active.ID)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, active.ID, conn.ID)

	conn, err = d.GetActiveConnection(context.Background(), inactive.ID)
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestUpdateOrderPersistsAllFields(t *testing.T) {
	d := newTestDatabase(t)
	conn := seedConnection(t, d, true)
	order := seedOrder(t, d, conn.ID, types.StatusOpen, "BRK-1")

	pnl := -1015.00
	err := d.UpdateOrder(context.Background(), order.ID, reconcile.OrderUpdate{
		Status:           types.StatusComplete,
		ExecutedPrice:    101.5,
		ExecutedQuantity: 10,
		StatusMessage:    `{"status":"COMPLETE"}`,
		PnL:              &pnl,
	})
	require.NoError(t, err)

	got, err := d.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.StatusComplete, got.Status)
	assert.Equal(t, 101.5, got.ExecutedPrice)
	assert.Equal(t, 10.0, got.ExecutedQuantity)
	assert.Equal(t, -1015.00, got.PnL)
	assert.Equal(t, `{"status":"COMPLETE"}`, got.StatusMessage)
}

func TestUpdateOrderWithoutPnLLeavesItUntouched(t *testing.T) {
	d := newTestDatabase(t)
	conn := seedConnection(t, d, true)
	order := seedOrder(t, d, conn.ID, types.StatusPending, "BRK-2")

	err := d.UpdateOrder(context.Background(), order.ID, reconcile.OrderUpdate{
		Status:        types.StatusOpen,
		StatusMessage: `{"status":"OPEN"}`,
	})
	require.NoError(t, err)

	got, err := d.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, got.Status)
	assert.Zero(t, got.PnL)
}

func TestUpdateOrderMissingOrderErrors(t *testing.T) {
	d := newTestDatabase(t)

	err := d.UpdateOrder(context.Background(), 999, reconcile.OrderUpdate{Status: types.StatusOpen})
	assert.Error(t, err)
}

func TestListOpenOrdersWithConnections(t *testing.T) {
	d := newTestDatabase(t)
	ctx := context.Background()

	active := seedConnection(t, d, true)
	inactive := seedConnection(t, d, false)

	watchable := seedOrder(t, d, active.ID, types.StatusOpen, "BRK-1")
	seedOrder(t, d, active.ID, types.StatusPending, "BRK-2")
	seedOrder(t, d, active.ID, types.StatusComplete, "BRK-3") // terminal
	seedOrder(t, d, active.ID, types.StatusOpen, "")          // never accepted by broker
	seedOrder(t, d, inactive.ID, types.StatusOpen, "BRK-4")   // connection inactive

	open, err := d.ListOpenOrdersWithConnections(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)

	ids := []uint{open[0].Order.ID, open[1].Order.ID}
	assert.Contains(t, ids, watchable.ID)
	for _, row := range open {
		assert.Equal(t, active.ID, row.Connection.ID)
		assert.True(t, row.Connection.IsActive)
		assert.NotEmpty(t, row.Order.BrokerOrderID)
	}
}
