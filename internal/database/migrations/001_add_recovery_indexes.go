package migrations

import (
	"gorm.io/gorm"
)

// AddRecoveryIndexes creates the indexes backing the startup recovery sweep,
// which joins open orders against active broker connections.
func AddRecoveryIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for the recovery sweep's filter on open orders
		// that already carry a broker order id
		`CREATE INDEX IF NOT EXISTS idx_orders_status_broker_order_id
		 ON orders(status, broker_order_id)`,

		// Index for joining orders onto their broker connection
		`CREATE INDEX IF NOT EXISTS idx_orders_broker_connection_id
		 ON orders(broker_connection_id)`,

		// Index for active-connection lookups
		`CREATE INDEX IF NOT EXISTS idx_broker_connections_is_active
		 ON broker_connections(is_active)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
