package portfolio

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// ReplacePositions swaps the connection's stored positions for the broker's
// current snapshot and stamps the connection's last sync time, all in one
// transaction.
func (d *Database) ReplacePositions(ctx context.Context, conn *types.BrokerConnection, positions []broker.PositionSnapshot) error {
	tx := d.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("broker_connection_id = ?", conn.ID).
		Delete(&types.Position{}).Error; err != nil {
		tx.Rollback()
		return err
	}

	for _, p := range positions {
		row := types.Position{
			UserID:             conn.UserID,
			BrokerConnectionID: conn.ID,
			Symbol:             p.Symbol,
			Exchange:           p.Exchange,
			Product:            p.Product,
			Quantity:           p.Quantity,
			AveragePrice:       p.AveragePrice,
			CurrentPrice:       p.LastPrice,
			PnL:                p.PnL,
		}
		if err := tx.Create(&row).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	now := time.Now()
	if err := tx.Model(&types.BrokerConnection{}).
		Where("id = ?", conn.ID).
		Update("last_sync_at", &now).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// ListPositions returns the stored positions for a connection.
func (d *Database) ListPositions(ctx context.Context, connectionID uint) ([]types.Position, error) {
	var positions []types.Position
	err := d.db.WithContext(ctx).
		Where("broker_connection_id = ?", connectionID).
		Find(&positions).Error
	return positions, err
}
