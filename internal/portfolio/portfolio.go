// Package portfolio keeps the local position ledger in line with the
// broker's reported holdings.
package portfolio

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/types"
)

// Service fetches a connection's net positions from its broker and replaces
// the stored rows. It implements the reconciliation engine's PositionSyncer.
type Service struct {
	db       *Database
	gateways *broker.Registry
}

func NewService(gormDB *gorm.DB, gateways *broker.Registry) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		gateways: gateways,
	}
}

// Sync pulls current positions through the connection's gateway and persists
// them, updating the connection's last-sync timestamp.
func (s *Service) Sync(ctx context.Context, conn *types.BrokerConnection) error {
	logger := log.With().
		Str("component", "portfolio_sync").
		Uint("connection_id", conn.ID).
		Str("broker", conn.BrokerName).
		Logger()

	gateway, err := s.gateways.Resolve(conn.BrokerName)
	if err != nil {
		return err
	}

	positions, err := gateway.FetchPositions(ctx, conn)
	if err != nil {
		return err
	}

	if err := s.db.ReplacePositions(ctx, conn, positions); err != nil {
		return err
	}

	logger.Info().Int("positions", len(positions)).Msg("positions synced")
	return nil
}
