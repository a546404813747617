// Simulation drives the reconciliation engine end to end against the
// simulated broker: it seeds a ledger with open orders, runs the recovery
// sweep, and reports the ledger once every watch has finished.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/autotrader-api/internal/broker"
	"github.com/ksred/autotrader-api/internal/database"
	"github.com/ksred/autotrader-api/internal/ledger"
	"github.com/ksred/autotrader-api/internal/portfolio"
	"github.com/ksred/autotrader-api/internal/reconcile"
	"github.com/ksred/autotrader-api/internal/types"
)

const simOrders = 5

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	dbPath := "simulation.db"
	_ = os.Remove(dbPath)

	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize database")
	}

	ctx := context.Background()
	store := ledger.NewDatabase(db)

	conn := &types.BrokerConnection{
		UserID:     1,
		BrokerName: "simulator",
		IsActive:   true,
	}
	if err := store.CreateConnection(ctx, conn); err != nil {
		zlog.Fatal().Err(err).Msg("failed to seed broker connection")
	}

	sides := []types.OrderSide{types.SideBuy, types.SideSell}
	for i := 0; i < simOrders; i++ {
		order := &types.Order{
			UserID:             1,
			BrokerConnectionID: conn.ID,
			BrokerOrderID:      fmt.Sprintf("SIM-%04d", i+1),
			Symbol:             "RELIANCE",
			Side:               sides[i%2],
			OrderType:          "LIMIT",
			Quantity:           10,
			Price:              100,
			Status:             types.StatusOpen,
		}
		if err := store.CreateOrder(ctx, order); err != nil {
			zlog.Fatal().Err(err).Msg("failed to seed order")
		}
	}
	zlog.Info().Int("orders", simOrders).Msg("ledger seeded")

	gateways := broker.NewRegistry(broker.NewSimulatedGateway())
	positions := portfolio.NewService(db, gateways)
	checker := reconcile.NewChecker(store, gateways, positions)

	cfg := reconcile.Config{
		PollInterval:      200 * time.Millisecond,
		ErrorInterval:     400 * time.Millisecond,
		WatchTimeout:      time.Minute,
		MaxRecoveryJitter: 500 * time.Millisecond,
	}
	supervisor := reconcile.NewSupervisor(checker, store, cfg)

	if err := supervisor.RecoverOpenWatches(ctx); err != nil {
		zlog.Fatal().Err(err).Msg("recovery sweep failed")
	}

	// Wait for every order to settle, then shut the engine down
	deadline := time.After(30 * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-deadline:
			zlog.Warn().Msg("simulation timed out waiting for watches")
			break wait
		case <-ticker.C:
			open, err := store.ListOpenOrdersWithConnections(ctx)
			if err != nil {
				zlog.Fatal().Err(err).Msg("failed to list open orders")
			}
			if len(open) == 0 && supervisor.GetStatus().ActiveCount == 0 {
				break wait
			}
		}
	}

	supervisor.ShutdownAll()

	for i := 0; i < simOrders; i++ {
		order, err := store.GetOrder(ctx, uint(i+1))
		if err != nil || order == nil {
			continue
		}
		zlog.Info().
			Uint("order_id", order.ID).
			Str("broker_order_id", order.BrokerOrderID).
			Str("side", string(order.Side)).
			Str("status", string(order.Status)).
			Float64("executed_price", order.ExecutedPrice).
			Float64("executed_quantity", order.ExecutedQuantity).
			Float64("pnl", order.PnL).
			Msg("final order state")
	}

	zlog.Info().Msg("simulation complete")
}
