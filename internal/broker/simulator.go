package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/autotrader-api/internal/types"
)

// SimulatedGateway mimics a broker for local runs: each watched order stays
// OPEN for a few polls, then completes near its declared price. Safe for
// concurrent use.
type SimulatedGateway struct {
	// PollsUntilComplete is how many status fetches an order reports OPEN
	// before it flips to COMPLETE.
	PollsUntilComplete int
	// MinLatency/MaxLatency bound the simulated network delay per call.
	MinLatency time.Duration
	MaxLatency time.Duration

	mu    sync.Mutex
	polls map[string]int
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		PollsUntilComplete: 3,
		MinLatency:         5 * time.Millisecond,
		MaxLatency:         30 * time.Millisecond,
		polls:              make(map[string]int),
	}
}

func (g *SimulatedGateway) Name() string {
	return "simulator"
}

func (g *SimulatedGateway) FetchOrderStatus(ctx context.Context, conn *types.BrokerConnection, brokerOrderID string) (*OrderSnapshot, error) {
	g.sleep(ctx)

	g.mu.Lock()
	g.polls[brokerOrderID]++
	n := g.polls[brokerOrderID]
	g.mu.Unlock()

	logger := log.With().
		Str("component", "simulated_gateway").
		Str("broker_order_id", brokerOrderID).
		Int("poll", n).
		Logger()

	if n < g.PollsUntilComplete {
		logger.Debug().Msg("order still open")
		return &OrderSnapshot{
			Status: "OPEN",
			Raw:    fmt.Sprintf(`{"order_id":%q,"status":"OPEN"}`, brokerOrderID),
		}, nil
	}

	// Fill near the declared price with a small variance, like a real venue.
	price := 100 + rand.Float64()*4 - 2
	qty := float64(10)

	logger.Info().Float64("average_price", price).Msg("order executed")
	return &OrderSnapshot{
		Status:         "EXECUTED",
		AveragePrice:   price,
		FilledQuantity: qty,
		Raw:            fmt.Sprintf(`{"order_id":%q,"status":"EXECUTED","average_price":%.2f}`, brokerOrderID, price),
	}, nil
}

func (g *SimulatedGateway) FetchPositions(ctx context.Context, conn *types.BrokerConnection) ([]PositionSnapshot, error) {
	g.sleep(ctx)
	return []PositionSnapshot{
		{
			Symbol:       "RELIANCE",
			Exchange:     "NSE",
			Product:      "MIS",
			Quantity:     10,
			AveragePrice: 100,
			LastPrice:    101.5,
			PnL:          15,
		},
	}, nil
}

func (g *SimulatedGateway) sleep(ctx context.Context) {
	if g.MaxLatency <= g.MinLatency {
		return
	}
	latency := g.MinLatency + time.Duration(rand.Int63n(int64(g.MaxLatency-g.MinLatency)))
	select {
	case <-ctx.Done():
	case <-time.After(latency):
	}
}
