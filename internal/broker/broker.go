// Package broker defines the Gateway interface for polling broker-side order
// state and provides the implementations the reconciliation engine resolves at
// runtime.
package broker

import (
	"context"
	"errors"
	"strings"

	"github.com/ksred/autotrader-api/internal/types"
)

var (
	// ErrUnsupportedBroker is returned when no gateway is registered for a
	// connection's broker name. This is a capability gap, not a transient
	// failure: a watch hitting it must stop rather than retry.
	ErrUnsupportedBroker = errors.New("unsupported broker")

	// ErrAuthExpired marks credential problems (invalid or expired tokens).
	// Watches treat it as unrecoverable; a credential refresh plus a new
	// watch is required.
	ErrAuthExpired = errors.New("broker credentials invalid or expired")
)

// IsAuthError reports whether err carries authentication/expiry semantics.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// OrderSnapshot is the broker's current reported state for one order.
// Status is the broker's raw vocabulary, not the canonical one.
type OrderSnapshot struct {
	Status         string
	AveragePrice   float64
	FilledQuantity float64
	Price          float64
	Quantity       float64
	Raw            string // last raw payload, kept on the order as an audit trail
}

// PositionSnapshot is one broker-side net position.
type PositionSnapshot struct {
	Symbol       string
	Exchange     string
	Product      string
	Quantity     float64
	AveragePrice float64
	LastPrice    float64
	PnL          float64
}

// Gateway abstracts one broker's polling API.
type Gateway interface {
	// Name returns the broker identifier the gateway serves (e.g. "zerodha").
	Name() string

	// FetchOrderStatus returns the broker's latest snapshot for the order,
	// or (nil, nil) when the broker has no data yet.
	FetchOrderStatus(ctx context.Context, conn *types.BrokerConnection, brokerOrderID string) (*OrderSnapshot, error)

	// FetchPositions returns the connection's current net positions.
	FetchPositions(ctx context.Context, conn *types.BrokerConnection) ([]PositionSnapshot, error)
}

// Registry resolves broker names to gateway implementations.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry builds a registry from the given gateways, keyed by Name.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.gateways[strings.ToLower(g.Name())] = g
	}
	return r
}

// Resolve returns the gateway for a broker name, case-insensitively.
func (r *Registry) Resolve(brokerName string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(brokerName)]
	if !ok {
		return nil, ErrUnsupportedBroker
	}
	return g, nil
}
