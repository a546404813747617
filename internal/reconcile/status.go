// Package reconcile keeps the local order ledger synchronized with the
// broker's authoritative order state. It polls each watched order until the
// order reaches a terminal status, survives process restarts via a recovery
// sweep, and guarantees at most one active watch per order.
package reconcile

import (
	"strings"

	"github.com/ksred/autotrader-api/internal/types"
)

// brokerStatusMap translates the broker vocabularies we have seen onto the
// canonical set.
var brokerStatusMap = map[string]types.OrderStatus{
	"COMPLETE":  types.StatusComplete,
	"EXECUTED":  types.StatusComplete,
	"OPEN":      types.StatusOpen,
	"PENDING":   types.StatusPending,
	"CANCELLED": types.StatusCancelled,
	"CANCELED":  types.StatusCancelled,
	"REJECTED":  types.StatusRejected,
	"FAILED":    types.StatusRejected,
}

// MapBrokerStatus maps a raw broker-reported status onto the canonical set,
// case-insensitively. Unrecognized input maps to PENDING, never to a terminal
// status: an unknown broker state must not finalize an order.
func MapBrokerStatus(raw string) types.OrderStatus {
	if status, ok := brokerStatusMap[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return types.StatusPending
}
