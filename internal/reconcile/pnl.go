package reconcile

import (
	"math"

	"github.com/ksred/autotrader-api/internal/types"
)

// ComputePnL returns the realized cashflow of a completed order, rounded to
// two decimals: negative for buys (cash out), positive for sells (cash in).
// This is a one-sided cashflow, not P&L netted against a prior position.
// Returns 0 when the intended price, executed price, or executed quantity is
// missing, since nothing meaningful can be computed.
func ComputePnL(side types.OrderSide, intendedPrice, executedPrice, executedQuantity float64) float64 {
	if intendedPrice == 0 || executedPrice == 0 || executedQuantity == 0 {
		return 0
	}

	pnl := executedPrice * executedQuantity
	if side == types.SideBuy {
		pnl = -pnl
	}
	return math.Round(pnl*100) / 100
}
