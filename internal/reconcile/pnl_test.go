package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ksred/autotrader-api/internal/types"
)

func TestComputePnLSignConvention(t *testing.T) {
	assert.Equal(t, -1050.00, ComputePnL(types.SideBuy, 100, 105, 10))
	assert.Equal(t, 1050.00, ComputePnL(types.SideSell, 100, 105, 10))
}

func TestComputePnLMissingInputs(t *testing.T) {
	assert.Zero(t, ComputePnL(types.SideBuy, 0, 105, 10), "market order without intended price")
	assert.Zero(t, ComputePnL(types.SideBuy, 100, 0, 10))
	assert.Zero(t, ComputePnL(types.SideSell, 100, 105, 0))
}

func TestComputePnLRounding(t *testing.T) {
	assert.Equal(t, 304.99, ComputePnL(types.SideSell, 100, 101.663, 3))
	assert.Equal(t, -304.99, ComputePnL(types.SideBuy, 100, 101.663, 3))
}
