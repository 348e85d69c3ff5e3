package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckExitScenarios(t *testing.T) {
	reason, pct := CheckExit(100, 103, 0.03, 0.05)
	assert.Equal(t, ExitProfit, reason)
	assert.InDelta(t, 0.03, pct, 1e-12)

	reason, _ = CheckExit(100, 94.9, 0.03, 0.05)
	assert.Equal(t, ExitStopLoss, reason)

	reason, pct = CheckExit(100, 98, 0.03, 0.05)
	assert.Equal(t, ExitNone, reason)
	assert.InDelta(t, -0.02, pct, 1e-12)

	reason, _ = CheckExit(100, 95, 0.03, 0.05)
	assert.Equal(t, ExitStopLoss, reason, "stop loss boundary is inclusive")
}

func TestCheckExitWithoutEntry(t *testing.T) {
	reason, pct := CheckExit(0, 50, 0.03, 0.05)
	assert.Equal(t, ExitNone, reason)
	assert.Equal(t, 0.0, pct)
}

func TestTargetPrices(t *testing.T) {
	target, stop := TargetPrices(2, 0.03, 0.05)
	assert.InDelta(t, 2.06, target, 1e-12)
	assert.InDelta(t, 1.9, stop, 1e-12)
}
