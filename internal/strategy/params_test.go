package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamsAppliesDefaults(t *testing.T) {
	params, err := ParseParams(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), params)

	params, err = ParseParams(map[string]any{"stop_loss_pct": 0.08})
	require.NoError(t, err)
	assert.InDelta(t, 0.08, params.StopLossPct, 1e-9)
	assert.InDelta(t, DefaultParams().TakeProfitPct, params.TakeProfitPct, 1e-9)
	assert.InDelta(t, DefaultParams().MinConfidence, params.MinConfidence, 1e-9)
}

func TestParseParamsAcceptsIntegerScalars(t *testing.T) {
	params, err := ParseParams(map[string]any{"max_hold_hours": 48})
	require.NoError(t, err)
	assert.InDelta(t, 48.0, params.MaxHoldHours, 1e-9)
}

func TestParseParamsRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
	}{
		{"negative stop", map[string]any{"stop_loss_pct": -0.1}},
		{"stop at 100 percent", map[string]any{"stop_loss_pct": 1.0}},
		{"trailing at 100 percent", map[string]any{"trailing_stop_pct": 1.0}},
		{"zero position size", map[string]any{"position_size_pct": 0.0}},
		{"oversized position", map[string]any{"position_size_pct": 1.5}},
		{"confidence above one", map[string]any{"min_confidence": 1.2}},
		{"unknown key", map[string]any{"stop_pct": 0.05}},
		{"wrong type", map[string]any{"stop_loss_pct": "tight"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseParams(tc.raw)
			assert.Error(t, err)
		})
	}
}
