package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"papertrade/internal/domain"
	"papertrade/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strategiesYAML = `strategies:
  - name: sentiment-core
    type: sentiment
    allocation_pct: 0.4
    max_positions: 5
    params:
      stop_loss_pct: 0.05
      min_confidence: 0.7
  - name: momentum-swing
    type: momentum
    allocation_pct: 0.3
    max_positions: 3
`

func writeStrategies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistrySyncsFileIntoStore(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	path := writeStrategies(t, strategiesYAML)

	_, err := NewRegistry(ctx, path, st)
	require.NoError(t, err)

	stored, err := st.Strategies().List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	core, err := st.Strategies().FindByName(ctx, "sentiment-core")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTypeSentiment, core.Type)
	assert.InDelta(t, 0.4, core.AllocationPct, 1e-9)
	assert.Equal(t, 5, core.MaxPositions)
	assert.True(t, core.Active)
	assert.InDelta(t, 0.05, core.Params.StopLossPct, 1e-9)
	assert.InDelta(t, 0.7, core.Params.MinConfidence, 1e-9)
	// Unset fields come from the defaults.
	assert.InDelta(t, DefaultParams().TakeProfitPct, core.Params.TakeProfitPct, 1e-9)
}

func TestRegistryResyncUpdatesAndDeactivates(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	path := writeStrategies(t, strategiesYAML)

	reg, err := NewRegistry(ctx, path, st)
	require.NoError(t, err)

	// Removing momentum-swing and retuning sentiment-core: the removed
	// strategy is deactivated, never deleted.
	updated := `strategies:
  - name: sentiment-core
    type: sentiment
    allocation_pct: 0.5
    max_positions: 8
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, reg.Sync(ctx))

	core, err := st.Strategies().FindByName(ctx, "sentiment-core")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, core.AllocationPct, 1e-9)
	assert.Equal(t, 8, core.MaxPositions)

	swing, err := st.Strategies().FindByName(ctx, "momentum-swing")
	require.NoError(t, err)
	assert.False(t, swing.Active)

	stored, err := st.Strategies().List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRegistrySkipsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	path := writeStrategies(t, `strategies:
  - name: good
    type: sentiment
    allocation_pct: 0.2
    max_positions: 2
  - name: bad-type
    type: arbitrage
    allocation_pct: 0.2
    max_positions: 2
  - name: bad-allocation
    type: sentiment
    allocation_pct: 1.5
    max_positions: 2
`)

	_, err := NewRegistry(ctx, path, st)
	require.NoError(t, err)

	stored, err := st.Strategies().List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "good", stored[0].Name)
}

func TestRegistryRejectsUnknownYAMLKeys(t *testing.T) {
	st := memstore.New()
	path := writeStrategies(t, "strategy_list:\n  - name: x\n")
	_, err := NewRegistry(context.Background(), path, st)
	assert.Error(t, err)
}
