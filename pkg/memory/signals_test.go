package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSignals(t *testing.T) {
	t.Run("neutral summary has no signals", func(t *testing.T) {
		assert.Empty(t, DeriveSignals("shipped the weekly report"))
	})

	t.Run("matching is case insensitive", func(t *testing.T) {
		signals := DeriveSignals("Deployment BLOCKED on credentials")
		require.Len(t, signals, 1)
		assert.Equal(t, SignalBlocker, signals[0].Type)
		assert.Equal(t, "blocked", signals[0].Label)
		assert.Equal(t, 0.8, signals[0].Confidence)
	})

	t.Run("at most one signal per type", func(t *testing.T) {
		signals := DeriveSignals("blocked and stuck, cannot proceed")
		require.Len(t, signals, 1)
		assert.Equal(t, SignalBlocker, signals[0].Type)
	})

	t.Run("stable order across types", func(t *testing.T) {
		signals := DeriveSignals("customer wants an upgrade but the rollout is stuck and there is churn risk; we should automate the fix")
		require.Len(t, signals, 4)
		assert.Equal(t, SignalBlocker, signals[0].Type)
		assert.Equal(t, SignalRisk, signals[1].Type)
		assert.Equal(t, SignalUpsell, signals[2].Type)
		assert.Equal(t, SignalImprovement, signals[3].Type)
	})

	t.Run("fixed per-type confidences", func(t *testing.T) {
		risk := DeriveSignals("there is a deadline concern")
		require.Len(t, risk, 1)
		assert.Equal(t, 0.75, risk[0].Confidence)

		upsell := DeriveSignals("they asked about additional seats")
		require.Len(t, upsell, 1)
		assert.Equal(t, 0.6, upsell[0].Confidence)
	})
}
