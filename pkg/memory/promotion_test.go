package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluatePromotion(t *testing.T) {
	policy := DefaultPromotionPolicy()

	t.Run("trusted above threshold promotes", func(t *testing.T) {
		ev := &ObservationEvent{TrustClass: TrustTrusted, Confidence: 0.9}
		result := EvaluatePromotion(ev, policy)
		assert.True(t, result.Promoted)
		assert.Empty(t, result.Reason)
		assert.Equal(t, ClassInformational, result.Class)
	})

	t.Run("system trust promotes", func(t *testing.T) {
		ev := &ObservationEvent{TrustClass: TrustSystem, Confidence: 0.8}
		assert.True(t, EvaluatePromotion(ev, policy).Promoted)
	})

	t.Run("untrusted never auto promotes regardless of confidence", func(t *testing.T) {
		ev := &ObservationEvent{TrustClass: TrustUntrusted, Confidence: 0.99}
		result := EvaluatePromotion(ev, policy)
		assert.False(t, result.Promoted)
		assert.Equal(t, ReasonTrustRequiresApproval, result.Reason)
	})

	t.Run("trusted below confidence threshold is held", func(t *testing.T) {
		ev := &ObservationEvent{TrustClass: TrustTrusted, Confidence: 0.5}
		result := EvaluatePromotion(ev, policy)
		assert.False(t, result.Promoted)
		assert.Equal(t, ReasonBelowConfidence, result.Reason)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		ev := &ObservationEvent{TrustClass: TrustTrusted, Confidence: 0.7}
		assert.True(t, EvaluatePromotion(ev, policy).Promoted)
	})
}

func TestClassify(t *testing.T) {
	trusted := func(signals []Signal) *ObservationEvent {
		return &ObservationEvent{TrustClass: TrustTrusted, Confidence: 0.9, Signals: signals}
	}
	policy := DefaultPromotionPolicy()

	t.Run("no signals is informational", func(t *testing.T) {
		assert.Equal(t, ClassInformational, EvaluatePromotion(trusted(nil), policy).Class)
	})

	t.Run("blocker or risk is warning", func(t *testing.T) {
		blocker := []Signal{{Type: SignalBlocker, Confidence: 0.8}}
		assert.Equal(t, ClassWarning, EvaluatePromotion(trusted(blocker), policy).Class)

		mixed := []Signal{{Type: SignalUpsell}, {Type: SignalRisk}}
		assert.Equal(t, ClassWarning, EvaluatePromotion(trusted(mixed), policy).Class)
	})

	t.Run("other signals are operational", func(t *testing.T) {
		signals := []Signal{{Type: SignalImprovement}, {Type: SignalUpsell}}
		assert.Equal(t, ClassOperational, EvaluatePromotion(trusted(signals), policy).Class)
	})
}
