package memory

// Promotion denial reasons. These are structured results, not errors.
const (
	ReasonTrustRequiresApproval = "trust_requires_approval"
	ReasonBelowConfidence       = "below_confidence_threshold"
)

// EvaluatePromotion decides whether an event derives a curated-memory entry.
// Pure: the decision is made once at append time and never re-evaluated.
func EvaluatePromotion(ev *ObservationEvent, policy PromotionPolicy) PromotionResult {
	eligible := false
	for _, trust := range policy.AutoPromoteTrust {
		if trust == ev.TrustClass {
			eligible = true
			break
		}
	}
	if !eligible {
		return PromotionResult{Promoted: false, Reason: ReasonTrustRequiresApproval}
	}

	if ev.Confidence < policy.MinConfidenceAutoPromote {
		return PromotionResult{Promoted: false, Reason: ReasonBelowConfidence}
	}

	return PromotionResult{Promoted: true, Class: classify(ev.Signals)}
}

// classify ranks promoted entries: warning beats operational beats
// informational.
func classify(signals []Signal) PromotionClass {
	if len(signals) == 0 {
		return ClassInformational
	}
	for _, sig := range signals {
		if sig.Type == SignalBlocker || sig.Type == SignalRisk {
			return ClassWarning
		}
	}
	return ClassOperational
}
