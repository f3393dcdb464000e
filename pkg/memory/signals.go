package memory

import "strings"

// signalMarkers maps each signal type to the summary substrings that imply
// it. Matching is case-insensitive and first-marker-wins per type.
var signalMarkers = map[SignalType][]string{
	SignalBlocker:     {"blocked", "blocker", "cannot proceed", "stuck", "waiting on", "hard stop"},
	SignalRisk:        {"risk", "concern", "might fail", "deadline", "churn", "escalat", "unstable"},
	SignalUpsell:      {"upsell", "expansion", "additional seats", "upgrade", "new use case", "interested in"},
	SignalImprovement: {"improve", "optimize", "refactor", "streamline", "follow up", "automate"},
}

// signalConfidence is the base confidence assigned to a heuristic match.
var signalConfidence = map[SignalType]float64{
	SignalBlocker:     0.8,
	SignalRisk:        0.75,
	SignalUpsell:      0.6,
	SignalImprovement: 0.6,
}

// DeriveSignals scans a summary for heuristic markers and returns at most one
// signal per type, in a stable blocker/risk/upsell/improvement order.
func DeriveSignals(summary string) []Signal {
	lowered := strings.ToLower(summary)

	var signals []Signal
	for _, st := range []SignalType{SignalBlocker, SignalRisk, SignalUpsell, SignalImprovement} {
		for _, marker := range signalMarkers[st] {
			if strings.Contains(lowered, marker) {
				signals = append(signals, Signal{
					Type:       st,
					Label:      marker,
					Confidence: signalConfidence[st],
				})
				break
			}
		}
	}
	return signals
}
