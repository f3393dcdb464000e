package memory

import "time"

// TrustClass buckets an observation's provenance for promotion gating.
type TrustClass string

const (
	TrustTrusted   TrustClass = "trusted"
	TrustSystem    TrustClass = "system"
	TrustUntrusted TrustClass = "untrusted"
)

// EventStatus tracks whether an observation reached curated memory.
type EventStatus string

const (
	StatusAccepted      EventStatus = "accepted"
	StatusPendingReview EventStatus = "pending_review"
)

// EventType distinguishes conversational deltas from scheduled ones.
type EventType string

const (
	EventWorkflowDelta EventType = "workflow.delta"
	EventPollingDelta  EventType = "polling.delta"
)

// SignalType classifies a heuristic marker found in an observation summary.
type SignalType string

const (
	SignalBlocker     SignalType = "blocker"
	SignalRisk        SignalType = "risk"
	SignalUpsell      SignalType = "upsell"
	SignalImprovement SignalType = "improvement"
)

// Signal is one derived marker with its own confidence.
type Signal struct {
	Type       SignalType `json:"type"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
}

// ObservationEvent is the normalized record of one detected workflow delta.
// Events are immutable once appended: never mutated or deleted, only archived
// by compaction.
type ObservationEvent struct {
	ID             string                 `json:"id"`
	ProjectID      string                 `json:"project_id"`
	GroupID        string                 `json:"group_id"`
	SessionKey     string                 `json:"session_key"`
	EventType      EventType              `json:"event_type"`
	Source         string                 `json:"source"`
	SourceRef      string                 `json:"source_ref,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
	ProjectTags    []string               `json:"project_tags,omitempty"`
	RoleTags       []string               `json:"role_tags,omitempty"`
	WorkflowStage  string                 `json:"workflow_stage,omitempty"`
	DecisionRef    string                 `json:"decision_ref,omitempty"`
	Summary        string                 `json:"summary"`
	Confidence     float64                `json:"confidence"`
	TrustClass     TrustClass             `json:"trust_class"`
	Status         EventStatus            `json:"status"`
	Category       string                 `json:"category,omitempty"`
	Rationale      string                 `json:"rationale,omitempty"`
	ProvenanceRefs []string               `json:"provenance_refs,omitempty"`
	Signals        []Signal               `json:"signals,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// PromotionClass ranks a promoted entry for curated-memory consumers.
type PromotionClass string

const (
	ClassInformational PromotionClass = "informational"
	ClassOperational   PromotionClass = "operational"
	ClassWarning       PromotionClass = "warning"
)

// PromotionResult is the structured outcome of one promotion decision.
// Denial is not an error; callers branch on Promoted.
type PromotionResult struct {
	Promoted bool           `json:"promoted"`
	Reason   string         `json:"reason,omitempty"`
	Class    PromotionClass `json:"promotion_class,omitempty"`
}

// PromotionPolicy gates which observations auto-promote into curated memory.
type PromotionPolicy struct {
	AutoPromoteTrust         []TrustClass `json:"auto_promote_trust" mapstructure:"auto_promote_trust"`
	MinConfidenceAutoPromote float64      `json:"min_confidence_auto_promote" mapstructure:"min_confidence_auto_promote"`
}

// DefaultPromotionPolicy trusts trusted and system provenance at 0.7.
func DefaultPromotionPolicy() PromotionPolicy {
	return PromotionPolicy{
		AutoPromoteTrust:         []TrustClass{TrustTrusted, TrustSystem},
		MinConfidenceAutoPromote: 0.7,
	}
}

// CompressionOptions bounds the live history during compaction.
type CompressionOptions struct {
	MaxLines      int    `json:"max_lines" mapstructure:"max_lines"`
	MaxBytes      int64  `json:"max_bytes" mapstructure:"max_bytes"`
	MinAgeMinutes int    `json:"min_age_minutes" mapstructure:"min_age_minutes"`
	KeepLastLines int    `json:"keep_last_lines" mapstructure:"keep_last_lines"`
	SnapshotDir   string `json:"snapshot_dir" mapstructure:"snapshot_dir"`
}

// CompressionResult reports one compaction attempt.
type CompressionResult struct {
	Compressed    bool   `json:"compressed"`
	Reason        string `json:"reason,omitempty"`
	SnapshotPath  string `json:"snapshot_path,omitempty"`
	ArchivedLines int    `json:"archived_lines,omitempty"`
	LiveLines     int    `json:"live_lines,omitempty"`
}

// Filter narrows query results. All set fields combine with logical AND; a
// zero field imposes no constraint.
type Filter struct {
	ProjectID  string
	GroupID    string
	SessionKey string
	Source     string
	TrustClass TrustClass
	SignalType SignalType
	ProjectTag string
	Status     EventStatus
}

// Matches reports whether the event satisfies every set constraint.
func (f *Filter) Matches(ev *ObservationEvent) bool {
	if f == nil {
		return true
	}
	if f.ProjectID != "" && ev.ProjectID != f.ProjectID {
		return false
	}
	if f.GroupID != "" && ev.GroupID != f.GroupID {
		return false
	}
	if f.SessionKey != "" && ev.SessionKey != f.SessionKey {
		return false
	}
	if f.Source != "" && ev.Source != f.Source {
		return false
	}
	if f.TrustClass != "" && ev.TrustClass != f.TrustClass {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	if f.SignalType != "" {
		found := false
		for _, sig := range ev.Signals {
			if sig.Type == f.SignalType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ProjectTag != "" {
		found := false
		for _, tag := range ev.ProjectTags {
			if tag == f.ProjectTag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
