package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/lunahq/orbiter/pkg/routing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conversational-path defaults.
const (
	defaultInboundConfidence = 0.75
	inboundPromoteFloor      = 0.7
	defaultPollingConfidence = 0.8
)

// ValidationError reports a missing partition key on a scheduled observation.
// These fail fast and are never retried; the caller must supply a valid
// partition.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Partition scopes an observation to a project, group and session.
type Partition struct {
	ProjectID  string
	GroupID    string
	SessionKey string
}

// RunLog identifies one scheduled job execution feeding the pipeline.
type RunLog struct {
	ProjectID  string
	GroupID    string
	SessionKey string
	Source     string
	SourceRef  string
	OccurredAt time.Time
}

// Payload is the observed content of a run or inbound message.
type Payload struct {
	Summary       string
	Confidence    float64
	TrustClass    memory.TrustClass
	Category      string
	Rationale     string
	WorkflowStage string
	DecisionRef   string
	ProjectTags   []string
	RoleTags      []string
	Metadata      map[string]interface{}
}

// Pipeline normalizes conversational and scheduled activity into observation
// store writes and owns the periodic compaction entry point.
type Pipeline struct {
	store    *memory.Store
	policy   memory.PromotionPolicy
	compress memory.CompressionOptions
	logger   zerolog.Logger
}

// New constructs a pipeline over the given store.
func New(store *memory.Store, policy memory.PromotionPolicy, compress memory.CompressionOptions) *Pipeline {
	return &Pipeline{
		store:    store,
		policy:   policy,
		compress: compress,
		logger:   log.With().Str("component", "pipeline").Logger(),
	}
}

// Store exposes the underlying observation store for query surfaces.
func (p *Pipeline) Store() *memory.Store {
	return p.store
}

// RecordInboundObservation captures a conversational envelope as a workflow
// delta. Trust defaults to trusted (envelope metadata may override),
// confidence to 0.75, and the auto-promote confidence floor is forced to at
// least 0.7 for this path.
func (p *Pipeline) RecordInboundObservation(env routing.Envelope, part Partition) (memory.ObservationEvent, memory.PromotionResult, error) {
	trust := memory.TrustTrusted
	if raw, ok := env.Raw["trust_class"].(string); ok && raw != "" {
		trust = memory.TrustClass(raw)
	}

	sourceRef := env.ThreadID
	if sourceRef == "" {
		sourceRef = env.SourceID
	}

	projectTags := []string{part.GroupID}
	roleTags := []string{"operator"}

	ev := memory.ObservationEvent{
		ProjectID:   part.ProjectID,
		GroupID:     part.GroupID,
		SessionKey:  part.SessionKey,
		EventType:   memory.EventWorkflowDelta,
		Source:      env.ChannelID,
		SourceRef:   sourceRef,
		OccurredAt:  env.Timestamp,
		ProjectTags: projectTags,
		RoleTags:    roleTags,
		Summary:     env.Content,
		Confidence:  defaultInboundConfidence,
		TrustClass:  trust,
		Metadata: map[string]interface{}{
			"sender_id":   env.SenderID,
			"sender_name": env.SenderName,
			"is_group":    env.IsGroup,
		},
	}

	policy := p.policy
	if policy.MinConfidenceAutoPromote < inboundPromoteFloor {
		policy.MinConfidenceAutoPromote = inboundPromoteFloor
	}

	return p.store.AppendObservation(ev, &policy)
}

// RecordPollingRun captures a scheduled job result as a polling delta.
// Scheduled observations must be explicitly partitioned: a blank projectID,
// groupID or sessionKey is a ValidationError and nothing is appended.
func (p *Pipeline) RecordPollingRun(run RunLog, payload Payload) (memory.ObservationEvent, memory.PromotionResult, error) {
	if run.ProjectID == "" {
		return memory.ObservationEvent{}, memory.PromotionResult{}, &ValidationError{Field: "projectId"}
	}
	if run.GroupID == "" {
		return memory.ObservationEvent{}, memory.PromotionResult{}, &ValidationError{Field: "groupId"}
	}
	if run.SessionKey == "" {
		return memory.ObservationEvent{}, memory.PromotionResult{}, &ValidationError{Field: "sessionKey"}
	}

	trust := payload.TrustClass
	if trust == "" {
		trust = memory.TrustSystem
	}
	confidence := payload.Confidence
	if confidence == 0 {
		confidence = defaultPollingConfidence
	}

	ev := memory.ObservationEvent{
		ProjectID:     run.ProjectID,
		GroupID:       run.GroupID,
		SessionKey:    run.SessionKey,
		EventType:     memory.EventPollingDelta,
		Source:        run.Source,
		SourceRef:     run.SourceRef,
		OccurredAt:    run.OccurredAt,
		ProjectTags:   payload.ProjectTags,
		RoleTags:      payload.RoleTags,
		WorkflowStage: payload.WorkflowStage,
		DecisionRef:   payload.DecisionRef,
		Summary:       payload.Summary,
		Confidence:    confidence,
		TrustClass:    trust,
		Category:      payload.Category,
		Rationale:     payload.Rationale,
		Metadata:      payload.Metadata,
	}

	return p.store.AppendObservation(ev, &p.policy)
}

// RunCompression resolves an absolute snapshot directory and delegates to the
// store's compaction entry point. Intended to run from the periodic trigger;
// IO failures are the caller's to log, not fatal.
func (p *Pipeline) RunCompression() (memory.CompressionResult, error) {
	opts := p.compress

	snapshotDir := opts.SnapshotDir
	if snapshotDir == "" {
		snapshotDir = filepath.Join(p.store.Dir(), "snapshots")
	}
	if !filepath.IsAbs(snapshotDir) {
		abs, err := filepath.Abs(snapshotDir)
		if err != nil {
			return memory.CompressionResult{}, fmt.Errorf("failed to resolve snapshot directory: %w", err)
		}
		snapshotDir = abs
	}
	opts.SnapshotDir = snapshotDir

	result, err := p.store.CompressHistoryIfNeeded(opts)
	if err != nil {
		return result, err
	}

	if result.Compressed {
		p.logger.Info().Str("snapshot", result.SnapshotPath).Msg("Compression run archived history overflow")
	} else {
		p.logger.Debug().Str("reason", result.Reason).Msg("Compression run skipped")
	}
	return result, nil
}
