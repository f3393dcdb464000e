package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lunahq/orbiter/internal/observability"
	"github.com/lunahq/orbiter/pkg/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultCompressionSpec triggers the compaction heartbeat every 15 minutes.
const DefaultCompressionSpec = "@every 15m"

// Collector produces the observed payload for one job run. The registry
// builds the run log itself from the job's partition.
type Collector func(ctx context.Context, job Job) (pipeline.Payload, error)

// Options configures a Registry.
type Options struct {
	StorePath       string
	Pipeline        *pipeline.Pipeline
	Collector       Collector
	Audit           *observability.AuditLogger
	CompressionSpec string
}

// Registry is the explicit polling-job registry: loaded on start, mutated
// through Add/Update/Remove, shut down explicitly. It also owns the periodic
// compression heartbeat, which logs (and survives) IO failures.
type Registry struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	jobs    map[string]*Job
	options Options

	mu      sync.Mutex
	stopped bool
}

// NewRegistry loads persisted jobs, schedules the enabled ones plus the
// compression heartbeat, and starts the underlying cron runner.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if opts.Collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if opts.Audit == nil {
		opts.Audit = observability.GetAuditLogger()
	}
	if opts.CompressionSpec == "" {
		opts.CompressionSpec = DefaultCompressionSpec
	}

	r := &Registry{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		jobs:    make(map[string]*Job),
		options: opts,
	}

	if err := r.loadJobs(); err != nil {
		log.Warn().Err(err).Msg("Failed to load polling jobs, starting with empty registry")
	}

	for _, job := range r.jobs {
		if job.Enabled {
			if err := r.scheduleLocked(job); err != nil {
				log.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to schedule persisted job")
			}
		}
	}

	if _, err := r.cron.AddFunc(opts.CompressionSpec, r.runCompression); err != nil {
		return nil, fmt.Errorf("invalid compression spec %q: %w", opts.CompressionSpec, err)
	}

	r.cron.Start()

	log.Info().Int("job_count", len(r.jobs)).Msg("Polling registry started")
	return r, nil
}

// AddJob registers and schedules a new polling job.
func (r *Registry) AddJob(params AddParams) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, fmt.Errorf("registry is stopped")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if params.ProjectID == "" || params.GroupID == "" || params.SessionKey == "" {
		return nil, fmt.Errorf("job partition (project, group, session) is required")
	}
	if _, err := cron.ParseStandard(params.Spec); err != nil {
		return nil, fmt.Errorf("invalid schedule spec: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		Name:       params.Name,
		Spec:       params.Spec,
		ProjectID:  params.ProjectID,
		GroupID:    params.GroupID,
		SessionKey: params.SessionKey,
		Source:     params.Source,
		Enabled:    params.Enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	r.jobs[job.ID] = job
	if err := r.persistLocked(); err != nil {
		delete(r.jobs, job.ID)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if job.Enabled {
		if err := r.scheduleLocked(job); err != nil {
			return nil, err
		}
	}

	log.Info().Str("job_id", job.ID).Str("name", job.Name).Str("spec", job.Spec).Msg("Polling job added")
	return job, nil
}

// UpdateJob applies a patch to an existing job and reschedules it.
func (r *Registry) UpdateJob(id string, patch JobPatch) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %q not found", id)
	}

	if patch.Spec != nil {
		if _, err := cron.ParseStandard(*patch.Spec); err != nil {
			return nil, fmt.Errorf("invalid schedule spec: %w", err)
		}
		job.Spec = *patch.Spec
	}
	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
	}
	job.UpdatedAt = time.Now().UTC()

	if err := r.persistLocked(); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	r.unscheduleLocked(id)
	if job.Enabled {
		if err := r.scheduleLocked(job); err != nil {
			return nil, err
		}
	}

	log.Info().Str("job_id", id).Msg("Polling job updated")
	return job, nil
}

// RemoveJob unschedules and deletes a job.
func (r *Registry) RemoveJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("job %q not found", id)
	}

	r.unscheduleLocked(id)
	delete(r.jobs, id)

	if err := r.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist jobs: %w", err)
	}

	log.Info().Str("job_id", id).Msg("Polling job removed")
	return nil
}

// ListJobs returns a snapshot of all registered jobs.
func (r *Registry) ListJobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Shutdown stops the cron runner and waits for in-flight runs.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) scheduleLocked(job *Job) error {
	id := job.ID
	entryID, err := r.cron.AddFunc(job.Spec, func() { r.runJob(id) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", id, err)
	}
	r.entries[id] = entryID
	return nil
}

func (r *Registry) unscheduleLocked(id string) {
	if entryID, ok := r.entries[id]; ok {
		r.cron.Remove(entryID)
		delete(r.entries, id)
	}
}

// runJob executes one collection tick and feeds the result to the pipeline.
// Failures are audited and logged; they never stop the registry.
func (r *Registry) runJob(id string) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok || !job.Enabled {
		r.mu.Unlock()
		return
	}
	snapshot := *job
	r.mu.Unlock()

	ctx := context.Background()
	start := time.Now()

	payload, err := r.options.Collector(ctx, snapshot)
	if err != nil {
		log.Error().Str("job_id", id).Err(err).Msg("Polling collection failed")
		r.options.Audit.LogRun(ctx, observability.RunEntry{
			JobID:    id,
			JobName:  snapshot.Name,
			Status:   "error",
			Error:    err.Error(),
			Duration: time.Since(start),
		})
		return
	}

	_, promotion, err := r.options.Pipeline.RecordPollingRun(pipeline.RunLog{
		ProjectID:  snapshot.ProjectID,
		GroupID:    snapshot.GroupID,
		SessionKey: snapshot.SessionKey,
		Source:     snapshot.Source,
		SourceRef:  snapshot.ID,
		OccurredAt: start,
	}, payload)

	status := "ok"
	errText := ""
	if err != nil {
		status = "error"
		errText = err.Error()
		log.Error().Str("job_id", id).Err(err).Msg("Polling run append failed")
	}

	r.options.Audit.LogRun(ctx, observability.RunEntry{
		JobID:    id,
		JobName:  snapshot.Name,
		Status:   status,
		Error:    errText,
		Duration: time.Since(start),
		Metadata: map[string]interface{}{
			"promoted": promotion.Promoted,
		},
	})
}

// runCompression is the heartbeat entry: IO errors are caught and logged so
// the process keeps running.
func (r *Registry) runCompression() {
	result, err := r.options.Pipeline.RunCompression()
	if err != nil {
		log.Error().Err(err).Msg("Compression heartbeat failed")
		return
	}
	if result.Compressed {
		log.Info().Str("snapshot", result.SnapshotPath).Msg("Compression heartbeat archived history")
	}
}

func (r *Registry) loadJobs() error {
	data, err := os.ReadFile(r.options.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to parse job store: %w", err)
	}
	for _, job := range jobs {
		r.jobs[job.ID] = job
	}
	return nil
}

func (r *Registry) persistLocked() error {
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.options.StorePath), 0755); err != nil {
		return err
	}

	tmp := r.options.StorePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.options.StorePath)
}
