package schedule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/lunahq/orbiter/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T, collector Collector) *Registry {
	t.Helper()

	store, err := memory.NewStore(t.TempDir())
	require.NoError(t, err)
	pipe := pipeline.New(store, memory.DefaultPromotionPolicy(), memory.CompressionOptions{
		MaxLines:      100,
		KeepLastLines: 10,
	})

	if collector == nil {
		collector = func(ctx context.Context, job Job) (pipeline.Payload, error) {
			return pipeline.Payload{Summary: "tick"}, nil
		}
	}

	r, err := NewRegistry(Options{
		StorePath: filepath.Join(t.TempDir(), "polling-jobs.json"),
		Pipeline:  pipe,
		Collector: collector,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func addParams() AddParams {
	return AddParams{
		Name:       "ticket-sync",
		Spec:       "@every 1h",
		ProjectID:  "proj-1",
		GroupID:    "support",
		SessionKey: "group:support:main",
		Source:     "tracker",
		Enabled:    true,
	}
}

func TestRegistryLifecycle(t *testing.T) {
	t.Run("add list remove", func(t *testing.T) {
		r := testRegistry(t, nil)

		job, err := r.AddJob(addParams())
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.True(t, job.Enabled)

		jobs := r.ListJobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, "ticket-sync", jobs[0].Name)

		require.NoError(t, r.RemoveJob(job.ID))
		assert.Empty(t, r.ListJobs())
	})

	t.Run("invalid spec rejected", func(t *testing.T) {
		r := testRegistry(t, nil)

		params := addParams()
		params.Spec = "not a schedule"
		_, err := r.AddJob(params)
		require.Error(t, err)
		assert.Empty(t, r.ListJobs())
	})

	t.Run("missing partition rejected", func(t *testing.T) {
		r := testRegistry(t, nil)

		params := addParams()
		params.GroupID = ""
		_, err := r.AddJob(params)
		require.Error(t, err)
	})

	t.Run("update patches and persists", func(t *testing.T) {
		r := testRegistry(t, nil)

		job, err := r.AddJob(addParams())
		require.NoError(t, err)

		name := "renamed"
		disabled := false
		updated, err := r.UpdateJob(job.ID, JobPatch{Name: &name, Enabled: &disabled})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)
		assert.False(t, updated.Enabled)

		spec := "bogus"
		_, err = r.UpdateJob(job.ID, JobPatch{Spec: &spec})
		require.Error(t, err)
	})

	t.Run("remove unknown job fails", func(t *testing.T) {
		r := testRegistry(t, nil)
		require.Error(t, r.RemoveJob("nope"))
	})
}

func TestRegistryPersistence(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "polling-jobs.json")
	store, err := memory.NewStore(t.TempDir())
	require.NoError(t, err)
	pipe := pipeline.New(store, memory.DefaultPromotionPolicy(), memory.CompressionOptions{})
	collector := func(ctx context.Context, job Job) (pipeline.Payload, error) {
		return pipeline.Payload{Summary: "tick"}, nil
	}

	first, err := NewRegistry(Options{StorePath: storePath, Pipeline: pipe, Collector: collector})
	require.NoError(t, err)

	job, err := first.AddJob(addParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, first.Shutdown(ctx))

	// The store file outlives the registry instance.
	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), job.ID)

	second, err := NewRegistry(Options{StorePath: storePath, Pipeline: pipe, Collector: collector})
	require.NoError(t, err)
	defer second.Shutdown(ctx)

	jobs := second.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestRunJobFeedsPipeline(t *testing.T) {
	store, err := memory.NewStore(t.TempDir())
	require.NoError(t, err)
	pipe := pipeline.New(store, memory.DefaultPromotionPolicy(), memory.CompressionOptions{})

	collector := func(ctx context.Context, job Job) (pipeline.Payload, error) {
		return pipeline.Payload{Summary: "two tickets reopened, churn risk"}, nil
	}

	r, err := NewRegistry(Options{
		StorePath: filepath.Join(t.TempDir(), "polling-jobs.json"),
		Pipeline:  pipe,
		Collector: collector,
	})
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	}()

	job, err := r.AddJob(addParams())
	require.NoError(t, err)

	// Drive the run directly instead of waiting for the cron tick.
	r.runJob(job.ID)

	events, err := store.ReadHistory()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, memory.EventPollingDelta, events[0].EventType)
	assert.Equal(t, job.ID, events[0].SourceRef)
	assert.Equal(t, memory.TrustSystem, events[0].TrustClass)

	t.Run("disabled jobs do not run", func(t *testing.T) {
		disabled := false
		_, err := r.UpdateJob(job.ID, JobPatch{Enabled: &disabled})
		require.NoError(t, err)

		r.runJob(job.ID)
		events, err := store.ReadHistory()
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}
