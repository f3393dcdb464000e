package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunahq/orbiter/internal/config"
	"github.com/lunahq/orbiter/pkg/dispatch"
	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/lunahq/orbiter/pkg/routing"
	"github.com/lunahq/orbiter/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDaemonConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.ProjectID = "proj-1"
	cfg.Memory.Dir = filepath.Join(dir, "observations")
	cfg.Memory.Compression.SnapshotDir = filepath.Join(dir, "observations", "snapshots")
	cfg.Schedule.StorePath = filepath.Join(dir, "polling-jobs.json")
	cfg.Logging.AuditFile = filepath.Join(dir, "audit.jsonl")
	cfg.Routing = routing.Config{
		CommentChannel: "comments",
		Groups: []routing.Group{
			{
				ID:      "support",
				Sources: []routing.Source{{Channel: "chat", Scope: routing.ScopeDM}},
			},
			{
				ID:      "firehose",
				Mode:    routing.ModeObservational,
				Sources: []routing.Source{{Channel: "chat", Scope: routing.ScopeGroup}},
			},
		},
	}
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()

	echo := dispatch.InvokerFunc(func(ctx context.Context, sessionKey, message string, opts dispatch.InvokeOptions) (string, error) {
		return "echo:" + message, nil
	})

	d, err := New(cfg, Options{Invoker: echo})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func TestHandleEnvelope(t *testing.T) {
	cfg := testDaemonConfig(t)
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	t.Run("routed envelope reaches the agent", func(t *testing.T) {
		text, err := d.HandleEnvelope(ctx, routing.Envelope{
			ChannelID: "chat",
			SourceID:  "dm-7",
			SenderID:  "alice",
			Content:   "hello",
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, "echo:hello", text)
	})

	t.Run("unrouted envelope is dropped without error", func(t *testing.T) {
		text, err := d.HandleEnvelope(ctx, routing.Envelope{
			ChannelID: "unknown-channel",
			SourceID:  "x",
			SenderID:  "alice",
			Content:   "lost",
		})
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("observational envelope feeds the memory pipeline", func(t *testing.T) {
		text, err := d.HandleEnvelope(ctx, routing.Envelope{
			ChannelID: "chat",
			SourceID:  "room-42",
			SenderID:  "alice",
			Content:   "milestone reached",
			Timestamp: time.Now(),
			IsGroup:   true,
		})
		require.NoError(t, err)
		assert.Empty(t, text)

		events, err := d.Pipeline().Store().ListObservations(&memory.Filter{GroupID: "firehose"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "milestone reached", events[0].Summary)
		assert.Equal(t, "proj-1", events[0].ProjectID)
		assert.Equal(t, routing.MainSessionKey("firehose"), events[0].SessionKey)
		assert.Equal(t, memory.EventWorkflowDelta, events[0].EventType)
	})
}

func TestApplyConfigSwapsRouting(t *testing.T) {
	cfg := testDaemonConfig(t)
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	reloaded := testDaemonConfig(t)
	reloaded.Routing.Groups = []routing.Group{
		{
			ID:      "rerouted",
			Sources: []routing.Source{{Channel: "chat", Scope: routing.ScopeDM}},
		},
	}
	d.applyConfig(reloaded)

	text, err := d.HandleEnvelope(ctx, routing.Envelope{
		ChannelID: "chat",
		SourceID:  "dm-7",
		SenderID:  "alice",
		Content:   "hello again",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "echo:hello again", text)

	// Only the new group set routes now.
	active := routing.Resolve(&reloaded.Routing, routing.Envelope{
		ChannelID: "chat", SourceID: "dm-7", SenderID: "alice",
	})
	require.NotNil(t, active)
	assert.Equal(t, "rerouted", active.GroupID)
}

func testJob() schedule.Job {
	return schedule.Job{ID: "job-1", Name: "heartbeat"}
}

func TestDefaultCollector(t *testing.T) {
	cfg := testDaemonConfig(t)
	d := newTestDaemon(t, cfg)

	payload, err := d.collectSessionState(context.Background(), testJob())
	require.NoError(t, err)
	assert.Contains(t, payload.Summary, "0 active sessions")
	assert.Equal(t, memory.TrustSystem, payload.TrustClass)
}
