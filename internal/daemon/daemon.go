package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lunahq/orbiter/internal/config"
	"github.com/lunahq/orbiter/internal/observability"
	"github.com/lunahq/orbiter/pkg/channels"
	"github.com/lunahq/orbiter/pkg/dispatch"
	"github.com/lunahq/orbiter/pkg/memory"
	"github.com/lunahq/orbiter/pkg/pipeline"
	"github.com/lunahq/orbiter/pkg/routing"
	"github.com/lunahq/orbiter/pkg/schedule"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options overrides daemon collaborators, mainly for tests.
type Options struct {
	// Invoker is the agent capability; defaults to the configured exec
	// invoker.
	Invoker dispatch.Invoker
	// Collector produces polling payloads; defaults to the built-in
	// session-state collector.
	Collector schedule.Collector
}

// Daemon wires routing, session dispatch, the observation pipeline, channel
// adapters and the polling registry into one process.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger

	audit      *observability.AuditLogger
	pipe       *pipeline.Pipeline
	dispatcher *dispatch.Dispatcher
	channels   *channels.Registry
	registry   *schedule.Registry
	watcher    *config.Watcher
	metricsSrv *http.Server

	// routingMu guards the hot-reloadable routing config snapshot.
	routingMu  sync.RWMutex
	routingCfg routing.Config
}

// New constructs a daemon from configuration. Nothing external is started
// until Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	store, err := memory.NewStore(cfg.Memory.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open observation store: %w", err)
	}

	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	audit := observability.GetAuditLogger()

	invoker := opts.Invoker
	if invoker == nil {
		invoker = newExecInvoker(cfg.Agent)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     log.With().Str("component", "daemon").Logger(),
		audit:      audit,
		pipe:       pipeline.New(store, cfg.Memory.Promotion, cfg.Memory.Compression),
		routingCfg: cfg.Routing,
	}

	d.dispatcher = dispatch.New(invoker, audit)
	d.channels = channels.NewRegistry(d.HandleEnvelope)

	collector := opts.Collector
	if collector == nil {
		collector = d.collectSessionState
	}

	registry, err := schedule.NewRegistry(schedule.Options{
		StorePath:       cfg.Schedule.StorePath,
		Pipeline:        d.pipe,
		Collector:       collector,
		Audit:           audit,
		CompressionSpec: cfg.Schedule.CompressionSpec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start polling registry: %w", err)
	}
	d.registry = registry

	return d, nil
}

// Pipeline exposes the observation pipeline.
func (d *Daemon) Pipeline() *pipeline.Pipeline {
	return d.pipe
}

// Channels exposes the adapter registry for wiring concrete channels.
func (d *Daemon) Channels() *channels.Registry {
	return d.channels
}

// Schedule exposes the polling-job registry.
func (d *Daemon) Schedule() *schedule.Registry {
	return d.registry
}

// Start brings up channel adapters, the config watcher and, when enabled,
// the metrics endpoint.
func (d *Daemon) Start(ctx context.Context, loader *config.Loader) error {
	if err := d.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	if loader != nil {
		watcher, err := config.NewWatcher(loader, d.applyConfig)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
		} else {
			d.watcher = watcher
		}
	}

	if d.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsSrv = &http.Server{Addr: d.cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	d.logger.Info().
		Strs("channels", d.channels.IDs()).
		Int("groups", len(d.routingSnapshot().Groups)).
		Msg("Daemon started")
	return nil
}

// Stop shuts collaborators down in reverse dependency order.
func (d *Daemon) Stop(ctx context.Context) error {
	var firstErr error

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.channels.StopAll(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.registry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.dispatcher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsSrv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.audit.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	d.logger.Info().Msg("Daemon stopped")
	return firstErr
}

// applyConfig swaps in a reloaded routing config. Other sections require a
// restart and are ignored on reload.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.routingMu.Lock()
	d.routingCfg = cfg.Routing
	d.routingMu.Unlock()
	d.logger.Info().Int("groups", len(cfg.Routing.Groups)).Msg("Routing config applied")
}

func (d *Daemon) routingSnapshot() routing.Config {
	d.routingMu.RLock()
	defer d.routingMu.RUnlock()
	return d.routingCfg
}

// collectSessionState is the default polling collector: it observes the
// dispatcher's own workload so scheduled runs exercise the memory pipeline
// even without external connectors wired.
func (d *Daemon) collectSessionState(_ context.Context, job schedule.Job) (pipeline.Payload, error) {
	active := d.dispatcher.ActiveSessions()
	summary := fmt.Sprintf("poll %s: %d active sessions", job.Name, len(active))

	return pipeline.Payload{
		Summary:    summary,
		TrustClass: memory.TrustSystem,
		Category:   "session_state",
		Metadata: map[string]interface{}{
			"active_sessions": active,
		},
	}, nil
}
