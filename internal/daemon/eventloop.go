package daemon

import (
	"context"

	"github.com/lunahq/orbiter/internal/observability"
	"github.com/lunahq/orbiter/internal/tracing"
	"github.com/lunahq/orbiter/pkg/dispatch"
	"github.com/lunahq/orbiter/pkg/pipeline"
	"github.com/lunahq/orbiter/pkg/routing"
	"go.opentelemetry.io/otel/attribute"
)

// HandleEnvelope routes one inbound envelope and either dispatches it to the
// session lane or records it as an observation. Unrouted envelopes are
// dropped; the drop is logged and counted, never an error.
func (d *Daemon) HandleEnvelope(ctx context.Context, env routing.Envelope) (string, error) {
	if env.CorrelationID == "" {
		env.CorrelationID = tracing.NewCorrelationID()
	}
	ctx = tracing.WithCorrelationID(ctx, env.CorrelationID)

	ctx, span := tracing.StartSpan(
		ctx,
		"orbiter.daemon",
		"daemon.handle_envelope",
		attribute.String("channel_id", env.ChannelID),
		attribute.String("source_id", env.SourceID),
	)
	defer span.End()

	cfg := d.routingSnapshot()
	route := routing.Resolve(&cfg, env)
	if route == nil {
		observability.RecordUnrouted()
		d.logger.Debug().
			Str("channel_id", env.ChannelID).
			Str("source_id", env.SourceID).
			Str("correlation_id", env.CorrelationID).
			Msg("Envelope matched no group, dropping")
		return "", nil
	}

	ctx = tracing.WithSessionKey(ctx, route.SessionKey)
	logger := tracing.LoggerFromContext(ctx, d.logger)
	logger.Info().
		Str("group_id", route.GroupID).
		Str("matched_by", route.MatchedBy).
		Str("busy_policy", string(route.BusyPolicy)).
		Msg("Envelope routed")

	if route.Mode == routing.ModeObservational {
		_, promo, err := d.pipe.RecordInboundObservation(env, pipeline.Partition{
			ProjectID:  d.cfg.ProjectID,
			GroupID:    route.GroupID,
			SessionKey: route.MainSessionKey,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to record inbound observation")
			return "", err
		}
		logger.Debug().
			Bool("promoted", promo.Promoted).
			Str("reason", promo.Reason).
			Msg("Inbound observation recorded")
		return "", nil
	}

	return d.dispatcher.Handle(ctx, route.SessionKey, env.Content, dispatch.HandleOptions{
		CorrelationID: env.CorrelationID,
		BusyPolicy:    route.BusyPolicy,
	})
}
