package channels

import (
	"context"

	"github.com/lunahq/orbiter/pkg/routing"
)

// DispatchFunc carries a normalized envelope from an adapter into the
// routing and session pipeline. The returned text is the agent response (or
// a steer acknowledgement) for adapters that deliver replies.
type DispatchFunc func(ctx context.Context, env routing.Envelope) (string, error)

// Channel is one external conversation source adapter. The variant set is
// closed: adapters are enumerated at wiring time and held in a Registry, not
// discovered.
type Channel interface {
	ID() string
	Start(ctx context.Context, dispatch DispatchFunc) error
	Stop(ctx context.Context) error
}
