package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lunahq/orbiter/pkg/routing"
)

// DirectChannel is an in-process adapter for direct ingress paths (operator
// CLI, tests). Envelopes are injected with Send rather than arriving over a
// wire.
type DirectChannel struct {
	id string

	mu       sync.RWMutex
	dispatch DispatchFunc
}

// NewDirectChannel creates a direct channel with the given channel id.
func NewDirectChannel(id string) *DirectChannel {
	return &DirectChannel{id: strings.TrimSpace(id)}
}

// ID returns the channel id.
func (c *DirectChannel) ID() string {
	return c.id
}

// Start captures the dispatcher for later Send calls.
func (c *DirectChannel) Start(_ context.Context, dispatch DispatchFunc) error {
	if c.id == "" {
		return fmt.Errorf("channel id is required")
	}
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}

	c.mu.Lock()
	c.dispatch = dispatch
	c.mu.Unlock()
	return nil
}

// Stop drops the dispatcher; subsequent Send calls fail.
func (c *DirectChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	c.dispatch = nil
	c.mu.Unlock()
	return nil
}

// Send injects an envelope into the pipeline as if it arrived on this
// channel.
func (c *DirectChannel) Send(ctx context.Context, env routing.Envelope) (string, error) {
	c.mu.RLock()
	dispatch := c.dispatch
	c.mu.RUnlock()

	if dispatch == nil {
		return "", fmt.Errorf("channel %q is not started", c.id)
	}
	if env.ChannelID == "" {
		env.ChannelID = c.id
	}
	return dispatch(ctx, env)
}
