package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the enumerated channel adapters keyed by channel id and
// forwards their envelopes to one dispatch function.
type Registry struct {
	dispatch DispatchFunc

	mu       sync.RWMutex
	channels map[string]Channel
	started  map[string]bool
}

// NewRegistry constructs a registry around the given dispatcher.
func NewRegistry(dispatch DispatchFunc) *Registry {
	return &Registry{
		dispatch: dispatch,
		channels: make(map[string]Channel),
		started:  make(map[string]bool),
	}
}

// Register adds an adapter. Duplicate channel ids are rejected.
func (r *Registry) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("channel is required")
	}

	id := strings.TrimSpace(ch.ID())
	if id == "" {
		return fmt.Errorf("channel id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[id]; exists {
		return fmt.Errorf("channel %q already registered", id)
	}
	r.channels[id] = ch
	return nil
}

// IsRegistered reports whether a channel id is known.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[strings.TrimSpace(id)]
	return ok
}

// IDs returns the sorted registered channel ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartAll starts every registered adapter.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, id := range r.IDs() {
		if err := r.Start(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops adapters in reverse id order, returning the first error.
func (r *Registry) StopAll(ctx context.Context) error {
	var firstErr error
	ids := r.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		if err := r.Stop(ctx, ids[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Start starts one adapter by id; starting a started adapter is a no-op.
func (r *Registry) Start(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)

	r.mu.Lock()
	ch, ok := r.channels[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("channel %q is not registered", id)
	}
	if r.started[id] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := ch.Start(ctx, r.dispatch); err != nil {
		return fmt.Errorf("failed to start channel %q: %w", id, err)
	}

	r.mu.Lock()
	r.started[id] = true
	r.mu.Unlock()
	return nil
}

// Stop stops one adapter by id; stopping a stopped adapter is a no-op.
func (r *Registry) Stop(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)

	r.mu.Lock()
	ch, ok := r.channels[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("channel %q is not registered", id)
	}
	if !r.started[id] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := ch.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop channel %q: %w", id, err)
	}

	r.mu.Lock()
	delete(r.started, id)
	r.mu.Unlock()
	return nil
}
