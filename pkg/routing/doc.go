// Package routing maps inbound envelopes to routing groups and stable
// session keys.
//
// Invariants:
// - Resolve is deterministic and side-effect free for any (config, envelope).
// - Explicit channel-id bindings always outrank scope fallbacks.
// - Session keys are pure functions of (group, channel, scope, identity, thread).
package routing
