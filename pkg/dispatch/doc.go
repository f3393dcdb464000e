// Package dispatch serializes agent invocations per session key.
//
// Invariants:
// - At most one invocation is in flight per session key at any time.
// - Queued tasks for one key execute in FIFO submission order.
// - A failing invocation settles its own caller only; it never poisons the chain.
// - Steer delivers into an active run's interrupt channel without waiting and
//   degrades to queue behavior on an idle session.
package dispatch
