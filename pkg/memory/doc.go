// Package memory is the durable observational memory: an append-only JSONL
// history of observation events, a derived curated-memory projection gated by
// a trust and confidence promotion policy, and bounded compaction of the
// history into immutable archive snapshots.
package memory
