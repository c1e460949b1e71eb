// Package idgen generates time-ordered, process-unique int64 identifiers.
//
// An identifier packs three fields:
//
//	| tick (45 bits) | machine (8 bits) | sequence (10 bits) |
//
// The tick counts 10ms slices since the epoch (2020-01-01 UTC by default).
// The machine discriminator is fixed when the Generator is built, normally
// the lowest octet of the host's outbound IPv4 address. The sequence counts
// identifiers issued within one tick and is bounded by MaxSequence; once the
// bound is reached the generator stalls until the next tick instead of
// wrapping.
//
// # Clock regression
//
// When the wall clock moves backwards the generator keeps issuing from the
// last tick it used, continuing that tick's sequence. If that sequence runs
// out, Next stalls until the wall clock passes the pinned tick. Identifiers
// therefore stay unique and increasing across an NTP step.
//
// # Concurrency
//
// All mutable state (last tick, last sequence) lives in one Generator and is
// guarded by its mutex. Generators are safe for concurrent use.
package idgen
