// Package keyholder implements the per-key state machine described in
// spec.md §4.1: the deferred/blocked/committable queues a Keyholder owns
// for exactly one (region, key) pair, plus the PendingOp and DeferredOp
// payloads those queues carry.
//
// Everything here is purely local, in-memory bookkeeping - no locking, no
// I/O. Every exported method documents that the caller must already hold
// the key's stripe lock (chain/striped.Lock); Keyholder itself has no
// mutex of its own, matching the original's "queues are dumb, the lock is
// external" split.
package keyholder
