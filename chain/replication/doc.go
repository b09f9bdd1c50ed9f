// Package replication implements the ReplicationManager: the chain
// protocol's client and peer entry points (spec.md §4.3-§4.8), the
// retransmit/quiesce loop (§4.10), and the wire encoding the five message
// types use (§6).
//
// Every entry point follows the same shape: acquire the key's stripe
// lock, mutate the keyholder and collect whatever I/O the mutation
// implies (a messenger send, a disk put/del, a self-ack) as a slice of
// closures, release the lock, then run the closures. This keeps every
// blocking call outside the critical section spec.md §5 "Suspension
// points" describes, without needing a re-entrant lock for the
// self-ack case (tail of a single-replica chain acking itself).
package replication
