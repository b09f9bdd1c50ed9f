package replication

import "time"

// Metrics receives health samples from the periodic sweep and the chain
// ack path. It is satisfied by chain/metrics.Recorder, kept as a small
// local interface (rather than importing chain/metrics directly) so this
// package's dependency graph stays one-directional - chain/metrics has no
// reason to know about chain/replication's internals, only about the
// numbers it reports.
//
// A nil Metrics is valid: every call site below checks first, so a
// Manager built without Collaborators.Metrics behaves exactly as it did
// before this interface existed.
type Metrics interface {
	// SetKeyholderCount reports the total number of live keyholders.
	SetKeyholderCount(n int)
	// SetCommittableBacklog reports the total committable-queue depth
	// summed across every keyholder.
	SetCommittableBacklog(n int)
	// IncRetransmits counts one op being resent during a sweep
	// because it was unsent or its target instance had churned.
	IncRetransmits()
	// SetQuiescing reports the manager's current quiesce state.
	SetQuiescing(quiescing bool)
	// ObserveAckLatency records the time between an op's most recent
	// send and the CHAIN_ACK that satisfied it.
	ObserveAckLatency(d time.Duration)
}
