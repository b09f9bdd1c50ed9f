package keyholder

import "github.com/chainkv/chainkv/chain"

// DeferredOp holds a chain message received out of order: its payload is
// identical to PendingOp's but it carries no chain coordinates, because
// those cannot be computed until its predecessor version is known
// (spec.md §3 "Deferred op").
type DeferredOp struct {
	HasValue bool
	Fresh    bool

	Backing Backing
	Key     chain.Key
	Value   chain.Value

	RecvEntity   chain.EntityId
	RecvInstance chain.InstanceId

	// ToEntity is the local entity the message was addressed to when it
	// arrived. Deferred ops are parked before the host-validity and
	// coordinate checks chain_common normally runs (spec.md §4.4 step 4
	// happens before steps 5-6), so promotion re-runs those checks and
	// needs this to do it.
	ToEntity chain.EntityId
}
