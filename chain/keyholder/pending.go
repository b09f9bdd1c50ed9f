package keyholder

import (
	"time"

	"github.com/chainkv/chainkv/chain"
)

// Backing is a reference-counted owner of the byte buffer that a PendingOp
// or DeferredOp's Key/Value slices point into. It is shared between the
// request that created the op and any later ack messages that still
// reference the same bytes, mirroring the original's e::intrusive_ptr
// buffer ownership (spec.md §9 "Reference counting vs arenas").
//
// A plain []byte satisfies this today (Go's GC keeps it alive as long as
// any slice into it is reachable); Backing exists so PendingOp's doc comments
// can describe ownership precisely without tying the type to an allocator.
type Backing = []byte

// PendingOp is a received-but-not-yet-disk-committed mutation, either
// waiting in the blocked queue (received, not forwarded) or the
// committable queue (forwarded, awaiting CHAIN_ACK). See spec.md §3.
type PendingOp struct {
	HasValue bool // false = delete
	Fresh    bool // true = create, no predecessor version required

	Backing Backing
	Key     chain.Key
	Value   chain.Value

	ClientOp chain.ClientOp

	// Us is the local entity this op is being processed on behalf of -
	// the "us" send_message and chain_ack route relative to (spec.md
	// §4.7). A keyholder only ever holds ops for the one entity this node
	// hosts for its region, so this is constant across one keyholder's
	// queues, but storing it per-op avoids a Configuration round trip on
	// every send.
	Us chain.EntityId

	// Chain coordinates, computed by prev_and_next (spec.md §4.5).
	SubspacePrev  uint16 // chain.NoSubspace if none
	SubspaceNext  uint16 // chain.NoSubspace if none
	PointPrev     uint64
	PointThis     uint64
	PointNext     uint64
	PointNextNext uint64

	RecvEntity   chain.EntityId
	RecvInstance chain.InstanceId

	SentEntity   chain.EntityId // zero (IsNone) until sent
	SentInstance chain.InstanceId
	// SentAt is when SentEntity was last set, so a metrics observer can
	// measure the most recent hop's round-trip latency once Acked flips
	// true. Not read by any protocol logic - purely an observability
	// field.
	SentAt time.Time

	Acked bool

	// RetCode is the code client_atomic/client_del will answer with once
	// this op's ack reaches the point-leader.
	RetCode chain.RetCode

	// Ref is an opaque reference the DataLayer may attach on Put/Del,
	// replayed back to it on later operations if needed.
	Ref interface{}
}

// IsSent reports whether this op has already been forwarded along the
// chain and is awaiting an ack.
func (p *PendingOp) IsSent() bool {
	return !p.SentEntity.IsNone()
}

// ClearSent resets the sent-to fields, e.g. after instance churn is
// detected so send_message will re-route and resend (spec.md §4.10).
func (p *PendingOp) ClearSent() {
	p.SentEntity = chain.EntityId{}
	p.SentInstance = 0
	p.SentAt = time.Time{}
}
