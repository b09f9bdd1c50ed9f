package chain

import "fmt"

// --------------------------------------------------------------------------
// Entity Identifiers
// --------------------------------------------------------------------------

// SpaceId names a user table.
type SpaceId uint32

// SubspaceId names one value-dimension projection of a space.
type SubspaceId struct {
	Space SpaceId
	Index uint16
}

// NoSubspace is the sentinel for "no subspace" (UINT16_MAX in the wire
// protocol's subspace_prev/subspace_next fields).
const NoSubspace uint16 = 0xFFFF

// RegionId names a contiguous slice of the hash space within one subspace.
type RegionId struct {
	Subspace SubspaceId
	Prefix   uint64
	Mask     uint8 // number of significant high bits of Prefix
}

// String renders the region as "space.subspace/prefix:mask".
func (r RegionId) String() string {
	return fmt.Sprintf("%d.%d/%x:%d", r.Subspace.Space, r.Subspace.Index, r.Prefix, r.Mask)
}

// EntityId names one replica on the chain: a region plus the replica's
// position within that region's chain (0 = head/point-leader).
type EntityId struct {
	Region RegionId
	Index  uint32
}

// IsNone reports whether this is the zero-value "no entity" sentinel.
func (e EntityId) IsNone() bool {
	return e == EntityId{}
}

// String renders the entity as "region#index".
func (e EntityId) String() string {
	return fmt.Sprintf("%s#%d", e.Region, e.Index)
}

// InstanceId names a physical node hosting one or more entities.
type InstanceId uint64

// --------------------------------------------------------------------------
// Coordinates
// --------------------------------------------------------------------------

// Coordinate is a hashed location within a subspace's prefix-hashed space.
type Coordinate struct {
	Bits  uint8
	Point uint64
}

// Contains reports whether the region's prefix/mask matches the coordinate's
// high Mask bits. A region with Mask bits b matches any point whose top b
// bits equal Prefix's top b bits.
func (r RegionId) Contains(c Coordinate) bool {
	if r.Mask == 0 {
		return true
	}
	shift := 64 - uint(r.Mask)
	return (c.Point >> shift) == (r.Prefix >> shift)
}

// --------------------------------------------------------------------------
// Key / Value / Version
// --------------------------------------------------------------------------

// Key is an opaque byte slice validated against the space's primary
// attribute type.
type Key []byte

// Value is an ordered vector of byte slices, one per non-key attribute, in
// schema order.
type Value [][]byte

// Clone returns a deep copy of the value, independent of any backing buffer.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for i, attr := range v {
		c := make([]byte, len(attr))
		copy(c, attr)
		out[i] = c
	}
	return out
}

// Version is a monotonically increasing counter, unique per (region, key).
// Version 0 means "no prior value".
type Version uint64

// ClientOp identifies the client request a pending op owes a response to.
type ClientOp struct {
	Region    RegionId
	From      EntityId
	Nonce     uint64
	HasClient bool
}
