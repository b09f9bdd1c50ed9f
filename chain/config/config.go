package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chainkv/chainkv/chain"
)

// Static is a concrete, immutable chain.Configuration snapshot: a fixed
// set of SpaceSpecs plus a self InstanceId, resolved once at construction
// time into lookup tables. A new cluster layout is a new *Static, handed
// to Manager.Reconfigure (chain/replication/manager.go) rather than
// mutated in place - this keeps every method here lock-free.
type Static struct {
	self    chain.InstanceId
	idx     *index
	quiesce *QuiesceState
}

// Options constructs a Static.
type Options struct {
	// Self is this node's own instance id, used to answer Hosts/LocalEntity.
	Self chain.InstanceId
	// Spaces is the full set of user tables this configuration describes.
	Spaces map[chain.SpaceId]*SpaceSpec
	// Quiesce carries a cluster-wide quiesce flag across reconfigurations.
	// A nil value starts a fresh, non-quiescing state - only correct for
	// the very first Configuration a process builds; every Reconfigure
	// thereafter should pass the previous Static's Quiesce() along so an
	// in-progress quiesce survives a topology change.
	Quiesce *QuiesceState
}

// New builds a Static from opts. Spaces may be nil/empty for a
// Configuration that hosts nothing yet.
func New(opts Options) *Static {
	q := opts.Quiesce
	if q == nil {
		q = NewQuiesceState()
	}
	spaces := opts.Spaces
	if spaces == nil {
		spaces = map[chain.SpaceId]*SpaceSpec{}
	}
	return &Static{
		self:    opts.Self,
		idx:     buildIndex(spaces),
		quiesce: q,
	}
}

// QuiesceState returns this configuration's shared quiesce flag so a caller
// building the next Reconfigure snapshot can pass it along unchanged.
func (s *Static) QuiesceState() *QuiesceState {
	return s.quiesce
}

// Schema implements chain.Configuration.
func (s *Static) Schema(space chain.SpaceId) (*chain.Schema, bool) {
	spec, ok := s.idx.spaces[space]
	if !ok {
		return nil, false
	}
	return &spec.Schema, true
}

// IsPointLeader implements chain.Configuration.
func (s *Static) IsPointLeader(e chain.EntityId) bool {
	rr, ok := s.idx.region(e.Region)
	return ok && e.Index == 0 && len(rr.chain) > 0
}

// IsTail implements chain.Configuration.
func (s *Static) IsTail(e chain.EntityId) bool {
	rr, ok := s.idx.region(e.Region)
	return ok && len(rr.chain) > 0 && e.Index == uint32(len(rr.chain)-1)
}

// ChainNext implements chain.Configuration.
func (s *Static) ChainNext(e chain.EntityId) (chain.EntityId, bool) {
	rr, ok := s.idx.region(e.Region)
	if !ok || int(e.Index)+1 >= len(rr.chain) {
		return chain.EntityId{}, false
	}
	return rr.entity(e.Index + 1), true
}

// ChainAdjacent implements chain.Configuration.
func (s *Static) ChainAdjacent(from, to chain.EntityId) bool {
	next, ok := s.ChainNext(from)
	return ok && next == to
}

// HeadOfSubspace implements chain.Configuration.
func (s *Static) HeadOfSubspace(space chain.SpaceId, sub uint16, c chain.Coordinate) (chain.EntityId, bool) {
	return s.idx.headOfSubspace(space, sub, c)
}

// HashAttribute implements chain.Configuration. It hashes the bytes of
// whichever attribute subspace sub was configured to shard on - the key
// itself when SubspaceSpec.HashAttr is negative, otherwise value[HashAttr]
// - with chain.Hash64, seeded the same way RegionSeed seeds region hashing
// (chain/hash.go): combine (space, subspace) into the seed so the same
// bytes land at different points in different subspaces.
func (s *Static) HashAttribute(space chain.SpaceId, sub uint16, key chain.Key, value chain.Value) chain.Coordinate {
	var b []byte
	if spec, ok := s.idx.spaces[space]; ok && sub < uint16(len(spec.Subspaces)) {
		attr := spec.Subspaces[sub].HashAttr
		if attr >= 0 && attr < len(value) {
			b = value[attr]
		} else {
			b = key
		}
	} else {
		b = key
	}
	seed := uint64(space)<<32 | uint64(sub)
	return chain.Coordinate{Bits: 64, Point: chain.Hash64(b, seed)}
}

// TotalSubspaces implements chain.Configuration.
func (s *Static) TotalSubspaces(space chain.SpaceId) uint16 {
	spec, ok := s.idx.spaces[space]
	if !ok {
		return 0
	}
	return uint16(len(spec.Subspaces))
}

// InstanceOf implements chain.Configuration.
func (s *Static) InstanceOf(e chain.EntityId) (chain.InstanceId, bool) {
	rr, ok := s.idx.region(e.Region)
	if !ok || int(e.Index) >= len(rr.chain) {
		return 0, false
	}
	return rr.chain[e.Index], true
}

// Hosts implements chain.Configuration.
func (s *Static) Hosts(e chain.EntityId) bool {
	inst, ok := s.InstanceOf(e)
	return ok && inst == s.self
}

// LocalEntity implements chain.Configuration.
func (s *Static) LocalEntity(region chain.RegionId) (chain.EntityId, bool) {
	rr, ok := s.idx.region(region)
	if !ok {
		return chain.EntityId{}, false
	}
	for i, inst := range rr.chain {
		if inst == s.self {
			return rr.entity(uint32(i)), true
		}
	}
	return chain.EntityId{}, false
}

// Quiesce implements chain.Configuration.
func (s *Static) Quiesce() (bool, string) {
	return s.quiesce.Get()
}

// String renders a human-readable summary of the topology, in the same
// section/field style rpc/common.ServerConfig.String uses.
func (s *Static) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(title))
		sb.WriteString("\n")
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Node Identity")
	addField("Self", fmt.Sprintf("%d", s.self))

	quiescing, stateID := s.Quiesce()
	addSection("Quiesce")
	addField("Quiescing", fmt.Sprintf("%t", quiescing))
	if quiescing {
		addField("State ID", stateID)
	}

	var spaceIDs []chain.SpaceId
	for id := range s.idx.spaces {
		spaceIDs = append(spaceIDs, id)
	}
	sort.Slice(spaceIDs, func(i, j int) bool { return spaceIDs[i] < spaceIDs[j] })

	addSection("Spaces")
	for _, id := range spaceIDs {
		spec := s.idx.spaces[id]
		addField(fmt.Sprintf("%d", id), spec.String())
	}

	return sb.String()
}
