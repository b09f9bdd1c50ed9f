package config

import (
	"fmt"
	"sort"

	"github.com/chainkv/chainkv/chain"
)

// RegionSpec describes one region's replica chain: the ordered sequence
// of instances hosting it, head (index 0) to tail (index len-1).
type RegionSpec struct {
	Prefix uint64
	Mask   uint8
	Chain  []chain.InstanceId
}

// id renders this spec's (prefix, mask) as the chain.RegionId it
// describes within subspace sub.
func (r RegionSpec) id(sub chain.SubspaceId) chain.RegionId {
	return chain.RegionId{Subspace: sub, Prefix: r.Prefix, Mask: r.Mask}
}

// SubspaceSpec describes one subspace: which attribute of the space's
// schema picks this subspace's hash dimension (-1 means the primary key
// itself, not a value attribute - chain.Schema has no field for this
// mapping, so it lives here),
// plus the regions partitioning its hash space.
type SubspaceSpec struct {
	HashAttr int
	Regions  []RegionSpec
}

// SpaceSpec describes one user table: its schema plus the ordered list
// of subspaces projecting it (index 0..N-1, matching chain.SubspaceId.Index).
type SpaceSpec struct {
	Schema    chain.Schema
	Subspaces []SubspaceSpec
}

// resolvedRegion is a RegionSpec indexed under its full chain.RegionId,
// used for both the exact lookups (InstanceOf, IsTail, ...) and the
// sloppy per-subspace coordinate scan (HeadOfSubspace).
type resolvedRegion struct {
	region chain.RegionId
	chain  []chain.InstanceId
}

func (r *resolvedRegion) entity(index uint32) chain.EntityId {
	return chain.EntityId{Region: r.region, Index: index}
}

// index is the resolved, lookup-ready form of a set of SpaceSpecs: built
// once by New and never mutated, so every Static method is safe to call
// concurrently without a lock (spec.md §1: "all methods must be safe to
// call concurrently").
type index struct {
	spaces map[chain.SpaceId]*SpaceSpec

	byRegion   map[chain.RegionId]*resolvedRegion
	bySubspace map[chain.SubspaceId][]*resolvedRegion // sorted by Prefix
}

func buildIndex(spaces map[chain.SpaceId]*SpaceSpec) *index {
	idx := &index{
		spaces:     spaces,
		byRegion:   make(map[chain.RegionId]*resolvedRegion),
		bySubspace: make(map[chain.SubspaceId][]*resolvedRegion),
	}
	for spaceID, spec := range spaces {
		for subIdx, sub := range spec.Subspaces {
			subspace := chain.SubspaceId{Space: spaceID, Index: uint16(subIdx)}
			for _, rs := range sub.Regions {
				rr := &resolvedRegion{region: rs.id(subspace), chain: rs.Chain}
				idx.byRegion[rr.region] = rr
				idx.bySubspace[subspace] = append(idx.bySubspace[subspace], rr)
			}
		}
	}
	for sub, regions := range idx.bySubspace {
		sort.Slice(regions, func(i, j int) bool { return regions[i].region.Prefix < regions[j].region.Prefix })
		idx.bySubspace[sub] = regions
	}
	return idx
}

// headOfSubspace implements the sloppy lookup: the region in subspace sub
// that actually contains c, or - if a chain hole leaves no region covering
// c - the region with the closest Prefix, so a reconfiguration in
// progress never leaves HeadOfSubspace with nothing to return.
func (idx *index) headOfSubspace(space chain.SpaceId, sub uint16, c chain.Coordinate) (chain.EntityId, bool) {
	regions := idx.bySubspace[chain.SubspaceId{Space: space, Index: sub}]
	if len(regions) == 0 {
		return chain.EntityId{}, false
	}
	for _, rr := range regions {
		if rr.region.Contains(c) && len(rr.chain) > 0 {
			return rr.entity(0), true
		}
	}
	// No exact containing region (a hole); fall back to the region whose
	// Prefix is closest to c.Point, preferring the one with a chain.
	best := -1
	var bestDist uint64
	for i, rr := range regions {
		if len(rr.chain) == 0 {
			continue
		}
		dist := c.Point - rr.region.Prefix
		if c.Point < rr.region.Prefix {
			dist = rr.region.Prefix - c.Point
		}
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best == -1 {
		return chain.EntityId{}, false
	}
	return regions[best].entity(0), true
}

func (idx *index) region(r chain.RegionId) (*resolvedRegion, bool) {
	rr, ok := idx.byRegion[r]
	return rr, ok
}

func (s SpaceSpec) String() string {
	return fmt.Sprintf("space(key=%v, attrs=%d, subspaces=%d)", s.Schema.KeyType, len(s.Schema.Attributes), len(s.Subspaces))
}
