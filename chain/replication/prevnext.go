package replication

import "github.com/chainkv/chainkv/chain"

// Side is one side of an update: the new value being written, or the
// value that preceded it. Has is false when that side doesn't exist (no
// prior value for a fresh create; no new value for a delete).
type Side struct {
	Has   bool
	Value chain.Value
}

// Coords is the chain-coordinate bundle prev_and_next computes (spec.md
// §4.5), ready to copy onto a PendingOp.
type Coords struct {
	SubspacePrev  uint16
	SubspaceNext  uint16
	PointPrev     uint64
	PointThis     uint64
	PointNext     uint64
	PointNextNext uint64
}

func hashAt(cfg chain.Configuration, space chain.SpaceId, sub uint16, key chain.Key, value chain.Value) chain.Coordinate {
	return cfg.HashAttribute(space, sub, key, value)
}

// PrevAndNext computes the chain coordinates for an update to (region,
// key) given the new and old sides of the value (spec.md §4.5). ok is
// false when neither side has a value, or when region does not contain
// the old side's hash (whether or not it contains the new side's) - "not
// ours".
func PrevAndNext(cfg chain.Configuration, region chain.RegionId, key chain.Key, newSide, oldSide Side) (Coords, bool) {
	space := region.Subspace.Space
	sub := region.Subspace.Index
	total := cfg.TotalSubspaces(space)

	subspacePrev := chain.NoSubspace
	if sub > 0 {
		subspacePrev = sub - 1
	}
	subspaceNext := chain.NoSubspace
	if total > 0 && sub < total-1 {
		subspaceNext = sub + 1
	}

	var newPick, oldPick chain.Value
	switch {
	case newSide.Has:
		newPick = newSide.Value
	case oldSide.Has:
		newPick = oldSide.Value
	default:
		return Coords{}, false
	}
	switch {
	case oldSide.Has:
		oldPick = oldSide.Value
	case newSide.Has:
		oldPick = newSide.Value
	default:
		return Coords{}, false
	}

	coordNew := hashAt(cfg, space, sub, key, newPick)
	coordOld := hashAt(cfg, space, sub, key, oldPick)
	containsNew := region.Contains(coordNew)
	containsOld := region.Contains(coordOld)

	var c Coords
	switch {
	case containsOld && containsNew:
		c.SubspacePrev = subspacePrev
		c.SubspaceNext = subspaceNext
		c.PointThis = coordNew.Point
		if subspaceNext != chain.NoSubspace {
			c.PointNext = hashAt(cfg, space, subspaceNext, key, oldPick).Point
		}
	case containsOld && !containsNew:
		c.SubspacePrev = subspacePrev
		if subspaceNext != chain.NoSubspace {
			c.PointNextNext = hashAt(cfg, space, subspaceNext, key, oldPick).Point
		}
		// Sentinel: subspace_next equal to our own subspace index marks a
		// cross-subspace transfer in progress (spec.md §4.7's routing rule
		// keys off exactly this value, never produced by the normal path).
		c.SubspaceNext = sub
		c.PointThis = coordOld.Point
		c.PointNext = coordNew.Point
	default:
		return Coords{}, false
	}

	if c.SubspacePrev != chain.NoSubspace {
		c.PointPrev = hashAt(cfg, space, c.SubspacePrev, key, newPick).Point
	}

	return c, true
}
