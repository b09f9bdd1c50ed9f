package keyholder

import (
	"sort"

	"github.com/chainkv/chainkv/chain"
)

// Keyholder owns the per-key ordered queues for exactly one (region, key)
// pair (spec.md §3, §4.1). All methods require the caller to already hold
// that key's stripe lock (chain/striped.Lock) - Keyholder itself does no
// locking.
type Keyholder struct {
	// blocked and committable are kept as slices ordered by ascending
	// version: both queues only ever grow at the tail (AppendBlocked
	// requires version > everything queued) and shrink at the head
	// (RemoveOldest*), so a slice is both simpler and faster than a map
	// for the access patterns spec.md §4.1 describes.
	blocked     []versionedPending
	committable []versionedPending

	// deferred can receive versions in any order (that's the whole point
	// of the queue), so it keeps a sorted key slice alongside the map.
	deferredOps map[chain.Version]*DeferredOp
	deferredVer []chain.Version

	versionOnDisk chain.Version
}

type versionedPending struct {
	version chain.Version
	op      *PendingOp
}

// New creates an empty Keyholder.
func New() *Keyholder {
	return &Keyholder{
		deferredOps: make(map[chain.Version]*DeferredOp),
	}
}

// --------------------------------------------------------------------------
// Deferred queue
// --------------------------------------------------------------------------

// InsertDeferred places op at version in the deferred set. Fails with
// ErrDuplicateVersion if that version is already deferred.
func (k *Keyholder) InsertDeferred(version chain.Version, op *DeferredOp) error {
	if _, exists := k.deferredOps[version]; exists {
		return ErrDuplicateVersion
	}
	k.deferredOps[version] = op
	idx := sort.Search(len(k.deferredVer), func(i int) bool { return k.deferredVer[i] >= version })
	k.deferredVer = append(k.deferredVer, 0)
	copy(k.deferredVer[idx+1:], k.deferredVer[idx:])
	k.deferredVer[idx] = version
	return nil
}

// RemoveDeferred removes and discards the deferred op at version, if any.
func (k *Keyholder) RemoveDeferred(version chain.Version) {
	if _, ok := k.deferredOps[version]; !ok {
		return
	}
	delete(k.deferredOps, version)
	for i, v := range k.deferredVer {
		if v == version {
			k.deferredVer = append(k.deferredVer[:i], k.deferredVer[i+1:]...)
			break
		}
	}
}

// RemoveOldestDeferredOp removes and returns the lowest-versioned deferred
// op, or ok=false if deferred is empty.
func (k *Keyholder) RemoveOldestDeferredOp() (version chain.Version, op *DeferredOp, ok bool) {
	if len(k.deferredVer) == 0 {
		return 0, nil, false
	}
	version = k.deferredVer[0]
	op = k.deferredOps[version]
	k.RemoveDeferred(version)
	return version, op, true
}

// OldestDeferredVersion returns the lowest version in deferred, if any.
func (k *Keyholder) OldestDeferredVersion() (chain.Version, bool) {
	if len(k.deferredVer) == 0 {
		return 0, false
	}
	return k.deferredVer[0], true
}

// HasDeferredOps reports whether deferred is non-empty.
func (k *Keyholder) HasDeferredOps() bool {
	return len(k.deferredVer) > 0
}

// GetDeferred returns the deferred op at version, if present.
func (k *Keyholder) GetDeferred(version chain.Version) (*DeferredOp, bool) {
	op, ok := k.deferredOps[version]
	return op, ok
}

// --------------------------------------------------------------------------
// Blocked queue
// --------------------------------------------------------------------------

// AppendBlocked appends op at version. version must be strictly greater
// than every version currently in blocked or committable, or this returns
// ErrOutOfOrder (invariant 1, spec.md §3).
func (k *Keyholder) AppendBlocked(version chain.Version, op *PendingOp) error {
	if mv, ok := k.maxQueuedVersion(); ok && version <= mv {
		return ErrOutOfOrder
	}
	k.blocked = append(k.blocked, versionedPending{version, op})
	return nil
}

func (k *Keyholder) maxQueuedVersion() (chain.Version, bool) {
	if n := len(k.blocked); n > 0 {
		return k.blocked[n-1].version, true
	}
	if n := len(k.committable); n > 0 {
		return k.committable[n-1].version, true
	}
	return 0, false
}

// HasBlockedOps reports whether blocked is non-empty.
func (k *Keyholder) HasBlockedOps() bool {
	return len(k.blocked) > 0
}

// OldestBlockedVersion returns the lowest version in blocked, if any.
func (k *Keyholder) OldestBlockedVersion() (chain.Version, bool) {
	if len(k.blocked) == 0 {
		return 0, false
	}
	return k.blocked[0].version, true
}

// OldestBlockedOp returns the lowest-versioned blocked op, if any.
func (k *Keyholder) OldestBlockedOp() (*PendingOp, bool) {
	if len(k.blocked) == 0 {
		return nil, false
	}
	return k.blocked[0].op, true
}

// MostRecentBlockedVersion returns the highest version in blocked, if any.
func (k *Keyholder) MostRecentBlockedVersion() (chain.Version, bool) {
	if n := len(k.blocked); n > 0 {
		return k.blocked[n-1].version, true
	}
	return 0, false
}

// MostRecentBlockedOp returns the highest-versioned blocked op, if any.
func (k *Keyholder) MostRecentBlockedOp() (*PendingOp, bool) {
	if n := len(k.blocked); n > 0 {
		return k.blocked[n-1].op, true
	}
	return nil, false
}

// TransferBlockedToCommittable moves the oldest blocked op to the tail of
// committable (spec.md §4.1). Panics if blocked is empty - callers must
// check HasBlockedOps first, matching the spec's "moves the oldest" with
// no not-found case.
func (k *Keyholder) TransferBlockedToCommittable() (chain.Version, *PendingOp) {
	head := k.blocked[0]
	k.blocked = k.blocked[1:]
	k.committable = append(k.committable, head)
	return head.version, head.op
}

// --------------------------------------------------------------------------
// Committable queue
// --------------------------------------------------------------------------

// HasCommittableOps reports whether committable is non-empty.
func (k *Keyholder) HasCommittableOps() bool {
	return len(k.committable) > 0
}

// CommittableLen returns the number of ops currently queued as
// committable, for callers that only need a count (e.g. metrics
// sampling) rather than the ops themselves.
func (k *Keyholder) CommittableLen() int {
	return len(k.committable)
}

// OldestCommittableVersion returns the lowest version in committable, if any.
func (k *Keyholder) OldestCommittableVersion() (chain.Version, bool) {
	if len(k.committable) == 0 {
		return 0, false
	}
	return k.committable[0].version, true
}

// OldestCommittableOp returns the lowest-versioned committable op, if any.
func (k *Keyholder) OldestCommittableOp() (*PendingOp, bool) {
	if len(k.committable) == 0 {
		return nil, false
	}
	return k.committable[0].op, true
}

// MostRecentCommittableVersion returns the highest version in committable.
func (k *Keyholder) MostRecentCommittableVersion() (chain.Version, bool) {
	if n := len(k.committable); n > 0 {
		return k.committable[n-1].version, true
	}
	return 0, false
}

// MostRecentCommittableOp returns the highest-versioned committable op.
func (k *Keyholder) MostRecentCommittableOp() (*PendingOp, bool) {
	if n := len(k.committable); n > 0 {
		return k.committable[n-1].op, true
	}
	return nil, false
}

// RemoveOldestCommittableOp removes the lowest-versioned committable op.
func (k *Keyholder) RemoveOldestCommittableOp() {
	if len(k.committable) == 0 {
		return
	}
	k.committable = k.committable[1:]
}

// --------------------------------------------------------------------------
// Cross-queue queries
// --------------------------------------------------------------------------

// GetByVersion returns the op at version across blocked ∪ committable, or
// ok=false if not present in either (spec.md §4.1).
func (k *Keyholder) GetByVersion(version chain.Version) (*PendingOp, bool) {
	for _, vp := range k.blocked {
		if vp.version == version {
			return vp.op, true
		}
	}
	for _, vp := range k.committable {
		if vp.version == version {
			return vp.op, true
		}
	}
	return nil, false
}

// LatestKnownVersion returns the highest version known to this keyholder
// across blocked, committable, and version_on_disk, in that preference
// order (the most recent queued op always has the freshest value).
func (k *Keyholder) LatestKnownVersion() chain.Version {
	if v, ok := k.MostRecentBlockedVersion(); ok {
		return v
	}
	if v, ok := k.MostRecentCommittableVersion(); ok {
		return v
	}
	return k.versionOnDisk
}

// SetVersionOnDisk records the version the DataLayer now reflects.
func (k *Keyholder) SetVersionOnDisk(v chain.Version) {
	k.versionOnDisk = v
}

// VersionOnDisk returns the version the DataLayer was last told to apply.
func (k *Keyholder) VersionOnDisk() chain.Version {
	return k.versionOnDisk
}

// Empty reports whether all three queues are drained - the precondition
// for erasing this keyholder from its table (invariant 6, spec.md §3).
func (k *Keyholder) Empty() bool {
	return len(k.blocked) == 0 && len(k.committable) == 0 && len(k.deferredVer) == 0
}
