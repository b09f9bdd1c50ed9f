package replication

import (
	"sync/atomic"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
	"github.com/chainkv/chainkv/chain/logging"
	"github.com/chainkv/chainkv/chain/striped"
	"github.com/lni/dragonboat/v4/logger"
)

// Manager is the ReplicationManager (spec.md §4.3-§4.8): the chain
// protocol's client and peer entry points, built on top of a striped
// keyholder table and five external collaborators consumed only through
// their interfaces.
type Manager struct {
	data       chain.DataLayer
	msg        chain.Messenger
	cfgPtr     atomic.Pointer[chain.Configuration]
	transfers  chain.StateTransfers
	coord      chain.CoordinatorLink
	respond    chain.Responder
	table      *striped.Table
	log        logger.ILogger
	metrics    Metrics
	quiescing  atomic.Bool
	quiesceAck atomic.Bool
}

// Collaborators bundles the five external dependencies spec.md §1 says
// to consume only via interface, plus the client-reply path.
type Collaborators struct {
	DataLayer       chain.DataLayer
	Messenger       chain.Messenger
	Configuration   chain.Configuration
	StateTransfers  chain.StateTransfers
	CoordinatorLink chain.CoordinatorLink
	Responder       chain.Responder
	// Metrics is optional; a nil value disables instrumentation entirely.
	Metrics Metrics
}

// New creates a Manager whose keyholder table uses spec.md §6's
// LOCK_STRIPING constant (striped.DefaultStriping) for its stripe locks;
// the table itself is not presized.
func New(c Collaborators) *Manager {
	m := &Manager{
		data:      c.DataLayer,
		msg:       c.Messenger,
		transfers: c.StateTransfers,
		coord:     c.CoordinatorLink,
		respond:   c.Responder,
		table:     striped.NewTable(striped.DefaultStriping),
		log:       logging.Factory("chain/replication"),
		metrics:   c.Metrics,
	}
	m.cfgPtr.Store(&c.Configuration)
	return m
}

// config returns the current Configuration snapshot. spec.md §5 requires
// process-wide configuration to be "copied on reconfigure under the
// appropriate lock" - cfgPtr is that copy-on-write slot, read without any
// lock via atomic.Pointer so every hot path below pays no synchronization
// cost for the common case of a configuration that never changes.
func (m *Manager) config() chain.Configuration {
	return *m.cfgPtr.Load()
}

// Quiescing reports whether client_atomic/client_del must reply READONLY.
func (m *Manager) Quiescing() bool {
	return m.quiescing.Load()
}

// Table exposes the keyholder table so the periodic loop can scan it.
func (m *Manager) Table() *striped.Table {
	return m.table
}

// run executes a batch of deferred side effects (messenger sends, disk
// I/O, self-acks) collected while a stripe lock was held, now that it
// has been released.
func run(actions []func()) {
	for _, action := range actions {
		if action != nil {
			action()
		}
	}
}

// isValidChainSender implements the host check spec.md §4.4 step 6 and
// §4.9's chain_subspace host check share: from must either be
// chain-adjacent to to within the same region, or be the tail of the
// subspace immediately before to's, with to the head of its subspace.
func (m *Manager) isValidChainSender(from, to chain.EntityId) bool {
	cfg := m.config()
	if cfg.ChainAdjacent(from, to) {
		return true
	}
	return cfg.IsTail(from) &&
		to.Index == 0 &&
		to.Region.Subspace.Space == from.Region.Subspace.Space &&
		to.Region.Subspace.Index == from.Region.Subspace.Index+1
}

// Prepare is a no-op hook called before a Reconfigure takes effect,
// supplementing original_source's replication_manager.cc pair of
// reconfigure callbacks for symmetry - kept as a named method so a future
// coordinator integration has a place to hang pre-commit checks (e.g.
// refusing a configuration that would orphan in-flight committable ops)
// without having to invent the method later.
func (m *Manager) Prepare(next chain.Configuration) error {
	return nil
}

// Reconfigure installs a new Configuration snapshot and evicts every
// keyholder whose region next no longer hosts locally (spec.md §5: "other
// process-wide state... is copied on reconfigure under the appropriate
// lock"). original_source's reconfigure walks the keyholder table under
// one global lock while separately re-acquiring each entry's stripe lock,
// with a known race against a concurrent chain_ack erasing the entry
// mid-inspection (see DESIGN.md's Open Question decision on the
// `iter != begin()` loop bug) - this instead re-verifies table identity
// under the stripe lock for every entry, the same discipline the
// periodic sweep already uses, so the race cannot apply to a keyholder
// that has already been erased or replaced.
func (m *Manager) Reconfigure(next chain.Configuration) {
	m.cfgPtr.Store(&next)

	m.table.Range(func(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder) bool {
		local, ok := next.LocalEntity(region)
		if ok && next.Hosts(local) {
			return true
		}
		hold := m.table.Locks.Hold(region, key)
		m.table.EraseIfIdentical(region, key, kh)
		hold.Unlock()
		return true
	})
}

// resolvePredecessor implements chain_common's predecessor lookup
// (spec.md §4.4 step 3) for an incoming op at version: it checks the
// keyholder for version-1 first, then falls back to disk. alreadyOnDisk
// means the caller should just ack and return without touching the
// queues - disk is already at or past version. predKnown=false means
// the predecessor is unknown (disk is more than one version behind).
func (m *Manager) resolvePredecessor(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder, version chain.Version) (predKnown, hasValue bool, value chain.Value, alreadyOnDisk bool) {
	if version == 0 {
		return false, false, nil, false
	}
	if prev, found := kh.GetByVersion(version - 1); found {
		return true, prev.HasValue, prev.Value, false
	}
	diskValue, diskVersion, status := m.data.Get(region, key)
	if diskVersion >= version {
		return false, false, nil, true
	}
	if diskVersion < version-1 {
		return false, false, nil, false
	}
	return true, status == chain.DiskSuccess, diskValue, false
}

// retrieveLatest implements client_atomic/client_del's retrieve_latest
// step (spec.md §4.3 step 5): the current version and value for a key,
// preferring the keyholder's own queues (fresher than disk) and falling
// back to DataLayer.Get otherwise. A keyholder freshly created by
// GetOrCreate after its predecessor was erased knows nothing about
// version_on_disk, so this never trusts LatestKnownVersion alone - it
// always resolves against disk when the queues are empty, and re-syncs
// version_on_disk so later put_to_disk calls don't regress it.
func (m *Manager) retrieveLatest(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder) (version chain.Version, hasValue bool, value chain.Value) {
	if op, ok := kh.MostRecentBlockedOp(); ok {
		v, _ := kh.MostRecentBlockedVersion()
		return v, op.HasValue, op.Value
	}
	if op, ok := kh.MostRecentCommittableOp(); ok {
		v, _ := kh.MostRecentCommittableVersion()
		return v, op.HasValue, op.Value
	}

	diskValue, diskVersion, status := m.data.Get(region, key)
	if status == chain.DiskMissing {
		return 0, false, nil
	}
	if diskVersion > kh.VersionOnDisk() {
		kh.SetVersionOnDisk(diskVersion)
	}
	return diskVersion, status == chain.DiskSuccess, diskValue
}

// valueAtVersion resolves the value a key held at exactly version,
// checking the keyholder's queues before falling back to disk. Used when
// promoting a deferred op: its predecessor (version-1) must already be
// resolvable, since it only promotes once move_operations_between_queues
// has confirmed the keyholder's latest known version has caught up to it.
func (m *Manager) valueAtVersion(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder, version chain.Version) (hasValue bool, value chain.Value, ok bool) {
	if version == 0 {
		return false, nil, true
	}
	if op, found := kh.GetByVersion(version); found {
		return op.HasValue, op.Value, true
	}
	diskValue, diskVersion, status := m.data.Get(region, key)
	if diskVersion != version || status == chain.DiskError {
		return false, nil, false
	}
	return status == chain.DiskSuccess, diskValue, true
}
