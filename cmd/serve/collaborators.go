package serve

import (
	"github.com/chainkv/chainkv/chain"
	"github.com/lni/dragonboat/v4/logger"
)

// staticAddressBook implements chain/messenger.AddressBook from the
// --topology file's instance list - a fixed table, matching
// chain/config.Static's own "a new layout is a new value" discipline
// rather than anything dynamically discovered.
type staticAddressBook struct {
	addresses map[chain.InstanceId]string
}

func (b staticAddressBook) Address(id chain.InstanceId) (string, bool) {
	addr, ok := b.addresses[id]
	return addr, ok
}

// loggingStateTransfers is the chain.StateTransfers stand-in this binary
// ships with: rebalancing/state-transfer is named out of scope for the
// replication core itself (spec.md §1's Non-goals), and nothing in
// SPEC_FULL.md asks this CLI to drive a real hand-off subsystem, so
// AddTrigger just logs what a real implementation would have consumed.
type loggingStateTransfers struct {
	log logger.ILogger
}

func (t loggingStateTransfers) AddTrigger(region chain.RegionId, _ []byte, key chain.Key, version chain.Version) {
	t.log.Debugf("state transfer trigger region=%s key=%x version=%d", region, key, version)
}

// loggingCoordinatorLink is the chain.CoordinatorLink stand-in: no
// coordinator process is part of this module's scope, so Quiesced just
// logs the state id a real coordinator would have been notified with.
type loggingCoordinatorLink struct {
	log logger.ILogger
}

func (c loggingCoordinatorLink) Quiesced(stateID string) {
	c.log.Infof("quiesced, state_id=%s", stateID)
}
