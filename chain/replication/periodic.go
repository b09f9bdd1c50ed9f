package replication

import (
	"context"
	"time"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
)

// RetransmitInterval is the periodic loop's tick (spec.md §4.10): how
// often every live keyholder is swept for stale sends and quiesce
// progress is re-checked.
const RetransmitInterval = 250 * time.Millisecond

// Run drives the periodic retransmit/quiesce sweep (spec.md §4.10) until
// ctx is cancelled. It is meant to be started once per Manager in its own
// goroutine.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(RetransmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep implements one pass of the retransmit/quiesce loop: scan every
// keyholder, erase empty ones, resend anything whose target instance has
// churned, and - once a pass finds the keyholder table itself empty, not
// merely quiet - report quiescence to the coordinator exactly once
// (spec.md §4.10). Keyholders still holding committable ops awaiting acks
// count toward keyholderCount even when a pass finds no retransmit work
// for them, so quiescence does not fire while they are still draining.
func (m *Manager) sweep() {
	quiescing, stateID := m.config().Quiesce()
	if quiescing {
		m.quiescing.Store(true)
	}
	if m.metrics != nil {
		m.metrics.SetQuiescing(quiescing)
	}

	keyholderCount := 0
	committableBacklog := 0

	m.table.Range(func(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder) bool {
		hold := m.table.Locks.Hold(region, key)
		actions, _ := m.sweepOneLocked(region, key, kh)
		keyholderCount++
		committableBacklog += kh.CommittableLen()
		hold.Unlock()
		run(actions)
		return true
	})

	if m.metrics != nil {
		m.metrics.SetKeyholderCount(keyholderCount)
		m.metrics.SetCommittableBacklog(committableBacklog)
	}

	if quiescing {
		if keyholderCount == 0 && !m.quiesceAck.Load() {
			m.quiesceAck.Store(true)
			m.coord.Quiesced(stateID)
		}
	} else {
		m.quiescing.Store(false)
		m.quiesceAck.Store(false)
	}
}

// sweepOneLocked handles one keyholder under its stripe lock: erase it if
// empty, otherwise re-send the oldest committable op if its recorded
// target instance no longer matches Configuration (instance churn), or if
// it was never successfully sent in the first place. Blocked ops are not
// sent here; moveOperationsBetweenQueues releases them.
func (m *Manager) sweepOneLocked(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder) ([]func(), bool) {
	if kh.Empty() {
		m.table.EraseIfIdentical(region, key, kh)
		return nil, false
	}

	did := false
	var actions []func()

	visit := func(v chain.Version, op *keyholder.PendingOp) {
		if op.IsSent() {
			curInst, ok := m.config().InstanceOf(op.SentEntity)
			if ok && curInst == op.SentInstance {
				return
			}
			op.ClearSent()
		}
		did = true
		if m.metrics != nil {
			m.metrics.IncRetransmits()
		}
		if action := m.sendMessageLocked(region, key, v, op); action != nil {
			actions = append(actions, action)
		}
	}

	if v, ok := kh.OldestCommittableVersion(); ok {
		if op, ok := kh.GetByVersion(v); ok {
			visit(v, op)
		}
	}

	if moved := m.moveOperationsBetweenQueues(region, key, kh); len(moved) > 0 {
		did = true
		actions = append(actions, moved...)
	}

	return actions, did
}
