package replication

import (
	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
)

// moveOperationsBetweenQueues implements move_operations_between_queues
// (spec.md §4.6). Must be called with the key's stripe lock held. Returns
// the deferred I/O (messenger sends) any newly-committable op triggers.
func (m *Manager) moveOperationsBetweenQueues(region chain.RegionId, key chain.Key, kh *keyholder.Keyholder) []func() {
	var actions []func()

	// Phase A: deferred -> blocked.
	for {
		v, ok := kh.OldestDeferredVersion()
		if !ok {
			break
		}
		expected := kh.LatestKnownVersion() + 1
		if v < expected {
			kh.RemoveDeferred(v)
			continue
		}
		if v > expected {
			break
		}

		_, dop, _ := kh.RemoveOldestDeferredOp()
		hasOld, oldValue, ok := m.valueAtVersion(region, key, kh, expected-1)
		if !ok {
			// Predecessor vanished between deferral and now - drop it,
			// the sender will retransmit and we'll re-defer if needed.
			continue
		}

		coords, ok := PrevAndNext(m.config(),
			region, key,
			Side{Has: dop.HasValue, Value: dop.Value},
			Side{Has: hasOld, Value: oldValue},
		)
		if !ok {
			continue
		}
		if !m.isValidChainSender(dop.RecvEntity, dop.ToEntity) {
			continue
		}

		pend := &keyholder.PendingOp{
			HasValue:      dop.HasValue,
			Fresh:         dop.Fresh,
			Backing:       dop.Backing,
			Key:           dop.Key,
			Value:         dop.Value,
			Us:            dop.ToEntity,
			SubspacePrev:  coords.SubspacePrev,
			SubspaceNext:  coords.SubspaceNext,
			PointPrev:     coords.PointPrev,
			PointThis:     coords.PointThis,
			PointNext:     coords.PointNext,
			PointNextNext: coords.PointNextNext,
			RecvEntity:    dop.RecvEntity,
			RecvInstance:  dop.RecvInstance,
			RetCode:       chain.RetSuccess,
		}
		if err := kh.AppendBlocked(v, pend); err != nil {
			m.log.Warningf("move_operations_between_queues: %v region=%s version=%d", err, region, v)
		}
	}

	// Phase B: blocked -> committable.
	for kh.HasBlockedOps() {
		op, _ := kh.OldestBlockedOp()
		if (op.Fresh || !op.HasValue) && kh.HasCommittableOps() {
			break
		}
		v, op := kh.TransferBlockedToCommittable()
		if action := m.sendMessageLocked(region, key, v, op); action != nil {
			actions = append(actions, action)
		}
	}

	return actions
}
