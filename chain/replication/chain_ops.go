package replication

import (
	"time"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
)

// ChainPut handles an inbound CHAIN_PUT message: from sent us a new value
// for key at version (spec.md §4.4).
func (m *Manager) ChainPut(from, to chain.EntityId, version chain.Version, fresh bool, key chain.Key, value chain.Value) {
	m.chainCommon(from, to, version, keyholder.DeferredOp{
		HasValue: true,
		Fresh:    fresh,
		Key:      key,
		Value:    value,
	})
}

// ChainDel handles an inbound CHAIN_DEL message.
func (m *Manager) ChainDel(from, to chain.EntityId, version chain.Version, key chain.Key) {
	m.chainCommon(from, to, version, keyholder.DeferredOp{
		HasValue: false,
		Key:      key,
	})
}

// chainCommon implements chain_common (spec.md §4.4), the logic shared by
// CHAIN_PUT and CHAIN_DEL: resolve the predecessor, either ack-and-return
// (already on disk), defer (predecessor unknown and the op is not fresh),
// or validate the sender and enqueue.
func (m *Manager) chainCommon(from, to chain.EntityId, version chain.Version, op keyholder.DeferredOp) {
	region := to.Region
	key := op.Key

	hold := m.table.Locks.Hold(region, key)
	actions := m.chainCommonLocked(from, to, version, op)
	hold.Unlock()

	run(actions)
}

func (m *Manager) chainCommonLocked(from, to chain.EntityId, version chain.Version, op keyholder.DeferredOp) []func() {
	region := to.Region
	key := op.Key
	kh := m.table.GetOrCreate(region, key)

	// Step: idempotency. If this exact version is still queued here, just
	// re-ack - the sender will have seen our earlier ack get lost. A version
	// already on disk is re-acked below, via resolvePredecessor.
	if existing, found := kh.GetByVersion(version); found {
		existing.RecvEntity = from
		return []func(){m.ackAction(to, from, version, key)}
	}

	predKnown, hasOld, oldValue, alreadyOnDisk := m.resolvePredecessor(region, key, kh, version)
	if alreadyOnDisk {
		return []func(){m.ackAction(to, from, version, key)}
	}
	if !predKnown && !op.Fresh {
		op.RecvEntity = from
		op.ToEntity = to
		if inst, ok := m.config().InstanceOf(from); ok {
			op.RecvInstance = inst
		}
		if err := kh.InsertDeferred(version, &op); err != nil {
			m.log.Warningf("chain_common: %v region=%s version=%d", err, region, version)
		}
		return nil
	}

	coords, ok := PrevAndNext(m.config(), region, key, Side{Has: op.HasValue, Value: op.Value}, Side{Has: hasOld, Value: oldValue})
	if !ok {
		m.log.Errorf("chain_common: prev_and_next rejected our own region=%s key=%x", region, key)
		return nil
	}
	if !m.isValidChainSender(from, to) {
		m.log.Warningf("chain_common: invalid sender %s -> %s region=%s", from, to, region)
		return nil
	}

	pend := &keyholder.PendingOp{
		HasValue:      op.HasValue,
		Fresh:         op.Fresh,
		Backing:       op.Backing,
		Key:           key,
		Value:         op.Value,
		Us:            to,
		SubspacePrev:  coords.SubspacePrev,
		SubspaceNext:  coords.SubspaceNext,
		PointPrev:     coords.PointPrev,
		PointThis:     coords.PointThis,
		PointNext:     coords.PointNext,
		PointNextNext: coords.PointNextNext,
		RecvEntity:    from,
		RetCode:       chain.RetSuccess,
	}
	if inst, ok := m.config().InstanceOf(from); ok {
		pend.RecvInstance = inst
	}
	if err := kh.AppendBlocked(version, pend); err != nil {
		m.log.Warningf("chain_common: %v region=%s version=%d", err, region, version)
		return nil
	}
	return m.moveOperationsBetweenQueues(region, key, kh)
}

// ackAction builds the deferred CHAIN_ACK send for an already-satisfied
// version (either idempotent replay or already-on-disk): us tells sender
// to stop retransmitting.
func (m *Manager) ackAction(us, sender chain.EntityId, version chain.Version, key chain.Key) func() {
	return func() {
		m.msg.Send(us, sender, chain.MsgChainAck, EncodeChainAck(version, key))
	}
}

// ChainSubspace handles an inbound CHAIN_SUBSPACE message: a value is
// crossing from one subspace's chain into the next (spec.md §4.9). next
// is the coordinate the value must hash to in the destination subspace
// and becomes the op's PointThis. The op is queued and forwarded like any
// other; no check is made that this node hosts the destination region.
func (m *Manager) ChainSubspace(from, to chain.EntityId, version chain.Version, key chain.Key, value chain.Value, next uint64) {
	region := to.Region
	hold := m.table.Locks.Hold(region, key)
	actions := m.chainSubspaceLocked(from, to, version, key, value, next)
	hold.Unlock()
	run(actions)
}

func (m *Manager) chainSubspaceLocked(from, to chain.EntityId, version chain.Version, key chain.Key, value chain.Value, next uint64) []func() {
	region := to.Region
	kh := m.table.GetOrCreate(region, key)

	if existing, found := kh.GetByVersion(version); found {
		existing.RecvEntity = from
		return []func(){m.ackAction(to, from, version, key)}
	}
	if !m.isValidChainSender(from, to) {
		m.log.Warningf("chain_subspace: invalid sender %s -> %s region=%s", from, to, region)
		return nil
	}

	coords, ok := PrevAndNext(m.config(), region, key, Side{Has: true, Value: value}, Side{Has: true, Value: value})
	if !ok {
		m.log.Errorf("chain_subspace: prev_and_next rejected our own region=%s key=%x", region, key)
		return nil
	}
	coords.PointThis = next

	pend := &keyholder.PendingOp{
		HasValue:      true,
		Fresh:         true,
		Key:           key,
		Value:         value,
		Us:            to,
		SubspacePrev:  coords.SubspacePrev,
		SubspaceNext:  coords.SubspaceNext,
		PointPrev:     coords.PointPrev,
		PointThis:     coords.PointThis,
		PointNext:     coords.PointNext,
		PointNextNext: coords.PointNextNext,
		RecvEntity:    from,
		RetCode:       chain.RetSuccess,
	}
	if inst, ok := m.config().InstanceOf(from); ok {
		pend.RecvInstance = inst
	}
	if err := kh.AppendBlocked(version, pend); err != nil {
		m.log.Warningf("chain_subspace: %v region=%s version=%d", err, region, version)
		return nil
	}
	return m.moveOperationsBetweenQueues(region, key, kh)
}

// ChainAck handles an inbound CHAIN_ACK message: version has been durably
// applied everywhere downstream of us (spec.md §4.4 step on ack,
// walked back from the tail). If we are the point-leader and the op
// carries a client request, this is where the client finally gets its
// answer; otherwise the ack propagates upstream.
func (m *Manager) ChainAck(from, to chain.EntityId, version chain.Version, key chain.Key) {
	region := to.Region
	hold := m.table.Locks.Hold(region, key)
	actions := m.chainAckLocked(from, to, version, key)
	hold.Unlock()
	run(actions)
}

func (m *Manager) chainAckLocked(from, to chain.EntityId, version chain.Version, key chain.Key) []func() {
	region := to.Region
	kh, found := m.table.Lookup(region, key)
	if !found {
		return nil
	}

	pend, found := kh.GetByVersion(version)
	if !found {
		return nil
	}
	if !pend.IsSent() || from != pend.SentEntity {
		return nil
	}
	if m.metrics != nil && !pend.SentAt.IsZero() {
		m.metrics.ObserveAckLatency(time.Since(pend.SentAt))
	}
	pend.Acked = true

	var actions []func()
	if disk := m.putToDiskLocked(region, key, kh, version); disk != nil {
		actions = append(actions, disk)
	}

	if m.transfers != nil {
		buf := EncodeValue(pend.Value)
		actions = append(actions, func() { m.transfers.AddTrigger(region, buf, key, version) })
	}

	// Garbage collect the acked committable prefix, stopping at the first
	// un-acked op, which stays queued (spec.md §4.4's "ack walks the
	// committable queue").
	for {
		op, ok := kh.OldestCommittableOp()
		if !ok || !op.Acked {
			break
		}
		v, _ := kh.OldestCommittableVersion()
		kh.RemoveOldestCommittableOp()

		if m.config().IsPointLeader(to) && op.ClientOp.HasClient {
			actions = append(actions, func(op *keyholder.PendingOp) func() {
				return func() { m.respond.Reply(op.ClientOp.From, op.ClientOp.Nonce, op.RetCode) }
			}(op))
		} else if !op.RecvEntity.IsNone() {
			actions = append(actions, func(v chain.Version, upstream chain.EntityId) func() {
				return func() { m.msg.Send(to, upstream, chain.MsgChainAck, EncodeChainAck(v, key)) }
			}(v, op.RecvEntity))
		}
	}

	if kh.Empty() {
		m.table.EraseIfIdentical(region, key, kh)
	} else {
		actions = append(actions, m.moveOperationsBetweenQueues(region, key, kh)...)
	}

	return actions
}
