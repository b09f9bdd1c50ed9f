package replication

import (
	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
	"github.com/chainkv/chainkv/chain/microop"
)

// ClientAtomic implements client_atomic (spec.md §4.3): validate checks
// and ops against the current value, append the result as a new version,
// and let the chain carry it forward. opcode is carried through only for
// logging - this engine does not distinguish opcodes beyond what ops/
// checks/fail flags already express.
func (m *Manager) ClientAtomic(opcode string, from, to chain.EntityId, nonce uint64, key chain.Key, checks []microop.Check, ops []microop.Op, failIfFound, failIfNotFound bool) {
	if m.quiescing.Load() {
		m.respond.Reply(from, nonce, chain.RetReadOnly)
		return
	}

	schema, ok := m.config().Schema(to.Region.Subspace.Space)
	if !ok || !schema.ValidateKey(key) {
		m.respond.Reply(from, nonce, chain.RetBadDimSpec)
		return
	}
	if !m.config().IsPointLeader(to) {
		m.respond.Reply(from, nonce, chain.RetNotUs)
		return
	}

	hold := m.table.Locks.Hold(to.Region, key)
	code, actions := m.clientAtomicLocked(schema, from, to, nonce, key, checks, ops, failIfFound, failIfNotFound)
	hold.Unlock()

	if code != chain.RetSuccess {
		// RetSuccess here means "queued, reply comes later via chain_ack".
		m.respond.Reply(from, nonce, code)
		return
	}
	run(actions)
}

func (m *Manager) clientAtomicLocked(schema *chain.Schema, from, to chain.EntityId, nonce uint64, key chain.Key, checks []microop.Check, ops []microop.Op, failIfFound, failIfNotFound bool) (code chain.RetCode, acts []func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("client_atomic: panic: %v", r)
			code, acts = chain.RetServerError, nil
		}
	}()

	kh := m.table.GetOrCreate(to.Region, key)
	oldVersion, hasOld, oldValue := m.retrieveLatest(to.Region, key, kh)

	if !hasOld && failIfNotFound {
		return chain.RetNotFound, nil
	}
	if hasOld && failIfFound {
		return chain.RetCmpFail, nil
	}
	fresh := !hasOld

	newValue, passed, microErr := microop.ApplyChecksAndOps(schema, checks, ops, oldValue)
	total := len(checks) + len(ops)
	if microErr != nil && microErr.Kind == microop.KindOverflow {
		return chain.RetOverflow, nil
	}
	if microErr != nil || passed < total {
		return chain.RetCmpFail, nil
	}

	coords, ok := PrevAndNext(m.config(), to.Region, key, Side{Has: true, Value: newValue}, Side{Has: hasOld, Value: oldValue})
	if !ok {
		m.log.Errorf("client_atomic: prev_and_next rejected our own region=%s", to.Region)
		return chain.RetServerError, nil
	}

	pend := &keyholder.PendingOp{
		HasValue:      true,
		Fresh:         fresh,
		Key:           key,
		Value:         newValue,
		Us:            to,
		ClientOp:      chain.ClientOp{Region: to.Region, From: from, Nonce: nonce, HasClient: true},
		SubspacePrev:  coords.SubspacePrev,
		SubspaceNext:  coords.SubspaceNext,
		PointPrev:     coords.PointPrev,
		PointThis:     coords.PointThis,
		PointNext:     coords.PointNext,
		PointNextNext: coords.PointNextNext,
		RetCode:       chain.RetSuccess,
	}
	if err := kh.AppendBlocked(oldVersion+1, pend); err != nil {
		m.log.Errorf("client_atomic: %v region=%s", err, to.Region)
		return chain.RetServerError, nil
	}
	actions := m.moveOperationsBetweenQueues(to.Region, key, kh)
	return chain.RetSuccess, actions
}

// ClientDel implements client_del (spec.md §4.3): like ClientAtomic but
// always deletes, and replies NOTFOUND rather than queuing when no prior
// value exists.
func (m *Manager) ClientDel(from, to chain.EntityId, nonce uint64, key chain.Key, checks []microop.Check) {
	if m.quiescing.Load() {
		m.respond.Reply(from, nonce, chain.RetReadOnly)
		return
	}

	schema, ok := m.config().Schema(to.Region.Subspace.Space)
	if !ok || !schema.ValidateKey(key) {
		m.respond.Reply(from, nonce, chain.RetBadDimSpec)
		return
	}
	if !m.config().IsPointLeader(to) {
		m.respond.Reply(from, nonce, chain.RetNotUs)
		return
	}

	hold := m.table.Locks.Hold(to.Region, key)
	code, actions := m.clientDelLocked(schema, from, to, nonce, key, checks)
	hold.Unlock()

	if code != chain.RetSuccess {
		m.respond.Reply(from, nonce, code)
		return
	}
	run(actions)
}

func (m *Manager) clientDelLocked(schema *chain.Schema, from, to chain.EntityId, nonce uint64, key chain.Key, checks []microop.Check) (code chain.RetCode, acts []func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("client_del: panic: %v", r)
			code, acts = chain.RetServerError, nil
		}
	}()

	kh := m.table.GetOrCreate(to.Region, key)
	oldVersion, hasOld, oldValue := m.retrieveLatest(to.Region, key, kh)
	if !hasOld {
		return chain.RetNotFound, nil
	}

	_, passed, microErr := microop.ApplyChecksAndOps(schema, checks, nil, oldValue)
	if microErr != nil || passed < len(checks) {
		return chain.RetCmpFail, nil
	}

	coords, ok := PrevAndNext(m.config(), to.Region, key, Side{Has: false}, Side{Has: true, Value: oldValue})
	if !ok {
		m.log.Errorf("client_del: prev_and_next rejected our own region=%s", to.Region)
		return chain.RetServerError, nil
	}

	pend := &keyholder.PendingOp{
		HasValue:      false,
		Fresh:         false,
		Key:           key,
		Us:            to,
		ClientOp:      chain.ClientOp{Region: to.Region, From: from, Nonce: nonce, HasClient: true},
		SubspacePrev:  coords.SubspacePrev,
		SubspaceNext:  coords.SubspaceNext,
		PointPrev:     coords.PointPrev,
		PointThis:     coords.PointThis,
		PointNext:     coords.PointNext,
		PointNextNext: coords.PointNextNext,
		RetCode:       chain.RetSuccess,
	}
	if err := kh.AppendBlocked(oldVersion+1, pend); err != nil {
		m.log.Errorf("client_del: %v region=%s", err, to.Region)
		return chain.RetServerError, nil
	}
	actions := m.moveOperationsBetweenQueues(to.Region, key, kh)
	return chain.RetSuccess, actions
}
