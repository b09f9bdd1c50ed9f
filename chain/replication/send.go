package replication

import (
	"time"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/keyholder"
)

// sendMessageLocked implements send_message (spec.md §4.7). It must be
// called with the key's stripe lock held - it mutates pend's sent_e/
// sent_i - but returns the actual send as a closure for the caller to
// run after releasing the lock. Idempotent: returns nil without touching
// pend if it was already sent.
func (m *Manager) sendMessageLocked(region chain.RegionId, key chain.Key, version chain.Version, pend *keyholder.PendingOp) func() {
	if pend.IsSent() {
		return nil
	}
	us := pend.Us
	cfg := m.config()

	route := func(to chain.EntityId, msgType chain.MsgType, payload []byte) func() {
		pend.SentEntity = to
		pend.SentAt = time.Now()
		if inst, ok := cfg.InstanceOf(to); ok {
			pend.SentInstance = inst
		}
		return func() { m.msg.Send(us, to, msgType, payload) }
	}

	if cfg.IsTail(us) {
		switch {
		case pend.SubspaceNext == chain.NoSubspace:
			pend.SentEntity = us
			pend.SentAt = time.Now()
			if inst, ok := cfg.InstanceOf(us); ok {
				pend.SentInstance = inst
			}
			return func() { m.ChainAck(us, us, version, key) }

		case pend.SubspaceNext == us.Region.Subspace.Index:
			head, ok := cfg.HeadOfSubspace(us.Region.Subspace.Space, us.Region.Subspace.Index, chain.Coordinate{Point: pend.PointNext})
			if !ok {
				m.log.Warningf("send_message: no head found for cross-subspace transfer region=%s", region)
				return nil
			}
			return route(head, chain.MsgChainSubspace, EncodeChainSubspace(version, key, pend.Value, pend.PointNextNext))

		case pend.SubspaceNext == us.Region.Subspace.Index+1:
			head, ok := cfg.HeadOfSubspace(us.Region.Subspace.Space, pend.SubspaceNext, chain.Coordinate{Point: pend.PointNext})
			if !ok {
				m.log.Warningf("send_message: no head found for next subspace region=%s", region)
				return nil
			}
			if pend.HasValue {
				return route(head, chain.MsgChainPut, EncodeChainPut(version, pend.Fresh, key, pend.Value))
			}
			return route(head, chain.MsgChainDel, EncodeChainDel(version, key))

		default:
			m.log.Errorf("send_message: invariant violation, tail with subspace_next=%d region=%s", pend.SubspaceNext, region)
			return nil
		}
	}

	if pend.SubspacePrev == us.Region.Subspace.Index {
		next, ok := cfg.ChainNext(us)
		if !ok {
			m.log.Warningf("send_message: no chain_next during cross-subspace hop region=%s", region)
			return nil
		}
		return route(next, chain.MsgChainSubspace, EncodeChainSubspace(version, key, pend.Value, pend.PointNext))
	}

	next, ok := cfg.ChainNext(us)
	if !ok {
		m.log.Warningf("send_message: no chain_next region=%s", region)
		return nil
	}
	if pend.HasValue {
		return route(next, chain.MsgChainPut, EncodeChainPut(version, pend.Fresh, key, pend.Value))
	}
	return route(next, chain.MsgChainDel, EncodeChainDel(version, key))
}
