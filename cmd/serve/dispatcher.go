package serve

import (
	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/logging"
	"github.com/chainkv/chainkv/chain/replication"
	"github.com/lni/dragonboat/v4/logger"
)

// manager is the subset of chain/replication.Manager the dispatcher calls
// into - one method per chain.MsgType decode below.
type manager interface {
	ChainPut(from, to chain.EntityId, version chain.Version, fresh bool, key chain.Key, value chain.Value)
	ChainDel(from, to chain.EntityId, version chain.Version, key chain.Key)
	ChainSubspace(from, to chain.EntityId, version chain.Version, key chain.Key, value chain.Value, next uint64)
	ChainAck(from, to chain.EntityId, version chain.Version, key chain.Key)
}

// dispatcher implements chain/messenger.Handler: it decodes an inbound
// frame per its chain.MsgType and calls the matching Manager method. It
// is constructed before the Manager it drives (chain/messenger.New and
// chain/replication.New each need the other), so manager is filled in
// once both exist - see root.go's wiring order.
type dispatcher struct {
	manager manager
	cfg     chain.Configuration
	log     logger.ILogger
}

func newDispatcher(cfg chain.Configuration) *dispatcher {
	return &dispatcher{cfg: cfg, log: logging.Factory("cmd")}
}

// Handle implements chain/messenger.Handler.
func (d *dispatcher) Handle(from, to chain.EntityId, msgType chain.MsgType, payload []byte) {
	attrCount := 0
	if schema, ok := d.cfg.Schema(to.Region.Subspace.Space); ok {
		attrCount = len(schema.Attributes)
	}

	switch msgType {
	case chain.MsgChainPut:
		version, fresh, key, value, err := replication.DecodeChainPut(payload, attrCount)
		if err != nil {
			d.log.Warningf("dispatch: chain_put: %v", err)
			return
		}
		d.manager.ChainPut(from, to, version, fresh, key, value)
	case chain.MsgChainDel:
		version, key, err := replication.DecodeChainDel(payload)
		if err != nil {
			d.log.Warningf("dispatch: chain_del: %v", err)
			return
		}
		d.manager.ChainDel(from, to, version, key)
	case chain.MsgChainSubspace:
		version, key, value, next, err := replication.DecodeChainSubspace(payload, attrCount)
		if err != nil {
			d.log.Warningf("dispatch: chain_subspace: %v", err)
			return
		}
		d.manager.ChainSubspace(from, to, version, key, value, next)
	case chain.MsgChainAck:
		version, key, err := replication.DecodeChainAck(payload)
		if err != nil {
			d.log.Warningf("dispatch: chain_ack: %v", err)
			return
		}
		d.manager.ChainAck(from, to, version, key)
	case chain.MsgClientResponse:
		// This binary's Gateway (chain/frontend) always resolves a
		// client reply in-process, so it never arrives here - see
		// chain/frontend/doc.go. Logged in case a future cross-instance
		// gateway starts sending it.
		d.log.Warningf("dispatch: unexpected CLIENT_RESPONSE from %s to %s", from, to)
	default:
		d.log.Warningf("dispatch: unknown message type %v from %s to %s", msgType, from, to)
	}
}
