package messenger

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/logging"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Handler is the dispatch sink for inbound frames - chain/replication's
// Manager satisfies this for the four chain message types directly
// (ChainPut/ChainDel/ChainSubspace/ChainAck decoded from the raw payload
// by whatever wires Messenger to a Manager). Every inbound frame,
// MsgClientResponse included, is passed to Handle; no Manager method
// answers to MsgClientResponse, so it is up to the Handler.
type Handler interface {
	Handle(from, to chain.EntityId, msgType chain.MsgType, payload []byte)
}

// AddressBook resolves a physical instance to a dialable network address.
// Kept separate from chain.Configuration (which only maps EntityId ->
// InstanceId) so this package never needs the rest of Configuration's
// surface.
type AddressBook interface {
	Address(id chain.InstanceId) (addr string, ok bool)
}

// peerConn is one persistent connection to/from a remote instance, usable
// for sends in either direction once established.
type peerConn struct {
	mu   sync.Mutex
	conn net.Conn
	id   uuid.UUID
}

// Messenger is the concrete chain.Messenger: dials and accepts persistent
// TCP connections to/from peer instances, keyed by chain.InstanceId, and
// dispatches inbound frames to a Handler.
type Messenger struct {
	self    chain.InstanceId
	cfg     chain.Configuration
	book    AddressBook
	handler Handler
	log     logger.ILogger

	conns    *xsync.MapOf[chain.InstanceId, *peerConn]
	listener net.Listener

	dialTimeout time.Duration
}

// Options configures a Messenger.
type Options struct {
	// Self is this node's own instance id, sent as the connection preamble.
	Self chain.InstanceId
	// Configuration resolves a destination EntityId to the InstanceId
	// currently hosting it.
	Configuration chain.Configuration
	// AddressBook resolves an InstanceId to a dialable address.
	AddressBook AddressBook
	// Handler receives every inbound frame.
	Handler Handler
	// DialTimeout bounds outbound connection attempts. 0 means 5s.
	DialTimeout time.Duration
}

// New creates a Messenger. Listen must be called separately to start
// accepting inbound connections.
func New(opts Options) *Messenger {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Messenger{
		self:        opts.Self,
		cfg:         opts.Configuration,
		book:        opts.AddressBook,
		handler:     opts.Handler,
		log:         logging.Factory("chain/messenger"),
		conns:       xsync.NewMapOf[chain.InstanceId, *peerConn](),
		dialTimeout: dialTimeout,
	}
}

// HeaderSize implements chain.Messenger.
func (m *Messenger) HeaderSize() int {
	return headerSize
}

// Listen starts accepting inbound connections on addr. It returns once the
// listener is bound; accepting runs in a background goroutine.
func (m *Messenger) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("messenger: listen %s: %w", addr, err)
	}
	m.listener = ln
	m.log.Infof("listening on %s", addr)
	go m.acceptLoop(ln)
	return nil
}

// Close shuts down the listener and all known connections.
func (m *Messenger) Close() error {
	var err error
	if m.listener != nil {
		err = m.listener.Close()
	}
	m.conns.Range(func(id chain.InstanceId, pc *peerConn) bool {
		pc.mu.Lock()
		pc.conn.Close()
		pc.mu.Unlock()
		return true
	})
	return err
}

func (m *Messenger) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			m.log.Infof("accept loop stopped: %v", err)
			return
		}
		go m.handleAccepted(conn)
	}
}

func (m *Messenger) handleAccepted(conn net.Conn) {
	peer, err := readHello(conn)
	if err != nil {
		m.log.Warningf("handshake failed from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	pc := &peerConn{conn: conn, id: uuid.New()}
	m.conns.Store(peer, pc)
	m.log.Infof("accepted connection from instance %d (%s) conn=%s", peer, conn.RemoteAddr(), pc.id)
	m.readLoop(peer, pc)
}

// dial returns a usable connection for inst, reusing one already
// registered (dialed or accepted) or establishing a fresh one.
func (m *Messenger) dial(inst chain.InstanceId) (*peerConn, bool) {
	if pc, ok := m.conns.Load(inst); ok {
		return pc, true
	}

	addr, ok := m.book.Address(inst)
	if !ok {
		m.log.Warningf("no address for instance %d", inst)
		return nil, false
	}

	conn, err := net.DialTimeout("tcp", addr, m.dialTimeout)
	if err != nil {
		m.log.Warningf("dial instance %d at %s: %v", inst, addr, err)
		return nil, false
	}
	if err := writeHello(conn, m.self); err != nil {
		m.log.Warningf("handshake to instance %d at %s: %v", inst, addr, err)
		conn.Close()
		return nil, false
	}

	pc := &peerConn{conn: conn, id: uuid.New()}
	actual, loaded := m.conns.LoadOrStore(inst, pc)
	if loaded {
		// Another goroutine won the race to connect first; use theirs,
		// drop ours.
		conn.Close()
		return actual, true
	}

	m.log.Infof("connected to instance %d at %s conn=%s", inst, addr, pc.id)
	go m.readLoop(inst, pc)
	return pc, true
}

// dropConn evicts a connection after a write/read error so the next Send
// re-dials, mirroring rpc/transport/base's reconnect-on-error discipline.
// It only removes the map entry if it still points at this exact
// connection, so a concurrent dial that already replaced it survives.
func (m *Messenger) dropConn(inst chain.InstanceId, pc *peerConn) {
	m.conns.Compute(inst, func(cur *peerConn, loaded bool) (*peerConn, bool) {
		if !loaded || cur != pc {
			return cur, false
		}
		return nil, true
	})
	pc.conn.Close()
}

// Send implements chain.Messenger.
func (m *Messenger) Send(from, to chain.EntityId, msgType chain.MsgType, buf []byte) bool {
	inst, ok := m.cfg.InstanceOf(to)
	if !ok {
		m.log.Warningf("send: no instance hosts %s", to)
		return false
	}
	if inst == m.self {
		// A caller that wants to loop a message back to itself should
		// call the local handler directly rather than round-trip
		// through the network; Send is for cross-instance delivery.
		m.log.Warningf("send: refusing to dial self for %s -> %s", from, to)
		return false
	}

	pc, ok := m.dial(inst)
	if !ok {
		return false
	}

	pc.mu.Lock()
	err := writeFrame(pc.conn, from, to, msgType, buf)
	pc.mu.Unlock()

	if err != nil {
		m.log.Warningf("send to instance %d failed, dropping connection: %v", inst, err)
		m.dropConn(inst, pc)
		return false
	}
	return true
}

func (m *Messenger) readLoop(peer chain.InstanceId, pc *peerConn) {
	var buf [headerSize]byte
	for {
		from, to, msgType, payload, err := readFrame(pc.conn, buf[:])
		if err != nil {
			m.log.Infof("connection to instance %d closed: %v", peer, err)
			m.dropConn(peer, pc)
			return
		}
		m.handler.Handle(from, to, msgType, payload)
	}
}
