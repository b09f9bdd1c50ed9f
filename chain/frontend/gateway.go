package frontend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/logging"
	"github.com/chainkv/chainkv/chain/microop"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// clientAtomic/clientDel are the only two calls a Gateway ever needs from
// a replication core - matched against chain/replication.Manager's
// exported methods rather than importing that package directly, so
// Gateway can be unit tested against a fake without dragging in the
// keyholder table and everything underneath it.
type clientAtomic interface {
	ClientAtomic(opcode string, from, to chain.EntityId, nonce uint64, key chain.Key, checks []microop.Check, ops []microop.Op, failIfFound, failIfNotFound bool)
}

type clientDel interface {
	ClientDel(from, to chain.EntityId, nonce uint64, key chain.Key, checks []microop.Check)
}

// Manager is the surface Gateway drives requests through.
type Manager interface {
	clientAtomic
	clientDel
}

// DefaultReplyTimeout bounds how long a request waits for Reply before
// the gateway gives up and answers 504. A request that times out still
// leaves its op queued in the replication core - this only stops the
// HTTP caller from waiting forever for an answer that may arrive late
// or never (e.g. the chain stalled on a crashed successor).
const DefaultReplyTimeout = 10 * time.Second

// pending tracks one in-flight request awaiting Reply.
type pending struct {
	ch chan chain.RetCode
}

// Gateway is the concrete chain.Responder plus the HTTP surface that
// drives it: it assigns every inbound request a nonce, calls the
// replication core directly, and resolves the matching channel when
// Reply runs - no wire hop, since Gateway and the Manager it drives
// always live in the same process (see doc.go).
type Gateway struct {
	manager Manager
	cfg     chain.Configuration
	log     logger.ILogger

	self    chain.EntityId
	nextID  atomic.Uint64
	waiting *xsync.MapOf[uint64, *pending]

	replyTimeout time.Duration
}

// Options configures a Gateway.
type Options struct {
	Manager Manager
	// Configuration resolves which region/instance owns a key, so the
	// gateway can route a request to the right point-leader entity or
	// reject it with the owning instance's id when this process does
	// not host that entity.
	Configuration chain.Configuration
	// ReplyTimeout overrides DefaultReplyTimeout; <= 0 uses the default.
	ReplyTimeout time.Duration
}

// New creates a Gateway. It does not itself expose a client.EntityId in
// the mesh - "self" is a correlation handle only, never dialed over the
// wire (see doc.go).
func New(opts Options) *Gateway {
	timeout := opts.ReplyTimeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Gateway{
		manager:      opts.Manager,
		cfg:          opts.Configuration,
		log:          logging.Factory("chain/frontend"),
		waiting:      xsync.NewMapOf[uint64, *pending](),
		replyTimeout: timeout,
	}
}

// SetManager fills in the Manager a Gateway drives requests through. It
// exists because chain/replication.New itself requires a chain.Responder
// (this Gateway) among its Collaborators - the two are mutually
// constructed, so a caller builds the Gateway first with Options.Manager
// left nil, then calls SetManager once the Manager exists.
func (g *Gateway) SetManager(m Manager) {
	g.manager = m
}

// Reply implements chain.Responder: it is called by the replication core
// once a request's outcome is known, possibly from a different goroutine
// and well after the HTTP handler that issued it returned (a timed-out
// request has nobody left listening - the send below is non-blocking).
func (g *Gateway) Reply(from chain.EntityId, nonce uint64, code chain.RetCode) {
	p, ok := g.waiting.LoadAndDelete(nonce)
	if !ok {
		return
	}
	select {
	case p.ch <- code:
	default:
	}
}

// route resolves the point-leader entity for (space, key) against the
// primary subspace (index 0, by convention the one every space hashes on
// the key itself - spec.md §4.9's "first subspace", HyperDex's terms).
func (g *Gateway) route(space chain.SpaceId, key chain.Key) (chain.EntityId, bool) {
	coord := g.cfg.HashAttribute(space, 0, key, nil)
	return g.cfg.HeadOfSubspace(space, 0, coord)
}

// register records nonce as awaiting Reply. It runs before the Manager
// call, since the Manager may call Reply before returning.
func (g *Gateway) register(nonce uint64) *pending {
	p := &pending{ch: make(chan chain.RetCode, 1)}
	g.waiting.Store(nonce, p)
	return p
}

// await blocks until Reply resolves p or ctx expires.
func (g *Gateway) await(ctx context.Context, nonce uint64, p *pending) (chain.RetCode, bool) {
	select {
	case code := <-p.ch:
		return code, true
	case <-ctx.Done():
		g.waiting.Delete(nonce)
		return 0, false
	}
}

// Handler builds the ServeMux this Gateway answers requests on, in the
// teacher's rpc/transport/http style: one pattern per verb, wrapped in a
// logging middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/spaces/{space}/keys/{key}", g.loggingMiddleware(g.handlePut))
	mux.HandleFunc("DELETE /v1/spaces/{space}/keys/{key}", g.loggingMiddleware(g.handleDelete))
	return mux
}

func (g *Gateway) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		g.log.Debugf("%s %s took %s", r.Method, r.URL.Path, time.Since(start))
	}
}

func (g *Gateway) parseSpace(r *http.Request) (chain.SpaceId, error) {
	n, err := strconv.ParseUint(r.PathValue("space"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid space id: %w", err)
	}
	return chain.SpaceId(n), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// notUs answers a request for an entity this process does not host with
// the instance that does, so a caller with its own routing table can
// retry against the right host - see doc.go on why this gateway does not
// forward the request itself.
func (g *Gateway) notUs(w http.ResponseWriter, to chain.EntityId) {
	inst, _ := g.cfg.InstanceOf(to)
	writeJSON(w, http.StatusMisdirectedRequest, map[string]any{
		"error":    "not_us",
		"instance": uint64(inst),
	})
}

type atomicRequest struct {
	Opcode         string      `json:"opcode"`
	Checks         []checkJSON `json:"checks"`
	Ops            []opJSON    `json:"ops"`
	FailIfFound    bool        `json:"fail_if_found"`
	FailIfNotFound bool        `json:"fail_if_not_found"`
}

func (g *Gateway) handlePut(w http.ResponseWriter, r *http.Request) {
	space, err := g.parseSpace(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := chain.Key(r.PathValue("key"))

	var req atomicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	checks := make([]microop.Check, 0, len(req.Checks))
	for _, c := range req.Checks {
		parsed, err := decodeCheck(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		checks = append(checks, parsed)
	}
	ops := make([]microop.Op, 0, len(req.Ops))
	for _, o := range req.Ops {
		parsed, err := decodeOp(o)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ops = append(ops, parsed)
	}

	to, ok := g.route(space, key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown space")
		return
	}
	if !g.cfg.Hosts(to) {
		g.notUs(w, to)
		return
	}

	nonce := g.nextID.Add(1)
	ctx, cancel := context.WithTimeout(r.Context(), g.replyTimeout)
	defer cancel()

	p := g.register(nonce)
	g.manager.ClientAtomic(req.Opcode, g.self, to, nonce, key, checks, ops, req.FailIfFound, req.FailIfNotFound)

	code, ok := g.await(ctx, nonce, p)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for reply")
		return
	}
	writeJSON(w, retCodeStatus(code), map[string]string{"status": code.String()})
}

type deleteRequest struct {
	Checks []checkJSON `json:"checks"`
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	space, err := g.parseSpace(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := chain.Key(r.PathValue("key"))

	var req deleteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
			return
		}
	}
	checks := make([]microop.Check, 0, len(req.Checks))
	for _, c := range req.Checks {
		parsed, err := decodeCheck(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		checks = append(checks, parsed)
	}

	to, ok := g.route(space, key)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown space")
		return
	}
	if !g.cfg.Hosts(to) {
		g.notUs(w, to)
		return
	}

	nonce := g.nextID.Add(1)
	ctx, cancel := context.WithTimeout(r.Context(), g.replyTimeout)
	defer cancel()

	p := g.register(nonce)
	g.manager.ClientDel(g.self, to, nonce, key, checks)

	code, ok := g.await(ctx, nonce, p)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for reply")
		return
	}
	writeJSON(w, retCodeStatus(code), map[string]string{"status": code.String()})
}
