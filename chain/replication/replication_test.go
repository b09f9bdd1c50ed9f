package replication

import (
	"testing"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/microop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfig is a single-subspace, single-replica cluster: every region's
// one entity (index 0) is simultaneously point-leader and tail, exactly
// the degenerate chain spec.md §8's S1/S2/S6 scenarios describe.
type fakeConfig struct {
	schema     *chain.Schema
	quiescing  bool
	stateID    string
	localIndex map[chain.RegionId]chain.EntityId
	// chainLen is the number of entities in a region's chain; entities
	// are Index 0 (head/point-leader) .. chainLen-1 (tail). Regions not
	// present default to a single-entity chain (head == tail).
	chainLen map[chain.RegionId]uint32
}

func newFakeConfig(schema *chain.Schema) *fakeConfig {
	return &fakeConfig{
		schema:     schema,
		localIndex: make(map[chain.RegionId]chain.EntityId),
		chainLen:   make(map[chain.RegionId]uint32),
	}
}

func (f *fakeConfig) lastIndex(region chain.RegionId) uint32 {
	if n, ok := f.chainLen[region]; ok && n > 0 {
		return n - 1
	}
	return 0
}

func (f *fakeConfig) Schema(space chain.SpaceId) (*chain.Schema, bool) {
	if space != f.schema.Space {
		return nil, false
	}
	return f.schema, true
}
func (f *fakeConfig) IsPointLeader(e chain.EntityId) bool { return e.Index == 0 }
func (f *fakeConfig) IsTail(e chain.EntityId) bool        { return e.Index == f.lastIndex(e.Region) }
func (f *fakeConfig) ChainNext(e chain.EntityId) (chain.EntityId, bool) {
	if e.Index >= f.lastIndex(e.Region) {
		return chain.EntityId{}, false
	}
	return chain.EntityId{Region: e.Region, Index: e.Index + 1}, true
}
func (f *fakeConfig) ChainAdjacent(from, to chain.EntityId) bool {
	return from.Region == to.Region && to.Index == from.Index+1
}
func (f *fakeConfig) HeadOfSubspace(space chain.SpaceId, sub uint16, c chain.Coordinate) (chain.EntityId, bool) {
	return chain.EntityId{}, false
}
func (f *fakeConfig) HashAttribute(space chain.SpaceId, sub uint16, key chain.Key, value chain.Value) chain.Coordinate {
	return chain.Coordinate{Point: 0}
}
func (f *fakeConfig) TotalSubspaces(space chain.SpaceId) uint16 { return 1 }
func (f *fakeConfig) InstanceOf(e chain.EntityId) (chain.InstanceId, bool) {
	return chain.InstanceId(1), true
}
func (f *fakeConfig) Hosts(e chain.EntityId) bool { return true }
func (f *fakeConfig) LocalEntity(region chain.RegionId) (chain.EntityId, bool) {
	if e, ok := f.localIndex[region]; ok {
		return e, true
	}
	return chain.EntityId{Region: region, Index: 0}, true
}
func (f *fakeConfig) Quiesce() (bool, string) { return f.quiescing, f.stateID }

// fakeData is an in-memory DataLayer keyed by (region, string(key)).
type fakeData struct {
	records map[string]record
}
type record struct {
	value   chain.Value
	version chain.Version
}

func newFakeData() *fakeData { return &fakeData{records: make(map[string]record)} }

func (f *fakeData) rk(region chain.RegionId, key chain.Key) string {
	return region.String() + "/" + string(key)
}
func (f *fakeData) Get(region chain.RegionId, key chain.Key) (chain.Value, chain.Version, chain.DiskStatus) {
	r, ok := f.records[f.rk(region, key)]
	if !ok {
		return nil, 0, chain.DiskMissing
	}
	if r.value == nil {
		return nil, r.version, chain.DiskNotFound
	}
	return r.value, r.version, chain.DiskSuccess
}
func (f *fakeData) Put(region chain.RegionId, key chain.Key, value chain.Value, version chain.Version) chain.DiskStatus {
	f.records[f.rk(region, key)] = record{value: value, version: version}
	return chain.DiskSuccess
}
func (f *fakeData) Del(region chain.RegionId, key chain.Key, version chain.Version) chain.DiskStatus {
	f.records[f.rk(region, key)] = record{value: nil, version: version}
	return chain.DiskSuccess
}

// fakeMessenger records every send; it does not deliver anywhere.
type fakeMessenger struct {
	sent []sentMsg
}
type sentMsg struct {
	from, to chain.EntityId
	msgType  chain.MsgType
	buf      []byte
}

func (f *fakeMessenger) Send(from, to chain.EntityId, msgType chain.MsgType, buf []byte) bool {
	f.sent = append(f.sent, sentMsg{from, to, msgType, buf})
	return true
}
func (f *fakeMessenger) HeaderSize() int { return 0 }

// fakeResponder records replies.
type fakeResponder struct {
	replies []reply
}
type reply struct {
	from  chain.EntityId
	nonce uint64
	code  chain.RetCode
}

func (f *fakeResponder) Reply(from chain.EntityId, nonce uint64, code chain.RetCode) {
	f.replies = append(f.replies, reply{from, nonce, code})
}

type fakeTransfers struct{ triggers int }

func (f *fakeTransfers) AddTrigger(region chain.RegionId, buf []byte, key chain.Key, version chain.Version) {
	f.triggers++
}

type fakeCoord struct{ quiesced []string }

func (f *fakeCoord) Quiesced(stateID string) { f.quiesced = append(f.quiesced, stateID) }

func testSchema() *chain.Schema {
	return &chain.Schema{
		Space:   1,
		KeyType: chain.TypeString,
		Attributes: []chain.Attribute{
			{Name: "v", Type: chain.TypeString},
		},
	}
}

func testRegion() chain.RegionId {
	return chain.RegionId{Subspace: chain.SubspaceId{Space: 1, Index: 0}, Prefix: 0, Mask: 0}
}

type harness struct {
	mgr  *Manager
	data *fakeData
	msg  *fakeMessenger
	resp *fakeResponder
	cfg  *fakeConfig
	xfer *fakeTransfers
	crd  *fakeCoord
}

func newHarness() *harness {
	h := &harness{
		data: newFakeData(),
		msg:  &fakeMessenger{},
		resp: &fakeResponder{},
		cfg:  newFakeConfig(testSchema()),
		xfer: &fakeTransfers{},
		crd:  &fakeCoord{},
	}
	h.mgr = New(Collaborators{
		DataLayer:       h.data,
		Messenger:       h.msg,
		Configuration:   h.cfg,
		StateTransfers:  h.xfer,
		CoordinatorLink: h.crd,
		Responder:       h.resp,
	})
	return h
}

func setOp(value string) microop.Op {
	return microop.Op{Attr: 0, Action: microop.OpSet, Arg1: []byte(value), Arg1Type: chain.TypeString}
}

// S1 - single-key, single-replica chain: client_atomic put succeeds and
// lands on disk with version 1, and the client gets SUCCESS.
func TestClientAtomicSingleReplicaPut(t *testing.T) {
	h := newHarness()
	region := testRegion()
	to := chain.EntityId{Region: region, Index: 0}
	from := chain.EntityId{Region: region, Index: 99}
	key := chain.Key("k")

	h.mgr.ClientAtomic("put", from, to, 7, key, nil, []microop.Op{setOp("v1")}, false, false)

	require.Len(t, h.resp.replies, 1)
	assert.Equal(t, chain.RetSuccess, h.resp.replies[0].code)
	assert.EqualValues(t, 7, h.resp.replies[0].nonce)

	value, version, status := h.data.Get(region, key)
	require.Equal(t, chain.DiskSuccess, status)
	assert.EqualValues(t, 1, version)
	require.Len(t, value, 1)
	assert.Equal(t, "v1", string(value[0]))
}

// S2 - fail_if_not_found on an empty key replies NOTFOUND and leaves disk
// untouched.
func TestClientAtomicFailIfNotFound(t *testing.T) {
	h := newHarness()
	region := testRegion()
	to := chain.EntityId{Region: region, Index: 0}
	from := chain.EntityId{Region: region, Index: 99}
	key := chain.Key("missing")

	h.mgr.ClientAtomic("update", from, to, 42, key, nil, []microop.Op{setOp("v")}, false, true)

	require.Len(t, h.resp.replies, 1)
	assert.Equal(t, chain.RetNotFound, h.resp.replies[0].code)
	_, _, status := h.data.Get(region, key)
	assert.Equal(t, chain.DiskMissing, status)
}

// client_del on a single-replica chain deletes the key and acknowledges
// the client once the (self-sent) CHAIN_ACK round-trips.
func TestClientDelSingleReplica(t *testing.T) {
	h := newHarness()
	region := testRegion()
	to := chain.EntityId{Region: region, Index: 0}
	from := chain.EntityId{Region: region, Index: 99}
	key := chain.Key("k")

	h.mgr.ClientAtomic("put", from, to, 1, key, nil, []microop.Op{setOp("v1")}, false, false)
	h.resp.replies = nil

	h.mgr.ClientDel(from, to, 2, key, nil)

	require.Len(t, h.resp.replies, 1)
	assert.Equal(t, chain.RetSuccess, h.resp.replies[0].code)
	_, version, status := h.data.Get(region, key)
	assert.Equal(t, chain.DiskNotFound, status)
	assert.EqualValues(t, 2, version)
}

// client_del with no prior value replies NOTFOUND.
func TestClientDelNotFound(t *testing.T) {
	h := newHarness()
	region := testRegion()
	to := chain.EntityId{Region: region, Index: 0}
	from := chain.EntityId{Region: region, Index: 99}

	h.mgr.ClientDel(from, to, 1, chain.Key("nope"), nil)

	require.Len(t, h.resp.replies, 1)
	assert.Equal(t, chain.RetNotFound, h.resp.replies[0].code)
}

// Quiescing: once Configuration reports quiesce=true, new client ops get
// READONLY and never touch the keyholder table (spec.md §8 S6).
func TestClientAtomicReadOnlyWhenQuiescing(t *testing.T) {
	h := newHarness()
	region := testRegion()
	to := chain.EntityId{Region: region, Index: 0}
	from := chain.EntityId{Region: region, Index: 99}

	h.mgr.quiescing.Store(true)
	h.mgr.ClientAtomic("put", from, to, 1, chain.Key("k"), nil, []microop.Op{setOp("v")}, false, false)

	require.Len(t, h.resp.replies, 1)
	assert.Equal(t, chain.RetReadOnly, h.resp.replies[0].code)
	assert.Equal(t, 0, h.mgr.Table().Size())
}

// A request to a non-point-leader entity replies NOTUS without touching
// any queue.
func TestClientAtomicNotPointLeader(t *testing.T) {
	h := newHarness()
	region := testRegion()
	to := chain.EntityId{Region: region, Index: 1}
	from := chain.EntityId{Region: region, Index: 99}

	h.mgr.ClientAtomic("put", from, to, 1, chain.Key("k"), nil, []microop.Op{setOp("v")}, false, false)

	require.Len(t, h.resp.replies, 1)
	assert.Equal(t, chain.RetNotUs, h.resp.replies[0].code)
}

// S4 - out-of-order chain messages: a middle replica receiving v=5 before
// v=4 parks v=5 in deferred and sends nothing forward; once v=4 arrives,
// both promote in order.
func TestChainCommonOutOfOrderPromotion(t *testing.T) {
	h := newHarness()
	region := testRegion()
	h.cfg.chainLen[region] = 3 // head(0) -> middle(1) -> tail(2)
	to := chain.EntityId{Region: region, Index: 1}
	from := chain.EntityId{Region: region, Index: 0}
	key := chain.Key("k")

	kh := h.mgr.Table().GetOrCreate(region, key)
	kh.SetVersionOnDisk(3)

	h.mgr.ChainPut(from, to, 5, false, key, chain.Value{[]byte("v5")})
	require.True(t, kh.HasDeferredOps())
	assert.False(t, kh.HasBlockedOps())
	assert.False(t, kh.HasCommittableOps())
	assert.Empty(t, h.msg.sent)

	h.data.Put(region, key, chain.Value{[]byte("v3")}, 3)
	h.msg.sent = nil
	h.mgr.ChainPut(from, to, 4, false, key, chain.Value{[]byte("v4")})

	assert.False(t, kh.HasDeferredOps())
	require.Len(t, h.msg.sent, 2)
	assert.Equal(t, chain.MsgChainPut, h.msg.sent[0].msgType)
	assert.Equal(t, chain.MsgChainPut, h.msg.sent[1].msgType)
	v4, _, _, _, err := DecodeChainPut(h.msg.sent[0].buf, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, v4)
	v5, _, _, _, err := DecodeChainPut(h.msg.sent[1].buf, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v5)
}

// Idempotent replay: a duplicate CHAIN_PUT for a version we already hold
// just re-acks the sender, it never re-enqueues.
func TestChainCommonIdempotentReplay(t *testing.T) {
	h := newHarness()
	region := testRegion()
	h.cfg.chainLen[region] = 2 // head(0) -> tail(1)
	to := chain.EntityId{Region: region, Index: 1}
	from := chain.EntityId{Region: region, Index: 0}
	key := chain.Key("k")

	h.mgr.ChainPut(from, to, 1, true, key, chain.Value{[]byte("v1")})
	h.msg.sent = nil

	h.mgr.ChainPut(from, to, 1, true, key, chain.Value{[]byte("v1")})

	require.Len(t, h.msg.sent, 1)
	assert.Equal(t, chain.MsgChainAck, h.msg.sent[0].msgType)
}

// Quiesce sweep: once Configuration reports quiescing and a pass finds
// nothing left to do, the coordinator is notified exactly once.
func TestPeriodicSweepQuiesceNotifiesOnce(t *testing.T) {
	h := newHarness()
	h.cfg.quiescing = true
	h.cfg.stateID = "state-1"

	h.mgr.sweep()
	h.mgr.sweep()
	h.mgr.sweep()

	require.Len(t, h.crd.quiesced, 1)
	assert.Equal(t, "state-1", h.crd.quiesced[0])
	assert.True(t, h.mgr.Quiescing())
}

// Quiesce sweep must not report quiescence while keyholders still hold
// committable ops awaiting a chain_ack, even though a pass finds no
// retransmit work for them (instance hasn't churned, so sweepOneLocked's
// did stays false) - the two-keyholders-with-uncommitted-acks scenario of
// spec.md §8 S6. Only once both drain via ChainAck does sweep quiesce.
func TestPeriodicSweepQuiesceWaitsForCommittableDrain(t *testing.T) {
	h := newHarness()
	region := testRegion()
	h.cfg.chainLen[region] = 2 // head(0) -> tail(1)
	from := chain.EntityId{Region: region, Index: 99}
	to := chain.EntityId{Region: region, Index: 0}
	next := chain.EntityId{Region: region, Index: 1}

	h.mgr.ClientAtomic("put", from, to, 1, chain.Key("k1"), nil, []microop.Op{setOp("v1")}, false, false)
	h.mgr.ClientAtomic("put", from, to, 2, chain.Key("k2"), nil, []microop.Op{setOp("v1")}, false, false)
	require.Equal(t, 2, h.mgr.Table().Size())

	h.cfg.quiescing = true
	h.cfg.stateID = "state-1"

	h.mgr.sweep()
	h.mgr.sweep()

	assert.Empty(t, h.crd.quiesced, "must not quiesce while keyholders still await chain_ack")

	h.mgr.ChainAck(next, to, 1, chain.Key("k1"))
	h.mgr.sweep()
	assert.Empty(t, h.crd.quiesced, "must not quiesce while one keyholder still awaits chain_ack")

	h.mgr.ChainAck(next, to, 1, chain.Key("k2"))
	h.mgr.sweep()

	require.Len(t, h.crd.quiesced, 1)
	assert.Equal(t, "state-1", h.crd.quiesced[0])
}

// sweep erases empty keyholders.
func TestPeriodicSweepErasesEmptyKeyholder(t *testing.T) {
	h := newHarness()
	region := testRegion()
	key := chain.Key("k")
	h.mgr.Table().GetOrCreate(region, key)
	require.Equal(t, 1, h.mgr.Table().Size())

	h.mgr.sweep()

	assert.Equal(t, 0, h.mgr.Table().Size())
}
