package messenger

import (
	"sync"
	"testing"
	"time"

	"github.com/chainkv/chainkv/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	instanceOf map[chain.EntityId]chain.InstanceId
}

func (f *fakeConfig) Schema(chain.SpaceId) (*chain.Schema, bool)             { return nil, false }
func (f *fakeConfig) IsPointLeader(chain.EntityId) bool                     { return false }
func (f *fakeConfig) IsTail(chain.EntityId) bool                            { return false }
func (f *fakeConfig) ChainNext(chain.EntityId) (chain.EntityId, bool)       { return chain.EntityId{}, false }
func (f *fakeConfig) ChainAdjacent(from, to chain.EntityId) bool            { return false }
func (f *fakeConfig) HeadOfSubspace(chain.SpaceId, uint16, chain.Coordinate) (chain.EntityId, bool) {
	return chain.EntityId{}, false
}
func (f *fakeConfig) HashAttribute(chain.SpaceId, uint16, chain.Key, chain.Value) chain.Coordinate {
	return chain.Coordinate{}
}
func (f *fakeConfig) TotalSubspaces(chain.SpaceId) uint16 { return 1 }
func (f *fakeConfig) InstanceOf(e chain.EntityId) (chain.InstanceId, bool) {
	id, ok := f.instanceOf[e]
	return id, ok
}
func (f *fakeConfig) Hosts(chain.EntityId) bool                       { return true }
func (f *fakeConfig) LocalEntity(chain.RegionId) (chain.EntityId, bool) { return chain.EntityId{}, false }
func (f *fakeConfig) Quiesce() (bool, string)                         { return false, "" }

type fakeBook struct {
	addrs map[chain.InstanceId]string
}

func (b *fakeBook) Address(id chain.InstanceId) (string, bool) {
	a, ok := b.addrs[id]
	return a, ok
}

type recordingHandler struct {
	mu       sync.Mutex
	received []received
	done     chan struct{}
}

type received struct {
	from, to chain.EntityId
	msgType  chain.MsgType
	payload  []byte
}

func newRecordingHandler(expect int) *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, expect)}
}

func (h *recordingHandler) Handle(from, to chain.EntityId, msgType chain.MsgType, payload []byte) {
	h.mu.Lock()
	h.received = append(h.received, received{from, to, msgType, append([]byte{}, payload...)})
	h.mu.Unlock()
	h.done <- struct{}{}
}

func (h *recordingHandler) waitFor(n int, timeout time.Duration) bool {
	for i := 0; i < n; i++ {
		select {
		case <-h.done:
		case <-time.After(timeout):
			return false
		}
	}
	return true
}

func entity(space chain.SpaceId, idx uint32) chain.EntityId {
	return chain.EntityId{Region: chain.RegionId{Subspace: chain.SubspaceId{Space: space}}, Index: idx}
}

func TestSendDeliversFrameToPeerHandler(t *testing.T) {
	serverHandler := newRecordingHandler(1)
	serverCfg := &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{}}
	server := New(Options{Self: 2, Configuration: serverCfg, AddressBook: &fakeBook{}, Handler: serverHandler})
	require.NoError(t, server.Listen("127.0.0.1:0"))
	defer server.Close()
	addr := server.listener.Addr().String()

	to := entity(1, 0)
	clientCfg := &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{to: 2}}
	client := New(Options{Self: 1, Configuration: clientCfg, AddressBook: &fakeBook{addrs: map[chain.InstanceId]string{2: addr}}, Handler: newRecordingHandler(0)})
	defer client.Close()

	from := entity(1, 1)
	ok := client.Send(from, to, chain.MsgChainPut, []byte("payload"))
	require.True(t, ok)

	require.True(t, serverHandler.waitFor(1, 2*time.Second))
	serverHandler.mu.Lock()
	defer serverHandler.mu.Unlock()
	require.Len(t, serverHandler.received, 1)
	got := serverHandler.received[0]
	assert.Equal(t, from, got.from)
	assert.Equal(t, to, got.to)
	assert.Equal(t, chain.MsgChainPut, got.msgType)
	assert.Equal(t, []byte("payload"), got.payload)
}

func TestSendReusesConnectionOnSecondCall(t *testing.T) {
	serverHandler := newRecordingHandler(2)
	server := New(Options{Self: 20, Configuration: &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{}}, AddressBook: &fakeBook{}, Handler: serverHandler})
	require.NoError(t, server.Listen("127.0.0.1:0"))
	defer server.Close()
	addr := server.listener.Addr().String()

	to := entity(7, 0)
	clientCfg := &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{to: 20}}
	client := New(Options{Self: 10, Configuration: clientCfg, AddressBook: &fakeBook{addrs: map[chain.InstanceId]string{20: addr}}, Handler: newRecordingHandler(0)})
	defer client.Close()

	from := entity(7, 1)
	require.True(t, client.Send(from, to, chain.MsgChainAck, []byte("one")))
	require.True(t, client.Send(from, to, chain.MsgChainAck, []byte("two")))

	require.True(t, serverHandler.waitFor(2, 2*time.Second))
	assert.Equal(t, 1, client.conns.Size())
}

func TestSendFailsWhenDestinationUnhosted(t *testing.T) {
	cfg := &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{}}
	m := New(Options{Self: 1, Configuration: cfg, AddressBook: &fakeBook{}, Handler: newRecordingHandler(0)})
	defer m.Close()

	ok := m.Send(entity(1, 0), entity(1, 1), chain.MsgChainPut, nil)
	assert.False(t, ok)
}

func TestSendRefusesSelfDelivery(t *testing.T) {
	to := entity(1, 0)
	cfg := &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{to: 5}}
	m := New(Options{Self: 5, Configuration: cfg, AddressBook: &fakeBook{}, Handler: newRecordingHandler(0)})
	defer m.Close()

	ok := m.Send(entity(1, 1), to, chain.MsgChainPut, nil)
	assert.False(t, ok)
}

func TestSendFailsWithNoAddressBookEntry(t *testing.T) {
	to := entity(1, 0)
	cfg := &fakeConfig{instanceOf: map[chain.EntityId]chain.InstanceId{to: 99}}
	m := New(Options{Self: 1, Configuration: cfg, AddressBook: &fakeBook{}, Handler: newRecordingHandler(0)})
	defer m.Close()

	ok := m.Send(entity(1, 1), to, chain.MsgChainPut, nil)
	assert.False(t, ok)
}

func TestHeaderSizeMatchesFrameConstant(t *testing.T) {
	m := New(Options{Configuration: &fakeConfig{}, AddressBook: &fakeBook{}, Handler: newRecordingHandler(0)})
	assert.Equal(t, headerSize, m.HeaderSize())
}
