package config

import (
	"testing"

	"github.com/chainkv/chainkv/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeWayRegion() chain.RegionId {
	return chain.RegionId{Subspace: chain.SubspaceId{Space: 1, Index: 0}, Prefix: 0, Mask: 0}
}

func threeWaySpaces() map[chain.SpaceId]*SpaceSpec {
	return map[chain.SpaceId]*SpaceSpec{
		1: {
			Schema: chain.Schema{
				Space:      1,
				KeyType:    chain.TypeString,
				Attributes: []chain.Attribute{{Name: "v", Type: chain.TypeString}},
			},
			Subspaces: []SubspaceSpec{
				{
					HashAttr: -1,
					Regions: []RegionSpec{
						{Prefix: 0, Mask: 0, Chain: []chain.InstanceId{10, 20, 30}},
					},
				},
			},
		},
	}
}

func TestSchemaLookup(t *testing.T) {
	cfg := New(Options{Self: 20, Spaces: threeWaySpaces()})

	schema, ok := cfg.Schema(1)
	require.True(t, ok)
	assert.Equal(t, chain.TypeString, schema.KeyType)
	assert.Len(t, schema.Attributes, 1)

	_, ok = cfg.Schema(99)
	assert.False(t, ok)
}

func TestChainAdjacencyTailAndPointLeader(t *testing.T) {
	cfg := New(Options{Self: 20, Spaces: threeWaySpaces()})
	region := threeWayRegion()
	head := chain.EntityId{Region: region, Index: 0}
	mid := chain.EntityId{Region: region, Index: 1}
	tail := chain.EntityId{Region: region, Index: 2}

	assert.True(t, cfg.IsPointLeader(head))
	assert.False(t, cfg.IsPointLeader(mid))
	assert.False(t, cfg.IsTail(head))
	assert.True(t, cfg.IsTail(tail))

	next, ok := cfg.ChainNext(head)
	require.True(t, ok)
	assert.Equal(t, mid, next)

	next, ok = cfg.ChainNext(tail)
	assert.False(t, ok)
	assert.Equal(t, chain.EntityId{}, next)

	assert.True(t, cfg.ChainAdjacent(head, mid))
	assert.True(t, cfg.ChainAdjacent(mid, tail))
	assert.False(t, cfg.ChainAdjacent(head, tail))
}

func TestHostsAndLocalEntity(t *testing.T) {
	cfg := New(Options{Self: 20, Spaces: threeWaySpaces()})
	region := threeWayRegion()

	entity, ok := cfg.LocalEntity(region)
	require.True(t, ok)
	assert.Equal(t, uint32(1), entity.Index)
	assert.True(t, cfg.Hosts(entity))

	head := chain.EntityId{Region: region, Index: 0}
	assert.False(t, cfg.Hosts(head))

	unknownRegion := chain.RegionId{Subspace: chain.SubspaceId{Space: 99}, Prefix: 0, Mask: 0}
	_, ok = cfg.LocalEntity(unknownRegion)
	assert.False(t, ok)
}

func TestInstanceOfMatchesChainPosition(t *testing.T) {
	cfg := New(Options{Self: 10, Spaces: threeWaySpaces()})
	region := threeWayRegion()

	inst, ok := cfg.InstanceOf(chain.EntityId{Region: region, Index: 2})
	require.True(t, ok)
	assert.Equal(t, chain.InstanceId(30), inst)

	_, ok = cfg.InstanceOf(chain.EntityId{Region: region, Index: 3})
	assert.False(t, ok)
}

func TestTotalSubspaces(t *testing.T) {
	cfg := New(Options{Self: 10, Spaces: threeWaySpaces()})
	assert.Equal(t, uint16(1), cfg.TotalSubspaces(1))
	assert.Equal(t, uint16(0), cfg.TotalSubspaces(99))
}

func TestHashAttributeUsesKeyWhenHashAttrNegative(t *testing.T) {
	cfg := New(Options{Self: 10, Spaces: threeWaySpaces()})

	c1 := cfg.HashAttribute(1, 0, chain.Key("abc"), chain.Value{[]byte("ignored")})
	c2 := cfg.HashAttribute(1, 0, chain.Key("abc"), nil)
	assert.Equal(t, c1, c2)
	assert.Equal(t, uint8(64), c1.Bits)
}

func TestHashAttributeDiffersAcrossSubspaces(t *testing.T) {
	spaces := map[chain.SpaceId]*SpaceSpec{
		1: {
			Schema: chain.Schema{Space: 1, KeyType: chain.TypeString},
			Subspaces: []SubspaceSpec{
				{HashAttr: -1, Regions: []RegionSpec{{Prefix: 0, Mask: 0, Chain: []chain.InstanceId{1}}}},
				{HashAttr: -1, Regions: []RegionSpec{{Prefix: 0, Mask: 0, Chain: []chain.InstanceId{1}}}},
			},
		},
	}
	cfg := New(Options{Self: 1, Spaces: spaces})

	c0 := cfg.HashAttribute(1, 0, chain.Key("same-bytes"), nil)
	c1 := cfg.HashAttribute(1, 1, chain.Key("same-bytes"), nil)
	assert.NotEqual(t, c0.Point, c1.Point)
}

func TestHashAttributePicksValueColumnWhenConfigured(t *testing.T) {
	spaces := map[chain.SpaceId]*SpaceSpec{
		1: {
			Schema: chain.Schema{Space: 1, KeyType: chain.TypeString, Attributes: []chain.Attribute{
				{Name: "a", Type: chain.TypeString},
				{Name: "b", Type: chain.TypeString},
			}},
			Subspaces: []SubspaceSpec{
				{HashAttr: 1, Regions: []RegionSpec{{Prefix: 0, Mask: 0, Chain: []chain.InstanceId{1}}}},
			},
		},
	}
	cfg := New(Options{Self: 1, Spaces: spaces})

	viaB := cfg.HashAttribute(1, 0, chain.Key("k"), chain.Value{[]byte("x"), []byte("y")})
	viaDifferentA := cfg.HashAttribute(1, 0, chain.Key("k"), chain.Value{[]byte("z"), []byte("y")})
	assert.Equal(t, viaB.Point, viaDifferentA.Point, "hash should depend only on attribute index 1")
}

func TestHeadOfSubspaceExactContainment(t *testing.T) {
	spaces := map[chain.SpaceId]*SpaceSpec{
		1: {
			Schema: chain.Schema{Space: 1, KeyType: chain.TypeString},
			Subspaces: []SubspaceSpec{
				{HashAttr: -1, Regions: []RegionSpec{
					{Prefix: 0, Mask: 1, Chain: []chain.InstanceId{100}},
					{Prefix: 1 << 63, Mask: 1, Chain: []chain.InstanceId{200}},
				}},
			},
		},
	}
	cfg := New(Options{Self: 100, Spaces: spaces})

	head, ok := cfg.HeadOfSubspace(1, 0, chain.Coordinate{Bits: 64, Point: 5})
	require.True(t, ok)
	assert.Equal(t, chain.InstanceId(100), mustInstance(t, cfg, head))

	head, ok = cfg.HeadOfSubspace(1, 0, chain.Coordinate{Bits: 64, Point: (1 << 63) + 5})
	require.True(t, ok)
	assert.Equal(t, chain.InstanceId(200), mustInstance(t, cfg, head))
}

func TestHeadOfSubspaceFallsBackOnHole(t *testing.T) {
	spaces := map[chain.SpaceId]*SpaceSpec{
		1: {
			Schema: chain.Schema{Space: 1, KeyType: chain.TypeString},
			Subspaces: []SubspaceSpec{
				{HashAttr: -1, Regions: []RegionSpec{
					{Prefix: 0, Mask: 1, Chain: []chain.InstanceId{100}},
					{Prefix: 1 << 63, Mask: 1, Chain: nil}, // hole: region exists but hosts nothing
				}},
			},
		},
	}
	cfg := New(Options{Self: 100, Spaces: spaces})

	head, ok := cfg.HeadOfSubspace(1, 0, chain.Coordinate{Bits: 64, Point: (1 << 63) + 5})
	require.True(t, ok)
	assert.Equal(t, chain.InstanceId(100), mustInstance(t, cfg, head))
}

func TestHeadOfSubspaceUnknownSubspace(t *testing.T) {
	cfg := New(Options{Self: 10, Spaces: threeWaySpaces()})
	_, ok := cfg.HeadOfSubspace(1, 5, chain.Coordinate{})
	assert.False(t, ok)
}

func mustInstance(t *testing.T, cfg *Static, e chain.EntityId) chain.InstanceId {
	t.Helper()
	inst, ok := cfg.InstanceOf(e)
	require.True(t, ok)
	return inst
}

func TestQuiesceStateIsMonotone(t *testing.T) {
	q := NewQuiesceState()
	quiescing, id := q.Get()
	assert.False(t, quiescing)
	assert.Equal(t, "", id)

	q.Begin("state-1")
	quiescing, id = q.Get()
	assert.True(t, quiescing)
	assert.Equal(t, "state-1", id)

	q.Begin("state-2")
	_, id = q.Get()
	assert.Equal(t, "state-1", id, "a second Begin must not change the recorded state id")
}

func TestReconfigureCarriesQuiesceStateForward(t *testing.T) {
	shared := NewQuiesceState()
	before := New(Options{Self: 10, Spaces: threeWaySpaces(), Quiesce: shared})

	quiescing, _ := before.Quiesce()
	require.False(t, quiescing)

	shared.Begin("draining")

	after := New(Options{Self: 10, Spaces: threeWaySpaces(), Quiesce: before.QuiesceState()})
	quiescing, id := after.Quiesce()
	assert.True(t, quiescing)
	assert.Equal(t, "draining", id)
}

func TestStringRendersWithoutPanicking(t *testing.T) {
	cfg := New(Options{Self: 20, Spaces: threeWaySpaces()})
	out := cfg.String()
	assert.Contains(t, out, "Self")
	assert.Contains(t, out, "SPACES")
}
