package microop

import (
	"encoding/binary"
	"testing"

	"github.com/chainkv/chainkv/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeStringInt64Map(t *testing.T, pairs map[string]int64) []byte {
	t.Helper()
	var out []byte
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	// caller supplies already-sorted keys in these tests
	for _, k := range keys {
		out = writeString(out, []byte(k))
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], uint64(pairs[k]))
		out = writeFixed8(out, v[:])
	}
	return out
}

func int64Bytes(v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

// TestApplyMapAddThenRemove is spec.md §8 scenario S3, byte-for-byte.
func TestApplyMapAddThenRemove(t *testing.T) {
	old := encodeStringInt64Map(t, map[string]int64{"a": 1, "b": 2})

	ops := []Op{
		{Attr: 1, Action: OpMapAdd, Arg1: int64Bytes(3), Arg1Type: chain.TypeInt64, Arg2: []byte("c"), Arg2Type: chain.TypeString},
		{Attr: 1, Action: OpMapRemove, Arg2: []byte("a"), Arg2Type: chain.TypeString},
	}

	got, err := ApplyMap(chain.TypeMapStringInt64, old, ops)
	require.Nil(t, err)

	want := []byte{
		0x01, 0x00, 0x00, 0x00, 'b', 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00, 'c', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, got)
}

func TestValidateMapRejectsOutOfOrderKeys(t *testing.T) {
	buf := encodeStringInt64Map(t, map[string]int64{"z": 1})
	buf = append(buf, encodeStringInt64Map(t, map[string]int64{"a": 2})...)
	assert.False(t, ValidateMapBytes(chain.TypeMapStringInt64, buf))
}

func TestValidateMapRejectsDuplicateKeys(t *testing.T) {
	one := encodeStringInt64Map(t, map[string]int64{"a": 1})
	buf := append(append([]byte{}, one...), one...)
	assert.False(t, ValidateMapBytes(chain.TypeMapStringInt64, buf))
}

func TestValidateMapRejectsTrailingBytes(t *testing.T) {
	buf := encodeStringInt64Map(t, map[string]int64{"a": 1})
	buf = append(buf, 0xFF)
	assert.False(t, ValidateMapBytes(chain.TypeMapStringInt64, buf))
}

func TestApplyMapSetEmptyGenericClears(t *testing.T) {
	old := encodeStringInt64Map(t, map[string]int64{"a": 1, "b": 2})
	ops := []Op{
		{Attr: 0, Action: OpSet, Arg1: nil, Arg1Type: chain.TypeMapGeneric},
	}
	got, err := ApplyMap(chain.TypeMapStringInt64, old, ops)
	require.Nil(t, err)
	assert.Empty(t, got)
}

func TestApplyMapArithmeticOnMissingKeyInsertsFromZero(t *testing.T) {
	old := encodeStringInt64Map(t, map[string]int64{"a": 1})
	ops := []Op{
		{Attr: 0, Action: OpNumAdd, Arg1: int64Bytes(5), Arg1Type: chain.TypeInt64, Arg2: []byte("new"), Arg2Type: chain.TypeString},
	}
	got, mErr := ApplyMap(chain.TypeMapStringInt64, old, ops)
	require.Nil(t, mErr)

	entries, err := decodeBody(stepString, stepFixed8, compareStringLess, got)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", string(entries[0].key))
	assert.Equal(t, "new", string(entries[1].key))
	assert.Equal(t, int64(5), int64(binary.LittleEndian.Uint64(entries[1].val)))
}

func TestApplyMapWrongKeyTypeRejected(t *testing.T) {
	old := encodeStringInt64Map(t, map[string]int64{"a": 1})
	ops := []Op{
		{Attr: 0, Action: OpMapRemove, Arg2: int64Bytes(7), Arg2Type: chain.TypeInt64},
	}
	_, mErr := ApplyMap(chain.TypeMapStringInt64, old, ops)
	require.NotNil(t, mErr)
	assert.Equal(t, KindWrongType, mErr.Kind)
}

func TestApplyMapUnsupportedActionIsWrongAction(t *testing.T) {
	old := encodeStringInt64Map(t, map[string]int64{"a": 1})
	ops := []Op{{Attr: 0, Action: opUnsupported, Arg2: []byte("a"), Arg2Type: chain.TypeString}}
	_, mErr := ApplyMap(chain.TypeMapStringInt64, old, ops)
	require.NotNil(t, mErr)
	assert.Equal(t, KindWrongAction, mErr.Kind)
}
