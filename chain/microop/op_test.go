package microop

import (
	"testing"

	"github.com/chainkv/chainkv/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOpsRoundTrip(t *testing.T) {
	ops := []Op{
		{Attr: 0, Action: OpSet, Arg1: []byte("v1"), Arg1Type: chain.TypeString},
		{Attr: 1, Action: OpNumAdd, Arg1: []byte{1, 0, 0, 0, 0, 0, 0, 0}, Arg1Type: chain.TypeInt64,
			Arg2: []byte("key"), Arg2Type: chain.TypeString},
	}
	buf := EncodeOps(ops)
	got, err := DecodeOps(buf)
	require.NoError(t, err)
	assert.Equal(t, ops, got)
}

func TestDecodeOpsTruncatedErrors(t *testing.T) {
	_, err := DecodeOps([]byte{0x01})
	assert.Error(t, err)
}

func TestOpsSortedByAttr(t *testing.T) {
	assert.True(t, Less(Op{Attr: 1}, Op{Attr: 2}))
	assert.False(t, Less(Op{Attr: 2}, Op{Attr: 1}))
}
