package microop

import (
	"testing"

	"github.com/chainkv/chainkv/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *chain.Schema {
	return &chain.Schema{
		Space:   1,
		KeyType: chain.TypeString,
		Attributes: []chain.Attribute{
			{Name: "value", Type: chain.TypeString},
			{Name: "count", Type: chain.TypeInt64},
		},
	}
}

func TestApplyChecksAndOpsSimplePut(t *testing.T) {
	schema := testSchema()
	ops := []Op{{Attr: 0, Action: OpSet, Arg1: []byte("v1"), Arg1Type: chain.TypeString}}
	newValue, passed, err := ApplyChecksAndOps(schema, nil, ops, nil)
	require.Nil(t, err)
	assert.Equal(t, 1, passed)
	require.Len(t, newValue, 2)
	assert.Equal(t, "v1", string(newValue[0]))
}

func TestApplyChecksAndOpsFailedCheckShortCircuits(t *testing.T) {
	schema := testSchema()
	old := chain.Value{[]byte("v1"), nil}
	checks := []Check{{Attr: 0, Predicate: PredEQ, Value: []byte("nope")}}
	ops := []Op{{Attr: 0, Action: OpSet, Arg1: []byte("v2"), Arg1Type: chain.TypeString}}
	_, passed, err := ApplyChecksAndOps(schema, checks, ops, old)
	assert.Nil(t, err)
	assert.Equal(t, 0, passed, "the failed check itself doesn't count as passed")
}

func TestApplyChecksAndOpsArithmeticOverflowReported(t *testing.T) {
	schema := testSchema()
	old := chain.Value{nil, le64(int64(1) << 62)}
	ops := []Op{{Attr: 1, Action: OpNumAdd, Arg1: le64(int64(1) << 62), Arg1Type: chain.TypeInt64}}
	_, _, err := ApplyChecksAndOps(schema, nil, ops, old)
	require.NotNil(t, err)
	assert.Equal(t, KindOverflow, err.Kind)
	assert.EqualValues(t, 1, err.Attr)
}
