package frontend

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/chainkv/chainkv/chain"
	"github.com/chainkv/chainkv/chain/microop"
)

// attrTypesByName/predicatesByName/actionsByName map the short lowercase
// strings this package's JSON bodies carry to the enum values, instead of the
// raw wire bytes spec.md's micro-op encoding uses - a gateway's callers
// are humans and scripts, not other chain peers.

var attrTypesByName = map[string]chain.AttrType{
	"string":              chain.TypeString,
	"int64":                chain.TypeInt64,
	"float64":              chain.TypeFloat64,
	"map_generic":          chain.TypeMapGeneric,
	"map_string_string":    chain.TypeMapStringString,
	"map_string_int64":     chain.TypeMapStringInt64,
	"map_string_float64":   chain.TypeMapStringFloat64,
	"map_int64_string":     chain.TypeMapInt64String,
	"map_int64_int64":      chain.TypeMapInt64Int64,
	"map_int64_float64":    chain.TypeMapInt64Float64,
	"map_float64_string":   chain.TypeMapFloat64String,
	"map_float64_int64":    chain.TypeMapFloat64Int64,
	"map_float64_float64":  chain.TypeMapFloat64Float64,
}

var predicatesByName = map[string]microop.Predicate{
	"eq": microop.PredEQ,
	"lt": microop.PredLT,
	"le": microop.PredLE,
	"gt": microop.PredGT,
	"ge": microop.PredGE,
	"ne": microop.PredNE,
}

var actionsByName = map[string]microop.Action{
	"set":            microop.OpSet,
	"map_add":        microop.OpMapAdd,
	"map_remove":     microop.OpMapRemove,
	"string_append":  microop.OpStringAppend,
	"string_prepend": microop.OpStringPrepend,
	"num_add":        microop.OpNumAdd,
	"num_sub":        microop.OpNumSub,
	"num_mul":        microop.OpNumMul,
	"num_div":        microop.OpNumDiv,
	"num_mod":        microop.OpNumMod,
	"num_and":        microop.OpNumAnd,
	"num_or":         microop.OpNumOr,
	"num_xor":        microop.OpNumXor,
}

// encodeScalar renders a human-readable JSON string into the raw bytes
// microop's scalar engine expects, per attrType.
func encodeScalar(attrType chain.AttrType, literal string) ([]byte, error) {
	switch attrType {
	case chain.TypeString:
		return []byte(literal), nil
	case chain.TypeInt64:
		v, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("frontend: %q is not a valid int64: %w", literal, err)
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return buf[:], nil
	case chain.TypeFloat64:
		v, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, fmt.Errorf("frontend: %q is not a valid float64: %w", literal, err)
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		return buf[:], nil
	default:
		return nil, fmt.Errorf("frontend: attribute type %v cannot be carried as a scalar literal", attrType)
	}
}

// decodeScalar is encodeScalar's inverse: it renders stored attribute
// bytes back into a JSON-friendly string. The gateway's responses carry
// only a status, so no handler calls it.
func decodeScalar(attrType chain.AttrType, b []byte) string {
	switch attrType {
	case chain.TypeInt64:
		if len(b) != 8 {
			return ""
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10)
	case chain.TypeFloat64:
		if len(b) != 8 {
			return ""
		}
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64)
	default:
		return string(b)
	}
}

// checkJSON/opJSON are the wire shapes of one request body's checks/ops
// arrays - see doc.go for why these are JSON rather than spec.md §6's
// binary micro-op encoding.
type checkJSON struct {
	Attr      uint16 `json:"attr"`
	Predicate string `json:"predicate"`
	Value     string `json:"value"`
	ValueType string `json:"value_type"`
}

type opJSON struct {
	Attr     uint16 `json:"attr"`
	Action   string `json:"action"`
	Arg1     string `json:"arg1"`
	Arg1Type string `json:"arg1_type"`
	Arg2     string `json:"arg2"`
	Arg2Type string `json:"arg2_type"`
}

func decodeCheck(c checkJSON) (microop.Check, error) {
	pred, ok := predicatesByName[c.Predicate]
	if !ok {
		return microop.Check{}, fmt.Errorf("frontend: unknown predicate %q", c.Predicate)
	}
	attrType, ok := attrTypesByName[c.ValueType]
	if !ok {
		return microop.Check{}, fmt.Errorf("frontend: unknown value_type %q", c.ValueType)
	}
	val, err := encodeScalar(attrType, c.Value)
	if err != nil {
		return microop.Check{}, err
	}
	return microop.Check{Attr: c.Attr, Predicate: pred, Value: val}, nil
}

func decodeOp(o opJSON) (microop.Op, error) {
	action, ok := actionsByName[o.Action]
	if !ok {
		return microop.Op{}, fmt.Errorf("frontend: unknown action %q", o.Action)
	}
	op := microop.Op{Attr: o.Attr, Action: action}

	if o.Arg1Type != "" {
		t, ok := attrTypesByName[o.Arg1Type]
		if !ok {
			return microop.Op{}, fmt.Errorf("frontend: unknown arg1_type %q", o.Arg1Type)
		}
		arg1, err := encodeScalar(t, o.Arg1)
		if err != nil {
			return microop.Op{}, err
		}
		op.Arg1, op.Arg1Type = arg1, t
	}
	if o.Arg2Type != "" {
		t, ok := attrTypesByName[o.Arg2Type]
		if !ok {
			return microop.Op{}, fmt.Errorf("frontend: unknown arg2_type %q", o.Arg2Type)
		}
		arg2, err := encodeScalar(t, o.Arg2)
		if err != nil {
			return microop.Op{}, err
		}
		op.Arg2, op.Arg2Type = arg2, t
	}
	return op, nil
}

// retCodeStatus maps a chain.RetCode to the HTTP status this gateway
// answers with.
func retCodeStatus(code chain.RetCode) int {
	switch code {
	case chain.RetSuccess:
		return 200
	case chain.RetNotFound:
		return 404
	case chain.RetBadDimSpec:
		return 400
	case chain.RetNotUs:
		return 409
	case chain.RetCmpFail:
		return 412
	case chain.RetOverflow:
		return 400
	case chain.RetReadOnly:
		return 503
	default:
		return 500
	}
}
