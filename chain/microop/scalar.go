package microop

import (
	"encoding/binary"
	"math"
)

// ApplyString applies action to the raw content of a string value (no
// length prefix - top-level string attributes never carry one, and
// neither does the raw form map.go keeps internally; the prefix is added
// only where the wire form requires it, at the outer edges of map
// encode/decode). Returns KindWrongAction for anything but SET/APPEND/
// PREPEND.
func ApplyString(old, operand []byte, action Action) ([]byte, Kind) {
	switch action {
	case OpSet:
		return append([]byte(nil), operand...), KindNone
	case OpStringAppend:
		out := make([]byte, 0, len(old)+len(operand))
		out = append(out, old...)
		out = append(out, operand...)
		return out, KindNone
	case OpStringPrepend:
		out := make([]byte, 0, len(old)+len(operand))
		out = append(out, operand...)
		out = append(out, old...)
		return out, KindNone
	default:
		return nil, KindWrongAction
	}
}

// ApplyInt64 applies action to an 8-byte little-endian two's complement
// value. A missing old value (len(old) == 0) is treated as zero, per
// spec.md §8's boundary test "arithmetic on a missing map key treated as
// operating on empty-value then insert".
func ApplyInt64(old, operand []byte, action Action) ([]byte, Kind) {
	if len(operand) != 8 || (len(old) != 0 && len(old) != 8) {
		return nil, KindMalformed
	}
	var o int64
	if len(old) == 8 {
		o = int64(binary.LittleEndian.Uint64(old))
	}
	a := int64(binary.LittleEndian.Uint64(operand))

	var result int64
	switch action {
	case OpSet:
		result = a
	case OpNumAdd:
		result = o + a
		if (a > 0 && result < o) || (a < 0 && result > o) {
			return nil, KindOverflow
		}
	case OpNumSub:
		result = o - a
		if (a < 0 && result < o) || (a > 0 && result > o) {
			return nil, KindOverflow
		}
	case OpNumMul:
		result = o * a
		if o != 0 && result/o != a {
			return nil, KindOverflow
		}
	case OpNumDiv:
		if a == 0 {
			return nil, KindOverflow
		}
		result = o / a
	case OpNumMod:
		if a == 0 {
			return nil, KindOverflow
		}
		result = o % a
	case OpNumAnd:
		result = o & a
	case OpNumOr:
		result = o | a
	case OpNumXor:
		result = o ^ a
	default:
		return nil, KindWrongAction
	}

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(result))
	return out, KindNone
}

// ApplyFloat64 applies action to an 8-byte little-endian IEEE-754 value.
// Bitwise actions (AND/OR/XOR) do not apply to floats and return
// WRONGACTION, matching the original engine's type-specific op sets.
func ApplyFloat64(old, operand []byte, action Action) ([]byte, Kind) {
	if len(operand) != 8 || (len(old) != 0 && len(old) != 8) {
		return nil, KindMalformed
	}
	var o float64
	if len(old) == 8 {
		o = math.Float64frombits(binary.LittleEndian.Uint64(old))
	}
	a := math.Float64frombits(binary.LittleEndian.Uint64(operand))

	var result float64
	switch action {
	case OpSet:
		result = a
	case OpNumAdd:
		result = o + a
	case OpNumSub:
		result = o - a
	case OpNumMul:
		result = o * a
	case OpNumDiv:
		if a == 0 {
			return nil, KindOverflow
		}
		result = o / a
	case OpNumMod:
		if a == 0 {
			return nil, KindOverflow
		}
		result = math.Mod(o, a)
	default:
		return nil, KindWrongAction
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return nil, KindOverflow
	}

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(result))
	return out, KindNone
}
