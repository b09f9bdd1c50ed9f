package microop

import (
	"encoding/binary"
	"fmt"

	"github.com/chainkv/chainkv/chain"
)

// Op is one micro-operation against attribute Attr (spec.md §3 "Pending
// op", §4.9). Arg1 is the operand; Arg2 is the map key when Action targets
// a value nested inside a map attribute, unused otherwise.
type Op struct {
	Attr     uint16
	Action   Action
	Arg1     []byte
	Arg1Type chain.AttrType
	Arg2     []byte
	Arg2Type chain.AttrType
}

// Less orders ops by attribute ascending, the comparison spec.md §6
// requires for the wire form and the apply loop both.
func Less(lhs, rhs Op) bool {
	return lhs.Attr < rhs.Attr
}

// DecodeOps parses the wire form from spec.md §6:
// u16 attr, u8 action, u32 arg1_len, arg1_bytes, u16 arg1_datatype,
// u32 arg2_len, arg2_bytes, u16 arg2_datatype - repeated until buf is
// exhausted.
func DecodeOps(buf []byte) ([]Op, error) {
	var ops []Op
	for len(buf) > 0 {
		op, rest, err := decodeOne(buf)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		buf = rest
	}
	return ops, nil
}

func decodeOne(buf []byte) (Op, []byte, error) {
	var op Op
	if len(buf) < 2+1 {
		return op, nil, fmt.Errorf("microop: truncated header")
	}
	op.Attr = binary.LittleEndian.Uint16(buf)
	buf = buf[2:]
	action := buf[0]
	buf = buf[1:]
	if action > byte(OpNumXor) {
		op.Action = opUnsupported
	} else {
		op.Action = Action(action)
	}

	arg1, buf, err := decodeArg(buf)
	if err != nil {
		return op, nil, err
	}
	op.Arg1 = arg1
	if len(buf) < 2 {
		return op, nil, fmt.Errorf("microop: truncated arg1_datatype")
	}
	op.Arg1Type = chain.AttrType(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]

	arg2, buf, err := decodeArg(buf)
	if err != nil {
		return op, nil, err
	}
	op.Arg2 = arg2
	if len(buf) < 2 {
		return op, nil, fmt.Errorf("microop: truncated arg2_datatype")
	}
	op.Arg2Type = chain.AttrType(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]

	return op, buf, nil
}

func decodeArg(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("microop: truncated arg length")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if n == 0 {
		return nil, buf, nil
	}
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, fmt.Errorf("microop: truncated arg body")
	}
	return buf[:n], buf[n:], nil
}

// EncodeOps renders ops back into the wire form DecodeOps parses.
func EncodeOps(ops []Op) []byte {
	var size int
	for _, op := range ops {
		size += 2 + 1 + 4 + len(op.Arg1) + 2 + 4 + len(op.Arg2) + 2
	}
	out := make([]byte, 0, size)
	var tmp [4]byte
	for _, op := range ops {
		binary.LittleEndian.PutUint16(tmp[:2], op.Attr)
		out = append(out, tmp[:2]...)
		out = append(out, byte(op.Action))

		binary.LittleEndian.PutUint32(tmp[:4], uint32(len(op.Arg1)))
		out = append(out, tmp[:4]...)
		out = append(out, op.Arg1...)
		binary.LittleEndian.PutUint16(tmp[:2], uint16(op.Arg1Type))
		out = append(out, tmp[:2]...)

		binary.LittleEndian.PutUint32(tmp[:4], uint32(len(op.Arg2)))
		out = append(out, tmp[:4]...)
		out = append(out, op.Arg2...)
		binary.LittleEndian.PutUint16(tmp[:2], uint16(op.Arg2Type))
		out = append(out, tmp[:2]...)
	}
	return out
}
