package microop

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Map elements are kept in this package as raw decoded content - no
// length prefix for strings, even though the wire form of a map (both on
// disk and inside a SET operand) always carries one for its string
// elements (spec.md §4.9: "unlike standalone string attributes, which
// omit the length prefix, the length prefix is always present" there).
// Keeping the internal representation prefix-free lets the map engine
// reuse ApplyString/ApplyInt64/ApplyFloat64 unmodified for values nested
// inside a map; the prefix is added and stripped only at stepString/
// writeString, the map's wire boundary.

// stepString reads a length-prefixed string element and returns its
// content (without the prefix).
func stepString(buf []byte) (elem, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("microop: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, fmt.Errorf("microop: truncated string body")
	}
	return buf[:n], buf[n:], nil
}

// stepFixed8 reads a fixed 8-byte element (int64 or float64 encoding).
func stepFixed8(buf []byte) (elem, rest []byte, err error) {
	if len(buf) < 8 {
		return nil, nil, fmt.Errorf("microop: truncated 8-byte element")
	}
	return buf[:8], buf[8:], nil
}

func writeString(dst []byte, elem []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(elem)))
	dst = append(dst, tmp[:]...)
	return append(dst, elem...)
}

func writeFixed8(dst []byte, elem []byte) []byte {
	return append(dst, elem...)
}

func compareStringLess(a, b []byte) bool {
	return bytes.Compare(a, b) < 0
}

func compareInt64Less(a, b []byte) bool {
	return int64(binary.LittleEndian.Uint64(a)) < int64(binary.LittleEndian.Uint64(b))
}

func compareFloat64Less(a, b []byte) bool {
	return math.Float64frombits(binary.LittleEndian.Uint64(a)) <
		math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func validateString(b []byte) bool { return true }
func validateInt64(b []byte) bool  { return len(b) == 8 }
func validateFloat64(b []byte) bool {
	if len(b) != 8 {
		return false
	}
	f := math.Float64frombits(binary.LittleEndian.Uint64(b))
	return !math.IsNaN(f)
}
