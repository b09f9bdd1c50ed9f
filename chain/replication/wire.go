package replication

import (
	"encoding/binary"
	"fmt"

	"github.com/chainkv/chainkv/chain"
)

// EncodeValue renders a value as packed_value (spec.md §6): the vector of
// attribute slices in schema order, each prefixed with its u32 length.
func EncodeValue(value chain.Value) []byte {
	var size int
	for _, attr := range value {
		size += 4 + len(attr)
	}
	out := make([]byte, 0, size)
	var tmp [4]byte
	for _, attr := range value {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(attr)))
		out = append(out, tmp[:]...)
		out = append(out, attr...)
	}
	return out
}

// DecodeValue parses a packed_value that contains count attributes.
func DecodeValue(buf []byte, count int) (chain.Value, []byte, error) {
	value := make(chain.Value, 0, count)
	for i := 0; i < count; i++ {
		if len(buf) < 4 {
			return nil, nil, fmt.Errorf("replication: truncated attr length")
		}
		n := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		if uint64(len(buf)) < uint64(n) {
			return nil, nil, fmt.Errorf("replication: truncated attr body")
		}
		value = append(value, buf[:n])
		buf = buf[n:]
	}
	return value, buf, nil
}

func putUint64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func putUint32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

func takeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("replication: truncated u64")
	}
	return binary.LittleEndian.Uint64(buf), buf[8:], nil
}

func takeKey(buf []byte) (chain.Key, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("replication: truncated keylen")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, fmt.Errorf("replication: truncated key")
	}
	return chain.Key(buf[:n]), buf[n:], nil
}

// EncodeChainPut renders a CHAIN_PUT payload: u64 version, u8
// flags(bit0=fresh), u32 keylen, key_bytes, packed_value.
func EncodeChainPut(version chain.Version, fresh bool, key chain.Key, value chain.Value) []byte {
	out := putUint64(nil, uint64(version))
	var flags byte
	if fresh {
		flags = 1
	}
	out = append(out, flags)
	out = putUint32(out, uint32(len(key)))
	out = append(out, key...)
	out = append(out, EncodeValue(value)...)
	return out
}

// DecodeChainPut parses a CHAIN_PUT payload. attrCount is the schema's
// attribute count, needed to delimit packed_value.
func DecodeChainPut(buf []byte, attrCount int) (version chain.Version, fresh bool, key chain.Key, value chain.Value, err error) {
	v, buf, err := takeUint64(buf)
	if err != nil {
		return 0, false, nil, nil, err
	}
	if len(buf) < 1 {
		return 0, false, nil, nil, fmt.Errorf("replication: truncated flags")
	}
	fresh = buf[0]&1 != 0
	buf = buf[1:]
	key, buf, err = takeKey(buf)
	if err != nil {
		return 0, false, nil, nil, err
	}
	value, _, err = DecodeValue(buf, attrCount)
	if err != nil {
		return 0, false, nil, nil, err
	}
	return chain.Version(v), fresh, key, value, nil
}

// EncodeChainDel renders a CHAIN_DEL payload: u64 version, u32 keylen, key_bytes.
func EncodeChainDel(version chain.Version, key chain.Key) []byte {
	out := putUint64(nil, uint64(version))
	out = putUint32(out, uint32(len(key)))
	out = append(out, key...)
	return out
}

// DecodeChainDel parses a CHAIN_DEL payload.
func DecodeChainDel(buf []byte) (version chain.Version, key chain.Key, err error) {
	v, buf, err := takeUint64(buf)
	if err != nil {
		return 0, nil, err
	}
	key, _, err = takeKey(buf)
	if err != nil {
		return 0, nil, err
	}
	return chain.Version(v), key, nil
}

// EncodeChainSubspace renders a CHAIN_SUBSPACE payload: u64 version, u32
// keylen, key_bytes, packed_value, u64 next_point.
func EncodeChainSubspace(version chain.Version, key chain.Key, value chain.Value, nextPoint uint64) []byte {
	out := putUint64(nil, uint64(version))
	out = putUint32(out, uint32(len(key)))
	out = append(out, key...)
	out = append(out, EncodeValue(value)...)
	out = putUint64(out, nextPoint)
	return out
}

// DecodeChainSubspace parses a CHAIN_SUBSPACE payload.
func DecodeChainSubspace(buf []byte, attrCount int) (version chain.Version, key chain.Key, value chain.Value, nextPoint uint64, err error) {
	v, buf, err := takeUint64(buf)
	if err != nil {
		return 0, nil, nil, 0, err
	}
	key, buf, err = takeKey(buf)
	if err != nil {
		return 0, nil, nil, 0, err
	}
	value, buf, err = DecodeValue(buf, attrCount)
	if err != nil {
		return 0, nil, nil, 0, err
	}
	next, _, err := takeUint64(buf)
	if err != nil {
		return 0, nil, nil, 0, err
	}
	return chain.Version(v), key, value, next, nil
}

// EncodeChainAck renders a CHAIN_ACK payload: u64 version, u32 keylen, key_bytes.
func EncodeChainAck(version chain.Version, key chain.Key) []byte {
	out := putUint64(nil, uint64(version))
	out = putUint32(out, uint32(len(key)))
	out = append(out, key...)
	return out
}

// DecodeChainAck parses a CHAIN_ACK payload.
func DecodeChainAck(buf []byte) (version chain.Version, key chain.Key, err error) {
	v, buf, err := takeUint64(buf)
	if err != nil {
		return 0, nil, err
	}
	key, _, err = takeKey(buf)
	if err != nil {
		return 0, nil, err
	}
	return chain.Version(v), key, nil
}

// EncodeClientResponse renders the client response payload: u64 nonce, u16 net_returncode.
func EncodeClientResponse(nonce uint64, code chain.RetCode) []byte {
	out := putUint64(nil, nonce)
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(code))
	return append(out, tmp[:]...)
}

// DecodeClientResponse parses a client response payload.
func DecodeClientResponse(buf []byte) (nonce uint64, code chain.RetCode, err error) {
	nonce, buf, err = takeUint64(buf)
	if err != nil {
		return 0, 0, err
	}
	if len(buf) < 2 {
		return 0, 0, fmt.Errorf("replication: truncated returncode")
	}
	return nonce, chain.RetCode(binary.LittleEndian.Uint16(buf)), nil
}
