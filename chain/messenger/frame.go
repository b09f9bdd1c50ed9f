package messenger

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/chainkv/chainkv/chain"
)

// entitySize is the encoded width of one chain.EntityId: Region.Subspace.
// Space(4) + Region.Subspace.Index(2) + Region.Prefix(8) + Region.Mask(1)
// + EntityId.Index(4).
const entitySize = 4 + 2 + 8 + 1 + 4

// helloSize is the one-time preamble every connection starts with: the
// sender's own chain.InstanceId, so the accepting side can address
// replies back over the same socket instead of dialing a new one.
const helloSize = 8

// headerSize is a data frame's fixed header: msgType(1) + from(entitySize)
// + to(entitySize) + payload length(4).
const headerSize = 1 + entitySize*2 + 4

func putEntity(dst []byte, e chain.EntityId) []byte {
	var tmp [entitySize]byte
	binary.BigEndian.PutUint32(tmp[0:4], uint32(e.Region.Subspace.Space))
	binary.BigEndian.PutUint16(tmp[4:6], e.Region.Subspace.Index)
	binary.BigEndian.PutUint64(tmp[6:14], e.Region.Prefix)
	tmp[14] = e.Region.Mask
	binary.BigEndian.PutUint32(tmp[15:19], e.Index)
	return append(dst, tmp[:]...)
}

func takeEntity(buf []byte) (chain.EntityId, []byte, error) {
	if len(buf) < entitySize {
		return chain.EntityId{}, nil, fmt.Errorf("messenger: truncated entity")
	}
	e := chain.EntityId{
		Region: chain.RegionId{
			Subspace: chain.SubspaceId{
				Space: chain.SpaceId(binary.BigEndian.Uint32(buf[0:4])),
				Index: binary.BigEndian.Uint16(buf[4:6]),
			},
			Prefix: binary.BigEndian.Uint64(buf[6:14]),
			Mask:   buf[14],
		},
		Index: binary.BigEndian.Uint32(buf[15:19]),
	}
	return e, buf[entitySize:], nil
}

// writeHello sends the one-time preamble identifying self to the peer.
func writeHello(conn net.Conn, self chain.InstanceId) error {
	var buf [helloSize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(self))
	_, err := conn.Write(buf[:])
	return err
}

// readHello reads the preamble identifying the peer that just connected.
func readHello(conn net.Conn) (chain.InstanceId, error) {
	var buf [helloSize]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return 0, err
	}
	return chain.InstanceId(binary.BigEndian.Uint64(buf[:])), nil
}

// writeFrame writes one message: msgType(1), from(entitySize), to(entitySize),
// payload length(4), payload.
func writeFrame(conn net.Conn, from, to chain.EntityId, msgType chain.MsgType, payload []byte) error {
	header := make([]byte, 0, headerSize)
	header = append(header, byte(msgType))
	header = putEntity(header, from)
	header = putEntity(header, to)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	header = append(header, lenBuf[:]...)

	b := net.Buffers{header, payload}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one message using buf as scratch space where possible.
func readFrame(conn net.Conn, buf []byte) (from, to chain.EntityId, msgType chain.MsgType, payload []byte, err error) {
	if len(buf) < headerSize {
		buf = make([]byte, headerSize)
	}
	if _, err = io.ReadFull(conn, buf[:headerSize]); err != nil {
		return chain.EntityId{}, chain.EntityId{}, 0, nil, err
	}

	msgType = chain.MsgType(buf[0])
	rest := buf[1:headerSize]
	from, rest, err = takeEntity(rest)
	if err != nil {
		return chain.EntityId{}, chain.EntityId{}, 0, nil, err
	}
	to, rest, err = takeEntity(rest)
	if err != nil {
		return chain.EntityId{}, chain.EntityId{}, 0, nil, err
	}
	n := binary.BigEndian.Uint32(rest)

	if n == 0 {
		return from, to, msgType, []byte{}, nil
	}
	payload = make([]byte, n)
	if _, err = io.ReadFull(conn, payload); err != nil {
		return chain.EntityId{}, chain.EntityId{}, 0, nil, err
	}
	return from, to, msgType, payload, nil
}
