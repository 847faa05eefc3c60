package protocol

import (
	"encoding/binary"
	"fmt"
)

type (
	// Packet is the unit exchanged between the two entities through the
	// network. Immutable once constructed and checksummed. Seqnum and
	// Acknum range over [0, SeqSpace); Acknum may also be NotInUse on
	// data packets. The payload carries application data on data packets
	// and SACK-encoded digits on ACK packets.
	Packet struct {
		Seqnum   int
		Acknum   int
		Checksum int
		Payload  [PayloadLength]byte
	}

	// Message is an opaque application data unit, produced by the layer
	// above the sender and consumed by the layer below the receiver.
	Message struct {
		Data [PayloadLength]byte
	}
)

// Marshal serializes the packet into its fixed wire image: seqnum,
// acknum and checksum as big endian 32-bit integers followed by the
// payload. The host delivers whole packets, so no framing is needed.
func (p Packet) Marshal() []byte {
	b := make([]byte, WireLength)
	binary.BigEndian.PutUint32(b[0:4], uint32(int32(p.Seqnum)))
	binary.BigEndian.PutUint32(b[4:8], uint32(int32(p.Acknum)))
	binary.BigEndian.PutUint32(b[8:12], uint32(int32(p.Checksum)))
	copy(b[12:], p.Payload[:])
	return b
}

// UnmarshalPacket is the inverse of Packet.Marshal().
func UnmarshalPacket(b []byte) (Packet, error) {
	var p Packet
	if len(b) != WireLength {
		return p, fmt.Errorf("packet wire image must have exactly %d bytes, got %d", WireLength, len(b))
	}
	p.Seqnum = int(int32(binary.BigEndian.Uint32(b[0:4])))
	p.Acknum = int(int32(binary.BigEndian.Uint32(b[4:8])))
	p.Checksum = int(int32(binary.BigEndian.Uint32(b[8:12])))
	copy(p.Payload[:], b[12:])
	return p, nil
}
