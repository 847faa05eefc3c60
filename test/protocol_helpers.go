package test

import (
	"github.com/srlabs/arq-sim/protocol"
)

type (
	// RecordingNetwork implements protocol.Network by storing every
	// packet handed to it.
	RecordingNetwork struct {
		Packets []protocol.Packet
	}

	// RecordingApplication implements protocol.Application by storing
	// every delivered payload.
	RecordingApplication struct {
		Payloads [][protocol.PayloadLength]byte
	}

	// ManualTimer implements protocol.Timer by recording the timer
	// state, leaving expiry to the test.
	ManualTimer struct {
		Running  bool
		Duration float64
		Starts   int
		Stops    int
	}
)

func (n *RecordingNetwork) Send(pkt protocol.Packet) {
	n.Packets = append(n.Packets, pkt)
}

// Drain returns the recorded packets and resets the recording.
func (n *RecordingNetwork) Drain() []protocol.Packet {
	pkts := n.Packets
	n.Packets = nil
	return pkts
}

func (a *RecordingApplication) Deliver(payload [protocol.PayloadLength]byte) {
	a.Payloads = append(a.Payloads, payload)
}

func (t *ManualTimer) Start(duration float64) {
	t.Running = true
	t.Duration = duration
	t.Starts++
}

func (t *ManualTimer) Stop() {
	t.Running = false
	t.Stops++
}

// MessageOf returns a Message with its payload filled with c.
func MessageOf(c byte) protocol.Message {
	var msg protocol.Message
	for i := range msg.Data {
		msg.Data[i] = c
	}
	return msg
}

// DataPacket builds a checksummed data packet with its payload filled
// with c.
func DataPacket(seqnum int, c byte) protocol.Packet {
	pkt := protocol.Packet{
		Seqnum:  seqnum,
		Acknum:  protocol.NotInUse,
		Payload: MessageOf(c).Data,
	}
	pkt.Checksum = protocol.ComputeChecksum(pkt)
	return pkt
}

// Ack builds a checksummed ACK packet for acknum carrying the given
// SACK entries.
func Ack(seqnum, acknum int, sack []int, maxSack int) protocol.Packet {
	pkt := protocol.Packet{
		Seqnum:  seqnum,
		Acknum:  acknum,
		Payload: protocol.EncodeSack(sack, maxSack),
	}
	pkt.Checksum = protocol.ComputeChecksum(pkt)
	return pkt
}

// Corrupted returns a copy of pkt mutated in transit: its stored
// checksum no longer matches its contents.
func Corrupted(pkt protocol.Packet) protocol.Packet {
	pkt.Payload[0] = 'Z'
	if protocol.ComputeChecksum(pkt) == pkt.Checksum {
		pkt.Checksum++
	}
	return pkt
}
