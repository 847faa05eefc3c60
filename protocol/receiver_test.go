package protocol_test

import (
	"testing"

	"github.com/srlabs/arq-sim/protocol"
	"github.com/srlabs/arq-sim/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T, conf protocol.Config) (protocol.Receiver, *test.RecordingNetwork, *test.RecordingApplication) {
	t.Helper()
	network := &test.RecordingNetwork{}
	app := &test.RecordingApplication{}
	var receiverConf protocol.ReceiverConfig
	receiverConf.Config = conf
	receiver, err := protocol.NewReceiver(receiverConf, network, app)
	require.NoError(t, err)
	require.NotNil(t, receiver)
	return receiver, network, app
}

func TestReceiverDeliversInOrder(t *testing.T) {
	receiver, network, app := newTestReceiver(t, protocol.DefaultConfig())

	for i, c := range []byte{'a', 'b', 'c'} {
		receiver.Input(test.DataPacket(i, c))
	}

	require.Len(t, app.Payloads, 3)
	for i, c := range []byte{'a', 'b', 'c'} {
		assert.Equal(t, test.MessageOf(c).Data, app.Payloads[i])
	}

	acks := network.Drain()
	require.Len(t, acks, 3)
	for i, ack := range acks {
		assert.Equal(t, i, ack.Acknum)
		assert.False(t, protocol.IsCorrupted(ack))
		assert.Nil(t, protocol.DecodeSack(ack.Payload, 6))
	}
	// the receiver's own sequence number alternates 0/1, carrying no
	// protocol meaning beyond integrity checking
	assert.Equal(t, 1, acks[0].Seqnum)
	assert.Equal(t, 0, acks[1].Seqnum)
	assert.Equal(t, 1, acks[2].Seqnum)
}

func TestReceiverBuffersOutOfOrderAndReportsSack(t *testing.T) {
	receiver, network, app := newTestReceiver(t, protocol.DefaultConfig())

	// seq 2 arrives first: buffered, not delivered, ACKed with no SACK
	// entries besides itself (the primary acknum is excluded)
	receiver.Input(test.DataPacket(2, 'c'))
	assert.Empty(t, app.Payloads)
	acks := network.Drain()
	require.Len(t, acks, 1)
	assert.Equal(t, 2, acks[0].Acknum)
	assert.Nil(t, protocol.DecodeSack(acks[0].Payload, 6))

	// seq 0 arrives: delivered immediately, the ACK SACKs the buffered
	// seq 2
	receiver.Input(test.DataPacket(0, 'a'))
	require.Len(t, app.Payloads, 1)
	assert.Equal(t, test.MessageOf('a').Data, app.Payloads[0])
	acks = network.Drain()
	require.Len(t, acks, 1)
	assert.Equal(t, 0, acks[0].Acknum)
	assert.Equal(t, []int{2}, protocol.DecodeSack(acks[0].Payload, 6))

	// seq 1 fills the gap: the buffered run is delivered greedily
	receiver.Input(test.DataPacket(1, 'b'))
	require.Len(t, app.Payloads, 3)
	assert.Equal(t, test.MessageOf('b').Data, app.Payloads[1])
	assert.Equal(t, test.MessageOf('c').Data, app.Payloads[2])
	acks = network.Drain()
	require.Len(t, acks, 1)
	assert.Equal(t, 1, acks[0].Acknum)
	assert.Nil(t, protocol.DecodeSack(acks[0].Payload, 6))
}

func TestReceiverRebufferIsIdempotent(t *testing.T) {
	receiver, network, app := newTestReceiver(t, protocol.DefaultConfig())

	receiver.Input(test.DataPacket(2, 'c'))
	receiver.Input(test.DataPacket(2, 'c'))

	assert.Empty(t, app.Payloads)
	acks := network.Drain()
	require.Len(t, acks, 2)
	for _, ack := range acks {
		assert.Equal(t, 2, ack.Acknum)
	}
	stats := receiver.Stats()
	assert.Equal(t, 1, stats.PacketsReceived)
	assert.Equal(t, 1, stats.RetransmissionsReceived)
}

func TestReceiverAcksOldDuplicateWithoutRedelivery(t *testing.T) {
	receiver, network, app := newTestReceiver(t, protocol.DefaultConfig())

	for i, c := range []byte{'a', 'b', 'c'} {
		receiver.Input(test.DataPacket(i, c))
	}
	network.Drain()
	require.Len(t, app.Payloads, 3)

	// a retransmission of seq 0 whose ACK was lost: acknowledge it so
	// the sender can retire it, but do not rebuffer or redeliver
	receiver.Input(test.DataPacket(0, 'a'))
	require.Len(t, app.Payloads, 3)
	acks := network.Drain()
	require.Len(t, acks, 1)
	assert.Equal(t, 0, acks[0].Acknum)
	assert.Equal(t, 1, receiver.Stats().DuplicatesAcked)
}

func TestReceiverDropsFarFuturePacketSilently(t *testing.T) {
	conf := protocol.DefaultConfig()
	conf.WindowSize = 3
	receiver, network, app := newTestReceiver(t, conf)

	// with a window of 3 over a sequence space of 12, seq 7 is beyond
	// twice the window from the base: anomalously far ahead
	receiver.Input(test.DataPacket(7, 'x'))
	assert.Empty(t, network.Drain())
	assert.Empty(t, app.Payloads)
	assert.Equal(t, 1, receiver.Stats().FarFutureDropped)
}

func TestReceiverDiscardsCorruptedPacketWithoutAck(t *testing.T) {
	receiver, network, app := newTestReceiver(t, protocol.DefaultConfig())

	// no ACK is sent, forcing the sender to time out and retransmit
	receiver.Input(test.Corrupted(test.DataPacket(0, 'a')))
	assert.Empty(t, network.Drain())
	assert.Empty(t, app.Payloads)
	assert.Equal(t, 1, receiver.Stats().CorruptedPacketsReceived)
}

func TestReceiverCapsSackEntries(t *testing.T) {
	conf := protocol.DefaultConfig()
	conf.MaxSack = 3
	receiver, network, _ := newTestReceiver(t, conf)

	// buffer seqs 1..5, leaving the gap at 0
	for i, c := range []byte{'b', 'c', 'd', 'e', 'f'} {
		receiver.Input(test.DataPacket(i+1, c))
	}
	acks := network.Drain()
	require.Len(t, acks, 5)
	last := acks[4]
	assert.Equal(t, 5, last.Acknum)
	assert.Equal(t, []int{1, 2, 3}, protocol.DecodeSack(last.Payload, conf.MaxSack))
}

func TestReceiverDeliveryAcrossSequenceWrap(t *testing.T) {
	conf := protocol.Config{
		WindowSize:   3,
		SeqSpace:     6,
		RTT:          16.0,
		MaxSack:      3,
		MaxQueueSize: 10,
	}
	receiver, network, app := newTestReceiver(t, conf)

	payloads := []byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}
	for i, c := range payloads {
		receiver.Input(test.DataPacket(i%conf.SeqSpace, c))
	}

	require.Len(t, app.Payloads, len(payloads))
	for i, c := range payloads {
		assert.Equal(t, test.MessageOf(c).Data, app.Payloads[i])
	}
	acks := network.Drain()
	require.Len(t, acks, len(payloads))
	for i, ack := range acks {
		assert.Equal(t, i%conf.SeqSpace, ack.Acknum)
	}
}
