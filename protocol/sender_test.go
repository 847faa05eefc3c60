package protocol_test

import (
	"testing"

	"github.com/srlabs/arq-sim/protocol"
	"github.com/srlabs/arq-sim/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, conf protocol.Config) (protocol.Sender, *test.RecordingNetwork, *test.ManualTimer) {
	t.Helper()
	network := &test.RecordingNetwork{}
	timer := &test.ManualTimer{}
	var senderConf protocol.SenderConfig
	senderConf.Config = conf
	sender, err := protocol.NewSender(senderConf, network, timer)
	require.NoError(t, err)
	require.NotNil(t, sender)
	return sender, network, timer
}

func TestNewSenderValidatesConfig(t *testing.T) {
	conf := protocol.DefaultConfig()
	conf.SeqSpace = conf.WindowSize
	var senderConf protocol.SenderConfig
	senderConf.Config = conf
	_, err := protocol.NewSender(senderConf, &test.RecordingNetwork{}, &test.ManualTimer{})
	require.Error(t, err)
}

func TestSenderWindowQueueAndRetransmission(t *testing.T) {
	sender, network, timer := newTestSender(t, protocol.DefaultConfig())

	// submit m0..m7: only m0..m5 fit the window, m6 and m7 queue
	for i := 0; i < 8; i++ {
		sender.Output(test.MessageOf(byte('a' + i)))
	}
	pkts := network.Drain()
	require.Len(t, pkts, 6)
	for i, pkt := range pkts {
		assert.Equal(t, i, pkt.Seqnum)
		assert.Equal(t, protocol.NotInUse, pkt.Acknum)
		assert.False(t, protocol.IsCorrupted(pkt))
	}
	stats := sender.Stats()
	assert.Equal(t, 6, stats.MessagesAccepted)
	assert.Equal(t, 2, stats.WindowFullEvents)
	assert.Equal(t, 2, stats.MessagesQueued)
	assert.True(t, timer.Running)
	assert.Equal(t, 16.0, timer.Duration)

	// ACK for seq 0 slides the window to base 1 and transmits m6 with seq 6
	sender.Input(test.Ack(1, 0, nil, 6))
	pkts = network.Drain()
	require.Len(t, pkts, 1)
	assert.Equal(t, 6, pkts[0].Seqnum)
	assert.Equal(t, test.MessageOf('g').Data, pkts[0].Payload)
	assert.True(t, timer.Running)

	// a corrupted ACK for seq 1 changes no state
	sender.Input(test.Corrupted(test.Ack(0, 1, nil, 6)))
	assert.Empty(t, network.Drain())
	assert.Equal(t, 1, sender.Stats().CorruptedAcks)

	// timeout before a valid ACK for seq 1: seq 1 is retransmitted
	sender.Timeout()
	pkts = network.Drain()
	require.Len(t, pkts, 1)
	assert.Equal(t, 1, pkts[0].Seqnum)
	assert.Equal(t, 1, sender.Stats().PacketsResent)
	assert.True(t, timer.Running)
}

func TestSenderSackProcessing(t *testing.T) {
	sender, network, timer := newTestSender(t, protocol.DefaultConfig())

	for i := 0; i < 4; i++ {
		sender.Output(test.MessageOf(byte('a' + i)))
	}
	network.Drain()

	// primary ACK for 0 plus SACKs for 2 and 3: three new ACKs, the
	// window slides past 0 only
	sender.Input(test.Ack(1, 0, []int{2, 3}, 6))
	assert.Equal(t, 3, sender.Stats().NewAcks)
	assert.True(t, timer.Running, "seq 1 is still outstanding")

	// ACK for 1 retires the whole window and stops the timer
	sender.Input(test.Ack(0, 1, nil, 6))
	assert.Equal(t, 4, sender.Stats().NewAcks)
	assert.False(t, timer.Running)

	// the window is empty again: a full window of new messages
	// transmits immediately
	for i := 0; i < 6; i++ {
		sender.Output(test.MessageOf('z'))
	}
	pkts := network.Drain()
	require.Len(t, pkts, 6)
	assert.Equal(t, 4, pkts[0].Seqnum)
	assert.Equal(t, 9, pkts[5].Seqnum)
}

func TestSenderDuplicateAckIsNoop(t *testing.T) {
	sender, network, timer := newTestSender(t, protocol.DefaultConfig())

	sender.Output(test.MessageOf('a'))
	sender.Output(test.MessageOf('b'))
	network.Drain()

	sender.Input(test.Ack(1, 0, nil, 6))
	require.Equal(t, 1, sender.Stats().NewAcks)

	// seq 0 is no longer in the window: a second ACK for it changes
	// nothing
	sender.Input(test.Ack(0, 0, nil, 6))
	assert.Equal(t, 1, sender.Stats().NewAcks)
	assert.Equal(t, 1, sender.Stats().DuplicateAcks)
	assert.Empty(t, network.Drain())
	assert.True(t, timer.Running, "seq 1 is still outstanding")
}

func TestSenderTimerLifecycle(t *testing.T) {
	sender, _, timer := newTestSender(t, protocol.DefaultConfig())

	sender.Output(test.MessageOf('a'))
	assert.True(t, timer.Running)
	assert.Equal(t, 1, timer.Starts)

	// a second outstanding packet does not start another timer
	sender.Output(test.MessageOf('b'))
	assert.Equal(t, 1, timer.Starts)

	// acknowledging the timed packet cancels the timer and rearms it
	// for the next-oldest unacknowledged packet
	sender.Input(test.Ack(1, 0, nil, 6))
	assert.Equal(t, 1, timer.Stops)
	assert.Equal(t, 2, timer.Starts)
	assert.True(t, timer.Running)

	sender.Input(test.Ack(0, 1, nil, 6))
	assert.False(t, timer.Running)
}

func TestSenderQueueOverflowDropsAndCounts(t *testing.T) {
	conf := protocol.DefaultConfig()
	conf.MaxQueueSize = 1
	sender, network, _ := newTestSender(t, conf)

	for i := 0; i < conf.WindowSize+2; i++ {
		sender.Output(test.MessageOf(byte('a' + i)))
	}
	assert.Len(t, network.Drain(), conf.WindowSize)
	stats := sender.Stats()
	assert.Equal(t, 2, stats.WindowFullEvents)
	assert.Equal(t, 1, stats.MessagesQueued)
	assert.Equal(t, 1, stats.MessagesDropped)
}

func TestSenderDrainsQueueInFIFOOrder(t *testing.T) {
	conf := protocol.Config{
		WindowSize:   2,
		SeqSpace:     4,
		RTT:          16.0,
		MaxSack:      2,
		MaxQueueSize: 10,
	}
	sender, network, _ := newTestSender(t, conf)

	for _, c := range []byte{'a', 'b', 'c', 'd', 'e'} {
		sender.Output(test.MessageOf(c))
	}
	pkts := network.Drain()
	require.Len(t, pkts, 2)

	// each ACK frees one slot, transmitting the queued messages in
	// submission order, wrapping the sequence space
	wantSeqnums := []int{2, 3, 0}
	for i, c := range []byte{'c', 'd', 'e'} {
		sender.Input(test.Ack(1, i%4, nil, 2))
		pkts = network.Drain()
		require.Len(t, pkts, 1, "message %c", c)
		assert.Equal(t, wantSeqnums[i], pkts[0].Seqnum)
		assert.Equal(t, test.MessageOf(c).Data, pkts[0].Payload)
	}
}
