package protocol

import (
	"errors"
	"fmt"

	"github.com/srlabs/arq-sim/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type (
	// Sender is the "A side" of the protocol: it owns the in-flight
	// packet buffer, assigns sequence numbers, tracks acknowledgment
	// state, manages the retransmission timer and drains the outbound
	// queue when acknowledgments free window slots.
	//
	// The host delivers one event at a time and each handler runs to
	// completion, so the sender performs no locking of its own.
	Sender interface {
		// Output handles a new outbound application message. When the
		// window is full the message is queued, or dropped and counted
		// if the queue is also full.
		Output(msg Message)

		// Input handles an inbound packet, always an ACK since the
		// reverse channel carries no data.
		Input(pkt Packet)

		// Timeout handles the expiry of the retransmission timer.
		Timeout()

		// Stats returns a snapshot of the sender's counters.
		Stats() SenderStats
	}

	// SenderConfig contains the configs for the concrete implementation
	// of Sender.
	SenderConfig struct {
		Config       Config `yaml:"protocol"`
		MetricLabels struct {
			RunName string `yaml:"runName"`
		} `yaml:"metricLabels"`
	}

	// SenderStats mirrors the statistics the host reports at the end of
	// a run.
	SenderStats struct {
		MessagesAccepted  int
		WindowFullEvents  int
		MessagesQueued    int
		MessagesDropped   int
		TotalAcksReceived int
		NewAcks           int
		DuplicateAcks     int
		CorruptedAcks     int
		PacketsResent     int
	}

	sender struct {
		conf    *SenderConfig
		l       logrus.FieldLogger
		network Network
		timer   Timer

		// ring of WindowSize slots. the outstanding packets occupy the
		// slots [windowFirst, windowFirst+windowCount) modulo WindowSize,
		// a contiguous modular range of sequence numbers starting at the
		// oldest unacknowledged packet.
		buffer      []Packet
		acked       []bool
		windowFirst int
		windowLast  int
		windowCount int
		nextSeqnum  int

		// timedSeqnum tags the sequence number the single logical timer
		// slot currently tracks, NotInUse when the timer is stopped.
		timedSeqnum int

		queue *messageQueue

		stats SenderStats

		sentPackets       prometheus.Counter
		resentPackets     prometheus.Counter
		queuedMessages    prometheus.Counter
		droppedMessages   prometheus.Counter
		totalAcksReceived prometheus.Counter
		newAcks           prometheus.Counter
		duplicateAcks     prometheus.Counter
		corruptedAcks     prometheus.Counter
	}
)

const (
	promSubsystemSender = "sender"
)

var (
	metricLabelsSender = []string{observability.RunName}
	sentPackets        = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "sent_packets",
		Help:      "Total number of data packets transmitted, including retransmissions.",
	}, metricLabelsSender)
	resentPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "resent_packets",
		Help:      "Total number of data packets retransmitted after a timeout.",
	}, metricLabelsSender)
	queuedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "queued_messages",
		Help:      "Total number of messages queued while the window was full.",
	}, metricLabelsSender)
	droppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "dropped_messages",
		Help:      "Total number of messages dropped because window and queue were both full.",
	}, metricLabelsSender)
	totalAcksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "total_acks_received",
		Help:      "Total number of uncorrupted ACK packets received.",
	}, metricLabelsSender)
	newAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "new_acks",
		Help:      "Total number of packets newly acknowledged, by primary acknum or SACK.",
	}, metricLabelsSender)
	duplicateAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "duplicate_acks",
		Help:      "Total number of duplicate or out-of-window ACKs.",
	}, metricLabelsSender)
	corruptedAcks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemSender,
		Name:      "corrupted_acks",
		Help:      "Total number of ACK packets discarded due to checksum mismatch.",
	}, metricLabelsSender)
)

// NewSender creates a Sender from config. The network and timer
// boundaries are provided by the simulation host.
func NewSender(conf SenderConfig, network Network, timer Timer) (Sender, error) {
	if err := conf.Config.Validate(); err != nil {
		return nil, fmt.Errorf("error validating protocol config: %w", err)
	}
	if network == nil {
		return nil, errors.New("network is nil")
	}
	if timer == nil {
		return nil, errors.New("timer is nil")
	}
	runName := conf.MetricLabels.RunName
	if runName == "" {
		runName = "default"
	}
	metricLabels := prometheus.Labels{
		observability.RunName: runName,
	}
	return &sender{
		conf:    &conf,
		l:       logrus.WithField("entity", "sender").WithField("run_name", runName),
		network: network,
		timer:   timer,

		buffer:      make([]Packet, conf.Config.WindowSize),
		acked:       make([]bool, conf.Config.WindowSize),
		windowFirst: 0,
		windowLast:  -1,
		nextSeqnum:  0,
		timedSeqnum: NotInUse,
		queue:       newMessageQueue(conf.Config.MaxQueueSize),

		sentPackets:       sentPackets.With(metricLabels),
		resentPackets:     resentPackets.With(metricLabels),
		queuedMessages:    queuedMessages.With(metricLabels),
		droppedMessages:   droppedMessages.With(metricLabels),
		totalAcksReceived: totalAcksReceived.With(metricLabels),
		newAcks:           newAcks.With(metricLabels),
		duplicateAcks:     duplicateAcks.With(metricLabels),
		corruptedAcks:     corruptedAcks.With(metricLabels),
	}, nil
}

func (s *sender) Output(msg Message) {
	if s.windowCount == s.conf.Config.WindowSize {
		s.stats.WindowFullEvents++
		if s.queue.enqueue(msg) {
			s.stats.MessagesQueued++
			s.queuedMessages.Inc()
			s.l.
				WithField("queue_len", s.queue.len()).
				Debug("send window is full, message queued")
		} else {
			s.stats.MessagesDropped++
			s.droppedMessages.Inc()
			s.l.
				WithField("queue_len", s.queue.len()).
				Warn("send window and outbound queue are full, message dropped")
		}
		return
	}
	s.transmit(msg)
}

func (s *sender) Input(pkt Packet) {
	if IsCorrupted(pkt) {
		s.stats.CorruptedAcks++
		s.corruptedAcks.Inc()
		s.l.Debug("corrupted ACK received, discarding")
		return
	}
	s.stats.TotalAcksReceived++
	s.totalAcksReceived.Inc()

	updated := false
	if s.markAcked(pkt.Acknum) {
		s.l.
			WithField("acknum", pkt.Acknum).
			Debug("new ACK received")
		updated = true
	} else {
		s.stats.DuplicateAcks++
		s.duplicateAcks.Inc()
		s.l.
			WithField("acknum", pkt.Acknum).
			Debug("duplicate or out-of-window ACK received")
	}
	for _, seqnum := range DecodeSack(pkt.Payload, s.conf.Config.MaxSack) {
		if s.markAcked(seqnum) {
			s.l.
				WithField("seqnum", seqnum).
				Debug("SACK received for unacknowledged packet")
			updated = true
		}
	}
	if !updated {
		return
	}

	// slide the window past the acknowledged prefix
	for s.windowCount > 0 && s.acked[s.windowFirst] {
		s.windowFirst = (s.windowFirst + 1) % s.conf.Config.WindowSize
		s.windowCount--
	}

	// rearm the timer for the oldest unacknowledged packet, if any
	if s.timedSeqnum == NotInUse {
		if idx, ok := s.oldestUnacked(); ok {
			s.timer.Start(s.conf.Config.RTT)
			s.timedSeqnum = s.buffer[idx].Seqnum
		}
	}

	// drain the outbound queue into the freed window slots
	for s.windowCount < s.conf.Config.WindowSize {
		msg, ok := s.queue.dequeue()
		if !ok {
			break
		}
		s.transmit(msg)
	}
}

func (s *sender) Timeout() {
	// the host timer has expired, the timer slot is free again
	s.timedSeqnum = NotInUse

	idx, ok := s.oldestUnacked()
	if !ok {
		return
	}
	pkt := s.buffer[idx]
	s.l.
		WithField("seqnum", pkt.Seqnum).
		Debug("timeout, resending oldest unacknowledged packet")
	s.network.Send(pkt)
	s.stats.PacketsResent++
	s.resentPackets.Inc()
	s.sentPackets.Inc()

	s.timer.Start(s.conf.Config.RTT)
	s.timedSeqnum = pkt.Seqnum
}

func (s *sender) Stats() SenderStats {
	return s.stats
}

// transmit builds, buffers and sends a packet for the message. The
// caller guarantees a free window slot.
func (s *sender) transmit(msg Message) {
	pkt := Packet{
		Seqnum:  s.nextSeqnum,
		Acknum:  NotInUse,
		Payload: msg.Data,
	}
	pkt.Checksum = ComputeChecksum(pkt)

	s.windowLast = (s.windowLast + 1) % s.conf.Config.WindowSize
	s.buffer[s.windowLast] = pkt
	s.acked[s.windowLast] = false
	s.windowCount++
	s.nextSeqnum = (s.nextSeqnum + 1) % s.conf.Config.SeqSpace

	s.l.
		WithField("seqnum", pkt.Seqnum).
		Debug("sending packet")
	s.network.Send(pkt)
	s.stats.MessagesAccepted++
	s.sentPackets.Inc()

	if s.timedSeqnum == NotInUse {
		s.timer.Start(s.conf.Config.RTT)
		s.timedSeqnum = pkt.Seqnum
	}
}

// markAcked marks the outstanding packet with the given sequence number
// as acknowledged, cancelling the timer if it was tracking that packet.
// Returns false for already-acknowledged packets and sequence numbers
// outside the current window.
func (s *sender) markAcked(seqnum int) bool {
	for i := 0; i < s.windowCount; i++ {
		idx := (s.windowFirst + i) % s.conf.Config.WindowSize
		if s.buffer[idx].Seqnum != seqnum {
			continue
		}
		if s.acked[idx] {
			return false
		}
		s.acked[idx] = true
		s.stats.NewAcks++
		s.newAcks.Inc()
		if s.timedSeqnum == seqnum {
			s.timer.Stop()
			s.timedSeqnum = NotInUse
		}
		return true
	}
	return false
}

// oldestUnacked returns the ring index of the oldest unacknowledged
// outstanding packet. The oldest packet is always preferred for timer
// assignment, bounding worst-case delivery latency.
func (s *sender) oldestUnacked() (int, bool) {
	for i := 0; i < s.windowCount; i++ {
		idx := (s.windowFirst + i) % s.conf.Config.WindowSize
		if !s.acked[idx] {
			return idx, true
		}
	}
	return 0, false
}
