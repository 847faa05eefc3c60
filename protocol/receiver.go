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
	// Receiver is the "B side" of the protocol: it buffers out-of-order
	// packets, delivers in-order runs to the application and constructs
	// ACK/SACK responses. The application never observes payloads out of
	// sequence-number order and never observes the same payload twice.
	Receiver interface {
		// Input handles an inbound data packet.
		Input(pkt Packet)

		// Stats returns a snapshot of the receiver's counters.
		Stats() ReceiverStats
	}

	// ReceiverConfig contains the configs for the concrete
	// implementation of Receiver.
	ReceiverConfig struct {
		Config       Config `yaml:"protocol"`
		MetricLabels struct {
			RunName string `yaml:"runName"`
		} `yaml:"metricLabels"`
	}

	// ReceiverStats mirrors the statistics the host reports at the end
	// of a run.
	ReceiverStats struct {
		PacketsReceived          int // first-time receptions within the window
		RetransmissionsReceived  int // in-window receptions of already buffered packets
		DuplicatesAcked          int // old duplicates acknowledged without rebuffering
		PayloadsDelivered        int
		CorruptedPacketsReceived int
		FarFutureDropped         int
	}

	receiver struct {
		conf    *ReceiverConfig
		l       logrus.FieldLogger
		network Network
		app     Application

		// ring of WindowSize slots holding out-of-order packets at their
		// offset relative to rcvBase. rcvBase is the smallest sequence
		// number not yet delivered to the application.
		buffer   []Packet
		received []bool
		rcvBase  int

		// nextSeqnum alternates 0/1 for the receiver's own outgoing
		// packets, purely for their integrity checking.
		nextSeqnum int

		stats ReceiverStats

		packetsReceived          prometheus.Counter
		retransmissionsReceived  prometheus.Counter
		duplicatesAcked          prometheus.Counter
		payloadsDelivered        prometheus.Counter
		corruptedPacketsReceived prometheus.Counter
		farFutureDropped         prometheus.Counter
	}
)

const (
	promSubsystemReceiver = "receiver"
)

var (
	metricLabelsReceiver = []string{observability.RunName}
	packetsReceived      = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemReceiver,
		Name:      "packets_received",
		Help:      "Total number of in-window data packets received for the first time.",
	}, metricLabelsReceiver)
	retransmissionsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemReceiver,
		Name:      "retransmissions_received",
		Help:      "Total number of in-window data packets that were already buffered.",
	}, metricLabelsReceiver)
	duplicatesAcked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemReceiver,
		Name:      "duplicates_acked",
		Help:      "Total number of old duplicate packets acknowledged without rebuffering.",
	}, metricLabelsReceiver)
	payloadsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemReceiver,
		Name:      "payloads_delivered",
		Help:      "Total number of payloads delivered to the application.",
	}, metricLabelsReceiver)
	corruptedPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemReceiver,
		Name:      "corrupted_packets_received",
		Help:      "Total number of data packets discarded due to checksum mismatch.",
	}, metricLabelsReceiver)
	farFutureDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemReceiver,
		Name:      "far_future_dropped",
		Help:      "Total number of packets dropped for being anomalously far ahead of the window.",
	}, metricLabelsReceiver)
)

// NewReceiver creates a Receiver from config. The network and
// application boundaries are provided by the simulation host.
func NewReceiver(conf ReceiverConfig, network Network, app Application) (Receiver, error) {
	if err := conf.Config.Validate(); err != nil {
		return nil, fmt.Errorf("error validating protocol config: %w", err)
	}
	if network == nil {
		return nil, errors.New("network is nil")
	}
	if app == nil {
		return nil, errors.New("application is nil")
	}
	runName := conf.MetricLabels.RunName
	if runName == "" {
		runName = "default"
	}
	metricLabels := prometheus.Labels{
		observability.RunName: runName,
	}
	return &receiver{
		conf:    &conf,
		l:       logrus.WithField("entity", "receiver").WithField("run_name", runName),
		network: network,
		app:     app,

		buffer:     make([]Packet, conf.Config.WindowSize),
		received:   make([]bool, conf.Config.WindowSize),
		rcvBase:    0,
		nextSeqnum: 1,

		packetsReceived:          packetsReceived.With(metricLabels),
		retransmissionsReceived:  retransmissionsReceived.With(metricLabels),
		duplicatesAcked:          duplicatesAcked.With(metricLabels),
		payloadsDelivered:        payloadsDelivered.With(metricLabels),
		corruptedPacketsReceived: corruptedPacketsReceived.With(metricLabels),
		farFutureDropped:         farFutureDropped.With(metricLabels),
	}, nil
}

func (r *receiver) Input(pkt Packet) {
	if IsCorrupted(pkt) {
		// no ACK: the sender must eventually time out and retransmit
		r.stats.CorruptedPacketsReceived++
		r.corruptedPacketsReceived.Inc()
		r.l.Debug("corrupted packet received, discarding")
		return
	}

	windowSize := r.conf.Config.WindowSize
	offset := SeqOffset(pkt.Seqnum, r.rcvBase, r.conf.Config.SeqSpace)
	switch {
	case offset < windowSize:
		r.accept(pkt, offset)
	case offset < 2*windowSize:
		// old duplicate already delivered in a prior window. acknowledge
		// it again so the sender can retire it, but do not rebuffer.
		r.stats.DuplicatesAcked++
		r.duplicatesAcked.Inc()
		r.l.
			WithField("seqnum", pkt.Seqnum).
			Debug("old duplicate packet received, resending ACK")
	default:
		// anomalously far ahead, drop silently
		r.stats.FarFutureDropped++
		r.farFutureDropped.Inc()
		r.l.
			WithField("seqnum", pkt.Seqnum).
			Debug("packet too far ahead of receive window, dropping")
		return
	}

	r.sendAck(pkt.Seqnum)
}

func (r *receiver) Stats() ReceiverStats {
	return r.stats
}

// accept buffers an in-window packet at its window offset, idempotently
// for retransmissions, and delivers the in-order run when the packet is
// the one expected next.
func (r *receiver) accept(pkt Packet, offset int) {
	if r.received[offset] {
		r.stats.RetransmissionsReceived++
		r.retransmissionsReceived.Inc()
		r.l.
			WithField("seqnum", pkt.Seqnum).
			Debug("retransmission of buffered packet received")
	} else {
		r.stats.PacketsReceived++
		r.packetsReceived.Inc()
		r.l.
			WithField("seqnum", pkt.Seqnum).
			Debug("packet received")
	}
	r.buffer[offset] = pkt
	r.received[offset] = true

	// pkt.Seqnum == rcvBase iff offset == 0
	if offset != 0 {
		return
	}

	// deliver the contiguous run starting at the window base
	windowSize := r.conf.Config.WindowSize
	delivered := 0
	for delivered < windowSize && r.received[delivered] {
		r.app.Deliver(r.buffer[delivered].Payload)
		r.stats.PayloadsDelivered++
		r.payloadsDelivered.Inc()
		r.rcvBase = (r.rcvBase + 1) % r.conf.Config.SeqSpace
		delivered++
	}

	// compact the ring: shift the remaining slots down by the number of
	// packets delivered
	copy(r.received, r.received[delivered:])
	copy(r.buffer, r.buffer[delivered:])
	for i := windowSize - delivered; i < windowSize; i++ {
		r.received[i] = false
	}
}

// sendAck builds and transmits an ACK echoing the given sequence number,
// carrying the current SACK state in its payload.
func (r *receiver) sendAck(acknum int) {
	ack := Packet{
		Seqnum:  r.nextSeqnum,
		Acknum:  acknum,
		Payload: EncodeSack(r.sackList(acknum), r.conf.Config.MaxSack),
	}
	ack.Checksum = ComputeChecksum(ack)
	r.nextSeqnum = (r.nextSeqnum + 1) % 2
	r.network.Send(ack)
}

// sackList returns the buffered-but-undelivered sequence numbers,
// excluding the primary acknum, capped at MaxSack entries.
func (r *receiver) sackList(acknum int) []int {
	seqnums := make([]int, 0, r.conf.Config.MaxSack)
	for i := 0; i < r.conf.Config.WindowSize && len(seqnums) < r.conf.Config.MaxSack; i++ {
		if !r.received[i] {
			continue
		}
		seqnum := (r.rcvBase + i) % r.conf.Config.SeqSpace
		if seqnum == acknum {
			continue
		}
		seqnums = append(seqnums, seqnum)
	}
	return seqnums
}
