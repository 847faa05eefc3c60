package simulation

import (
	"github.com/srlabs/arq-sim/observability"
	"github.com/srlabs/arq-sim/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type (
	// NetworkConfig contains the unreliability parameters of the
	// simulated network.
	NetworkConfig struct {
		// LossProbability is the probability in [0, 1) that a packet is
		// dropped by the network.
		LossProbability float64 `yaml:"lossProbability"`

		// CorruptionProbability is the probability in [0, 1) that a
		// packet has one of its fields mutated in transit.
		CorruptionProbability float64 `yaml:"corruptionProbability"`

		// AverageDelay is the mean one-way delay in simulated time
		// units. The minimum delay is one time unit, so AverageDelay
		// must be at least 1.
		AverageDelay float64 `yaml:"averageDelay"`
	}

	// unreliableChannel is one direction of the simulated network. It
	// may drop, corrupt or delay packets but never reorders them: the
	// next arrival is never scheduled before the previously scheduled
	// one in the same direction.
	unreliableChannel struct {
		sim         *Simulator
		to          entity
		conf        *NetworkConfig
		l           logrus.FieldLogger
		lastArrival float64

		transmitted int
		lost        int
		corrupted   int

		transmittedPackets prometheus.Counter
		lostPackets        prometheus.Counter
		corruptedPackets   prometheus.Counter
	}
)

const (
	promNamespaceSimulation     = "simulation"
	promSubsystemChannel        = "unreliable_channel"
	labelNameChannelDestination = "destination"
)

var (
	metricLabelsChannel = []string{
		observability.RunName,
		labelNameChannelDestination,
	}
	transmittedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespaceSimulation,
		Subsystem: promSubsystemChannel,
		Name:      "transmitted_packets",
		Help:      "Total number of packets handed to the channel.",
	}, metricLabelsChannel)
	lostPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespaceSimulation,
		Subsystem: promSubsystemChannel,
		Name:      "lost_packets",
		Help:      "Total number of packets dropped by the channel.",
	}, metricLabelsChannel)
	corruptedPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespaceSimulation,
		Subsystem: promSubsystemChannel,
		Name:      "corrupted_packets",
		Help:      "Total number of packets mutated in transit by the channel.",
	}, metricLabelsChannel)
)

func newUnreliableChannel(sim *Simulator, to entity, conf *NetworkConfig) *unreliableChannel {
	metricLabels := prometheus.Labels{
		observability.RunName:       sim.conf.RunName,
		labelNameChannelDestination: to.String(),
	}
	return &unreliableChannel{
		sim:  sim,
		to:   to,
		conf: conf,
		l: logrus.
			WithField("run_name", sim.conf.RunName).
			WithField("destination", to.String()),

		transmittedPackets: transmittedPackets.With(metricLabels),
		lostPackets:        lostPackets.With(metricLabels),
		corruptedPackets:   corruptedPackets.With(metricLabels),
	}
}

// Send implements protocol.Network.
func (c *unreliableChannel) Send(pkt protocol.Packet) {
	c.transmitted++
	c.transmittedPackets.Inc()
	c.sim.capture(pkt)

	if c.sim.rng.Float64() < c.conf.LossProbability {
		c.lost++
		c.lostPackets.Inc()
		c.l.
			WithField("seqnum", pkt.Seqnum).
			Debug("packet lost in transit")
		return
	}
	if c.sim.rng.Float64() < c.conf.CorruptionProbability {
		c.corrupt(&pkt)
	}

	// order-preserving delivery: never schedule an arrival before the
	// previously scheduled one
	arrival := c.lastArrival
	if arrival < c.sim.now {
		arrival = c.sim.now
	}
	arrival += 1 + c.sim.rng.Float64()*2*(c.conf.AverageDelay-1)
	c.lastArrival = arrival

	c.sim.schedule(&event{
		time:   arrival,
		kind:   eventPacketArrival,
		entity: c.to,
		pkt:    pkt,
	})
}

// corrupt mutates one field of the packet without touching the stored
// checksum: the payload three times out of four, otherwise one of the
// sequence fields.
func (c *unreliableChannel) corrupt(pkt *protocol.Packet) {
	c.corrupted++
	c.corruptedPackets.Inc()
	switch r := c.sim.rng.Float64(); {
	case r < 0.75:
		pkt.Payload[0] = 'Z'
	case r < 0.875:
		pkt.Seqnum = 999999
	default:
		pkt.Acknum = 999999
	}
	c.l.
		WithField("seqnum", pkt.Seqnum).
		Debug("packet corrupted in transit")
}
