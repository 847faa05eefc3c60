package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/srlabs/arq-sim/observability"
	"github.com/srlabs/arq-sim/protocol"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

type (
	// Config contains the configs for a simulation run.
	Config struct {
		// RunName identifies the run in logs and metrics. A pet name is
		// generated when empty.
		RunName string `yaml:"runName"`

		// LogLevel sets the global log level, e.g. "debug" to see
		// per-packet traces. Empty keeps the current level.
		LogLevel string `yaml:"logLevel"`

		// Seed makes the run deterministic. Zero seeds from the clock.
		Seed int64 `yaml:"seed"`

		// NumMessages is the number of application messages generated.
		NumMessages int `yaml:"numMessages"`

		// TimeBetweenMessages is the mean inter-arrival time of
		// application messages in simulated time units.
		TimeBetweenMessages float64 `yaml:"timeBetweenMessages"`

		// MaxEvents aborts a run that exceeds this event budget.
		MaxEvents int `yaml:"maxEvents"`

		Network  NetworkConfig   `yaml:"network"`
		Protocol protocol.Config `yaml:"protocol"`

		// Capture optionally records all wire traffic in pcapng format.
		Capture *CaptureConfig `yaml:"capture"`
	}

	// CaptureConfig allows specifying configurations for capturing
	// traffic in the pcapng format.
	CaptureConfig struct {
		Filename string `yaml:"filename"`
	}

	// Stats aggregates the counters of a finished run.
	Stats struct {
		SimulatedTime      float64
		EventsProcessed    int
		MessagesGenerated  int
		PacketsTransmitted int
		PacketsLost        int
		PacketsCorrupted   int

		// DeliveryMismatches counts payloads delivered out of order with
		// respect to the submitted sequence. Meaningful when no messages
		// were dropped at the sender's outbound queue.
		DeliveryMismatches int

		Sender   protocol.SenderStats
		Receiver protocol.ReceiverStats
	}

	// Simulator is the discrete-event host driving the two protocol
	// entities through an unreliable, order-preserving, single-direction
	// network. Execution is single-threaded: one event at a time is
	// delivered to exactly one entity's handler, which runs to
	// completion.
	Simulator struct {
		conf *Config
		l    logrus.FieldLogger
		rng  *rand.Rand

		events          eventQueue
		now             float64
		eventsProcessed int

		sender      protocol.Sender
		receiver    protocol.Receiver
		senderTimer *simTimer
		toReceiver  *unreliableChannel
		toSender    *unreliableChannel
		app         *appSink

		generated int

		startTime     time.Time
		captureFile   *os.File
		captureWriter *pcapgo.NgWriter
	}

	// appSink is the application layer below the receiver. It verifies
	// the in-order, exactly-once delivery contract against the submitted
	// payload sequence.
	appSink struct {
		submitted  [][protocol.PayloadLength]byte
		delivered  int
		mismatches int
		l          logrus.FieldLogger
	}
)

// Run drives a whole simulation from config and returns its stats. It
// returns an error if the run is aborted by ctx or by the event budget.
func Run(ctx context.Context, conf Config) (Stats, error) {
	sim, err := New(conf)
	if err != nil {
		return Stats{}, err
	}
	defer sim.Close()
	return sim.Run(ctx)
}

// New creates a Simulator from config.
func New(conf Config) (*Simulator, error) {
	if err := conf.validateAndDefault(); err != nil {
		return nil, fmt.Errorf("error validating simulation config: %w", err)
	}
	if err := observability.SetLogLevel(conf.LogLevel); err != nil {
		return nil, err
	}

	sim := &Simulator{
		conf:      &conf,
		l:         logrus.WithField("run_name", conf.RunName),
		rng:       rand.New(rand.NewSource(conf.Seed)),
		startTime: time.Now(),
		app: &appSink{
			l: logrus.WithField("run_name", conf.RunName),
		},
	}
	sim.toReceiver = newUnreliableChannel(sim, entityReceiver, &conf.Network)
	sim.toSender = newUnreliableChannel(sim, entitySender, &conf.Network)
	sim.senderTimer = newSimTimer(sim, entitySender)

	var senderConf protocol.SenderConfig
	senderConf.Config = conf.Protocol
	senderConf.MetricLabels.RunName = conf.RunName
	sender, err := protocol.NewSender(senderConf, sim.toReceiver, sim.senderTimer)
	if err != nil {
		return nil, fmt.Errorf("error creating sender: %w", err)
	}
	sim.sender = sender

	var receiverConf protocol.ReceiverConfig
	receiverConf.Config = conf.Protocol
	receiverConf.MetricLabels.RunName = conf.RunName
	receiver, err := protocol.NewReceiver(receiverConf, sim.toSender, sim.app)
	if err != nil {
		return nil, fmt.Errorf("error creating receiver: %w", err)
	}
	sim.receiver = receiver

	if conf.Capture != nil {
		captureFile, err := os.Create(conf.Capture.Filename)
		if err != nil {
			return nil, fmt.Errorf("error creating capture file %s: %w", conf.Capture.Filename, err)
		}
		captureWriter, err := pcapgo.NewNgWriter(captureFile, gplayers.LinkTypeNull)
		if err != nil {
			captureFile.Close()
			return nil, fmt.Errorf("error creating pcapng writer: %w", err)
		}
		sim.captureFile = captureFile
		sim.captureWriter = captureWriter
	}

	return sim, nil
}

// Run processes events until the queue is empty. An empty queue implies
// every accepted message was delivered: a timer event is always pending
// while unacknowledged packets are outstanding.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	s.scheduleNextMessage()

	for s.events.len() > 0 {
		if err := ctx.Err(); err != nil {
			return s.stats(), fmt.Errorf("context done while running simulation: %w", err)
		}
		if s.eventsProcessed == s.conf.MaxEvents {
			return s.stats(), fmt.Errorf("event budget exhausted after %d events", s.eventsProcessed)
		}

		ev := s.events.pop()
		s.now = ev.time
		s.eventsProcessed++

		switch ev.kind {
		case eventMessageArrival:
			s.handleMessageArrival(ev.msg)
		case eventPacketArrival:
			if ev.entity == entitySender {
				s.sender.Input(ev.pkt)
			} else {
				s.receiver.Input(ev.pkt)
			}
		case eventTimerInterrupt:
			// only the sender arms timers in the simplex direction
			if ev.entity == entitySender && s.senderTimer.expired(ev) {
				s.sender.Timeout()
			}
		}
	}

	stats := s.stats()
	s.l.
		WithField("simulated_time", stats.SimulatedTime).
		WithField("events_processed", stats.EventsProcessed).
		WithField("messages_generated", stats.MessagesGenerated).
		WithField("payloads_delivered", stats.Receiver.PayloadsDelivered).
		WithField("packets_resent", stats.Sender.PacketsResent).
		Info("simulation finished")
	return stats, nil
}

// Close releases the capture resources, if any.
func (s *Simulator) Close() error {
	var writer *pcapgo.NgWriter
	writer, s.captureWriter = s.captureWriter, nil
	if writer == nil {
		return nil
	}
	var err error
	if flushErr := writer.Flush(); flushErr != nil {
		err = multierror.Append(err, fmt.Errorf("error flushing pcapng writer: %w", flushErr))
	}
	if closeErr := s.captureFile.Close(); closeErr != nil {
		err = multierror.Append(err, fmt.Errorf("error closing capture file: %w", closeErr))
	}
	return err
}

func (s *Simulator) schedule(ev *event) {
	s.events.push(ev)
}

// scheduleNextMessage schedules the arrival of the next application
// message with a uniformly distributed inter-arrival time.
func (s *Simulator) scheduleNextMessage() {
	if s.generated == s.conf.NumMessages {
		return
	}

	// payloads cycle the alphabet, one letter per message
	var msg protocol.Message
	c := byte('a' + s.generated%26)
	for i := range msg.Data {
		msg.Data[i] = c
	}
	s.generated++

	s.schedule(&event{
		time: s.now + s.rng.Float64()*2*s.conf.TimeBetweenMessages,
		kind: eventMessageArrival,
		msg:  msg,
	})
}

func (s *Simulator) handleMessageArrival(msg protocol.Message) {
	s.app.submitted = append(s.app.submitted, msg.Data)
	s.sender.Output(msg)
	s.scheduleNextMessage()
}

// capture writes the wire image of the packet to the pcapng stream,
// mapping one simulated time unit to one millisecond.
func (s *Simulator) capture(pkt protocol.Packet) {
	if s.captureWriter == nil {
		return
	}
	b := pkt.Marshal()
	err := s.captureWriter.WritePacket(gopacket.CaptureInfo{
		Timestamp:     s.startTime.Add(time.Duration(s.now * float64(time.Millisecond))),
		CaptureLength: len(b),
		Length:        len(b),
	}, b)
	if err != nil {
		s.l.
			WithError(err).
			Error("error capturing packet")
	}
}

func (s *Simulator) stats() Stats {
	return Stats{
		SimulatedTime:      s.now,
		EventsProcessed:    s.eventsProcessed,
		MessagesGenerated:  s.generated,
		PacketsTransmitted: s.toReceiver.transmitted + s.toSender.transmitted,
		PacketsLost:        s.toReceiver.lost + s.toSender.lost,
		PacketsCorrupted:   s.toReceiver.corrupted + s.toSender.corrupted,
		DeliveryMismatches: s.app.mismatches,
		Sender:             s.sender.Stats(),
		Receiver:           s.receiver.Stats(),
	}
}

func (c *Config) validateAndDefault() error {
	var err error
	if c.RunName == "" {
		c.RunName = petname.Generate(2, "-")
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.NumMessages < 1 {
		err = multierror.Append(err, fmt.Errorf("numMessages must be at least 1, got %d", c.NumMessages))
	}
	if c.TimeBetweenMessages == 0 {
		c.TimeBetweenMessages = 50
	} else if c.TimeBetweenMessages < 0 {
		err = multierror.Append(err, fmt.Errorf("timeBetweenMessages cannot be negative, got %v", c.TimeBetweenMessages))
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = 1000000
	} else if c.MaxEvents < 0 {
		err = multierror.Append(err, fmt.Errorf("maxEvents cannot be negative, got %d", c.MaxEvents))
	}
	if c.Network.LossProbability < 0 || c.Network.LossProbability >= 1 {
		err = multierror.Append(err, fmt.Errorf("lossProbability must be in [0, 1), got %v", c.Network.LossProbability))
	}
	if c.Network.CorruptionProbability < 0 || c.Network.CorruptionProbability >= 1 {
		err = multierror.Append(err, fmt.Errorf("corruptionProbability must be in [0, 1), got %v", c.Network.CorruptionProbability))
	}
	if c.Network.AverageDelay == 0 {
		c.Network.AverageDelay = 5
	} else if c.Network.AverageDelay < 1 {
		err = multierror.Append(err, fmt.Errorf("averageDelay must be at least 1, got %v", c.Network.AverageDelay))
	}
	if (c.Protocol == protocol.Config{}) {
		c.Protocol = protocol.DefaultConfig()
	}
	if confErr := c.Protocol.Validate(); confErr != nil {
		err = multierror.Append(err, confErr)
	}
	return err
}

// Deliver implements protocol.Application.
func (a *appSink) Deliver(payload [protocol.PayloadLength]byte) {
	if a.delivered < len(a.submitted) && payload == a.submitted[a.delivered] {
		a.delivered++
		return
	}
	a.mismatches++
	a.l.
		WithField("delivered_index", a.delivered).
		Error("payload delivered out of order")
	a.delivered++
}
