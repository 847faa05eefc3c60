package protocol

type (
	// Network is the outbound boundary into the host's unreliable
	// channel. Send never blocks and never fails: loss and corruption
	// are expressed by the channel itself, not by errors.
	Network interface {
		Send(pkt Packet)
	}

	// Timer is the single logical retransmission timer slot the host
	// provides to an entity. Durations are simulated time units, not
	// wall-clock time. Starting a timer that is already running is a
	// protocol error: the entities always stop before restarting.
	Timer interface {
		Start(duration float64)
		Stop()
	}

	// Application is the boundary used by the receiver to hand payloads
	// up to the application layer, strictly in sequence-number order.
	Application interface {
		Deliver(payload [PayloadLength]byte)
	}
)
