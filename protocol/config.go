package protocol

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Config contains the protocol constants shared by both entities. The
// constants are fixed for the lifetime of a run, never negotiated.
type Config struct {
	// WindowSize is the maximum number of unacknowledged in-flight
	// packets at the sender and the width of the receiver's acceptance
	// window.
	WindowSize int `yaml:"windowSize"`

	// SeqSpace is the size of the modular sequence number space. It must
	// be at least twice WindowSize, the minimum guaranteeing no ambiguity
	// between new and old wrapped sequence numbers.
	SeqSpace int `yaml:"seqSpace"`

	// RTT is the retransmission timer duration in simulated time units.
	RTT float64 `yaml:"rtt"`

	// MaxSack is the maximum number of SACK entries carried by one ACK.
	MaxSack int `yaml:"maxSack"`

	// MaxQueueSize is the capacity of the sender's outbound message
	// queue for messages arriving while the window is full.
	MaxQueueSize int `yaml:"maxQueueSize"`
}

// DefaultConfig returns the constants of the reference configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:   6,
		SeqSpace:     12,
		RTT:          16.0,
		MaxSack:      6,
		MaxQueueSize: 50,
	}
}

// Validate checks the protocol invariants on the constants. A sequence
// space smaller than twice the window size makes sequence-number
// disambiguation unsound and must not be allowed to run.
func (c Config) Validate() error {
	var err error
	if c.WindowSize < 1 {
		err = multierror.Append(err, fmt.Errorf("windowSize must be at least 1, got %d", c.WindowSize))
	}
	if c.SeqSpace < 2*c.WindowSize {
		err = multierror.Append(err, fmt.Errorf("seqSpace (%d) must be at least twice windowSize (%d)", c.SeqSpace, c.WindowSize))
	}
	if c.SeqSpace > maxEncodableSeqSpace {
		err = multierror.Append(err, fmt.Errorf("seqSpace (%d) must be at most %d, the SACK encoding carries two decimal digits per sequence number", c.SeqSpace, maxEncodableSeqSpace))
	}
	if c.RTT <= 0 {
		err = multierror.Append(err, fmt.Errorf("rtt must be positive, got %v", c.RTT))
	}
	if c.MaxSack < 0 || c.MaxSack > maxEncodableSack {
		err = multierror.Append(err, fmt.Errorf("maxSack must be in [0, %d], the SACK encoding carries the count as a single decimal digit, got %d", maxEncodableSack, c.MaxSack))
	}
	if c.MaxQueueSize < 0 {
		err = multierror.Append(err, errors.New("maxQueueSize cannot be negative"))
	}
	return err
}
