package protocol

const (
	// NotInUse fills packet header fields that carry no meaningful value,
	// e.g. the acknum of a data packet.
	NotInUse = -1

	// PayloadLength is the fixed size of a packet payload and of an
	// application message.
	PayloadLength = 20

	// WireLength is the size of the fixed wire image of a packet:
	// three 32-bit header fields followed by the payload.
	WireLength = 12 + PayloadLength

	// maxEncodableSack is the hard limit on SACK entries imposed by the
	// encoding: the count is a single ASCII digit.
	maxEncodableSack = 9

	// maxEncodableSeqSpace is the hard limit on the sequence space imposed
	// by the SACK encoding: two ASCII digits per sequence number.
	maxEncodableSeqSpace = 100

	promNamespace = "protocol"
)
