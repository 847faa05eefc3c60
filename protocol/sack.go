package protocol

// EncodeSack encodes a list of selectively acknowledged sequence numbers
// into the fixed-size payload of an ACK packet. Byte 0 is the ASCII digit
// of the entry count, followed by two ASCII digits (tens/ones) per entry;
// the remaining bytes are filled with '0'. Entries beyond maxSack are
// dropped. Sequence numbers must be in [0, 99], which Config.Validate()
// guarantees for any valid sequence space.
func EncodeSack(seqnums []int, maxSack int) [PayloadLength]byte {
	if len(seqnums) > maxSack {
		seqnums = seqnums[:maxSack]
	}
	var payload [PayloadLength]byte
	for i := range payload {
		payload[i] = '0'
	}
	payload[0] = byte('0' + len(seqnums))
	for i, seqnum := range seqnums {
		payload[1+i*2] = byte('0' + seqnum/10)
		payload[2+i*2] = byte('0' + seqnum%10)
	}
	return payload
}

// DecodeSack is the inverse of EncodeSack(). It fails safe: a count byte
// outside [0, maxSack] or a non-numeric digit byte yields nil, degrading
// to cumulative-ACK-only behavior instead of propagating an error.
// Corruption of the SACK region must never crash an entity.
func DecodeSack(payload [PayloadLength]byte, maxSack int) []int {
	count := int(payload[0]) - '0'
	if count < 0 || count > maxSack {
		return nil
	}
	seqnums := make([]int, 0, count)
	for i := 0; i < count; i++ {
		tens, ones := payload[1+i*2], payload[2+i*2]
		if tens < '0' || tens > '9' || ones < '0' || ones > '9' {
			return nil
		}
		seqnums = append(seqnums, int(tens-'0')*10+int(ones-'0'))
	}
	if len(seqnums) == 0 {
		return nil
	}
	return seqnums
}
