package protocol

// ComputeChecksum sums the sequence fields and the payload bytes of the
// packet. Any single-field mutation of seqnum, acknum or payload changes
// the result. Compensating changes across fields are not detected; this
// weakness is inherent to the additive checksum and matches the
// corruption model of the network.
func ComputeChecksum(p Packet) int {
	checksum := p.Seqnum + p.Acknum
	for _, b := range p.Payload {
		checksum += int(b)
	}
	return checksum
}

// IsCorrupted reports whether the packet's stored checksum disagrees
// with the checksum of its current contents.
func IsCorrupted(p Packet) bool {
	return p.Checksum != ComputeChecksum(p)
}
