package protocol

// SeqOffset returns the forward distance from base to seq in the modular
// sequence space, always in [0, seqSpace).
func SeqOffset(seq, base, seqSpace int) int {
	return ((seq-base)%seqSpace + seqSpace) % seqSpace
}

// InWindow reports whether seq lies within [base, base+size) modulo
// seqSpace.
func InWindow(seq, base, size, seqSpace int) bool {
	return SeqOffset(seq, base, seqSpace) < size
}
