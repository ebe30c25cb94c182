package textprep

// PadSequence returns seq cut or zero-padded at the end to exactly maxlen
func PadSequence(seq []int32, maxlen int) []int32 {
	out := make([]int32, maxlen)
	copy(out, seq)
	return out
}

// PadSequences applies PadSequence to every sequence
func PadSequences(seqs [][]int32, maxlen int) [][]int32 {
	out := make([][]int32, len(seqs))
	for i, seq := range seqs {
		out[i] = PadSequence(seq, maxlen)
	}
	return out
}
