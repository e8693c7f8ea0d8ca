package countercontext

// Tuple is one node's slot within a counter context: its id, the
// logical clock of operations it has performed, and its signed
// contribution to the aggregated total.
type Tuple struct {
	ID    []byte
	Clock uint64
	Count int64
}

// tupleCount returns the number of tuples packed into ctx, given an id
// length of idLength bytes.
func tupleCount(ctx []byte, idLength int) int {
	return len(ctx) / StepLength(idLength)
}

// readTuple unpacks the tuple at the given step index.
func readTuple(ctx []byte, idLength, stepIndex int) Tuple {
	step := StepLength(idLength)
	off := stepIndex * step
	id := make([]byte, idLength)
	copy(id, ctx[off:off+idLength])
	clock := decodeU64BE(ctx, off+idLength)
	count := int64(decodeU64BE(ctx, off+idLength+clockLength))
	return Tuple{ID: id, Clock: clock, Count: count}
}

// writeTupleAt packs (id, clock, count) into ctx at the given step
// index. ctx must already be sized to hold at least stepIndex+1 tuples.
func writeTupleAt(ctx []byte, idLength, stepIndex int, id []byte, clock uint64, count int64) {
	step := StepLength(idLength)
	off := stepIndex * step
	copy(ctx[off:off+idLength], id)
	encodeU64BE(ctx, off+idLength, clock)
	encodeU64BE(ctx, off+idLength+clockLength, uint64(count))
}
