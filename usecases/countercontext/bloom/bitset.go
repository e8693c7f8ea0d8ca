package bloom

// bitset is a fixed-size bit vector backing a Filter. It is adapted
// from the wide-column store's hash-tree reconciliation bitset: word
// size, set/test/clear operations, and a running set-bit count kept up
// to date on every mutation rather than recomputed on demand.
type bitset struct {
	size     uint64
	words    []uint64
	setCount uint64
}

func newBitset(size uint64) *bitset {
	return &bitset{
		size:  size,
		words: make([]uint64, (size+63)/64),
	}
}

func (b *bitset) Size() uint64 { return b.size }

func (b *bitset) Set(i uint64) {
	if b.IsSet(i) {
		return
	}
	b.words[i/64] |= 1 << (i % 64)
	b.setCount++
}

func (b *bitset) IsSet(i uint64) bool {
	if i >= b.size {
		panic("bloom: bit index out of range")
	}
	return b.words[i/64]&(1<<(i%64)) != 0
}

func (b *bitset) SetCount() uint64 { return b.setCount }

func (b *bitset) Clear() {
	for i := range b.words {
		b.words[i] = 0
	}
	b.setCount = 0
}
