// Package bloom implements the bloom-filter hash-bucket derivation the
// wide-column storage layer relies on to skip sstables without reading
// them, plus a small bitset-backed Filter collaborator. Only the
// bucket derivation is required to be bit-for-bit stable across
// versions and replicas that exchange serialized filters; the bitset
// representation itself is a private collaborator detail.
package bloom

import "github.com/kettlelakes/wideframe/usecases/countercontext/mix"

// HashBuckets derives k bucket indices for key over a filter with m
// buckets, using two-hash combinatorial generation seeded by a pair of
// 32-bit Murmur2 mixes (mix.Sum32): h1 from seed 0, h2 reseeded with
// h1. This is cited as equivalent in false-positive behavior to k
// independent hashes (Kirsch-Mitzenmacher) and is far cheaper than
// running k full hash passes.
//
// Each bucket[i] = abs((h1 + i*h2) mod m), where the addition and
// multiplication wrap as 32-bit signed values and the modulus keeps
// the sign of the dividend, before the final abs — matching the reference
// implementation's arithmetic exactly, since bucket indices must agree
// bit-for-bit across replicas that exchange serialized filters.
func HashBuckets(key []byte, k uint16, m uint64) []uint64 {
	if m == 0 {
		return make([]uint64, k)
	}

	h1u := mix.Sum32(key, 0)
	h2u := mix.Sum32(key, h1u)
	h1 := int32(h1u)
	h2 := int32(h2u)

	buckets := make([]uint64, k)
	for i := uint16(0); i < k; i++ {
		prod := int32(int64(i) * int64(h2))
		val := h1 + prod
		buckets[i] = javaAbsMod(val, m)
	}
	return buckets
}

// javaAbsMod reproduces `Math.abs(val % m)` on a 32-bit signed value,
// where Java's `%` takes the sign of the dividend.
func javaAbsMod(val int32, m uint64) uint64 {
	r := int64(val) % int64(m)
	if r < 0 {
		r = -r
	}
	return uint64(r)
}
