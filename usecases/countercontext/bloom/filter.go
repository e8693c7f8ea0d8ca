package bloom

import (
	"math"

	"github.com/kettlelakes/wideframe/entities/counter"
)

// excessBits pads every sized filter by a small constant, matching the
// reference implementation's EXCESS constant, to absorb rounding in
// the buckets-per-element calculation without under-provisioning.
const excessBits = 20

// maxBucketsPerElement caps how many buckets per element a filter may
// request, independent of the false-positive target, so that a
// pathological input cannot request an unbounded bitset.
const maxBucketsPerElement = 32

// Descriptor is the (k, m) pair that fully determines a bloom filter's
// bucket derivation for a given key, independent of its bitset
// representation.
type Descriptor struct {
	K uint16
	M uint64
}

// Filter is a bitset-backed bloom filter. Only the (k, m) pair and the
// bucket derivation in HashBuckets are part of the wire/interop
// contract; the bitset itself is local storage.
type Filter struct {
	desc    Descriptor
	bits    *bitset
	metrics *Metrics
}

// ForElements sizes a filter for numElements items at the given number
// of buckets per element, capped at maxBucketsPerElement.
func ForElements(numElements uint64, bucketsPerElement int) (*Filter, error) {
	if numElements == 0 {
		numElements = 1
	}
	if bucketsPerElement < 1 {
		bucketsPerElement = 1
	}
	if bucketsPerElement > maxBucketsPerElement {
		bucketsPerElement = maxBucketsPerElement
	}

	numBits := numElements*uint64(bucketsPerElement) + excessBits
	if numBits/uint64(bucketsPerElement) < numElements {
		// overflowed computing numBits
		return nil, counter.NewUnsupportedBloomSizeError(numElements)
	}

	k := optimalK(bucketsPerElement)
	return &Filter{
		desc: Descriptor{K: k, M: numBits},
		bits: newBitset(numBits),
	}, nil
}

// ForFalsePositiveRate sizes the smallest filter that can provide the
// given false-positive probability for numElements items. It returns
// counter.ErrUnsupportedBloomSize if that probability needs more than
// maxBucketsPerElement buckets per element.
func ForFalsePositiveRate(numElements uint64, maxFalsePositiveProbability float64) (*Filter, error) {
	if maxFalsePositiveProbability <= 0 || maxFalsePositiveProbability > 1.0 {
		return nil, counter.NewUnsupportedBloomSizeError(numElements)
	}
	if numElements == 0 {
		numElements = 1
	}

	bitsPerElement := -math.Log(maxFalsePositiveProbability) / (math.Ln2 * math.Ln2)
	bucketsPerElement := int(math.Ceil(bitsPerElement))
	if bucketsPerElement > maxBucketsPerElement {
		return nil, counter.NewUnsupportedBloomSizeError(numElements)
	}
	return ForElements(numElements, bucketsPerElement)
}

// optimalK returns round(bucketsPerElement * ln2), the hash count that
// minimizes the false-positive rate for the given buckets-per-element
// ratio, floored at 1.
func optimalK(bucketsPerElement int) uint16 {
	k := int(math.Round(float64(bucketsPerElement) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return uint16(k)
}

// AlwaysMatching returns a filter that reports every key as present,
// for tests that need to disable skip-scan without special-casing the
// caller.
func AlwaysMatching() *Filter {
	f := &Filter{desc: Descriptor{K: 1, M: 64}, bits: newBitset(64)}
	for i := uint64(0); i < 64; i++ {
		f.bits.Set(i)
	}
	return f
}

// WithMetrics attaches Prometheus observers to the filter's Test calls.
func (f *Filter) WithMetrics(m *Metrics) *Filter {
	f.metrics = m
	return f
}

// Descriptor returns the filter's (k, m) pair.
func (f *Filter) Descriptor() Descriptor { return f.desc }

// Add sets every bucket key hashes to.
func (f *Filter) Add(key []byte) {
	for _, b := range HashBuckets(key, f.desc.K, f.desc.M) {
		f.bits.Set(b)
	}
}

// Test reports whether key may be present: true means "maybe", false
// means "definitely not".
func (f *Filter) Test(key []byte) bool {
	for _, b := range HashBuckets(key, f.desc.K, f.desc.M) {
		if !f.bits.IsSet(b) {
			f.observe(false)
			return false
		}
	}
	f.observe(true)
	return true
}

func (f *Filter) observe(present bool) {
	if f.metrics == nil {
		return
	}
	if present {
		f.metrics.observePositive()
	} else {
		f.metrics.observeNegative()
	}
}

// EmptyBuckets counts buckets that are still unset, a diagnostic
// carried from the reference implementation's own emptyBuckets helper.
func (f *Filter) EmptyBuckets() uint64 {
	return f.desc.M - f.bits.SetCount()
}
