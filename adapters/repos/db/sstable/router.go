package sstable

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
)

// virtualsPerSegment mirrors the teacher's sharding.State practice of
// assigning many virtual tokens per physical member to smooth the
// hash ring's load distribution.
const virtualsPerSegment = 32

type virtual struct {
	token   uint64
	segment string
}

// Router assigns counter-context keys to segments by consistent
// hashing, the same ring-lookup shape as the teacher's
// sharding.State.PhysicalShard, built on the teacher's own
// spaolacci/murmur3 dependency. This is a different Murmur generation
// from the bit-exact Murmur2 mixing hash the bloom filter requires
// (see usecases/countercontext/mix), and deliberately so: shard
// assignment has no cross-replica bit-exactness requirement, so it
// uses the library the teacher already reaches for instead of the
// hand-rolled one.
type Router struct {
	virtuals []virtual
	logger   logrus.FieldLogger
}

// NewRouter builds a Router over segmentNames, seeded deterministically
// so the same segment set always produces the same ring.
func NewRouter(segmentNames []string, logger logrus.FieldLogger) *Router {
	r := &Router{logger: logger}
	for _, name := range segmentNames {
		for i := 0; i < virtualsPerSegment; i++ {
			h := murmur3.New64()
			fmt.Fprintf(h, "%s#%d", name, i)
			r.virtuals = append(r.virtuals, virtual{token: h.Sum64(), segment: name})
		}
	}
	sort.Slice(r.virtuals, func(i, j int) bool { return r.virtuals[i].token < r.virtuals[j].token })
	return r
}

// ShardFor returns the segment name responsible for key: the first
// virtual token on the ring at or after key's own hash, wrapping
// around to the lowest token if key's hash exceeds every virtual.
func (r *Router) ShardFor(key []byte) string {
	if len(r.virtuals) == 0 {
		panic("sstable: router has no segments")
	}

	h := murmur3.New64()
	h.Write(key)
	token := h.Sum64()

	i := sort.Search(len(r.virtuals), func(i int) bool { return r.virtuals[i].token >= token })
	if i == len(r.virtuals) {
		i = 0
	}

	segment := r.virtuals[i].segment
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"key": string(key), "segment": segment}).Trace("sstable: routed key")
	}
	return segment
}
