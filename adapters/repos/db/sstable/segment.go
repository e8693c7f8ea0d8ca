// Package sstable is a minimal storage-layer collaborator: a
// bloom-guarded segment keyed by counter-context key, and a
// consistent-hash router that assigns keys to segments. It exists
// only to give C5's bucket derivation a realistic skip-scan caller
// and to route keys to segments (with spaolacci/murmur3, not C4's
// mixing hash); it is not an LSM
// engine, has no on-disk format, and does no compaction — persistence
// format is explicitly out of scope.
package sstable

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/kettlelakes/wideframe/usecases/countercontext/bloom"
)

// ErrNotFound is returned by Segment.Get when key has no counter
// context in the segment, whether because the bloom filter ruled it
// out or because the keyed lookup that followed found nothing.
var ErrNotFound = errors.New("sstable: not found")

// Segment holds counter contexts for a bounded set of keys behind a
// bloom filter, so a caller can skip the keyed lookup entirely for
// keys the segment is known not to hold. This is the counter-context
// analogue of the teacher's segment.getCollection, which tests its
// bloom filter before touching the on-disk index.
type Segment struct {
	name   string
	filter *bloom.Filter
	mu     sync.RWMutex
	data   map[string][]byte
	logger logrus.FieldLogger
}

// NewSegment builds an empty segment sized for capacity elements. reg
// may be nil, in which case the segment's bloom filter hit/miss
// counters are not registered anywhere.
func NewSegment(name string, capacity uint64, reg prometheus.Registerer, logger logrus.FieldLogger) (*Segment, error) {
	filter, err := bloom.ForElements(capacity, 10)
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: segment %s", name)
	}
	if reg != nil {
		filter.WithMetrics(bloom.NewMetrics(reg, name))
	}
	return &Segment{
		name:   name,
		filter: filter,
		data:   make(map[string][]byte),
		logger: logger,
	}, nil
}

// Put stores ctx under key and records key in the segment's bloom
// filter. A later Put for the same key overwrites the previous
// context; the bloom filter is not affected since it already reports
// key present.
func (s *Segment) Put(key []byte, ctx []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = append([]byte(nil), ctx...)
	s.filter.Add(key)
}

// Get returns the counter context stored for key. If the segment's
// bloom filter reports key definitely absent, the keyed lookup is
// skipped entirely and ErrNotFound is returned immediately.
func (s *Segment) Get(key []byte) ([]byte, error) {
	if !s.filter.Test(key) {
		if s.logger != nil {
			s.logger.WithField("segment", s.name).Debug("sstable: bloom filter ruled out key, skipping scan")
		}
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return ctx, nil
}

// Name returns the segment's identifier, as assigned by a Router.
func (s *Segment) Name() string { return s.name }
