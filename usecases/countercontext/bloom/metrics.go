package bloom

import "github.com/prometheus/client_golang/prometheus"

// Metrics curries the Prometheus counters for a filter's Test calls
// once at construction, to avoid re-resolving label sets on every
// hot-path lookup. This mirrors the wide-column storage layer's own
// bloomFilterMetrics, which does the same for its segment readers.
type Metrics struct {
	positive prometheus.Counter
	negative prometheus.Counter
}

// NewMetrics registers (or reuses, if reg already holds it) the shared
// Test() outcome counter vector and binds its maybe-present and
// definitely-absent counters to the given filter name, e.g. a table or
// segment identifier.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wideframe",
		Subsystem: "bloom_filter",
		Name:      "test_total",
		Help:      "Count of bloom filter Test() calls by outcome.",
	}, []string{"filter", "outcome"})

	if reg != nil {
		if err := reg.Register(vec); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			vec = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	return &Metrics{
		positive: vec.WithLabelValues(name, "maybe_present"),
		negative: vec.WithLabelValues(name, "definitely_absent"),
	}
}

func (m *Metrics) observePositive() { m.positive.Inc() }
func (m *Metrics) observeNegative() { m.negative.Inc() }
