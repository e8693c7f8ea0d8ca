package countercontext

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/kettlelakes/wideframe/entities/counter"
)

func ip4(s string) net.IP { return net.ParseIP(s).To4() }

func newEngine(t *testing.T, localAddr string) *Engine {
	t.Helper()
	return New(ip4(localAddr))
}

// S1: create() then a single update.
func TestScenarioS1(t *testing.T) {
	e := newEngine(t, "10.0.0.1")

	ctx := e.Create()
	if len(ctx) != 0 {
		t.Fatalf("Create() length = %d, want 0", len(ctx))
	}

	ctx, err := e.Update(ctx, ip4("10.0.0.1"), 5)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	want := []byte{
		0x0a, 0x00, 0x00, 0x01, // id
		0, 0, 0, 0, 0, 0, 0, 1, // clock = 1
		0, 0, 0, 0, 0, 0, 0, 5, // count = 5
	}
	if !bytes.Equal(ctx, want) {
		t.Fatalf("Update result = % x, want % x", ctx, want)
	}

	total, err := e.Total(ctx)
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if total != 5 {
		t.Fatalf("Total = %d, want 5", total)
	}
}

// S2: a second writer's update goes to the front (MRU).
func TestScenarioS2(t *testing.T) {
	e := newEngine(t, "10.0.0.1")

	ctx, err := e.Update(e.Create(), ip4("10.0.0.1"), 5)
	if err != nil {
		t.Fatalf("Update 1: %v", err)
	}
	ctx, err = e.Update(ctx, ip4("10.0.0.2"), 3)
	if err != nil {
		t.Fatalf("Update 2: %v", err)
	}

	if len(ctx) != 40 {
		t.Fatalf("length = %d, want 40", len(ctx))
	}

	first := readTuple(ctx, 4, 0)
	if !bytes.Equal(first.ID, ip4("10.0.0.2")) || first.Clock != 1 || first.Count != 3 {
		t.Fatalf("first tuple = %+v, want id=10.0.0.2 clock=1 count=3", first)
	}

	second := readTuple(ctx, 4, 1)
	if !bytes.Equal(second.ID, ip4("10.0.0.1")) || second.Clock != 1 || second.Count != 5 {
		t.Fatalf("second tuple = %+v, want id=10.0.0.1 clock=1 count=5", second)
	}

	total, _ := e.Total(ctx)
	if total != 8 {
		t.Fatalf("Total = %d, want 8", total)
	}
}

func packContext(t *testing.T, tuples ...Tuple) []byte {
	t.Helper()
	idLength := 4
	step := StepLength(idLength)
	out := make([]byte, len(tuples)*step)
	for i, tp := range tuples {
		writeTupleAt(out, idLength, i, tp.ID, tp.Clock, tp.Count)
	}
	return out
}

// S3: remote id, left has an older clock than right.
func TestScenarioS3(t *testing.T) {
	e := newEngine(t, "10.0.0.9") // local id distinct from either tuple's id

	a := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 2, Count: 5})
	b := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 3, Count: 9})

	rel, err := e.Diff(a, b)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if rel != counter.LessThan {
		t.Fatalf("Diff = %s, want LESS_THAN", rel)
	}

	merged, err := e.Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 3, Count: 9})
	if !bytes.Equal(merged, want) {
		t.Fatalf("Merge = % x, want % x", merged, want)
	}
}

// S4: local id sums clocks and counts on merge.
func TestScenarioS4(t *testing.T) {
	e := newEngine(t, "10.0.0.1")

	a := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 2, Count: 5})
	b := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 3, Count: 9})

	merged, err := e.Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 5, Count: 14})
	if !bytes.Equal(merged, want) {
		t.Fatalf("Merge = % x, want % x", merged, want)
	}
}

// S5: disjoint node sets with crossed clocks.
func TestScenarioS5(t *testing.T) {
	e := newEngine(t, "10.0.0.9")

	a := packContext(t,
		Tuple{ID: ip4("10.0.0.1"), Clock: 2, Count: 5},
		Tuple{ID: ip4("10.0.0.2"), Clock: 1, Count: 1},
	)
	b := packContext(t,
		Tuple{ID: ip4("10.0.0.1"), Clock: 1, Count: 5},
		Tuple{ID: ip4("10.0.0.2"), Clock: 2, Count: 7},
	)

	rel, err := e.Diff(a, b)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if rel != counter.Disjoint {
		t.Fatalf("Diff = %s, want DISJOINT", rel)
	}

	merged, err := e.Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := packContext(t,
		Tuple{ID: ip4("10.0.0.2"), Clock: 2, Count: 7},
		Tuple{ID: ip4("10.0.0.1"), Clock: 2, Count: 5},
	)
	if !bytes.Equal(merged, want) {
		t.Fatalf("Merge = % x, want % x", merged, want)
	}
}

func TestLengthInvariant(t *testing.T) {
	e := newEngine(t, "10.0.0.1")
	if len(e.Create()) != 0 {
		t.Fatal("Create() must be empty")
	}

	ctx, err := e.Update(e.Create(), ip4("10.0.0.2"), 1)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(ctx)%StepLength(4) != 0 {
		t.Fatalf("Update result length %d not a multiple of step length", len(ctx))
	}

	merged, err := e.Merge(ctx, ctx)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged)%StepLength(4) != 0 {
		t.Fatalf("Merge result length %d not a multiple of step length", len(merged))
	}

	cleaned, err := e.CleanNodeCounts(merged, ip4("10.0.0.2"))
	if err != nil {
		t.Fatalf("CleanNodeCounts: %v", err)
	}
	if len(cleaned)%StepLength(4) != 0 {
		t.Fatalf("CleanNodeCounts result length %d not a multiple of step length", len(cleaned))
	}
}

func TestMRUAfterUpdate(t *testing.T) {
	e := newEngine(t, "10.0.0.1")
	ctx, _ := e.Update(e.Create(), ip4("10.0.0.1"), 1)
	ctx, _ = e.Update(ctx, ip4("10.0.0.2"), 1)
	ctx, err := e.Update(ctx, ip4("10.0.0.1"), 4)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	first := readTuple(ctx, 4, 0)
	if !bytes.Equal(first.ID, ip4("10.0.0.1")) {
		t.Fatalf("most-recently-updated tuple must be at offset 0, got id %v", first.ID)
	}
}

func TestClockMonotonicity(t *testing.T) {
	e := newEngine(t, "10.0.0.1")
	ctx, _ := e.Update(e.Create(), ip4("10.0.0.5"), 1)
	before := readTuple(ctx, 4, 0).Clock

	ctx, err := e.Update(ctx, ip4("10.0.0.5"), -3)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	after := readTuple(ctx, 4, 0).Clock
	if after != before+1 {
		t.Fatalf("clock = %d, want %d", after, before+1)
	}
}

func TestCountAccumulation(t *testing.T) {
	e := newEngine(t, "10.0.0.1")
	ctx, _ := e.Update(e.Create(), ip4("10.0.0.1"), 5)
	ctx, _ = e.Update(ctx, ip4("10.0.0.2"), 3)

	before, _ := e.Total(ctx)
	ctx, err := e.Update(ctx, ip4("10.0.0.2"), -10)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	after, _ := e.Total(ctx)
	if after != before-10 {
		t.Fatalf("Total = %d, want %d", after, before-10)
	}
}

func TestMergeIdempotent(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	ctx := packContext(t,
		Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12},
		Tuple{ID: ip4("10.0.0.2"), Clock: 2, Count: -3},
	)

	merged, err := e.Merge(ctx, ctx)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	rel, err := e.Diff(merged, ctx)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if rel != counter.Equal {
		t.Fatalf("Diff(merge(c,c), c) = %s, want EQUAL", rel)
	}
}

func TestMergeCommutative(t *testing.T) {
	e := newEngine(t, "10.0.0.9") // local id distinct from all tuple ids below

	a := packContext(t,
		Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12},
		Tuple{ID: ip4("10.0.0.3"), Clock: 7, Count: 1},
	)
	b := packContext(t,
		Tuple{ID: ip4("10.0.0.2"), Clock: 2, Count: -3},
		Tuple{ID: ip4("10.0.0.3"), Clock: 5, Count: 2},
	)

	ab, err := e.Merge(a, b)
	if err != nil {
		t.Fatalf("Merge(a,b): %v", err)
	}
	ba, err := e.Merge(b, a)
	if err != nil {
		t.Fatalf("Merge(b,a): %v", err)
	}
	rel, err := e.Diff(ab, ba)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if rel != counter.Equal {
		t.Fatalf("Diff(merge(a,b), merge(b,a)) = %s, want EQUAL", rel)
	}
	if !bytes.Equal(ab, ba) {
		t.Fatalf("merge is commutative up to relation but not byte-identical: % x vs % x", ab, ba)
	}
}

func TestDiffReflexiveAndAntisymmetric(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	a := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12})
	b := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 6, Count: 1})

	if rel, _ := e.Diff(a, a); rel != counter.Equal {
		t.Fatalf("Diff(a,a) = %s, want EQUAL", rel)
	}

	relAB, err := e.Diff(a, b)
	if err != nil {
		t.Fatalf("Diff(a,b): %v", err)
	}
	relBA, err := e.Diff(b, a)
	if err != nil {
		t.Fatalf("Diff(b,a): %v", err)
	}
	if relAB != counter.LessThan || relBA != counter.GreaterThan {
		t.Fatalf("Diff(a,b)=%s Diff(b,a)=%s, want LESS_THAN/GREATER_THAN", relAB, relBA)
	}
}

func TestDiffUnderSuperset(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	c := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12})
	cPrime := packContext(t,
		Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12},
		Tuple{ID: ip4("10.0.0.2"), Clock: 1, Count: 1},
	)

	rel, err := e.Diff(cPrime, c)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if rel != counter.GreaterThan {
		t.Fatalf("Diff(c', c) = %s, want GREATER_THAN", rel)
	}
}

func TestCleanIsIdentityWhenAbsent(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	c := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12})

	out, err := e.CleanNodeCounts(c, ip4("10.0.0.99"))
	if err != nil {
		t.Fatalf("CleanNodeCounts: %v", err)
	}
	if !bytes.Equal(out, c) {
		t.Fatalf("CleanNodeCounts changed context when id absent: % x != % x", out, c)
	}
}

func TestCleanRemovesPresentNode(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	c := packContext(t,
		Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12},
		Tuple{ID: ip4("10.0.0.2"), Clock: 1, Count: 1},
	)
	out, err := e.CleanNodeCounts(c, ip4("10.0.0.1"))
	if err != nil {
		t.Fatalf("CleanNodeCounts: %v", err)
	}
	want := packContext(t, Tuple{ID: ip4("10.0.0.2"), Clock: 1, Count: 1})
	if !bytes.Equal(out, want) {
		t.Fatalf("CleanNodeCounts = % x, want % x", out, want)
	}
}

func TestMalformedContextRejected(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	bad := make([]byte, 5) // not a multiple of stepLength=20
	if _, err := e.Total(bad); err == nil {
		t.Fatal("expected error for malformed context")
	} else if !errors.Is(err, counter.ErrMalformedContext) {
		t.Fatalf("expected ErrMalformedContext, got %v", err)
	}
}

func TestString(t *testing.T) {
	e := newEngine(t, "10.0.0.9")
	c := packContext(t, Tuple{ID: ip4("10.0.0.1"), Clock: 4, Count: 12})
	s := e.String(c)
	want := "[{10.0.0.1, 4, 12}]"
	if s != want {
		t.Fatalf("String() = %q, want %q", s, want)
	}
}
