package countercontext

import (
	"bytes"
	"fmt"
	"net"
	"sort"

	"github.com/kettlelakes/wideframe/entities/counter"
)

// Engine implements the partitioned counter context algorithms for a
// single node id length. Every context it operates on is assumed to be
// packed with that id length; a context whose length is not a
// multiple of that id length's step length fails validation.
//
// An Engine is pure and reentrant: none of its methods mutate the
// context slices passed to them, none take a lock, and none suspend.
// Multiple goroutines may call any method concurrently with distinct
// inputs. If a caller wants to mutate a shared "current context" for a
// row, serializing those mutations is the caller's responsibility.
type Engine struct {
	idLength int
	localID  []byte
}

// New builds an Engine for the given process-wide local node id.
func New(localID []byte) *Engine {
	return &Engine{idLength: len(localID), localID: append([]byte(nil), localID...)}
}

// Default builds an Engine from the process-wide LocalID.
func Default() (*Engine, error) {
	id, err := LocalID()
	if err != nil {
		return nil, err
	}
	return New(id), nil
}

func (e *Engine) step() int { return StepLength(e.idLength) }

func (e *Engine) validate(ctx []byte) error {
	if len(ctx)%e.step() != 0 {
		return counter.NewMalformedContextError(len(ctx), e.step())
	}
	return nil
}

func (e *Engine) addressBytes(node net.IP) ([]byte, error) {
	switch e.idLength {
	case net.IPv4len:
		v4 := node.To4()
		if v4 == nil {
			return nil, fmt.Errorf("countercontext: %s is not an IPv4 address", node)
		}
		return []byte(v4), nil
	case net.IPv6len:
		v6 := node.To16()
		if v6 == nil {
			return nil, fmt.Errorf("countercontext: %s is not an IPv6 address", node)
		}
		return []byte(v6), nil
	default:
		return nil, fmt.Errorf("countercontext: unsupported id length %d", e.idLength)
	}
}

// Create returns an empty counter context: no node has ever written.
func (e *Engine) Create() []byte {
	return []byte{}
}

// Update increments node's logical clock by one and its count by
// delta, moving its tuple to offset 0 (most-recently-updated first).
// If node has no tuple in ctx yet, a new tuple (node, clock=1, count=
// delta) is prepended. ctx is not mutated; the returned context is a
// fresh buffer.
func (e *Engine) Update(ctx []byte, node net.IP, delta int64) ([]byte, error) {
	if err := e.validate(ctx); err != nil {
		return nil, err
	}
	id, err := e.addressBytes(node)
	if err != nil {
		return nil, err
	}

	step := e.step()
	n := tupleCount(ctx, e.idLength)
	for i := 0; i < n; i++ {
		off := i * step
		if compareSubrange(id, 0, ctx, off, e.idLength) != 0 {
			continue
		}

		clock := decodeU64BE(ctx, off+e.idLength)
		count := int64(decodeU64BE(ctx, off+e.idLength+clockLength))

		out := make([]byte, len(ctx))
		writeTupleAt(out, e.idLength, 0, id, clock+1, count+delta)
		copy(out[step:step+off], ctx[0:off])
		copy(out[off+step:], ctx[off+step:])
		return out, nil
	}

	// node not found: widen the context by one tuple at the front.
	out := make([]byte, len(ctx)+step)
	writeTupleAt(out, e.idLength, 0, id, 1, delta)
	copy(out[step:], ctx)
	return out, nil
}

// byTupleID sorts a packed context in place by ascending, unsigned
// lexicographic node id. It operates on whole step-sized chunks so the
// (id, clock, count) tuple stays together under the swap.
type byTupleID struct {
	buf      []byte
	step     int
	idLength int
}

func (a byTupleID) Len() int { return len(a.buf) / a.step }

func (a byTupleID) Less(i, j int) bool {
	return compareSubrange(a.buf, i*a.step, a.buf, j*a.step, a.idLength) < 0
}

func (a byTupleID) Swap(i, j int) {
	io, jo := i*a.step, j*a.step
	tmp := make([]byte, a.step)
	copy(tmp, a.buf[io:io+a.step])
	copy(a.buf[io:io+a.step], a.buf[jo:jo+a.step])
	copy(a.buf[jo:jo+a.step], tmp)
}

func (e *Engine) sortByID(ctx []byte) []byte {
	out := append([]byte(nil), ctx...)
	sort.Sort(byTupleID{buf: out, step: e.step(), idLength: e.idLength})
	return out
}

// Diff determines the version-vector relationship between two
// contexts, treating them as sets keyed by node id. Only logical
// clocks are consulted; counts are not — the clock is the causal
// coordinate, the count is payload. A producer that decrements a
// node's count without advancing its clock (which the operational
// contract forbids) will make Diff report Equal despite unequal
// counts; that is a documented invariant of producers, not a defect
// in Diff.
func (e *Engine) Diff(left, right []byte) (counter.Relationship, error) {
	if err := e.validate(left); err != nil {
		return counter.Disjoint, err
	}
	if err := e.validate(right); err != nil {
		return counter.Disjoint, err
	}

	l := e.sortByID(left)
	r := e.sortByID(right)
	step := e.step()

	rel := counter.Equal
	li, ri := 0, 0
	for li < len(l) && ri < len(r) {
		cmp := compareSubrange(l, li, r, ri, e.idLength)
		switch {
		case cmp == 0:
			lc := decodeU64BE(l, li+e.idLength)
			rc := decodeU64BE(r, ri+e.idLength)
			li += step
			ri += step
			switch {
			case lc == rc:
				continue
			case lc > rc:
				switch rel {
				case counter.Equal:
					rel = counter.GreaterThan
				case counter.GreaterThan:
					continue
				default: // LessThan
					return counter.Disjoint, nil
				}
			default: // lc < rc
				switch rel {
				case counter.Equal:
					rel = counter.LessThan
				case counter.GreaterThan:
					return counter.Disjoint, nil
				default: // LessThan
					continue
				}
			}
		case cmp > 0:
			// this id exists only on the right at this position.
			ri += step
			switch rel {
			case counter.Equal:
				rel = counter.LessThan
			case counter.GreaterThan:
				return counter.Disjoint, nil
			default: // LessThan
				continue
			}
		default: // cmp < 0
			// this id exists only on the left at this position.
			li += step
			switch rel {
			case counter.Equal:
				rel = counter.GreaterThan
			case counter.GreaterThan:
				continue
			default: // LessThan
				return counter.Disjoint, nil
			}
		}
	}

	if li < len(l) {
		switch rel {
		case counter.Equal:
			return counter.GreaterThan, nil
		case counter.LessThan:
			return counter.Disjoint, nil
		}
	} else if ri < len(r) {
		switch rel {
		case counter.Equal:
			return counter.LessThan, nil
		case counter.GreaterThan:
			return counter.Disjoint, nil
		}
	}

	return rel, nil
}

type mergedNode struct {
	id    []byte
	clock uint64
	count int64
}

// Merge reconciles two contexts into one reflecting their causal
// union. Every node id present in either input appears exactly once
// in the output. The engine's own local id sums clocks and counts
// across the two inputs (they represent disjoint slices of that node's
// own operation history); every other id keeps whichever side's
// (clock, count) pair has the higher clock, with ties kept on the side
// already recorded (equal clock from the same id implies equal count,
// by the no-rewinding contract). Output tuples are sorted by
// descending clock, ties broken by descending id, so that two
// replicas merging the same input sets always produce byte-identical
// output.
func (e *Engine) Merge(left, right []byte) ([]byte, error) {
	if err := e.validate(left); err != nil {
		return nil, err
	}
	if err := e.validate(right); err != nil {
		return nil, err
	}

	step := e.step()
	nodes := make(map[string]*mergedNode, tupleCount(left, e.idLength)+tupleCount(right, e.idLength))

	for off := 0; off < len(left); off += step {
		id := append([]byte(nil), left[off:off+e.idLength]...)
		clock := decodeU64BE(left, off+e.idLength)
		count := int64(decodeU64BE(left, off+e.idLength+clockLength))
		nodes[string(id)] = &mergedNode{id: id, clock: clock, count: count}
	}

	localKey := string(e.localID)
	for off := 0; off < len(right); off += step {
		id := right[off : off+e.idLength]
		key := string(id)
		clock := decodeU64BE(right, off+e.idLength)
		count := int64(decodeU64BE(right, off+e.idLength+clockLength))

		existing, ok := nodes[key]
		if !ok {
			nodes[key] = &mergedNode{id: append([]byte(nil), id...), clock: clock, count: count}
			continue
		}

		if key == localKey && len(localKey) > 0 {
			existing.clock += clock
			existing.count += count
			continue
		}

		if existing.clock < clock {
			existing.clock = clock
			existing.count = count
		}
	}

	list := make([]*mergedNode, 0, len(nodes))
	for _, nd := range nodes {
		list = append(list, nd)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].clock != list[j].clock {
			return list[i].clock > list[j].clock
		}
		// ties broken by descending id, matching the reference
		// implementation's own worked example.
		return bytes.Compare(list[i].id, list[j].id) > 0
	})

	out := make([]byte, len(list)*step)
	for i, nd := range list {
		writeTupleAt(out, e.idLength, i, nd.id, nd.clock, nd.count)
	}
	return out, nil
}

// Total sums every node's count field, as a signed 64-bit wrapping sum.
func (e *Engine) Total(ctx []byte) (int64, error) {
	if err := e.validate(ctx); err != nil {
		return 0, err
	}
	step := e.step()
	var total uint64
	for off := 0; off < len(ctx); off += step {
		total += decodeU64BE(ctx, off+e.idLength+clockLength)
	}
	return int64(total), nil
}

// CleanNodeCounts removes node's tuple from ctx, if present. It is a
// no-op (returns ctx unchanged) if node has no tuple in ctx.
func (e *Engine) CleanNodeCounts(ctx []byte, node net.IP) ([]byte, error) {
	if err := e.validate(ctx); err != nil {
		return nil, err
	}
	id, err := e.addressBytes(node)
	if err != nil {
		return nil, err
	}

	step := e.step()
	for off := 0; off < len(ctx); off += step {
		if compareSubrange(ctx, off, id, 0, e.idLength) != 0 {
			continue
		}
		out := make([]byte, len(ctx)-step)
		copy(out[:off], ctx[:off])
		copy(out[off:], ctx[off+step:])
		return out, nil
	}
	return ctx, nil
}

// String renders a human-readable "[{host, clock, count},...]" view of
// ctx, decoding each id as an IP address. An id whose length does not
// match a valid IPv4 or IPv6 address is rendered as "?.?.?.?".
func (e *Engine) String(ctx []byte) string {
	var b bytes.Buffer
	b.WriteByte('[')
	step := e.step()
	for off := 0; off < len(ctx); off += step {
		if off > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('{')
		id := ctx[off : off+e.idLength]
		switch len(id) {
		case net.IPv4len, net.IPv6len:
			b.WriteString(net.IP(id).String())
		default:
			b.WriteString("?.?.?.?")
		}
		b.WriteString(", ")
		fmt.Fprintf(&b, "%d", decodeU64BE(ctx, off+e.idLength))
		b.WriteString(", ")
		fmt.Fprintf(&b, "%d", int64(decodeU64BE(ctx, off+e.idLength+clockLength)))
		b.WriteByte('}')
	}
	b.WriteByte(']')
	return b.String()
}
