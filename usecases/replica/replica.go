// Package replica supplements the boundary-only "quorum response
// handler" collaborator named in spec.md §1: it fans a counter
// context read out across a shard's replicas, reconciles whatever
// comes back with the countercontext engine, and — through Finder —
// performs a cheap digest-first read with fallback to a full
// reconciliation when replicas disagree.
package replica

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/kettlelakes/wideframe/entities/wire"
	"github.com/kettlelakes/wideframe/usecases/countercontext/mix"
)

// ContextClient is the transport collaborator a Coordinator or Finder
// is built on: it knows how to reach a single named replica and get
// back its counter context for a key, either as a cheap digest or the
// full context bytes. Cluster membership, connection pooling, and
// wire transport are the caller's concern, not this package's — this
// mirrors how the teacher's own replica.Client only wraps individual
// RPCs and leaves node discovery to a separate resolver.
type ContextClient interface {
	Fetch(ctx context.Context, node, key string, digestOnly bool) (*wire.ReadResponse, error)
}

// counterRow adapts a packed counter context to entities/wire's
// RowCodec so a ReadResponse can carry it as its Data payload without
// either package knowing about the other's types.
type counterRow struct {
	ctx []byte
}

func (r counterRow) WriteTo(w io.Writer) error {
	_, err := w.Write(r.ctx)
	return err
}

// DecodeCounterRow is the wire.RowDecoder for a Data ReadResponse
// carrying a counter context. A ContextClient implementation that
// deserializes ReadResponse frames off the wire (rather than building
// them in-process, as the fakes in this package's tests do) passes
// this to wire.Deserialize.
func DecodeCounterRow(r io.Reader) (wire.RowCodec, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return counterRow{ctx: b}, nil
}

// newContextResponse wraps a counter context as a Data ReadResponse.
func newContextResponse(ctx []byte) *wire.ReadResponse {
	return wire.NewData(counterRow{ctx: ctx})
}

// digestOf derives an 8-byte content digest for a counter context.
// Two replicas holding byte-identical contexts always produce the
// same digest; this is the cheap comparison Finder uses before paying
// for a full fetch.
func digestOf(ctx []byte) []byte {
	sum := mix.Sum64(ctx, 0)
	d := make([]byte, 8)
	binary.BigEndian.PutUint64(d, sum)
	return d
}

// newDigestResponse wraps a counter context's digest as a Digest
// ReadResponse.
func newDigestResponse(ctx []byte) *wire.ReadResponse {
	return wire.NewDigest(digestOf(ctx))
}

// contextFromResponse extracts the raw counter context bytes from a
// Data ReadResponse. Calling it on a Digest response is a programming
// error.
func contextFromResponse(resp *wire.ReadResponse) []byte {
	return resp.Row().(counterRow).ctx
}
