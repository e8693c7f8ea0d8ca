// Package wire implements the read-response envelope: a tagged variant
// that carries either a content digest or a full row across replicas,
// with a fixed framed wire form independent of the row's own
// serialization.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/kettlelakes/wideframe/entities/counter"
)

// RowCodec is the capability set a row payload must provide so
// ReadResponse can delegate to it without knowing its concrete type.
// This replaces the reflective supertype-to-subtype serializer lookup
// the original implementation used: the codec is a plain interface
// captured at construction.
type RowCodec interface {
	WriteTo(w io.Writer) error
}

// RowDecoder builds a RowCodec-compatible row payload by reading its
// serialized form from r. It is supplied by the storage layer, which
// owns the row's on-disk/wire representation.
type RowDecoder func(r io.Reader) (RowCodec, error)

// ReadResponse is one of two shapes: Digest (an opaque, non-empty
// content hash) or Data (a row whose own serializer is delegated to a
// RowCodec). Exactly one shape is inhabited.
type ReadResponse struct {
	digest []byte
	row    RowCodec
}

// NewDigest builds a ReadResponse carrying a content digest. digest
// must be non-empty.
func NewDigest(digest []byte) *ReadResponse {
	if len(digest) == 0 {
		panic("wire: digest must be non-empty")
	}
	return &ReadResponse{digest: append([]byte(nil), digest...)}
}

// NewData builds a ReadResponse carrying a full row.
func NewData(row RowCodec) *ReadResponse {
	if row == nil {
		panic("wire: row must not be nil")
	}
	return &ReadResponse{row: row}
}

// IsDigest reports whether this response carries a digest rather than
// a row.
func (r *ReadResponse) IsDigest() bool { return r.digest != nil }

// Digest returns the carried digest, or nil if this response carries a
// row instead.
func (r *ReadResponse) Digest() []byte { return r.digest }

// Row returns the carried row, or nil if this response carries a
// digest instead.
func (r *ReadResponse) Row() RowCodec { return r.row }

// Serialize writes the exact wire form: a big-endian int32 digest
// size (0 for a Data response), the raw digest bytes (empty for
// Data), a one-byte isDigest boolean, and — only when isDigest is
// false — the row's own delegated serialization.
func (r *ReadResponse) Serialize(w io.Writer) error {
	digestSize := int32(len(r.digest))
	if err := binary.Write(w, binary.BigEndian, digestSize); err != nil {
		return err
	}
	if digestSize > 0 {
		if _, err := w.Write(r.digest); err != nil {
			return err
		}
	}

	isDigest := byte(0)
	if r.IsDigest() {
		isDigest = 1
	}
	if _, err := w.Write([]byte{isDigest}); err != nil {
		return err
	}

	if !r.IsDigest() {
		return r.row.WriteTo(w)
	}
	return nil
}

// Deserialize reads a ReadResponse in the wire form Serialize writes.
// decodeRow is consulted only when the frame indicates a Data
// response; it is nil-safe to omit for callers that only ever expect
// digests. Deserialize returns counter.ErrBadResponseFrame if the
// isDigest tag disagrees with the digest-size header, and
// counter.ErrDecode wrapping the underlying I/O failure on any read
// error.
func Deserialize(r io.Reader, decodeRow RowDecoder) (*ReadResponse, error) {
	var digestSize int32
	if err := binary.Read(r, binary.BigEndian, &digestSize); err != nil {
		return nil, counter.NewDecodeError(err)
	}

	var digest []byte
	if digestSize > 0 {
		digest = make([]byte, digestSize)
		if _, err := io.ReadFull(r, digest); err != nil {
			return nil, counter.NewDecodeError(err)
		}
	}

	var isDigestByte [1]byte
	if _, err := io.ReadFull(r, isDigestByte[:]); err != nil {
		return nil, counter.NewDecodeError(err)
	}
	isDigest := isDigestByte[0] != 0

	if isDigest != (digestSize > 0) {
		return nil, counter.NewBadResponseFrameError(digestSize, isDigest)
	}

	if isDigest {
		return &ReadResponse{digest: digest}, nil
	}

	if decodeRow == nil {
		return nil, counter.NewDecodeError(io.ErrUnexpectedEOF)
	}
	row, err := decodeRow(r)
	if err != nil {
		return nil, counter.NewDecodeError(err)
	}
	return &ReadResponse{row: row}, nil
}
