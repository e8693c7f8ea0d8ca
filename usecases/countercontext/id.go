// Package countercontext implements the partitioned counter context: a
// compact, byte-addressable per-node version vector carrying a logical
// clock and a running count, and the local update, diff, and merge
// algorithms replicas use to keep counter columns eventually consistent.
package countercontext

import (
	"bytes"
	"fmt"
	"net"
	"sync"
)

const (
	clockLength = 8
	countLength = 8
)

var (
	localIDOnce  sync.Once
	localID      []byte
	localIDErr   error
)

// LocalID resolves the local node's identifier once per process, from
// the first non-loopback address bound to a network interface, and
// caches it. Every subsequent call returns the cached value. Default
// calls it to build an Engine; an Engine built with New uses the id it
// was given instead, and of its operations only Merge consults it.
func LocalID() ([]byte, error) {
	localIDOnce.Do(func() {
		localID, localIDErr = resolveLocalAddress()
	})
	return localID, localIDErr
}

// SetLocalID overrides the cached local id, for tests and for
// processes that resolve their identity from configuration rather than
// interface enumeration (e.g. a node started with an explicit
// --listen-address). It must be called before the first LocalID call
// in a well-behaved process; calling it afterwards changes behavior for
// subsequent calls only, since the id is not otherwise reread.
func SetLocalID(id []byte) {
	localIDOnce.Do(func() {})
	localID = append([]byte(nil), id...)
	localIDErr = nil
}

func resolveLocalAddress() ([]byte, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("countercontext: resolve local address: %w", err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return []byte(v4), nil
		}
		if v6 := ipNet.IP.To16(); v6 != nil {
			return []byte(v6), nil
		}
	}
	return nil, fmt.Errorf("countercontext: no non-loopback local address found")
}

// StepLength returns L + 16, the fixed byte width of one tuple, for an
// id of the given length.
func StepLength(idLength int) int {
	return idLength + clockLength + countLength
}

// compareSubrange performs an unsigned lexicographic comparison of len
// bytes starting at aOff in a and bOff in b.
func compareSubrange(a []byte, aOff int, b []byte, bOff int, length int) int {
	return bytes.Compare(a[aOff:aOff+length], b[bOff:bOff+length])
}

func encodeU64BE(dst []byte, off int, v uint64) {
	dst[off] = byte(v >> 56)
	dst[off+1] = byte(v >> 48)
	dst[off+2] = byte(v >> 40)
	dst[off+3] = byte(v >> 32)
	dst[off+4] = byte(v >> 24)
	dst[off+5] = byte(v >> 16)
	dst[off+6] = byte(v >> 8)
	dst[off+7] = byte(v)
}

func decodeU64BE(src []byte, off int) uint64 {
	return uint64(src[off])<<56 |
		uint64(src[off+1])<<48 |
		uint64(src[off+2])<<40 |
		uint64(src[off+3])<<32 |
		uint64(src[off+4])<<24 |
		uint64(src[off+5])<<16 |
		uint64(src[off+6])<<8 |
		uint64(src[off+7])
}
