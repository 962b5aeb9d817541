package limiter

import (
	"encoding/binary"
	"math"
	"time"
)

// bucketState is the token bucket record.
type bucketState struct {
	tokens     float64
	lastRefill time.Time
}

const bucketStateSize = 16

func encodeBucket(s bucketState) []byte {
	buf := make([]byte, bucketStateSize)
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(s.tokens))
	binary.BigEndian.PutUint64(buf[8:16], uint64(s.lastRefill.UnixNano()))
	return buf
}

func decodeBucket(b []byte) (bucketState, bool) {
	if len(b) != bucketStateSize {
		return bucketState{}, false
	}
	tokens := math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))
	if math.IsNaN(tokens) || math.IsInf(tokens, 0) {
		return bucketState{}, false
	}
	return bucketState{
		tokens:     tokens,
		lastRefill: time.Unix(0, int64(binary.BigEndian.Uint64(b[8:16]))),
	}, true
}

// windowEntry is a run of n events sharing one timestamp. Entries are kept in
// ascending time order.
type windowEntry struct {
	at int64 // unix nanos
	n  uint32
}

const windowEntrySize = 12

func encodeWindow(entries []windowEntry) []byte {
	buf := make([]byte, len(entries)*windowEntrySize)
	for i, e := range entries {
		off := i * windowEntrySize
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(e.at))
		binary.BigEndian.PutUint32(buf[off+8:off+12], e.n)
	}
	return buf
}

func decodeWindow(b []byte) ([]windowEntry, bool) {
	if len(b)%windowEntrySize != 0 {
		return nil, false
	}
	out := make([]windowEntry, 0, len(b)/windowEntrySize)
	var prev int64
	for off := 0; off < len(b); off += windowEntrySize {
		e := windowEntry{
			at: int64(binary.BigEndian.Uint64(b[off : off+8])),
			n:  binary.BigEndian.Uint32(b[off+8 : off+12]),
		}
		if e.n == 0 || (len(out) > 0 && e.at < prev) {
			return nil, false
		}
		prev = e.at
		out = append(out, e)
	}
	return out, true
}
