package stats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

var (
	magic = [4]byte{'L', 'M', 'S', 'T'}

	ErrCorrupt = errors.New("stats: corrupt model")
)

const (
	codecVersion = 1
	headerSize   = 4 + 1 + 4 + 8 + 4
	rowSize      = 4 * 4
)

type row struct {
	anchor, candidate, predicate dict.ID
	count                        uint32
}

// MarshalBinary encodes the model. Rows are sorted by (anchor, candidate,
// predicate) so equal models encode to equal bytes.
func (r *Recommender) MarshalBinary() ([]byte, error) {
	rows := make([]row, 0, len(r.pairs))
	for p, entry := range r.pairs {
		for _, pc := range entry.counts {
			rows = append(rows, row{p.Anchor, p.Candidate, pc.predicate, pc.count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.anchor != b.anchor {
			return a.anchor < b.anchor
		}
		if a.candidate != b.candidate {
			return a.candidate < b.candidate
		}
		return a.predicate < b.predicate
	})

	buf := make([]byte, headerSize+rowSize*len(rows))
	copy(buf[0:4], magic[:])
	buf[4] = codecVersion
	binary.LittleEndian.PutUint32(buf[5:9], uint32(r.numPredicates))
	binary.LittleEndian.PutUint64(buf[9:17], r.Fingerprint)
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(rows)))

	off := headerSize
	for _, rw := range rows {
		binary.LittleEndian.PutUint32(buf[off:], uint32(rw.anchor))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(rw.candidate))
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(rw.predicate))
		binary.LittleEndian.PutUint32(buf[off+12:], rw.count)
		off += rowSize
	}
	return buf, nil
}

// UnmarshalBinary decodes a model written by MarshalBinary.
func (r *Recommender) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || [4]byte(data[0:4]) != magic {
		return fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if data[4] != codecVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[4])
	}
	numPredicates := int(binary.LittleEndian.Uint32(data[5:9]))
	fingerprint := binary.LittleEndian.Uint64(data[9:17])
	n := int(binary.LittleEndian.Uint32(data[17:21]))
	if len(data) != headerSize+rowSize*n {
		return fmt.Errorf("%w: expected %d rows, got %d bytes", ErrCorrupt, n, len(data)-headerSize)
	}

	pairs := make(map[Pair]*pairEntry)
	off := headerSize
	for i := 0; i < n; i++ {
		a := dict.ID(binary.LittleEndian.Uint32(data[off:]))
		c := dict.ID(binary.LittleEndian.Uint32(data[off+4:]))
		p := dict.ID(binary.LittleEndian.Uint32(data[off+8:]))
		count := binary.LittleEndian.Uint32(data[off+12:])
		off += rowSize

		if a < 0 || c < 0 || p < 0 || int(p) >= numPredicates || count == 0 {
			return fmt.Errorf("%w: invalid row %d", ErrCorrupt, i)
		}
		key := Pair{Anchor: a, Candidate: c}
		entry, ok := pairs[key]
		if !ok {
			entry = &pairEntry{}
			pairs[key] = entry
		}
		entry.counts = append(entry.counts, predCount{predicate: p, count: count})
		entry.total += count
	}

	r.Fingerprint = fingerprint
	r.numPredicates = numPredicates
	r.pairs = pairs
	r.indexObjects()
	return nil
}
