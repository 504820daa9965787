package embed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

var (
	magic = [4]byte{'L', 'M', 'E', 'V'}

	ErrCorrupt = errors.New("embed: corrupt space")
)

const (
	codecVersion = 1

	// HeaderSize is the length of the encoded header.
	HeaderSize = 4 + 1 + 4 + 4 + 8
)

// Header describes an encoded space without its vectors.
type Header struct {
	Dim         int
	NumNodes    int
	Fingerprint uint64
}

// Header returns the header of s.
func (s *Space) Header() Header {
	return Header{Dim: s.dim, NumNodes: s.numNodes, Fingerprint: s.Fingerprint}
}

// MarshalBinary encodes the header followed by, for every id,
// one presence byte and, when present, dim little-endian float32 values.
func (s *Space) MarshalBinary() ([]byte, error) {
	buf := EncodeHeader(s.Header())
	for i := 0; i < s.numNodes; i++ {
		if !s.present[i] {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = append(buf, EncodeVector(s.data[i*s.dim:(i+1)*s.dim])...)
	}
	return buf, nil
}

// UnmarshalBinary decodes a space written by MarshalBinary.
func (s *Space) UnmarshalBinary(data []byte) error {
	h, err := DecodeHeader(data)
	if err != nil {
		return err
	}
	vectors := make(map[dict.ID][]float32)
	off := HeaderSize
	for i := 0; i < h.NumNodes; i++ {
		if off >= len(data) {
			return fmt.Errorf("%w: truncated at node %d", ErrCorrupt, i)
		}
		flag := data[off]
		off++
		if flag == 0 {
			continue
		}
		end := off + 4*h.Dim
		if end > len(data) {
			return fmt.Errorf("%w: truncated vector %d", ErrCorrupt, i)
		}
		vec, err := DecodeVector(data[off:end], h.Dim)
		if err != nil {
			return err
		}
		vectors[dict.ID(i)] = vec
		off = end
	}
	if off != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-off)
	}
	return s.fill(h, vectors)
}

func (s *Space) fill(h Header, vectors map[dict.ID][]float32) error {
	s.dim = h.Dim
	s.numNodes = h.NumNodes
	s.Fingerprint = h.Fingerprint
	s.data = make([]float32, h.NumNodes*h.Dim)
	s.present = make([]bool, h.NumNodes)
	for id, vec := range vectors {
		copy(s.data[int(id)*h.Dim:], vec)
		s.present[id] = true
	}
	s.normalize()
	return nil
}

// FromParts rebuilds a space from a header and per-id vectors, as stored
// one key per vector.
func FromParts(h Header, vectors map[dict.ID][]float32) (*Space, error) {
	for id, vec := range vectors {
		if id < 0 || int(id) >= h.NumNodes {
			return nil, fmt.Errorf("vector for id %d: %w", id, ErrIDSpaceMismatch)
		}
		if len(vec) != h.Dim {
			return nil, fmt.Errorf("%w: vector %d has %d components, want %d", ErrCorrupt, id, len(vec), h.Dim)
		}
	}
	s := &Space{}
	if err := s.fill(h, vectors); err != nil {
		return nil, err
	}
	return s, nil
}

// EncodeHeader encodes h.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	buf[4] = codecVersion
	binary.LittleEndian.PutUint32(buf[5:9], uint32(h.Dim))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(h.NumNodes))
	binary.LittleEndian.PutUint64(buf[13:21], h.Fingerprint)
	return buf
}

// DecodeHeader decodes the first HeaderSize bytes of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize || [4]byte(data[0:4]) != magic {
		return Header{}, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if data[4] != codecVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[4])
	}
	return Header{
		Dim:         int(binary.LittleEndian.Uint32(data[5:9])),
		NumNodes:    int(binary.LittleEndian.Uint32(data[9:13])),
		Fingerprint: binary.LittleEndian.Uint64(data[13:21]),
	}, nil
}

// EncodeVector encodes vec as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector decodes dim float32 values.
func DecodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != 4*dim {
		return nil, fmt.Errorf("%w: vector of %d bytes, want %d", ErrCorrupt, len(data), 4*dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
