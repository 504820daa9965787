// Package corpus holds the integer-encoded triple corpus and the weighted
// co-occurrence graph derived from it.
//
// The corpus is the single input of every training step: the statistics
// recommender counts predicates per (subject, object) pair and the embedding
// trainer walks the co-occurrence graph. Both are built once per generation
// by Build and are read-only afterwards.
package corpus

import (
	"encoding/binary"
	"fmt"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

// RawTriple is a semantic triple as delivered by a source.
type RawTriple struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Object    string `json:"o"`

	// Literal marks objects that are literal values rather than nodes.
	Literal bool `json:"literal,omitempty"`
	// Datatype is the literal's datatype IRI, if any.
	Datatype string `json:"datatype,omitempty"`
}

// Triple is an integer-encoded (subject, predicate, object) triple.
// Subject and Object are class ids, Predicate is a predicate id.
type Triple struct {
	Subject   dict.ID
	Predicate dict.ID
	Object    dict.ID
}

// String returns a human-readable representation of the Triple.
func (t Triple) String() string {
	return fmt.Sprintf("(%d, %d, %d)", t.Subject, t.Predicate, t.Object)
}

// tripleSize is the encoded size of one triple: 3 * int32.
const tripleSize = 12

// Corpus is the ordered, integer-encoded sequence of observed triples.
// Duplicates are kept: frequency is signal.
type Corpus struct {
	triples       []Triple
	numNodes      int
	numPredicates int
}

// NewCorpus wraps triples. The slice is owned by the corpus afterwards.
func NewCorpus(triples []Triple) *Corpus {
	c := &Corpus{triples: triples}
	for _, t := range triples {
		if n := int(t.Subject) + 1; n > c.numNodes {
			c.numNodes = n
		}
		if n := int(t.Object) + 1; n > c.numNodes {
			c.numNodes = n
		}
		if n := int(t.Predicate) + 1; n > c.numPredicates {
			c.numPredicates = n
		}
	}
	return c
}

// Triples returns the encoded triples in input order. Callers must not modify it.
func (c *Corpus) Triples() []Triple {
	if c == nil {
		return nil
	}
	return c.triples
}

// Len returns the number of triples, duplicates included.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.triples)
}

// NumPredicates returns 1 + the largest predicate id, or 0 for an empty corpus.
func (c *Corpus) NumPredicates() int {
	if c == nil {
		return 0
	}
	return c.numPredicates
}

// NumNodes returns 1 + the largest class id, or 0 for an empty corpus.
func (c *Corpus) NumNodes() int {
	if c == nil {
		return 0
	}
	return c.numNodes
}

// MarshalBinary encodes the corpus as little-endian int32 triples.
func (c *Corpus) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, c.Len()*tripleSize)
	for _, t := range c.Triples() {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Subject))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Predicate))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Object))
	}
	return buf, nil
}

// UnmarshalBinary decodes a corpus written by MarshalBinary.
func (c *Corpus) UnmarshalBinary(data []byte) error {
	if len(data)%tripleSize != 0 {
		return fmt.Errorf("corpus: invalid encoded length %d", len(data))
	}
	triples := make([]Triple, len(data)/tripleSize)
	for i := range triples {
		off := i * tripleSize
		triples[i] = Triple{
			Subject:   dict.ID(int32(binary.LittleEndian.Uint32(data[off:]))),
			Predicate: dict.ID(int32(binary.LittleEndian.Uint32(data[off+4:]))),
			Object:    dict.ID(int32(binary.LittleEndian.Uint32(data[off+8:]))),
		}
		if triples[i].Subject < 0 || triples[i].Predicate < 0 || triples[i].Object < 0 {
			return fmt.Errorf("corpus: negative id in triple %d", i)
		}
	}
	*c = *NewCorpus(triples)
	return nil
}
