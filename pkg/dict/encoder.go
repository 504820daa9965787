package dict

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ID is a dense, zero-based identifier assigned by an Encoder.
type ID int32

// NotFound is returned by ID for URIs that were never assigned.
// It never collides with a real id because real ids are non-negative.
const NotFound ID = -1

var (
	ErrNotFound  = errors.New("key not found in dictionary")
	ErrDuplicate = errors.New("duplicate key in dictionary")
)

// Kind distinguishes the two registries of a generation.
type Kind byte

const (
	KindClass     Kind = 'c'
	KindPredicate Kind = 'p'
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindPredicate:
		return "predicate"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Encoder implements a bi-directional URI <-> ID mapping.
// IDs are handed out in first-seen order and never reused, so the mapping is
// an append-only bijection. After construction the encoder is only read.
type Encoder struct {
	kind Kind

	mu      sync.RWMutex
	forward map[string]ID // uri -> id
	reverse []string      // id -> uri
}

// NewEncoder creates an empty encoder.
func NewEncoder(kind Kind) *Encoder {
	return &Encoder{
		kind:    kind,
		forward: make(map[string]ID),
	}
}

// NewEncoderFromURIs restores an encoder whose id i maps to uris[i].
func NewEncoderFromURIs(kind Kind, uris []string) (*Encoder, error) {
	e := &Encoder{
		kind:    kind,
		forward: make(map[string]ID, len(uris)),
		reverse: make([]string, 0, len(uris)),
	}
	for i, uri := range uris {
		if prev, exists := e.forward[uri]; exists {
			return nil, fmt.Errorf("%w: %q at ids %d and %d", ErrDuplicate, uri, prev, i)
		}
		e.forward[uri] = ID(i)
		e.reverse = append(e.reverse, uri)
	}
	return e, nil
}

// Kind returns which registry this encoder holds.
func (e *Encoder) Kind() Kind {
	return e.kind
}

// GetOrCreateID gets the ID for a URI, assigning the next dense id if the URI is new.
func (e *Encoder) GetOrCreateID(uri string) ID {
	e.mu.RLock()
	id, ok := e.forward[uri]
	e.mu.RUnlock()
	if ok {
		return id
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check under lock
	if id, ok := e.forward[uri]; ok {
		return id
	}
	id = ID(len(e.reverse))
	e.forward[uri] = id
	e.reverse = append(e.reverse, uri)
	return id
}

// ID gets the ID for a URI without creating a new one.
func (e *Encoder) ID(uri string) ID {
	if id, ok := e.Lookup(uri); ok {
		return id
	}
	return NotFound
}

// Lookup gets the ID for a URI without creating a new one.
func (e *Encoder) Lookup(uri string) (ID, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.forward[uri]
	return id, ok
}

// String gets the URI for an ID.
func (e *Encoder) String(id ID) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if id < 0 || int(id) >= len(e.reverse) {
		return "", fmt.Errorf("%s id %d: %w", e.kind, id, ErrNotFound)
	}
	return e.reverse[id], nil
}

// Len returns the number of assigned ids.
func (e *Encoder) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.reverse)
}

// URIs returns the vocabulary in id order.
func (e *Encoder) URIs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.reverse))
	copy(out, e.reverse)
	return out
}

// Fingerprint hashes the ordered vocabulary.
// Two encoders share a fingerprint only if every id maps to the same URI.
func (e *Encoder) Fingerprint() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := xxhash.New()
	h.Write([]byte{byte(e.kind)})
	for _, uri := range e.reverse {
		h.WriteString(uri)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Stats returns statistics about the encoder.
func (e *Encoder) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"kind":    e.kind.String(),
		"size":    len(e.reverse),
		"next_id": len(e.reverse),
	}
}

// LogValue implements slog.LogValuer.
func (e *Encoder) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", e.kind.String()),
		slog.Int("size", e.Len()),
	)
}
