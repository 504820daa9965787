package dict

// Dictionary is the read side of an identifier registry.
// Encoder implements it; the orchestrator only ever reads.
type Dictionary interface {
	// ID returns the id for a URI, or NotFound.
	ID(uri string) ID

	// Lookup returns the id for a URI and whether it is known.
	Lookup(uri string) (ID, bool)

	// String returns the URI for an id.
	// Returns an error wrapping ErrNotFound if the id was never assigned.
	String(id ID) (string, error)

	// Len returns the number of assigned ids.
	Len() int
}
