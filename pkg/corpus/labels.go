package corpus

const (
	RDFSLabel    = "http://www.w3.org/2000/01/rdf-schema#label"
	RDFSComment  = "http://www.w3.org/2000/01/rdf-schema#comment"
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"
)

// Label is the human readable description of a class or predicate.
type Label struct {
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

// Labels maps vocabulary URIs to their labels. A nil Labels is empty.
type Labels map[string]Label

// IsAnnotation reports whether t is an rdfs:label or rdfs:comment triple.
func IsAnnotation(t RawTriple) bool {
	return t.Predicate == RDFSLabel || t.Predicate == RDFSComment
}

// ExtractLabels splits the annotation triples off raw and indexes them by
// subject. The first label and the first comment seen for a URI win. The
// remaining triples keep their order.
func ExtractLabels(raw []RawTriple) (Labels, []RawTriple) {
	labels := make(Labels)
	rest := make([]RawTriple, 0, len(raw))
	for _, t := range raw {
		if !IsAnnotation(t) {
			rest = append(rest, t)
			continue
		}
		l := labels[t.Subject]
		switch t.Predicate {
		case RDFSLabel:
			if l.Label == "" {
				l.Label = t.Object
			}
		case RDFSComment:
			if l.Description == "" {
				l.Description = t.Object
			}
		}
		labels[t.Subject] = l
	}
	return labels, rest
}
