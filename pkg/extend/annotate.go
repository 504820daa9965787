package extend

import (
	"strings"

	"github.com/duynguyendang/lmerec/pkg/corpus"
)

// ObjectKind tells whether a suggested object is a class or a datatype.
type ObjectKind string

const (
	// ObjectClass objects are linked with an object property.
	ObjectClass ObjectKind = "object"
	// ObjectData objects are XSD datatypes linked with a data property.
	ObjectData ObjectKind = "data"
)

// KindOf classifies an object URI.
func KindOf(object string) ObjectKind {
	if strings.HasPrefix(object, corpus.XSDNamespace) {
		return ObjectData
	}
	return ObjectClass
}

// Annotate returns a copy of in with the object kind and the labels of
// predicate and object filled in. Datatypes without a label are labelled
// with their local name.
func Annotate(in []Suggestion, labels corpus.Labels) []Suggestion {
	out := make([]Suggestion, len(in))
	for i, s := range in {
		s.Kind = KindOf(s.Object)
		p := labels[s.Predicate]
		s.PredicateLabel, s.PredicateDescription = p.Label, p.Description
		o := labels[s.Object]
		s.ObjectLabel, s.ObjectDescription = o.Label, o.Description
		if s.ObjectLabel == "" && s.Kind == ObjectData {
			s.ObjectLabel = strings.TrimPrefix(s.Object, corpus.XSDNamespace)
		}
		out[i] = s
	}
	return out
}
