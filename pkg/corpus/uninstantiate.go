package corpus

const (
	RDFType   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	XSDString = XSDNamespace + "string"
)

// UninstantiateOptions controls how instance-level triples collapse to class level.
type UninstantiateOptions struct {
	// KeepUntypedSubjects keeps triples whose subject has no rdf:type,
	// using the subject itself as its class. When false they are dropped.
	KeepUntypedSubjects bool

	// DropPredicates lists bookkeeping predicates removed before collapsing.
	DropPredicates []string
}

// UninstantiateReport counts what happened to the input.
type UninstantiateReport struct {
	Input          int
	Output         int
	TypeTriples    int
	DroppedUntyped int
	DroppedByRule  int
	Annotations    int
}

// Uninstantiate replaces every instance by its rdf:type.
//
// rdf:type triples themselves are consumed. rdfs:label and rdfs:comment
// triples describe the vocabulary and pass through unchanged. Literal objects
// become their datatype (xsd:string when none is given). Objects without a type are kept
// verbatim. Subjects without a type are dropped unless KeepUntypedSubjects is
// set; the report makes that loss visible. When an instance carries several
// types the first one seen is used.
func Uninstantiate(raw []RawTriple, opts UninstantiateOptions) ([]RawTriple, UninstantiateReport) {
	report := UninstantiateReport{Input: len(raw)}

	drop := make(map[string]bool, len(opts.DropPredicates))
	for _, p := range opts.DropPredicates {
		drop[p] = true
	}

	types := make(map[string]string)
	for _, t := range raw {
		if t.Predicate != RDFType || t.Literal {
			continue
		}
		if _, ok := types[t.Subject]; !ok {
			types[t.Subject] = t.Object
		}
	}

	out := make([]RawTriple, 0, len(raw))
	for _, t := range raw {
		if drop[t.Predicate] {
			report.DroppedByRule++
			continue
		}
		if t.Predicate == RDFType {
			report.TypeTriples++
			continue
		}
		if IsAnnotation(t) {
			report.Annotations++
			out = append(out, t)
			continue
		}

		subject, typed := types[t.Subject]
		if !typed {
			if !opts.KeepUntypedSubjects {
				report.DroppedUntyped++
				continue
			}
			subject = t.Subject
		}

		object := t.Object
		switch {
		case t.Literal:
			object = t.Datatype
			if object == "" {
				object = XSDString
			}
		default:
			if cls, ok := types[t.Object]; ok {
				object = cls
			}
		}

		out = append(out, RawTriple{Subject: subject, Predicate: t.Predicate, Object: object})
	}
	report.Output = len(out)
	return out, report
}
