package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/duynguyendang/lmerec/pkg/corpus"
	"github.com/knakk/rdf"
)

// Format names an RDF serialization.
type Format string

const (
	NTriples Format = "ntriples"
	Turtle   Format = "turtle"
)

// RDFFile reads an N-Triples or Turtle document.
type RDFFile struct {
	Path   string
	Format Format
}

func (f RDFFile) Triples(ctx context.Context) ([]corpus.RawTriple, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open rdf source: %w", err)
	}
	defer fh.Close()

	out, err := DecodeRDF(ctx, fh, f.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return out, nil
}

// DecodeRDF parses every triple of r. Literal objects keep their lexical
// value and datatype.
func DecodeRDF(ctx context.Context, r io.Reader, format Format) ([]corpus.RawTriple, error) {
	var rf rdf.Format
	switch format {
	case NTriples, "":
		rf = rdf.NTriples
	case Turtle:
		rf = rdf.Turtle
	default:
		return nil, fmt.Errorf("unsupported rdf format %q", format)
	}

	dec := rdf.NewTripleDecoder(r, rf)
	var out []corpus.RawTriple
	for {
		if len(out)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode triple %d: %w", len(out)+1, err)
		}
		out = append(out, rawTriple(t))
	}
	return out, nil
}

func rawTriple(t rdf.Triple) corpus.RawTriple {
	rt := corpus.RawTriple{
		Subject:   termString(t.Subj),
		Predicate: t.Pred.String(),
		Object:    termString(t.Obj),
	}
	if lit, ok := t.Obj.(rdf.Literal); ok {
		rt.Literal = true
		rt.Object = lit.String()
		rt.Datatype = lit.DataType.String()
	}
	return rt
}

// termString returns IRIs bare and blank nodes in their _:label form.
func termString(t rdf.Term) string {
	if t.Type() == rdf.TermBlank {
		return "_:" + strings.TrimPrefix(t.String(), "_:")
	}
	return t.String()
}
