// Package transform implements the pure Document-to-Document operators
// that compose into a pipeline stage between reading and writing: the
// built-in set the spec names, plus a JavaScript-hosted escape hatch for
// caller-supplied transforms in the teacher's plugin-hook style.
package transform

import (
	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

// Transform is a pure function over a Document: it must not mutate doc in
// place and must return either a new Document or an error, leaving the
// caller's original untouched either way.
type Transform interface {
	Name() string
	Apply(doc *ir.Document) (*ir.Document, error)
}

// Func adapts a plain function into a Transform.
type Func struct {
	FuncName string
	Fn       func(*ir.Document) (*ir.Document, error)
}

func (f Func) Name() string { return f.FuncName }

func (f Func) Apply(doc *ir.Document) (*ir.Document, error) {
	return f.Fn(doc)
}

// Apply runs each transform in order over doc, cloning before the first
// one so the caller's original is never touched. Any failure aborts the
// whole pipeline and returns the error, discarding all intermediate work;
// the prior Document is untouched because the caller still holds it.
func Apply(doc *ir.Document, transforms []Transform) (*ir.Document, error) {
	current := doc.Clone()
	for _, t := range transforms {
		next, err := t.Apply(current)
		if err != nil {
			return nil, ebookerr.TransformFailed(t.Name(), err.Error())
		}
		current = next
	}
	return current, nil
}
