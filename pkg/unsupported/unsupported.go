// Package unsupported provides the Reader/Writer boundary spec.md §4.3.3
// calls for: formats this toolkit recognises but does not implement a
// parser for. Every entry point here returns ebookerr.UnsupportedFormat
// without reading past the bytes the Detector already consumed.
package unsupported

import (
	"io"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

// Read always fails with an UnsupportedFormat read error, never a panic or
// a partially populated Document, for any format named here: PDF, MOBI,
// AZW3, DOCX, CBZ, and FB2. Fidelity-preserving PDF layout, MOBI/AZW3's
// proprietary record formats, WordprocessingML, and comic-archive paging
// are all explicit Non-goals; this keeps the pipeline's dispatch table
// total over every Format the Detector can name.
func Read(format string, _ io.ReaderAt, _ int64) (*ir.Document, error) {
	return nil, ebookerr.UnsupportedFormat("read", format)
}

// Write always fails with an UnsupportedFormat write error.
func Write(format string, _ *ir.Document) ([]byte, error) {
	return nil, ebookerr.UnsupportedFormat("write", format)
}
