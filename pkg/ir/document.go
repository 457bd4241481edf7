// Package ir defines the format-agnostic Intermediate Representation that
// every reader emits into and every writer consumes from.
package ir

// Document is the root entity of the Intermediate Representation. A
// Document is created by a Reader (or programmatically), may be mutated by
// Transforms, Repair, and metadata edits, and is consumed by a Writer or
// dropped. The zero Document is a valid, empty document.
type Document struct {
	Metadata  Metadata
	Toc       []TocEntry
	Chapters  []Chapter
	Resources ResourceMap

	// Origin records where this Document came from, so writers can make
	// format-appropriate default decisions (e.g. EPUB2 vs EPUB3 output).
	Origin FormatOrigin
}

// FormatOrigin carries hints about the format a Document was read from.
// Writers consult it for defaults; it never constrains what a writer can
// produce.
type FormatOrigin struct {
	Format string // e.g. "epub", "txt"; empty for programmatically built documents.

	// EPUBVersion is the version string ("2.0", "3.0", ...) read from the
	// source OPF, if the origin format was EPUB. It constrains the EPUB
	// writer's default output version per spec.
	EPUBVersion string

	// HasBOM records whether the source plain-text file had a UTF-8 BOM, so
	// the TXT writer can round-trip it.
	HasBOM bool

	// ArchiveRepaired records whether the EPUB reader had to rebuild this
	// Document's source ZIP central directory before it could be parsed.
	// The repair engine's fix_zip report reflects this rather than
	// re-attempting a repair the Document itself has no bytes left to act on.
	ArchiveRepaired bool
}

// NewDocument returns an empty, ready-to-use Document.
func NewDocument() *Document {
	return &Document{
		Resources: ResourceMap{},
	}
}

// ChapterByID returns the chapter with the given id, or nil if none exists.
func (d *Document) ChapterByID(id string) *Chapter {
	if d == nil {
		return nil
	}
	for i := range d.Chapters {
		if d.Chapters[i].ID == id {
			return &d.Chapters[i]
		}
	}
	return nil
}
