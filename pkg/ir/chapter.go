package ir

// TextDirection overrides the reading direction of a Chapter's content.
type TextDirection string

const (
	// DirectionInherit means no override: use the document/format default.
	DirectionInherit TextDirection = ""
	DirectionLTR     TextDirection = "ltr"
	DirectionRTL     TextDirection = "rtl"
)

// Chapter is a unit of document content, addressed by a stable id. Ids are
// stable across the Document's lifetime: transforms and repair may reorder
// or remove chapters but must not renumber the ids of survivors, since TOC
// hrefs and Image alt-text links reference them.
type Chapter struct {
	ID        string
	Title     string
	Content   []ContentNode
	Direction TextDirection
}
