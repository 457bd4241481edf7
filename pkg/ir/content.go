package ir

// ContentNode is a block-level element of chapter content. The concrete
// types below are the closed set of variants; a type switch over all of
// them is exhaustive. Readers build these from their source markup, writers
// invert the mapping back.
type ContentNode interface {
	contentNode()
}

// Paragraph is a run of inline content.
type Paragraph struct {
	Inlines []InlineNode
}

func (Paragraph) contentNode() {}

// Heading is a section title, level 1 (most significant) through 6.
type Heading struct {
	Level   int
	Inlines []InlineNode
}

func (Heading) contentNode() {}

// List is an ordered or unordered list. Each item is itself block-level
// content, since list items may contain nested lists, paragraphs, etc.
// Items must never be empty.
type List struct {
	Ordered bool
	Items   [][]ContentNode
}

func (List) contentNode() {}

// Table is a grid with an optional header row and a body of rows. All
// header rows must have equal width.
type Table struct {
	Header [][]InlineNode
	Rows   [][][]InlineNode
}

func (Table) contentNode() {}

// BlockQuote is a quoted block of nested block-level content.
type BlockQuote struct {
	Children []ContentNode
}

func (BlockQuote) contentNode() {}

// CodeBlock is a literal, unformatted block of code.
type CodeBlock struct {
	Language string
	Literal  string
}

func (CodeBlock) contentNode() {}

// Image references a Resource by id. Caption, if present, is rendered
// alongside the image by formats that support it.
type Image struct {
	ResourceID string
	Alt        string
	Caption    string
}

func (Image) contentNode() {}

// HorizontalRule is a thematic break.
type HorizontalRule struct{}

func (HorizontalRule) contentNode() {}

// RawPassthrough carries a literal fragment in its origin format's markup,
// tagged with that format's name (e.g. "xhtml"). Writers that don't
// understand the tag drop the node rather than fail: the TXT writer reports
// each drop through its optional WarnFunc, and the EPUB writer drops it
// without a warning.
type RawPassthrough struct {
	FormatTag string
	Literal   string
}

func (RawPassthrough) contentNode() {}
