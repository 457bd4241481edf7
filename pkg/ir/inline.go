package ir

// InlineNode is an inline (character-level) element within a Paragraph,
// Heading, table cell, or other inline-bearing context.
type InlineNode interface {
	inlineNode()
}

// Text is a plain run of characters.
type Text struct {
	Value string
}

func (Text) inlineNode() {}

// Emphasis is typically rendered italic.
type Emphasis struct {
	Children []InlineNode
}

func (Emphasis) inlineNode() {}

// Strong is typically rendered bold.
type Strong struct {
	Children []InlineNode
}

func (Strong) inlineNode() {}

// Code is an inline code span.
type Code struct {
	Value string
}

func (Code) inlineNode() {}

// Link wraps its children in a hyperlink. Href may be an internal
// "chapter_id#fragment" reference or an absolute external URL.
type Link struct {
	Href     string
	Children []InlineNode
}

func (Link) inlineNode() {}

// Superscript raises its children above the baseline.
type Superscript struct {
	Children []InlineNode
}

func (Superscript) inlineNode() {}

// Subscript lowers its children below the baseline.
type Subscript struct {
	Children []InlineNode
}

func (Subscript) inlineNode() {}

// Ruby is an East Asian phonetic annotation: Base text with a small Annotation
// rendered alongside it (furigana and similar).
type Ruby struct {
	Base       string
	Annotation string
}

func (Ruby) inlineNode() {}

// LineBreak is a forced line break within a paragraph, as opposed to a new
// paragraph.
type LineBreak struct{}

func (LineBreak) inlineNode() {}
