package txt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/htmlutil"
	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/transform"
)

// WriteOptions carries the transforms to apply immediately before writing
// and the BOM emission policy. EmitBOM, when nil, follows the Document's
// Origin.HasBOM hint; when non-nil, it overrides that hint.
type WriteOptions struct {
	Transforms []transform.Transform
	EmitBOM    *bool

	// Deadline, when non-zero, aborts the write once passed. Checked at
	// the chapter loop boundary.
	Deadline time.Time
}

func (o WriteOptions) checkDeadline() error {
	if o.Deadline.IsZero() {
		return nil
	}
	if time.Now().After(o.Deadline) {
		return ebookerr.Cancelled()
	}
	return nil
}

// DefaultWriteOptions returns the spec's documented writer defaults: no
// transforms, BOM emission driven by the Document's read-time hint.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{}
}

// WarnFunc receives a warning message, e.g. when a node the writer doesn't
// understand is dropped. It may be nil.
type WarnFunc func(message string)

// Write flattens doc's Chapters into plain text in reading order. Any
// transform failure aborts the write with doc untouched. progress may be
// nil.
func Write(doc *ir.Document, opts WriteOptions, warn WarnFunc, progress ProgressFunc) ([]byte, error) {
	working := doc
	if len(opts.Transforms) > 0 {
		applied, err := transform.Apply(doc, opts.Transforms)
		if err != nil {
			return nil, err
		}
		working = applied
	} else {
		working = doc.Clone()
	}

	total := len(working.Chapters)
	var b strings.Builder
	for ci, ch := range working.Chapters {
		if err := opts.checkDeadline(); err != nil {
			return nil, err
		}
		if ci > 0 {
			b.WriteString("\n\n")
		}
		if ch.Title != "" {
			b.WriteString(ch.Title)
			b.WriteString("\n\n")
		}
		renderNodes(&b, ch.Content, warn)
		reportProgress(progress, "txt:write:chapter", ci+1, total, ch.ID)
	}

	out := strings.TrimRight(b.String(), "\n") + "\n"
	if out == "\n" {
		out = ""
	}

	emitBOM := working.Origin.HasBOM
	if opts.EmitBOM != nil {
		emitBOM = *opts.EmitBOM
	}
	if emitBOM {
		out = "\xef\xbb\xbf" + out
	}

	return []byte(out), nil
}

func renderNodes(b *strings.Builder, nodes []ir.ContentNode, warn WarnFunc) {
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		renderNode(b, n, warn)
	}
}

func renderNode(b *strings.Builder, n ir.ContentNode, warn WarnFunc) {
	switch v := n.(type) {
	case ir.Heading:
		b.WriteString(renderInlines(v.Inlines))
	case ir.Paragraph:
		b.WriteString(renderInlines(v.Inlines))
	case ir.List:
		renderList(b, v)
	case ir.Table:
		renderTable(b, v)
	case ir.BlockQuote:
		var inner strings.Builder
		renderNodes(&inner, v.Children, warn)
		for i, line := range strings.Split(inner.String(), "\n") {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("> ")
			b.WriteString(line)
		}
	case ir.CodeBlock:
		b.WriteString(v.Literal)
	case ir.Image:
		fmt.Fprintf(b, "[image: %s]", v.Alt)
	case ir.HorizontalRule:
		b.WriteString("---")
	case ir.RawPassthrough:
		if v.FormatTag == "xhtml" {
			b.WriteString(htmlutil.StripTags(v.Literal))
			return
		}
		if warn != nil {
			warn(fmt.Sprintf("plain text writer dropped unrecognised %s passthrough node", v.FormatTag))
		}
	default:
		if warn != nil {
			warn("plain text writer dropped unrecognised content node")
		}
	}
}

func renderList(b *strings.Builder, l ir.List) {
	for i, item := range l.Items {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := "- "
		if l.Ordered {
			marker = strconv.Itoa(i+1) + ". "
		}
		var inner strings.Builder
		renderNodes(&inner, item, nil)
		lines := strings.Split(inner.String(), "\n")
		for j, line := range lines {
			if j == 0 {
				b.WriteString(marker)
			} else {
				b.WriteString(strings.Repeat(" ", len(marker)))
			}
			b.WriteString(line)
			if j < len(lines)-1 {
				b.WriteByte('\n')
			}
		}
	}
}

func renderTable(b *strings.Builder, t ir.Table) {
	first := true
	if len(t.Header) > 0 {
		writeTabRow(b, t.Header)
		first = false
	}
	for _, row := range t.Rows {
		if !first {
			b.WriteByte('\n')
		}
		writeTabRow(b, row)
		first = false
	}
}

func writeTabRow(b *strings.Builder, cells [][]ir.InlineNode) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(renderInlines(cell))
	}
}

func renderInlines(inlines []ir.InlineNode) string {
	var b strings.Builder
	for _, n := range inlines {
		renderInline(&b, n)
	}
	return b.String()
}

func renderInline(b *strings.Builder, n ir.InlineNode) {
	switch v := n.(type) {
	case ir.Text:
		b.WriteString(v.Value)
	case ir.Emphasis:
		b.WriteString(renderInlines(v.Children))
	case ir.Strong:
		b.WriteString(renderInlines(v.Children))
	case ir.Code:
		b.WriteString(v.Value)
	case ir.Link:
		b.WriteString(renderInlines(v.Children))
	case ir.Superscript:
		b.WriteString(renderInlines(v.Children))
	case ir.Subscript:
		b.WriteString(renderInlines(v.Children))
	case ir.Ruby:
		b.WriteString(v.Base)
	case ir.LineBreak:
		b.WriteString("  \n")
	}
}
