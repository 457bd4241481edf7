// Package txt implements the Plain Text reader and writer: the simplest
// format pair in the toolkit, with no archive, manifest, or navigation
// structure to speak of.
package txt

import (
	"strings"
	"unicode/utf8"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/security"
)

// chapterID is the single stable chapter id every TXT Document uses. A
// plain-text source has no notion of chapters, so the whole file becomes
// one Chapter under this id.
const chapterID = "content"

// ReadOptions carries the security limits and encoding policy every reader
// accepts. Plain text has no cover or TOC concept, so ExtractCover and
// ParseTOC from the EPUB reader's options have no counterpart here.
type ReadOptions struct {
	Security security.Config
	Encoding encoding.Options
}

// DefaultReadOptions returns the spec's documented reader defaults.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Security: security.DefaultConfig(),
		Encoding: encoding.DefaultOptions(),
	}
}

// ProgressFunc receives {operation_tag, current, total, message} updates.
// It must be cheap and non-blocking; the core tolerates panics raised
// inside it by recovering and ignoring them.
type ProgressFunc func(tag string, current, total int, message string)

func reportProgress(fn ProgressFunc, tag string, current, total int, message string) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn(tag, current, total, message)
}

// Read parses raw plain-text bytes into a Document. Reading is complete: on
// any error, no partial Document is returned.
//
// UTF-8 is the canonical encoding. A leading BOM is stripped and recorded
// on Origin.HasBOM so the writer can round-trip it. Input that is not valid
// UTF-8 is reinterpreted as Latin-1, reported through progress as a
// warning; every byte sequence is valid Latin-1, so no input is rejected
// on encoding grounds.
func Read(data []byte, opts ReadOptions, progress ProgressFunc) (*ir.Document, error) {
	if int64(len(data)) > opts.Security.MaxResourceSizeBytes && opts.Security.MaxResourceSizeBytes > 0 {
		return nil, ebookerr.WrapSecurity(security.OversizedResource("content.txt", int64(len(data)), opts.Security.MaxResourceSizeBytes))
	}

	gate := security.NewGate(opts.Security)

	var text string
	hasBOM := false
	if utf8.Valid(data) {
		text = string(data)
	} else {
		reportProgress(progress, "txt:read:latin1-fallback", 0, 1, "input is not valid UTF-8; reinterpreting as Latin-1")
		text = latin1ToUTF8(data)
	}

	if stripped, found := encoding.StripBOM(text); found {
		text = stripped
		hasBOM = true
	}

	text = normalizeLineEndings(text)

	paragraphs := splitParagraphs(text)

	doc := ir.NewDocument()
	doc.Origin = ir.FormatOrigin{Format: "txt", HasBOM: hasBOM}

	content := make([]ir.ContentNode, 0, len(paragraphs))
	total := len(paragraphs)
	for i, p := range paragraphs {
		if err := gate.CheckDeadline(); err != nil {
			return nil, ebookerr.WrapSecurity(err)
		}
		inlines := paragraphInlines(p)
		if len(inlines) == 0 {
			continue
		}
		content = append(content, ir.Paragraph{Inlines: inlines})
		reportProgress(progress, "txt:read:paragraph", i+1, total, "")
	}

	doc.Chapters = []ir.Chapter{{ID: chapterID, Content: content}}

	normalizeDocument(doc, opts.Encoding)

	return doc, nil
}

// latin1ToUTF8 reinterprets each byte of data as a Latin-1 (ISO-8859-1)
// code point and re-encodes it as UTF-8; Latin-1's code points map
// one-to-one onto the first 256 Unicode code points, so this can never
// fail.
func latin1ToUTF8(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// normalizeLineEndings collapses CRLF and bare CR into LF.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// splitParagraphs splits s on blank-line boundaries: runs of two or more
// consecutive newlines.
func splitParagraphs(s string) []string {
	var paragraphs []string
	var cur strings.Builder
	newlineRun := 0

	flush := func() {
		if cur.Len() > 0 {
			paragraphs = append(paragraphs, cur.String())
			cur.Reset()
		}
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			newlineRun++
			if newlineRun >= 1 && i > 0 {
				flush()
			}
			continue
		}
		newlineRun = 0
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()

	return paragraphs
}

// paragraphInlines converts one paragraph's raw lines into inline nodes.
// Consecutive non-blank lines are joined by a space unless the preceding
// line ends with two trailing spaces, which spec.md's soft-line-break rule
// renders as an explicit LineBreak.
func paragraphInlines(p string) []ir.InlineNode {
	lines := strings.Split(p, "\n")
	var b strings.Builder
	var inlines []ir.InlineNode

	flushText := func() {
		if b.Len() > 0 {
			inlines = append(inlines, ir.Text{Value: b.String()})
			b.Reset()
		}
	}

	for i, line := range lines {
		soft := strings.HasSuffix(line, "  ")
		trimmed := strings.TrimRight(line, " ")
		b.WriteString(trimmed)
		if i < len(lines)-1 {
			if soft {
				flushText()
				inlines = append(inlines, ir.LineBreak{})
			} else {
				b.WriteByte(' ')
			}
		}
	}
	flushText()

	return inlines
}

func normalizeDocument(doc *ir.Document, opts encoding.Options) {
	for i := range doc.Chapters {
		for j, n := range doc.Chapters[i].Content {
			if para, ok := n.(ir.Paragraph); ok {
				para.Inlines = normalizeInlines(para.Inlines, opts)
				doc.Chapters[i].Content[j] = para
			}
		}
	}
}

func normalizeInlines(inlines []ir.InlineNode, opts encoding.Options) []ir.InlineNode {
	for i, n := range inlines {
		if t, ok := n.(ir.Text); ok {
			t.Value = encoding.Normalize(t.Value, opts)
			inlines[i] = t
		}
	}
	return inlines
}
