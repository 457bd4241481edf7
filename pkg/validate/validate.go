// Package validate implements the Validator: a pure, total function from a
// Document (or format-specific bytes) to a list of ValidationIssues. It
// never mutates its input and never fails except on I/O.
package validate

import (
	"fmt"

	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/identifiers"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

// Severity classifies a ValidationIssue. Strict mode promotes Warning to
// Error in the caller's decision; the issue list itself never changes.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one finding from a validation pass. Code is a stable,
// machine-readable string such as "IR-DANGLING-RESOURCE"; Location, when
// non-empty, names the chapter/resource/TOC entry the issue concerns.
type Issue struct {
	Severity    Severity
	Code        string
	Message     string
	Location    string
	AutoFixable bool
}

// WCAGLevel is the accessibility conformance target checked when
// Options.Accessibility is set.
type WCAGLevel string

const (
	WCAGLevelA   WCAGLevel = "A"
	WCAGLevelAA  WCAGLevel = "AA"
	WCAGLevelAAA WCAGLevel = "AAA"
)

// Options controls which checks Validate runs. Strict does not change the
// issue list; it is documented here purely so callers see it alongside the
// other validate-surface options per spec.md §6.
type Options struct {
	Strict        bool
	Accessibility bool
	WCAGLevel     WCAGLevel
	Encoding      encoding.Options
}

// DefaultOptions returns the spec's documented validator defaults.
func DefaultOptions() Options {
	return Options{
		WCAGLevel: WCAGLevelAA,
		Encoding:  encoding.DefaultOptions(),
	}
}

// Validate runs every IR-level, accessibility, and encoding check that
// applies to doc. It is pure and total: doc is never modified and the same
// inputs always produce an equal issue list.
func Validate(doc *ir.Document, opts Options) []Issue {
	var issues []Issue

	issues = append(issues, checkChapterIDs(doc)...)
	issues = append(issues, checkTocHrefs(doc)...)
	issues = append(issues, checkResourceReferences(doc)...)
	issues = append(issues, checkCover(doc)...)
	issues = append(issues, checkHeadingsAndTables(doc)...)
	issues = append(issues, checkEncoding(doc, opts.Encoding)...)
	issues = append(issues, checkIdentifiers(doc)...)

	if opts.Accessibility {
		issues = append(issues, checkAccessibility(doc, opts.WCAGLevel)...)
	}

	return issues
}

func checkChapterIDs(doc *ir.Document) []Issue {
	var issues []Issue
	seen := map[string]int{}
	for _, ch := range doc.Chapters {
		seen[ch.ID]++
	}
	for id, count := range seen {
		if count > 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     "IR-DUPLICATE-CHAPTER-ID",
				Message:  fmt.Sprintf("chapter id %q is used by %d chapters", id, count),
				Location: id,
			})
		}
	}
	return issues
}

func checkTocHrefs(doc *ir.Document) []Issue {
	var issues []Issue
	ir.Walk(doc.Toc, func(entry ir.TocEntry) {
		if doc.ChapterByID(entry.ChapterID()) == nil {
			issues = append(issues, Issue{
				Severity:    SeverityError,
				Code:        "IR-DANGLING-TOC-HREF",
				Message:     fmt.Sprintf("TOC entry %q references chapter id %q, which does not exist", entry.Title, entry.ChapterID()),
				Location:    entry.Href,
				AutoFixable: true,
			})
		}
	})
	return issues
}

func checkResourceReferences(doc *ir.Document) []Issue {
	var issues []Issue
	for _, ch := range doc.Chapters {
		walkImages(ch.Content, func(img ir.Image) {
			if _, ok := doc.Resources[img.ResourceID]; !ok {
				issues = append(issues, Issue{
					Severity:    SeverityError,
					Code:        "IR-DANGLING-RESOURCE",
					Message:     fmt.Sprintf("image in chapter %q references missing resource id %q", ch.ID, img.ResourceID),
					Location:    ch.ID,
					AutoFixable: true,
				})
			}
		})
	}
	return issues
}

func walkImages(nodes []ir.ContentNode, fn func(ir.Image)) {
	for _, n := range nodes {
		switch v := n.(type) {
		case ir.Image:
			fn(v)
		case ir.List:
			for _, item := range v.Items {
				walkImages(item, fn)
			}
		case ir.BlockQuote:
			walkImages(v.Children, fn)
		}
	}
}

func checkCover(doc *ir.Document) []Issue {
	if doc.Metadata.CoverImageID == "" {
		return nil
	}
	if _, ok := doc.Resources[doc.Metadata.CoverImageID]; !ok {
		return []Issue{{
			Severity:    SeverityError,
			Code:        "IR-DANGLING-COVER",
			Message:     fmt.Sprintf("cover image id %q does not resolve to a resource", doc.Metadata.CoverImageID),
			AutoFixable: true,
		}}
	}
	return nil
}

func checkHeadingsAndTables(doc *ir.Document) []Issue {
	var issues []Issue
	for _, ch := range doc.Chapters {
		walkContentNodes(ch.Content, func(n ir.ContentNode) {
			switch v := n.(type) {
			case ir.Heading:
				if v.Level < 1 || v.Level > 6 {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Code:     "IR-INVALID-HEADING-LEVEL",
						Message:  fmt.Sprintf("heading level %d is outside [1,6]", v.Level),
						Location: ch.ID,
					})
				}
			case ir.Table:
				width := len(v.Header)
				for i, row := range v.Rows {
					if width == 0 {
						width = len(row)
						continue
					}
					if len(row) != width {
						issues = append(issues, Issue{
							Severity: SeverityError,
							Code:     "IR-INVALID-TABLE-SHAPE",
							Message:  fmt.Sprintf("table row %d has %d cells, expected %d", i, len(row), width),
							Location: ch.ID,
						})
					}
				}
			}
		})
	}
	return issues
}

func walkContentNodes(nodes []ir.ContentNode, fn func(ir.ContentNode)) {
	for _, n := range nodes {
		fn(n)
		switch v := n.(type) {
		case ir.List:
			for _, item := range v.Items {
				walkContentNodes(item, fn)
			}
		case ir.BlockQuote:
			walkContentNodes(v.Children, fn)
		}
	}
}

func checkEncoding(doc *ir.Document, opts encoding.Options) []Issue {
	var issues []Issue
	check := func(location, s string) {
		if s == "" {
			return
		}
		if encoding.Normalize(s, opts) != s {
			issues = append(issues, Issue{
				Severity:    SeverityWarning,
				Code:        "ENCODING-NOT-NORMALIZED",
				Message:     "text is not in the configured normalisation form",
				Location:    location,
				AutoFixable: true,
			})
		}
	}

	check("metadata.title", doc.Metadata.Title)
	check("metadata.description", doc.Metadata.Description)
	for _, ch := range doc.Chapters {
		walkContentNodes(ch.Content, func(n ir.ContentNode) {
			for _, txt := range flattenTexts(n) {
				check(ch.ID, txt)
			}
		})
	}
	return issues
}

func flattenTexts(n ir.ContentNode) []string {
	var out []string
	switch v := n.(type) {
	case ir.Paragraph:
		out = append(out, flattenInlineTexts(v.Inlines)...)
	case ir.Heading:
		out = append(out, flattenInlineTexts(v.Inlines)...)
	}
	return out
}

func flattenInlineTexts(inlines []ir.InlineNode) []string {
	var out []string
	for _, n := range inlines {
		switch v := n.(type) {
		case ir.Text:
			out = append(out, v.Value)
		case ir.Emphasis:
			out = append(out, flattenInlineTexts(v.Children)...)
		case ir.Strong:
			out = append(out, flattenInlineTexts(v.Children)...)
		case ir.Link:
			out = append(out, flattenInlineTexts(v.Children)...)
		}
	}
	return out
}

func checkIdentifiers(doc *ir.Document) []Issue {
	var issues []Issue
	if doc.Metadata.ISBN10 != "" && !identifiers.ValidateISBN10(identifiers.NormalizeISBN(doc.Metadata.ISBN10)) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     "METADATA-INVALID-ISBN10",
			Message:  fmt.Sprintf("ISBN-10 %q fails its checksum", doc.Metadata.ISBN10),
			Location: "metadata.isbn10",
		})
	}
	if doc.Metadata.ISBN13 != "" && !identifiers.ValidateISBN13(identifiers.NormalizeISBN(doc.Metadata.ISBN13)) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     "METADATA-INVALID-ISBN13",
			Message:  fmt.Sprintf("ISBN-13 %q fails its checksum", doc.Metadata.ISBN13),
			Location: "metadata.isbn13",
		})
	}
	return issues
}

func checkAccessibility(doc *ir.Document, level WCAGLevel) []Issue {
	var issues []Issue

	if doc.Metadata.Language == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     "A11Y-MISSING-LANGUAGE",
			Message:  "document has no language tag",
		})
	} else if !encoding.ValidBCP47(doc.Metadata.Language) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     "A11Y-INVALID-LANGUAGE-TAG",
			Message:  fmt.Sprintf("language tag %q is not valid BCP-47", doc.Metadata.Language),
		})
	}

	for _, ch := range doc.Chapters {
		lastLevel := 0
		walkContentNodes(ch.Content, func(n ir.ContentNode) {
			switch v := n.(type) {
			case ir.Image:
				if v.Alt == "" {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Code:     "A11Y-MISSING-ALT-TEXT",
						Message:  "image has no alt text",
						Location: ch.ID,
					})
				}
			case ir.Heading:
				if lastLevel > 0 && v.Level > lastLevel+1 {
					issues = append(issues, Issue{
						Severity: SeverityWarning,
						Code:     "A11Y-SKIPPED-HEADING-LEVEL",
						Message:  fmt.Sprintf("heading level jumps from %d to %d", lastLevel, v.Level),
						Location: ch.ID,
					})
				}
				lastLevel = v.Level
			}
		})
	}

	if level == WCAGLevelAAA {
		issues = append(issues, checkTocOrderMatchesHeadings(doc)...)
	}

	return issues
}

func checkTocOrderMatchesHeadings(doc *ir.Document) []Issue {
	var issues []Issue
	var tocOrder []string
	ir.Walk(doc.Toc, func(e ir.TocEntry) { tocOrder = append(tocOrder, e.ChapterID()) })

	var chapterOrder []string
	for _, ch := range doc.Chapters {
		chapterOrder = append(chapterOrder, ch.ID)
	}

	seen := map[string]bool{}
	var filteredChapterOrder []string
	for _, id := range chapterOrder {
		if !seen[id] {
			seen[id] = true
			filteredChapterOrder = append(filteredChapterOrder, id)
		}
	}

	seenToc := map[string]bool{}
	var filteredTocOrder []string
	for _, id := range tocOrder {
		if !seenToc[id] {
			seenToc[id] = true
			filteredTocOrder = append(filteredTocOrder, id)
		}
	}

	if len(filteredTocOrder) == len(filteredChapterOrder) {
		for i := range filteredTocOrder {
			if filteredTocOrder[i] != filteredChapterOrder[i] {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Code:     "A11Y-TOC-ORDER-MISMATCH",
					Message:  "TOC order does not match chapter/heading order",
				})
				break
			}
		}
	}

	return issues
}
