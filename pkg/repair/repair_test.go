package repair

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/validate"
)

func TestRepair_FixMetadataFillsTitleAndLanguage(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Heading{Level: 1, Inlines: []ir.InlineNode{ir.Text{Value: "My Book"}}},
	}}}

	fixed, report, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, "My Book", fixed.Metadata.Title)
	assert.Equal(t, "und", fixed.Metadata.Language)
	assert.Contains(t, report.FixesApplied, "fix_metadata")

	assert.Empty(t, doc.Metadata.Title, "original must be untouched")
}

func TestRepair_GenerateTOCFromHeadings(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Heading{Level: 1, Inlines: []ir.InlineNode{ir.Text{Value: "Part One"}}},
		ir.Heading{Level: 2, Inlines: []ir.InlineNode{ir.Text{Value: "Section A"}}},
	}}}

	fixed, _, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	require.Len(t, fixed.Toc, 1)
	assert.Equal(t, "Part One", fixed.Toc[0].Title)
	require.Len(t, fixed.Toc[0].Children, 1)
	assert.Equal(t, "Section A", fixed.Toc[0].Children[0].Title)
}

func TestRepair_FixLinksRemovesDanglingResourceAndTocEntries(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Image{ResourceID: "missing", Alt: "gone"},
		ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "kept"}}},
	}}}
	doc.Toc = []ir.TocEntry{{Title: "Ghost", Href: "ch2"}, {Title: "Real", Href: "ch1"}}

	fixed, report, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Len(t, fixed.Chapters[0].Content, 1)
	require.Len(t, fixed.Toc, 1)
	assert.Equal(t, "Real", fixed.Toc[0].Title)
	assert.Contains(t, report.FixesApplied, "fix_links")
}

func TestRepair_FixLinksRemapsToMatchingSlug(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{
		{ID: "chapter_0002.xhtml", Content: nil},
	}
	doc.Chapters[0].Content = []ir.ContentNode{
		ir.Paragraph{Inlines: []ir.InlineNode{
			ir.Link{Href: "old/chapter_0002.xhtml#note", Children: []ir.InlineNode{ir.Text{Value: "see there"}}},
		}},
	}

	fixed, _, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	para := fixed.Chapters[0].Content[0].(ir.Paragraph)
	link := para.Inlines[0].(ir.Link)
	assert.Equal(t, "chapter_0002.xhtml", link.Href)
}

func TestRepair_FixEncodingStripsInteriorBOM(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "hi\xef\xbb\xbfthere"}}},
	}}}

	fixed, _, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	para := fixed.Chapters[0].Content[0].(ir.Paragraph)
	assert.Equal(t, "hithere", para.Inlines[0].(ir.Text).Value)
}

func TestRepair_IsIdempotent(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Heading{Level: 1, Inlines: []ir.InlineNode{ir.Text{Value: "Title"}}},
		ir.Image{ResourceID: "missing"},
	}}}
	doc.Toc = []ir.TocEntry{{Title: "Ghost", Href: "nope"}}

	once, _, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	twice, _, err := Repair(once, DefaultOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestRepair_ResolvesValidatorIssues(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Image{ResourceID: "missing"},
	}}}

	fixed, _, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	issues := validate.Validate(fixed, validate.DefaultOptions())
	for _, i := range issues {
		assert.NotEqual(t, "IR-DANGLING-RESOURCE", i.Code)
	}
}

func TestRepair_FixXMLReserializesMalformedFragment(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.RawPassthrough{FormatTag: "xhtml", Literal: "<span>unterminated"},
	}}}

	fixed, _, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	raw := fixed.Chapters[0].Content[0].(ir.RawPassthrough)
	assert.Contains(t, raw.Literal, "</span>")
}

func TestRepair_FixZipReportedOnlyWhenArchiveWasRepaired(t *testing.T) {
	doc := ir.NewDocument()
	doc.Origin.ArchiveRepaired = true

	_, report, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Contains(t, report.FixesApplied, "fix_zip")
}

func TestRepair_FixZipNotReportedWhenArchiveWasNotRepaired(t *testing.T) {
	doc := ir.NewDocument()

	_, report, err := Repair(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.NotContains(t, report.FixesApplied, "fix_zip")

	opts := DefaultOptions()
	opts.FixZip = false
	_, report2, err := Repair(doc, opts, nil)
	require.NoError(t, err)
	assert.NotContains(t, report2.FixesApplied, "fix_zip")
}

func TestRepair_ReportsProgressPerAction(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Heading{Level: 1, Inlines: []ir.InlineNode{ir.Text{Value: "Title"}}},
	}}}

	var tags []string
	_, _, err := Repair(doc, DefaultOptions(), func(tag string, current, total int, message string) {
		tags = append(tags, tag)
	})
	require.NoError(t, err)
	assert.Contains(t, tags, "repair:fix_metadata")
}

func TestRepair_DeadlineExceededAbortsRepair(t *testing.T) {
	doc := ir.NewDocument()
	opts := DefaultOptions()
	opts.Deadline = time.Now().Add(-time.Second)
	_, _, err := Repair(doc, opts, nil)
	require.Error(t, err)
}
