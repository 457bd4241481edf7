package txt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/transform"
)

func TestWrite_RoundTripsBlankLineSeparatedParagraphs(t *testing.T) {
	doc, err := Read([]byte("A\n\nB"), DefaultReadOptions(), nil)
	require.NoError(t, err)

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "A\n\nB\n", string(out))
}

func TestWrite_EmptyDocumentProducesEmptyOutput(t *testing.T) {
	doc := ir.NewDocument()
	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestWrite_EmitsBOMWhenOriginHintSet(t *testing.T) {
	doc := ir.NewDocument()
	doc.Origin.HasBOM = true
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "hi"}}},
	}}}

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "\xef\xbb\xbfhi\n", string(out))
}

func TestWrite_ReportsProgressPerChapter(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{
		{ID: "ch1", Content: []ir.ContentNode{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "one"}}}}},
		{ID: "ch2", Content: []ir.ContentNode{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "two"}}}}},
	}
	var seen []string
	_, err := Write(doc, DefaultWriteOptions(), nil, func(tag string, current, total int, message string) {
		seen = append(seen, message)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ch1", "ch2"}, seen)
}

func TestWrite_DeadlineExceededAbortsWrite(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "one"}}}}}}
	opts := DefaultWriteOptions()
	opts.Deadline = time.Now().Add(-time.Second)
	_, err := Write(doc, opts, nil, nil)
	require.Error(t, err)
}

func TestWrite_EmitBOMOverridesOriginHint(t *testing.T) {
	doc := ir.NewDocument()
	doc.Origin.HasBOM = true
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "hi"}}},
	}}}

	no := false
	opts := DefaultWriteOptions()
	opts.EmitBOM = &no
	out, err := Write(doc, opts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(out))
}

func TestWrite_ListsGetMarkers(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.List{Ordered: false, Items: [][]ir.ContentNode{
			{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "first"}}}},
			{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "second"}}}},
		}},
	}}}

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "- first\n- second\n", string(out))
}

func TestWrite_OrderedListNumbersItems(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.List{Ordered: true, Items: [][]ir.ContentNode{
			{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "a"}}}},
			{ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "b"}}}},
		}},
	}}}

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "1. a\n2. b\n", string(out))
}

func TestWrite_TableFlattenedToTabSeparatedRows(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.Table{
			Header: [][]ir.InlineNode{
				{ir.Text{Value: "Name"}}, {ir.Text{Value: "Age"}},
			},
			Rows: [][][]ir.InlineNode{
				{{ir.Text{Value: "Alice"}}, {ir.Text{Value: "30"}}},
			},
		},
	}}}

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Name\tAge\nAlice\t30\n", string(out))
}

func TestWrite_ImageBecomesAltBracket(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.Image{ResourceID: "cover", Alt: "a cat"},
	}}}

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "[image: a cat]\n", string(out))
}

func TestWrite_RawPassthroughXHTMLIsStripped(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.RawPassthrough{FormatTag: "xhtml", Literal: "<div>raw <b>html</b></div>"},
	}}}

	out, err := Write(doc, DefaultWriteOptions(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "raw html\n", string(out))
}

func TestWrite_UnknownPassthroughDroppedWithWarning(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.RawPassthrough{FormatTag: "markdown-footnote", Literal: "[^1]"},
	}}}

	var warnings []string
	out, err := Write(doc, DefaultWriteOptions(), func(msg string) { warnings = append(warnings, msg) }, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, warnings, 1)
}

func TestWrite_AppliesTransformsAndLeavesOriginalUntouched(t *testing.T) {
	doc := ir.NewDocument()
	doc.Metadata.CoverImageID = "cover"
	doc.Chapters = []ir.Chapter{{ID: "content", Content: []ir.ContentNode{
		ir.Image{ResourceID: "cover", Alt: "cover"},
		ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "text"}}},
	}}}
	doc.Resources = ir.ResourceMap{"cover": {ID: "cover", MediaType: "image/jpeg"}}

	opts := DefaultWriteOptions()
	opts.Transforms = []transform.Transform{transform.StripImages()}
	out, err := Write(doc, opts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "text\n", string(out))
	assert.Contains(t, doc.Resources, "cover")
}
