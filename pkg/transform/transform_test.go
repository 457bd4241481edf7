package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

func sampleDoc() *ir.Document {
	doc := ir.NewDocument()
	doc.Metadata.Title = "Original Title"
	doc.Metadata.CoverImageID = "cover"
	doc.Chapters = []ir.Chapter{
		{ID: "ch1", Content: []ir.ContentNode{
			ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: `She said "hi"`}}},
			ir.Image{ResourceID: "cover", Alt: "cover art"},
		}},
	}
	doc.Resources = ir.ResourceMap{
		"cover": {ID: "cover", MediaType: "image/jpeg", Bytes: []byte{1}},
		"style": {ID: "style", MediaType: "text/css", Bytes: []byte("body{}")},
	}
	return doc
}

func TestApply_SequenceAndRollback(t *testing.T) {
	doc := sampleDoc()
	out, err := Apply(doc, []Transform{StripImages(), StripStyles()})
	require.NoError(t, err)

	assert.Empty(t, out.Metadata.CoverImageID)
	assert.NotContains(t, out.Resources, "cover")
	assert.NotContains(t, out.Resources, "style")
	assert.Equal(t, "Original Title", doc.Metadata.Title, "original must be untouched")
	assert.Contains(t, doc.Resources, "cover", "original resources must be untouched")
}

func TestApply_FailureAbortsPipeline(t *testing.T) {
	doc := sampleDoc()
	failing := Func{FuncName: "AlwaysFails", Fn: func(d *ir.Document) (*ir.Document, error) {
		return nil, assert.AnError
	}}
	_, err := Apply(doc, []Transform{StripImages(), failing})
	require.Error(t, err)
}

func TestStripImages_RemovesNestedOccurrences(t *testing.T) {
	doc := ir.NewDocument()
	doc.Chapters = []ir.Chapter{
		{ID: "ch1", Content: []ir.ContentNode{
			ir.List{Items: [][]ir.ContentNode{
				{ir.Image{ResourceID: "img1"}},
			}},
		}},
	}
	doc.Resources = ir.ResourceMap{"img1": {ID: "img1", MediaType: "image/png"}}

	out, err := StripImages().Apply(doc)
	require.NoError(t, err)
	list := out.Chapters[0].Content[0].(ir.List)
	assert.Empty(t, list.Items[0])
}

func TestInjectWatermark(t *testing.T) {
	doc := sampleDoc()
	out, err := InjectWatermark("sample copy").Apply(doc)
	require.NoError(t, err)
	last := out.Chapters[0].Content[len(out.Chapters[0].Content)-1]
	para, ok := last.(ir.Paragraph)
	require.True(t, ok)
	emph, ok := para.Inlines[0].(ir.Emphasis)
	require.True(t, ok)
	text, ok := emph.Children[0].(ir.Text)
	require.True(t, ok)
	assert.Equal(t, "sample copy", text.Value)
}

func TestSmartQuotes(t *testing.T) {
	doc := sampleDoc()
	out, err := SmartQuotes(true).Apply(doc)
	require.NoError(t, err)
	para := out.Chapters[0].Content[0].(ir.Paragraph)
	text := para.Inlines[0].(ir.Text)
	assert.Equal(t, "She said “hi”", text.Value)
}

func TestSmartQuotes_Off(t *testing.T) {
	doc := sampleDoc()
	out, err := SmartQuotes(false).Apply(doc)
	require.NoError(t, err)
	para := out.Chapters[0].Content[0].(ir.Paragraph)
	text := para.Inlines[0].(ir.Text)
	assert.Equal(t, `She said "hi"`, text.Value)
}

func TestNormalizeUnicode(t *testing.T) {
	doc := sampleDoc()
	out, err := NormalizeUnicode(encoding.NFC).Apply(doc)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestScript_RewritesTitle(t *testing.T) {
	doc := sampleDoc()
	script := Script{
		ScriptName: "uppercase-title",
		Source: `function transform(doc) {
			doc.title = doc.title.toUpperCase();
			return doc;
		}`,
	}
	out, err := script.Apply(doc)
	require.NoError(t, err)
	assert.Equal(t, "ORIGINAL TITLE", out.Metadata.Title)
}

func TestScript_MissingFunction(t *testing.T) {
	doc := sampleDoc()
	script := Script{Source: `var x = 1;`}
	_, err := script.Apply(doc)
	assert.Error(t, err)
}
