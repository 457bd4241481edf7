package epub

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/transform"
)

func sampleWriteDoc() *ir.Document {
	doc := ir.NewDocument()
	doc.Metadata.Title = "Written Book"
	doc.Metadata.Authors = []ir.Author{{Name: "A. Writer"}}
	doc.Metadata.Language = "en"
	doc.Metadata.CoverImageID = "cover"
	doc.Chapters = []ir.Chapter{
		{ID: "ch1", Title: "Chapter One", Content: []ir.ContentNode{
			ir.Heading{Level: 1, Inlines: []ir.InlineNode{ir.Text{Value: "Chapter One"}}},
			ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "Once upon a time."}}},
			ir.Image{ResourceID: "cover", Alt: "cover art"},
		}},
		{ID: "ch2", Title: "Chapter Two", Content: []ir.ContentNode{
			ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: "The end."}}},
		}},
	}
	doc.Toc = []ir.TocEntry{
		{Title: "Chapter One", Href: "ch1"},
		{Title: "Chapter Two", Href: "ch2"},
	}
	doc.Resources = ir.ResourceMap{
		"cover": {ID: "cover", MediaType: "image/jpeg", Bytes: bytes.Repeat([]byte{0xFF, 0xD8}, 5)},
	}
	return doc
}

func TestWrite_ProducesValidMimetypeAndReadsBack(t *testing.T) {
	doc := sampleWriteDoc()
	data, err := Write(doc, DefaultWriteOptions(), nil)
	require.NoError(t, err)

	back, err := Read(bytes.NewReader(data), int64(len(data)), DefaultReadOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Written Book", back.Metadata.Title)
	require.Len(t, back.Metadata.Authors, 1)
	assert.Equal(t, "A. Writer", back.Metadata.Authors[0].Name)
	require.Len(t, back.Chapters, 2)
	require.Len(t, back.Toc, 2)
	assert.Equal(t, "Chapter One", back.Toc[0].Title)
	assert.Equal(t, back.Chapters[0].ID, back.Toc[0].ChapterID(), "TOC hrefs must resolve to the written chapter ids")
	assert.Contains(t, back.Resources, "res-cover")
	assert.Equal(t, "res-cover", back.Metadata.CoverImageID)
}

func TestWrite_EPUB2OmitsNavXHTML(t *testing.T) {
	doc := sampleWriteDoc()
	opts := DefaultWriteOptions()
	opts.Version = "2.0"
	data, err := Write(doc, opts, nil)
	require.NoError(t, err)

	zr := openZip(t, data)
	assert.Nil(t, findFile(zr, "OEBPS/nav.xhtml"))
	assert.NotNil(t, findFile(zr, "OEBPS/toc.ncx"))
}

func TestWrite_MimetypeFirstAndStored(t *testing.T) {
	doc := sampleWriteDoc()
	data, err := Write(doc, DefaultWriteOptions(), nil)
	require.NoError(t, err)

	zr := openZip(t, data)
	require.NotEmpty(t, zr.File)
	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, uint16(0), uint16(first.Method)) // zip.Store == 0
}

func TestWrite_AppliesTransforms(t *testing.T) {
	doc := sampleWriteDoc()
	opts := DefaultWriteOptions()
	opts.Transforms = []transform.Transform{transform.StripImages()}
	data, err := Write(doc, opts, nil)
	require.NoError(t, err)

	back, err := Read(bytes.NewReader(data), int64(len(data)), DefaultReadOptions(), nil)
	require.NoError(t, err)
	assert.NotContains(t, back.Resources, "res-cover")
	assert.Empty(t, back.Metadata.CoverImageID)

	// original untouched
	assert.Equal(t, "cover", doc.Metadata.CoverImageID)
}

func TestWrite_ReportsProgressPerChapterAndResource(t *testing.T) {
	doc := sampleWriteDoc()
	var tags []string
	_, err := Write(doc, DefaultWriteOptions(), func(tag string, current, total int, message string) {
		tags = append(tags, tag)
	})
	require.NoError(t, err)
	assert.Contains(t, tags, "epub:write:chapter")
	assert.Contains(t, tags, "epub:write:resource")
}

func TestWrite_DeadlineExceededAbortsWrite(t *testing.T) {
	doc := sampleWriteDoc()
	opts := DefaultWriteOptions()
	opts.Deadline = time.Now().Add(-time.Second)
	_, err := Write(doc, opts, nil)
	require.Error(t, err)
}

func TestWrite_RoundTripDoesNotMutateOriginal(t *testing.T) {
	doc := sampleWriteDoc()
	titleBefore := doc.Metadata.Title
	_, err := Write(doc, DefaultWriteOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, titleBefore, doc.Metadata.Title)
	assert.Len(t, doc.Chapters, 2)
}
