package optimize

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/ir"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sampleJPEG(t *testing.T, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func TestOptimize_RecompressesJPEGAtLowerQuality(t *testing.T) {
	doc := ir.NewDocument()
	doc.Resources["img1"] = ir.Resource{ID: "img1", MediaType: "image/jpeg", Bytes: sampleJPEG(t, 100)}

	opts := DefaultOptions()
	opts.ImageQuality = 10
	opts.MinifyCSS = false
	opts.SubsetFonts = false
	opts.DeduplicateResources = false

	fixed, report, err := Optimize(doc, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImagesRecompressed)
	assert.Less(t, len(fixed.Resources["img1"].Bytes), len(doc.Resources["img1"].Bytes))
}

func TestOptimize_DownscalesOversizedImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))

	doc := ir.NewDocument()
	doc.Resources["img1"] = ir.Resource{ID: "img1", MediaType: "image/jpeg", Bytes: buf.Bytes()}

	opts := DefaultOptions()
	opts.MaxImageDimension = 100
	opts.MinifyCSS = false
	opts.SubsetFonts = false
	opts.DeduplicateResources = false

	fixed, report, err := Optimize(doc, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImagesDownscaled)

	decoded, err := jpeg.Decode(bytes.NewReader(fixed.Resources["img1"].Bytes))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())
}

func TestOptimize_LeavesUnknownMediaTypeUntouched(t *testing.T) {
	doc := ir.NewDocument()
	doc.Resources["font1"] = ir.Resource{ID: "font1", MediaType: "font/ttf", Bytes: []byte("not a real font but bytes")}

	fixed, report, err := Optimize(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, doc.Resources["font1"].Bytes, fixed.Resources["font1"].Bytes)
	assert.NotEmpty(t, report.Warnings)
}

func TestOptimize_MinifiesCSS(t *testing.T) {
	doc := ir.NewDocument()
	css := "body {\n  margin: 0;\n  /* comment */\n  color: red;\n}\n"
	doc.Resources["style"] = ir.Resource{ID: "style", MediaType: "text/css", Bytes: []byte(css)}

	fixed, _, err := Optimize(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	minified := string(fixed.Resources["style"].Bytes)
	assert.NotContains(t, minified, "/* comment */")
	assert.Less(t, len(minified), len(css))
}

func TestOptimize_DeduplicatesByteIdenticalResources(t *testing.T) {
	doc := ir.NewDocument()
	data := []byte("identical bytes")
	doc.Resources["a"] = ir.Resource{ID: "a", MediaType: "image/png", Bytes: data}
	doc.Resources["b"] = ir.Resource{ID: "b", MediaType: "image/png", Bytes: data}
	doc.Chapters = []ir.Chapter{{ID: "ch1", Content: []ir.ContentNode{
		ir.Image{ResourceID: "a"},
		ir.Image{ResourceID: "b"},
	}}}
	doc.Metadata.CoverImageID = "b"

	opts := DefaultOptions()
	opts.ImageQuality = 0 // avoid decode failures on fake PNG bytes
	fixed, report, err := Optimize(doc, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ResourcesDeduplicated)
	assert.Len(t, fixed.Resources, 1)

	img0 := fixed.Chapters[0].Content[0].(ir.Image)
	img1 := fixed.Chapters[0].Content[1].(ir.Image)
	assert.Equal(t, img0.ResourceID, img1.ResourceID)
	assert.Equal(t, img0.ResourceID, fixed.Metadata.CoverImageID)
}

func TestOptimize_DoesNotMutateOriginalDocument(t *testing.T) {
	doc := ir.NewDocument()
	doc.Resources["img1"] = ir.Resource{ID: "img1", MediaType: "image/png", Bytes: samplePNG(t)}

	before := doc.Clone()
	_, _, err := Optimize(doc, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, before.Resources["img1"].Bytes, doc.Resources["img1"].Bytes)
}

func TestOptimize_ReportsProgressPerStage(t *testing.T) {
	doc := ir.NewDocument()
	doc.Resources["img1"] = ir.Resource{ID: "img1", MediaType: "image/jpeg", Bytes: sampleJPEG(t, 100)}

	var tags []string
	_, _, err := Optimize(doc, DefaultOptions(), func(tag string, current, total int, message string) {
		tags = append(tags, tag)
	})
	require.NoError(t, err)
	assert.Contains(t, tags, "optimize:images")
	assert.Contains(t, tags, "optimize:dedupe")
}

func TestOptimize_DeadlineExceededAbortsOptimize(t *testing.T) {
	doc := ir.NewDocument()
	doc.Resources["img1"] = ir.Resource{ID: "img1", MediaType: "image/jpeg", Bytes: sampleJPEG(t, 100)}

	opts := DefaultOptions()
	opts.Deadline = time.Now().Add(-time.Second)
	_, _, err := Optimize(doc, opts, nil)
	require.Error(t, err)
}
