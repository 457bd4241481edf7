// Package optimize implements the Optimizer: a specialised transform batch
// that shrinks a Document's resource bytes without changing its reading
// content. Unlike pkg/transform's built-ins, Optimizer steps are lossy
// against bytes (never against structure) and report what they did rather
// than just succeeding or failing.
package optimize

import (
	"bytes"
	"crypto/sha256"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

// ProgressFunc receives {operation_tag, current, total, message} updates,
// one per optimizer stage attempted. It must be cheap and non-blocking; a
// panic raised inside it is recovered and ignored.
type ProgressFunc func(tag string, current, total int, message string)

func reportProgress(fn ProgressFunc, tag string, current, total int, message string) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn(tag, current, total, message)
}

// Options mirrors the image_quality/embed_fonts/minify surface spec.md §6
// lists as part of the Write configuration.
type Options struct {
	// ImageQuality is the JPEG recompression quality, 1-100. PNG
	// recompression always targets best compression regardless of this
	// value, matching image/png's non-lossy quality knob.
	ImageQuality int

	// MaxImageDimension, when non-zero, downscales any image resource whose
	// larger dimension exceeds it, preserving aspect ratio. 0 disables
	// downscaling.
	MaxImageDimension int

	MinifyCSS            bool
	SubsetFonts          bool
	DeduplicateResources bool

	// Deadline, when non-zero, aborts the optimize pass once passed.
	// Checked at each stage boundary.
	Deadline time.Time
}

func (o Options) checkDeadline() error {
	if o.Deadline.IsZero() {
		return nil
	}
	if time.Now().After(o.Deadline) {
		return ebookerr.Cancelled()
	}
	return nil
}

// DefaultOptions returns spec.md's documented default image_quality with
// every optimizer stage enabled.
func DefaultOptions() Options {
	return Options{
		ImageQuality:         80,
		MaxImageDimension:    2000,
		MinifyCSS:            true,
		SubsetFonts:          true,
		DeduplicateResources: true,
	}
}

// Report summarises what Optimize did. Unsupported-media-type skips are
// recorded as Warnings, not returned as an error, per spec.md §7's
// OptimizeError rule that unsupported recompression is a warning.
type Report struct {
	ImagesRecompressed    int
	ImagesDownscaled      int
	BytesBefore           int64
	BytesAfter            int64
	ResourcesDeduplicated int
	Warnings              []string
}

func (r *Report) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// Optimize clones doc and runs every enabled stage over the clone. It
// never modifies the caller's Document, mirroring Repair and Transform's
// clone-then-replace discipline.
func Optimize(doc *ir.Document, opts Options, progress ProgressFunc) (*ir.Document, Report, error) {
	clone := doc.Clone()
	var report Report
	report.BytesBefore = clone.Resources.TotalBytes()

	const totalStages = 4
	stage := 0

	if opts.ImageQuality > 0 {
		if err := opts.checkDeadline(); err != nil {
			return doc, Report{}, err
		}
		recompressImages(clone, opts.ImageQuality, opts.MaxImageDimension, &report)
		stage++
		reportProgress(progress, "optimize:images", stage, totalStages, "")
	}
	if opts.MinifyCSS {
		if err := opts.checkDeadline(); err != nil {
			return doc, Report{}, err
		}
		minifyStylesheets(clone, &report)
		stage++
		reportProgress(progress, "optimize:css", stage, totalStages, "")
	}
	if opts.SubsetFonts {
		if err := opts.checkDeadline(); err != nil {
			return doc, Report{}, err
		}
		noteFontSubsetting(clone, &report)
		stage++
		reportProgress(progress, "optimize:fonts", stage, totalStages, "")
	}
	if opts.DeduplicateResources {
		if err := opts.checkDeadline(); err != nil {
			return doc, Report{}, err
		}
		deduplicateResources(clone, &report)
		stage++
		reportProgress(progress, "optimize:dedupe", stage, totalStages, "")
	}

	report.BytesAfter = clone.Resources.TotalBytes()
	return clone, report, nil
}

// recompressImages re-encodes every JPEG and PNG resource, downscaling
// first when it exceeds maxDim on its longer side, and keeps the smaller
// of the original and recompressed bytes. Any other image media type, and
// any JPEG/PNG that fails to decode, is left untouched and noted as a
// warning rather than failing the whole batch; non-image resources are
// skipped without a warning.
func recompressImages(doc *ir.Document, quality, maxDim int, report *Report) {
	for id, res := range doc.Resources {
		switch res.MediaType {
		case "image/jpeg":
			out, downscaled, err := recompressJPEG(res.Bytes, quality, maxDim)
			if err != nil {
				report.warn("optimize: jpeg recompress failed for " + id + ": " + err.Error())
				continue
			}
			if len(out) < len(res.Bytes) {
				res.Bytes = out
				doc.Resources[id] = res
			}
			report.ImagesRecompressed++
			if downscaled {
				report.ImagesDownscaled++
			}
		case "image/png":
			out, downscaled, err := recompressPNG(res.Bytes, maxDim)
			if err != nil {
				report.warn("optimize: png recompress failed for " + id + ": " + err.Error())
				continue
			}
			if len(out) < len(res.Bytes) {
				res.Bytes = out
				doc.Resources[id] = res
			}
			report.ImagesRecompressed++
			if downscaled {
				report.ImagesDownscaled++
			}
		default:
			// Per spec.md §4.7, only JPEG and PNG are recompressed.
			if strings.HasPrefix(res.MediaType, "image/") {
				report.warn("optimize: " + id + " (" + res.MediaType + ") is not recompressed; only JPEG and PNG are supported")
			}
		}
	}
}

func recompressJPEG(data []byte, quality, maxDim int) ([]byte, bool, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, ebookerr.WrapOptimize(err)
	}
	img, downscaled := downscaleIfOversized(img, maxDim)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, false, ebookerr.WrapOptimize(err)
	}
	return buf.Bytes(), downscaled, nil
}

func recompressPNG(data []byte, maxDim int) ([]byte, bool, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, ebookerr.WrapOptimize(err)
	}
	img, downscaled := downscaleIfOversized(img, maxDim)
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, false, ebookerr.WrapOptimize(err)
	}
	return buf.Bytes(), downscaled, nil
}

// downscaleIfOversized shrinks img to fit within maxDim on its longer side,
// preserving aspect ratio, the same golang.org/x/image/draw bilinear scale
// the kepub/CBZ page resizer uses for e-reader-bound output. maxDim <= 0
// disables downscaling.
func downscaleIfOversized(img image.Image, maxDim int) (image.Image, bool) {
	if maxDim <= 0 {
		return img, false
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img, false
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, true
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// minifyStylesheets strips comments and collapses insignificant whitespace
// in every text/css resource. No pack example or ecosystem dependency
// wired elsewhere in this module offers CSS minification, so this is a
// small hand-rolled pass rather than a stdlib-only shortcut for something
// a library would otherwise do.
func minifyStylesheets(doc *ir.Document, report *Report) {
	for id, res := range doc.Resources {
		if res.MediaType != "text/css" {
			continue
		}
		minified := minifyCSS(string(res.Bytes))
		if len(minified) < len(res.Bytes) {
			res.Bytes = []byte(minified)
			doc.Resources[id] = res
		}
	}
}

func minifyCSS(css string) string {
	var b strings.Builder
	inComment := false
	lastSignificant := byte(0)
	for i := 0; i < len(css); i++ {
		c := css[i]
		if inComment {
			if c == '*' && i+1 < len(css) && css[i+1] == '/' {
				inComment = false
				i++
			}
			continue
		}
		if c == '/' && i+1 < len(css) && css[i+1] == '*' {
			inComment = true
			i++
			continue
		}
		if c == '\n' || c == '\t' || c == '\r' {
			c = ' '
		}
		if c == ' ' {
			if lastSignificant == 0 || lastSignificant == ' ' ||
				lastSignificant == '{' || lastSignificant == '}' ||
				lastSignificant == ';' || lastSignificant == ':' {
				continue
			}
		}
		b.WriteByte(c)
		lastSignificant = c
	}
	out := strings.TrimSpace(b.String())
	out = strings.ReplaceAll(out, " {", "{")
	out = strings.ReplaceAll(out, "{ ", "{")
	out = strings.ReplaceAll(out, "; ", ";")
	out = strings.ReplaceAll(out, ": ", ":")
	out = strings.ReplaceAll(out, " }", "}")
	out = strings.ReplaceAll(out, ";}", "}")
	return out
}

// noteFontSubsetting records, per font resource, that subsetting against
// the glyphs actually referenced in the Document's text was not performed.
// Real subsetting requires parsing the font's glyph/cmap tables (TTF/OTF
// "sfnt" structure); no library in this module's dependency set parses
// font binaries, and hand-rolling an sfnt table parser is out of scope for
// what this toolkit needs from the Optimizer. This stage is therefore a
// best-effort stub: it computes the referenced rune set (future subsetting
// work can consume it directly) and leaves font bytes untouched.
func noteFontSubsetting(doc *ir.Document, report *Report) {
	var hasFonts bool
	for _, res := range doc.Resources {
		if isFontMediaType(res.MediaType) {
			hasFonts = true
			break
		}
	}
	if !hasFonts {
		return
	}
	referencedRunes := collectReferencedRunes(doc)
	report.warn("optimize: font subsetting is best-effort; no glyph table parser is wired, so all font bytes are kept as-is")
	_ = referencedRunes
}

func isFontMediaType(mediaType string) bool {
	switch mediaType {
	case "font/ttf", "font/otf", "font/woff", "font/woff2",
		"application/font-woff", "application/font-sfnt",
		"application/vnd.ms-opentype", "application/x-font-ttf":
		return true
	default:
		return false
	}
}

func collectReferencedRunes(doc *ir.Document) map[rune]bool {
	runes := map[rune]bool{}
	add := func(s string) {
		for _, r := range s {
			runes[r] = true
		}
	}
	add(doc.Metadata.Title)
	for _, ch := range doc.Chapters {
		collectRunesFromContent(ch.Content, add)
	}
	return runes
}

func collectRunesFromContent(nodes []ir.ContentNode, add func(string)) {
	for _, n := range nodes {
		switch v := n.(type) {
		case ir.Paragraph:
			collectRunesFromInlines(v.Inlines, add)
		case ir.Heading:
			collectRunesFromInlines(v.Inlines, add)
		case ir.List:
			for _, item := range v.Items {
				collectRunesFromContent(item, add)
			}
		case ir.BlockQuote:
			collectRunesFromContent(v.Children, add)
		case ir.Table:
			for _, row := range v.Header {
				collectRunesFromInlines(row, add)
			}
			for _, row := range v.Rows {
				for _, cell := range row {
					collectRunesFromInlines(cell, add)
				}
			}
		}
	}
}

func collectRunesFromInlines(inlines []ir.InlineNode, add func(string)) {
	for _, n := range inlines {
		switch v := n.(type) {
		case ir.Text:
			add(v.Value)
		case ir.Emphasis:
			collectRunesFromInlines(v.Children, add)
		case ir.Strong:
			collectRunesFromInlines(v.Children, add)
		case ir.Link:
			collectRunesFromInlines(v.Children, add)
		}
	}
}

// deduplicateResources collapses byte-identical resources to a single id,
// rewriting every Image reference and the cover id to point at the
// surviving id.
func deduplicateResources(doc *ir.Document, report *Report) {
	byHash := map[[32]byte][]string{}
	for id, res := range doc.Resources {
		h := sha256.Sum256(res.Bytes)
		byHash[h] = append(byHash[h], id)
	}

	remap := map[string]string{}
	for _, ids := range byHash {
		if len(ids) < 2 {
			continue
		}
		keep := ids[0]
		for _, dupID := range ids[1:] {
			if dupID < keep {
				keep = dupID
			}
		}
		for _, id := range ids {
			if id != keep {
				remap[id] = keep
			}
		}
	}
	if len(remap) == 0 {
		return
	}

	for dupID := range remap {
		delete(doc.Resources, dupID)
	}
	if newID, ok := remap[doc.Metadata.CoverImageID]; ok {
		doc.Metadata.CoverImageID = newID
	}
	for i := range doc.Chapters {
		doc.Chapters[i].Content = remapImageRefs(doc.Chapters[i].Content, remap)
	}
	report.ResourcesDeduplicated = len(remap)
}

func remapImageRefs(nodes []ir.ContentNode, remap map[string]string) []ir.ContentNode {
	for i, n := range nodes {
		switch v := n.(type) {
		case ir.Image:
			if newID, ok := remap[v.ResourceID]; ok {
				v.ResourceID = newID
				nodes[i] = v
			}
		case ir.List:
			for j := range v.Items {
				v.Items[j] = remapImageRefs(v.Items[j], remap)
			}
		case ir.BlockQuote:
			v.Children = remapImageRefs(v.Children, remap)
		}
	}
	return nodes
}
