// Package pipeline is the small format-dispatch layer spec.md §9's design
// notes call for: "a small set of tagged variants plus a dispatch table
// keyed by format" rather than an inheritance hierarchy of reader/writer
// types. It also implements Run, the end-to-end orchestration spec.md §5
// requires to be strict: reader, then transforms, then writer, with no
// other ordering permitted within one pipeline invocation.
package pipeline

import (
	"io"
	"time"

	"github.com/folioglyph/folioglyph/pkg/detect"
	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/epub"
	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/optimize"
	"github.com/folioglyph/folioglyph/pkg/repair"
	"github.com/folioglyph/folioglyph/pkg/security"
	"github.com/folioglyph/folioglyph/pkg/transform"
	"github.com/folioglyph/folioglyph/pkg/txt"
	"github.com/folioglyph/folioglyph/pkg/unsupported"
	"github.com/folioglyph/folioglyph/pkg/validate"
)

// ProgressFunc receives {operation_tag, current, total, message} updates
// from whichever reader or writer is dispatched to; the core tolerates
// panics raised inside it.
type ProgressFunc func(tag string, current, total int, message string)

// ReadOptions is the format-agnostic surface every registered Reader
// accepts; Run and Read translate it into each format's own option type.
type ReadOptions struct {
	Security     security.Config
	Encoding     encoding.Options
	ExtractCover bool
	ParseTOC     bool
}

// DefaultReadOptions mirrors the per-format DefaultReadOptions constructors.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Security:     security.DefaultConfig(),
		Encoding:     encoding.DefaultOptions(),
		ExtractCover: true,
		ParseTOC:     true,
	}
}

// WriteOptions is the format-agnostic write surface from spec.md §6:
// image_quality, target EPUB version, embed_fonts, minify, and an ordered
// transform list. The registered writers apply only EPUBVersion (EPUB
// output), Transforms and Deadline; ImageQuality, EmbedFonts and Minify
// are carried but no writer reads them (recompression quality is set
// through optimize.Options instead). Transforms are applied by Run before
// optimize, or by the writer immediately before serialisation when Write
// is called directly.
type WriteOptions struct {
	EPUBVersion  string
	ImageQuality int
	EmbedFonts   bool
	Minify       bool
	Transforms   []transform.Transform

	// Deadline, when non-zero, is forwarded to the dispatched Writer.
	Deadline time.Time
}

// DefaultWriteOptions returns EPUBVersion "3.0", ImageQuality 80 and Minify
// true with no transforms; see WriteOptions for which of these fields the
// writers apply.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		EPUBVersion:  "3.0",
		ImageQuality: 80,
		Minify:       true,
	}
}

// Reader reads a Document from a seekable byte source of the given size.
type Reader func(r io.ReaderAt, size int64, opts ReadOptions, progress ProgressFunc) (*ir.Document, error)

// Writer serialises a Document into bytes for its format. progress may be
// nil.
type Writer func(doc *ir.Document, opts WriteOptions, progress ProgressFunc) ([]byte, error)

var readers = map[detect.Format]Reader{
	detect.FormatEPUB: readEPUB,
	detect.FormatText: readTXT,
}

var writers = map[detect.Format]Writer{
	detect.FormatEPUB: writeEPUB,
	detect.FormatText: writeTXT,
}

func readEPUB(r io.ReaderAt, size int64, opts ReadOptions, progress ProgressFunc) (*ir.Document, error) {
	return epub.Read(r, size, epub.ReadOptions{
		Security:     opts.Security,
		Encoding:     opts.Encoding,
		ExtractCover: opts.ExtractCover,
		ParseTOC:     opts.ParseTOC,
	}, epub.ProgressFunc(progress))
}

func readTXT(r io.ReaderAt, size int64, opts ReadOptions, progress ProgressFunc) (*ir.Document, error) {
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, ebookerr.WrapRead("txt", err)
	}
	return txt.Read(data, txt.ReadOptions{Security: opts.Security, Encoding: opts.Encoding}, txt.ProgressFunc(progress))
}

func writeEPUB(doc *ir.Document, opts WriteOptions, progress ProgressFunc) ([]byte, error) {
	return epub.Write(doc, epub.WriteOptions{
		Version:    opts.EPUBVersion,
		Transforms: opts.Transforms,
		Deadline:   opts.Deadline,
	}, epub.ProgressFunc(progress))
}

func writeTXT(doc *ir.Document, opts WriteOptions, progress ProgressFunc) ([]byte, error) {
	return txt.Write(doc, txt.WriteOptions{
		Transforms: opts.Transforms,
		Deadline:   opts.Deadline,
	}, nil, txt.ProgressFunc(progress))
}

// Read dispatches to the registered Reader for format, or to the
// UnsupportedFormat stub when no reader is registered.
func Read(format detect.Format, r io.ReaderAt, size int64, opts ReadOptions, progress ProgressFunc) (*ir.Document, error) {
	if fn, ok := readers[format]; ok {
		return fn(r, size, opts, progress)
	}
	return unsupported.Read(string(format), r, size)
}

// Write dispatches to the registered Writer for format, or to the
// UnsupportedFormat stub when no writer is registered. progress may be nil.
func Write(format detect.Format, doc *ir.Document, opts WriteOptions, progress ProgressFunc) ([]byte, error) {
	if fn, ok := writers[format]; ok {
		return fn(doc, opts, progress)
	}
	return unsupported.Write(string(format), doc)
}

// RunOptions bundles every optional middle-stage operation Run may apply
// between reading and writing, in the fixed order validate, repair,
// transforms, optimize — matching spec.md §5's "reader → transforms →
// writer is strict" ordering, with validate/repair/optimize as the
// caller-selected operators spec.md §2 places around that core arrow.
type RunOptions struct {
	Read     ReadOptions
	Write    WriteOptions
	Validate *validate.Options
	Repair   *repair.Options
	Optimize *optimize.Options
}

// RunResult carries every middle-stage report Run produced, alongside the
// written bytes, so a caller can inspect what happened without re-running
// individual stages itself.
type RunResult struct {
	Output         []byte
	ValidateIssues []validate.Issue
	RepairReport   repair.Report
	OptimizeReport optimize.Report
}

// Run executes one full pipeline invocation: detect (if format is empty),
// read, optional validate, optional repair, transforms (WriteOptions.Transforms,
// applied here once and not passed on to the writer), optional optimize,
// then write. Any stage failure aborts the run; read failures never return
// a partial Document, and the Document the caller passed to no stage is
// ever mutated in place.
func Run(format detect.Format, src io.ReaderAt, size int64, opts RunOptions, progress ProgressFunc) (*RunResult, error) {
	if format == "" {
		detected, err := detect.Detect(io.NewSectionReader(src, 0, size), "")
		if err != nil {
			return nil, err
		}
		format = detected.Format
	}

	doc, err := Read(format, src, size, opts.Read, progress)
	if err != nil {
		return nil, err
	}

	result := &RunResult{}

	if opts.Validate != nil {
		result.ValidateIssues = validate.Validate(doc, *opts.Validate)
	}

	if opts.Repair != nil {
		repaired, report, err := repair.Repair(doc, *opts.Repair, repair.ProgressFunc(progress))
		if err != nil {
			return nil, err
		}
		doc = repaired
		result.RepairReport = report
	}

	if len(opts.Write.Transforms) > 0 {
		transformed, err := transform.Apply(doc, opts.Write.Transforms)
		if err != nil {
			return nil, err
		}
		doc = transformed
		opts.Write.Transforms = nil
	}

	if opts.Optimize != nil {
		optimized, report, err := optimize.Optimize(doc, *opts.Optimize, optimize.ProgressFunc(progress))
		if err != nil {
			return nil, err
		}
		doc = optimized
		result.OptimizeReport = report
	}

	out, err := Write(format, doc, opts.Write, progress)
	if err != nil {
		return nil, err
	}
	result.Output = out
	return result, nil
}

// Detect is a thin re-export of pkg/detect's entry point, kept here so
// callers that only import pkg/pipeline can still classify a byte source
// before choosing a format to pass to Read/Write/Run. filename is optional
// and feeds the extension-fallback step; pass "" when unavailable.
func Detect(r io.ReadSeeker, filename string) (detect.Result, error) {
	return detect.Detect(r, filename)
}
