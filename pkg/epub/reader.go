// Package epub implements the EPUB2/EPUB3 reader and writer: the hardest
// format pair in the toolkit, per spec roughly 40% of all reader work.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/security"
)

// ReadOptions carries the security limits, encoding policy, and optional
// feature flags every reader accepts.
type ReadOptions struct {
	Security   security.Config
	Encoding   encoding.Options
	ExtractCover bool
	ParseTOC     bool
}

// DefaultReadOptions returns the spec's documented reader defaults.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		Security:     security.DefaultConfig(),
		Encoding:     encoding.DefaultOptions(),
		ExtractCover: true,
		ParseTOC:     true,
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

// Read parses an EPUB archive from r (size bytes long) into a Document.
// Reading is complete: on any error, no partial Document is returned. If
// the archive's central directory is corrupt, Read makes one attempt to
// rebuild it via RepairArchive before giving up.
func Read(r io.ReaderAt, size int64, opts ReadOptions, progress ProgressFunc) (*ir.Document, error) {
	gate := security.NewGate(opts.Security)

	zr, err := zip.NewReader(r, size)
	archiveRepaired := false
	if err != nil {
		repairedZR, repairErr := attemptArchiveRepair(r, size)
		if repairErr != nil {
			return nil, ebookerr.MalformedFile("epub", "not a valid zip archive: "+err.Error())
		}
		zr = repairedZR
		archiveRepaired = true
		reportProgress(progress, "epub:read:zip-repaired", 0, 1, "rebuilt central directory from local file headers")
	}
	if err := gate.CheckEntryCount(len(zr.File)); err != nil {
		return nil, ebookerr.WrapSecurity(err)
	}

	if err := verifyMimetype(zr); err != nil {
		return nil, err
	}

	if err := security.CheckEPUBDrm(zr); err != nil {
		return nil, ebookerr.WrapSecurity(err)
	}

	opfPath, err := locateOPF(zr, gate)
	if err != nil {
		return nil, wrapGateErr(err)
	}

	parsed, err := parseOPF(zr, gate, opfPath)
	if err != nil {
		return nil, wrapGateErr(err)
	}

	doc := ir.NewDocument()
	doc.Metadata = parsed.metadata
	doc.Origin = ir.FormatOrigin{Format: "epub", EPUBVersion: parsed.epubVersion(), ArchiveRepaired: archiveRepaired}

	resourceIDs := map[string]string{} // archive path -> resource id
	for id, item := range parsed.manifestByID {
		resolved := parsed.resolve(item.Href)
		resourceIDs[resolved] = id
	}
	resolveResource := func(hrefRelToDoc string) string {
		if id, ok := resourceIDs[hrefRelToDoc]; ok {
			return id
		}
		return ""
	}

	total := len(parsed.spineIdrefs)
	for i, idref := range parsed.spineIdrefs {
		if err := gate.CheckDeadline(); err != nil {
			return nil, ebookerr.WrapSecurity(err)
		}
		item, ok := parsed.manifestByID[idref]
		if !ok {
			continue
		}
		itemPath := parsed.resolve(item.Href)
		f := findFile(zr, itemPath)
		if f == nil {
			return nil, ebookerr.MissingContent(itemPath)
		}
		data, err := gate.ReadEntry(f)
		if err != nil {
			return nil, ebookerr.WrapSecurity(err)
		}

		docDir := path.Dir(itemPath)
		if docDir == "." {
			docDir = ""
		}
		content, err := parseChapterContent(data, docDir, resolveResource, gate)
		if err != nil {
			return nil, wrapGateErr(err)
		}

		doc.Chapters = append(doc.Chapters, ir.Chapter{
			ID:      itemPath,
			Content: content,
		})
		reportProgress(progress, "epub:read:spine", i+1, total, itemPath)
	}

	if opts.ParseTOC {
		toc, err := readTOC(zr, gate, parsed)
		if err != nil {
			return nil, wrapGateErr(err)
		}
		doc.Toc = toc
	}

	if err := importResources(zr, gate, parsed, doc, opts.ExtractCover); err != nil {
		return nil, wrapGateErr(err)
	}

	normalizeDocument(doc, opts.Encoding)

	return doc, nil
}

func readTOC(zr *zip.Reader, gate *security.Gate, parsed *parsedOPF) ([]ir.TocEntry, error) {
	if parsed.navHref != "" {
		toc, err := parseNav(zr, gate, parsed.navHref, path.Dir(parsed.navHref))
		if err != nil {
			return nil, err
		}
		if len(toc) > 0 {
			return toc, nil
		}
	}
	if parsed.ncxHref != "" {
		return parseNCX(zr, gate, parsed.ncxHref, path.Dir(parsed.ncxHref))
	}
	return nil, nil
}

func importResources(zr *zip.Reader, gate *security.Gate, parsed *parsedOPF, doc *ir.Document, extractCover bool) error {
	spineHrefs := map[string]bool{}
	for _, idref := range parsed.spineIdrefs {
		if item, ok := parsed.manifestByID[idref]; ok {
			spineHrefs[parsed.resolve(item.Href)] = true
		}
	}

	for id, item := range parsed.manifestByID {
		resolved := parsed.resolve(item.Href)
		if spineHrefs[resolved] {
			// Spine content documents are consumed into Chapters, not
			// imported as opaque resources.
			continue
		}
		if strings.Contains(item.Properties, "nav") || resolved == parsed.ncxHref {
			continue
		}
		f := findFile(zr, resolved)
		if f == nil {
			continue
		}
		data, err := gate.ReadEntry(f)
		if err != nil {
			return err
		}
		doc.Resources[id] = ir.Resource{
			ID:               id,
			MediaType:        item.MediaType,
			Bytes:            data,
			OriginalFilename: item.Href,
		}
	}

	if extractCover && parsed.coverItemID != "" {
		if _, ok := doc.Resources[parsed.coverItemID]; ok {
			doc.Metadata.CoverImageID = parsed.coverItemID
		}
	}

	return nil
}

// attemptArchiveRepair reads the full contents of r and hands them to
// RepairArchive, returning a zip.Reader over the rebuilt archive on
// success.
func attemptArchiveRepair(r io.ReaderAt, size int64) (*zip.Reader, error) {
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	repaired, err := RepairArchive(data)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(repaired), int64(len(repaired)))
}

func verifyMimetype(zr *zip.Reader) error {
	if len(zr.File) == 0 {
		return ebookerr.MalformedFile("epub", "empty archive")
	}
	first := zr.File[0]
	if first.Name != "mimetype" {
		return ebookerr.MalformedFile("epub", "first entry is not \"mimetype\"")
	}
	if first.Method != zip.Store {
		return ebookerr.MalformedFile("epub", "mimetype entry is not stored uncompressed")
	}
	rc, err := first.Open()
	if err != nil {
		return ebookerr.WrapRead("epub", err)
	}
	defer rc.Close()
	body := make([]byte, 64)
	n, _ := io.ReadFull(rc, body)
	if strings.TrimRight(string(body[:n]), "\x00") != "application/epub+zip" {
		return ebookerr.MalformedFile("epub", fmt.Sprintf("unexpected mimetype body %q", body[:n]))
	}
	return nil
}

func normalizeDocument(doc *ir.Document, opts encoding.Options) {
	doc.Metadata.Title = encoding.Normalize(doc.Metadata.Title, opts)
	doc.Metadata.Description = encoding.Normalize(doc.Metadata.Description, opts)
	for i := range doc.Chapters {
		normalizeContentNodes(doc.Chapters[i].Content, opts)
	}
}

func normalizeContentNodes(nodes []ir.ContentNode, opts encoding.Options) {
	for i, n := range nodes {
		nodes[i] = normalizeContentNode(n, opts)
	}
}

func normalizeContentNode(n ir.ContentNode, opts encoding.Options) ir.ContentNode {
	switch v := n.(type) {
	case ir.Paragraph:
		v.Inlines = normalizeInlines(v.Inlines, opts)
		return v
	case ir.Heading:
		v.Inlines = normalizeInlines(v.Inlines, opts)
		return v
	case ir.List:
		for i := range v.Items {
			normalizeContentNodes(v.Items[i], opts)
		}
		return v
	case ir.BlockQuote:
		normalizeContentNodes(v.Children, opts)
		return v
	case ir.Table:
		for i := range v.Header {
			v.Header[i] = normalizeInlines(v.Header[i], opts)
		}
		for i := range v.Rows {
			for j := range v.Rows[i] {
				v.Rows[i][j] = normalizeInlines(v.Rows[i][j], opts)
			}
		}
		return v
	case ir.CodeBlock:
		// Code content is left untouched; normalisation applies to prose.
		return v
	default:
		return n
	}
}

func normalizeInlines(inlines []ir.InlineNode, opts encoding.Options) []ir.InlineNode {
	for i, n := range inlines {
		inlines[i] = normalizeInline(n, opts)
	}
	return inlines
}

func normalizeInline(n ir.InlineNode, opts encoding.Options) ir.InlineNode {
	switch v := n.(type) {
	case ir.Text:
		v.Value = encoding.Normalize(v.Value, opts)
		return v
	case ir.Emphasis:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	case ir.Strong:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	case ir.Link:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	case ir.Superscript:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	case ir.Subscript:
		v.Children = normalizeInlines(v.Children, opts)
		return v
	default:
		return n
	}
}

func wrapGateErr(err error) error {
	if _, ok := err.(*security.Error); ok {
		return ebookerr.WrapSecurity(err)
	}
	return err
}
