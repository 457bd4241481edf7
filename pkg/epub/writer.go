package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/identifiers"
	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/transform"
)

// WriteOptions controls the EPUB writer's output.
type WriteOptions struct {
	// Version selects "2.0" or "3.0" output. Empty defers to
	// Document.Origin.EPUBVersion, defaulting to "3.0" for documents with
	// no recorded origin.
	Version string

	// Transforms run over a clone of the Document before serialisation;
	// the caller's Document is never mutated.
	Transforms []transform.Transform

	// Deadline, when non-zero, aborts the write once passed. Checked at
	// the chapter and resource loop boundaries, mirroring the Reader's
	// security.Gate.CheckDeadline discipline.
	Deadline time.Time
}

func (o WriteOptions) checkDeadline() error {
	if o.Deadline.IsZero() {
		return nil
	}
	if time.Now().After(o.Deadline) {
		return ebookerr.Cancelled()
	}
	return nil
}

// DefaultWriteOptions returns EPUB3 output with no transforms.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Version: "3.0"}
}

func (o WriteOptions) resolveVersion(doc *ir.Document) string {
	if o.Version != "" {
		return o.Version
	}
	if doc.Origin.Format == "epub" && doc.Origin.EPUBVersion != "" {
		return doc.Origin.EPUBVersion
	}
	return "3.0"
}

// Write serialises doc into a complete EPUB archive and returns its bytes.
// Writing is total: a RawPassthrough node tagged for a foreign format is
// silently dropped rather than failing the write, per the content
// renderer's documented behaviour; every other failure aborts the archive.
// progress may be nil.
func Write(doc *ir.Document, opts WriteOptions, progress ProgressFunc) ([]byte, error) {
	working := doc
	if len(opts.Transforms) > 0 {
		applied, err := transform.Apply(doc, opts.Transforms)
		if err != nil {
			return nil, err
		}
		working = applied
	} else {
		working = doc.Clone()
	}

	version := opts.resolveVersion(working)
	epub3 := strings.HasPrefix(version, "3")

	isbn13Valid := identifiers.ValidateISBN13(identifiers.NormalizeISBN(working.Metadata.ISBN13))
	isbn10Valid := identifiers.ValidateISBN10(identifiers.NormalizeISBN(working.Metadata.ISBN10))

	// Backfill whichever ISBN form the source document didn't carry, so a
	// reader that only understands one form still finds an identifier.
	if isbn10Valid && !isbn13Valid {
		if converted, ok := identifiers.ISBN10ToISBN13(working.Metadata.ISBN10); ok {
			working.Metadata.ISBN13 = converted
			isbn13Valid = true
		}
	} else if isbn13Valid && !isbn10Valid {
		if converted, ok := identifiers.ISBN13ToISBN10(working.Metadata.ISBN13); ok {
			working.Metadata.ISBN10 = converted
			isbn10Valid = true
		}
	}

	uid := ""
	if isbn13Valid {
		uid = working.Metadata.ISBN13
	} else if isbn10Valid {
		uid = working.Metadata.ISBN10
	}
	if uid == "" {
		uid = "urn:uuid:" + uuid.NewString()
	}

	resourceIDs, resourceFilenames := assignResourceFilenames(working.Resources)
	chapterFilenames := assignChapterFilenames(working.Chapters)

	var buf strings.Builder
	zw := zip.NewWriter(&buf)

	if err := writeMimetype(zw); err != nil {
		return nil, ebookerr.WrapWrite("epub", err)
	}
	if err := writeContainerXML(zw); err != nil {
		return nil, ebookerr.WrapWrite("epub", err)
	}
	totalChapters := len(working.Chapters)
	for i := range working.Chapters {
		if err := opts.checkDeadline(); err != nil {
			return nil, err
		}
		ch := &working.Chapters[i]
		body := renderContentNodes(ch.Content, epub3)
		if err := writeDeflated(zw, "OEBPS/"+chapterFilenames[ch.ID], chapterXHTML(ch.Title, body, ch.Direction)); err != nil {
			return nil, ebookerr.WrapWrite("epub", err)
		}
		reportProgress(progress, "epub:write:chapter", i+1, totalChapters, ch.ID)
	}
	totalResources := len(working.Resources)
	resourceIndex := 0
	for id, r := range working.Resources {
		if err := opts.checkDeadline(); err != nil {
			return nil, err
		}
		if err := writeStoredOrDeflated(zw, "OEBPS/"+resourceFilenames[id], r.MediaType, r.Bytes); err != nil {
			return nil, ebookerr.WrapWrite("epub", err)
		}
		resourceIndex++
		reportProgress(progress, "epub:write:resource", resourceIndex, totalResources, id)
	}

	toc := remapTocHrefs(working.Toc, chapterFilenames)

	navFilename := "nav.xhtml"
	ncxFilename := "toc.ncx"
	if epub3 {
		if err := writeDeflated(zw, "OEBPS/"+navFilename, buildNAV(working.Metadata.Title, toc)); err != nil {
			return nil, ebookerr.WrapWrite("epub", err)
		}
	}
	if err := writeDeflated(zw, "OEBPS/"+ncxFilename, buildNCX(uid, working.Metadata.Title, toc)); err != nil {
		return nil, ebookerr.WrapWrite("epub", err)
	}

	opf := buildOPF(working, version, epub3, uid, chapterFilenames, resourceIDs, resourceFilenames, navFilename, ncxFilename)
	if err := writeDeflated(zw, "OEBPS/content.opf", opf); err != nil {
		return nil, ebookerr.WrapWrite("epub", err)
	}

	if err := zw.Close(); err != nil {
		return nil, ebookerr.WrapWrite("epub", err)
	}
	return []byte(buf.String()), nil
}

// writeMimetype writes the mandatory first entry, stored uncompressed.
func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "application/epub+zip")
	return err
}

func writeContainerXML(zw *zip.Writer) error {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`
	return writeDeflated(zw, containerPath, []byte(doc))
}

func writeDeflated(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// writeStoredOrDeflated stores already-compressed media (images, audio,
// video) and deflates everything else, avoiding the double-compression
// cost of deflating JPEG/PNG bytes a second time.
func writeStoredOrDeflated(zw *zip.Writer, name, mediaType string, data []byte) error {
	method := zip.Deflate
	if looksPreCompressed(mediaType) {
		method = zip.Store
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: uint16(method)})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func looksPreCompressed(mediaType string) bool {
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "audio/mpeg", "video/mp4":
		return true
	default:
		return false
	}
}

func assignChapterFilenames(chapters []ir.Chapter) map[string]string {
	out := make(map[string]string, len(chapters))
	for i, ch := range chapters {
		out[ch.ID] = fmt.Sprintf("chapter_%04d.xhtml", i+1)
	}
	return out
}

// assignResourceFilenames picks a stable archive-relative filename for
// every resource, keyed by resource id with no extension: the OPF manifest
// media-type attribute is authoritative, and renderContentNode's <img>
// emission (pkg/epub/content.go) hardcodes the same "resources/{id}"
// shape, so the two must stay in lockstep.
func assignResourceFilenames(resources ir.ResourceMap) (ids []string, filenames map[string]string) {
	filenames = make(map[string]string, len(resources))
	for id := range resources {
		ids = append(ids, id)
		filenames[id] = fmt.Sprintf("resources/%s", id)
	}
	return ids, filenames
}

func chapterXHTML(title, body string, dir ir.TextDirection) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE html>` + "\n")
	dirAttr := ""
	if dir != ir.DirectionInherit {
		dirAttr = fmt.Sprintf(` dir="%s"`, string(dir))
	}
	fmt.Fprintf(&b, `<html xmlns="http://www.w3.org/1999/xhtml"%s>`+"\n", dirAttr)
	fmt.Fprintf(&b, "<head><title>%s</title></head>\n<body>\n", escapeXML(title))
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

// buildOPF assembles the content.opf package document for working,
// referencing every chapter, resource, and navigation document written
// alongside it.
func buildOPF(doc *ir.Document, version string, epub3 bool, uid string, chapterFilenames map[string]string, resourceIDs []string, resourceFilenames map[string]string, navFilename, ncxFilename string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<package xmlns="http://www.idpf.org/2007/opf" version="%s" unique-identifier="BookID">`+"\n", escapeXML(version))

	b.WriteString("<metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\" xmlns:opf=\"http://www.idpf.org/2007/opf\">\n")
	fmt.Fprintf(&b, "<dc:identifier id=\"BookID\">%s</dc:identifier>\n", escapeXML(uid))
	fmt.Fprintf(&b, "<dc:title>%s</dc:title>\n", escapeXML(doc.Metadata.Title))
	if doc.Metadata.Language != "" {
		fmt.Fprintf(&b, "<dc:language>%s</dc:language>\n", escapeXML(doc.Metadata.Language))
	} else {
		b.WriteString("<dc:language>en</dc:language>\n")
	}
	for _, a := range doc.Metadata.Authors {
		fmt.Fprintf(&b, "<dc:creator opf:role=\"%s\">%s</dc:creator>\n", escapeXML(authorRole(a)), escapeXML(a.Name))
	}
	if doc.Metadata.Description != "" {
		fmt.Fprintf(&b, "<dc:description>%s</dc:description>\n", escapeXML(doc.Metadata.Description))
	}
	if doc.Metadata.Publisher != "" {
		fmt.Fprintf(&b, "<dc:publisher>%s</dc:publisher>\n", escapeXML(doc.Metadata.Publisher))
	}
	if doc.Metadata.PublishDate != "" {
		fmt.Fprintf(&b, "<dc:date>%s</dc:date>\n", escapeXML(doc.Metadata.PublishDate))
	}
	if doc.Metadata.Rights != "" {
		fmt.Fprintf(&b, "<dc:rights>%s</dc:rights>\n", escapeXML(doc.Metadata.Rights))
	}
	for _, s := range doc.Metadata.Subjects {
		fmt.Fprintf(&b, "<dc:subject>%s</dc:subject>\n", escapeXML(s))
	}
	if doc.Metadata.ISBN13 != "" {
		fmt.Fprintf(&b, "<dc:identifier opf:scheme=\"ISBN\">%s</dc:identifier>\n", escapeXML(doc.Metadata.ISBN13))
	} else if doc.Metadata.ISBN10 != "" {
		fmt.Fprintf(&b, "<dc:identifier opf:scheme=\"ISBN\">%s</dc:identifier>\n", escapeXML(doc.Metadata.ISBN10))
	}
	if doc.Metadata.Series != nil {
		fmt.Fprintf(&b, "<meta name=\"calibre:series\" content=\"%s\"/>\n", escapeXML(doc.Metadata.Series.Name))
		fmt.Fprintf(&b, "<meta name=\"calibre:series_index\" content=\"%g\"/>\n", doc.Metadata.Series.Position)
	}
	if doc.Metadata.CoverImageID != "" {
		fmt.Fprintf(&b, "<meta name=\"cover\" content=\"%s\"/>\n", escapeXML(resourceItemID(doc.Metadata.CoverImageID)))
	}
	for k, v := range doc.Metadata.Overflow {
		fmt.Fprintf(&b, "<meta name=\"%s\" content=\"%s\"/>\n", escapeXML(k), escapeXML(v))
	}
	b.WriteString("</metadata>\n")

	b.WriteString("<manifest>\n")
	if epub3 {
		fmt.Fprintf(&b, "<item id=\"nav\" href=\"%s\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n", escapeXML(navFilename))
	}
	fmt.Fprintf(&b, "<item id=\"ncx\" href=\"%s\" media-type=\"application/x-dtbncx+xml\"/>\n", escapeXML(ncxFilename))
	for i, ch := range doc.Chapters {
		itemID := chapterItemID(i)
		fmt.Fprintf(&b, "<item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", itemID, escapeXML(chapterFilenames[ch.ID]))
	}
	for _, id := range resourceIDs {
		r := doc.Resources[id]
		props := ""
		if epub3 && id == doc.Metadata.CoverImageID {
			props = ` properties="cover-image"`
		}
		fmt.Fprintf(&b, "<item id=\"%s\" href=\"%s\" media-type=\"%s\"%s/>\n", escapeXML(resourceItemID(id)), escapeXML(resourceFilenames[id]), escapeXML(r.MediaType), props)
	}
	b.WriteString("</manifest>\n")

	fmt.Fprintf(&b, "<spine toc=\"ncx\">\n")
	for i := range doc.Chapters {
		fmt.Fprintf(&b, "<itemref idref=\"%s\"/>\n", chapterItemID(i))
	}
	b.WriteString("</spine>\n</package>\n")

	return []byte(b.String())
}

// remapTocHrefs rewrites every TocEntry.Href from its source chapter id to
// the filename this writer actually assigned that chapter, preserving any
// "#fragment" suffix. An href whose chapter id has no assigned filename
// (a dangling TOC reference) is left as-is; that is a validator concern,
// not a write-time failure.
func remapTocHrefs(entries []ir.TocEntry, chapterFilenames map[string]string) []ir.TocEntry {
	if entries == nil {
		return nil
	}
	out := make([]ir.TocEntry, len(entries))
	for i, e := range entries {
		href := e.Href
		if filename, ok := chapterFilenames[e.ChapterID()]; ok {
			href = filename
			if frag := e.Fragment(); frag != "" {
				href += "#" + frag
			}
		}
		out[i] = ir.TocEntry{
			Title:    e.Title,
			Href:     href,
			Children: remapTocHrefs(e.Children, chapterFilenames),
		}
	}
	return out
}

// chapterItemID and resourceItemID keep manifest ids distinct from the
// Document's own resource ids, which may collide with reserved ids like
// "ncx" or "nav".
func chapterItemID(i int) string {
	return fmt.Sprintf("chapter-%d", i+1)
}

func resourceItemID(resourceID string) string {
	return "res-" + resourceID
}

func authorRole(a ir.Author) string {
	if a.Role != "" {
		return a.Role
	}
	return "aut"
}
