package epub

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/security"
	"github.com/folioglyph/folioglyph/pkg/validate"
)

// ValidateArchive runs the EPUB-specific structural checks spec.md's
// Validator names but that a format-agnostic *ir.Document can never see:
// ZIP well-formedness, mimetype entry position and content, OPF
// parseability, spine idref resolution, dangling manifest hrefs, and
// NAV/NCX presence. It never mutates the input and returns as many
// findings as it can rather than stopping at the first one.
func ValidateArchive(r io.ReaderAt, size int64, cfg security.Config) []validate.Issue {
	gate := security.NewGate(cfg)

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return []validate.Issue{{
			Severity: validate.SeverityError,
			Code:     "EPUB-INVALID-ZIP",
			Message:  "archive is not a well-formed zip: " + err.Error(),
		}}
	}

	var issues []validate.Issue
	issues = append(issues, checkMimetypeEntry(zr)...)

	opfPath, err := locateOPF(zr, gate)
	if err != nil {
		return append(issues, validate.Issue{
			Severity: validate.SeverityError,
			Code:     "EPUB-OPF-UNPARSEABLE",
			Message:  "could not locate OPF package document: " + err.Error(),
		})
	}

	parsed, err := parseOPF(zr, gate, opfPath)
	if err != nil {
		return append(issues, validate.Issue{
			Severity: validate.SeverityError,
			Code:     "EPUB-OPF-UNPARSEABLE",
			Message:  "could not parse OPF package document: " + err.Error(),
			Location: opfPath,
		})
	}

	issues = append(issues, checkSpineIdrefs(zr, parsed)...)
	issues = append(issues, checkManifestHrefs(zr, parsed)...)
	issues = append(issues, checkNavNCXPresence(zr, parsed)...)

	return issues
}

func checkMimetypeEntry(zr *zip.Reader) []validate.Issue {
	if len(zr.File) == 0 {
		return []validate.Issue{{
			Severity: validate.SeverityError,
			Code:     "EPUB-MIMETYPE-INVALID",
			Message:  "archive has no entries",
		}}
	}
	first := zr.File[0]
	if first.Name != "mimetype" {
		return []validate.Issue{{
			Severity:    validate.SeverityError,
			Code:        "EPUB-MIMETYPE-INVALID",
			Message:     "first archive entry must be named \"mimetype\"",
			AutoFixable: true,
		}}
	}
	if first.Method != zip.Store {
		return []validate.Issue{{
			Severity:    validate.SeverityError,
			Code:        "EPUB-MIMETYPE-INVALID",
			Message:     "mimetype entry must be stored uncompressed",
			AutoFixable: true,
		}}
	}
	rc, err := first.Open()
	if err != nil {
		return []validate.Issue{{
			Severity: validate.SeverityError,
			Code:     "EPUB-MIMETYPE-INVALID",
			Message:  "could not read mimetype entry: " + err.Error(),
		}}
	}
	defer rc.Close()
	body := make([]byte, 64)
	n, _ := io.ReadFull(rc, body)
	if string(bytes.TrimRight(body[:n], "\x00")) != "application/epub+zip" {
		return []validate.Issue{{
			Severity:    validate.SeverityError,
			Code:        "EPUB-MIMETYPE-INVALID",
			Message:     fmt.Sprintf("unexpected mimetype body %q", body[:n]),
			AutoFixable: true,
		}}
	}
	return nil
}

func checkSpineIdrefs(zr *zip.Reader, parsed *parsedOPF) []validate.Issue {
	var issues []validate.Issue
	for _, idref := range parsed.spineIdrefs {
		item, ok := parsed.manifestByID[idref]
		if !ok {
			issues = append(issues, validate.Issue{
				Severity: validate.SeverityError,
				Code:     "EPUB-DANGLING-SPINE-IDREF",
				Message:  fmt.Sprintf("spine itemref %q has no matching manifest item", idref),
			})
			continue
		}
		if findFile(zr, parsed.resolve(item.Href)) == nil {
			issues = append(issues, validate.Issue{
				Severity: validate.SeverityError,
				Code:     "EPUB-DANGLING-SPINE-IDREF",
				Message:  fmt.Sprintf("spine itemref %q resolves to missing file %q", idref, item.Href),
				Location: item.Href,
			})
		}
	}
	return issues
}

func checkManifestHrefs(zr *zip.Reader, parsed *parsedOPF) []validate.Issue {
	var issues []validate.Issue
	for id, item := range parsed.manifestByID {
		if findFile(zr, parsed.resolve(item.Href)) == nil {
			issues = append(issues, validate.Issue{
				Severity: validate.SeverityWarning,
				Code:     "EPUB-DANGLING-MANIFEST-HREF",
				Message:  fmt.Sprintf("manifest item %q references missing file %q", id, item.Href),
				Location: item.Href,
			})
		}
	}
	return issues
}

func checkNavNCXPresence(zr *zip.Reader, parsed *parsedOPF) []validate.Issue {
	if parsed.navHref == "" && parsed.ncxHref == "" {
		return []validate.Issue{{
			Severity: validate.SeverityWarning,
			Code:     "EPUB-MISSING-NAV-NCX",
			Message:  "package has neither a NAV document nor an NCX document",
		}}
	}
	var issues []validate.Issue
	if parsed.navHref != "" && findFile(zr, parsed.navHref) == nil {
		issues = append(issues, validate.Issue{
			Severity: validate.SeverityError,
			Code:     "EPUB-MISSING-NAV-NCX",
			Message:  "manifest declares a NAV document that is not present in the archive",
			Location: parsed.navHref,
		})
	}
	if parsed.ncxHref != "" && findFile(zr, parsed.ncxHref) == nil {
		issues = append(issues, validate.Issue{
			Severity: validate.SeverityError,
			Code:     "EPUB-MISSING-NAV-NCX",
			Message:  "spine declares an NCX document that is not present in the archive",
			Location: parsed.ncxHref,
		})
	}
	return issues
}

// localFileHeader is a hand-parsed ZIP local file header, kept just long
// enough to re-emit its raw compressed bytes into a fresh archive.
type localFileHeader struct {
	name             string
	method           uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	data             []byte
}

const (
	localFileHeaderSig = 0x04034b50
	centralDirSig      = 0x02014b50
	dataDescriptorSig  = 0x08074b50
	flagDataDescriptor = 0x0008
)

// RepairArchive rebuilds an EPUB's central directory by scanning the raw
// bytes for local file header signatures and re-emitting every entry it
// can recover into a fresh archive, in the order found. This is the
// byte-level counterpart the repair engine's fix_zip action defers to:
// pkg/repair operates on the parsed Document and has no notion of a ZIP
// central directory, so archive corruption has to be repaired here,
// before Read, or after Write produced a Document-faithful but
// corrupted-container byte stream.
func RepairArchive(data []byte) ([]byte, error) {
	entries := scanLocalFileHeaders(data)
	if len(entries) == 0 {
		return nil, ebookerr.MalformedFile("epub", "no recoverable local file headers found")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		fh := &zip.FileHeader{
			Name:   e.name,
			Method: e.method,
		}
		fh.CRC32 = e.crc32
		fh.CompressedSize64 = uint64(len(e.data))
		fh.UncompressedSize64 = uint64(e.uncompressedSize)

		w, err := zw.CreateRaw(fh)
		if err != nil {
			return nil, ebookerr.WrapWrite("epub", err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, ebookerr.WrapWrite("epub", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, ebookerr.WrapWrite("epub", err)
	}

	if err := reorderMimetypeFirst(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scanLocalFileHeaders walks data byte by byte looking for the local file
// header signature, ignoring whatever the (possibly corrupt or missing)
// central directory claims. Entries whose general-purpose flag defers
// sizes to a trailing data descriptor (bit 3) have no declared length in
// the local header; for those, the entry's data is assumed to run until
// the next recognisable header signature, and when that signature is a
// data descriptor the entry's CRC-32 and uncompressed size are taken from
// it.
func scanLocalFileHeaders(data []byte) []localFileHeader {
	var entries []localFileHeader
	i := 0
	for i+30 <= len(data) {
		if binary.LittleEndian.Uint32(data[i:i+4]) != localFileHeaderSig {
			i++
			continue
		}
		flags := binary.LittleEndian.Uint16(data[i+6 : i+8])
		method := binary.LittleEndian.Uint16(data[i+8 : i+10])
		crc := binary.LittleEndian.Uint32(data[i+14 : i+18])
		compSize := binary.LittleEndian.Uint32(data[i+18 : i+22])
		uncompSize := binary.LittleEndian.Uint32(data[i+22 : i+26])
		nameLen := int(binary.LittleEndian.Uint16(data[i+26 : i+28]))
		extraLen := int(binary.LittleEndian.Uint16(data[i+28 : i+30]))

		nameStart := i + 30
		nameEnd := nameStart + nameLen
		extraEnd := nameEnd + extraLen
		if extraEnd > len(data) {
			break
		}
		name := string(data[nameStart:nameEnd])
		dataStart := extraEnd

		var dataEnd int
		next := -1
		if flags&flagDataDescriptor != 0 || compSize == 0 && uncompSize == 0 && method != zip.Store {
			dataEnd = findNextHeaderBoundary(data, dataStart)
			if dataEnd+16 <= len(data) && binary.LittleEndian.Uint32(data[dataEnd:dataEnd+4]) == dataDescriptorSig {
				crc = binary.LittleEndian.Uint32(data[dataEnd+4 : dataEnd+8])
				uncompSize = binary.LittleEndian.Uint32(data[dataEnd+12 : dataEnd+16])
				next = dataEnd + 16
			}
		} else {
			dataEnd = dataStart + int(compSize)
			if dataEnd > len(data) {
				dataEnd = findNextHeaderBoundary(data, dataStart)
			}
		}
		if dataEnd < dataStart {
			dataEnd = dataStart
		}

		// Directory entries (trailing slash, zero length) carry no bytes
		// worth re-emitting as a raw stream but still need a place in the
		// archive for paths that reference them.
		entries = append(entries, localFileHeader{
			name:             name,
			method:           method,
			crc32:            crc,
			compressedSize:   uint32(dataEnd - dataStart),
			uncompressedSize: uncompSize,
			data:             data[dataStart:dataEnd],
		})

		i = dataEnd
		if next > 0 {
			i = next
		}
	}
	return entries
}

// findNextHeaderBoundary looks for the next local file header or central
// directory signature at or after from, used when an entry's length
// cannot be trusted from its own header.
func findNextHeaderBoundary(data []byte, from int) int {
	for j := from; j+4 <= len(data); j++ {
		sig := binary.LittleEndian.Uint32(data[j : j+4])
		if sig == localFileHeaderSig || sig == centralDirSig || sig == dataDescriptorSig {
			return j
		}
	}
	return len(data)
}

// reorderMimetypeFirst rewrites buf so the "mimetype" entry, if present,
// is the first entry stored uncompressed, satisfying the EPUB OCF
// requirement that Write already upholds for archives it produces
// itself. Rebuilt archives recovered from damaged input do not
// automatically preserve that ordering.
func reorderMimetypeFirst(buf *bytes.Buffer) error {
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return ebookerr.WrapWrite("epub", err)
	}
	mt := findFile(zr, "mimetype")
	if mt == nil || (buf.Len() > 0 && zr.File[0].Name == "mimetype" && zr.File[0].Method == zip.Store) {
		return nil
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	if err := writeMimetype(zw); err != nil {
		return err
	}

	for _, f := range zr.File {
		if f.Name == "mimetype" {
			continue
		}
		rc, err := f.OpenRaw()
		if err != nil {
			return ebookerr.WrapWrite("epub", err)
		}
		fh := f.FileHeader
		w, err := zw.CreateRaw(&fh)
		if err != nil {
			return ebookerr.WrapWrite("epub", err)
		}
		if _, err := io.Copy(w, rc); err != nil {
			return ebookerr.WrapWrite("epub", err)
		}
	}
	if err := zw.Close(); err != nil {
		return ebookerr.WrapWrite("epub", err)
	}
	*buf = out
	return nil
}
