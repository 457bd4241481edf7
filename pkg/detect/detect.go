// Package detect classifies a byte source into a Format before any reader
// runs. Detection is pure: it never mutates its input and never consumes
// more than a small bounded prefix (plus, for ZIP candidates, a bounded look
// at the central directory).
package detect

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the closed set of document formats the core recognises.
type Format string

const (
	FormatEPUB    Format = "epub"
	FormatMOBI    Format = "mobi"
	FormatAZW3    Format = "azw3"
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatCBZ     Format = "cbz"
	FormatFB2     Format = "fb2"
	FormatHTML    Format = "html"
	FormatMarkdown Format = "md"
	FormatText    Format = "txt"
	FormatZip     Format = "zip"
	FormatUnknown Format = ""
)

// Result is the Detector's output: a routing decision with a confidence
// score in [0,1] and the best-known MIME type.
type Result struct {
	Format     Format
	Confidence float64
	MIMEType   string
}

// Unknown is the zero-confidence result returned when nothing matches.
var Unknown = Result{Format: FormatUnknown, Confidence: 0, MIMEType: "application/octet-stream"}

// prefixSize is the amount of leading bytes the detector reads before
// falling back to heuristics; large enough to cover the PDB "BOOKMOBI"
// marker at offset 60 plus its surrounding header.
const prefixSize = 4096

// Detect classifies r, which must support Seek back to its current position
// (callers typically pass a *bytes.Reader or an *os.File positioned at the
// start of the candidate document). filename is optional and used only as
// the weight-0.5 fallback named in spec.md's Format Detector algorithm when
// no magic bytes match; pass "" when the caller has no path to offer.
// Inputs it cannot classify yield Unknown with a nil error; an error is
// returned only when seeking or reading r fails.
func Detect(r io.ReadSeeker, filename string) (Result, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Unknown, err
	}
	defer r.Seek(start, io.SeekStart)

	buf := make([]byte, prefixSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Unknown, err
	}
	buf = buf[:n]

	if res, ok := detectMagic(buf); ok {
		if res.Format == FormatZip {
			if _, err := r.Seek(start, io.SeekStart); err != nil {
				return Unknown, err
			}
			zipRes, err := detectZipKind(r)
			if err != nil {
				return Unknown, err
			}
			return zipRes, nil
		}
		if res.Format == "gzip-wrapped" {
			unwrapped, ok := unwrapGzip(buf)
			if ok {
				if inner, innerOK := detectMagic(unwrapped); innerOK {
					return inner, nil
				}
			}
			return Unknown, nil
		}
		return res, nil
	}

	return detectHeuristic(buf, filename), nil
}

// DetectBytes is a convenience wrapper for callers that already hold the
// full document in memory.
func DetectBytes(b []byte, filename string) (Result, error) {
	return Detect(bytes.NewReader(b), filename)
}

func detectMagic(buf []byte) (Result, bool) {
	switch {
	case bytes.HasPrefix(buf, []byte("PK\x03\x04")), bytes.HasPrefix(buf, []byte("PK\x05\x06")):
		return Result{Format: FormatZip, Confidence: 0.6, MIMEType: "application/zip"}, true
	case bytes.HasPrefix(buf, []byte("%PDF-")):
		return Result{Format: FormatPDF, Confidence: 1.0, MIMEType: "application/pdf"}, true
	case len(buf) >= 68 && bytes.Equal(buf[60:68], []byte("BOOKMOBI")):
		return detectMobiKind(buf), true
	case bytes.HasPrefix(buf, []byte{0x1F, 0x8B}):
		return Result{Format: "gzip-wrapped"}, true
	case looksLikeFB2(buf):
		return Result{Format: FormatFB2, Confidence: 0.9, MIMEType: "application/x-fictionbook+xml"}, true
	case looksLikeHTML(buf):
		return Result{Format: FormatHTML, Confidence: 0.85, MIMEType: "text/html"}, true
	}
	return Result{}, false
}

// detectMobiKind inspects the PDB record list to distinguish a plain MOBI
// (MOBI6) book from a KF8/AZW3 container, which carries a second "BOUNDARY"
// or EXTH-referenced KF8 record alongside the legacy MOBI6 record.
func detectMobiKind(buf []byte) Result {
	if len(buf) < 78 {
		return Result{Format: FormatMOBI, Confidence: 0.8, MIMEType: "application/x-mobipocket-ebook"}
	}
	numRecords := int(binary.BigEndian.Uint16(buf[76:78]))
	if numRecords > 1 && bytes.Contains(buf, []byte("BOUNDARY")) {
		return Result{Format: FormatAZW3, Confidence: 0.85, MIMEType: "application/x-mobi8-ebook"}
	}
	return Result{Format: FormatMOBI, Confidence: 0.9, MIMEType: "application/x-mobipocket-ebook"}
}

func unwrapGzip(buf []byte) ([]byte, bool) {
	zr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, prefixSize))
	if err != nil && err != io.EOF && len(out) == 0 {
		return nil, false
	}
	return out, true
}

func looksLikeFB2(buf []byte) bool {
	head := trimLeadingWhitespaceAndBOM(buf)
	if !bytes.HasPrefix(head, []byte("<?xml")) {
		return false
	}
	probe := head
	if len(probe) > 512 {
		probe = probe[:512]
	}
	return bytes.Contains(probe, []byte("FictionBook"))
}

func looksLikeHTML(buf []byte) bool {
	head := trimLeadingWhitespaceAndBOM(buf)
	lower := bytes.ToLower(head)
	if len(lower) > 256 {
		lower = lower[:256]
	}
	return bytes.Contains(lower, []byte("<!doctype html")) || bytes.Contains(lower, []byte("<html"))
}

func trimLeadingWhitespaceAndBOM(buf []byte) []byte {
	b := bytes.TrimPrefix(buf, []byte{0xEF, 0xBB, 0xBF})
	return bytes.TrimLeft(b, " \t\r\n")
}

// extensionFormats maps a lowercase file extension to the format it
// suggests. This is the weight-0.5 fallback spec.md's Format Detector
// algorithm names for inputs whose leading bytes match no magic-byte or
// structural rule: weaker evidence than a magic byte, but stronger than
// guessing from content alone.
var extensionFormats = map[string]Result{
	".epub": {Format: FormatEPUB, Confidence: 0.5, MIMEType: "application/epub+zip"},
	".mobi": {Format: FormatMOBI, Confidence: 0.5, MIMEType: "application/x-mobipocket-ebook"},
	".azw3": {Format: FormatAZW3, Confidence: 0.5, MIMEType: "application/x-mobi8-ebook"},
	".azw":  {Format: FormatAZW3, Confidence: 0.5, MIMEType: "application/x-mobi8-ebook"},
	".pdf":  {Format: FormatPDF, Confidence: 0.5, MIMEType: "application/pdf"},
	".docx": {Format: FormatDOCX, Confidence: 0.5, MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".cbz":  {Format: FormatCBZ, Confidence: 0.5, MIMEType: "application/vnd.comicbook+zip"},
	".fb2":  {Format: FormatFB2, Confidence: 0.5, MIMEType: "application/x-fictionbook+xml"},
	".html": {Format: FormatHTML, Confidence: 0.5, MIMEType: "text/html"},
	".htm":  {Format: FormatHTML, Confidence: 0.5, MIMEType: "text/html"},
	".md":   {Format: FormatMarkdown, Confidence: 0.5, MIMEType: "text/markdown"},
	".markdown": {Format: FormatMarkdown, Confidence: 0.5, MIMEType: "text/markdown"},
	".txt":  {Format: FormatText, Confidence: 0.5, MIMEType: "text/plain"},
	".zip":  {Format: FormatZip, Confidence: 0.5, MIMEType: "application/zip"},
}

func detectExtension(filename string) (Result, bool) {
	if filename == "" {
		return Result{}, false
	}
	res, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]
	return res, ok
}

// detectHeuristic is the fallback path for inputs with no recognised magic
// bytes: extension guess (weight 0.5), then content heuristics — plain-text
// validity (0.7), bumped to Markdown (0.6) when the text itself carries
// Markdown markers. Markdown markers outrank a recognised extension; plain
// text validity alone does not, and yields FormatText only when the
// extension is not recognised. A byte-sniffed generic MIME type is the
// last resort for non-text input with no recognised extension.
func detectHeuristic(buf []byte, filename string) Result {
	extResult, extOK := detectExtension(filename)

	if len(buf) == 0 || !utf8.Valid(buf) || bytes.ContainsAny(buf, "\x00\x01\x02\x03\x04\x05\x06\x07\x0B\x0E\x0F") {
		if extOK {
			return extResult
		}
		return sniffFallback(buf)
	}

	text := string(buf)
	if looksLikeMarkdown(text) {
		return Result{Format: FormatMarkdown, Confidence: 0.6, MIMEType: "text/markdown"}
	}
	if extOK {
		return extResult
	}
	return Result{Format: FormatText, Confidence: 0.7, MIMEType: "text/plain"}
}

// sniffFallback runs the broader, content-based mimetype library when
// nothing else, magic bytes, ZIP structure, extension, or text heuristics,
// resolved a format. It never upgrades the result to a known Format: a
// generic MIME hint on an otherwise Unknown result is still useful to a
// caller deciding what to do with an unrecognised file.
func sniffFallback(buf []byte) Result {
	mime := SniffMIME(buf)
	if mime == "" || mime == "application/octet-stream" {
		return Unknown
	}
	return Result{Format: FormatUnknown, Confidence: 0.2, MIMEType: mime}
}

func looksLikeMarkdown(text string) bool {
	score := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			score++
		}
		if strings.Contains(trimmed, "](") && strings.Contains(trimmed, "[") {
			score++
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			score++
		}
		if score >= 2 {
			return true
		}
	}
	return false
}

// SniffMIME uses the broader, content-based mimetype library as a
// secondary opinion when a caller needs a generic MIME classification
// outside the ebook-specific magic table above. detectHeuristic calls this
// as its last-resort fallback; it is also exported for callers classifying
// an imported Resource with an unrecognised extension.
func SniffMIME(b []byte) string {
	return mimetype.Detect(b).String()
}
