package detect

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"
)

// maxCentralDirectoryProbe bounds how many bytes of the archive this
// package will buffer to read the central directory; callers that need the
// full security-gate treatment run the real format reader afterwards, this
// is only ever used to disambiguate a ZIP-shaped input.
const maxCentralDirectoryProbe = 64 << 20 // 64 MiB

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

// detectZipKind opens r's central directory and inspects entries to
// disambiguate EPUB, DOCX, CBZ, and generic ZIP. r must be positioned at
// the start of the archive and support io.ReaderAt semantics via Seek.
func detectZipKind(r io.ReadSeeker) (Result, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return Unknown, err
	}
	if size > maxCentralDirectoryProbe {
		size = maxCentralDirectoryProbe
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Unknown, err
	}

	ra, ok := r.(io.ReaderAt)
	if !ok {
		return Result{Format: FormatZip, Confidence: 0.6, MIMEType: "application/zip"}, nil
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		// Not a well-formed ZIP after all; treat conservatively as generic.
		return Result{Format: FormatZip, Confidence: 0.3, MIMEType: "application/zip"}, nil
	}

	if isEPUB(zr) {
		return Result{Format: FormatEPUB, Confidence: 1.0, MIMEType: "application/epub+zip"}, nil
	}
	if isDOCX(zr) {
		return Result{Format: FormatDOCX, Confidence: 0.95, MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"}, nil
	}
	if isCBZ(zr) {
		return Result{Format: FormatCBZ, Confidence: 0.8, MIMEType: "application/vnd.comicbook+zip"}, nil
	}
	return Result{Format: FormatZip, Confidence: 0.5, MIMEType: "application/zip"}, nil
}

func isEPUB(zr *zip.Reader) bool {
	if len(zr.File) == 0 {
		return false
	}
	first := zr.File[0]
	if first.Name != "mimetype" || first.Method != zip.Store {
		return false
	}
	rc, err := first.Open()
	if err != nil {
		return false
	}
	defer rc.Close()
	body := make([]byte, 64)
	n, _ := io.ReadFull(rc, body)
	return strings.TrimRight(string(body[:n]), "\x00") == "application/epub+zip"
}

func isDOCX(zr *zip.Reader) bool {
	for _, f := range zr.File {
		if f.Name == "[Content_Types].xml" {
			rc, err := f.Open()
			if err != nil {
				return false
			}
			defer rc.Close()
			data, err := io.ReadAll(io.LimitReader(rc, 8192))
			if err != nil {
				return false
			}
			return strings.Contains(string(data), "wordprocessingml")
		}
	}
	return false
}

func isCBZ(zr *zip.Reader) bool {
	found := false
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if strings.HasPrefix(filepath.Base(f.Name), ".") {
			continue
		}
		if !imageExtensions[ext] {
			return false
		}
		found = true
	}
	return found
}
