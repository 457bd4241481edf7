package security

import (
	"archive/zip"
	"io"
	"path"
	"strings"
	"time"
)

// Gate is the bounded-resource monitor wrapped around a single untrusted
// archive. It accounts for compressed/decompressed byte counts and entry
// counts across the lifetime of one Open call, and keeps a nesting-depth
// counter, driven through EnterNesting and ExitNesting, that readers share
// for XML/HTML nesting limits.
//
// A Gate is not safe for concurrent use; each reader invocation constructs
// its own.
type Gate struct {
	cfg Config

	totalDecompressed int64
	filesSeen         int

	deadline   time.Time
	hasDeadline bool

	depth int
}

// NewGate returns a Gate configured with cfg. If cfg.ParseTimeout is
// positive, the deadline starts counting from now.
func NewGate(cfg Config) *Gate {
	g := &Gate{cfg: cfg}
	if cfg.ParseTimeout > 0 {
		g.deadline = time.Now().Add(cfg.ParseTimeout)
		g.hasDeadline = true
	}
	return g
}

// CheckDeadline polls the gate's deadline, returning a Timeout error if it
// has passed. Readers must call this at loop boundaries: archive entry
// iteration, content-document parsing, resource recompression.
func (g *Gate) CheckDeadline() error {
	if !g.hasDeadline {
		return nil
	}
	if time.Now().After(g.deadline) {
		return Timeout(g.cfg.ParseTimeout.Seconds())
	}
	return nil
}

// EnterNesting increments the nesting depth counter and fails once it
// crosses MaxParseDepth. Callers must call ExitNesting on the way back out,
// typically via defer.
func (g *Gate) EnterNesting() error {
	g.depth++
	if g.cfg.MaxParseDepth > 0 && g.depth > g.cfg.MaxParseDepth {
		return ExcessiveNesting(g.depth, g.cfg.MaxParseDepth)
	}
	return nil
}

// ExitNesting decrements the nesting depth counter.
func (g *Gate) ExitNesting() {
	if g.depth > 0 {
		g.depth--
	}
}

// CheckEntryCount fails when n, a count of archive entries, exceeds
// MaxFileCount. The EPUB reader passes an archive's total entry count once
// up front; ReadEntry passes its running count of entries read.
func (g *Gate) CheckEntryCount(n int) error {
	if g.cfg.MaxFileCount > 0 && n > g.cfg.MaxFileCount {
		return TooManyFiles(n, g.cfg.MaxFileCount)
	}
	return nil
}

// CanonicalizeEntryPath cleans an archive-internal path and rejects it if it
// is absolute, contains ".." components, or otherwise escapes the notional
// archive root.
func CanonicalizeEntryPath(name string) (string, error) {
	if name == "" {
		return "", PathTraversal(name)
	}
	normalized := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", PathTraversal(name)
	}
	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "/" || strings.HasPrefix(cleaned, "/") {
		return "", PathTraversal(name)
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".." {
			return "", PathTraversal(name)
		}
	}
	return cleaned, nil
}

// ReadEntry reads the full, decompressed contents of a zip.File, enforcing
// the per-entry ratio, per-resource size cap, and the archive-wide
// decompressed-size budget. The entry's path is canonicalised and checked
// for traversal before anything is read.
func (g *Gate) ReadEntry(f *zip.File) ([]byte, error) {
	if _, err := CanonicalizeEntryPath(f.Name); err != nil {
		return nil, err
	}

	if g.cfg.MaxResourceSizeBytes > 0 && int64(f.UncompressedSize64) > g.cfg.MaxResourceSizeBytes {
		return nil, OversizedResource(f.Name, int64(f.UncompressedSize64), g.cfg.MaxResourceSizeBytes)
	}

	if g.cfg.MaxDecompressRatio > 0 && f.CompressedSize64 > 0 {
		ratio := int64(f.UncompressedSize64) / int64(f.CompressedSize64)
		if ratio > g.cfg.MaxDecompressRatio {
			return nil, ZipBomb(ratio, g.cfg.MaxDecompressRatio)
		}
	}

	if err := g.CheckDeadline(); err != nil {
		return nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The declared sizes in the header can be forged, so we enforce the cap
	// again against the actual bytes read, reading one byte past the limit
	// to detect an overrun even when the header lied.
	limit := g.cfg.MaxResourceSizeBytes
	if limit <= 0 {
		limit = 1 << 62
	}
	lr := io.LimitReader(rc, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, OversizedResource(f.Name, int64(len(data)), limit)
	}

	g.totalDecompressed += int64(len(data))
	if g.cfg.MaxDecompressedSizeBytes > 0 && g.totalDecompressed > g.cfg.MaxDecompressedSizeBytes {
		return nil, ZipBomb(g.totalDecompressed, g.cfg.MaxDecompressedSizeBytes)
	}

	g.filesSeen++
	if err := g.CheckEntryCount(g.filesSeen); err != nil {
		return nil, err
	}

	return data, nil
}

// TotalDecompressedBytes returns the running total of decompressed bytes
// read through this Gate so far.
func (g *Gate) TotalDecompressedBytes() int64 {
	return g.totalDecompressed
}
