// Package security implements the bounded-resource guardrails every reader
// applies around untrusted, framed/compressed input: decompression ratio
// and size limits, file-count limits, path-traversal rejection, nesting
// depth limits, and cooperative deadlines. No parsing proceeds without it.
package security

import "time"

// Config is a plain value carried explicitly through every operation; the
// Security Gate has no global state.
type Config struct {
	// MaxDecompressRatio bounds decompressed/compressed size per entry.
	MaxDecompressRatio int64
	// MaxDecompressedSizeBytes bounds total decompressed bytes across an
	// entire archive.
	MaxDecompressedSizeBytes int64
	// MaxFileCount bounds the number of entries an archive may contain.
	MaxFileCount int
	// MaxResourceSizeBytes bounds the decompressed size of any single entry.
	MaxResourceSizeBytes int64
	// MaxParseDepth bounds XML/HTML nesting levels.
	MaxParseDepth int
	// ParseTimeout bounds wall-clock time per file.
	ParseTimeout time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDecompressRatio:       100,
		MaxDecompressedSizeBytes: 1 << 30, // 1 GiB
		MaxFileCount:             10000,
		MaxResourceSizeBytes:     100 << 20, // 100 MiB
		MaxParseDepth:            256,
		ParseTimeout:             60 * time.Second,
	}
}
