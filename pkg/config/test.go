package config

// loadTestConfig tightens the security envelope to values small enough for
// fast, deterministic table tests (no multi-megabyte fixtures) while
// keeping validation lenient so fixtures built for one assertion don't
// trip unrelated checks.
func loadTestConfig(cfg *Config) {
	cfg.LogLevel = "error"
	cfg.Security.MaxDecompressedSizeBytes = 16 << 20
	cfg.Security.MaxResourceSizeBytes = 8 << 20
	cfg.Security.MaxFileCount = 1000
	cfg.Validate.Strict = false
}
