package config

// loadProductionConfig is the tightened profile for serving real,
// untrusted uploads: validation failures are promoted to hard errors and
// accessibility checks are enabled at the spec's documented WCAG level.
func loadProductionConfig(cfg *Config) {
	cfg.LogLevel = "info"
	cfg.Validate.Strict = true
	cfg.Validate.Accessibility = true
}
