package config

// loadDevelopmentConfig relaxes logging for a developer running the CLI
// against arbitrary local files: the log level is raised to debug, the
// security limits stay at their defaults, and validation issues are
// reported without being promoted to errors.
func loadDevelopmentConfig(cfg *Config) {
	cfg.LogLevel = "debug"
	cfg.Validate.Strict = false
}
