package config

import (
	"os"

	"github.com/pkg/errors"

	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/security"
	"github.com/folioglyph/folioglyph/pkg/validate"
)

// Config is the host-supplied value spec.md §6 describes as "plain values,
// not global state": the security limits, encoding policy, and
// read/write/validate defaults every pipeline invocation is built from.
// Nothing here is mutated once New returns it; per-call overrides are the
// caller's responsibility.
type Config struct {
	Hostname string
	LogLevel string

	Security security.Config
	Encoding encoding.Options
	Validate validate.Options

	ImageQuality int
	EPUBVersion  string
	EmbedFonts   bool
	Minify       bool
	ExtractCover bool
	ParseTOC     bool
}

const environmentENV = "ENVIRONMENT"

// New builds a Config from the spec's documented defaults, then layers an
// environment-specific override selected by ENVIRONMENT, the same
// three-way switch the teacher's config package uses for its
// database/server settings.
func New() (*Config, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{
		Hostname:     hostname,
		LogLevel:     "info",
		Security:     security.DefaultConfig(),
		Encoding:     encoding.DefaultOptions(),
		Validate:     validate.DefaultOptions(),
		ImageQuality: 80,
		EPUBVersion:  "3.0",
		ExtractCover: true,
		ParseTOC:     true,
		Minify:       true,
	}

	switch os.Getenv(environmentENV) {
	case "development", "":
		loadDevelopmentConfig(cfg)
	case "test":
		loadTestConfig(cfg)
	case "production":
		loadProductionConfig(cfg)
	}

	return cfg, nil
}
