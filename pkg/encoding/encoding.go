// Package encoding implements the single EncodingOptions-driven text
// normalisation pass shared by every reader and by the repair engine's
// fix_encoding action.
package encoding

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Form is the Unicode normalisation form to apply.
type Form string

const (
	NFC  Form = "NFC"
	NFD  Form = "NFD"
	NFKC Form = "NFKC"
	NFKD Form = "NFKD"
)

// Options drives the single encoding-normalisation component shared by
// readers and by the repair engine's fix_encoding action. The zero value
// normalises to NFC with no optional transforms enabled.
type Options struct {
	Form Form

	SmartQuotes        bool
	NormalizeLigatures bool
	NormalizeDashes    bool
	NormalizeWhitespace bool
	FixMacOSNFD        bool
}

// DefaultOptions matches the spec's documented defaults: NFC with no
// optional cosmetic transforms.
func DefaultOptions() Options {
	return Options{Form: NFC}
}

// Normalize applies opts to s: Unicode form normalisation is always
// applied; the remaining transforms are opt-in.
func Normalize(s string, opts Options) string {
	s = normalizeForm(s, opts.Form)

	if opts.NormalizeWhitespace {
		s = collapseWhitespace(s)
	}
	if opts.SmartQuotes {
		s = smartQuotes(s)
	}
	if opts.NormalizeLigatures {
		s = normalizeLigatures(s)
	}
	if opts.NormalizeDashes {
		s = normalizeDashes(s)
	}

	return s
}

func normalizeForm(s string, f Form) string {
	switch f {
	case NFD:
		return norm.NFD.String(s)
	case NFKC:
		return norm.NFKC.String(s)
	case NFKD:
		return norm.NFKD.String(s)
	case NFC, "":
		return norm.NFC.String(s)
	default:
		return norm.NFC.String(s)
	}
}

// StripBOM removes a leading UTF-8 byte-order mark, if present, reporting
// whether one was found.
func StripBOM(s string) (string, bool) {
	const bom = "\xef\xbb\xbf"
	if strings.HasPrefix(s, bom) {
		return strings.TrimPrefix(s, bom), true
	}
	return s, false
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) && r != '\n' {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var quoteReplacer = strings.NewReplacer(
	"``", "“",
	"''", "”",
)

// smartQuotes converts straight ASCII quotes to typographic equivalents.
// Opening vs closing is decided by the preceding rune: an opening quote
// follows whitespace, an open bracket, or the start of string.
func smartQuotes(s string) string {
	s = quoteReplacer.Replace(s)
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch r {
		case '"':
			if isOpeningContext(runes, i) {
				b.WriteRune('“')
			} else {
				b.WriteRune('”')
			}
		case '\'':
			if isOpeningContext(runes, i) {
				b.WriteRune('‘')
			} else {
				b.WriteRune('’')
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isOpeningContext(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	return unicode.IsSpace(prev) || prev == '(' || prev == '[' || prev == '{' || prev == '“'
}

var ligatureReplacer = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
)

func normalizeLigatures(s string) string {
	return ligatureReplacer.Replace(s)
}

var dashReplacer = strings.NewReplacer(
	"‒", "-",
	"–", "-",
	"—", "-",
	"―", "-",
)

func normalizeDashes(s string) string {
	return dashReplacer.Replace(s)
}

// ValidBCP47 reports whether tag parses as a syntactically valid BCP-47
// language tag.
func ValidBCP47(tag string) bool {
	if tag == "" {
		return false
	}
	_, err := language.Parse(tag)
	return err == nil
}
