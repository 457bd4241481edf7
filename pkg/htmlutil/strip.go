// Package htmlutil flattens XHTML markup the core doesn't otherwise parse
// into plain text, backing the TXT writer's handling of
// ir.RawPassthrough("xhtml", ...) nodes per spec.md §3's "a writer that
// doesn't understand a passthrough tag must drop it with a warning" rule.
package htmlutil

import (
	"regexp"
	"strconv"
	"strings"
)

// tagPattern matches HTML tags including self-closing tags.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// multipleSpacesPattern matches multiple consecutive whitespace characters.
var multipleSpacesPattern = regexp.MustCompile(`\s{2,}`)

// imgAltPattern captures the alt attribute of an <img> tag so a cover or
// inline image surviving inside a passthrough blob leaves a text trace
// instead of vanishing outright.
var imgAltPattern = regexp.MustCompile(`(?i)<img\b[^>]*\balt\s*=\s*["']([^"']*)["'][^>]*/?>`)

// listItemOpenPattern matches an opening <li ...> tag.
var listItemOpenPattern = regexp.MustCompile(`(?i)<li\b[^>]*>`)

// blockQuoteOpenPattern matches an opening <blockquote ...> tag.
var blockQuoteOpenPattern = regexp.MustCompile(`(?i)<blockquote\b[^>]*>`)

// numericEntityPattern matches decimal and hexadecimal numeric character
// references, the form EPUB content documents use for punctuation its
// source toolchain didn't map to a named entity.
var numericEntityPattern = regexp.MustCompile(`&#(x[0-9a-fA-F]+|[0-9]+);`)

// StripTags flattens a fragment of ebook content markup to plain text.
// Block-level elements common in chapter bodies (paragraphs, headings,
// list items, blockquotes, horizontal rules) become newlines or line
// prefixes so the output still reads like prose instead of one run-on
// line, and <img> tags are replaced with their alt text rather than
// silently dropped.
func StripTags(html string) string {
	if html == "" {
		return ""
	}

	result := imgAltPattern.ReplaceAllString(html, "[$1]")
	result = replaceListItems(result)
	result = replaceBlockQuotes(result)

	blockTags := []string{
		"</p>", "</div>", "<br>", "<br/>", "<br />",
		"</h1>", "</h2>", "</h3>", "</h4>", "</h5>", "</h6>",
		"<hr>", "<hr/>", "<hr />",
	}
	for _, tag := range blockTags {
		result = strings.ReplaceAll(result, tag, "\n")
		result = strings.ReplaceAll(result, strings.ToUpper(tag), "\n")
	}

	result = tagPattern.ReplaceAllString(result, "")
	result = decodeHTMLEntities(result)

	lines := strings.Split(result, "\n")
	for i, line := range lines {
		line = multipleSpacesPattern.ReplaceAllString(line, " ")
		lines[i] = strings.TrimSpace(line)
	}

	var nonEmptyLines []string
	for _, line := range lines {
		if line != "" {
			nonEmptyLines = append(nonEmptyLines, line)
		}
	}

	return strings.Join(nonEmptyLines, "\n")
}

// replaceListItems turns <li>...</li> into "- ..." lines; a bare tag
// strip would otherwise run every list item together on one line.
func replaceListItems(html string) string {
	result := listItemOpenPattern.ReplaceAllString(html, "\n- ")
	result = strings.ReplaceAll(result, "</li>", "\n")
	result = strings.ReplaceAll(result, "</LI>", "\n")
	return result
}

// replaceBlockQuotes brackets quoted passages with "> " prefixes, the
// same convention the plain-text writer uses for quote blocks that
// survive IR-level parsing.
func replaceBlockQuotes(html string) string {
	result := blockQuoteOpenPattern.ReplaceAllString(html, "\n> ")
	result = strings.ReplaceAll(result, "</blockquote>", "\n")
	result = strings.ReplaceAll(result, "</BLOCKQUOTE>", "\n")
	return result
}

// decodeHTMLEntities decodes the entities that show up in ebook content
// documents: named punctuation plus the soft hyphen, which publishers
// insert for line-break hinting and which has no place in flattened
// plain text.
func decodeHTMLEntities(s string) string {
	replacements := []struct {
		entity string
		char   string
	}{
		{"&nbsp;", " "},
		{"&shy;", ""},
		{"&amp;", "&"},
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&quot;", "\""},
		{"&#39;", "'"},
		{"&apos;", "'"},
		{"&mdash;", "—"},
		{"&ndash;", "–"},
		{"&hellip;", "…"},
		{"&rsquo;", "’"},
		{"&lsquo;", "‘"},
		{"&rdquo;", "”"},
		{"&ldquo;", "“"},
		{"&copy;", "©"},
		{"&reg;", "®"},
		{"&trade;", "™"},
	}

	result := s
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.entity, r.char)
	}

	result = numericEntityPattern.ReplaceAllStringFunc(result, func(ref string) string {
		digits := ref[2 : len(ref)-1]
		base := 10
		if len(digits) > 0 && (digits[0] == 'x' || digits[0] == 'X') {
			digits = digits[1:]
			base = 16
		}
		code, err := strconv.ParseInt(digits, base, 32)
		if err != nil {
			return ref
		}
		return string(rune(code))
	})

	return result
}
