package epub

import "strings"

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// escapeXML escapes the characters that are unsafe inside XML text or
// attribute content. It does not escape single quotes since every
// attribute this package writes is double-quoted.
func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
