package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "plain text no tags",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "simple paragraph",
			input:    "<p>Hello world</p>",
			expected: "Hello world",
		},
		{
			name:     "multiple paragraphs",
			input:    "<p>First paragraph</p><p>Second paragraph</p>",
			expected: "First paragraph\nSecond paragraph",
		},
		{
			name:     "div with content",
			input:    "<div>Content here</div>",
			expected: "Content here",
		},
		{
			name:     "nested tags",
			input:    "<p><strong>Bold</strong> and <em>italic</em></p>",
			expected: "Bold and italic",
		},
		{
			name:     "br tags",
			input:    "Line one<br>Line two<br/>Line three<br />Line four",
			expected: "Line one\nLine two\nLine three\nLine four",
		},
		{
			name:     "tags with attributes",
			input:    `<p class="chapter-body">Styled text</p>`,
			expected: "Styled text",
		},
		{
			name:     "html entities",
			input:    "Tom &amp; Jerry &mdash; the classic",
			expected: "Tom & Jerry — the classic",
		},
		{
			name:     "multiple spaces collapsed",
			input:    "Too    many    spaces",
			expected: "Too many spaces",
		},
		{
			name:     "list items become bullet lines",
			input:    `<ul><li class="toc-entry">Item one</li><li>Item two</li></ul>`,
			expected: "- Item one\n- Item two",
		},
		{
			name:     "headings",
			input:    "<h1>Title</h1><p>Content</p>",
			expected: "Title\nContent",
		},
		{
			name:     "horizontal rule becomes a line break",
			input:    "<p>Before</p><hr/><p>After</p>",
			expected: "Before\nAfter",
		},
		{
			name:     "blockquote gets a quote prefix",
			input:    `<blockquote cite="epigraph">It was the best of times.</blockquote>`,
			expected: "> It was the best of times.",
		},
		{
			name:     "img alt text is kept as bracketed text",
			input:    `Cover: <img src="cover.jpg" alt="A lighthouse at dusk"/> end`,
			expected: "Cover: [A lighthouse at dusk] end",
		},
		{
			name:     "img without alt vanishes like any other tag",
			input:    `Text <img src="deco.png"/> more text`,
			expected: "Text more text",
		},
		{
			name:     "nbsp entity",
			input:    "Hello&nbsp;world",
			expected: "Hello world",
		},
		{
			name:     "soft hyphen is dropped",
			input:    "super&shy;cali&shy;fragilistic",
			expected: "supercalifragilistic",
		},
		{
			name:     "quotes entities",
			input:    "&ldquo;Hello&rdquo; said the &lsquo;man&rsquo;",
			expected: "“Hello” said the ‘man’",
		},
		{
			name:     "preserves content between inline tags",
			input:    "This is <strong>very</strong> important",
			expected: "This is very important",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := StripTags(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDecodeHTMLEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "ampersand",
			input:    "Tom &amp; Jerry",
			expected: "Tom & Jerry",
		},
		{
			name:     "less than greater than",
			input:    "&lt;tag&gt;",
			expected: "<tag>",
		},
		{
			name:     "quotes",
			input:    "&quot;quoted&quot;",
			expected: "\"quoted\"",
		},
		{
			name:     "apostrophe variants",
			input:    "it&#39;s &apos;quoted&apos;",
			expected: "it's 'quoted'",
		},
		{
			name:     "dashes named entities",
			input:    "em&mdash;dash and en&ndash;dash",
			expected: "em—dash and en–dash",
		},
		{
			name:     "dashes decimal numeric entities",
			input:    "em&#8212;dash and en&#8211;dash",
			expected: "em—dash and en–dash",
		},
		{
			name:     "dashes hex numeric entities",
			input:    "em&#x2014;dash and en&#x2013;dash",
			expected: "em—dash and en–dash",
		},
		{
			name:     "copyright trademark",
			input:    "&copy; 2024 Brand&trade; &reg;",
			expected: "© 2024 Brand™ ®",
		},
		{
			name:     "soft hyphen",
			input:    "hyphen&shy;ated",
			expected: "hyphenated",
		},
		{
			name:     "invalid numeric entity is left alone",
			input:    "broken &#xzzzz; reference",
			expected: "broken &#xzzzz; reference",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := decodeHTMLEntities(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
