package epub

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/security"
)

// resolveResourceFunc maps an <img>/<image> href, resolved relative to the
// content document's directory, to a Resource id in the owning Document.
type resolveResourceFunc func(hrefRelativeToDoc string) string

// parseChapterContent parses a spine item's XHTML body into a sequence of
// ContentNodes, per the mapping table in the EPUB reader design: block
// elements map to their ContentNode counterpart, unrecognised block
// elements become RawPassthrough, and inline elements recurse into
// InlineNode.
func parseChapterContent(data []byte, docDir string, resolve resolveResourceFunc, gate *security.Gate) ([]ir.ContentNode, error) {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, errMalformed("invalid xhtml: " + err.Error())
	}

	body := findNode(root, atom.Body)
	if body == nil {
		return nil, nil
	}

	p := &contentParser{docDir: docDir, resolve: resolve, gate: gate}
	return p.blockChildren(body)
}

type contentParser struct {
	docDir  string
	resolve resolveResourceFunc
	gate    *security.Gate
}

func findNode(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// blockChildren converts every child of n that carries block-level
// meaning into a ContentNode, skipping whitespace-only text nodes between
// them.
func (p *contentParser) blockChildren(n *html.Node) ([]ir.ContentNode, error) {
	if err := p.gate.EnterNesting(); err != nil {
		return nil, err
	}
	defer p.gate.ExitNesting()

	var out []ir.ContentNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		node, err := p.blockNode(c)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}

func (p *contentParser) blockNode(n *html.Node) (ir.ContentNode, error) {
	if n.Type == html.TextNode {
		if strings.TrimSpace(n.Data) == "" {
			return nil, nil
		}
		return ir.Paragraph{Inlines: []ir.InlineNode{ir.Text{Value: n.Data}}}, nil
	}
	if n.Type != html.ElementNode {
		return nil, nil
	}

	switch n.DataAtom {
	case atom.P:
		inlines, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Paragraph{Inlines: inlines}, nil
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level, _ := strconv.Atoi(strings.TrimPrefix(n.Data, "h"))
		inlines, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Heading{Level: level, Inlines: inlines}, nil
	case atom.Ul, atom.Ol:
		items, err := p.listItems(n)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, nil
		}
		return ir.List{Ordered: n.DataAtom == atom.Ol, Items: items}, nil
	case atom.Table:
		return p.table(n)
	case atom.Blockquote:
		children, err := p.blockChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.BlockQuote{Children: children}, nil
	case atom.Pre:
		return p.codeBlock(n), nil
	case atom.Img:
		return p.image(n), nil
	case atom.Hr:
		return ir.HorizontalRule{}, nil
	case atom.Div, atom.Section, atom.Article:
		// Transparent containers: their block children are hoisted.
		return p.transparentBlock(n)
	default:
		if isInlineTag(n.DataAtom) {
			inlines, err := p.inlineNode(n)
			if err != nil {
				return nil, err
			}
			if inlines == nil {
				return nil, nil
			}
			return ir.Paragraph{Inlines: []ir.InlineNode{inlines}}, nil
		}
		return ir.RawPassthrough{FormatTag: "xhtml", Literal: renderNode(n)}, nil
	}
}

// transparentBlock flattens a <div>/<section>/<article> into its block
// children; since ContentNode is a single value here, two or more children
// are wrapped in a BlockQuote. In the common case of exactly one
// meaningful child we return that child directly.
func (p *contentParser) transparentBlock(n *html.Node) (ir.ContentNode, error) {
	children, err := p.blockChildren(n)
	if err != nil {
		return nil, err
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return ir.BlockQuote{Children: children}, nil
	}
}

func (p *contentParser) listItems(n *html.Node) ([][]ir.ContentNode, error) {
	var items [][]ir.ContentNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		content, err := p.blockChildren(c)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			// A list item with only inline content (no nested <p>).
			inlines, err := p.inlineChildren(c)
			if err != nil {
				return nil, err
			}
			if len(inlines) == 0 {
				continue
			}
			content = []ir.ContentNode{ir.Paragraph{Inlines: inlines}}
		}
		items = append(items, content)
	}
	return items, nil
}

func (p *contentParser) table(n *html.Node) (ir.ContentNode, error) {
	var header [][]ir.InlineNode
	var rows [][][]ir.InlineNode

	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead:
				for r := c.FirstChild; r != nil; r = r.NextSibling {
					if r.Type == html.ElementNode && r.DataAtom == atom.Tr {
						row, err := p.tableRow(r)
						if err != nil {
							return err
						}
						header = append(header, row...)
					}
				}
			case atom.Tbody, atom.Tfoot:
				if err := walk(c); err != nil {
					return err
				}
			case atom.Tr:
				row, err := p.tableRow(c)
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
		}
		return nil
	}
	if err := walk(n); err != nil {
		return nil, err
	}

	return ir.Table{Header: header, Rows: rows}, nil
}

// tableRow returns the cells of a <tr> as inline-node slices. It is used
// both for header rows (each cell appended individually) and body rows
// (returned as a single row).
func (p *contentParser) tableRow(tr *html.Node) ([][]ir.InlineNode, error) {
	var cells [][]ir.InlineNode
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		inlines, err := p.inlineChildren(c)
		if err != nil {
			return nil, err
		}
		cells = append(cells, inlines)
	}
	return cells, nil
}

func (p *contentParser) codeBlock(n *html.Node) ir.ContentNode {
	lang := ""
	literal := extractText(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Code {
			for _, cls := range strings.Fields(attr(c, "class")) {
				if strings.HasPrefix(cls, "language-") {
					lang = strings.TrimPrefix(cls, "language-")
				}
			}
		}
	}
	return ir.CodeBlock{Language: lang, Literal: literal}
}

func (p *contentParser) image(n *html.Node) ir.ContentNode {
	src := attr(n, "src")
	resolved := src
	if p.docDir != "" && src != "" && !strings.Contains(src, "://") {
		resolved = path.Join(p.docDir, src)
	}
	return ir.Image{
		ResourceID: p.resolve(resolved),
		Alt:        attr(n, "alt"),
	}
}

func (p *contentParser) inlineChildren(n *html.Node) ([]ir.InlineNode, error) {
	if err := p.gate.EnterNesting(); err != nil {
		return nil, err
	}
	defer p.gate.ExitNesting()

	var out []ir.InlineNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		node, err := p.inlineNodeAny(c)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, node...)
		}
	}
	return out, nil
}

func (p *contentParser) inlineNodeAny(n *html.Node) ([]ir.InlineNode, error) {
	if n.Type == html.TextNode {
		if n.Data == "" {
			return nil, nil
		}
		return []ir.InlineNode{ir.Text{Value: n.Data}}, nil
	}
	if n.Type != html.ElementNode {
		return nil, nil
	}
	node, err := p.inlineNode(n)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	return []ir.InlineNode{node}, nil
}

func (p *contentParser) inlineNode(n *html.Node) (ir.InlineNode, error) {
	switch n.DataAtom {
	case atom.Em, atom.I:
		children, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Emphasis{Children: children}, nil
	case atom.Strong, atom.B:
		children, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Strong{Children: children}, nil
	case atom.Code:
		return ir.Code{Value: extractText(n)}, nil
	case atom.A:
		children, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Link{Href: attr(n, "href"), Children: children}, nil
	case atom.Sup:
		children, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Superscript{Children: children}, nil
	case atom.Sub:
		children, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		return ir.Subscript{Children: children}, nil
	case atom.Ruby:
		return p.ruby(n), nil
	case atom.Br:
		return ir.LineBreak{}, nil
	case atom.Span:
		children, err := p.inlineChildren(n)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return ir.Emphasis{Children: children}, nil
	default:
		return nil, nil
	}
}

func (p *contentParser) ruby(n *html.Node) ir.InlineNode {
	var base, ann strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Rt) {
			ann.WriteString(extractText(c))
			continue
		}
		if c.Type == html.ElementNode && (c.DataAtom == atom.Rp) {
			continue
		}
		base.WriteString(extractText(c))
	}
	return ir.Ruby{Base: strings.TrimSpace(base.String()), Annotation: strings.TrimSpace(ann.String())}
}

func isInlineTag(a atom.Atom) bool {
	switch a {
	case atom.Em, atom.I, atom.Strong, atom.B, atom.Code, atom.A, atom.Sup, atom.Sub, atom.Ruby, atom.Br, atom.Span:
		return true
	}
	return false
}

func extractText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func renderNode(n *html.Node) string {
	var b strings.Builder
	_ = html.Render(&b, n)
	return b.String()
}

// --- writer-side inversion ---

// renderContentNodes inverts parseChapterContent, producing the inner
// XHTML of a chapter's <body>. epub3 controls whether Ruby is emitted
// as-is (true) or downgraded to superscript text (false).
func renderContentNodes(nodes []ir.ContentNode, epub3 bool) string {
	var b strings.Builder
	for _, n := range nodes {
		renderContentNode(&b, n, epub3)
	}
	return b.String()
}

func renderContentNode(b *strings.Builder, n ir.ContentNode, epub3 bool) {
	switch v := n.(type) {
	case ir.Paragraph:
		b.WriteString("<p>")
		renderInlines(b, v.Inlines, epub3)
		b.WriteString("</p>\n")
	case ir.Heading:
		level := v.Level
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(b, "<h%d>", level)
		renderInlines(b, v.Inlines, epub3)
		fmt.Fprintf(b, "</h%d>\n", level)
	case ir.List:
		tag := "ul"
		if v.Ordered {
			tag = "ol"
		}
		fmt.Fprintf(b, "<%s>\n", tag)
		for _, item := range v.Items {
			b.WriteString("<li>")
			for _, c := range item {
				renderContentNode(b, c, epub3)
			}
			b.WriteString("</li>\n")
		}
		fmt.Fprintf(b, "</%s>\n", tag)
	case ir.Table:
		b.WriteString("<table>\n")
		if len(v.Header) > 0 {
			b.WriteString("<thead><tr>")
			for _, cell := range v.Header {
				b.WriteString("<th>")
				renderInlines(b, cell, epub3)
				b.WriteString("</th>")
			}
			b.WriteString("</tr></thead>\n")
		}
		b.WriteString("<tbody>\n")
		for _, row := range v.Rows {
			b.WriteString("<tr>")
			for _, cell := range row {
				b.WriteString("<td>")
				renderInlines(b, cell, epub3)
				b.WriteString("</td>")
			}
			b.WriteString("</tr>\n")
		}
		b.WriteString("</tbody>\n</table>\n")
	case ir.BlockQuote:
		b.WriteString("<blockquote>\n")
		for _, c := range v.Children {
			renderContentNode(b, c, epub3)
		}
		b.WriteString("</blockquote>\n")
	case ir.CodeBlock:
		b.WriteString("<pre><code")
		if v.Language != "" {
			fmt.Fprintf(b, " class=\"language-%s\"", escapeXML(v.Language))
		}
		b.WriteString(">")
		b.WriteString(escapeXML(v.Literal))
		b.WriteString("</code></pre>\n")
	case ir.Image:
		fmt.Fprintf(b, "<img src=\"resources/%s\" alt=\"%s\"/>\n", escapeXML(v.ResourceID), escapeXML(v.Alt))
		if v.Caption != "" {
			fmt.Fprintf(b, "<p class=\"caption\">%s</p>\n", escapeXML(v.Caption))
		}
	case ir.HorizontalRule:
		b.WriteString("<hr/>\n")
	case ir.RawPassthrough:
		if v.FormatTag == "xhtml" {
			b.WriteString(v.Literal)
			b.WriteString("\n")
		}
		// Any other tag is dropped without a warning; neither this
		// renderer nor the validator reports it.
	}
}

func renderInlines(b *strings.Builder, inlines []ir.InlineNode, epub3 bool) {
	for _, n := range inlines {
		renderInline(b, n, epub3)
	}
}

func renderInline(b *strings.Builder, n ir.InlineNode, epub3 bool) {
	switch v := n.(type) {
	case ir.Text:
		b.WriteString(escapeXML(v.Value))
	case ir.Emphasis:
		b.WriteString("<em>")
		renderInlines(b, v.Children, epub3)
		b.WriteString("</em>")
	case ir.Strong:
		b.WriteString("<strong>")
		renderInlines(b, v.Children, epub3)
		b.WriteString("</strong>")
	case ir.Code:
		b.WriteString("<code>")
		b.WriteString(escapeXML(v.Value))
		b.WriteString("</code>")
	case ir.Link:
		fmt.Fprintf(b, "<a href=\"%s\">", escapeXML(v.Href))
		renderInlines(b, v.Children, epub3)
		b.WriteString("</a>")
	case ir.Superscript:
		b.WriteString("<sup>")
		renderInlines(b, v.Children, epub3)
		b.WriteString("</sup>")
	case ir.Subscript:
		b.WriteString("<sub>")
		renderInlines(b, v.Children, epub3)
		b.WriteString("</sub>")
	case ir.Ruby:
		if epub3 {
			fmt.Fprintf(b, "<ruby>%s<rt>%s</rt></ruby>", escapeXML(v.Base), escapeXML(v.Annotation))
		} else {
			// EPUB2 downgrade: base text plus the annotation in superscript.
			fmt.Fprintf(b, "%s<sup>%s</sup>", escapeXML(v.Base), escapeXML(v.Annotation))
		}
	case ir.LineBreak:
		b.WriteString("<br/>\n")
	}
}
