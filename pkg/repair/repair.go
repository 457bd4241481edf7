// Package repair implements the Repair Engine: a transactional, best-effort
// pass over a Document that fixes issues the Validator would otherwise
// flag. Repair never mutates the caller's Document; it clones first and,
// on critical failure, discards the clone and returns the caller's
// Document unchanged.
package repair

import (
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/folioglyph/folioglyph/pkg/ebookerr"
	"github.com/folioglyph/folioglyph/pkg/encoding"
	"github.com/folioglyph/folioglyph/pkg/ir"
)

// ProgressFunc receives {operation_tag, current, total, message} updates,
// one per repair action attempted. It must be cheap and non-blocking; a
// panic raised inside it is recovered and ignored.
type ProgressFunc func(tag string, current, total int, message string)

func reportProgress(fn ProgressFunc, tag string, current, total int, message string) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn(tag, current, total, message)
}

// Options selects which repair actions run, keyed by the Validator issue
// code each one targets.
type Options struct {
	FixMetadata bool
	FixLinks    bool
	FixXML      bool
	FixEncoding bool
	GenerateTOC bool
	FixZip      bool

	Encoding encoding.Options

	// Deadline, when non-zero, aborts the repair once passed. Checked
	// between actions.
	Deadline time.Time
}

func (o Options) checkDeadline() error {
	if o.Deadline.IsZero() {
		return nil
	}
	if time.Now().After(o.Deadline) {
		return ebookerr.Cancelled()
	}
	return nil
}

// DefaultOptions enables every repair action with the default encoding
// policy.
func DefaultOptions() Options {
	return Options{
		FixMetadata: true,
		FixLinks:    true,
		FixXML:      true,
		FixEncoding: true,
		GenerateTOC: true,
		FixZip:      true,
		Encoding:    encoding.DefaultOptions(),
	}
}

// Report summarises what a Repair call did.
type Report struct {
	FixesApplied []string
	FixesFailed  []string
}

func (r *Report) applied(action string) { r.FixesApplied = append(r.FixesApplied, action) }
func (r *Report) failed(action string)  { r.FixesFailed = append(r.FixesFailed, action) }

// criticalActions restore the original Document on failure rather than
// accumulating into FixesFailed. None of the current Document-level steps
// qualify; archive-level repair is critical by nature and happens earlier,
// in epub.Read via epub.RepairArchive, before a Document exists at all.
var criticalActions = map[string]bool{}

// Repair runs every enabled action over a clone of doc, in the fixed order
// fix_metadata, fix_links, generate_toc, fix_xml, fix_encoding, fix_zip.
// fix_links runs before generate_toc so a TOC left with only dangling
// entries is pruned to empty first and gets regenerated rather than kept
// empty-but-applied; that ordering is also what makes the engine
// idempotent (repair(repair(d)) ≡ repair(d)) rather than oscillating
// between a pruned and a regenerated TOC on alternating calls.
func Repair(doc *ir.Document, opts Options, progress ProgressFunc) (*ir.Document, Report, error) {
	clone := doc.Clone()
	var report Report

	type step struct {
		name string
		run  func(*ir.Document) error
	}
	steps := []step{
		{"fix_metadata", fixMetadata},
		{"fix_links", fixLinks},
		{"generate_toc", generateTOC},
		{"fix_xml", fixXML},
		{"fix_encoding", func(d *ir.Document) error { return fixEncoding(d, opts.Encoding) }},
	}

	enabled := map[string]bool{
		"fix_metadata": opts.FixMetadata,
		"generate_toc": opts.GenerateTOC,
		"fix_links":    opts.FixLinks,
		"fix_xml":      opts.FixXML,
		"fix_encoding": opts.FixEncoding,
	}

	total := len(steps)
	for i, s := range steps {
		if !enabled[s.name] {
			continue
		}
		if err := opts.checkDeadline(); err != nil {
			return doc, Report{FixesFailed: []string{s.name}}, err
		}
		if err := s.run(clone); err != nil {
			if criticalActions[s.name] {
				return doc, Report{FixesFailed: []string{s.name}}, ebookerr.CriticalRepairFailed(s.name, err.Error())
			}
			report.failed(s.name)
			reportProgress(progress, "repair:"+s.name, i+1, total, "failed")
			continue
		}
		report.applied(s.name)
		reportProgress(progress, "repair:"+s.name, i+1, total, "applied")
	}

	// fix_zip has no Document-level work to do: by the time a Document
	// exists, epub.Read already parsed its archive successfully, rebuilding
	// the central directory via epub.RepairArchive first if the original
	// one was corrupt (see ir.FormatOrigin.ArchiveRepaired). Report it as
	// applied only when that upstream repair is what made this Document
	// possible, rather than claiming credit for nothing.
	if opts.FixZip {
		if clone.Origin.ArchiveRepaired {
			report.applied("fix_zip")
		}
	}

	return clone, report, nil
}

// fixMetadata fills missing required fields from sensible defaults: empty
// title from the first heading encountered, empty language from "und".
func fixMetadata(doc *ir.Document) error {
	if doc.Metadata.Title == "" {
		if h := firstHeadingText(doc); h != "" {
			doc.Metadata.Title = h
		}
	}
	if doc.Metadata.Language == "" {
		doc.Metadata.Language = "und"
	}
	return nil
}

func firstHeadingText(doc *ir.Document) string {
	for _, ch := range doc.Chapters {
		for _, n := range ch.Content {
			if h, ok := n.(ir.Heading); ok {
				return flattenText(h.Inlines)
			}
		}
	}
	return ""
}

func flattenText(inlines []ir.InlineNode) string {
	var b strings.Builder
	for _, n := range inlines {
		switch v := n.(type) {
		case ir.Text:
			b.WriteString(v.Value)
		case ir.Emphasis:
			b.WriteString(flattenText(v.Children))
		case ir.Strong:
			b.WriteString(flattenText(v.Children))
		case ir.Link:
			b.WriteString(flattenText(v.Children))
		}
	}
	return b.String()
}

// generateTOC derives a TOC from level-1 and level-2 Heading nodes when the
// Document has none. Level-1 headings become top-level entries, level-2
// headings in the same chapter become their children.
func generateTOC(doc *ir.Document) error {
	if len(doc.Toc) > 0 {
		return nil
	}
	var toc []ir.TocEntry
	for _, ch := range doc.Chapters {
		var current *ir.TocEntry
		for _, n := range ch.Content {
			h, ok := n.(ir.Heading)
			if !ok {
				continue
			}
			title := flattenText(h.Inlines)
			if title == "" {
				continue
			}
			switch h.Level {
			case 1:
				toc = append(toc, ir.TocEntry{Title: title, Href: ch.ID})
				current = &toc[len(toc)-1]
			case 2:
				if current != nil {
					current.Children = append(current.Children, ir.TocEntry{Title: title, Href: ch.ID})
				}
			}
		}
	}
	if len(toc) > 0 {
		doc.Toc = toc
	}
	return nil
}

// fixLinks removes Image nodes and TOC entries that reference a
// nonexistent id, and remaps internal Links: an unresolvable internal href
// is first tried against chapters whose id shares the broken href's final
// path segment (a "matching slug"); failing that, the link is replaced by a
// single Text node holding the text of its Text, Emphasis, Strong and Link
// children.
func fixLinks(doc *ir.Document) error {
	doc.Toc = filterTocEntries(doc.Toc, doc)

	for i := range doc.Chapters {
		doc.Chapters[i].Content = fixLinksInContent(doc.Chapters[i].Content, doc)
	}
	return nil
}

func filterTocEntries(entries []ir.TocEntry, doc *ir.Document) []ir.TocEntry {
	var out []ir.TocEntry
	for _, e := range entries {
		if doc.ChapterByID(e.ChapterID()) == nil {
			continue
		}
		e.Children = filterTocEntries(e.Children, doc)
		out = append(out, e)
	}
	return out
}

func fixLinksInContent(nodes []ir.ContentNode, doc *ir.Document) []ir.ContentNode {
	out := nodes[:0:0]
	for _, n := range nodes {
		switch v := n.(type) {
		case ir.Image:
			if _, ok := doc.Resources[v.ResourceID]; !ok {
				continue
			}
			out = append(out, v)
		case ir.List:
			for i := range v.Items {
				v.Items[i] = fixLinksInContent(v.Items[i], doc)
			}
			out = append(out, v)
		case ir.BlockQuote:
			v.Children = fixLinksInContent(v.Children, doc)
			out = append(out, v)
		case ir.Paragraph:
			v.Inlines = fixLinksInInlines(v.Inlines, doc)
			out = append(out, v)
		case ir.Heading:
			v.Inlines = fixLinksInInlines(v.Inlines, doc)
			out = append(out, v)
		default:
			out = append(out, n)
		}
	}
	return out
}

func fixLinksInInlines(inlines []ir.InlineNode, doc *ir.Document) []ir.InlineNode {
	out := inlines[:0:0]
	for _, n := range inlines {
		switch v := n.(type) {
		case ir.Link:
			out = append(out, fixLink(v, doc))
		case ir.Emphasis:
			v.Children = fixLinksInInlines(v.Children, doc)
			out = append(out, v)
		case ir.Strong:
			v.Children = fixLinksInInlines(v.Children, doc)
			out = append(out, v)
		default:
			out = append(out, n)
		}
	}
	return out
}

func fixLink(l ir.Link, doc *ir.Document) ir.InlineNode {
	if strings.Contains(l.Href, "://") {
		return l
	}
	base := l.Href
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	if base == "" || doc.ChapterByID(base) != nil {
		return l
	}

	slug := base
	if i := strings.LastIndexByte(slug, '/'); i >= 0 {
		slug = slug[i+1:]
	}
	for _, ch := range doc.Chapters {
		if strings.Contains(ch.ID, slug) {
			l.Href = ch.ID
			return l
		}
	}

	return ir.Text{Value: flattenText(l.Children)}
}

// fixXML re-parses RawPassthrough("xhtml", ...) fragments leniently and
// re-serialises them, which repairs unbalanced markup; text whitespace is
// kept as parsed.
func fixXML(doc *ir.Document) error {
	for i := range doc.Chapters {
		fixXMLInContent(doc.Chapters[i].Content)
	}
	return nil
}

func fixXMLInContent(nodes []ir.ContentNode) {
	for i, n := range nodes {
		switch v := n.(type) {
		case ir.RawPassthrough:
			if v.FormatTag == "xhtml" {
				v.Literal = lenientReserialize(v.Literal)
				nodes[i] = v
			}
		case ir.List:
			for j := range v.Items {
				fixXMLInContent(v.Items[j])
			}
		case ir.BlockQuote:
			fixXMLInContent(v.Children)
		}
	}
}

// fixEncoding applies the configured normalisation form to the metadata
// title and description and to the Text leaves of paragraphs and headings
// (including inside emphasis, strong and links, and through lists and
// block quotes), and strips any residual BOM characters that ended up
// embedded mid-text (as opposed to a leading file-level BOM, which the
// reader already strips). Table cells and superscript, subscript and ruby
// text are not visited.
func fixEncoding(doc *ir.Document, opts encoding.Options) error {
	doc.Metadata.Title = stripInteriorBOM(encoding.Normalize(doc.Metadata.Title, opts))
	doc.Metadata.Description = stripInteriorBOM(encoding.Normalize(doc.Metadata.Description, opts))
	for i := range doc.Chapters {
		fixEncodingInContent(doc.Chapters[i].Content, opts)
	}
	return nil
}

func fixEncodingInContent(nodes []ir.ContentNode, opts encoding.Options) {
	for i, n := range nodes {
		switch v := n.(type) {
		case ir.Paragraph:
			v.Inlines = fixEncodingInInlines(v.Inlines, opts)
			nodes[i] = v
		case ir.Heading:
			v.Inlines = fixEncodingInInlines(v.Inlines, opts)
			nodes[i] = v
		case ir.List:
			for j := range v.Items {
				fixEncodingInContent(v.Items[j], opts)
			}
		case ir.BlockQuote:
			fixEncodingInContent(v.Children, opts)
		}
	}
}

func fixEncodingInInlines(inlines []ir.InlineNode, opts encoding.Options) []ir.InlineNode {
	for i, n := range inlines {
		switch v := n.(type) {
		case ir.Text:
			v.Value = stripInteriorBOM(encoding.Normalize(v.Value, opts))
			inlines[i] = v
		case ir.Emphasis:
			v.Children = fixEncodingInInlines(v.Children, opts)
			inlines[i] = v
		case ir.Strong:
			v.Children = fixEncodingInInlines(v.Children, opts)
			inlines[i] = v
		case ir.Link:
			v.Children = fixEncodingInInlines(v.Children, opts)
			inlines[i] = v
		}
	}
	return inlines
}

func stripInteriorBOM(s string) string {
	return strings.ReplaceAll(s, "\xef\xbb\xbf", "")
}

// lenientReserialize re-parses an XHTML fragment with a tolerant HTML
// parser and re-renders it, discarding the outer html/head/body scaffold
// html.Parse adds. Unbalanced or malformed markup comes out well-formed;
// well-formed markup is re-rendered with its text whitespace unchanged.
func lenientReserialize(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil || len(nodes) == 0 {
		return fragment
	}
	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return fragment
		}
	}
	return b.String()
}
