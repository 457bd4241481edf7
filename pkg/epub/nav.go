package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/security"
)

// navHTML models the subset of an EPUB3 navigation document's structure
// this package cares about; it is parsed with encoding/xml against the
// document's XHTML serialisation (well-formed XML, unlike arbitrary HTML).
type navHTML struct {
	Body struct {
		Nav []navElement `xml:"nav"`
	} `xml:"body"`
}

type navElement struct {
	Type string  `xml:"type,attr"`
	OL   *navOL  `xml:"ol"`
}

type navOL struct {
	Items []navLI `xml:"li"`
}

type navLI struct {
	A        *navLink `xml:"a"`
	Span     *navSpan `xml:"span"`
	Children *navOL   `xml:"ol"`
}

type navLink struct {
	HrefAttr string `xml:"href,attr"`
	Text     string `xml:",chardata"`
}

type navSpan struct {
	Text string `xml:",chardata"`
}

// parseNav reads the EPUB3 nav document at href and returns its "toc" nav
// element as a TocEntry tree. hrefs are resolved relative to dir.
func parseNav(zr *zip.Reader, gate *security.Gate, href, dir string) ([]ir.TocEntry, error) {
	f := findFile(zr, href)
	if f == nil {
		return nil, nil
	}
	data, err := gate.ReadEntry(f)
	if err != nil {
		return nil, err
	}

	var doc navHTML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "epub: parse nav document")
	}

	for _, n := range doc.Body.Nav {
		if n.Type == "toc" && n.OL != nil {
			return navOLToToc(n.OL, dir), nil
		}
	}
	return nil, nil
}

func navOLToToc(ol *navOL, dir string) []ir.TocEntry {
	if ol == nil {
		return nil
	}
	entries := make([]ir.TocEntry, 0, len(ol.Items))
	for _, li := range ol.Items {
		var title, href string
		switch {
		case li.A != nil:
			title = strings.TrimSpace(li.A.Text)
			href = resolveTocHref(li.A.HrefAttr, dir)
		case li.Span != nil:
			title = strings.TrimSpace(li.Span.Text)
		}
		if title == "" {
			continue
		}
		entries = append(entries, ir.TocEntry{
			Title:    title,
			Href:     href,
			Children: navOLToToc(li.Children, dir),
		})
	}
	return entries
}

// ncx models an EPUB2 NCX navigation document.
type ncx struct {
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	NavLabel struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseNCX reads the EPUB2 NCX document at href.
func parseNCX(zr *zip.Reader, gate *security.Gate, href, dir string) ([]ir.TocEntry, error) {
	f := findFile(zr, href)
	if f == nil {
		return nil, nil
	}
	data, err := gate.ReadEntry(f)
	if err != nil {
		return nil, err
	}

	var doc ncx
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "epub: parse ncx")
	}
	return ncxPointsToToc(doc.NavMap.NavPoints, dir), nil
}

func ncxPointsToToc(points []ncxNavPoint, dir string) []ir.TocEntry {
	entries := make([]ir.TocEntry, 0, len(points))
	for _, np := range points {
		title := strings.TrimSpace(np.NavLabel.Text)
		if title == "" {
			continue
		}
		entries = append(entries, ir.TocEntry{
			Title:    title,
			Href:     resolveTocHref(np.Content.Src, dir),
			Children: ncxPointsToToc(np.Children, dir),
		})
	}
	return entries
}

// resolveTocHref turns an href relative to the nav/ncx document's directory
// into a "chapter_id#fragment" reference the IR expects; the chapter_id is
// the resolved content-document filename.
func resolveTocHref(href, dir string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	frag := ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		frag = href[i+1:]
		href = href[:i]
	}
	if href == "" {
		return "#" + frag
	}
	resolved := href
	if dir != "" {
		resolved = path.Join(dir, href)
	}
	if frag != "" {
		return resolved + "#" + frag
	}
	return resolved
}

// buildNAV serialises toc into an EPUB3 navigation document.
func buildNAV(title string, toc []ir.TocEntry) []byte {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">` + "\n")
	fmt.Fprintf(&b, "<head><title>%s</title></head>\n", escapeXML(title))
	b.WriteString("<body>\n<nav epub:type=\"toc\" id=\"toc\">\n<ol>\n")
	writeNavOL(&b, toc)
	b.WriteString("</ol>\n</nav>\n</body>\n</html>\n")
	return []byte(b.String())
}

func writeNavOL(b *strings.Builder, entries []ir.TocEntry) {
	for _, e := range entries {
		fmt.Fprintf(b, "<li><a href=\"%s\">%s</a>", escapeXML(e.Href), escapeXML(e.Title))
		if len(e.Children) > 0 {
			b.WriteString("\n<ol>\n")
			writeNavOL(b, e.Children)
			b.WriteString("</ol>\n")
		}
		b.WriteString("</li>\n")
	}
}

// buildNCX serialises toc into an EPUB2 NCX document, writing every level
// of toc as nested navPoints at its full depth; no level is flattened.
func buildNCX(uid, title string, toc []ir.TocEntry) []byte {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">` + "\n")
	fmt.Fprintf(&b, "<head><meta name=\"dtb:uid\" content=\"%s\"/></head>\n", escapeXML(uid))
	fmt.Fprintf(&b, "<docTitle><text>%s</text></docTitle>\n", escapeXML(title))
	b.WriteString("<navMap>\n")
	counter := 0
	writeNCXNavPoints(&b, toc, &counter)
	b.WriteString("</navMap>\n</ncx>\n")
	return []byte(b.String())
}

func writeNCXNavPoints(b *strings.Builder, entries []ir.TocEntry, counter *int) {
	for _, e := range entries {
		*counter++
		fmt.Fprintf(b, "<navPoint id=\"navpoint-%d\">\n", *counter)
		fmt.Fprintf(b, "<navLabel><text>%s</text></navLabel>\n", escapeXML(e.Title))
		fmt.Fprintf(b, "<content src=\"%s\"/>\n", escapeXML(e.Href))
		if len(e.Children) > 0 {
			writeNCXNavPoints(b, e.Children, counter)
		}
		b.WriteString("</navPoint>\n")
	}
}
