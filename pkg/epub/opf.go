package epub

import (
	"archive/zip"
	"encoding/xml"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/folioglyph/folioglyph/pkg/identifiers"
	"github.com/folioglyph/folioglyph/pkg/ir"
	"github.com/folioglyph/folioglyph/pkg/security"
)

// Package mirrors the structure of an OPF package document closely enough
// to round-trip every field the IR understands, plus an Overflow-bound
// catch-all for vendor meta tags.
type Package struct {
	XMLName          xml.Name `xml:"package"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`
	Metadata         struct {
		Title []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"title"`
		Creator []struct {
			Text   string `xml:",chardata"`
			ID     string `xml:"id,attr"`
			Role   string `xml:"role,attr"`
			FileAs string `xml:"file-as,attr"`
		} `xml:"creator"`
		Description string `xml:"description"`
		Publisher   string `xml:"publisher"`
		Subject     []string `xml:"subject"`
		Identifier  []struct {
			Text   string `xml:",chardata"`
			ID     string `xml:"id,attr"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
		Date     string `xml:"date"`
		Rights   string `xml:"rights"`
		Language string `xml:"language"`
		Meta     []struct {
			Text     string `xml:",chardata"`
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Refines  string `xml:"refines,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []ManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc     string `xml:"toc,attr"`
		Itemref []struct {
			Idref  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// ManifestItem is a single <item> in the OPF manifest.
type ManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// parsedOPF is the intermediate form produced by parsing an OPF document,
// before chapters are materialised from the spine.
type parsedOPF struct {
	pkg      *Package
	basePath string
	metadata ir.Metadata

	manifestByID   map[string]ManifestItem
	spineIdrefs    []string
	navHref        string
	ncxHref        string
	coverItemID    string
}

// parseOPF reads and interprets the OPF package document at opfPath.
func parseOPF(zr *zip.Reader, gate *security.Gate, opfPath string) (*parsedOPF, error) {
	f := findFile(zr, opfPath)
	if f == nil {
		return nil, errMissingContent("opf")
	}

	data, err := gate.ReadEntry(f)
	if err != nil {
		return nil, err
	}

	pkg := &Package{}
	if err := xml.Unmarshal(data, pkg); err != nil {
		return nil, errors.Wrap(err, "epub: parse opf")
	}

	basePath := path.Dir(opfPath)
	if basePath == "." {
		basePath = ""
	}

	p := &parsedOPF{
		pkg:          pkg,
		basePath:     basePath,
		manifestByID: map[string]ManifestItem{},
	}
	for _, item := range pkg.Manifest.Item {
		p.manifestByID[item.ID] = item
		if strings.Contains(item.Properties, "nav") {
			p.navHref = p.resolve(item.Href)
		}
	}
	for _, ref := range pkg.Spine.Itemref {
		if ref.Linear == "no" {
			continue
		}
		p.spineIdrefs = append(p.spineIdrefs, ref.Idref)
	}
	if pkg.Spine.Toc != "" {
		if item, ok := p.manifestByID[pkg.Spine.Toc]; ok {
			p.ncxHref = p.resolve(item.Href)
		}
	}

	p.metadata = extractMetadata(pkg, p)
	p.coverItemID = findCoverItemID(pkg, p)

	return p, nil
}

func (p *parsedOPF) resolve(href string) string {
	if p.basePath == "" {
		return href
	}
	return path.Join(p.basePath, href)
}

// epubVersion reports the OPF @version attribute, defaulting to "2.0" when
// absent (pre-EPUB3 files often omit it).
func (p *parsedOPF) epubVersion() string {
	if p.pkg.Version == "" {
		return "2.0"
	}
	return p.pkg.Version
}

func extractMetadata(pkg *Package, p *parsedOPF) ir.Metadata {
	metaProperties := map[string]map[string]string{}
	metaContent := map[string]string{}
	for _, m := range pkg.Metadata.Meta {
		if m.Refines != "" {
			key := strings.TrimPrefix(m.Refines, "#")
			if metaProperties[key] == nil {
				metaProperties[key] = map[string]string{}
			}
			metaProperties[key][m.Property] = m.Text
		} else if m.Name != "" {
			metaContent[m.Name] = m.Content
		}
	}

	title := ""
	if len(pkg.Metadata.Title) > 0 {
		title = pkg.Metadata.Title[0].Text
		for _, t := range pkg.Metadata.Title {
			if props := metaProperties[t.ID]; props != nil && props["title-type"] == "main" {
				title = t.Text
				break
			}
		}
	}

	var authors []ir.Author
	for _, c := range pkg.Metadata.Creator {
		role := c.Role
		if role == "" {
			if props := metaProperties[c.ID]; props != nil {
				role = props["role"]
			}
		}
		authors = append(authors, ir.Author{Name: strings.TrimSpace(c.Text), Role: role, FileAs: c.FileAs})
	}

	var isbn10, isbn13 string
	for _, id := range pkg.Metadata.Identifier {
		val := strings.TrimSpace(id.Text)
		switch identifiers.DetectType(val, id.Scheme) {
		case identifiers.TypeISBN10:
			isbn10 = val
		case identifiers.TypeISBN13:
			isbn13 = val
		}
	}

	var series *ir.SeriesInfo
	if name := metaContent["calibre:series"]; name != "" {
		pos := 0.0
		if idx := metaContent["calibre:series_index"]; idx != "" {
			if v, err := strconv.ParseFloat(idx, 64); err == nil {
				pos = v
			}
		}
		series = &ir.SeriesInfo{Name: name, Position: pos}
	}

	overflow := map[string]string{}
	for k, v := range metaContent {
		if k == "cover" || k == "calibre:series" || k == "calibre:series_index" {
			continue
		}
		overflow[k] = v
	}

	return ir.Metadata{
		Title:       title,
		Authors:     authors,
		Language:    pkg.Metadata.Language,
		Publisher:   pkg.Metadata.Publisher,
		PublishDate: pkg.Metadata.Date,
		ISBN10:      isbn10,
		ISBN13:      isbn13,
		Description: pkg.Metadata.Description,
		Subjects:    pkg.Metadata.Subject,
		Series:      series,
		Rights:      pkg.Metadata.Rights,
		Overflow:    overflow,
	}
}

// findCoverItemID resolves the manifest id of the cover image per spec:
// prefer <meta name="cover">, then properties="cover-image", then the
// first image resource.
func findCoverItemID(pkg *Package, p *parsedOPF) string {
	for _, m := range pkg.Metadata.Meta {
		if m.Name == "cover" && m.Content != "" {
			if _, ok := p.manifestByID[m.Content]; ok {
				return m.Content
			}
		}
	}
	for _, item := range pkg.Manifest.Item {
		if strings.Contains(item.Properties, "cover-image") {
			return item.ID
		}
	}
	for _, item := range pkg.Manifest.Item {
		if strings.HasPrefix(item.MediaType, "image/") {
			return item.ID
		}
	}
	return ""
}
