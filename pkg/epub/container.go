package epub

import (
	"archive/zip"
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"

	"github.com/folioglyph/folioglyph/pkg/security"
)

// containerPath is the well-known location of META-INF/container.xml.
const containerPath = "META-INF/container.xml"

type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// locateOPF reads META-INF/container.xml through gate and returns the
// archive path of the OPF package document it names.
func locateOPF(zr *zip.Reader, gate *security.Gate) (string, error) {
	f := findFile(zr, containerPath)
	if f == nil {
		return "", errMissingContent("opf")
	}

	data, err := gate.ReadEntry(f)
	if err != nil {
		return "", err
	}

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", errors.Wrap(err, "epub: parse container.xml")
	}
	if len(c.RootFiles) == 0 {
		return "", errMissingContent("opf")
	}

	var fallback string
	for _, rf := range c.RootFiles {
		path := strings.TrimSpace(rf.FullPath)
		if path == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") {
			return path, nil
		}
		if fallback == "" {
			fallback = path
		}
	}
	if fallback == "" {
		return "", errMissingContent("opf")
	}
	return fallback, nil
}

// findFile looks up a ZIP entry by exact path, falling back to a
// case-insensitive match.
func findFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}
