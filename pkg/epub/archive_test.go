package epub

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/security"
)

func TestValidateArchive_CleanArchiveHasNoIssues(t *testing.T) {
	data := buildReadableEPUB(t)
	issues := ValidateArchive(bytes.NewReader(data), int64(len(data)), security.DefaultConfig())
	assert.Empty(t, issues)
}

func TestValidateArchive_RejectsMalformedZip(t *testing.T) {
	issues := ValidateArchive(bytes.NewReader([]byte("not a zip")), 9, security.DefaultConfig())
	require.Len(t, issues, 1)
	assert.Equal(t, "EPUB-INVALID-ZIP", issues[0].Code)
}

func TestValidateArchive_DetectsBadMimetype(t *testing.T) {
	data := buildEPUBBytesCustomMimetype(t, "text/plain")
	issues := ValidateArchive(bytes.NewReader(data), int64(len(data)), security.DefaultConfig())
	found := false
	for _, i := range issues {
		if i.Code == "EPUB-MIMETYPE-INVALID" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateArchive_DetectsDanglingSpineIdref(t *testing.T) {
	data := buildEPUBBytes(t, map[string][]byte{
		"OEBPS/content.opf": []byte(`<?xml version="1.0"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>T</dc:title>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`),
		"OEBPS/nav.xhtml": []byte(`<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><nav><ol></ol></nav></body></html>`),
	})

	issues := ValidateArchive(bytes.NewReader(data), int64(len(data)), security.DefaultConfig())
	found := false
	for _, i := range issues {
		if i.Code == "EPUB-DANGLING-SPINE-IDREF" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateArchive_DetectsMissingNavAndNCX(t *testing.T) {
	data := buildEPUBBytes(t, map[string][]byte{
		"OEBPS/content.opf": []byte(`<?xml version="1.0"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>T</dc:title>
  </metadata>
  <manifest>
    <item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`),
		"OEBPS/chapter1.xhtml": []byte(`<?xml version="1.0"?><html xmlns="http://www.w3.org/1999/xhtml"><body><p>hi</p></body></html>`),
	})

	issues := ValidateArchive(bytes.NewReader(data), int64(len(data)), security.DefaultConfig())
	found := false
	for _, i := range issues {
		if i.Code == "EPUB-MISSING-NAV-NCX" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRepairArchive_RebuildsCentralDirectoryFromLocalHeaders(t *testing.T) {
	good := buildReadableEPUB(t)

	// Simulate a corrupted central directory by truncating the archive at
	// its last central directory header, which drops that record and the
	// end-of-central-directory record so the archive no longer opens.
	cutAt := bytes.LastIndex(good, []byte("PK\x01\x02"))
	require.Greater(t, cutAt, 0)
	damaged := good[:cutAt]

	repaired, err := RepairArchive(damaged)
	require.NoError(t, err)

	doc, err := Read(bytes.NewReader(repaired), int64(len(repaired)), DefaultReadOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Test Book", doc.Metadata.Title)
	assert.Len(t, doc.Chapters, 2)
}

func TestRepairArchive_RejectsInputWithNoLocalHeaders(t *testing.T) {
	_, err := RepairArchive([]byte("nothing to see here"))
	assert.Error(t, err)
}

func TestRead_RecoversFromCorruptCentralDirectoryAndFlagsOrigin(t *testing.T) {
	good := buildReadableEPUB(t)
	cutAt := bytes.LastIndex(good, []byte("PK\x01\x02"))
	require.Greater(t, cutAt, 0)
	damaged := good[:cutAt]

	var tags []string
	progress := func(tag string, current, total int, message string) {
		tags = append(tags, tag)
	}
	doc, err := Read(bytes.NewReader(damaged), int64(len(damaged)), DefaultReadOptions(), progress)
	require.NoError(t, err)
	assert.Equal(t, "Test Book", doc.Metadata.Title)
	assert.True(t, doc.Origin.ArchiveRepaired)
	assert.Contains(t, tags, "epub:read:zip-repaired")
}
