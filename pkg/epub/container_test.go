package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateOPF_Simple(t *testing.T) {
	data := buildEPUBBytes(t, map[string][]byte{
		"OEBPS/content.opf": []byte(`<package version="3.0"><manifest/><spine/></package>`),
	})
	zr := openZip(t, data)

	path, err := locateOPF(zr, testGate(t))
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/content.opf", path)
}

func TestLocateOPF_PrefersOEBPSMediaType(t *testing.T) {
	zipBytes := buildEPUBBytesWithContainer(t, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/other.xml" media-type="text/xml"/>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, map[string][]byte{
		"OEBPS/content.opf": []byte(`<package version="3.0"><manifest/><spine/></package>`),
		"OEBPS/other.xml":   []byte(`<nothing/>`),
	})
	zr := openZip(t, zipBytes)

	path, err := locateOPF(zr, testGate(t))
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/content.opf", path)
}

func TestLocateOPF_MissingContainer(t *testing.T) {
	data := buildEPUBBytesNoContainer(t)
	zr := openZip(t, data)

	_, err := locateOPF(zr, testGate(t))
	assert.Error(t, err)
}

func TestFindFile_CaseInsensitiveFallback(t *testing.T) {
	data := buildEPUBBytes(t, map[string][]byte{
		"OEBPS/Content.OPF": []byte(`<package version="3.0"><manifest/><spine/></package>`),
	})
	zr := openZip(t, data)

	f := findFile(zr, "OEBPS/content.opf")
	require.NotNil(t, f)
	assert.Equal(t, "OEBPS/Content.OPF", f.Name)
}
