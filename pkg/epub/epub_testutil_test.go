package epub

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/security"
)

// buildEPUBBytes assembles a minimal, well-formed EPUB3 archive in memory
// from a set of OEBPS-relative extra entries layered on top of the
// mandatory mimetype/container/OPF/nav skeleton.
func buildEPUBBytes(t *testing.T, extra map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)

	writeEntry(t, zw, "META-INF/container.xml", []byte(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`))

	for name, data := range extra {
		writeEntry(t, zw, name, data)
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildEPUBBytesWithContainer is like buildEPUBBytes but lets the caller
// supply a custom container.xml body.
func buildEPUBBytesWithContainer(t *testing.T, containerXML string, extra map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)

	writeEntry(t, zw, "META-INF/container.xml", []byte(containerXML))
	for name, data := range extra {
		writeEntry(t, zw, name, data)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildEPUBBytesNoContainer produces an archive missing META-INF/container.xml.
func buildEPUBBytesNoContainer(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildEPUBBytesCustomMimetype builds an otherwise-empty archive whose
// mimetype entry body is body instead of the correct EPUB magic string.
func buildEPUBBytesCustomMimetype(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildEPUBBytesDeflatedMimetype builds an archive whose mimetype entry
// has the correct body but is compressed, which readers must reject.
func buildEPUBBytesDeflatedMimetype(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildEmptyZip builds a zero-entry archive.
func buildEmptyZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeEntry(t *testing.T, zw *zip.Writer, name string, data []byte) {
	t.Helper()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
}

func openZip(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}

func testGate(t *testing.T) *security.Gate {
	t.Helper()
	return security.NewGate(security.DefaultConfig())
}
