package security

import (
	"archive/zip"
	"encoding/xml"
	"strings"
)

// encryptionFilePath is the standard EPUB location for the encryption
// descriptor.
const encryptionFilePath = "META-INF/encryption.xml"

// fontObfuscationAlgorithms are encryption methods that obfuscate embedded
// fonts rather than apply real DRM; their presence alone must not trip
// DrmProtected.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

// drmNamespaces are algorithm/KeyInfo substrings that identify a real DRM
// scheme.
var drmNamespaces = map[string]string{
	"http://ns.adobe.com/adept": "adobe",
	"apple.com/FairPlay":        "apple",
	"readium.org/2014/01/lcp":   "lcp",
}

type xmlEncryption struct {
	XMLName       xml.Name           `xml:"encryption"`
	EncryptedData []xmlEncryptedData `xml:"EncryptedData"`
}

type xmlEncryptedData struct {
	EncryptionMethod struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
	KeyInfo struct {
		InnerXML string `xml:",innerxml"`
	} `xml:"KeyInfo"`
}

// CheckEPUBDrm inspects META-INF/encryption.xml, if present, and returns a
// DrmProtected error before any content document is parsed per spec. Font
// obfuscation alone does not count as DRM.
func CheckEPUBDrm(zr *zip.Reader) error {
	var f *zip.File
	for _, zf := range zr.File {
		if zf.Name == encryptionFilePath {
			f = zf
			break
		}
	}
	if f == nil {
		return nil
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	var enc xmlEncryption
	if err := xml.NewDecoder(rc).Decode(&enc); err != nil {
		// Unparseable encryption.xml is treated conservatively as DRM.
		return DrmProtected("epub", "unknown")
	}

	for _, ed := range enc.EncryptedData {
		algo := ed.EncryptionMethod.Algorithm
		if fontObfuscationAlgorithms[algo] {
			continue
		}
		if drmType, ok := matchDRMNamespace(algo); ok {
			return DrmProtected("epub", drmType)
		}
		if drmType, ok := matchDRMNamespace(ed.KeyInfo.InnerXML); ok {
			return DrmProtected("epub", drmType)
		}
		// Any encrypted entry that isn't recognised font obfuscation is
		// treated as DRM.
		return DrmProtected("epub", "unknown")
	}

	return nil
}

func matchDRMNamespace(s string) (string, bool) {
	for ns, drmType := range drmNamespaces {
		if strings.Contains(s, ns) {
			return drmType, true
		}
	}
	return "", false
}

// mobiDRMFlagOffset is the byte offset of the DRM flag word in a MOBI PDB
// header.
const mobiDRMFlagOffset = 0x0C

// CheckMOBIDrm interprets the DRM flag at PDB offset 0x0C of a MOBI/AZW
// header. A non-zero flag indicates the book is DRM-protected.
func CheckMOBIDrm(header []byte) error {
	if len(header) < mobiDRMFlagOffset+2 {
		return nil
	}
	flag := uint16(header[mobiDRMFlagOffset])<<8 | uint16(header[mobiDRMFlagOffset+1])
	if flag != 0 {
		return DrmProtected("mobi", "unknown")
	}
	return nil
}
