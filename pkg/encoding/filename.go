package encoding

import "golang.org/x/text/unicode/norm"

// FixMacOSNFDFilename repairs an archive entry name produced by a
// macOS-style filesystem, which stores decomposed (NFD) Unicode in
// filenames even when every other producer on the planet uses NFC, by
// returning its NFC form. No reader in this module calls it: archive entry
// names are used as stored, and Options.FixMacOSNFD does not affect
// Normalize.
func FixMacOSNFDFilename(name string) string {
	if norm.NFC.IsNormalString(name) {
		return name
	}
	return norm.NFC.String(name)
}
