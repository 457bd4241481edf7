package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_DefaultIsNFC(t *testing.T) {
	decomposed := "é" // "e" + combining acute accent
	got := Normalize(decomposed, DefaultOptions())
	assert.Equal(t, "é", got)
}

func TestNormalize_SmartQuotes(t *testing.T) {
	got := Normalize(`She said "hello" to 'them'.`, Options{Form: NFC, SmartQuotes: true})
	assert.Equal(t, "She said “hello” to ‘them’.", got)
}

func TestNormalize_Whitespace(t *testing.T) {
	got := Normalize("too   many    spaces", Options{Form: NFC, NormalizeWhitespace: true})
	assert.Equal(t, "too many spaces", got)
}

func TestNormalize_Ligatures(t *testing.T) {
	got := Normalize("ﬁnally", Options{Form: NFC, NormalizeLigatures: true})
	assert.Equal(t, "finally", got)
}

func TestNormalize_Dashes(t *testing.T) {
	got := Normalize("2020–2021", Options{Form: NFC, NormalizeDashes: true})
	assert.Equal(t, "2020-2021", got)
}

func TestStripBOM(t *testing.T) {
	withBOM := "\xef\xbb\xbfhello"
	got, found := StripBOM(withBOM)
	assert.True(t, found)
	assert.Equal(t, "hello", got)

	got, found = StripBOM("hello")
	assert.False(t, found)
	assert.Equal(t, "hello", got)
}

func TestValidBCP47(t *testing.T) {
	assert.True(t, ValidBCP47("en"))
	assert.True(t, ValidBCP47("en-US"))
	assert.True(t, ValidBCP47("zh-Hant"))
	assert.False(t, ValidBCP47(""))
}

func TestFixMacOSNFDFilename(t *testing.T) {
	decomposed := "café.jpg"
	got := FixMacOSNFDFilename(decomposed)
	assert.Equal(t, "café.jpg", got)

	already := "café.jpg"
	assert.Equal(t, already, FixMacOSNFDFilename(already))
}
