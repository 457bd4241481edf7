package pipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioglyph/folioglyph/pkg/detect"
	"github.com/folioglyph/folioglyph/pkg/optimize"
	"github.com/folioglyph/folioglyph/pkg/repair"
	"github.com/folioglyph/folioglyph/pkg/validate"
)

func TestRun_TextRoundTripsThroughValidateRepairOptimize(t *testing.T) {
	src := []byte("Title\n\nFirst paragraph.\n\nSecond paragraph.\n")

	validateOpts := validate.DefaultOptions()
	repairOpts := repair.DefaultOptions()
	optimizeOpts := optimize.DefaultOptions()

	result, err := Run(detect.FormatText, bytes.NewReader(src), int64(len(src)), RunOptions{
		Read:     DefaultReadOptions(),
		Write:    DefaultWriteOptions(),
		Validate: &validateOpts,
		Repair:   &repairOpts,
		Optimize: &optimizeOpts,
	}, nil)

	require.NoError(t, err)
	assert.Contains(t, string(result.Output), "First paragraph.")
	assert.Contains(t, result.RepairReport.FixesApplied, "fix_metadata")
}

func TestRun_UnregisteredFormatReturnsUnsupported(t *testing.T) {
	src := []byte("%PDF-1.4 fake")
	_, err := Run(detect.FormatPDF, bytes.NewReader(src), int64(len(src)), RunOptions{
		Read:  DefaultReadOptions(),
		Write: DefaultWriteOptions(),
	}, nil)
	assert.Error(t, err)
}

func TestRead_DispatchesToRegisteredFormat(t *testing.T) {
	src := []byte("Hello\n\nWorld\n")
	doc, err := Read(detect.FormatText, bytes.NewReader(src), int64(len(src)), DefaultReadOptions(), nil)
	require.NoError(t, err)
	require.Len(t, doc.Chapters, 1)
}

func TestWrite_DispatchesToRegisteredFormat(t *testing.T) {
	src := []byte("Hello\n\nWorld\n")
	doc, err := Read(detect.FormatText, bytes.NewReader(src), int64(len(src)), DefaultReadOptions(), nil)
	require.NoError(t, err)

	out, err := Write(detect.FormatText, doc, DefaultWriteOptions(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Hello")
}

func TestWrite_DeadlineExceededAbortsWrite(t *testing.T) {
	src := []byte("Hello\n\nWorld\n")
	doc, err := Read(detect.FormatText, bytes.NewReader(src), int64(len(src)), DefaultReadOptions(), nil)
	require.NoError(t, err)

	opts := DefaultWriteOptions()
	opts.Deadline = time.Now().Add(-time.Second)
	_, err = Write(detect.FormatText, doc, opts, nil)
	assert.Error(t, err)
}

func TestRun_ThreadsProgressThroughReadRepairOptimizeWrite(t *testing.T) {
	src := []byte("Title\n\nFirst paragraph.\n\nSecond paragraph.\n")

	repairOpts := repair.DefaultOptions()
	optimizeOpts := optimize.DefaultOptions()

	var tags []string
	_, err := Run(detect.FormatText, bytes.NewReader(src), int64(len(src)), RunOptions{
		Read:     DefaultReadOptions(),
		Write:    DefaultWriteOptions(),
		Repair:   &repairOpts,
		Optimize: &optimizeOpts,
	}, func(tag string, current, total int, message string) {
		tags = append(tags, tag)
	})

	require.NoError(t, err)
	assert.Contains(t, tags, "repair:fix_metadata")
	assert.Contains(t, tags, "optimize:dedupe")
	assert.Contains(t, tags, "txt:write:chapter")
}
