// Package ebookerr defines the closed, typed error hierarchy every core
// operation returns through. Callers pattern-match on Kind and, where
// useful, on the structured payload fields rather than parsing messages.
package ebookerr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/folioglyph/folioglyph/pkg/security"
)

// Kind is the closed set of top-level error categories.
type Kind string

const (
	KindDetect   Kind = "detect"
	KindRead     Kind = "read"
	KindWrite    Kind = "write"
	KindValidate Kind = "validate"
	KindRepair   Kind = "repair"
	KindOptimize Kind = "optimize"
	KindSecurity Kind = "security"
	KindTransform Kind = "transform"
	KindCancelled Kind = "cancelled"
)

// Error is the union type wrapping every failure the core surfaces.
// Exactly one of the Kind-specific payload groups below is meaningful for
// any given instance, selected by Kind.
type Error struct {
	Kind Kind

	// Read/Write-shared fields.
	Format string
	Detail string
	What   string // MissingContent("what")

	// Repair fields.
	Code   string
	Reason string

	// Transform fields.
	TransformName string

	// Wrapped causes.
	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDetect:
		return fmt.Sprintf("ebook: detect: %s", e.Detail)
	case KindRead:
		if e.What != "" {
			return fmt.Sprintf("ebook: read: missing content: %s", e.What)
		}
		if e.cause != nil {
			return fmt.Sprintf("ebook: read: %s: %v", e.Format, e.cause)
		}
		return fmt.Sprintf("ebook: read: %s: %s", e.Format, e.Detail)
	case KindWrite:
		if e.cause != nil {
			return fmt.Sprintf("ebook: write: %s: %v", e.Format, e.cause)
		}
		return fmt.Sprintf("ebook: write: %s: %s", e.Format, e.Detail)
	case KindValidate:
		return fmt.Sprintf("ebook: validate: %v", e.cause)
	case KindRepair:
		return fmt.Sprintf("ebook: repair: critical repair %q failed: %s", e.Code, e.Reason)
	case KindOptimize:
		if e.cause != nil {
			return fmt.Sprintf("ebook: optimize: %v", e.cause)
		}
		return fmt.Sprintf("ebook: optimize: %s", e.Detail)
	case KindSecurity:
		return fmt.Sprintf("ebook: %v", e.cause)
	case KindTransform:
		return fmt.Sprintf("ebook: transform %q: %s", e.TransformName, e.Reason)
	case KindCancelled:
		return "ebook: operation cancelled"
	default:
		return "ebook: unknown error"
	}
}

// Unwrap exposes the wrapped cause, when present, so errors.Is/As work
// across the security and stdlib error trees.
func (e *Error) Unwrap() error { return e.cause }

// UnsupportedFormat reports a ReadError/WriteError for a format name with
// no registered reader/writer.
func UnsupportedFormat(op string, format string) error {
	kind := KindRead
	if op == "write" {
		kind = KindWrite
	}
	return &Error{Kind: kind, Format: format, Detail: "unsupported format"}
}

// MalformedFile reports a ReadError for structurally invalid input.
func MalformedFile(format, detail string) error {
	return &Error{Kind: KindRead, Format: format, Detail: detail}
}

// MissingContent reports a ReadError for a required sub-document that
// could not be located (e.g. the OPF referenced by container.xml).
func MissingContent(what string) error {
	return &Error{Kind: KindRead, What: what}
}

// WrapRead wraps an I/O or security failure encountered while reading
// format.
func WrapRead(format string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindRead, Format: format, cause: errors.WithStack(cause)}
}

// WrapWrite wraps an I/O or security failure encountered while writing
// format.
func WrapWrite(format string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindWrite, Format: format, cause: errors.WithStack(cause)}
}

// TargetVersionIncompatible reports a WriteError for a transform or
// metadata shape that cannot be represented in the requested output
// version (e.g. Ruby content targeting EPUB2 without a downgrade path).
func TargetVersionIncompatible(format, detail string) error {
	return &Error{Kind: KindWrite, Format: format, Detail: detail}
}

// WrapValidate wraps an I/O failure encountered while reading a file for
// the file-mode validator. The validator itself never returns an error
// for content issues — those are ValidationIssues.
func WrapValidate(cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindValidate, cause: errors.WithStack(cause)}
}

// CriticalRepairFailed reports a RepairError: the repair engine rolled
// back to the pre-repair clone.
func CriticalRepairFailed(code, reason string) error {
	return &Error{Kind: KindRepair, Code: code, Reason: reason}
}

// WrapOptimize wraps an I/O or budget failure encountered while
// optimizing. An unsupported media type for recompression is a warning in
// the caller's report, not one of these.
func WrapOptimize(cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindOptimize, cause: errors.WithStack(cause)}
}

// WrapSecurity lifts a *security.Error into the top-level union, preserving
// it as the Unwrap cause so errors.As(err, *security.Error) still works.
func WrapSecurity(cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindSecurity, cause: cause}
}

// TransformFailed reports a TransformError, aborting the enclosing
// pipeline with the Document left untouched.
func TransformFailed(name, reason string) error {
	return &Error{Kind: KindTransform, TransformName: name, Reason: reason}
}

// Cancelled reports that a caller-requested cancellation interrupted a
// long-running operation.
func Cancelled() error {
	return &Error{Kind: KindCancelled}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// SecurityKind reports whether err wraps a *security.Error of the given
// kind, looking through the top-level Error's cause chain.
func SecurityKind(err error, kind string) bool {
	var se *security.Error
	if errors.As(err, &se) {
		return security.IsKind(se, kind)
	}
	return false
}
