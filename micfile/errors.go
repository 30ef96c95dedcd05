package micfile

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the parsers. Typed errors below match these with
// errors.Is.
var (
	// ErrMissingMetadata reports a required header field that never appeared.
	ErrMissingMetadata = errors.New("micfile: missing metadata")

	// ErrTimeParse reports a time-of-day value not in HH:MM:SS[.ffffff] form.
	ErrTimeParse = errors.New("micfile: malformed time of day")

	// ErrNoData reports a recording whose level column starts with the
	// missing-data sentinel, or that has no data rows at all. It is the
	// one non-fatal error: callers skip the file.
	ErrNoData = errors.New("micfile: no data")

	// ErrBadField reports a header or data value that could not be parsed.
	ErrBadField = errors.New("micfile: malformed field")
)

// MissingFieldError lists every required header entry absent from a file.
type MissingFieldError struct {
	Fields []Field
}

func (e *MissingFieldError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.String()
	}
	return fmt.Sprintf("micfile: missing metadata: %s", strings.Join(names, ", "))
}

// Is reports whether target is ErrMissingMetadata.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingMetadata
}

// TimeParseError carries the offending text and its 1-based line number.
type TimeParseError struct {
	Value string
	Line  int
	Err   error
}

func (e *TimeParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("micfile: line %d: malformed time of day %q: %v", e.Line, e.Value, e.Err)
	}
	return fmt.Sprintf("micfile: malformed time of day %q: %v", e.Value, e.Err)
}

func (e *TimeParseError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTimeParse.
func (e *TimeParseError) Is(target error) bool {
	return target == ErrTimeParse
}

// FieldError reports a value that is present but unusable.
type FieldError struct {
	Field string
	Value string
	Line  int
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("micfile: line %d: bad %s %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBadField.
func (e *FieldError) Is(target error) bool {
	return target == ErrBadField
}
