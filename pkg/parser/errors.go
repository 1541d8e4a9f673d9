package parser

import (
	"errors"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

var (
	// ErrUnsupportedFormat is returned when the input format is not supported.
	ErrUnsupportedFormat = errors.New("parser: unsupported format")

	// ErrInvalidTimestamp is returned when timestamp parsing fails.
	ErrInvalidTimestamp = errors.New("parser: invalid timestamp format")
)

// canceled is returned by parsers when the context ends mid-stream.
func canceled(format string) error {
	return hmerrors.ContextCanceled("parse " + format)
}

// missingField reports a record without a required field.
func missingField(format, field string, row int) error {
	return hmerrors.Validation(field, row).WithContext("format", format)
}

// badTimestamp reports a record whose timestamp could not be parsed.
func badTimestamp(format, value string, row int) error {
	return hmerrors.InvalidTimestamp(value, row).WithContext("format", format)
}
