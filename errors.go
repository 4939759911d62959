package xgbmerge

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyInputSet is returned by Merge when no source ensembles are given.
	ErrEmptyInputSet = errors.New("no local models to merge")
	// ErrMalformedDocument is returned when a document is not valid JSON or a
	// required field has the wrong shape.
	ErrMalformedDocument = errors.New("malformed model document")
	// ErrUnsupportedSchema is returned when the version or a field name the
	// parser depends on is missing, or the booster is not a tree booster.
	ErrUnsupportedSchema = errors.New("unsupported model schema")
	// ErrNativeEncodeFailure is returned when the native library rejects a
	// serialized document.
	ErrNativeEncodeFailure = errors.New("native encoder rejected document")
	// ErrIncompatibleEnsembles is returned by a strict merge when sources
	// disagree on num_parallel_tree, num_feature or num_class.
	ErrIncompatibleEnsembles = errors.New("incompatible ensembles")
	// ErrInvariantViolation is returned by Validate.
	ErrInvariantViolation = errors.New("ensemble invariant violated")
)

// DocumentError names the document that failed and the expectation it broke.
//
// errors.Is matches it against its Kind (one of the sentinels above).
type DocumentError struct {
	Source string
	Kind   error
	Reason string
}

func (e *DocumentError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Source, e.Kind, e.Reason)
}

func (e *DocumentError) Unwrap() error { return e.Kind }

func malformed(format string, args ...interface{}) error {
	return &DocumentError{Kind: ErrMalformedDocument, Reason: fmt.Sprintf(format, args...)}
}

func unsupported(format string, args ...interface{}) error {
	return &DocumentError{Kind: ErrUnsupportedSchema, Reason: fmt.Sprintf(format, args...)}
}

// WithSource attaches a document name to err when it is a *DocumentError
// without one; other errors are wrapped with the name as message.
func WithSource(err error, source string) error {
	if err == nil {
		return nil
	}
	var de *DocumentError
	if errors.As(err, &de) && de.Source == "" {
		cp := *de
		cp.Source = source
		return &cp
	}
	return errors.WithMessage(err, source)
}
