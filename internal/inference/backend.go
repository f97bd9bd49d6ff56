// Package inference runs the numeric emotion model.
//
// A Backend maps one fixed-length encoding to one score per model output
// index. The ONNX backend is loaded once and shared by concurrent callers;
// Unavailable stands in when no model could be loaded.
package inference

import (
	"errors"
	"fmt"

	"github.com/born-ml/emodiary/internal/tokenizer"
)

// Common errors.
var (
	ErrUnavailable = errors.New("inference backend unavailable")
	ErrInference   = errors.New("inference failed")
)

// InferenceError describes a failed Classify call.
type InferenceError struct {
	Op  string // stage that failed: "input", "forward" or "output"
	Err error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInference, e.Op, e.Err)
}

// Unwrap returns ErrInference and the underlying cause.
func (e *InferenceError) Unwrap() []error {
	return []error{ErrInference, e.Err}
}

// Backend produces raw scores for an encoding.
type Backend interface {
	// Available reports whether Classify can succeed at all.
	Available() bool
	// Classify returns one score per model output index.
	Classify(enc tokenizer.Encoding) ([]float32, error)
	// Close releases the model. It is safe to call more than once.
	Close() error
}

// Unavailable is the backend used when no model is loaded.
type Unavailable struct {
	Reason error // why the model is missing, may be nil
}

// Available always returns false.
func (Unavailable) Available() bool { return false }

// Classify always fails with ErrUnavailable.
func (u Unavailable) Classify(tokenizer.Encoding) ([]float32, error) {
	if u.Reason != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, u.Reason)
	}
	return nil, ErrUnavailable
}

// Close is a no-op.
func (Unavailable) Close() error { return nil }
