// Package decision turns raw model scores into a label.
package decision

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/emodiary/internal/emotion"
)

// Common errors.
var (
	ErrNoScores      = errors.New("no scores to decide on")
	ErrUnmappedIndex = errors.New("model output index has no label")
	ErrNonFinite     = errors.New("model score is not finite")
)

// UnmappedIndexError reports a winning index missing from the label mapping.
// It indicates a mismatch between the model and its configuration.
type UnmappedIndexError struct {
	Index     int
	NumScores int
}

// Error implements the error interface.
func (e *UnmappedIndexError) Error() string {
	return fmt.Sprintf("%s: index %d of %d scores", ErrUnmappedIndex, e.Index, e.NumScores)
}

// Unwrap returns ErrUnmappedIndex.
func (e *UnmappedIndexError) Unwrap() error {
	return ErrUnmappedIndex
}

// Decision is the outcome of Decide.
type Decision struct {
	Index         int
	Label         emotion.Label
	Confidence    float64   // Probabilities[Index]
	Probabilities []float64 // softmax of the scores
}

// Softmax computes softmax(x_i) = exp(x_i - max) / sum(exp(x_j - max)).
//
// Subtracting the maximum keeps exp from overflowing. Empty input yields
// an empty result.
func Softmax(scores []float32) []float64 {
	probs := make([]float64, len(scores))
	if len(scores) == 0 {
		return probs
	}

	maxVal := math.Inf(-1)
	for _, s := range scores {
		maxVal = math.Max(maxVal, float64(s))
	}

	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(float64(s) - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// FirstNonFinite returns the index of the first NaN or infinite score, or -1.
func FirstNonFinite(scores []float32) int {
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return i
		}
	}
	return -1
}

// Argmax returns the index of the largest value, lowest index on ties.
// Returns -1 for empty input.
func Argmax(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

// Decide applies softmax to scores and picks the most probable label.
//
// A NaN or infinite score fails with ErrNonFinite. An index absent from
// labels is an *UnmappedIndexError; it is never mapped to a default label.
func Decide(scores []float32, labels emotion.IndexMap) (Decision, error) {
	if len(scores) == 0 {
		return Decision{}, ErrNoScores
	}
	if i := FirstNonFinite(scores); i >= 0 {
		return Decision{}, fmt.Errorf("%w: index %d is %v", ErrNonFinite, i, scores[i])
	}

	probs := Softmax(scores)
	index := Argmax(probs)
	label, ok := labels.Lookup(index)
	if !ok {
		return Decision{}, &UnmappedIndexError{Index: index, NumScores: len(scores)}
	}

	return Decision{
		Index:         index,
		Label:         label,
		Confidence:    probs[index],
		Probabilities: probs,
	}, nil
}
