// Package classifier labels diary text with one of six emotions.
//
// Example usage:
//
//	import "github.com/born-ml/emodiary/classifier"
//
//	c, err := classifier.Open(classifier.Options{ModelDir: "models/emotion_model_onnx"})
//	if err != nil {
//	    log.Printf("degraded start: %v", err) // c still classifies by keywords
//	}
//	defer c.Close()
//
//	r := c.Classify("오늘 정말 행복했다")
//	fmt.Println(r.Label, r.Confidence, r.Source)
package classifier

import (
	"github.com/born-ml/emodiary/internal/classifier"
	"github.com/born-ml/emodiary/internal/emotion"
)

// Label is one of the six diary emotions.
type Label = emotion.Label

// Labels in priority order.
const (
	Happy       = emotion.Happy
	Anxiety     = emotion.Anxiety
	Embarrassed = emotion.Embarrassed
	Sad         = emotion.Sad
	Angry       = emotion.Angry
	Hurt        = emotion.Hurt
)

// Classifier classifies diary text. It is safe for concurrent use.
type Classifier = classifier.Classifier

// Options configure Open.
type Options = classifier.Options

// Result is the outcome of classifying one text.
type Result = classifier.Result

// Source tells which path produced a Result.
type Source = classifier.Source

// Result sources.
const (
	SourceModel    = classifier.SourceModel
	SourceKeywords = classifier.SourceKeywords
)

// Recorder persists classification results.
type Recorder = classifier.Recorder

// ErrNoRecorder is returned by ClassifyAndRecord without a Recorder.
var ErrNoRecorder = classifier.ErrNoRecorder

// Open loads a model directory. The Classifier is usable even when the
// returned error reports missing or broken model files.
func Open(opts Options) (*Classifier, error) {
	return classifier.Open(opts)
}

// Labels returns the label set in priority order.
func Labels() []Label {
	return emotion.All()
}
