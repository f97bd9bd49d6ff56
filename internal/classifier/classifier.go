// Package classifier wires the emotion pipeline together.
//
// Text is tokenized, encoded to a fixed length, scored by the inference
// backend and reduced to a label by the decision engine. Whenever the model
// cannot produce a label the keyword classifier answers instead, so Classify
// always returns a member of the label set.
//
// A Classifier is immutable after construction and safe for concurrent use.
package classifier

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/born-ml/emodiary/internal/config"
	"github.com/born-ml/emodiary/internal/decision"
	"github.com/born-ml/emodiary/internal/emotion"
	"github.com/born-ml/emodiary/internal/fallback"
	"github.com/born-ml/emodiary/internal/inference"
	"github.com/born-ml/emodiary/internal/parallel"
	"github.com/born-ml/emodiary/internal/tokenizer"
	"github.com/born-ml/emodiary/internal/vocab"
)

// ErrNoRecorder is returned by ClassifyAndRecord when no Recorder is configured.
var ErrNoRecorder = errors.New("no recorder configured")

// Source tells which path produced a Result.
type Source string

// Result sources.
const (
	SourceModel    Source = "model"
	SourceKeywords Source = "keywords"
)

// Result is the outcome of classifying one text.
type Result struct {
	Label      emotion.Label
	Confidence float64 // softmax probability of Label, 0 on the keyword path
	Source     Source
	Err        error // why the model path was skipped, nil otherwise
}

// Recorder persists classification results.
type Recorder interface {
	Record(diaryID string, r Result) error
}

// Deps are the collaborators of a Classifier. Nil fields get defaults:
// an empty vocabulary, an Unavailable backend, the built-in keywords and a
// discarding logger.
type Deps struct {
	Vocab    *vocab.Vocab
	Config   config.ModelConfig
	Backend  inference.Backend
	Fallback *fallback.Classifier
	Logger   *log.Logger
	Recorder Recorder
	Workers  int // ClassifyBatch worker limit, <= 0 means one per CPU
}

// Classifier classifies diary text.
type Classifier struct {
	encoder  *tokenizer.Encoder
	cfg      config.ModelConfig
	backend  inference.Backend
	keywords *fallback.Classifier
	logger   *log.Logger
	recorder Recorder
	parallel parallel.Config

	closeOnce sync.Once
	closeErr  error
}

// New builds a Classifier from explicit dependencies.
func New(d Deps) *Classifier {
	cfg := d.Config
	defaults := config.DefaultModelConfig()
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaults.MaxLength
	}
	if cfg.NumLabels <= 0 {
		cfg.NumLabels = defaults.NumLabels
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = defaults.Labels
	}

	v := d.Vocab
	if v == nil {
		v = vocab.Empty()
	}
	backend := d.Backend
	if backend == nil {
		backend = inference.Unavailable{}
	}
	keywords := d.Fallback
	if keywords == nil {
		keywords = fallback.Default()
	}
	logger := d.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Classifier{
		encoder:  tokenizer.NewEncoder(v, cfg.MaxLength),
		cfg:      cfg,
		backend:  backend,
		keywords: keywords,
		logger:   logger,
		recorder: d.Recorder,
		parallel: parallel.DefaultConfig().WithWorkers(d.Workers),
	}
}

// Options configure Open.
type Options struct {
	ModelDir  string
	MaxLength int // overrides config.json when > 0
	Workers   int
	Keywords  map[emotion.Label][]string // replaces the built-in keywords when non-empty
	Logger    *log.Logger
	Recorder  Recorder
}

// Open loads the model directory and builds a Classifier.
//
// Open never fails outright. Missing or broken files are replaced by defaults
// and each problem is logged once. The returned error joins those problems so
// callers can report a degraded start; the Classifier is usable either way.
func Open(opts Options) (*Classifier, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var problems []error

	cfg, err := config.LoadModelDir(opts.ModelDir)
	if err != nil {
		logger.Printf("model configuration: %v", err)
		problems = append(problems, err)
	}
	if opts.MaxLength > 0 {
		cfg.MaxLength = opts.MaxLength
	}

	v, err := tokenizer.LoadVocab(opts.ModelDir)
	if err != nil {
		logger.Printf("vocabulary: %v", err)
		problems = append(problems, err)
		v = vocab.Empty()
	}

	var backend inference.Backend
	if v.IsEmpty() {
		backend = inference.Unavailable{Reason: vocab.ErrVocabLoad}
		logger.Printf("inference disabled: empty vocabulary, using keyword classification")
	} else {
		backend, err = inference.OpenONNX(filepath.Join(opts.ModelDir, config.ModelFile), cfg)
		if err != nil {
			logger.Printf("inference disabled: %v", err)
			problems = append(problems, err)
		}
	}

	keywords := fallback.Default()
	if len(opts.Keywords) > 0 {
		keywords = fallback.New(opts.Keywords)
	}

	c := New(Deps{
		Vocab:    v,
		Config:   cfg,
		Backend:  backend,
		Fallback: keywords,
		Logger:   logger,
		Recorder: opts.Recorder,
		Workers:  opts.Workers,
	})
	return c, errors.Join(problems...)
}

// Available reports whether the numeric model is loaded.
func (c *Classifier) Available() bool {
	return c.backend.Available()
}

// Config returns the model configuration in use.
func (c *Classifier) Config() config.ModelConfig {
	return c.cfg
}

// Encoder returns the sequence encoder.
func (c *Classifier) Encoder() *tokenizer.Encoder {
	return c.encoder
}

// Classify returns the emotion of text.
func (c *Classifier) Classify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return c.byKeywords(text, nil)
	}
	if !c.backend.Available() {
		return c.byKeywords(text, inference.ErrUnavailable)
	}

	scores, err := c.backend.Classify(c.encoder.EncodeText(text))
	if err != nil {
		c.logger.Printf("model classification failed, using keywords: %v", err)
		return c.byKeywords(text, err)
	}

	d, err := decision.Decide(scores, c.cfg.Labels)
	if err != nil {
		c.logger.Printf("model output rejected, using keywords: %v", err)
		return c.byKeywords(text, err)
	}

	return Result{
		Label:      d.Label,
		Confidence: d.Confidence,
		Source:     SourceModel,
	}
}

func (c *Classifier) byKeywords(text string, cause error) Result {
	return Result{
		Label:  c.keywords.Classify(text),
		Source: SourceKeywords,
		Err:    cause,
	}
}

// ClassifyBatch classifies texts concurrently. Results are in input order.
func (c *Classifier) ClassifyBatch(texts []string) []Result {
	return parallel.Map(texts, c.Classify, c.parallel)
}

// ClassifyAndRecord classifies text and hands the result to the Recorder.
// The Result is returned even when recording fails.
func (c *Classifier) ClassifyAndRecord(diaryID, text string) (Result, error) {
	r := c.Classify(text)
	if c.recorder == nil {
		return r, ErrNoRecorder
	}
	if err := c.recorder.Record(diaryID, r); err != nil {
		return r, fmt.Errorf("failed to record analysis for diary %s: %w", diaryID, err)
	}
	return r, nil
}

// Close releases the backend. Later calls return the first result.
func (c *Classifier) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.backend.Close()
	})
	return c.closeErr
}
