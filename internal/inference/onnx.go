package inference

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"gorgonia.org/tensor"

	"github.com/born-ml/emodiary/internal/config"
	"github.com/born-ml/emodiary/internal/decision"
	"github.com/born-ml/emodiary/internal/onnx"
	"github.com/born-ml/emodiary/internal/onnx/operators"
	"github.com/born-ml/emodiary/internal/tokenizer"
)

// TokenTypeInput is the segment-id input of BERT exports. When the model
// declares it but the configuration does not name it, it is fed zeros.
const TokenTypeInput = "token_type_ids"

var errClosed = errors.New("backend closed")

// ONNXBackend runs an ONNX classification model on the CPU.
type ONNXBackend struct {
	model     atomic.Pointer[onnx.Model]
	cfg       config.ModelConfig
	zeroed    []string // model inputs fed with zeros
	closeOnce sync.Once
}

// OpenONNX loads the model at path. On failure it returns an Unavailable
// backend carrying the error together with the error itself.
func OpenONNX(path string, cfg config.ModelConfig) (Backend, error) {
	model, err := onnx.Load(path, onnx.LoadOptions{StrictMode: true})
	if err != nil {
		err = fmt.Errorf("failed to load model %s: %w", path, err)
		return Unavailable{Reason: err}, err
	}
	return wrap(model, cfg)
}

// OpenONNXBytes is OpenONNX for an in-memory model.
func OpenONNXBytes(data []byte, cfg config.ModelConfig) (Backend, error) {
	model, err := onnx.LoadFromBytes(data, onnx.LoadOptions{StrictMode: true})
	if err != nil {
		err = fmt.Errorf("failed to load model: %w", err)
		return Unavailable{Reason: err}, err
	}
	return wrap(model, cfg)
}

func wrap(model *onnx.Model, cfg config.ModelConfig) (Backend, error) {
	b, err := NewONNX(model, cfg)
	if err != nil {
		return Unavailable{Reason: err}, err
	}
	return b, nil
}

// NewONNX checks that model matches the tensor contract of cfg.
func NewONNX(model *onnx.Model, cfg config.ModelConfig) (*ONNXBackend, error) {
	if len(cfg.InputNames) < 1 || len(cfg.InputNames) > 2 {
		return nil, fmt.Errorf("want 1 or 2 input names, got %d", len(cfg.InputNames))
	}
	for _, name := range cfg.InputNames {
		if !slices.Contains(model.InputNames(), name) {
			return nil, fmt.Errorf("model has no input %q (inputs: %v)", name, model.InputNames())
		}
	}

	var zeroed []string
	for _, name := range model.InputNames() {
		if slices.Contains(cfg.InputNames, name) {
			continue
		}
		if name != TokenTypeInput {
			return nil, fmt.Errorf("model input %q is not configured", name)
		}
		zeroed = append(zeroed, name)
	}

	if !slices.Contains(model.OutputNames(), cfg.OutputName) {
		return nil, fmt.Errorf("model has no output %q (outputs: %v)", cfg.OutputName, model.OutputNames())
	}

	b := &ONNXBackend{cfg: cfg, zeroed: zeroed}
	b.model.Store(model)
	return b, nil
}

// Available reports whether the model is loaded and not yet closed.
func (b *ONNXBackend) Available() bool {
	return b.model.Load() != nil
}

// Classify runs the model on one encoding and returns the first batch row of
// the configured output.
func (b *ONNXBackend) Classify(enc tokenizer.Encoding) ([]float32, error) {
	model := b.model.Load()
	if model == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, errClosed)
	}

	n := len(enc.TokenIDs)
	if n != b.cfg.MaxLength || len(enc.AttentionMask) != n {
		return nil, &InferenceError{Op: "input", Err: fmt.Errorf(
			"encoding has %d ids and %d mask entries, model expects %d",
			n, len(enc.AttentionMask), b.cfg.MaxLength)}
	}

	inputs := map[string]*tensor.Dense{
		b.cfg.InputNames[0]: operators.NewInt64([]int{1, n}, enc.TokenIDs),
	}
	if len(b.cfg.InputNames) == 2 {
		inputs[b.cfg.InputNames[1]] = operators.NewInt64([]int{1, n}, enc.AttentionMask)
	}
	for _, name := range b.zeroed {
		inputs[name] = operators.NewInt64([]int{1, n}, make([]int64, n))
	}

	outputs, err := model.ForwardNamed(inputs)
	if err != nil {
		return nil, &InferenceError{Op: "forward", Err: err}
	}

	scores, err := firstRow(outputs[b.cfg.OutputName])
	if err != nil {
		return nil, &InferenceError{Op: "output", Err: err}
	}
	if len(scores) != b.cfg.NumLabels {
		return nil, &InferenceError{Op: "output", Err: fmt.Errorf(
			"got %d scores, expected %d labels", len(scores), b.cfg.NumLabels)}
	}
	if i := decision.FirstNonFinite(scores); i >= 0 {
		return nil, &InferenceError{Op: "output", Err: fmt.Errorf("score %d is %v", i, scores[i])}
	}
	return scores, nil
}

// firstRow copies the first batch row of a [batch, ...] float output.
func firstRow(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, errors.New("output missing")
	}
	values, err := operators.Floats(t)
	if err != nil {
		return nil, err
	}

	row := len(values)
	if shape := operators.ShapeOf(t); len(shape) >= 2 {
		if shape[0] < 1 {
			return nil, fmt.Errorf("empty batch in output shape %v", shape)
		}
		row = len(values) / shape[0]
	}
	out := make([]float32, row)
	copy(out, values[:row])
	return out, nil
}

// Close releases the model. Later Classify calls fail with ErrUnavailable.
func (b *ONNXBackend) Close() error {
	b.closeOnce.Do(func() {
		b.model.Store(nil)
	})
	return nil
}
