package inference

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/emodiary/internal/config"
	"github.com/born-ml/emodiary/internal/onnx"
	"github.com/born-ml/emodiary/internal/onnx/onnxtest"
	"github.com/born-ml/emodiary/internal/tokenizer"
)

func testConfig() config.ModelConfig {
	cfg := config.DefaultModelConfig()
	cfg.MaxLength = 6
	cfg.NumLabels = 3
	return cfg
}

func testSpec() onnxtest.ClassifierSpec {
	return onnxtest.ClassifierSpec{
		VocabSize: 8,
		NumLabels: 3,
		Votes:     map[int64]int{4: 0, 5: 1, 6: 2},
		MaskName:  "attention_mask",
	}
}

func encoding(ids, mask []int64) tokenizer.Encoding {
	return tokenizer.Encoding{TokenIDs: ids, AttentionMask: mask}
}

func openTest(t *testing.T, spec onnxtest.ClassifierSpec, cfg config.ModelConfig) Backend {
	t.Helper()
	b, err := OpenONNXBytes(onnxtest.ClassifierBytes(spec), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestONNXBackend_Classify(t *testing.T) {
	b := openTest(t, testSpec(), testConfig())
	require.True(t, b.Available())

	scores, err := b.Classify(encoding([]int64{2, 6, 6, 3, 0, 0}, []int64{1, 1, 1, 1, 0, 0}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0, 5}, scores, 1e-5)
}

func TestONNXBackend_SingleInput(t *testing.T) {
	spec := testSpec()
	spec.MaskName = ""
	cfg := testConfig()
	cfg.InputNames = []string{"input_ids"}

	b := openTest(t, spec, cfg)
	scores, err := b.Classify(encoding([]int64{5, 5, 5, 5, 5, 5}, []int64{1, 1, 1, 1, 1, 1}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 10, 0}, scores, 1e-5)
}

func TestONNXBackend_CustomNames(t *testing.T) {
	spec := testSpec()
	spec.IDsName, spec.MaskName, spec.OutputName = "ids", "mask", "scores"
	cfg := testConfig()
	cfg.InputNames = []string{"ids", "mask"}
	cfg.OutputName = "scores"

	b := openTest(t, spec, cfg)
	_, err := b.Classify(encoding([]int64{2, 4, 3, 0, 0, 0}, []int64{1, 1, 1, 0, 0, 0}))
	assert.NoError(t, err)
}

func TestONNXBackend_InputErrors(t *testing.T) {
	b := openTest(t, testSpec(), testConfig())

	tests := []struct {
		name string
		enc  tokenizer.Encoding
	}{
		{"too short", encoding([]int64{2, 3}, []int64{1, 1})},
		{"mask length differs", encoding([]int64{2, 3, 0, 0, 0, 0}, []int64{1, 1})},
		{"empty", tokenizer.Encoding{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Classify(tt.enc)
			require.ErrorIs(t, err, ErrInference)

			var ie *InferenceError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "input", ie.Op)
		})
	}
}

func TestONNXBackend_ForwardError(t *testing.T) {
	b := openTest(t, testSpec(), testConfig())

	// Id 42 is outside the embedding table.
	_, err := b.Classify(encoding([]int64{2, 42, 3, 0, 0, 0}, []int64{1, 1, 1, 0, 0, 0}))
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "forward", ie.Op)
	assert.ErrorIs(t, err, ErrInference)
}

func TestONNXBackend_LabelCountMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.NumLabels = 6

	b := openTest(t, testSpec(), cfg)
	_, err := b.Classify(encoding([]int64{2, 4, 3, 0, 0, 0}, []int64{1, 1, 1, 0, 0, 0}))
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "output", ie.Op)
}

func TestONNXBackend_NonFiniteScores(t *testing.T) {
	tests := []struct {
		name string
		bias []float32
	}{
		{"nan", []float32{float32(math.NaN()), 0, 0}},
		{"infinity", []float32{0, 0, float32(math.Inf(1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			spec.Bias = tt.bias

			b := openTest(t, spec, testConfig())
			scores, err := b.Classify(encoding([]int64{2, 4, 3, 0, 0, 0}, []int64{1, 1, 1, 0, 0, 0}))
			assert.Nil(t, scores)
			var ie *InferenceError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "output", ie.Op)
		})
	}
}

func TestOpenONNX_ContractMismatch(t *testing.T) {
	data := onnxtest.ClassifierBytes(testSpec())

	tests := []struct {
		name   string
		mutate func(*config.ModelConfig)
	}{
		{"unknown input", func(c *config.ModelConfig) { c.InputNames = []string{"input_ids", "mask"} }},
		{"unconfigured model input", func(c *config.ModelConfig) { c.InputNames = []string{"input_ids"} }},
		{"unknown output", func(c *config.ModelConfig) { c.OutputName = "probabilities" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			b, err := OpenONNXBytes(data, cfg)
			require.Error(t, err)
			assert.False(t, b.Available())
			_, err = b.Classify(encoding(make([]int64, 6), make([]int64, 6)))
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestOpenONNX_TokenTypeInputZeroed(t *testing.T) {
	proto := onnxtest.ClassifierModel(testSpec())
	proto.Graph.Inputs = append(proto.Graph.Inputs, onnxtest.Input(TokenTypeInput, onnx.TensorProtoInt64, 1, onnxtest.DynamicDim))

	b, err := OpenONNXBytes(onnxtest.Marshal(proto), testConfig())
	require.NoError(t, err)
	_, err = b.Classify(encoding([]int64{2, 4, 3, 0, 0, 0}, []int64{1, 1, 1, 0, 0, 0}))
	assert.NoError(t, err)
}

func TestOpenONNX_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, onnxtest.ClassifierBytes(testSpec()), 0o600))

	b, err := OpenONNX(path, testConfig())
	require.NoError(t, err)
	assert.True(t, b.Available())
	require.NoError(t, b.Close())
}

func TestOpenONNX_MissingFile(t *testing.T) {
	b, err := OpenONNX(filepath.Join(t.TempDir(), "missing.onnx"), testConfig())
	require.Error(t, err)
	require.NotNil(t, b)
	assert.False(t, b.Available())
	assert.NoError(t, b.Close())
}

func TestONNXBackend_CloseIdempotent(t *testing.T) {
	b, err := OpenONNXBytes(onnxtest.ClassifierBytes(testSpec()), testConfig())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.False(t, b.Available())

	_, err = b.Classify(encoding(make([]int64, 6), make([]int64, 6)))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestONNXBackend_Concurrent(t *testing.T) {
	b := openTest(t, testSpec(), testConfig())

	var wg sync.WaitGroup
	results := make([][]float32, 32)
	errs := make([]error, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := int64(4 + i%3)
			results[i], errs[i] = b.Classify(encoding([]int64{2, token, 3, 0, 0, 0}, []int64{1, 1, 1, 0, 0, 0}))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		want := make([]float32, 3)
		want[i%3] = 10.0 / 3
		assert.InDeltaSlice(t, want, results[i], 1e-4)
	}
}

func TestUnavailable(t *testing.T) {
	var b Backend = Unavailable{}
	assert.False(t, b.Available())
	_, err := b.Classify(tokenizer.Encoding{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, b.Close())

	b = Unavailable{Reason: os.ErrNotExist}
	_, err = b.Classify(tokenizer.Encoding{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
