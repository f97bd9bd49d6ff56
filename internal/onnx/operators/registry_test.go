package operators

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	essentialOps := []string{
		"Add", "Sub", "Mul", "Div", "MatMul", "Gemm",
		"Relu", "Tanh", "Softmax", "LayerNormalization",
		"ReduceSum", "ReduceMean",
		"Gather", "Reshape", "Transpose", "Unsqueeze", "Squeeze",
		"Identity", "Cast", "Constant",
	}
	for _, op := range essentialOps {
		_, ok := r.Get(op)
		assert.True(t, ok, "operator %s should be registered", op)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("UnknownOp")
	assert.False(t, ok)

	_, err := r.Execute(&Node{OpType: "UnknownOp"}, nil)
	assert.ErrorContains(t, err, "unsupported operator")
}

func TestSupportedOpsSorted(t *testing.T) {
	ops := NewRegistry().SupportedOps()
	assert.GreaterOrEqual(t, len(ops), 25)
	assert.IsIncreasing(t, ops)
}

func TestRegisterCustomOp(t *testing.T) {
	r := NewRegistry()
	sentinel := errors.New("custom")
	r.Register("MyCustomOp", func(_ *Node, _ []*tensor.Dense) ([]*tensor.Dense, error) {
		return nil, sentinel
	})

	_, ok := r.Get("MyCustomOp")
	require.True(t, ok)
	_, err := r.Execute(&Node{OpType: "MyCustomOp"}, nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestMissingInputs(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(&Node{OpType: "Add"}, []*tensor.Dense{NewFloat32([]int{1}, []float32{1})})
	assert.Error(t, err)

	_, err = r.Execute(&Node{OpType: "Relu"}, []*tensor.Dense{nil})
	assert.Error(t, err)
}
