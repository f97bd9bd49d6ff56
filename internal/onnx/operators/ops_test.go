package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func run(t *testing.T, node *Node, inputs ...*tensor.Dense) *tensor.Dense {
	t.Helper()
	out, err := NewRegistry().Execute(node, inputs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func floatsOf(t *testing.T, d *tensor.Dense) []float32 {
	t.Helper()
	v, err := Floats(d)
	require.NoError(t, err)
	return v
}

func intsOf(t *testing.T, d *tensor.Dense) []int64 {
	t.Helper()
	v, err := Int64s(d)
	require.NoError(t, err)
	return v
}

func TestAdd_Broadcast(t *testing.T) {
	a := NewFloat32([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := NewFloat32([]int{3}, []float32{10, 20, 30})

	out := run(t, &Node{OpType: "Add"}, a, b)
	assert.Equal(t, []int{2, 3}, ShapeOf(out))
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, floatsOf(t, out))

	// Inputs are left untouched.
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, floatsOf(t, a))
}

func TestArithmetic_SameShape(t *testing.T) {
	a := NewFloat32([]int{2, 2}, []float32{1, 2, 3, 4})
	b := NewFloat32([]int{2, 2}, []float32{4, 3, 2, 1})

	assert.Equal(t, []float32{5, 5, 5, 5}, floatsOf(t, run(t, &Node{OpType: "Add"}, a, b)))
	assert.Equal(t, []float32{-3, -1, 1, 3}, floatsOf(t, run(t, &Node{OpType: "Sub"}, a, b)))
	assert.Equal(t, []float32{4, 6, 6, 4}, floatsOf(t, run(t, &Node{OpType: "Mul"}, a, b)))
	assert.InDeltaSlice(t, []float32{0.25, 0.6667, 1.5, 4}, floatsOf(t, run(t, &Node{OpType: "Div"}, a, b)), 1e-4)
	assert.InDeltaSlice(t, []float32{1, 8, 9, 4}, floatsOf(t, run(t, &Node{OpType: "Pow"}, a, b)), 1e-4)

	assert.Equal(t, []float32{1, 2, 3, 4}, floatsOf(t, a))
	assert.Equal(t, []float32{4, 3, 2, 1}, floatsOf(t, b))

	scalar := run(t, &Node{OpType: "Mul"}, NewInt64(nil, []int64{6}), NewInt64(nil, []int64{7}))
	assert.Empty(t, ShapeOf(scalar))
	assert.Equal(t, []int64{42}, intsOf(t, scalar))
}

func TestMul_BroadcastColumn(t *testing.T) {
	a := NewFloat32([]int{1, 3, 2}, []float32{1, 2, 3, 4, 5, 6})
	mask := NewFloat32([]int{1, 3, 1}, []float32{1, 0, 1})

	out := run(t, &Node{OpType: "Mul"}, a, mask)
	assert.Equal(t, []int{1, 3, 2}, ShapeOf(out))
	assert.Equal(t, []float32{1, 2, 0, 0, 5, 6}, floatsOf(t, out))
}

func TestArithmetic_Int64(t *testing.T) {
	a := NewInt64([]int{3}, []int64{6, 8, 10})
	b := NewInt64([]int{1}, []int64{2})

	assert.Equal(t, []int64{8, 10, 12}, intsOf(t, run(t, &Node{OpType: "Add"}, a, b)))
	assert.Equal(t, []int64{3, 4, 5}, intsOf(t, run(t, &Node{OpType: "Div"}, a, b)))

	_, err := NewRegistry().Execute(&Node{OpType: "Div"}, []*tensor.Dense{a, NewInt64([]int{1}, []int64{0})})
	assert.Error(t, err)
}

func TestArithmetic_Errors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(&Node{OpType: "Add"}, []*tensor.Dense{
		NewFloat32([]int{2}, []float32{1, 2}),
		NewInt64([]int{2}, []int64{1, 2}),
	})
	assert.ErrorContains(t, err, "mismatched")

	_, err = r.Execute(&Node{OpType: "Sub"}, []*tensor.Dense{
		NewFloat32([]int{2}, []float32{1, 2}),
		NewFloat32([]int{3}, []float32{1, 2, 3}),
	})
	assert.ErrorContains(t, err, "broadcastable")
}

func TestMatMul(t *testing.T) {
	tests := []struct {
		name   string
		a, b   *tensor.Dense
		shape  []int
		expect []float32
	}{
		{
			name:   "2d",
			a:      NewFloat32([]int{2, 2}, []float32{1, 2, 3, 4}),
			b:      NewFloat32([]int{2, 2}, []float32{5, 6, 7, 8}),
			shape:  []int{2, 2},
			expect: []float32{19, 22, 43, 50},
		},
		{
			name:   "3d by 2d",
			a:      NewFloat32([]int{1, 2, 2}, []float32{1, 0, 0, 1}),
			b:      NewFloat32([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6}),
			shape:  []int{1, 2, 3},
			expect: []float32{1, 2, 3, 4, 5, 6},
		},
		{
			name:   "vector by matrix",
			a:      NewFloat32([]int{2}, []float32{1, 1}),
			b:      NewFloat32([]int{2, 2}, []float32{1, 2, 3, 4}),
			shape:  []int{2},
			expect: []float32{4, 6},
		},
		{
			name:   "batched",
			a:      NewFloat32([]int{2, 1, 2}, []float32{1, 2, 3, 4}),
			b:      NewFloat32([]int{2, 2, 1}, []float32{1, 1, 2, 0}),
			shape:  []int{2, 1, 1},
			expect: []float32{3, 6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, &Node{OpType: "MatMul"}, tt.a, tt.b)
			assert.Equal(t, tt.shape, ShapeOf(out))
			assert.InDeltaSlice(t, tt.expect, floatsOf(t, out), 1e-6)
		})
	}
}

func TestGemm(t *testing.T) {
	node := &Node{OpType: "Gemm", Attributes: []Attribute{
		{Name: "transB", I: 1},
		{Name: "alpha", F: 2},
		{Name: "beta", F: 1},
	}}
	a := NewFloat32([]int{1, 2}, []float32{1, 2})
	b := NewFloat32([]int{3, 2}, []float32{1, 0, 0, 1, 1, 1})
	c := NewFloat32([]int{3}, []float32{0.5, 0.5, 0.5})

	out := run(t, node, a, b, c)
	assert.Equal(t, []int{1, 3}, ShapeOf(out))
	assert.InDeltaSlice(t, []float32{2.5, 4.5, 6.5}, floatsOf(t, out), 1e-6)
}

func TestSoftmax(t *testing.T) {
	out := run(t, &Node{OpType: "Softmax"}, NewFloat32([]int{2, 2}, []float32{0, 0, 1000, 1000}))
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5}, floatsOf(t, out), 1e-6)

	node := &Node{OpType: "Softmax", Attributes: []Attribute{{Name: "axis", I: 0}}}
	out = run(t, node, NewFloat32([]int{2, 1}, []float32{1, 1}))
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, floatsOf(t, out), 1e-6)
}

func TestLayerNormalization(t *testing.T) {
	x := NewFloat32([]int{1, 4}, []float32{1, 2, 3, 4})
	scale := NewFloat32([]int{4}, []float32{1, 1, 1, 1})
	bias := NewFloat32([]int{4}, []float32{0, 0, 0, 1})

	out := floatsOf(t, run(t, &Node{OpType: "LayerNormalization"}, x, scale, bias))
	// mean 2.5, variance 1.25
	assert.InDelta(t, -1.3416, out[0], 1e-3)
	assert.InDelta(t, 1.3416+1, out[3], 1e-3)
}

func TestUnaryActivations(t *testing.T) {
	x := NewFloat32([]int{3}, []float32{-1, 0, 2})

	assert.Equal(t, []float32{0, 0, 2}, floatsOf(t, run(t, &Node{OpType: "Relu"}, x)))
	assert.InDeltaSlice(t, []float32{0.26894, 0.5, 0.88080}, floatsOf(t, run(t, &Node{OpType: "Sigmoid"}, x)), 1e-4)
	assert.InDeltaSlice(t, []float32{-0.76159, 0, 0.96403}, floatsOf(t, run(t, &Node{OpType: "Tanh"}, x)), 1e-4)
}

func TestUnaryMath(t *testing.T) {
	x := NewFloat32([]int{2, 2}, []float32{0, 1, 4, 9})

	assert.InDeltaSlice(t, []float32{0, 1, 2, 3}, floatsOf(t, run(t, &Node{OpType: "Sqrt"}, x)), 1e-6)
	assert.InDeltaSlice(t, []float32{1, 2.71828, 54.59815, 8103.0839}, floatsOf(t, run(t, &Node{OpType: "Exp"}, x)), 1e-2)
	neg := run(t, &Node{OpType: "Neg"}, x)
	assert.Equal(t, []int{2, 2}, ShapeOf(neg))
	assert.Equal(t, []float32{0, -1, -4, -9}, floatsOf(t, neg))
	assert.Equal(t, []float32{0, 1, 4, 9}, floatsOf(t, x))

	scalar := run(t, &Node{OpType: "Sqrt"}, NewFloat32(nil, []float32{16}))
	assert.Empty(t, ShapeOf(scalar))
	assert.Equal(t, []float32{4}, floatsOf(t, scalar))

	_, err := NewRegistry().Execute(&Node{OpType: "Exp"}, []*tensor.Dense{NewInt64([]int{1}, []int64{1})})
	assert.ErrorContains(t, err, "float32")
}

func TestReduce_MultipleAxes(t *testing.T) {
	x := NewInt64([]int{2, 2, 3}, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	sum := run(t, &Node{OpType: "ReduceSum", Attributes: []Attribute{{Name: "axes", Ints: []int64{0, 2}}}}, x)
	assert.Equal(t, []int{1, 2, 1}, ShapeOf(sum))
	assert.Equal(t, []int64{30, 48}, intsOf(t, sum))

	peak := run(t, &Node{OpType: "ReduceMax", Attributes: []Attribute{
		{Name: "axes", Ints: []int64{1, -1, 1}},
		{Name: "keepdims", I: 0},
	}}, x)
	assert.Equal(t, []int{2}, ShapeOf(peak))
	assert.Equal(t, []int64{6, 12}, intsOf(t, peak))

	same := run(t, &Node{OpType: "ReduceSum", Attributes: []Attribute{{Name: "noop_with_empty_axes", I: 1}}}, x)
	assert.Equal(t, intsOf(t, x), intsOf(t, same))
}

func TestReduce(t *testing.T) {
	x := NewFloat32([]int{1, 3, 2}, []float32{1, 2, 3, 4, 5, 6})

	sum := run(t, &Node{OpType: "ReduceSum", Attributes: []Attribute{
		{Name: "axes", Ints: []int64{1}},
		{Name: "keepdims", I: 0},
	}}, x)
	assert.Equal(t, []int{1, 2}, ShapeOf(sum))
	assert.Equal(t, []float32{9, 12}, floatsOf(t, sum))

	// Opset 18 passes axes as an input.
	mean := run(t, &Node{OpType: "ReduceMean"}, x, NewInt64([]int{1}, []int64{-1}))
	assert.Equal(t, []int{1, 3, 1}, ShapeOf(mean))
	assert.Equal(t, []float32{1.5, 3.5, 5.5}, floatsOf(t, mean))

	all := run(t, &Node{OpType: "ReduceMax", Attributes: []Attribute{{Name: "keepdims", I: 0}}}, x)
	assert.Empty(t, ShapeOf(all))
	assert.Equal(t, []float32{6}, floatsOf(t, all))
}

func TestGather_Embedding(t *testing.T) {
	table := NewFloat32([]int{3, 2}, []float32{0, 0, 1, 1, 2, 2})
	ids := NewInt64([]int{1, 3}, []int64{2, 0, -1})

	out := run(t, &Node{OpType: "Gather"}, table, ids)
	assert.Equal(t, []int{1, 3, 2}, ShapeOf(out))
	assert.Equal(t, []float32{2, 2, 0, 0, 2, 2}, floatsOf(t, out))

	_, err := NewRegistry().Execute(&Node{OpType: "Gather"}, []*tensor.Dense{table, NewInt64([]int{1}, []int64{3})})
	assert.ErrorContains(t, err, "out of range")
}

func TestGather_ScalarIndex(t *testing.T) {
	shape := NewInt64([]int{3}, []int64{1, 7, 16})
	node := &Node{OpType: "Gather", Attributes: []Attribute{{Name: "axis", I: 0}}}

	out := run(t, node, shape, NewInt64(nil, []int64{1}))
	assert.Empty(t, ShapeOf(out))
	assert.Equal(t, []int64{7}, intsOf(t, out))
}

func TestShapeOps(t *testing.T) {
	x := NewFloat32([]int{1, 2, 3}, []float32{1, 2, 3, 4, 5, 6})

	reshaped := run(t, &Node{OpType: "Reshape"}, x, NewInt64([]int{2}, []int64{0, -1}))
	assert.Equal(t, []int{1, 6}, ShapeOf(reshaped))

	flat := run(t, &Node{OpType: "Flatten", Attributes: []Attribute{{Name: "axis", I: 2}}}, x)
	assert.Equal(t, []int{2, 3}, ShapeOf(flat))

	transposed := run(t, &Node{OpType: "Transpose", Attributes: []Attribute{{Name: "perm", Ints: []int64{0, 2, 1}}}}, x)
	assert.Equal(t, []int{1, 3, 2}, ShapeOf(transposed))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, floatsOf(t, transposed))

	reversed := run(t, &Node{OpType: "Transpose"}, NewInt64([]int{2, 3}, []int64{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, []int{3, 2}, ShapeOf(reversed))
	assert.Equal(t, []int64{1, 4, 2, 5, 3, 6}, intsOf(t, reversed))

	identity := run(t, &Node{OpType: "Transpose", Attributes: []Attribute{{Name: "perm", Ints: []int64{0, 1, 2}}}}, x)
	assert.Equal(t, floatsOf(t, x), floatsOf(t, identity))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, floatsOf(t, x))

	squeezed := run(t, &Node{OpType: "Squeeze"}, x)
	assert.Equal(t, []int{2, 3}, ShapeOf(squeezed))

	unsqueezed := run(t, &Node{OpType: "Unsqueeze", Attributes: []Attribute{{Name: "axes", Ints: []int64{-1}}}}, x)
	assert.Equal(t, []int{1, 2, 3, 1}, ShapeOf(unsqueezed))

	shape := run(t, &Node{OpType: "Shape"}, x)
	assert.Equal(t, []int64{1, 2, 3}, intsOf(t, shape))
}

func TestConcat(t *testing.T) {
	a := NewInt64([]int{1}, []int64{1})
	b := NewInt64([]int{2}, []int64{-1, 4})
	out := run(t, &Node{OpType: "Concat", Attributes: []Attribute{{Name: "axis", I: 0}}}, a, b)
	assert.Equal(t, []int64{1, -1, 4}, intsOf(t, out))

	x := NewFloat32([]int{2, 1}, []float32{1, 2})
	y := NewFloat32([]int{2, 2}, []float32{3, 4, 5, 6})
	out = run(t, &Node{OpType: "Concat", Attributes: []Attribute{{Name: "axis", I: 1}}}, x, y)
	assert.Equal(t, []int{2, 3}, ShapeOf(out))
	assert.Equal(t, []float32{1, 3, 4, 2, 5, 6}, floatsOf(t, out))
}

func TestCast(t *testing.T) {
	mask := NewInt64([]int{1, 3}, []int64{1, 1, 0})
	out := run(t, &Node{OpType: "Cast", Attributes: []Attribute{{Name: "to", I: TensorProtoFloat}}}, mask)
	assert.Equal(t, []float32{1, 1, 0}, floatsOf(t, out))

	back := run(t, &Node{OpType: "Cast", Attributes: []Attribute{{Name: "to", I: TensorProtoInt64}}},
		NewFloat32([]int{2}, []float32{2.7, -1.2}))
	assert.Equal(t, []int64{2, -1}, intsOf(t, back))
}

func TestConstant(t *testing.T) {
	value := NewFloat32([]int{2}, []float32{0.5, 1.5})
	out := run(t, &Node{OpType: "Constant", Attributes: []Attribute{{Name: "value", T: value}}})
	assert.Equal(t, []float32{0.5, 1.5}, floatsOf(t, out))

	ints := run(t, &Node{OpType: "Constant", Attributes: []Attribute{{Name: "value_ints", Ints: []int64{1, 2}}}})
	assert.Equal(t, []int64{1, 2}, intsOf(t, ints))

	filled := run(t, &Node{OpType: "ConstantOfShape"}, NewInt64([]int{2}, []int64{2, 2}))
	assert.Equal(t, []float32{0, 0, 0, 0}, floatsOf(t, filled))
}
