package operators

import (
	"fmt"
	"slices"

	"gorgonia.org/tensor"
)

// Element is the set of element types a value can carry.
type Element interface {
	float32 | int64
}

// NewFloat32 wraps data in a dense float32 tensor. An empty shape makes a
// scalar from data[0].
func NewFloat32(shape []int, data []float32) *tensor.Dense {
	if len(shape) == 0 {
		return tensor.New(tensor.FromScalar(data[0]))
	}
	return tensor.New(tensor.WithShape(copyShape(shape)...), tensor.WithBacking(data))
}

// NewInt64 wraps data in a dense int64 tensor. An empty shape makes a
// scalar from data[0].
func NewInt64(shape []int, data []int64) *tensor.Dense {
	if len(shape) == 0 {
		return tensor.New(tensor.FromScalar(data[0]))
	}
	return tensor.New(tensor.WithShape(copyShape(shape)...), tensor.WithBacking(data))
}

// Floats returns the float32 elements of t without copying.
func Floats(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, fmt.Errorf("missing tensor")
	}
	switch v := t.Data().(type) {
	case []float32:
		return v, nil
	case float32:
		return []float32{v}, nil
	default:
		return nil, fmt.Errorf("expected float32 tensor, got %v", t.Dtype())
	}
}

// Int64s returns the int64 elements of t without copying.
func Int64s(t *tensor.Dense) ([]int64, error) {
	if t == nil {
		return nil, fmt.Errorf("missing tensor")
	}
	switch v := t.Data().(type) {
	case []int64:
		return v, nil
	case int64:
		return []int64{v}, nil
	default:
		return nil, fmt.Errorf("expected int64 tensor, got %v", t.Dtype())
	}
}

// IsFloat reports whether t carries float32 elements.
func IsFloat(t *tensor.Dense) bool {
	return t.Dtype() == tensor.Float32
}

// ShapeOf returns a copy of the shape of t.
func ShapeOf(t *tensor.Dense) []int {
	s := t.Shape()
	out := make([]int, len(s))
	copy(out, s)
	return out
}

// cloneAs copies the elements of t, in row-major order, into a new tensor
// of shape.
func cloneAs(t *tensor.Dense, shape []int) *tensor.Dense {
	if IsFloat(t) {
		v, _ := Floats(t)
		return NewFloat32(shape, slices.Clone(v))
	}
	v, _ := Int64s(t)
	return NewInt64(shape, slices.Clone(v))
}

// lift gives a rank-0 tensor the shape [1]. Gorgonia routes rank-0
// operands through its scalar kernels.
func lift(t *tensor.Dense) *tensor.Dense {
	if t.Shape().IsScalar() {
		return cloneAs(t, []int{1})
	}
	return t
}

// lower copies a gorgonia result into a tensor of shape.
func lower(res tensor.Tensor, shape []int) (*tensor.Dense, error) {
	d, ok := res.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("unexpected result %T", res)
	}
	if d.Shape().TotalSize() != numElements(shape) {
		return nil, fmt.Errorf("result shape %v does not fit %v", d.Shape(), shape)
	}
	return cloneAs(d, shape), nil
}

// apply runs a safe gorgonia unary kernel on t and keeps its shape.
func apply(t *tensor.Dense, fn func(tensor.Tensor, ...tensor.FuncOpt) (tensor.Tensor, error)) (*tensor.Dense, error) {
	res, err := fn(lift(t))
	if err != nil {
		return nil, err
	}
	return lower(res, ShapeOf(t))
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// normAxis maps a possibly negative axis into [0, rank).
func normAxis(axis int64, rank int) (int, error) {
	a := int(axis)
	if a < 0 {
		a += rank
	}
	if a < 0 || a >= rank {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return a, nil
}

// broadcastShape computes the NumPy broadcast of two shapes.
func broadcastShape(a, b []int) ([]int, error) {
	n := max(len(a), len(b))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da := dimFromRight(a, n-i)
		db := dimFromRight(b, n-i)
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

// dimFromRight returns shape[len-k], or 1 past the leading edge.
func dimFromRight(shape []int, k int) int {
	if k > len(shape) {
		return 1
	}
	return shape[len(shape)-k]
}

// broadcastStrides returns, per output dimension, the step through an input of
// shape in; broadcast dimensions step by 0.
func broadcastStrides(in, out []int) []int {
	strides := make([]int, len(out))
	stride := 1
	offset := len(out) - len(in)
	for i := len(out) - 1; i >= offset && i >= 0; i-- {
		d := in[i-offset]
		if d != 1 {
			strides[i] = stride
		}
		stride *= d
	}
	return strides
}

// walk visits every index of shape in row-major order, tracking one offset
// per stride set.
func walk(shape []int, strides [][]int, fn func(offsets []int)) {
	total := numElements(shape)
	idx := make([]int, len(shape))
	offsets := make([]int, len(strides))
	for k := 0; k < total; k++ {
		fn(offsets)
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			for s := range strides {
				offsets[s] += strides[s][d]
			}
			if idx[d] < shape[d] {
				break
			}
			for s := range strides {
				offsets[s] -= strides[s][d] * shape[d]
			}
			idx[d] = 0
		}
	}
}

// broadcastBinary applies fn element-wise over the broadcast of a and b.
func broadcastBinary[T Element](a, b []T, aShape, bShape []int, fn func(x, y T) T) ([]T, []int, error) {
	outShape, err := broadcastShape(aShape, bShape)
	if err != nil {
		return nil, nil, err
	}
	out := make([]T, 0, numElements(outShape))
	strides := [][]int{broadcastStrides(aShape, outShape), broadcastStrides(bShape, outShape)}
	walk(outShape, strides, func(off []int) {
		out = append(out, fn(a[off[0]], b[off[1]]))
	})
	return out, outShape, nil
}

// splitAt returns the element counts before, at, and after axis.
func splitAt(shape []int, axis int) (outer, dim, inner int) {
	return numElements(shape[:axis]), shape[axis], numElements(shape[axis+1:])
}
