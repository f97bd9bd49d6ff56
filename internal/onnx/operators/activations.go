package operators

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// registerActivations adds element-wise and normalization operators.
func (r *Registry) registerActivations() {
	r.Register("Relu", mapped("Relu", func(x float32) float32 { return max(x, 0) }))
	r.Register("Sigmoid", mapped("Sigmoid", func(x float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(x))))
	}))
	r.Register("Erf", mapped("Erf", func(x float32) float32 { return float32(math.Erf(float64(x))) }))
	r.Register("Gelu", mapped("Gelu", func(x float32) float32 {
		return float32(0.5 * float64(x) * (1 + math.Erf(float64(x)/math.Sqrt2)))
	}))
	r.Register("Tanh", unary("Tanh", tensor.Tanh))
	r.Register("Sqrt", unary("Sqrt", tensor.Sqrt))
	r.Register("Exp", unary("Exp", tensor.Exp))
	r.Register("Neg", unary("Neg", tensor.Neg))
	r.Register("Softmax", handleSoftmax)
	r.Register("LayerNormalization", handleLayerNormalization)
}

// unary builds an element-wise float32 handler on a gorgonia kernel.
func unary(op string, fn func(tensor.Tensor, ...tensor.FuncOpt) (tensor.Tensor, error)) OpHandler {
	return func(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
		if err := requireInputs(op, inputs, 1); err != nil {
			return nil, err
		}
		if !IsFloat(inputs[0]) {
			return nil, fmt.Errorf("%s: expected float32 tensor, got %v", op, inputs[0].Dtype())
		}
		out, err := apply(inputs[0], fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return one(out), nil
	}
}

// mapped builds an element-wise float32 handler that maps fn over the input.
func mapped(op string, fn func(float32) float32) OpHandler {
	return unary(op, func(t tensor.Tensor, opts ...tensor.FuncOpt) (tensor.Tensor, error) {
		return t.Apply(fn, opts...)
	})
}

// reduceKeep reduces t along axis with a gorgonia reduction and keeps the
// axis with size 1.
func reduceKeep(t *tensor.Dense, axis int, reduce func(*tensor.Dense, ...int) (*tensor.Dense, error)) (*tensor.Dense, error) {
	shape := ShapeOf(t)
	res, err := reduce(t, axis)
	if err != nil {
		return nil, err
	}
	shape[axis] = 1
	return lower(res, shape)
}

// handleSoftmax normalizes along one axis (default -1, opset 13 semantics).
func handleSoftmax(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Softmax", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if !IsFloat(x) {
		return nil, fmt.Errorf("Softmax: expected float32 tensor, got %v", x.Dtype())
	}
	axis, err := normAxis(GetAttrInt(node, "axis", -1), x.Dims())
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}

	peak, err := reduceKeep(x, axis, (*tensor.Dense).Max)
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}
	shifted, err := subKernel.apply(x, peak)
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}
	e, err := apply(shifted, tensor.Exp)
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}
	total, err := reduceKeep(e, axis, (*tensor.Dense).Sum)
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}
	out, err := divKernel.apply(e, total)
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}
	return one(out), nil
}

// handleLayerNormalization normalizes over the trailing dimensions starting
// at axis, then applies scale and the optional bias.
func handleLayerNormalization(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("LayerNormalization", inputs, 2); err != nil {
		return nil, err
	}
	x, scale, bias := inputs[0], inputs[1], optionalInput(inputs, 2)
	if !IsFloat(x) || !IsFloat(scale) || (bias != nil && !IsFloat(bias)) {
		return nil, fmt.Errorf("LayerNormalization: expected float32 inputs")
	}

	shape := ShapeOf(x)
	axis, err := normAxis(GetAttrInt(node, "axis", -1), len(shape))
	if err != nil {
		return nil, fmt.Errorf("LayerNormalization: %w", err)
	}
	eps := GetAttrFloat(node, "epsilon", 1e-5)

	// Rows are the leading dimensions, columns the normalized trailing ones.
	rows, size := numElements(shape[:axis]), numElements(shape[axis:])
	if scale.Shape().TotalSize() != size || (bias != nil && bias.Shape().TotalSize() != size) {
		return nil, fmt.Errorf("LayerNormalization: scale/bias must have %d elements", size)
	}
	flat := cloneAs(x, []int{rows, size})

	y, err := normalizeRows(flat, float32(size), eps)
	if err != nil {
		return nil, fmt.Errorf("LayerNormalization: %w", err)
	}
	if y, err = mulKernel.apply(y, cloneAs(scale, []int{size})); err != nil {
		return nil, fmt.Errorf("LayerNormalization: %w", err)
	}
	if bias != nil {
		if y, err = addKernel.apply(y, cloneAs(bias, []int{size})); err != nil {
			return nil, fmt.Errorf("LayerNormalization: %w", err)
		}
	}
	return one(cloneAs(y, shape)), nil
}

// normalizeRows returns (x - mean) / sqrt(variance + eps) for each row of
// the [rows, size] tensor x.
func normalizeRows(x *tensor.Dense, size, eps float32) (*tensor.Dense, error) {
	mean, err := rowMean(x, size)
	if err != nil {
		return nil, err
	}
	centered, err := subKernel.apply(x, mean)
	if err != nil {
		return nil, err
	}
	squared, err := mulKernel.apply(centered, centered)
	if err != nil {
		return nil, err
	}
	variance, err := rowMean(squared, size)
	if err != nil {
		return nil, err
	}
	stddev, err := apply(variance, func(t tensor.Tensor, opts ...tensor.FuncOpt) (tensor.Tensor, error) {
		shifted, err := tensor.Add(t, eps)
		if err != nil {
			return nil, err
		}
		return tensor.Sqrt(shifted, opts...)
	})
	if err != nil {
		return nil, err
	}
	return divKernel.apply(centered, stddev)
}

// rowMean averages the [rows, size] tensor x along its last axis, keeping
// it with size 1.
func rowMean(x *tensor.Dense, size float32) (*tensor.Dense, error) {
	total, err := reduceKeep(x, 1, (*tensor.Dense).Sum)
	if err != nil {
		return nil, err
	}
	return apply(total, func(t tensor.Tensor, opts ...tensor.FuncOpt) (tensor.Tensor, error) {
		return tensor.Div(t, size, opts...)
	})
}
