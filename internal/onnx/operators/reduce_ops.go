package operators

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// registerReduceOps adds reduction operators to the registry.
func (r *Registry) registerReduceOps() {
	r.Register("ReduceSum", reduction("ReduceSum", (*tensor.Dense).Sum, false))
	r.Register("ReduceMean", reduction("ReduceMean", (*tensor.Dense).Sum, true))
	r.Register("ReduceMax", reduction("ReduceMax", (*tensor.Dense).Max, false))
}

// reduction builds a reduce handler on a gorgonia reduction. Axes come from
// the "axes" attribute (opset < 13/18) or the optional second input; with
// neither, all axes are reduced unless noop_with_empty_axes is set. mean
// divides the result by the number of reduced elements.
func reduction(op string, reduce func(*tensor.Dense, ...int) (*tensor.Dense, error), mean bool) OpHandler {
	return func(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
		if err := requireInputs(op, inputs, 1); err != nil {
			return nil, err
		}
		x := inputs[0]
		shape := ShapeOf(x)

		axes, err := axesOf(node, inputs, 1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if len(shape) == 0 || (len(axes) == 0 && GetAttrInt(node, "noop_with_empty_axes", 0) != 0) {
			return one(cloneAs(x, shape)), nil
		}

		reduced := make([]bool, len(shape))
		for _, a := range axes {
			axis, err := normAxis(a, len(shape))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			reduced[axis] = true
		}
		if len(axes) == 0 {
			for i := range reduced {
				reduced[i] = true
			}
		}

		kept := make([]int, len(shape))
		var along, squeezed []int
		count := 1
		for i, d := range shape {
			if reduced[i] {
				kept[i] = 1
				along = append(along, i)
				count *= d
				continue
			}
			kept[i] = d
			squeezed = append(squeezed, d)
		}

		res, err := reduce(x, along...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out, err := lower(res, kept)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if mean {
			var n interface{} = float32(count)
			if !IsFloat(out) {
				n = int64(count)
			}
			if out, err = apply(out, func(t tensor.Tensor, opts ...tensor.FuncOpt) (tensor.Tensor, error) {
				return tensor.Div(t, n, opts...)
			}); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}

		if GetAttrInt(node, "keepdims", 1) != 0 {
			return one(out), nil
		}
		return one(cloneAs(out, squeezed)), nil
	}
}

// axesOf reads axes from the "axes" attribute or from inputs[idx].
// The result is sorted and may be empty.
func axesOf(node *Node, inputs []*tensor.Dense, idx int) ([]int64, error) {
	var axes []int64
	if a := node.Attr("axes"); a != nil {
		axes = append(axes, a.Ints...)
	} else if t := optionalInput(inputs, idx); t != nil {
		vals, err := Int64s(t)
		if err != nil {
			return nil, fmt.Errorf("axes: %w", err)
		}
		axes = append(axes, vals...)
	}
	sort.Slice(axes, func(i, j int) bool { return axes[i] < axes[j] })
	return axes, nil
}
