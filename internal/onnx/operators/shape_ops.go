package operators

import (
	"fmt"

	"gorgonia.org/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Reshape", handleReshape)
	r.Register("Flatten", handleFlatten)
	r.Register("Transpose", handleTranspose)
	r.Register("Squeeze", handleSqueeze)
	r.Register("Unsqueeze", handleUnsqueeze)
	r.Register("Concat", handleConcat)
	r.Register("Gather", handleGather)
	r.Register("Shape", handleShape)
}

// reshaped returns a tensor sharing the elements of t under a new shape.
func reshaped(t *tensor.Dense, shape []int) (*tensor.Dense, error) {
	if n := numElements(t.Shape()); numElements(shape) != n {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.Shape(), n, shape)
	}
	if IsFloat(t) {
		data, err := Floats(t)
		if err != nil {
			return nil, err
		}
		return NewFloat32(shape, data), nil
	}
	data, err := Int64s(t)
	if err != nil {
		return nil, err
	}
	return NewInt64(shape, data), nil
}

// handleReshape resolves 0 (copy input dim) and -1 (infer) entries.
func handleReshape(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Reshape", inputs, 2); err != nil {
		return nil, err
	}
	target, err := Int64s(inputs[1])
	if err != nil {
		return nil, fmt.Errorf("Reshape: shape: %w", err)
	}
	in := ShapeOf(inputs[0])

	shape := make([]int, len(target))
	infer := -1
	known := 1
	for i, v := range target {
		switch {
		case v == 0 && i < len(in):
			shape[i] = in[i]
		case v == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("Reshape: more than one -1 in %v", target)
			}
			infer = i
			continue
		case v < 0:
			return nil, fmt.Errorf("Reshape: invalid dimension %d", v)
		default:
			shape[i] = int(v)
		}
		known *= shape[i]
	}
	if infer >= 0 {
		if known == 0 {
			return nil, fmt.Errorf("Reshape: cannot infer dimension of %v", target)
		}
		shape[infer] = numElements(in) / known
	}

	out, err := reshaped(inputs[0], shape)
	if err != nil {
		return nil, fmt.Errorf("Reshape: %w", err)
	}
	return one(out), nil
}

func handleFlatten(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Flatten", inputs, 1); err != nil {
		return nil, err
	}
	in := ShapeOf(inputs[0])
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += len(in)
	}
	if axis < 0 || axis > len(in) {
		return nil, fmt.Errorf("Flatten: axis %d out of range for rank %d", axis, len(in))
	}
	out, err := reshaped(inputs[0], []int{numElements(in[:axis]), numElements(in[axis:])})
	if err != nil {
		return nil, fmt.Errorf("Flatten: %w", err)
	}
	return one(out), nil
}

// handleTranspose permutes axes; the default permutation reverses them.
func handleTranspose(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Transpose", inputs, 1); err != nil {
		return nil, err
	}
	in := ShapeOf(inputs[0])

	perm := make([]int, len(in))
	if attr := GetAttrInts(node, "perm"); len(attr) > 0 {
		if len(attr) != len(in) {
			return nil, fmt.Errorf("Transpose: perm %v does not match rank %d", attr, len(in))
		}
		seen := make([]bool, len(in))
		for i, p := range attr {
			axis, err := normAxis(p, len(in))
			if err != nil || seen[axis] {
				return nil, fmt.Errorf("Transpose: invalid perm %v", attr)
			}
			seen[axis] = true
			perm[i] = axis
		}
	} else {
		for i := range perm {
			perm[i] = len(in) - 1 - i
		}
	}

	out, err := permute(inputs[0], perm)
	if err != nil {
		return nil, fmt.Errorf("Transpose: %w", err)
	}
	return one(out), nil
}

// permute returns a materialized copy of t with its axes reordered.
func permute(t *tensor.Dense, perm []int) (*tensor.Dense, error) {
	if isIdentity(perm) {
		return cloneAs(t, ShapeOf(t)), nil
	}
	res, err := tensor.Transpose(t, perm...)
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = t.Shape()[p]
	}
	return lower(res, shape)
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}

// handleSqueeze removes the listed size-1 axes, or all of them when none are given.
func handleSqueeze(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Squeeze", inputs, 1); err != nil {
		return nil, err
	}
	in := ShapeOf(inputs[0])
	axes, err := axesOf(node, inputs, 1)
	if err != nil {
		return nil, fmt.Errorf("Squeeze: %w", err)
	}

	drop := make([]bool, len(in))
	if len(axes) == 0 {
		for i, d := range in {
			drop[i] = d == 1
		}
	}
	for _, a := range axes {
		axis, err := normAxis(a, len(in))
		if err != nil {
			return nil, fmt.Errorf("Squeeze: %w", err)
		}
		if in[axis] != 1 {
			return nil, fmt.Errorf("Squeeze: axis %d has size %d", axis, in[axis])
		}
		drop[axis] = true
	}

	shape := make([]int, 0, len(in))
	for i, d := range in {
		if !drop[i] {
			shape = append(shape, d)
		}
	}
	out, err := reshaped(inputs[0], shape)
	if err != nil {
		return nil, fmt.Errorf("Squeeze: %w", err)
	}
	return one(out), nil
}

// handleUnsqueeze inserts size-1 axes at positions of the output shape.
func handleUnsqueeze(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Unsqueeze", inputs, 1); err != nil {
		return nil, err
	}
	in := ShapeOf(inputs[0])
	axes, err := axesOf(node, inputs, 1)
	if err != nil {
		return nil, fmt.Errorf("Unsqueeze: %w", err)
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("Unsqueeze: no axes given")
	}

	rank := len(in) + len(axes)
	insert := make([]bool, rank)
	for _, a := range axes {
		axis, err := normAxis(a, rank)
		if err != nil {
			return nil, fmt.Errorf("Unsqueeze: %w", err)
		}
		if insert[axis] {
			return nil, fmt.Errorf("Unsqueeze: duplicate axis %d", axis)
		}
		insert[axis] = true
	}

	shape := make([]int, rank)
	next := 0
	for i := range shape {
		if insert[i] {
			shape[i] = 1
			continue
		}
		shape[i] = in[next]
		next++
	}
	out, err := reshaped(inputs[0], shape)
	if err != nil {
		return nil, fmt.Errorf("Unsqueeze: %w", err)
	}
	return one(out), nil
}

func handleConcat(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Concat", inputs, 1); err != nil {
		return nil, err
	}
	first := ShapeOf(inputs[0])
	axis, err := normAxis(GetAttrInt(node, "axis", 0), len(first))
	if err != nil {
		return nil, fmt.Errorf("Concat: %w", err)
	}

	shapes := make([][]int, len(inputs))
	shape := append([]int{}, first...)
	shape[axis] = 0
	for i, t := range inputs {
		if t == nil {
			return nil, fmt.Errorf("Concat: input %d is missing", i)
		}
		if t.Dtype() != inputs[0].Dtype() {
			return nil, fmt.Errorf("Concat: mismatched element types")
		}
		shapes[i] = ShapeOf(t)
		if len(shapes[i]) != len(first) {
			return nil, fmt.Errorf("Concat: rank mismatch %v vs %v", shapes[i], first)
		}
		for d := range first {
			if d != axis && shapes[i][d] != first[d] {
				return nil, fmt.Errorf("Concat: shape mismatch %v vs %v", shapes[i], first)
			}
		}
		shape[axis] += shapes[i][axis]
	}

	if IsFloat(inputs[0]) {
		parts := make([][]float32, len(inputs))
		for i, t := range inputs {
			parts[i], _ = Floats(t)
		}
		return one(NewFloat32(shape, concat(parts, shapes, axis))), nil
	}
	parts := make([][]int64, len(inputs))
	for i, t := range inputs {
		if parts[i], err = Int64s(t); err != nil {
			return nil, fmt.Errorf("Concat: %w", err)
		}
	}
	return one(NewInt64(shape, concat(parts, shapes, axis))), nil
}

func concat[T Element](parts [][]T, shapes [][]int, axis int) []T {
	outer := numElements(shapes[0][:axis])
	var out []T
	for o := 0; o < outer; o++ {
		for i, p := range parts {
			chunk := numElements(shapes[i][axis:])
			out = append(out, p[o*chunk:(o+1)*chunk]...)
		}
	}
	return out
}

// handleGather selects slices of data along axis. Negative indices count
// from the end of the axis.
func handleGather(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Gather", inputs, 2); err != nil {
		return nil, err
	}
	indices, err := Int64s(inputs[1])
	if err != nil {
		return nil, fmt.Errorf("Gather: indices: %w", err)
	}
	dataShape := ShapeOf(inputs[0])
	axis, err := normAxis(GetAttrInt(node, "axis", 0), len(dataShape))
	if err != nil {
		return nil, fmt.Errorf("Gather: %w", err)
	}

	idxShape := ShapeOf(inputs[1])
	shape := append(append(append([]int{}, dataShape[:axis]...), idxShape...), dataShape[axis+1:]...)

	if IsFloat(inputs[0]) {
		data, _ := Floats(inputs[0])
		out, err := gather(data, dataShape, axis, indices)
		if err != nil {
			return nil, fmt.Errorf("Gather: %w", err)
		}
		return one(NewFloat32(shape, out)), nil
	}
	data, err := Int64s(inputs[0])
	if err != nil {
		return nil, fmt.Errorf("Gather: %w", err)
	}
	out, err := gather(data, dataShape, axis, indices)
	if err != nil {
		return nil, fmt.Errorf("Gather: %w", err)
	}
	return one(NewInt64(shape, out)), nil
}

func gather[T Element](data []T, shape []int, axis int, indices []int64) ([]T, error) {
	outer, dim, inner := splitAt(shape, axis)
	out := make([]T, 0, outer*len(indices)*inner)
	for o := 0; o < outer; o++ {
		for _, idx := range indices {
			i := int(idx)
			if i < 0 {
				i += dim
			}
			if i < 0 || i >= dim {
				return nil, fmt.Errorf("index %d out of range [0, %d)", idx, dim)
			}
			start := (o*dim + i) * inner
			out = append(out, data[start:start+inner]...)
		}
	}
	return out, nil
}

func handleShape(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Shape", inputs, 1); err != nil {
		return nil, err
	}
	in := ShapeOf(inputs[0])
	dims := make([]int64, len(in))
	for i, d := range in {
		dims[i] = int64(d)
	}
	return one(NewInt64([]int{len(dims)}, dims)), nil
}
