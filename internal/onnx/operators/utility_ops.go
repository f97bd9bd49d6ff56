package operators

import (
	"fmt"

	"gorgonia.org/tensor"
)

// registerUtilityOps adds utility operators to the registry.
func (r *Registry) registerUtilityOps() {
	r.Register("Identity", handleIdentity)
	r.Register("Dropout", handleIdentity)
	r.Register("Cast", handleCast)
	r.Register("Constant", handleConstant)
	r.Register("ConstantOfShape", handleConstantOfShape)
}

// handleIdentity passes the first input through. Dropout is an identity at
// inference time; its optional mask output is not produced.
func handleIdentity(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Identity", inputs, 1); err != nil {
		return nil, err
	}
	return one(inputs[0]), nil
}

// handleCast converts between the float32 and int64 representations.
// Float targets produce float32; integer and bool targets produce int64.
func handleCast(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Cast", inputs, 1); err != nil {
		return nil, err
	}
	to := GetAttrInt(node, "to", TensorProtoFloat)
	in := inputs[0]
	shape := ShapeOf(in)

	switch to {
	case TensorProtoFloat, TensorProtoDouble, TensorProtoFloat16:
		if IsFloat(in) {
			return one(in), nil
		}
		src, err := Int64s(in)
		if err != nil {
			return nil, fmt.Errorf("Cast: %w", err)
		}
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return one(NewFloat32(shape, out)), nil

	case TensorProtoInt64, TensorProtoInt32, TensorProtoInt16, TensorProtoInt8,
		TensorProtoUint8, TensorProtoUint16, TensorProtoUint32, TensorProtoUint64, TensorProtoBool:
		if !IsFloat(in) {
			if to != TensorProtoBool {
				return one(in), nil
			}
			src, _ := Int64s(in)
			out := make([]int64, len(src))
			for i, v := range src {
				if v != 0 {
					out[i] = 1
				}
			}
			return one(NewInt64(shape, out)), nil
		}
		src, _ := Floats(in)
		out := make([]int64, len(src))
		for i, v := range src {
			if to == TensorProtoBool {
				if v != 0 {
					out[i] = 1
				}
				continue
			}
			out[i] = int64(v)
		}
		return one(NewInt64(shape, out)), nil

	default:
		return nil, fmt.Errorf("Cast: unsupported target type %d", to)
	}
}

// handleConstant materializes the value, value_float(s) or value_int(s) attribute.
func handleConstant(node *Node, _ []*tensor.Dense) ([]*tensor.Dense, error) {
	if a := node.Attr("value"); a != nil && a.T != nil {
		return one(a.T), nil
	}
	if a := node.Attr("value_float"); a != nil {
		return one(NewFloat32(nil, []float32{a.F})), nil
	}
	if a := node.Attr("value_floats"); a != nil {
		return one(NewFloat32([]int{len(a.Floats)}, append([]float32{}, a.Floats...))), nil
	}
	if a := node.Attr("value_int"); a != nil {
		return one(NewInt64(nil, []int64{a.I})), nil
	}
	if a := node.Attr("value_ints"); a != nil {
		return one(NewInt64([]int{len(a.Ints)}, append([]int64{}, a.Ints...))), nil
	}
	return nil, fmt.Errorf("Constant: no supported value attribute")
}

// handleConstantOfShape fills a tensor of the given shape with the single
// element of the value attribute (float32 zero by default).
func handleConstantOfShape(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("ConstantOfShape", inputs, 1); err != nil {
		return nil, err
	}
	dims, err := Int64s(inputs[0])
	if err != nil {
		return nil, fmt.Errorf("ConstantOfShape: %w", err)
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("ConstantOfShape: negative dimension %d", d)
		}
		shape[i] = int(d)
	}
	n := numElements(shape)

	if a := node.Attr("value"); a != nil && a.T != nil && !IsFloat(a.T) {
		v, err := Int64s(a.T)
		if err != nil || len(v) == 0 {
			return nil, fmt.Errorf("ConstantOfShape: invalid value")
		}
		out := make([]int64, n)
		for i := range out {
			out[i] = v[0]
		}
		return one(NewInt64(shape, out)), nil
	}

	var fill float32
	if a := node.Attr("value"); a != nil && a.T != nil {
		v, err := Floats(a.T)
		if err != nil || len(v) == 0 {
			return nil, fmt.Errorf("ConstantOfShape: invalid value")
		}
		fill = v[0]
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = fill
	}
	return one(NewFloat32(shape, out)), nil
}
