package operators

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// registerMathOps adds math operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("Add", arithmetic("Add", addKernel))
	r.Register("Sub", arithmetic("Sub", subKernel))
	r.Register("Mul", arithmetic("Mul", mulKernel))
	r.Register("Div", handleDiv)
	r.Register("Pow", handlePow)
	r.Register("MatMul", handleMatMul)
	r.Register("Gemm", handleGemm)
}

// binaryKernel is an element-wise operation. Operands of equal shape run
// through the gorgonia kernel; others are broadcast NumPy style.
type binaryKernel struct {
	dense func(a, b interface{}, opts ...tensor.FuncOpt) (tensor.Tensor, error)
	f32   func(x, y float32) float32
	i64   func(x, y int64) int64
}

var (
	addKernel = binaryKernel{tensor.Add,
		func(x, y float32) float32 { return x + y },
		func(x, y int64) int64 { return x + y }}
	subKernel = binaryKernel{tensor.Sub,
		func(x, y float32) float32 { return x - y },
		func(x, y int64) int64 { return x - y }}
	mulKernel = binaryKernel{tensor.Mul,
		func(x, y float32) float32 { return x * y },
		func(x, y int64) int64 { return x * y }}
	divKernel = binaryKernel{tensor.Div,
		func(x, y float32) float32 { return x / y },
		func(x, y int64) int64 { return x / y }}
	powKernel = binaryKernel{dense: tensor.Pow,
		f32: func(x, y float32) float32 { return float32(math.Pow(float64(x), float64(y))) }}
)

func (k binaryKernel) apply(a, b *tensor.Dense) (*tensor.Dense, error) {
	if a.Dtype() != b.Dtype() {
		return nil, fmt.Errorf("mismatched element types %v and %v", a.Dtype(), b.Dtype())
	}
	aShape, bShape := ShapeOf(a), ShapeOf(b)
	if equalShapes(aShape, bShape) {
		res, err := k.dense(lift(a), lift(b))
		if err != nil {
			return nil, err
		}
		return lower(res, aShape)
	}

	if IsFloat(a) {
		x, _ := Floats(a)
		y, _ := Floats(b)
		out, shape, err := broadcastBinary(x, y, aShape, bShape, k.f32)
		if err != nil {
			return nil, err
		}
		return NewFloat32(shape, out), nil
	}
	if k.i64 == nil {
		return nil, fmt.Errorf("unsupported element type %v", a.Dtype())
	}
	x, err := Int64s(a)
	if err != nil {
		return nil, err
	}
	y, _ := Int64s(b)
	out, shape, err := broadcastBinary(x, y, aShape, bShape, k.i64)
	if err != nil {
		return nil, err
	}
	return NewInt64(shape, out), nil
}

// arithmetic builds a broadcasting binary handler for both element types.
func arithmetic(op string, k binaryKernel) OpHandler {
	return func(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
		if err := requireInputs(op, inputs, 2); err != nil {
			return nil, err
		}
		out, err := k.apply(inputs[0], inputs[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return one(out), nil
	}
}

var divide = arithmetic("Div", divKernel)

func handleDiv(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Div", inputs, 2); err != nil {
		return nil, err
	}
	if !IsFloat(inputs[1]) {
		divisors, err := Int64s(inputs[1])
		if err != nil {
			return nil, fmt.Errorf("Div: %w", err)
		}
		for _, d := range divisors {
			if d == 0 {
				return nil, fmt.Errorf("Div: integer division by zero")
			}
		}
	}
	return divide(node, inputs)
}

func handlePow(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Pow", inputs, 2); err != nil {
		return nil, err
	}
	if !IsFloat(inputs[0]) {
		return nil, fmt.Errorf("Pow: expected float32 base, got %v", inputs[0].Dtype())
	}

	// The exponent may be an integer tensor.
	exp := inputs[1]
	if !IsFloat(exp) {
		ints, err := Int64s(exp)
		if err != nil {
			return nil, fmt.Errorf("Pow: %w", err)
		}
		y := make([]float32, len(ints))
		for i, v := range ints {
			y[i] = float32(v)
		}
		exp = NewFloat32(ShapeOf(exp), y)
	}

	out, err := powKernel.apply(inputs[0], exp)
	if err != nil {
		return nil, fmt.Errorf("Pow: %w", err)
	}
	return one(out), nil
}

// matmul2D multiplies [m,k] by [k,n] with gorgonia.
func matmul2D(a []float32, b []float32, m, k, n int) ([]float32, error) {
	ta := tensor.New(tensor.WithShape(m, k), tensor.WithBacking(a))
	tb := tensor.New(tensor.WithShape(k, n), tensor.WithBacking(b))
	prod, err := tensor.MatMul(ta, tb)
	if err != nil {
		return nil, err
	}
	dense, ok := prod.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("unexpected matmul result %T", prod)
	}
	return Floats(dense)
}

// handleMatMul implements NumPy matmul semantics for float32 inputs.
// Rank-1 operands are promoted and the added axis dropped afterwards;
// batch dimensions must match or be absent on one side.
//
//nolint:gocognit,gocyclo,cyclop // Shape promotion rules are inherently branchy.
func handleMatMul(_ *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("MatMul", inputs, 2); err != nil {
		return nil, err
	}
	a, err := Floats(inputs[0])
	if err != nil {
		return nil, fmt.Errorf("MatMul: %w", err)
	}
	b, err := Floats(inputs[1])
	if err != nil {
		return nil, fmt.Errorf("MatMul: %w", err)
	}
	aShape, bShape := ShapeOf(inputs[0]), ShapeOf(inputs[1])

	dropRow, dropCol := false, false
	if len(aShape) == 1 {
		aShape = []int{1, aShape[0]}
		dropRow = true
	}
	if len(bShape) == 1 {
		bShape = []int{bShape[0], 1}
		dropCol = true
	}

	m, k := aShape[len(aShape)-2], aShape[len(aShape)-1]
	k2, n := bShape[len(bShape)-2], bShape[len(bShape)-1]
	if k != k2 {
		return nil, fmt.Errorf("MatMul: inner dimensions differ: %v x %v", aShape, bShape)
	}

	aBatch, bBatch := aShape[:len(aShape)-2], bShape[:len(bShape)-2]
	var batchShape []int
	var out []float32

	switch {
	case len(bBatch) == 0:
		// Fold every leading dimension of a into the row count.
		batchShape = aBatch
		rows := numElements(aBatch) * m
		if out, err = matmul2D(a, b, rows, k, n); err != nil {
			return nil, fmt.Errorf("MatMul: %w", err)
		}
	case equalShapes(aBatch, bBatch) || len(aBatch) == 0:
		batchShape = bBatch
		batches := numElements(bBatch)
		out = make([]float32, 0, batches*m*n)
		for i := 0; i < batches; i++ {
			aOff := 0
			if len(aBatch) > 0 {
				aOff = i * m * k
			}
			part, err := matmul2D(a[aOff:aOff+m*k], b[i*k*n:(i+1)*k*n], m, k, n)
			if err != nil {
				return nil, fmt.Errorf("MatMul: %w", err)
			}
			out = append(out, part...)
		}
	default:
		return nil, fmt.Errorf("MatMul: unsupported batch shapes %v and %v", aBatch, bBatch)
	}

	shape := append([]int{}, batchShape...)
	if !dropRow {
		shape = append(shape, m)
	}
	if !dropCol {
		shape = append(shape, n)
	}
	return one(NewFloat32(shape, out)), nil
}

func equalShapes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// handleGemm implements General Matrix Multiplication: Y = alpha*A'*B' + beta*C.
func handleGemm(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := requireInputs("Gemm", inputs, 2); err != nil {
		return nil, err
	}

	alpha := GetAttrFloat(node, "alpha", 1.0)
	beta := GetAttrFloat(node, "beta", 1.0)

	a, b := inputs[0], inputs[1]
	if !IsFloat(a) || !IsFloat(b) {
		return nil, fmt.Errorf("Gemm: expected float32 inputs, got %v and %v", a.Dtype(), b.Dtype())
	}
	if a.Dims() != 2 || b.Dims() != 2 {
		return nil, fmt.Errorf("Gemm: expected 2-D inputs, got %v and %v", a.Shape(), b.Shape())
	}
	var err error
	if GetAttrInt(node, "transA", 0) != 0 {
		if a, err = permute(a, []int{1, 0}); err != nil {
			return nil, fmt.Errorf("Gemm: %w", err)
		}
	}
	if GetAttrInt(node, "transB", 0) != 0 {
		if b, err = permute(b, []int{1, 0}); err != nil {
			return nil, fmt.Errorf("Gemm: %w", err)
		}
	}
	aShape, bShape := ShapeOf(a), ShapeOf(b)
	if aShape[1] != bShape[0] {
		return nil, fmt.Errorf("Gemm: inner dimensions differ: %v x %v", aShape, bShape)
	}
	shape := []int{aShape[0], bShape[1]}

	prod, err := tensor.MatMul(a, b)
	if err != nil {
		return nil, fmt.Errorf("Gemm: %w", err)
	}
	scaled, err := tensor.Mul(prod, alpha)
	if err != nil {
		return nil, fmt.Errorf("Gemm: %w", err)
	}
	y, err := lower(scaled, shape)
	if err != nil {
		return nil, fmt.Errorf("Gemm: %w", err)
	}

	if c := optionalInput(inputs, 2); c != nil {
		if !IsFloat(c) {
			return nil, fmt.Errorf("Gemm: expected float32 C, got %v", c.Dtype())
		}
		bc, err := apply(c, func(t tensor.Tensor, opts ...tensor.FuncOpt) (tensor.Tensor, error) {
			return tensor.Mul(t, beta, opts...)
		})
		if err != nil {
			return nil, fmt.Errorf("Gemm: %w", err)
		}
		if y, err = addKernel.apply(y, bc); err != nil {
			return nil, fmt.Errorf("Gemm: %w", err)
		}
	}
	return one(y), nil
}
