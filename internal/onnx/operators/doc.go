// Package operators implements the ONNX operators needed to run text
// classification graphs on the CPU.
//
// Every handler takes gorgonia dense tensors holding float32 or int64
// elements and returns freshly allocated outputs. Inputs are never written,
// so weight tensors can be shared by concurrent executions.
//
// Element-wise kernels, transposes, matrix products and axis reductions run
// on gorgonia. Operands of differing shapes are broadcast NumPy style here,
// which gorgonia does not do.
//
// Covered operator groups:
//   - Arithmetic with NumPy broadcasting: Add, Sub, Mul, Div, Pow
//   - Linear algebra: MatMul, Gemm
//   - Activations: Relu, Sigmoid, Tanh, Erf, Gelu, Sqrt, Exp, Neg, Softmax, LayerNormalization
//   - Reductions: ReduceSum, ReduceMean, ReduceMax
//   - Shape manipulation: Gather, Reshape, Flatten, Transpose, Squeeze, Unsqueeze, Concat, Shape
//   - Utilities: Identity, Dropout, Cast, Constant
package operators
