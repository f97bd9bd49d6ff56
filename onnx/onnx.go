// Package onnx loads and runs ONNX classification models on the CPU.
//
// The runtime interprets the model graph directly. It covers the operators
// found in exported BERT-style text classifiers and keeps every value as a
// float32 or int64 gorgonia tensor.
//
// # Example Usage
//
//	model, err := onnx.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ids := tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]int64{101, 7592, 2088, 102}))
//	outputs, err := model.ForwardNamed(map[string]*tensor.Dense{"input_ids": ids})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := outputs["logits"]
//
// Use [ListSupportedOps] to get the complete list of supported operators.
package onnx

import (
	internalonnx "github.com/born-ml/emodiary/internal/onnx"
)

// LoadOptions configures ONNX model loading behavior.
type LoadOptions = internalonnx.LoadOptions

// UnsupportedOpsError lists the operators a strict load rejected.
type UnsupportedOpsError = internalonnx.UnsupportedOpsError

// Errors returned by the loader.
var (
	ErrMalformed    = internalonnx.ErrMalformed
	ErrMissingInput = internalonnx.ErrMissingInput
)

// DefaultLoadOptions returns the default options for loading ONNX models.
func DefaultLoadOptions() LoadOptions {
	return internalonnx.DefaultLoadOptions()
}

// Load loads an ONNX model from a file path.
//
// The function parses the ONNX protobuf format, validates operators,
// and sorts the graph for execution.
func Load(path string, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.Load(path, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFromBytes loads an ONNX model from raw bytes.
func LoadFromBytes(data []byte, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.LoadFromBytes(data, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ModelInfo contains metadata about an ONNX model.
//
// Use [GetModelInfo] to inspect a model file before loading it.
type ModelInfo = internalonnx.ModelInfo

// GetModelInfo extracts metadata from an ONNX file without compiling it.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Inputs: %v\n", info.InputNames)
//	fmt.Printf("Unsupported: %v\n", info.Unsupported)
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// ListSupportedOps returns the sorted operator types the runtime executes.
func ListSupportedOps() []string {
	return internalonnx.ListSupportedOps()
}
