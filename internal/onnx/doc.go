// Package onnx loads ONNX models and executes them on the CPU.
//
// The .onnx file is decoded with protowire into the subset of the ONNX
// protobuf schema needed for inference. Tensors are gorgonia dense tensors
// holding either float32 or int64 elements: every floating point type is
// read as float32 and every integer or boolean type as int64.
//
// A loaded Model is immutable. ForwardNamed keeps its intermediate values in
// a per-call map, so one Model can serve concurrent callers.
//
// Example usage:
//
//	model, err := onnx.Load("model.onnx", onnx.LoadOptions{StrictMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	outputs, err := model.ForwardNamed(map[string]*tensor.Dense{
//	    "input_ids":      ids,
//	    "attention_mask": mask,
//	})
package onnx
