package onnx

import "gorgonia.org/tensor"

// Model represents a loaded ONNX model ready for inference.
//
// The interface hides the internal implementation so callers can mock it.
// Implementations returned by Load are safe for concurrent use.
type Model interface {
	// Forward runs inference with a single input tensor.
	// For models with multiple inputs, use ForwardNamed.
	Forward(input *tensor.Dense) (*tensor.Dense, error)

	// ForwardNamed runs inference with named inputs and returns every
	// graph output by name. All names from InputNames must be provided.
	//
	// Example:
	//
	//	outputs, err := model.ForwardNamed(map[string]*tensor.Dense{
	//	    "input_ids":      ids,
	//	    "attention_mask": mask,
	//	})
	//	logits := outputs["logits"]
	ForwardNamed(inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error)

	// InputNames returns the names of runtime inputs (initializers excluded).
	InputNames() []string

	// OutputNames returns the names of model outputs.
	OutputNames() []string

	// OpsetVersion returns the default-domain opset version.
	OpsetVersion() int64

	// Metadata returns producer information and metadata_props.
	Metadata() map[string]string
}
