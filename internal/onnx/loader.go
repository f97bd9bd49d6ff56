package onnx

import (
	"errors"
	"fmt"
	"sort"

	"github.com/born-ml/emodiary/internal/onnx/operators"
)

// LoadOptions configures model loading behavior.
type LoadOptions struct {
	// StrictMode fails at load time on unsupported operators instead of at
	// the first ForwardNamed call that reaches them.
	StrictMode bool

	// CustomOps provides custom operator handlers.
	CustomOps map[string]operators.OpHandler
}

// DefaultLoadOptions returns default loading options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}

// Load loads an ONNX model from file and prepares it for inference.
//
// Example:
//
//	model, err := onnx.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	output, err := model.Forward(input)
func Load(path string, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX file: %w", err)
	}
	return LoadFromProto(proto, opt)
}

// LoadFromBytes loads an ONNX model from bytes.
func LoadFromBytes(data []byte, opts ...LoadOptions) (*Model, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX data: %w", err)
	}
	return LoadFromProto(proto, opt)
}

// LoadFromProto loads a model from parsed ModelProto.
func LoadFromProto(proto *ModelProto, opt LoadOptions) (*Model, error) {
	registry := operators.NewRegistry()
	for opType, handler := range opt.CustomOps {
		registry.Register(opType, handler)
	}

	if opt.StrictMode {
		if err := validateOperators(proto.Graph, registry); err != nil {
			return nil, err
		}
	}

	model := &Model{
		proto:    proto,
		registry: registry,
	}
	if err := model.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}
	return model, nil
}

// UnsupportedOpsError lists operator types the registry cannot execute.
type UnsupportedOpsError struct {
	Ops []string
}

// Error implements the error interface.
func (e *UnsupportedOpsError) Error() string {
	return fmt.Sprintf("unsupported operators: %v", e.Ops)
}

// validateOperators checks that all operators are supported.
func validateOperators(graph *GraphProto, registry *operators.Registry) error {
	if graph == nil {
		return fmt.Errorf("model has no graph")
	}

	seen := make(map[string]bool)
	var unsupported []string
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if _, ok := registry.Get(op); !ok && !seen[op] {
			seen[op] = true
			unsupported = append(unsupported, op)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return &UnsupportedOpsError{Ops: unsupported}
	}
	return nil
}

// ModelInfo contains basic information about an ONNX model without fully loading it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	InputNames      []string
	OutputNames     []string
	NodeCount       int
	WeightCount     int
	OpCounts        map[string]int
	Unsupported     []string // operator types this runtime cannot execute
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return ModelInfoFromProto(proto), nil
}

// ModelInfoFromProto summarizes a parsed model.
func ModelInfoFromProto(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		OpsetVersion:    defaultOpset(proto),
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		OpCounts:        make(map[string]int),
	}
	if proto.Graph == nil {
		return info
	}

	info.InputNames = graphInputNames(proto.Graph)
	for i := range proto.Graph.Outputs {
		info.OutputNames = append(info.OutputNames, proto.Graph.Outputs[i].Name)
	}
	info.NodeCount = len(proto.Graph.Nodes)
	info.WeightCount = len(proto.Graph.Initializers)
	for i := range proto.Graph.Nodes {
		info.OpCounts[proto.Graph.Nodes[i].OpType]++
	}

	var unsupported *UnsupportedOpsError
	if err := validateOperators(proto.Graph, operators.NewRegistry()); errors.As(err, &unsupported) {
		info.Unsupported = unsupported.Ops
	}
	return info
}

// ListSupportedOps returns all supported ONNX operators in sorted order.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
