package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gorgonia.org/tensor"

	"github.com/born-ml/emodiary/internal/onnx/operators"
)

// ErrMissingInput is returned when ForwardNamed lacks a graph input.
var ErrMissingInput = errors.New("missing model input")

// Model represents a loaded ONNX model ready for inference.
type Model struct {
	proto        *ModelProto
	registry     *operators.Registry
	tensors      map[string]*tensor.Dense // initializers
	inputNames   []string
	outputNames  []string
	nodes        []*operators.Node // topological order
	opsetVersion int64
}

// InputNames returns the names of model inputs.
func (m *Model) InputNames() []string {
	return m.inputNames
}

// OutputNames returns the names of model outputs.
func (m *Model) OutputNames() []string {
	return m.outputNames
}

// OpsetVersion returns the ONNX opset version.
func (m *Model) OpsetVersion() int64 {
	return m.opsetVersion
}

// Metadata returns model metadata as key-value pairs.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range m.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = m.proto.ProducerName
	meta["producer_version"] = m.proto.ProducerVersion
	meta["domain"] = m.proto.Domain
	return meta
}

// Forward runs inference on a model with exactly one input and one output.
func (m *Model) Forward(input *tensor.Dense) (*tensor.Dense, error) {
	if len(m.inputNames) != 1 {
		return nil, fmt.Errorf("model has %d inputs, use ForwardNamed", len(m.inputNames))
	}
	if len(m.outputNames) != 1 {
		return nil, fmt.Errorf("model has %d outputs, use ForwardNamed", len(m.outputNames))
	}

	outputs, err := m.ForwardNamed(map[string]*tensor.Dense{m.inputNames[0]: input})
	if err != nil {
		return nil, err
	}
	return outputs[m.outputNames[0]], nil
}

// ForwardNamed runs inference with named inputs and returns every graph output.
// Intermediate values live only for the duration of the call.
func (m *Model) ForwardNamed(inputs map[string]*tensor.Dense) (map[string]*tensor.Dense, error) {
	values := make(map[string]*tensor.Dense, len(m.tensors)+len(inputs)+len(m.nodes))
	for name, t := range m.tensors {
		values[name] = t
	}
	for name, t := range inputs {
		values[name] = t
	}

	for _, name := range m.inputNames {
		if _, ok := values[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
	}

	for _, node := range m.nodes {
		nodeInputs := make([]*tensor.Dense, len(node.Inputs))
		for i, name := range node.Inputs {
			if name == "" {
				continue // optional input not provided
			}
			t, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, name)
			}
			nodeInputs[i] = t
		}

		outputs, err := m.registry.Execute(node, nodeInputs)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		for i, name := range node.Outputs {
			if i < len(outputs) && name != "" {
				values[name] = outputs[i]
			}
		}
	}

	result := make(map[string]*tensor.Dense, len(m.outputNames))
	for _, name := range m.outputNames {
		t, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("missing output: %s", name)
		}
		result[name] = t
	}
	return result, nil
}

// compile decodes initializers and orders the graph for execution.
func (m *Model) compile() error {
	graph := m.proto.Graph
	if graph == nil {
		return fmt.Errorf("model has no graph")
	}

	m.tensors = make(map[string]*tensor.Dense, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			return fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		m.tensors[init.Name] = t
	}

	m.inputNames = graphInputNames(graph)
	for i := range graph.Outputs {
		m.outputNames = append(m.outputNames, graph.Outputs[i].Name)
	}

	sorted, err := topologicalSort(graph.Nodes)
	if err != nil {
		return err
	}
	m.nodes = make([]*operators.Node, len(sorted))
	for i := range sorted {
		node, err := nodeProtoToOperatorNode(&sorted[i])
		if err != nil {
			return fmt.Errorf("node %s (%s): %w", sorted[i].Name, sorted[i].OpType, err)
		}
		m.nodes[i] = node
	}

	m.opsetVersion = defaultOpset(m.proto)
	return nil
}

// graphInputNames returns graph inputs that are not initializers.
func graphInputNames(graph *GraphProto) []string {
	initNames := make(map[string]bool, len(graph.Initializers))
	for i := range graph.Initializers {
		initNames[graph.Initializers[i].Name] = true
	}
	var names []string
	for i := range graph.Inputs {
		if !initNames[graph.Inputs[i].Name] {
			names = append(names, graph.Inputs[i].Name)
		}
	}
	return names
}

func defaultOpset(proto *ModelProto) int64 {
	for _, opset := range proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// tensorFromProto decodes a TensorProto into a float32 or int64 dense tensor.
//
//nolint:gocognit,gocyclo,cyclop // One branch per storage field and element type.
func tensorFromProto(proto *TensorProto) (*tensor.Dense, error) {
	if proto.External {
		return nil, fmt.Errorf("external tensor data is not supported")
	}
	shape := make([]int, len(proto.Dims))
	n := 1
	for i, dim := range proto.Dims {
		if dim < 0 {
			return nil, fmt.Errorf("negative dimension %d", dim)
		}
		shape[i] = int(dim)
		n *= int(dim)
	}

	if n == 0 {
		return nil, fmt.Errorf("tensor %s: empty tensors are not supported", proto.Name)
	}

	raw := proto.RawData
	switch proto.DataType {
	case TensorProtoFloat:
		data := make([]float32, n)
		switch {
		case len(raw) > 0:
			if len(raw) != 4*n {
				return nil, sizeError(proto, len(raw), 4*n)
			}
			for i := range data {
				data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
			}
		case len(proto.FloatData) == n:
			copy(data, proto.FloatData)
		default:
			return nil, sizeError(proto, len(proto.FloatData), n)
		}
		return operators.NewFloat32(shape, data), nil

	case TensorProtoDouble:
		data := make([]float32, n)
		switch {
		case len(raw) > 0:
			if len(raw) != 8*n {
				return nil, sizeError(proto, len(raw), 8*n)
			}
			for i := range data {
				data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:])))
			}
		case len(proto.DoubleData) == n:
			for i, v := range proto.DoubleData {
				data[i] = float32(v)
			}
		default:
			return nil, sizeError(proto, len(proto.DoubleData), n)
		}
		return operators.NewFloat32(shape, data), nil

	case TensorProtoInt64:
		data := make([]int64, n)
		switch {
		case len(raw) > 0:
			if len(raw) != 8*n {
				return nil, sizeError(proto, len(raw), 8*n)
			}
			for i := range data {
				data[i] = int64(binary.LittleEndian.Uint64(raw[8*i:])) //nolint:gosec // G115: reinterpreting two's complement.
			}
		case len(proto.Int64Data) == n:
			copy(data, proto.Int64Data)
		default:
			return nil, sizeError(proto, len(proto.Int64Data), n)
		}
		return operators.NewInt64(shape, data), nil

	case TensorProtoInt32, TensorProtoBool, TensorProtoUint8, TensorProtoInt8:
		width := map[int32]int{TensorProtoInt32: 4, TensorProtoBool: 1, TensorProtoUint8: 1, TensorProtoInt8: 1}[proto.DataType]
		data := make([]int64, n)
		switch {
		case len(raw) > 0:
			if len(raw) != width*n {
				return nil, sizeError(proto, len(raw), width*n)
			}
			for i := range data {
				switch proto.DataType {
				case TensorProtoInt32:
					data[i] = int64(int32(binary.LittleEndian.Uint32(raw[4*i:]))) //nolint:gosec // G115: reinterpreting two's complement.
				case TensorProtoInt8:
					data[i] = int64(int8(raw[i])) //nolint:gosec // G115: reinterpreting two's complement.
				default:
					data[i] = int64(raw[i])
				}
			}
		case len(proto.Int32Data) == n:
			for i, v := range proto.Int32Data {
				data[i] = int64(v)
			}
		default:
			return nil, sizeError(proto, len(proto.Int32Data), n)
		}
		return operators.NewInt64(shape, data), nil

	default:
		return nil, fmt.Errorf("unsupported data type %d", proto.DataType)
	}
}

func sizeError(proto *TensorProto, got, want int) error {
	return fmt.Errorf("tensor %s: data has %d entries, shape %v needs %d", proto.Name, got, proto.Dims, want)
}

// nodeProtoToOperatorNode converts NodeProto to operators.Node, decoding
// tensor-valued attributes.
func nodeProtoToOperatorNode(proto *NodeProto) (*operators.Node, error) {
	attrs := make([]operators.Attribute, len(proto.Attributes))
	for i := range proto.Attributes {
		attr := &proto.Attributes[i]
		attrs[i] = operators.Attribute{
			Name:   attr.Name,
			Type:   attr.Type,
			F:      attr.F,
			I:      attr.I,
			S:      attr.S,
			Floats: attr.Floats,
			Ints:   attr.Ints,
		}
		if attr.T != nil {
			t, err := tensorFromProto(attr.T)
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
			}
			attrs[i].T = t
		}
	}
	return &operators.Node{
		Name:       proto.Name,
		OpType:     proto.OpType,
		Inputs:     proto.Inputs,
		Outputs:    proto.Outputs,
		Attributes: attrs,
		Domain:     proto.Domain,
	}, nil
}

// topologicalSort orders nodes so that producers run before consumers.
// A cycle is an error.
func topologicalSort(nodes []NodeProto) ([]NodeProto, error) {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("graph has a cycle through node %q", nodes[i].Name)
		}
		state[i] = visiting
		for _, input := range nodes[i].Inputs {
			if dep, ok := outputToNode[input]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[i] = done
		result = append(result, nodes[i])
		return nil
	}

	for i := range nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return result, nil
}
