package onnxtest

import (
	"github.com/born-ml/emodiary/internal/onnx"
)

// DynamicDim marks a dimension with a symbolic size in Input and Output.
const DynamicDim = -1

// NewModel wraps graph in a model that imports the default opset 11.
func NewModel(graph *onnx.GraphProto) *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:       7,
		ProducerName:    "onnxtest",
		ProducerVersion: "1",
		OpsetImport:     []onnx.OperatorSetID{{Version: 11}},
		Graph:           graph,
	}
}

// FloatTensor returns a float32 initializer stored as raw_data.
func FloatTensor(name string, dims []int64, data []float32) onnx.TensorProto {
	return onnx.TensorProto{
		Name:     name,
		DataType: onnx.TensorProtoFloat,
		Dims:     dims,
		RawData:  rawFloats(data),
	}
}

// Int64Tensor returns an int64 initializer stored in int64_data.
func Int64Tensor(name string, dims []int64, data []int64) onnx.TensorProto {
	return onnx.TensorProto{
		Name:      name,
		DataType:  onnx.TensorProtoInt64,
		Dims:      dims,
		Int64Data: data,
	}
}

// Input describes a graph input or output. DynamicDim entries become
// symbolic dimensions.
func Input(name string, elemType int32, dims ...int64) onnx.ValueInfoProto {
	vi := onnx.ValueInfoProto{Name: name, ElemType: elemType, Dims: []onnx.DimensionProto{}}
	for _, d := range dims {
		if d == DynamicDim {
			vi.Dims = append(vi.Dims, onnx.DimensionProto{DimParam: "seq"})
			continue
		}
		vi.Dims = append(vi.Dims, onnx.DimensionProto{DimValue: d})
	}
	return vi
}

// Output is Input under a name that reads better at call sites.
func Output(name string, elemType int32, dims ...int64) onnx.ValueInfoProto {
	return Input(name, elemType, dims...)
}

// Node builds a node named after its first output.
func Node(opType string, inputs, outputs []string, attrs ...onnx.AttributeProto) onnx.NodeProto {
	name := opType
	if len(outputs) > 0 {
		name = opType + "_" + outputs[0]
	}
	return onnx.NodeProto{Name: name, OpType: opType, Inputs: inputs, Outputs: outputs, Attributes: attrs}
}

// AttrInt returns an INT attribute.
func AttrInt(name string, v int64) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoInt, I: v}
}

// AttrInts returns an INTS attribute.
func AttrInts(name string, v ...int64) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoInts, Ints: v}
}

// AttrFloat returns a FLOAT attribute.
func AttrFloat(name string, v float32) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoFloat, F: v}
}

// AttrTensor returns a TENSOR attribute.
func AttrTensor(name string, t onnx.TensorProto) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoTensor, T: &t}
}

// ClassifierSpec describes a bag-of-tokens classifier.
//
// Each token listed in Votes adds Scale to the logit of its label index;
// the vote total is averaged over the attended positions. Tokens without a
// vote contribute nothing, so a text with no voting tokens produces
// all-equal logits (plus Bias).
type ClassifierSpec struct {
	VocabSize  int
	NumLabels  int
	Votes      map[int64]int // token id -> label index
	Scale      float32       // defaults to 10
	Bias       []float32     // per-label offset, zeros when nil
	IDsName    string        // defaults to "input_ids"
	MaskName   string        // "" builds a single-input model
	OutputName string        // defaults to "logits"
}

// ClassifierModel builds the model described by spec.
//
// With a mask input the graph is
// Gather → Mul(mask) → ReduceSum / ReduceSum(mask) → MatMul → Add;
// without one it is Gather → ReduceMean → MatMul → Add.
func ClassifierModel(spec ClassifierSpec) *onnx.ModelProto {
	if spec.Scale == 0 {
		spec.Scale = 10
	}
	if spec.IDsName == "" {
		spec.IDsName = "input_ids"
	}
	if spec.OutputName == "" {
		spec.OutputName = "logits"
	}
	v, c := int64(spec.VocabSize), int64(spec.NumLabels)

	embeddings := make([]float32, spec.VocabSize*spec.NumLabels)
	for id, label := range spec.Votes {
		if id >= 0 && id < v && label >= 0 && label < spec.NumLabels {
			embeddings[int(id)*spec.NumLabels+label] = 1
		}
	}
	weights := make([]float32, spec.NumLabels*spec.NumLabels)
	for i := 0; i < spec.NumLabels; i++ {
		weights[i*spec.NumLabels+i] = spec.Scale
	}
	bias := make([]float32, spec.NumLabels)
	copy(bias, spec.Bias)

	graph := &onnx.GraphProto{
		Name: "bag_of_tokens",
		Initializers: []onnx.TensorProto{
			FloatTensor("embeddings", []int64{v, c}, embeddings),
			FloatTensor("classifier.weight", []int64{c, c}, weights),
			FloatTensor("classifier.bias", []int64{c}, bias),
		},
		Inputs:  []onnx.ValueInfoProto{Input(spec.IDsName, onnx.TensorProtoInt64, 1, DynamicDim)},
		Outputs: []onnx.ValueInfoProto{Output(spec.OutputName, onnx.TensorProtoFloat, 1, c)},
	}

	nodes := []onnx.NodeProto{
		Node("Gather", []string{"embeddings", spec.IDsName}, []string{"embedded"}),
	}
	if spec.MaskName != "" {
		graph.Inputs = append(graph.Inputs, Input(spec.MaskName, onnx.TensorProtoInt64, 1, DynamicDim))
		nodes = append(nodes,
			Node("Cast", []string{spec.MaskName}, []string{"mask_f"}, AttrInt("to", onnx.TensorProtoFloat)),
			Node("Unsqueeze", []string{"mask_f"}, []string{"mask_e"}, AttrInts("axes", 2)),
			Node("Mul", []string{"embedded", "mask_e"}, []string{"masked"}),
			Node("ReduceSum", []string{"masked"}, []string{"summed"}, AttrInts("axes", 1), AttrInt("keepdims", 0)),
			Node("ReduceSum", []string{"mask_e"}, []string{"count"}, AttrInts("axes", 1), AttrInt("keepdims", 0)),
			Node("Div", []string{"summed", "count"}, []string{"pooled"}),
		)
	} else {
		nodes = append(nodes,
			Node("ReduceMean", []string{"embedded"}, []string{"pooled"}, AttrInts("axes", 1), AttrInt("keepdims", 0)),
		)
	}
	nodes = append(nodes,
		Node("MatMul", []string{"pooled", "classifier.weight"}, []string{"projected"}),
		Node("Add", []string{"projected", "classifier.bias"}, []string{spec.OutputName}),
	)
	graph.Nodes = nodes

	return NewModel(graph)
}

// ClassifierBytes returns the encoded ClassifierModel.
func ClassifierBytes(spec ClassifierSpec) []byte {
	return Marshal(ClassifierModel(spec))
}
