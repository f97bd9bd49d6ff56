package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports bytes that are not a valid ONNX protobuf encoding.
var ErrMalformed = errors.New("malformed ONNX protobuf")

// ParseFile parses an ONNX model from file.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is provided by the caller, loading it is the point.
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	model := &ModelProto{}
	if err := parseModel(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if model.Graph == nil {
		return nil, fmt.Errorf("%w: model has no graph", ErrMalformed)
	}
	return model, nil
}

// field is one decoded protobuf field.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64 // varint, fixed32 and fixed64 payloads
	bytes []byte // length-delimited payload
}

// eachField walks the top-level fields of a message.
func eachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.value = uint64(v)
		case protowire.Fixed64Type:
			f.value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) str() string {
	return string(f.bytes)
}

func (f field) asInt64() int64 {
	return int64(f.value) //nolint:gosec // G115: protobuf int64 is two's complement on the wire.
}

// int64s decodes a repeated int64, packed or not.
func (f field) int64s() ([]int64, error) {
	if f.typ == protowire.VarintType {
		return []int64{f.asInt64()}, nil
	}
	var out []int64
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: packed field %d: %w", ErrMalformed, f.num, protowire.ParseError(n))
		}
		out = append(out, int64(v)) //nolint:gosec // G115: see asInt64.
		b = b[n:]
	}
	return out, nil
}

// float32s decodes a repeated float, packed or not.
func (f field) float32s() ([]float32, error) {
	if f.typ == protowire.Fixed32Type {
		return []float32{math.Float32frombits(uint32(f.value))}, nil //nolint:gosec // G115: fixed32 payload.
	}
	if len(f.bytes)%4 != 0 {
		return nil, fmt.Errorf("%w: packed float field %d has %d bytes", ErrMalformed, f.num, len(f.bytes))
	}
	out := make([]float32, 0, len(f.bytes)/4)
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		out = append(out, math.Float32frombits(v))
		b = b[n:]
	}
	return out, nil
}

// float64s decodes a repeated double, packed or not.
func (f field) float64s() ([]float64, error) {
	if f.typ == protowire.Fixed64Type {
		return []float64{math.Float64frombits(f.value)}, nil
	}
	if len(f.bytes)%8 != 0 {
		return nil, fmt.Errorf("%w: packed double field %d has %d bytes", ErrMalformed, f.num, len(f.bytes))
	}
	out := make([]float64, 0, len(f.bytes)/8)
	b := f.bytes
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out, nil
}

func parseModel(b []byte, m *ModelProto) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1: // ir_version
			m.IRVersion = f.asInt64()
		case 2: // producer_name
			m.ProducerName = f.str()
		case 3: // producer_version
			m.ProducerVersion = f.str()
		case 4: // domain
			m.Domain = f.str()
		case 5: // model_version
			m.ModelVersion = f.asInt64()
		case 6: // doc_string
			m.DocString = f.str()
		case 7: // graph
			m.Graph = &GraphProto{}
			if err := parseGraph(f.bytes, m.Graph); err != nil {
				return fmt.Errorf("graph: %w", err)
			}
		case 8: // opset_import
			var opset OperatorSetID
			if err := parseOperatorSetID(f.bytes, &opset); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
		case 14: // metadata_props
			var entry StringStringEntry
			if err := parseStringStringEntry(f.bytes, &entry); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
		}
		return nil
	})
}

func parseGraph(b []byte, g *GraphProto) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1: // node
			var node NodeProto
			if err := parseNode(f.bytes, &node); err != nil {
				return fmt.Errorf("node %d: %w", len(g.Nodes), err)
			}
			g.Nodes = append(g.Nodes, node)
		case 2: // name
			g.Name = f.str()
		case 5: // initializer
			var t TensorProto
			if err := parseTensor(f.bytes, &t); err != nil {
				return fmt.Errorf("initializer %d: %w", len(g.Initializers), err)
			}
			g.Initializers = append(g.Initializers, t)
		case 11: // input
			var vi ValueInfoProto
			if err := parseValueInfo(f.bytes, &vi); err != nil {
				return err
			}
			g.Inputs = append(g.Inputs, vi)
		case 12: // output
			var vi ValueInfoProto
			if err := parseValueInfo(f.bytes, &vi); err != nil {
				return err
			}
			g.Outputs = append(g.Outputs, vi)
		}
		return nil
	})
}

func parseNode(b []byte, n *NodeProto) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1: // input
			n.Inputs = append(n.Inputs, f.str())
		case 2: // output
			n.Outputs = append(n.Outputs, f.str())
		case 3: // name
			n.Name = f.str()
		case 4: // op_type
			n.OpType = f.str()
		case 5: // attribute
			var attr AttributeProto
			if err := parseAttribute(f.bytes, &attr); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
		case 7: // domain
			n.Domain = f.str()
		}
		return nil
	})
}

//nolint:gocyclo,cyclop // One case per TensorProto field.
func parseTensor(b []byte, t *TensorProto) error {
	return eachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // dims
			var dims []int64
			dims, err = f.int64s()
			t.Dims = append(t.Dims, dims...)
		case 2: // data_type
			t.DataType = int32(f.value) //nolint:gosec // G115: enum value.
		case 4: // float_data
			var v []float32
			v, err = f.float32s()
			t.FloatData = append(t.FloatData, v...)
		case 5: // int32_data
			var v []int64
			v, err = f.int64s()
			for _, x := range v {
				t.Int32Data = append(t.Int32Data, int32(x)) //nolint:gosec // G115: int32 field.
			}
		case 7: // int64_data
			var v []int64
			v, err = f.int64s()
			t.Int64Data = append(t.Int64Data, v...)
		case 8: // name
			t.Name = f.str()
		case 9: // raw_data
			t.RawData = f.bytes
		case 10: // double_data
			var v []float64
			v, err = f.float64s()
			t.DoubleData = append(t.DoubleData, v...)
		case 14: // data_location
			t.External = f.value == 1
		}
		return err
	})
}

func parseValueInfo(b []byte, vi *ValueInfoProto) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1: // name
			vi.Name = f.str()
		case 2: // type
			return parseType(f.bytes, vi)
		}
		return nil
	})
}

// parseType reads TypeProto.tensor_type into vi; other value kinds are ignored.
func parseType(b []byte, vi *ValueInfoProto) error {
	return eachField(b, func(f field) error {
		if f.num != 1 { // tensor_type
			return nil
		}
		return eachField(f.bytes, func(tf field) error {
			switch tf.num {
			case 1: // elem_type
				vi.ElemType = int32(tf.value) //nolint:gosec // G115: enum value.
			case 2: // shape
				vi.Dims = []DimensionProto{}
				return eachField(tf.bytes, func(sf field) error {
					if sf.num != 1 { // dim
						return nil
					}
					var dim DimensionProto
					err := eachField(sf.bytes, func(df field) error {
						switch df.num {
						case 1:
							dim.DimValue = df.asInt64()
						case 2:
							dim.DimParam = df.str()
						}
						return nil
					})
					vi.Dims = append(vi.Dims, dim)
					return err
				})
			}
			return nil
		})
	})
}

//nolint:gocyclo,cyclop // One case per AttributeProto field.
func parseAttribute(b []byte, a *AttributeProto) error {
	return eachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1: // name
			a.Name = f.str()
		case 2: // f
			var v []float32
			if v, err = f.float32s(); err == nil && len(v) > 0 {
				a.F = v[0]
			}
		case 3: // i
			a.I = f.asInt64()
		case 4: // s
			a.S = f.bytes
		case 5: // t
			a.T = &TensorProto{}
			err = parseTensor(f.bytes, a.T)
		case 7: // floats
			var v []float32
			v, err = f.float32s()
			a.Floats = append(a.Floats, v...)
		case 8: // ints
			var v []int64
			v, err = f.int64s()
			a.Ints = append(a.Ints, v...)
		case 9: // strings
			a.Strings = append(a.Strings, f.bytes)
		case 20: // type
			a.Type = int32(f.value) //nolint:gosec // G115: enum value.
		}
		if err != nil {
			return fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		return nil
	})
}

func parseOperatorSetID(b []byte, o *OperatorSetID) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			o.Domain = f.str()
		case 2:
			o.Version = f.asInt64()
		}
		return nil
	})
}

func parseStringStringEntry(b []byte, e *StringStringEntry) error {
	return eachField(b, func(f field) error {
		switch f.num {
		case 1:
			e.Key = f.str()
		case 2:
			e.Value = f.str()
		}
		return nil
	})
}
