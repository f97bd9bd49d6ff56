// Package onnxtest builds small ONNX models in memory for tests.
//
// Models are described with the onnx package's proto structs and encoded
// with protowire, so a round trip through onnx.Parse exercises the same
// decoder that reads .onnx files from disk.
package onnxtest

import (
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/emodiary/internal/onnx"
)

// Marshal encodes m in the protobuf wire format of onnx.proto.
func Marshal(m *onnx.ModelProto) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.IRVersion)) //nolint:gosec // G115: two's complement on the wire.
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	b = appendString(b, 4, m.Domain)
	b = appendVarint(b, 5, uint64(m.ModelVersion)) //nolint:gosec // G115: see above.
	b = appendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessage(b, 7, marshalGraph(m.Graph))
	}
	for _, opset := range m.OpsetImport {
		var ob []byte
		ob = appendString(ob, 1, opset.Domain)
		ob = appendVarint(ob, 2, uint64(opset.Version)) //nolint:gosec // G115: see above.
		b = appendMessage(b, 8, ob)
	}
	for _, entry := range m.MetadataProps {
		var eb []byte
		eb = appendString(eb, 1, entry.Key)
		eb = appendString(eb, 2, entry.Value)
		b = appendMessage(b, 14, eb)
	}
	return b
}

func marshalGraph(g *onnx.GraphProto) []byte {
	var b []byte
	for i := range g.Nodes {
		b = appendMessage(b, 1, marshalNode(&g.Nodes[i]))
	}
	b = appendString(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessage(b, 5, marshalTensor(&g.Initializers[i]))
	}
	for i := range g.Inputs {
		b = appendMessage(b, 11, marshalValueInfo(&g.Inputs[i]))
	}
	for i := range g.Outputs {
		b = appendMessage(b, 12, marshalValueInfo(&g.Outputs[i]))
	}
	return b
}

func marshalNode(n *onnx.NodeProto) []byte {
	var b []byte
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, n.Name)
	b = appendString(b, 4, n.OpType)
	for i := range n.Attributes {
		b = appendMessage(b, 5, marshalAttribute(&n.Attributes[i]))
	}
	b = appendString(b, 7, n.Domain)
	return b
}

func marshalTensor(t *onnx.TensorProto) []byte {
	var b []byte
	b = appendPackedVarints(b, 1, t.Dims)
	b = appendVarint(b, 2, uint64(t.DataType)) //nolint:gosec // G115: enum value.
	if len(t.FloatData) > 0 {
		b = appendPackedFloats(b, 4, t.FloatData)
	}
	if len(t.Int32Data) > 0 {
		ints := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			ints[i] = int64(v)
		}
		b = appendPackedVarints(b, 5, ints)
	}
	if len(t.Int64Data) > 0 {
		b = appendPackedVarints(b, 7, t.Int64Data)
	}
	b = appendString(b, 8, t.Name)
	if len(t.RawData) > 0 {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.RawData)
	}
	if len(t.DoubleData) > 0 {
		var packed []byte
		for _, v := range t.DoubleData {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		b = protowire.AppendTag(b, 10, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if t.External {
		b = appendVarint(b, 14, 1)
	}
	return b
}

func marshalAttribute(a *onnx.AttributeProto) []byte {
	var b []byte
	b = appendString(b, 1, a.Name)
	if a.Type == onnx.AttributeProtoFloat {
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	}
	b = appendVarint(b, 3, uint64(a.I)) //nolint:gosec // G115: two's complement on the wire.
	if len(a.S) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	}
	if a.T != nil {
		b = appendMessage(b, 5, marshalTensor(a.T))
	}
	if len(a.Floats) > 0 {
		b = appendPackedFloats(b, 7, a.Floats)
	}
	if len(a.Ints) > 0 {
		b = appendPackedVarints(b, 8, a.Ints)
	}
	for _, s := range a.Strings {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, s)
	}
	b = appendVarint(b, 20, uint64(a.Type)) //nolint:gosec // G115: enum value.
	return b
}

func marshalValueInfo(vi *onnx.ValueInfoProto) []byte {
	var shape []byte
	for _, d := range vi.Dims {
		var db []byte
		if d.DimParam != "" {
			db = appendString(db, 2, d.DimParam)
		} else {
			db = protowire.AppendTag(db, 1, protowire.VarintType)
			db = protowire.AppendVarint(db, uint64(d.DimValue)) //nolint:gosec // G115: see above.
		}
		shape = appendMessage(shape, 1, db)
	}

	var tensorType []byte
	tensorType = appendVarint(tensorType, 1, uint64(vi.ElemType)) //nolint:gosec // G115: enum value.
	if vi.Dims != nil {
		tensorType = appendMessage(tensorType, 2, shape)
	}

	var typ []byte
	typ = appendMessage(typ, 1, tensorType)

	var b []byte
	b = appendString(b, 1, vi.Name)
	b = appendMessage(b, 2, typ)
	return b
}

// appendVarint skips zero values, as proto3 does.
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendString skips empty values, as proto3 does.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendPackedVarints(b []byte, num protowire.Number, vals []int64) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: see above.
	}
	return appendMessage(b, num, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	packed := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return appendMessage(b, num, packed)
}

// rawFloats encodes float32 values as little-endian raw_data.
func rawFloats(vals []float32) []byte {
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return raw
}
