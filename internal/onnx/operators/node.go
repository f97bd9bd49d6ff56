package operators

import "gorgonia.org/tensor"

// ONNX data types used by Cast.
const (
	TensorProtoFloat   = 1  // float32
	TensorProtoUint8   = 2  // uint8
	TensorProtoInt8    = 3  // int8
	TensorProtoUint16  = 4  // uint16
	TensorProtoInt16   = 5  // int16
	TensorProtoInt32   = 6  // int32
	TensorProtoInt64   = 7  // int64
	TensorProtoBool    = 9  // bool
	TensorProtoFloat16 = 10 // float16
	TensorProtoDouble  = 11 // float64
	TensorProtoUint32  = 12 // uint32
	TensorProtoUint64  = 13 // uint64
)

// Node represents an ONNX operation node.
// It mirrors onnx.NodeProto so that the two packages do not import each other.
type Node struct {
	Name       string      // Node name (optional)
	OpType     string      // Operation type (e.g., "Gather", "MatMul")
	Inputs     []string    // Input tensor names
	Outputs    []string    // Output tensor names
	Attributes []Attribute // Operation attributes
	Domain     string      // Custom domain (empty for default)
}

// Attribute represents a node attribute.
type Attribute struct {
	Name   string        // Attribute name
	Type   int32         // Attribute type
	F      float32       // FLOAT value
	I      int64         // INT value
	S      []byte        // STRING value
	T      *tensor.Dense // TENSOR value, already decoded
	Floats []float32     // FLOATS array
	Ints   []int64       // INTS array
}

// Attr returns the named attribute, or nil.
func (n *Node) Attr(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	if a := node.Attr(name); a != nil {
		return a.I
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *Node, name string) []int64 {
	if a := node.Attr(name); a != nil {
		return a.Ints
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	if a := node.Attr(name); a != nil {
		return a.F
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *Node, name, defaultVal string) string {
	if a := node.Attr(name); a != nil {
		return string(a.S)
	}
	return defaultVal
}
