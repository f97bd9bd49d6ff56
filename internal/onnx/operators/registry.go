package operators

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// OpHandler processes an ONNX node and returns output tensors.
// Handlers must not modify their inputs.
type OpHandler func(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error)

// Registry maps ONNX operator types to handler functions.
// It is read-only once built and safe for concurrent Execute calls.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerMathOps()
	r.registerActivations()
	r.registerReduceOps()
	r.registerShapeOps()
	r.registerUtilityOps()

	return r
}

// Register adds a custom operator handler, replacing any existing one.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Get returns the handler for an operator type.
func (r *Registry) Get(opType string) (OpHandler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

// Execute runs an operator with the given inputs.
func (r *Registry) Execute(node *Node, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	handler, ok := r.handlers[node.OpType]
	if !ok {
		return nil, fmt.Errorf("unsupported operator: %s", node.OpType)
	}
	return handler(node, inputs)
}

// SupportedOps returns the registered operator types in sorted order.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// requireInputs checks that at least n leading inputs are present.
func requireInputs(op string, inputs []*tensor.Dense, n int) error {
	if len(inputs) < n {
		return fmt.Errorf("%s requires %d inputs, got %d", op, n, len(inputs))
	}
	for i := 0; i < n; i++ {
		if inputs[i] == nil {
			return fmt.Errorf("%s: input %d is missing", op, i)
		}
	}
	return nil
}

// optionalInput returns inputs[i] or nil when it was not provided.
func optionalInput(inputs []*tensor.Dense, i int) *tensor.Dense {
	if i < len(inputs) {
		return inputs[i]
	}
	return nil
}

func one(t *tensor.Dense) []*tensor.Dense {
	return []*tensor.Dense{t}
}
