package nn

import (
	"fmt"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Sequential chains layers one after another, the build-time-fixed
// composition SPEC_FULL.md §3 requires: Build walks the layers once,
// threading each one's output graph.Node into the next, so the
// resulting expression graph's shape never changes across calls.
type Sequential[T types.Float] struct {
	layers []Layer[T]
}

// NewSequential builds a model from layers, applied in order.
func NewSequential[T types.Float](layers ...Layer[T]) *Sequential[T] {
	return &Sequential[T]{layers: layers}
}

// Build wires input through every layer and returns the final node,
// simplified so adjacent sum/mul pairs fold into FMA and matmul/
// transpose pairs fold into the flagged matmul opcodes before any
// evaluation happens.
func (s *Sequential[T]) Build(input graph.Node) graph.Node {
	out := input
	for _, l := range s.layers {
		out = l.Build(out)
	}
	return out.Simplify()
}

// Parameters returns every learnable Variable across every layer, in
// layer order, for an optim.Optimizer to iterate over.
func (s *Sequential[T]) Parameters() []*autograd.Variable[T] {
	var params []*autograd.Variable[T]
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Layer returns the layer at index i, or an error if out of range.
func (s *Sequential[T]) Layer(i int) (Layer[T], error) {
	if i < 0 || i >= len(s.layers) {
		return nil, fmt.Errorf("nn.Sequential.Layer: index %d out of range for %d layers", i, len(s.layers))
	}
	return s.layers[i], nil
}

// LayerCount returns the number of layers in the model.
func (s *Sequential[T]) LayerCount() int { return len(s.layers) }
