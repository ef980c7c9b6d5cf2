// Package nn implements the layer and model abstractions: layers are
// graph-node factories rather than
// eager Forward/Backward pairs, since SPEC_FULL.md §3 fixes the whole
// expression graph's shape and composition at build time. A Layer
// wires its own parameters into whatever graph.Node its input arrives
// as and hands back the output node; x/math/autograd does the actual
// evaluating and differentiating once, after every layer in a model
// has had its turn.
//
// Grounded on itohio-EasyRobot/x/math/nn/builder.go's
// SequentialModelBuilder and x/math/nn/types/layer.go's Layer
// contract, adapted from their eager per-call Forward/Backward
// methods to this package's build-once graph construction.
package nn

import (
	"math"
	"math/rand"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Layer wires its parameters into an input graph.Node and returns the
// output node. Parameters returns every learnable Variable the layer
// owns, for an optimizer to iterate over.
type Layer[T types.Float] interface {
	Build(input graph.Node) graph.Node
	Parameters() []*autograd.Variable[T]
	Name() string
}

// HeInit fills a freshly allocated parameter tensor with
// N(0, sqrt(4/fan_in)) samples, per
// original_source/src/weight_initializer.h's he_initialization:
// rank-0/1 tensors (biases) are left zeroed, rank-2 tensors (dense
// weights) use fan_in = dim0+dim1, rank-3 fan_in = dim1*dim2, and
// rank-4 fan_in = dim1*dim2*dim3.
func HeInit[T types.Float](rng *rand.Rand, shape types.Shape) tensor.Tensor[T] {
	t := tensor.New[T](shape)
	rank := shape.Rank()
	if rank == 0 || rank == 1 {
		return t
	}

	var fanIn int
	switch rank {
	case 2:
		fanIn = shape.Dim(0) + shape.Dim(1)
	case 3:
		fanIn = shape.Dim(1) * shape.Dim(2)
	default:
		fanIn = shape.Dim(1) * shape.Dim(2) * shape.Dim(3)
	}

	stddev := math.Sqrt(4.0 / float64(fanIn))
	data := t.Data()
	for i := range data {
		data[i] = T(rng.NormFloat64() * stddev)
	}
	t.WrapForBroadcasting()
	return t
}
