package nn

import (
	"math/rand"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Dense is a fully connected layer: output = matmul(input, weight) + bias.
type Dense[T types.Float] struct {
	name         string
	weight, bias *autograd.Variable[T]
}

// NewDense builds a Dense layer mapping inFeatures to outFeatures,
// He-initializing its weight and zero-initializing its bias.
func NewDense[T types.Float](name string, inFeatures, outFeatures int, rng *rand.Rand) *Dense[T] {
	weightShape := types.MustNew(inFeatures, outFeatures)
	biasShape := types.MustNew(outFeatures)
	return &Dense[T]{
		name:   name,
		weight: autograd.NewParameter(HeInit[T](rng, weightShape)),
		bias:   autograd.NewParameter(tensor.New[T](biasShape)),
	}
}

func (d *Dense[T]) Build(input graph.Node) graph.Node {
	wn := graph.Var(d.weight.Shape(), d.weight)
	bn := graph.Var(d.bias.Shape(), d.bias)
	return graph.Sum(graph.MatMul(input, wn), bn)
}

func (d *Dense[T]) Parameters() []*autograd.Variable[T] {
	return []*autograd.Variable[T]{d.weight, d.bias}
}

func (d *Dense[T]) Name() string { return d.name }
