package nn

import (
	"math/rand"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Conv1D wraps graph.Conv1D with owned kernel/bias parameters, kernel
// shaped [outChannels, inChannels, kernelSize] and bias [outChannels].
type Conv1D[T types.Float] struct {
	name         string
	stride, pad  int
	kernel, bias *autograd.Variable[T]
}

func NewConv1D[T types.Float](name string, outChannels, inChannels, kernelSize, stride, pad int, rng *rand.Rand) *Conv1D[T] {
	kernelShape := types.MustNew(outChannels, inChannels, kernelSize)
	biasShape := types.MustNew(outChannels)
	return &Conv1D[T]{
		name:   name,
		stride: stride,
		pad:    pad,
		kernel: autograd.NewParameter(HeInit[T](rng, kernelShape)),
		bias:   autograd.NewParameter(tensor.New[T](biasShape)),
	}
}

func (c *Conv1D[T]) Build(input graph.Node) graph.Node {
	kn := graph.Var(c.kernel.Shape(), c.kernel)
	bn := graph.Var(c.bias.Shape(), c.bias)
	return graph.Conv1D(kn, input, bn, c.stride, c.pad)
}

func (c *Conv1D[T]) Parameters() []*autograd.Variable[T] {
	return []*autograd.Variable[T]{c.kernel, c.bias}
}

func (c *Conv1D[T]) Name() string { return c.name }

// Conv2D wraps graph.Conv2D with an owned kernel parameter, shaped
// [outChannels, inChannels, kernelHeight, kernelWidth]. The underlying
// graph op is unbiased (mirroring convolution_2d_operator.h), so a
// Conv2D layer's bias is a separate broadcastable parameter added with
// its own Sum node.
type Conv2D[T types.Float] struct {
	name             string
	strideH, strideW int
	padH, padW       int
	kernel, bias     *autograd.Variable[T]
}

func NewConv2D[T types.Float](name string, outChannels, inChannels, kh, kw, strideH, strideW, padH, padW int, rng *rand.Rand) *Conv2D[T] {
	kernelShape := types.MustNew(outChannels, inChannels, kh, kw)
	biasShape := types.MustNew(outChannels, 1, 1)
	return &Conv2D[T]{
		name:    name,
		strideH: strideH,
		strideW: strideW,
		padH:    padH,
		padW:    padW,
		kernel:  autograd.NewParameter(HeInit[T](rng, kernelShape)),
		bias:    autograd.NewParameter(tensor.New[T](biasShape)),
	}
}

func (c *Conv2D[T]) Build(input graph.Node) graph.Node {
	kn := graph.Var(c.kernel.Shape(), c.kernel)
	bn := graph.Var(c.bias.Shape(), c.bias)
	conv := graph.Conv2D(kn, input, c.strideH, c.strideW, c.padH, c.padW)
	return graph.Sum(conv, bn)
}

func (c *Conv2D[T]) Parameters() []*autograd.Variable[T] {
	return []*autograd.Variable[T]{c.kernel, c.bias}
}

func (c *Conv2D[T]) Name() string { return c.name }
