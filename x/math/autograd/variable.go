// Package autograd implements the forward-cache and reverse-mode
// gradient engine from SPEC_FULL.md §4.9/§4.10: it walks a graph.Node
// tree, evaluating each node exactly once per forward pass (matmul and
// convolution nodes eagerly, lane-local arithmetic fused through
// x/math/interp) and propagating gradients in reverse, accumulating
// contributions at shared nodes before flushing them to their child.
//
// Grounded on original_source/src/tensor_variable.h's
// Variable<T,requires_gradient> (tensor+optional gradient pair) and
// expression_base.h's forward()/backward() contract.
package autograd

import (
	"github.com/nnfwd/gradflow/x/math/primitive/kernel"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// Variable pairs a tensor with its gradient accumulator. Gradient
// storage is allocated only when RequiresGrad is set, matching
// tensor_variable.h's Variable<T, requires_gradient> template bool.
type Variable[T types.Float] struct {
	Value        tensor.Tensor[T]
	Grad         tensor.Tensor[T]
	RequiresGrad bool
}

// New wraps value as a non-trainable variable (an input, not a
// parameter): no gradient buffer is allocated.
func New[T types.Float](value tensor.Tensor[T]) *Variable[T] {
	return &Variable[T]{Value: value}
}

// NewParameter wraps value as a trainable variable with a zeroed
// gradient buffer of matching shape.
func NewParameter[T types.Float](value tensor.Tensor[T]) *Variable[T] {
	return &Variable[T]{Value: value, Grad: tensor.New[T](value.Shape()), RequiresGrad: true}
}

// Tensor implements graph.Leaf's data-source contract.
func (v *Variable[T]) Tensor() tensor.Tensor[T] { return v.Value }

// Shape implements graph.Leaf's data-source contract.
func (v *Variable[T]) Shape() types.Shape { return v.Value.Shape() }

// AccumulateGrad adds g (already reduced to this variable's shape) into
// the running gradient. A no-op for non-trainable variables, mirroring
// how leaf nodes in the C++ reference simply drop gradients for
// constants.
func (v *Variable[T]) AccumulateGrad(g tensor.Tensor[T]) {
	if !v.RequiresGrad {
		return
	}
	kernel.Add(v.Grad.Data(), v.Grad.Data(), g.Data())
	v.Grad.WrapForBroadcasting()
}

// ZeroGrad clears the gradient buffer. The optimizer calls this after
// every step, per SPEC_FULL.md §4.11 / invariant 10.
func (v *Variable[T]) ZeroGrad() {
	if v.RequiresGrad {
		v.Grad.SetZero()
	}
}
