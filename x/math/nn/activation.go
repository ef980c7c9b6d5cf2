package nn

import (
	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// ReLU is a parameterless activation layer.
type ReLU[T types.Float] struct{ name string }

func NewReLU[T types.Float](name string) *ReLU[T] { return &ReLU[T]{name: name} }

func (r *ReLU[T]) Build(input graph.Node) graph.Node         { return graph.Relu(input) }
func (r *ReLU[T]) Parameters() []*autograd.Variable[T]       { return nil }
func (r *ReLU[T]) Name() string                              { return r.name }

// Flatten collapses every axis but the batch axis into one, the usual
// bridge between a convolutional stack and the Dense layers that follow it.
type Flatten[T types.Float] struct{ name string }

func NewFlatten[T types.Float](name string) *Flatten[T] { return &Flatten[T]{name: name} }

func (f *Flatten[T]) Build(input graph.Node) graph.Node   { return graph.Flatten(input) }
func (f *Flatten[T]) Parameters() []*autograd.Variable[T] { return nil }
func (f *Flatten[T]) Name() string                        { return f.name }
