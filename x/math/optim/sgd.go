package optim

import (
	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// SGD implements plain stochastic gradient descent:
//
//	param -= (lr/batch_size) * gradient
type SGD[T types.Float] struct {
	LR T
}

// NewSGD constructs an SGD optimizer with the given learning rate.
func NewSGD[T types.Float](lr T) *SGD[T] {
	if lr <= 0 {
		panic("optim.NewSGD: learning rate must be positive")
	}
	return &SGD[T]{LR: lr}
}

// Step applies the SGD rule to every gradient-tracking parameter and
// zeros its gradient afterward.
func (s *SGD[T]) Step(params []*autograd.Variable[T], batchSize int) {
	scale := s.LR / T(batchSize)
	for _, p := range params {
		if p == nil || !p.RequiresGrad {
			continue
		}
		data, grad := p.Value.Data(), p.Grad.Data()
		for i := range data {
			data[i] -= scale * grad[i]
		}
		p.Value.WrapForBroadcasting()
		p.ZeroGrad()
	}
}
