package nn

import (
	"fmt"
	"math"

	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/interp"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

// SoftMaxLoss fuses softmax and cross-entropy the way
// original_source/src/loss.h's SoftMaxLoss does: algebraically, the
// gradient of softmax-then-cross-entropy with respect to the logits
// collapses to probabilities-minus-one-hot, so it is cheaper (and more
// numerically stable) to special case it outside the computational
// graph entirely rather than expressing softmax and the cross-entropy
// reduction as further graph nodes.
type SoftMaxLoss[T types.Float] struct {
	probabilities  tensor.Tensor[T]
	batch, classes int
}

func NewSoftMaxLoss[T types.Float]() *SoftMaxLoss[T] { return &SoftMaxLoss[T]{} }

// Forward evaluates root — logits shaped [batch, classes] — caching
// the softmax probabilities Backward needs, and returns the mean
// cross-entropy loss across the batch, each row's predicted
// (argmax) class, and the autograd cache to pass to Backward.
func (l *SoftMaxLoss[T]) Forward(root graph.Node, targets []int) (loss T, predicted []int, cache *autograd.Cache[T], err error) {
	logits, cache := autograd.Forward[T](root)
	shape := logits.Shape()
	if shape.Rank() != 2 {
		return 0, nil, nil, fmt.Errorf("nn.SoftMaxLoss.Forward: expected rank-2 [batch,classes] logits, got %v", shape)
	}
	batch, classes := shape.Dim(0), shape.Dim(1)
	if len(targets) != batch {
		return 0, nil, nil, fmt.Errorf("nn.SoftMaxLoss.Forward: %d targets for batch size %d", len(targets), batch)
	}

	probs := logits.Clone()
	data := probs.Data()
	interp.SoftmaxMaxShift(data, batch, classes)
	interp.SoftmaxExp(data)
	interp.SoftmaxNormalization(data, batch, classes)

	l.probabilities = probs
	l.batch, l.classes = batch, classes

	predicted = make([]int, batch)
	var total T
	for b := 0; b < batch; b++ {
		row := data[b*classes : (b+1)*classes]
		argmax := 0
		for i, v := range row {
			if v > row[argmax] {
				argmax = i
			}
		}
		predicted[b] = argmax

		target := targets[b]
		if target < 0 || target >= classes {
			return 0, nil, nil, fmt.Errorf("nn.SoftMaxLoss.Forward: target %d out of range for %d classes", target, classes)
		}
		total += -logT(row[target])
	}
	return total / T(batch), predicted, cache, nil
}

// Backward seeds root's gradient with probabilities-minus-one-hot and
// propagates it through the graph built by Forward.
func (l *SoftMaxLoss[T]) Backward(root graph.Node, cache *autograd.Cache[T], targets []int) {
	seed := l.probabilities.Clone()
	data := seed.Data()
	for b, target := range targets {
		data[b*l.classes+target] -= 1
	}
	seed.WrapForBroadcasting()
	autograd.Backward[T](root, cache, seed)
}

func logT[T types.Float](v T) T {
	return T(math.Log(float64(v)))
}
