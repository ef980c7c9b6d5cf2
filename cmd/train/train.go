package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/nnfwd/gradflow/config"
	"github.com/nnfwd/gradflow/pkg/logger"
	"github.com/nnfwd/gradflow/x/math/autograd"
	"github.com/nnfwd/gradflow/x/math/graph"
	"github.com/nnfwd/gradflow/x/math/learn/datasets/mnist1d"
	"github.com/nnfwd/gradflow/x/math/nn"
	"github.com/nnfwd/gradflow/x/math/optim"
	"github.com/nnfwd/gradflow/x/math/tensor"
	"github.com/nnfwd/gradflow/x/math/tensor/types"
)

var trainLog = logger.Component("train")

func newTrainCmd() *cobra.Command {
	var configPath string
	var trainX, trainY string
	var testX, testY string
	var checkpointOut string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on an mnist1d-format dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(trainOptions{
				configPath:    configPath,
				trainX:        trainX,
				trainY:        trainY,
				testX:         testX,
				testY:         testY,
				checkpointOut: checkpointOut,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the training config YAML (required)")
	cmd.Flags().StringVar(&trainX, "train-x", "", "Path to the training features file (required)")
	cmd.Flags().StringVar(&trainY, "train-y", "", "Path to the training labels file (required)")
	cmd.Flags().StringVar(&testX, "test-x", "", "Path to the evaluation features file")
	cmd.Flags().StringVar(&testY, "test-y", "", "Path to the evaluation labels file")
	cmd.Flags().StringVar(&checkpointOut, "checkpoint-out", "", "Path to write the trained model's checkpoint (required)")
	for _, name := range []string{"config", "train-x", "train-y", "checkpoint-out"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

type trainOptions struct {
	configPath    string
	trainX, trainY string
	testX, testY  string
	checkpointOut string
}

func runTrain(opts trainOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	trainSamples, err := mnist1d.Load(opts.trainX, opts.trainY)
	if err != nil {
		return fmt.Errorf("runTrain: %w", err)
	}
	if len(trainSamples) == 0 {
		return fmt.Errorf("runTrain: %s/%s contain no samples", opts.trainX, opts.trainY)
	}

	var testSamples []mnist1d.Sample
	if opts.testX != "" && opts.testY != "" {
		testSamples, err = mnist1d.Load(opts.testX, opts.testY)
		if err != nil {
			return fmt.Errorf("runTrain: %w", err)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	model, err := buildModel(cfg.Layers, rng)
	if err != nil {
		return err
	}
	optimizer, err := buildOptimizer(cfg.Optimizer)
	if err != nil {
		return err
	}

	trainLog.Info().Int("samples", len(trainSamples)).Int("epochs", cfg.Epochs).Msg("starting training")

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		mnist1d.Shuffle(trainSamples, rng)
		var epochLoss float32
		var batchCount int
		for _, batch := range mnist1d.Batches(trainSamples, cfg.BatchSize) {
			loss, err := trainBatch(model, optimizer, batch)
			if err != nil {
				return fmt.Errorf("runTrain: epoch %d: %w", epoch, err)
			}
			epochLoss += loss
			batchCount++
		}
		trainLog.Info().Int("epoch", epoch).Float32("loss", epochLoss/float32(batchCount)).Msg("epoch complete")

		if len(testSamples) > 0 {
			accuracy, err := evaluate(model, testSamples)
			if err != nil {
				return fmt.Errorf("runTrain: epoch %d evaluation: %w", epoch, err)
			}
			trainLog.Info().Int("epoch", epoch).Float32("accuracy", accuracy).Msg("evaluation complete")
		}
	}

	if err := writeCheckpoint(opts.checkpointOut, model.Parameters()); err != nil {
		return fmt.Errorf("runTrain: %w", err)
	}
	trainLog.Info().Str("path", opts.checkpointOut).Msg("checkpoint written")
	return nil
}

func buildOptimizer(spec config.OptimizerSpec) (optim.Optimizer[float32], error) {
	lr := float32(spec.LR)
	switch spec.Type {
	case "sgd":
		return optim.NewSGD[float32](lr), nil
	case "momentum":
		return optim.NewMomentum[float32](lr, float32(spec.Beta)), nil
	case "adam":
		return optim.NewAdam[float32](lr, float32(spec.Beta), float32(spec.Gamma), float32(spec.Epsilon)), nil
	default:
		return nil, fmt.Errorf("buildOptimizer: unknown optimizer type %q", spec.Type)
	}
}

func trainBatch(model *nn.Sequential[float32], optimizer optim.Optimizer[float32], batch []mnist1d.Sample) (float32, error) {
	inputNode, targets, err := batchNode(batch)
	if err != nil {
		return 0, err
	}
	root := model.Build(inputNode)

	loss := nn.NewSoftMaxLoss[float32]()
	value, _, cache, err := loss.Forward(root, targets)
	if err != nil {
		return 0, err
	}
	loss.Backward(root, cache, targets)
	optimizer.Step(model.Parameters(), len(batch))
	return value, nil
}

func evaluate(model *nn.Sequential[float32], samples []mnist1d.Sample) (float32, error) {
	inputNode, targets, err := batchNode(samples)
	if err != nil {
		return 0, err
	}
	root := model.Build(inputNode)

	loss := nn.NewSoftMaxLoss[float32]()
	_, predicted, _, err := loss.Forward(root, targets)
	if err != nil {
		return 0, err
	}
	var correct int
	for i, p := range predicted {
		if p == targets[i] {
			correct++
		}
	}
	return float32(correct) / float32(len(samples)), nil
}

func batchNode(batch []mnist1d.Sample) (graph.Node, []int, error) {
	features := len(batch[0].X)
	flat := make([]float32, 0, len(batch)*features)
	targets := make([]int, len(batch))
	for i, s := range batch {
		if len(s.X) != features {
			return nil, nil, fmt.Errorf("batchNode: sample %d has %d features, want %d", i, len(s.X), features)
		}
		flat = append(flat, s.X...)
		targets[i] = s.Y
	}

	shape := types.MustNew(len(batch), features)
	t, err := tensor.FromSlice[float32](shape, flat)
	if err != nil {
		return nil, nil, fmt.Errorf("batchNode: %w", err)
	}
	v := autograd.New(t)
	return graph.Var(v.Shape(), v), targets, nil
}
