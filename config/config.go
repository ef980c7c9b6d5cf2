// Package config loads the YAML training configuration SPEC_FULL.md
// §5/§9 describes: learning rate, optimizer choice and hyperparameters,
// batch size, epoch count, and model architecture as an ordered list of
// layer specs, unmarshaled with gopkg.in/yaml.v3 the way the teacher
// pack uses the same library for its own config objects.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LayerSpec names one layer in the model's build order. Fields not
// relevant to Type are left zero; Dense uses In/Out, Conv1D/Conv2D use
// OutChannels/InChannels/Kernel*/Stride*/Pad*, ReLU and Flatten use none.
type LayerSpec struct {
	Type string `yaml:"type"`

	In  int `yaml:"in,omitempty"`
	Out int `yaml:"out,omitempty"`

	OutChannels int `yaml:"out_channels,omitempty"`
	InChannels  int `yaml:"in_channels,omitempty"`

	KernelSize   int `yaml:"kernel_size,omitempty"`
	KernelHeight int `yaml:"kernel_height,omitempty"`
	KernelWidth  int `yaml:"kernel_width,omitempty"`

	Stride  int `yaml:"stride,omitempty"`
	StrideH int `yaml:"stride_h,omitempty"`
	StrideW int `yaml:"stride_w,omitempty"`

	Pad  int `yaml:"pad,omitempty"`
	PadH int `yaml:"pad_h,omitempty"`
	PadW int `yaml:"pad_w,omitempty"`
}

// OptimizerSpec names the optimizer and the hyperparameters it uses.
// Which fields apply depends on Type: "sgd" uses LR; "momentum" uses
// LR and Beta; "adam" uses LR, Beta, Gamma, and Epsilon.
type OptimizerSpec struct {
	Type    string  `yaml:"type"`
	LR      float64 `yaml:"lr"`
	Beta    float64 `yaml:"beta,omitempty"`
	Gamma   float64 `yaml:"gamma,omitempty"`
	Epsilon float64 `yaml:"epsilon,omitempty"`
}

// TrainingConfig is the full contents of a training run's YAML config
// file, unmarshaled directly by Load.
type TrainingConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Epochs    int           `yaml:"epochs"`
	Seed      int64         `yaml:"seed"`
	Optimizer OptimizerSpec `yaml:"optimizer"`
	Layers    []LayerSpec   `yaml:"layers"`
}

// Load reads and unmarshals the YAML config at path, then validates
// the fields a training run cannot proceed without.
func Load(path string) (TrainingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return TrainingConfig{}, fmt.Errorf("config.Load: reading %s: %w", path, err)
	}

	var cfg TrainingConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return TrainingConfig{}, fmt.Errorf("config.Load: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return TrainingConfig{}, fmt.Errorf("config.Load: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields Load cannot leave zero or malformed.
func (c TrainingConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if len(c.Layers) == 0 {
		return fmt.Errorf("layers must not be empty")
	}
	switch c.Optimizer.Type {
	case "sgd", "momentum", "adam":
	default:
		return fmt.Errorf("optimizer.type must be one of sgd, momentum, adam; got %q", c.Optimizer.Type)
	}
	if c.Optimizer.LR <= 0 {
		return fmt.Errorf("optimizer.lr must be positive, got %g", c.Optimizer.LR)
	}
	return nil
}
