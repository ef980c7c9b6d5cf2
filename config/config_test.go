package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
batch_size: 32
epochs: 10
seed: 42
optimizer:
  type: adam
  lr: 0.001
  beta: 0.9
  gamma: 0.999
  epsilon: 1e-8
layers:
  - type: dense
    in: 40
    out: 64
  - type: relu
  - type: dense
    in: 64
    out: 10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesOptimizerAndLayers(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 10, cfg.Epochs)
	assert.Equal(t, "adam", cfg.Optimizer.Type)
	assert.InDelta(t, 0.001, cfg.Optimizer.LR, 1e-9)
	require.Len(t, cfg.Layers, 3)
	assert.Equal(t, "dense", cfg.Layers[0].Type)
	assert.Equal(t, 40, cfg.Layers[0].In)
	assert.Equal(t, "relu", cfg.Layers[1].Type)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidOptimizerType(t *testing.T) {
	_, err := Load(writeConfig(t, `
batch_size: 8
epochs: 1
optimizer:
  type: rmsprop
  lr: 0.01
layers:
  - type: relu
`))
	assert.Error(t, err)
}

func TestLoadRejectsZeroBatchSize(t *testing.T) {
	_, err := Load(writeConfig(t, `
batch_size: 0
epochs: 1
optimizer:
  type: sgd
  lr: 0.01
layers:
  - type: relu
`))
	assert.Error(t, err)
}

func TestLoadRejectsEmptyLayers(t *testing.T) {
	_, err := Load(writeConfig(t, `
batch_size: 8
epochs: 1
optimizer:
  type: sgd
  lr: 0.01
layers: []
`))
	assert.Error(t, err)
}
