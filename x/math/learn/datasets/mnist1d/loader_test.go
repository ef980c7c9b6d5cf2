package mnist1d

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMatchesRowsAndParsesFields(t *testing.T) {
	dir := t.TempDir()
	xPath := writeFile(t, dir, "x.txt", "1.0 2.5 -3.0\n0.1 0.2 0.3\n")
	yPath := writeFile(t, dir, "y.txt", "2\n0\n")

	samples, err := Load(xPath, yPath)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, []float32{1.0, 2.5, -3.0}, samples[0].X)
	assert.Equal(t, 2, samples[0].Y)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, samples[1].X)
	assert.Equal(t, 0, samples[1].Y)
}

func TestLoadRejectsRowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	xPath := writeFile(t, dir, "x.txt", "1.0 2.0\n3.0 4.0\n")
	yPath := writeFile(t, dir, "y.txt", "1\n")

	_, err := Load(xPath, yPath)
	assert.Error(t, err)
}

func TestShuffleIsPermutation(t *testing.T) {
	samples := []Sample{{Y: 0}, {Y: 1}, {Y: 2}, {Y: 3}, {Y: 4}}
	Shuffle(samples, rand.New(rand.NewSource(7)))

	seen := make(map[int]bool)
	for _, s := range samples {
		seen[s.Y] = true
	}
	assert.Len(t, seen, 5)
}

func TestBatchesSplitsWithShortFinalBatch(t *testing.T) {
	samples := make([]Sample, 5)
	batches := Batches(samples, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
}
