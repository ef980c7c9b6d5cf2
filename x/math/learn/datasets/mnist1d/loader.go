// Package mnist1d loads the whitespace-text dataset format from
// SPEC_FULL.md §9 / spec.md §6: one x file whose rows are
// whitespace-separated floats (one example per line) and a matching y
// file whose rows are single unsigned integer labels.
//
// Grounded on itohio-EasyRobot/x/math/learn/datasets/mnist/loader.go
// for the Go package shape (a Sample struct, a Load function
// returning ([]Sample, error), os.Open/bufio.Scanner plumbing) and
// original_source/src/data_loader.h's DataLoader for the per-epoch
// shuffle contract (push pairs, then randomIter shuffles and returns
// them) — realized here as a Shuffle function over the loaded slice
// rather than a templated container.
package mnist1d

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// Sample is one (features, label) pair.
type Sample struct {
	X []float32
	Y int
}

// Load reads the whitespace-text x/y file pair into a slice of
// samples. Row counts of x and y must match; any parse or mismatch
// failure is returned as an error, per spec.md §7's "dataset I/O"
// error kind.
func Load(xPath, yPath string) ([]Sample, error) {
	xRows, err := readFloatRows(xPath)
	if err != nil {
		return nil, fmt.Errorf("mnist1d.Load: reading %s: %w", xPath, err)
	}
	yRows, err := readIntRows(yPath)
	if err != nil {
		return nil, fmt.Errorf("mnist1d.Load: reading %s: %w", yPath, err)
	}
	if len(xRows) != len(yRows) {
		return nil, fmt.Errorf("mnist1d.Load: row count mismatch: %d x rows, %d y rows", len(xRows), len(yRows))
	}

	samples := make([]Sample, len(xRows))
	for i := range xRows {
		samples[i] = Sample{X: xRows[i], Y: yRows[i]}
	}
	return samples, nil
}

func readFloatRows(path string) ([][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows [][]float32
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float32, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			row[i] = float32(v)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func readIntRows(path string) ([]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var labels []int
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		labels = append(labels, v)
	}
	return labels, scanner.Err()
}

// Shuffle permutes samples in place with r, the per-epoch reshuffle
// original_source/src/data_loader.h's randomIter performs before
// handing back its span.
func Shuffle(samples []Sample, r *rand.Rand) {
	r.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
}

// Batches splits samples into consecutive batches of size
// batchSize, the final batch short if len(samples) doesn't divide
// evenly.
func Batches(samples []Sample, batchSize int) [][]Sample {
	if batchSize <= 0 {
		return nil
	}
	var batches [][]Sample
	for i := 0; i < len(samples); i += batchSize {
		end := i + batchSize
		if end > len(samples) {
			end = len(samples)
		}
		batches = append(batches, samples[i:end])
	}
	return batches
}
