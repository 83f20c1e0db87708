package psi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Data is a sequence of blocks, each block being a stimulus
// intensity, a number of correct (positive) responses and a number of
// trials. Block order is meaningful for Rkd.
type Data struct {
	Intensities []float64
	NCorrect    []int
	NTrials     []int
}

// NewData creates a new data set and checks that it is consistent.
func NewData(x []float64, k, n []int) (*Data, error) {
	if len(x) == 0 {
		return nil, errors.New("Data should have at least one block")
	}
	if len(x) != len(k) || len(x) != len(n) {
		return nil, fmt.Errorf("Data length mismatch: %d intensities, %d responses, %d trials",
			len(x), len(k), len(n))
	}
	for i := range x {
		if math.IsNaN(x[i]) || math.IsInf(x[i], 0) {
			return nil, fmt.Errorf("Block %d: intensity should be finite, got %v", i, x[i])
		}
		if n[i] <= 0 {
			return nil, fmt.Errorf("Block %d: number of trials should be positive, got %d", i, n[i])
		}
		if k[i] < 0 || k[i] > n[i] {
			return nil, fmt.Errorf("Block %d: number of correct responses (%d) is not in [0, %d]", i, k[i], n[i])
		}
	}
	return &Data{
		Intensities: x,
		NCorrect:    k,
		NTrials:     n,
	}, nil
}

// NBlocks returns the number of blocks.
func (d *Data) NBlocks() int {
	return len(d.Intensities)
}

// PCorrect returns the observed fraction of correct responses in
// block i.
func (d *Data) PCorrect(i int) float64 {
	return float64(d.NCorrect[i]) / float64(d.NTrials[i])
}

// Copy creates a copy of the data which can be modified
// independently.
func (d *Data) Copy() *Data {
	return &Data{
		Intensities: append([]float64(nil), d.Intensities...),
		NCorrect:    append([]int(nil), d.NCorrect...),
		NTrials:     append([]int(nil), d.NTrials...),
	}
}

// readCount parses a non-negative integer count which may be written
// as a float, e.g. "12.0".
func readCount(s string) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("count should be an integer, got %s", s)
	}
	return int(f), nil
}

// ReadData reads blocks from r. Every non-empty line contains
// three whitespace separated fields: intensity, number of correct
// responses and number of trials. Everything after # is ignored.
func ReadData(r io.Reader) (*Data, error) {
	var x []float64
	var k, n []int
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		s := scanner.Text()
		if i := strings.IndexByte(s, '#'); i >= 0 {
			s = s[:i]
		}
		fields := strings.Fields(s)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", line, len(fields))
		}
		xi, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ki, err := readCount(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ni, err := readCount(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		x = append(x, xi)
		k = append(k, ki)
		n = append(n, ni)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewData(x, k, n)
}
