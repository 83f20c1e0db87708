// Package matrix provides the small dense matrix type used for
// curvature based diagnostics (Hessians, Fisher information).
package matrix

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gonum/matrix/mat64"
)

// Matrix is a dense row-major matrix.
type Matrix struct {
	data  []float64
	dense *mat64.Dense
}

// NewFromArray creates a matrix backed by data.
func NewFromArray(data []float64, n1 int, n2 int) (*Matrix, error) {
	if n1 < 1 || n2 < 1 {
		return nil, errors.New("matrix dimensions should be > 0")
	}
	if len(data) != n1*n2 {
		return nil, errors.New("matrix dimensions don't match slice size")
	}
	return &Matrix{data, mat64.NewDense(n1, n2, data)}, nil
}

// New creates a zero matrix.
func New(n1 int, n2 int) (*Matrix, error) {
	if n1 < 1 || n2 < 1 {
		return nil, errors.New("matrix dimensions should be > 0")
	}
	return NewFromArray(make([]float64, n1*n2), n1, n2)
}

// String returns at most 10x10 items of the matrix.
func (m *Matrix) String() string {
	var buffer bytes.Buffer
	if m == nil || m.data == nil {
		return "<Uninitialized matrix>"
	}
	n1, n2 := m.GetSize()
	buffer.WriteString("<Matrix\n")
	for i1 := 0; i1 < n1; i1++ {
		if i1 == 10 {
			buffer.WriteString("...\n")
			break
		}
		buffer.WriteString("  ")
		for i2 := 0; i2 < n2; i2++ {
			if i2 == 10 {
				buffer.WriteString("...")
				break
			}
			buffer.WriteString(strconv.FormatFloat(m.GetItem(i1, i2), 'E', 3, 64))
			if i2 < n2-1 {
				buffer.WriteByte('\t')
			}
		}
		buffer.WriteByte('\n')
	}
	buffer.WriteByte('>')
	return buffer.String()
}

// Empty returns a zero matrix of the same size.
func (m *Matrix) Empty() *Matrix {
	nm, _ := New(m.GetSize())
	return nm
}

// Copy copies m into dest, which must have the same size.
func (m *Matrix) Copy(dest *Matrix) {
	copy(dest.data, m.data)
}

// Scale multiplies every item by x.
func (m *Matrix) Scale(x float64) {
	for i := range m.data {
		m.data[i] *= x
	}
}

// SetItem sets item (i1, i2).
func (m *Matrix) SetItem(i1, i2 int, x float64) {
	m.dense.Set(i1, i2, x)
}

// GetItem returns item (i1, i2).
func (m *Matrix) GetItem(i1, i2 int) float64 {
	return m.dense.At(i1, i2)
}

// GetSize returns number of rows and columns.
func (m *Matrix) GetSize() (int, int) {
	return m.dense.Dims()
}

// Symmetrize replaces m with (m + m^T) / 2.
func (m *Matrix) Symmetrize() error {
	n1, n2 := m.GetSize()
	if n1 != n2 {
		return errors.New("only square matrices can be symmetrized")
	}
	for i := 0; i < n1; i++ {
		for j := i + 1; j < n2; j++ {
			v := (m.GetItem(i, j) + m.GetItem(j, i)) / 2
			m.SetItem(i, j, v)
			m.SetItem(j, i, v)
		}
	}
	return nil
}

// Inverse returns the inverse of a square matrix. An error is
// returned if the matrix is singular.
func (m *Matrix) Inverse() (*Matrix, error) {
	n1, n2 := m.GetSize()
	if n1 != n2 {
		return nil, errors.New("only square matrices can be inverted")
	}
	inv := m.Empty()
	if err := inv.dense.Inverse(m.dense); err != nil {
		return nil, err
	}
	return inv, nil
}

// Solve returns x solving m*x = b.
func (m *Matrix) Solve(b []float64) ([]float64, error) {
	n1, n2 := m.GetSize()
	if n1 != n2 {
		return nil, errors.New("only square systems can be solved")
	}
	if len(b) != n1 {
		return nil, errors.New("right hand side length doesn't match matrix size")
	}
	x := mat64.NewVector(n2, nil)
	if err := x.SolveVec(m.dense, mat64.NewVector(n1, append([]float64(nil), b...))); err != nil {
		return nil, err
	}
	res := make([]float64, n2)
	for i := range res {
		res[i] = x.At(i, 0)
	}
	return res, nil
}

// MulVec returns m*v.
func (m *Matrix) MulVec(v []float64) []float64 {
	n1, n2 := m.GetSize()
	if len(v) != n2 {
		panic("vector length doesn't match matrix size")
	}
	res := make([]float64, n1)
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			res[i] += m.GetItem(i, j) * v[j]
		}
	}
	return res
}
