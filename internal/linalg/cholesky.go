// Package linalg factors correlation matrices so independent normal draws can
// be turned into correlated ones.
package linalg

import (
	"math"

	"github.com/san-kum/stochsim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

const symmetryTol = 1e-12

// Factor is the lower-triangular Cholesky factor L of a correlation matrix C,
// with L*Lᵀ = C. It is immutable after construction and safe to share between
// goroutines.
type Factor struct {
	n     int
	lower []float64 // row-major, upper triangle zero
}

// Factorize validates matrix as a correlation matrix and returns its Cholesky
// factor. The matrix must be square, symmetric, have a unit diagonal, entries
// in [-1,1], and every elimination pivot must stay positive.
func Factorize(matrix [][]float64) (*Factor, error) {
	n := len(matrix)
	if n == 0 {
		return nil, dynamo.Configf("correlation", "matrix is empty")
	}

	data := make([]float64, n*n)
	for i, row := range matrix {
		if len(row) != n {
			return nil, dynamo.Mismatchf("correlation", "row %d has %d entries, want %d", i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || v < -1 || v > 1 {
				return nil, dynamo.Configf("correlation", "entry (%d,%d)=%v outside [-1,1]", i, j, v)
			}
			data[i*n+j] = v
		}
	}

	for i := 0; i < n; i++ {
		if data[i*n+i] != 1 {
			return nil, dynamo.Configf("correlation", "diagonal entry (%d,%d)=%v, want 1", i, i, data[i*n+i])
		}
		for j := i + 1; j < n; j++ {
			if math.Abs(data[i*n+j]-data[j*n+i]) > symmetryTol {
				return nil, dynamo.Configf("correlation", "matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, data)); !ok {
		return nil, dynamo.Configf("correlation", "correlation matrix is not positive semi-definite")
	}

	var l mat.TriDense
	chol.LTo(&l)

	f := &Factor{n: n, lower: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			f.lower[i*n+j] = l.At(i, j)
		}
	}
	return f, nil
}

// Identity returns the factor of the n×n identity matrix.
func Identity(n int) *Factor {
	f := &Factor{n: n, lower: make([]float64, n*n)}
	for i := 0; i < n; i++ {
		f.lower[i*n+i] = 1
	}
	return f
}

func (f *Factor) Dim() int { return f.n }

func (f *Factor) At(i, j int) float64 { return f.lower[i*f.n+j] }

// Lower returns a copy of L as nested rows.
func (f *Factor) Lower() [][]float64 {
	rows := make([][]float64, f.n)
	for i := range rows {
		rows[i] = append([]float64(nil), f.lower[i*f.n:(i+1)*f.n]...)
	}
	return rows
}

// Correlate writes L*z into dst. dst and z must both have length Dim and must
// not alias.
func (f *Factor) Correlate(dst, z []float64) {
	n := f.n
	for i := 0; i < n; i++ {
		row := f.lower[i*n : i*n+i+1]
		sum := 0.0
		for j, l := range row {
			sum += l * z[j]
		}
		dst[i] = sum
	}
}

// Reconstruct returns L*Lᵀ.
func (f *Factor) Reconstruct() [][]float64 {
	l := mat.NewDense(f.n, f.n, append([]float64(nil), f.lower...))
	var c mat.Dense
	c.Mul(l, l.T())

	out := make([][]float64, f.n)
	for i := range out {
		out[i] = mat.Row(nil, i, &c)
	}
	return out
}
