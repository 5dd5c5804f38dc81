package tensor

import "math/rand"

// Mat represents a dense row‑major matrix of float32 values.
//
// R and C represent the number of rows and columns respectively.  Stride is the
// number of elements between the starts of two consecutive rows (for row‑major
// matrices this is equal to C).  Data holds the flattened matrix values.
//
// Mat does not perform any memory safety beyond the checks performed by Go's
// slice types; out‑of‑range indices will panic.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a new matrix with the given number of rows and columns.
// The underlying slice is zero initialised.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData creates a matrix from existing data.
// It checks that the data length matches r*c.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, errNegativeDim
	}
	if r*c != len(data) {
		return Mat{}, errDataSizeMismatch
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}, nil
}

// Row returns a view of the i‑th row of the matrix.  Modifications to the
// returned slice update the underlying matrix values.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// FillRand fills the matrix with reproducible pseudo‑random values in
// (-scale/2, scale/2).  Multiple calls with the same seed produce identical
// matrices.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}

var (
	errNegativeDim      = fmtError("negative dimension")
	errDataSizeMismatch = fmtError("data length mismatch")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
