package tensor

import "fmt"

// Scores holds per-position vocabulary scores shaped (batch, length, vocab)
// in row-major order.
type Scores struct {
	B, T, V int
	Data    []float32
}

// NewScores allocates a zeroed (b, t, v) score tensor.
func NewScores(b, t, v int) *Scores {
	if b < 0 || t < 0 || v < 0 {
		panic("negative dimension for scores")
	}
	return &Scores{B: b, T: t, V: v, Data: make([]float32, b*t*v)}
}

// ScoresFromData wraps data as a (b, t, v) score tensor without copying.
func ScoresFromData(b, t, v int, data []float32) (*Scores, error) {
	if b < 0 || t < 0 || v < 0 {
		return nil, errNegativeDim
	}
	if b*t*v != len(data) {
		return nil, fmt.Errorf("%w: have %d values for shape (%d, %d, %d)", errDataSizeMismatch, len(data), b, t, v)
	}
	return &Scores{B: b, T: t, V: v, Data: data}, nil
}

// Row returns the vocab vector at batch element b, position t. The slice
// aliases the underlying data.
func (s *Scores) Row(b, t int) []float32 {
	if b < 0 || b >= s.B || t < 0 || t >= s.T {
		panic("scores index out of range")
	}
	off := (b*s.T + t) * s.V
	return s.Data[off : off+s.V]
}

// Shape returns the three axes as a slice, mostly for error messages.
func (s *Scores) Shape() []int {
	return []int{s.B, s.T, s.V}
}
