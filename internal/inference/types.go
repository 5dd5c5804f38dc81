package inference

import (
	"context"
	"math/rand"

	"github.com/samcharles93/arwrap/internal/tensor"
)

// Batch is a rectangular batch of token sequences, batch × length.
type Batch [][]int

// Args are passed through to the scorer unchanged.
type Args map[string]any

// Scorer is the wrapped sequence model. Score maps a batch of sequences to
// per-position vocabulary scores shaped (batch, length, vocab).
type Scorer interface {
	Score(ctx context.Context, tokens Batch, args Args) (*tensor.Scores, error)
	Training() bool
	SetTraining(training bool)
}

// GradTracker is implemented by scorers that record what they need for a
// backward pass. Generate disables tracking; Loss enables it.
type GradTracker interface {
	GradEnabled() bool
	SetGradEnabled(enabled bool)
}

// GenerateOptions controls a single Generate call.
type GenerateOptions struct {
	// Steps bounds how many tokens are appended to every row.
	Steps int
	// Terminator, when set, stops generation once every row contains it.
	Terminator *int
	// Temperature divides the truncated scores before softmax. Must be > 0.
	Temperature float64
	// FilterThreshold in (0,1) keeps floor((1-FilterThreshold)*vocab) tokens.
	FilterThreshold float64
	Args            Args

	// Rand is the random source for sampling. When nil a source seeded with
	// Seed is used.
	Rand *rand.Rand
	Seed int64

	// OnStep is called after each step with the tokens just appended, one
	// per row.
	OnStep func(step int, next []int)
}

// DefaultGenerateOptions returns temperature 1.0 and filter threshold 0.9.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Temperature:     1.0,
		FilterThreshold: 0.9,
	}
}

// Loss is the mean cross-entropy of a teacher-forced batch.
type Loss struct {
	Value float64
	// Grad holds dValue/dScores, shaped like the scorer output. Scorers that
	// support training feed it to their own backward pass.
	Grad *tensor.Scores
	// Tokens is the number of predicted positions averaged over.
	Tokens int
}

// Ptr returns a pointer to v, for optional fields like Terminator.
func Ptr[T any](v T) *T {
	return &v
}
