package inference

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/samcharles93/arwrap/internal/logger"
	"github.com/samcharles93/arwrap/internal/tensor"
)

// Loss scores seq[:, :-1] once and returns the mean cross-entropy against
// seq[:, 1:] over every batch element and position, together with its
// gradient with respect to the scores. Gradient tracking is enabled on the
// scorer for the call.
func (g *Generator) Loss(ctx context.Context, seq Batch, args Args) (*Loss, error) {
	if err := validateBatch(seq); err != nil {
		return nil, err
	}
	if len(seq[0]) < 2 {
		return nil, invalidConfig("loss needs sequences of length >= 2, got %d", len(seq[0]))
	}
	defer gradMode(g.scorer, true)()

	inputs := make(Batch, len(seq))
	targets := make(Batch, len(seq))
	for b, row := range seq {
		inputs[b] = slices.Clone(row[:len(row)-1])
		targets[b] = row[1:]
	}

	scores, err := g.scorer.Score(ctx, inputs, args)
	if err != nil {
		return nil, err
	}
	if err := checkScores(scores, len(inputs), len(inputs[0])); err != nil {
		return nil, err
	}

	n := scores.B * scores.T
	invN := 1.0 / float64(n)
	grad := tensor.NewScores(scores.B, scores.T, scores.V)
	var total float64
	for b := 0; b < scores.B; b++ {
		for t := 0; t < scores.T; t++ {
			target := targets[b][t]
			if target < 0 || target >= scores.V {
				return nil, invalidConfig("target token %d at (%d, %d) outside vocab of %d", target, b, t, scores.V)
			}
			row := scores.Row(b, t)
			lse, err := logSumExp(row)
			if err != nil {
				return nil, fmt.Errorf("position (%d, %d): %w", b, t, err)
			}
			total += lse - float64(row[target])

			gr := grad.Row(b, t)
			for v, x := range row {
				gr[v] = float32(math.Exp(float64(x)-lse) * invN)
			}
			gr[target] -= float32(invN)
		}
	}

	loss := &Loss{Value: total * invN, Grad: grad, Tokens: n}
	logger.FromContext(ctx).Debug("loss computed",
		"component", "generator",
		"batch", scores.B,
		"positions", scores.T,
		"loss", loss.Value,
	)
	return loss, nil
}

func logSumExp(row []float32) (float64, error) {
	maxv := math.Inf(-1)
	for _, x := range row {
		maxv = math.Max(maxv, float64(x))
	}
	if math.IsInf(maxv, 0) || math.IsNaN(maxv) {
		return 0, fmt.Errorf("%w: no finite score to normalise", ErrDegenerateDistribution)
	}
	var sum float64
	for _, x := range row {
		sum += math.Exp(float64(x) - maxv)
	}
	return maxv + math.Log(sum), nil
}
