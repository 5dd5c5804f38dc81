package inference

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/arwrap/internal/tensor"
)

// successorScorer predicts (tok+1) % vocab at every position. With a large
// margin it reproduces any sequence of consecutive tokens almost perfectly.
type successorScorer struct {
	evalOnly
	vocab  int
	margin float32
	grad   bool

	gradDuringScore bool
	inputs          Batch
}

func (s *successorScorer) GradEnabled() bool     { return s.grad }
func (s *successorScorer) SetGradEnabled(v bool) { s.grad = v }

func (s *successorScorer) Score(_ context.Context, tokens Batch, _ Args) (*tensor.Scores, error) {
	s.gradDuringScore = s.grad
	s.inputs = tokens
	out := tensor.NewScores(len(tokens), len(tokens[0]), s.vocab)
	for b, row := range tokens {
		for t, tok := range row {
			scores := out.Row(b, t)
			for v := range scores {
				scores[v] = -s.margin
			}
			scores[(tok+1)%s.vocab] = 0
		}
	}
	return out, nil
}

func TestLossPerfectScorerNearZero(t *testing.T) {
	t.Parallel()
	s := &successorScorer{vocab: 16, margin: 60}
	loss, err := New(s).Loss(context.Background(), Batch{{1, 2, 3, 4}, {14, 15, 0, 1}}, nil)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if loss.Value < 0 || loss.Value > 1e-12 {
		t.Fatalf("expected loss near zero, got %v", loss.Value)
	}
	if loss.Tokens != 6 {
		t.Fatalf("expected 6 predicted positions, got %d", loss.Tokens)
	}
	if s.inputs[0][len(s.inputs[0])-1] != 3 || len(s.inputs[0]) != 3 {
		t.Fatalf("scorer should see all but the last token, got %v", s.inputs)
	}
}

func TestLossUniformScorer(t *testing.T) {
	t.Parallel()
	s := &successorScorer{vocab: 8, margin: 0}
	loss, err := New(s).Loss(context.Background(), Batch{{0, 5, 2}}, nil)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if want := math.Log(8); math.Abs(loss.Value-want) > 1e-9 {
		t.Fatalf("expected log(8)=%v, got %v", want, loss.Value)
	}
}

func TestLossGradient(t *testing.T) {
	t.Parallel()
	s := &successorScorer{vocab: 4, margin: 1}
	seq := Batch{{0, 2, 3}, {1, 2, 3}}
	loss, err := New(s).Loss(context.Background(), seq, nil)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if loss.Grad.B != 2 || loss.Grad.T != 2 || loss.Grad.V != 4 {
		t.Fatalf("unexpected grad shape %v", loss.Grad.Shape())
	}
	for b := 0; b < 2; b++ {
		for pos := 0; pos < 2; pos++ {
			row := loss.Grad.Row(b, pos)
			var sum float64
			for _, g := range row {
				sum += float64(g)
			}
			if math.Abs(sum) > 1e-6 {
				t.Fatalf("grad row (%d,%d) sums to %v, want 0", b, pos, sum)
			}
			target := seq[b][pos+1]
			if row[target] >= 0 {
				t.Fatalf("grad at target (%d,%d) should be negative, got %v", b, pos, row[target])
			}
		}
	}
}

func TestLossEnablesGradAndRestores(t *testing.T) {
	t.Parallel()
	s := &successorScorer{vocab: 4, margin: 1}
	if _, err := New(s).Loss(context.Background(), Batch{{0, 1}}, nil); err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if !s.gradDuringScore {
		t.Fatal("expected gradient tracking during Loss")
	}
	if s.grad {
		t.Fatal("gradient tracking not restored")
	}
}

func TestLossInvalidInput(t *testing.T) {
	t.Parallel()
	cases := map[string]Batch{
		"empty":        {},
		"single-token": {{1}},
		"ragged":       {{1, 2}, {1, 2, 3}},
		"out-of-vocab": {{1, 9}},
		"negative":     {{1, -1}},
	}
	for name, seq := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(&successorScorer{vocab: 4}).Loss(context.Background(), seq, nil)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestLossScorerErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := &scriptScorer{vocab: 4, err: boom}
	_, err := New(s).Loss(context.Background(), Batch{{1, 2}}, nil)
	if err != boom {
		t.Fatalf("expected scorer error unchanged, got %v", err)
	}
	if s.grad {
		t.Fatal("gradient tracking not restored after error")
	}
}
