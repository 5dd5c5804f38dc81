package toy

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/arwrap/internal/inference"
)

func newModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// TestScoreMatchesNaive compares Score against a hand-computed reference for
// the last position of a single row.
func TestScoreMatchesNaive(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 8, Hidden: 6, Buckets: 32, Seed: 5})
	row := []int{1, 3, 4}

	scores, err := m.Score(context.Background(), inference.Batch{row}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	h := append([]float32(nil), m.Emb.Row(m.bucket(row, 2))...)
	for i := range h {
		h[i] = float32(math.Tanh(float64(h[i])))
	}
	got := scores.Row(0, 2)
	for v := 0; v < 8; v++ {
		var want float32
		for i := range h {
			want += m.W.Row(v)[i] * h[i]
		}
		want += m.Bias[v]
		if math.Abs(float64(got[v]-want)) > 1e-5 {
			t.Fatalf("vocab %d: got %v, want %v", v, got[v], want)
		}
	}
}

func TestScoreDependsOnContextWindow(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 16, Hidden: 8, Buckets: 1024, Context: 2, Seed: 3})
	scores, err := m.Score(context.Background(), inference.Batch{{1, 5, 6}, {2, 5, 6}}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if diff := cmp.Diff(scores.Row(0, 2), scores.Row(1, 2)); diff != "" {
		t.Fatalf("same two-token context should score the same:\n%s", diff)
	}
}

func TestNewDeterministic(t *testing.T) {
	t.Parallel()
	a := newModel(t, Config{Seed: 9})
	b := newModel(t, Config{Seed: 9})
	if diff := cmp.Diff(a.W.Data, b.W.Data); diff != "" {
		t.Fatalf("same seed should build identical weights")
	}
	if a.Vocab() != 256 || a.Config().Hidden != 64 {
		t.Fatalf("defaults not applied: %+v", a.Config())
	}
}

func TestNewRejectsNegativeSizes(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Vocab: -1}); err == nil {
		t.Fatal("expected error for negative vocab")
	}
}

func TestScoreErrors(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 8, Hidden: 4, Buckets: 16})
	cases := map[string]struct {
		tokens inference.Batch
		args   inference.Args
	}{
		"empty":          {tokens: inference.Batch{}},
		"out-of-vocab":   {tokens: inference.Batch{{1, 8}}},
		"ragged":         {tokens: inference.Batch{{1, 2}, {1}}},
		"bad-bias-type":  {tokens: inference.Batch{{1}}, args: inference.Args{LogitBiasArg: "x"}},
		"bad-bias-token": {tokens: inference.Batch{{1}}, args: inference.Args{LogitBiasArg: map[int]float32{9: 1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Score(context.Background(), tc.tokens, tc.args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLogitBiasSteersGeneration(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 32, Hidden: 8, Buckets: 64})
	g := inference.New(m)
	opts := inference.DefaultGenerateOptions()
	opts.Steps = 8
	opts.Args = inference.Args{LogitBiasArg: map[int]float32{7: 1000}}

	got, err := g.Generate(context.Background(), inference.Batch{{1, 2}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff(inference.Batch{{7, 7, 7, 7, 7, 7, 7, 7}}, got); diff != "" {
		t.Fatalf("bias should force token 7 (-want +got):\n%s", diff)
	}
	if !m.Training() {
		t.Fatal("training mode not restored")
	}
}

func TestGenerateWithTerminator(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 64, Hidden: 8, Buckets: 128, Seed: 2})
	g := inference.New(m, inference.WithPadValue(63))
	opts := inference.DefaultGenerateOptions()
	opts.Steps = 40
	opts.FilterThreshold = 0.5
	opts.Terminator = inference.Ptr(5)
	opts.Seed = 17

	got, err := g.Generate(context.Background(), inference.Batch{{1}, {2}, {3}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for b, row := range got {
		if len(row) > 40 {
			t.Fatalf("row %d longer than requested: %d", b, len(row))
		}
		seen := false
		for _, tok := range row {
			if seen && tok != 63 {
				t.Fatalf("row %d has %d after terminator: %v", b, tok, row)
			}
			if tok == 5 && !seen {
				seen = true
			}
		}
	}
}

func TestApplyGradReducesLoss(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 16, Hidden: 16, Buckets: 64, Seed: 4})
	g := inference.New(m)
	seq := inference.Batch{{1, 2, 3, 4, 5, 6}, {6, 5, 4, 3, 2, 1}}

	first, err := g.Loss(context.Background(), seq, nil)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if m.GradEnabled() {
		t.Fatal("gradient tracking should be restored after Loss")
	}
	loss := first
	for i := 0; i < 100; i++ {
		if err := m.ApplyGrad(loss.Grad, 0.1); err != nil {
			t.Fatalf("ApplyGrad: %v", err)
		}
		if loss, err = g.Loss(context.Background(), seq, nil); err != nil {
			t.Fatalf("Loss: %v", err)
		}
	}
	if loss.Value >= first.Value {
		t.Fatalf("loss did not decrease: %v -> %v", first.Value, loss.Value)
	}
}

func TestApplyGradNeedsTrackedScore(t *testing.T) {
	t.Parallel()
	m := newModel(t, Config{Vocab: 8, Hidden: 4, Buckets: 16})
	scores, err := m.Score(context.Background(), inference.Batch{{1, 2}}, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if err := m.ApplyGrad(scores, 0.1); err == nil {
		t.Fatal("expected error without a tracked Score call")
	}
}
