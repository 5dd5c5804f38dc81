package inference

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/samcharles93/arwrap/internal/logger"
	"github.com/samcharles93/arwrap/internal/logits"
	"github.com/samcharles93/arwrap/internal/tensor"
)

const defaultMaxSeqLen = 2048

// Generator adds sampling-based generation and a teacher-forced loss on top
// of a Scorer. A Generator is not safe for concurrent use: both calls toggle
// the scorer's mode.
type Generator struct {
	scorer    Scorer
	maxSeqLen int
	padValue  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxSeqLen caps prompt length plus requested steps. Zero disables the cap.
func WithMaxSeqLen(n int) Option {
	return func(g *Generator) { g.maxSeqLen = n }
}

// WithPadValue sets the token written after a row's first terminator.
func WithPadValue(v int) Option {
	return func(g *Generator) { g.padValue = v }
}

// New wraps scorer. Defaults: max sequence length 2048, pad value 0.
func New(scorer Scorer, opts ...Option) *Generator {
	g := &Generator{scorer: scorer, maxSeqLen: defaultMaxSeqLen}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) MaxSeqLen() int { return g.maxSeqLen }
func (g *Generator) PadValue() int  { return g.padValue }

// Generate samples up to opts.Steps tokens for every row of start and returns
// only the generated suffix.
//
// Each step scores the whole sequence, keeps the top
// floor((1-FilterThreshold)*vocab) scores of the last position, applies
// softmax at the given temperature and draws one token per row. When a
// terminator is set and every row contains it, generation stops and every
// token after each row's first terminator is replaced by the pad value. Rows
// that emitted the terminator are padded the same way when the step budget
// runs out first.
//
// The scorer runs in inference mode without gradient tracking; its previous
// mode is restored on return, including on error or panic.
func (g *Generator) Generate(ctx context.Context, start Batch, opts GenerateOptions) (Batch, error) {
	if err := g.validateGenerate(start, opts); err != nil {
		return nil, err
	}
	defer evalMode(g.scorer)()

	log := logger.FromContext(ctx).With("component", "generator")
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	sampler := logits.NewSamplerWithRand(logits.SamplerConfig{
		Seed:            opts.Seed,
		Temperature:     opts.Temperature,
		FilterThreshold: opts.FilterThreshold,
	}, rng)

	prefix := len(start[0])
	out := make(Batch, len(start))
	for b, row := range start {
		out[b] = make([]int, prefix, prefix+opts.Steps)
		copy(out[b], row)
	}

	began := time.Now()
	next := make([]int, len(out))
	steps := 0
	early := false
	for steps < opts.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores, err := g.scorer.Score(ctx, out, opts.Args)
		if err != nil {
			return nil, err
		}
		if err := checkScores(scores, len(out), len(out[0])); err != nil {
			return nil, err
		}
		for b := range out {
			tok, err := sampler.Sample(scores.Row(b, scores.T-1))
			if err != nil {
				return nil, fmt.Errorf("step %d, row %d: %w", steps, b, err)
			}
			next[b] = tok
		}
		for b := range out {
			out[b] = append(out[b], next[b])
		}
		steps++
		if opts.OnStep != nil {
			opts.OnStep(steps-1, slices.Clone(next))
		}

		if opts.Terminator != nil && allContain(out, *opts.Terminator) {
			early = true
			break
		}
	}
	if opts.Terminator != nil {
		padAfterFirst(out, *opts.Terminator, g.padValue)
	}

	log.Debug("generation finished",
		"batch", len(out),
		"prompt_len", prefix,
		"steps", steps,
		"requested", opts.Steps,
		"early_stop", early,
		"elapsed", time.Since(began),
	)

	suffix := make(Batch, len(out))
	for b := range out {
		suffix[b] = out[b][prefix:]
	}
	return suffix, nil
}

func (g *Generator) validateGenerate(start Batch, opts GenerateOptions) error {
	if err := validateBatch(start); err != nil {
		return err
	}
	if opts.Steps < 0 {
		return invalidConfig("steps must be >= 0, got %d", opts.Steps)
	}
	if !(opts.Temperature > 0) {
		return invalidConfig("temperature must be > 0, got %v", opts.Temperature)
	}
	if !(opts.FilterThreshold > 0 && opts.FilterThreshold < 1) {
		return invalidConfig("filter threshold must be in (0,1), got %v", opts.FilterThreshold)
	}
	if g.maxSeqLen > 0 && len(start[0])+opts.Steps > g.maxSeqLen {
		return invalidConfig("prompt length %d plus %d steps exceeds max sequence length %d",
			len(start[0]), opts.Steps, g.maxSeqLen)
	}
	return nil
}

func validateBatch(batch Batch) error {
	if len(batch) == 0 {
		return invalidConfig("batch is empty")
	}
	width := len(batch[0])
	if width == 0 {
		return invalidConfig("sequences are empty")
	}
	for b, row := range batch {
		if len(row) != width {
			return invalidConfig("ragged batch: row %d has length %d, row 0 has %d", b, len(row), width)
		}
	}
	return nil
}

func checkScores(scores *tensor.Scores, batch, length int) error {
	if scores == nil {
		return scorerContract("nil scores")
	}
	if scores.B != batch || scores.T != length || scores.V < 1 {
		return scorerContract("scores shaped %v for batch %d, length %d", scores.Shape(), batch, length)
	}
	return nil
}

// allContain reports whether every row holds tok at least once.
func allContain(batch Batch, tok int) bool {
	for _, row := range batch {
		if !slices.Contains(row, tok) {
			return false
		}
	}
	return true
}

// padAfterFirst overwrites every position strictly after the first tok in
// each row with pad. Rows without tok are left alone.
func padAfterFirst(batch Batch, tok, pad int) {
	for _, row := range batch {
		i := slices.Index(row, tok)
		if i < 0 {
			continue
		}
		for j := i + 1; j < len(row); j++ {
			row[j] = pad
		}
	}
}
