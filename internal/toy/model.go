package toy

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/samcharles93/arwrap/internal/inference"
	"github.com/samcharles93/arwrap/internal/tensor"
)

// LogitBiasArg is the Args key for a map[int]float32 of per-token score
// offsets added after the projection.
const LogitBiasArg = "logit_bias"

// Config sizes a Model. Zero fields take the defaults from DefaultConfig.
type Config struct {
	Vocab   int   `yaml:"vocab" json:"vocab"`
	Hidden  int   `yaml:"hidden" json:"hidden"`
	Buckets int   `yaml:"buckets" json:"buckets"`
	Context int   `yaml:"context" json:"context"`
	Seed    int64 `yaml:"seed" json:"seed"`
}

// DefaultConfig is a byte-level model: 256 tokens, 64 hidden units, 4096
// hash buckets over a two-token context.
func DefaultConfig() Config {
	return Config{Vocab: 256, Hidden: 64, Buckets: 4096, Context: 2, Seed: 1}
}

// Model is a small hashed-context language model used to drive the CLI, the
// HTTP server and tests. The last Context tokens at each position are hashed
// into one of Buckets embedding rows; the row goes through tanh and a linear
// projection to vocab scores:
//
//	h      = tanh(Emb[xxhash(ctx) % Buckets])
//	scores = W·h + Bias
//
// Model implements inference.Scorer and inference.GradTracker. A Score call
// made with gradient tracking on keeps its hidden states so ApplyGrad can
// update W and Bias afterwards.
type Model struct {
	cfg  Config
	Emb  tensor.Mat // [Buckets x Hidden]
	W    tensor.Mat // [Vocab x Hidden]
	Bias []float32  // [Vocab]

	training bool
	grad     bool
	hidden   [][]float32 // [batch*length][Hidden] from the last tracked Score
	keyBuf   []byte
}

// New builds a model with weights drawn deterministically from cfg.Seed.
func New(cfg Config) (*Model, error) {
	def := DefaultConfig()
	if cfg.Vocab == 0 {
		cfg.Vocab = def.Vocab
	}
	if cfg.Hidden == 0 {
		cfg.Hidden = def.Hidden
	}
	if cfg.Buckets == 0 {
		cfg.Buckets = def.Buckets
	}
	if cfg.Context == 0 {
		cfg.Context = def.Context
	}
	if cfg.Vocab < 1 || cfg.Hidden < 1 || cfg.Buckets < 1 || cfg.Context < 1 {
		return nil, fmt.Errorf("toy model: invalid config %+v", cfg)
	}
	m := &Model{
		cfg:      cfg,
		Emb:      tensor.NewMat(cfg.Buckets, cfg.Hidden),
		W:        tensor.NewMat(cfg.Vocab, cfg.Hidden),
		Bias:     make([]float32, cfg.Vocab),
		training: true,
	}
	tensor.FillRand(&m.Emb, cfg.Seed+11, 4)
	tensor.FillRand(&m.W, cfg.Seed+23, 2)
	return m, nil
}

func (m *Model) Config() Config { return m.cfg }
func (m *Model) Vocab() int     { return m.cfg.Vocab }

func (m *Model) Training() bool              { return m.training }
func (m *Model) SetTraining(training bool)   { m.training = training }
func (m *Model) GradEnabled() bool           { return m.grad }
func (m *Model) SetGradEnabled(enabled bool) { m.grad = enabled }

// Score returns (batch, length, vocab) scores for tokens.
func (m *Model) Score(ctx context.Context, tokens inference.Batch, args inference.Args) (*tensor.Scores, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("toy model: empty input")
	}
	bias, err := logitBias(args, m.cfg.Vocab)
	if err != nil {
		return nil, err
	}
	length := len(tokens[0])
	out := tensor.NewScores(len(tokens), length, m.cfg.Vocab)
	m.hidden = nil
	if m.grad {
		m.hidden = make([][]float32, 0, len(tokens)*length)
	}

	h := make([]float32, m.cfg.Hidden)
	for b, row := range tokens {
		if len(row) != length {
			return nil, fmt.Errorf("toy model: ragged batch at row %d", b)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for t := range row {
			if tok := row[t]; tok < 0 || tok >= m.cfg.Vocab {
				return nil, fmt.Errorf("toy model: token %d outside vocab of %d", tok, m.cfg.Vocab)
			}
			copy(h, m.Emb.Row(m.bucket(row, t)))
			tensor.Tanh(h)
			dst := out.Row(b, t)
			tensor.MatVec(dst, &m.W, h)
			tensor.Add(dst, m.Bias)
			for id, v := range bias {
				dst[id] += v
			}
			if m.grad {
				m.hidden = append(m.hidden, append([]float32(nil), h...))
			}
		}
	}
	return out, nil
}

// ApplyGrad takes one SGD step on W and Bias from the gradient of the most
// recent Score call made with gradient tracking on.
func (m *Model) ApplyGrad(grad *tensor.Scores, lr float32) error {
	if grad == nil || grad.V != m.cfg.Vocab || grad.B*grad.T != len(m.hidden) {
		return fmt.Errorf("toy model: gradient does not match the last tracked Score call")
	}
	for b := 0; b < grad.B; b++ {
		for t := 0; t < grad.T; t++ {
			g := grad.Row(b, t)
			h := m.hidden[b*grad.T+t]
			for v, gv := range g {
				if gv == 0 {
					continue
				}
				step := lr * gv
				m.Bias[v] -= step
				w := m.W.Row(v)
				for i, hi := range h {
					w[i] -= step * hi
				}
			}
		}
	}
	return nil
}

func (m *Model) bucket(row []int, t int) int {
	start := max(0, t-m.cfg.Context+1)
	m.keyBuf = m.keyBuf[:0]
	for _, tok := range row[start : t+1] {
		m.keyBuf = binary.LittleEndian.AppendUint32(m.keyBuf, uint32(tok))
	}
	return int(xxhash.Sum64(m.keyBuf) % uint64(m.cfg.Buckets))
}

func logitBias(args inference.Args, vocab int) (map[int]float32, error) {
	raw, ok := args[LogitBiasArg]
	if !ok || raw == nil {
		return nil, nil
	}
	bias, ok := raw.(map[int]float32)
	if !ok {
		return nil, fmt.Errorf("toy model: %s must be map[int]float32, got %T", LogitBiasArg, raw)
	}
	for id := range bias {
		if id < 0 || id >= vocab {
			return nil, fmt.Errorf("toy model: %s token %d outside vocab of %d", LogitBiasArg, id, vocab)
		}
	}
	return bias, nil
}
