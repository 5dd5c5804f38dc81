package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrDegenerateDistribution is returned when truncation or normalisation
// leaves no token with non-zero probability.
var ErrDegenerateDistribution = errors.New("degenerate_distribution")

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed            int64
	Temperature     float64
	FilterThreshold float64
}

// Sampler draws tokens from score vectors. It keeps scratch buffers between
// calls and is not safe for concurrent use.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	topIdx []int
	topVal []float32
	buf    []float32
	prob   []float64
}

// NewSampler returns a sampler seeded from cfg.Seed. Temperature and
// FilterThreshold are used as given; callers validate them.
func NewSampler(cfg SamplerConfig) *Sampler {
	return NewSamplerWithRand(cfg, rand.New(rand.NewSource(cfg.Seed)))
}

// NewSamplerWithRand returns a sampler drawing from rng.
func NewSamplerWithRand(cfg SamplerConfig, rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng, cfg: cfg}
}

// Sample draws a single index from the provided score vector:
//
//  1. k = TopKCount(FilterThreshold, len(scores)) entries survive, the rest
//     become -Inf.
//  2. The survivors are divided by Temperature and normalised with softmax.
//  3. A value drawn from [0,1) selects an index from the distribution.
//
// scores is not modified.
func (s *Sampler) Sample(scores []float32) (int, error) {
	k := TopKCount(s.cfg.FilterThreshold, len(scores))
	if cap(s.buf) < len(scores) {
		s.buf = make([]float32, len(scores))
	}
	filtered, err := s.truncate(s.buf[:len(scores)], scores, k)
	if err != nil {
		return 0, err
	}
	prob, err := softmaxInto(s.prob, filtered, s.cfg.Temperature)
	if err != nil {
		return 0, err
	}
	s.prob = prob
	return Draw(s.rng, prob), nil
}

// TopKCount returns how many entries survive truncation for a vocabulary of
// size vocab: floor((1 - threshold) * vocab).
func TopKCount(threshold float64, vocab int) int {
	return int((1 - threshold) * float64(vocab))
}

// TruncateTopK returns a copy of scores where only the k highest entries keep
// their value and every other entry is -Inf. Ties keep the lower index.
func TruncateTopK(scores []float32, k int) ([]float32, error) {
	var s Sampler
	return s.truncate(make([]float32, len(scores)), scores, k)
}

func (s *Sampler) truncate(dst, scores []float32, k int) ([]float32, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: top-k keeps %d of %d entries", ErrDegenerateDistribution, k, len(scores))
	}
	k = min(k, len(scores))
	topIdx := s.topK(scores, k)
	negInf := float32(math.Inf(-1))
	for i := range dst {
		dst[i] = negInf
	}
	for _, i := range topIdx {
		dst[i] = scores[i]
	}
	return dst, nil
}

// Softmax scales scores by 1/temperature and normalises them into a
// probability distribution. A row without any finite entry has no defined
// distribution and yields ErrDegenerateDistribution.
func Softmax(scores []float32, temperature float64) ([]float64, error) {
	return softmaxInto(nil, scores, temperature)
}

func softmaxInto(prob []float64, scores []float32, temperature float64) ([]float64, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: empty score vector", ErrDegenerateDistribution)
	}
	invTemp := 1.0 / temperature
	maxv := math.Inf(-1)
	for _, v := range scores {
		if x := float64(v) * invTemp; x > maxv {
			maxv = x
		}
	}
	if math.IsInf(maxv, 0) || math.IsNaN(maxv) {
		return nil, fmt.Errorf("%w: no finite score to normalise", ErrDegenerateDistribution)
	}

	if cap(prob) < len(scores) {
		prob = make([]float64, len(scores))
	}
	prob = prob[:len(scores)]
	var sum float64
	for i, v := range scores {
		e := math.Exp(float64(v)*invTemp - maxv)
		prob[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("%w: normaliser is %v", ErrDegenerateDistribution, sum)
	}
	invSum := 1.0 / sum
	for i := range prob {
		prob[i] *= invSum
	}
	return prob, nil
}

// Draw selects an index from prob using one value from rng. Entries with zero
// probability are never returned.
func Draw(rng *rand.Rand, prob []float64) int {
	r := rng.Float64()
	var c float64
	last := -1
	for i, p := range prob {
		if p <= 0 {
			continue
		}
		c += p
		last = i
		if r < c {
			return i
		}
	}
	// Rounding can leave the cumulative sum just below r.
	return last
}

// topK returns the indices of the k largest elements in scores, ordered from
// largest to smallest. This is an O(V*K) insertion scan.
func (s *Sampler) topK(scores []float32, k int) []int {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, v := range scores {
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx
}
