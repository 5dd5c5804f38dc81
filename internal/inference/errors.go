package inference

import (
	"errors"
	"fmt"

	"github.com/samcharles93/arwrap/internal/logits"
)

var (
	// ErrInvalidConfiguration covers bad call parameters: temperature <= 0,
	// filter threshold outside (0,1), empty or ragged batches, sequences too
	// short for a loss, or requests beyond the max sequence length.
	ErrInvalidConfiguration = errors.New("invalid_configuration")

	// ErrScorerContract means the scorer returned scores whose shape does not
	// match the batch it was given.
	ErrScorerContract = errors.New("scorer_contract")

	// ErrDegenerateDistribution is returned when truncation leaves nothing to
	// sample from.
	ErrDegenerateDistribution = logits.ErrDegenerateDistribution
)

type configError struct {
	msg string
}

func (e configError) Error() string { return e.msg }

func (e configError) Unwrap() error { return ErrInvalidConfiguration }

func invalidConfig(format string, args ...any) error {
	return configError{msg: fmt.Sprintf(format, args...)}
}

func scorerContract(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrScorerContract}, args...)...)
}
