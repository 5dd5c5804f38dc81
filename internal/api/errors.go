package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/arwrap/internal/inference"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// writeInferenceError maps generator errors onto HTTP responses.
func writeInferenceError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, inference.ErrInvalidConfiguration):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, inference.ErrDegenerateDistribution):
		return writeError(c, http.StatusUnprocessableEntity, "degenerate_distribution", err.Error(), "filter_threshold", "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeError(c, http.StatusServiceUnavailable, "request_cancelled", err.Error(), "", "")
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
}
