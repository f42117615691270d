// Package vision talks to the multimodal model that turns an image into a
// structured RawAnalysis.
package vision

import (
	"context"
	"errors"

	"github.com/example/ecoclassify/internal/domain"
)

// ErrMalformedResponse means the model answered but not with the expected structure.
var ErrMalformedResponse = errors.New("malformed model response")

// Model is a vision capable model producing a structured analysis of one image.
// Implementations make exactly one provider call per invocation and leave
// retries to the caller.
type Model interface {
	GenerateStructuredAnalysis(ctx context.Context, img *domain.Image) (*domain.RawAnalysis, error)
	Name() string
}

// UpstreamError wraps a provider failure with its HTTP status, if any.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Temporary reports rate limiting and provider side failures.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
