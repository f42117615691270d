// Package analysis turns an image reference into the model's raw analysis.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/imagefetch"
	"github.com/example/ecoclassify/internal/imageproc"
	"github.com/example/ecoclassify/internal/vision"
)

// Analyzer resolves, normalizes and analyzes one image. It never retries.
type Analyzer struct {
	fetcher imagefetch.Fetcher
	model   vision.Model
	opts    imageproc.Options
	logger  *zap.Logger
}

// NewAnalyzer builds an Analyzer. A nil logger discards logs.
func NewAnalyzer(fetcher imagefetch.Fetcher, model vision.Model, opts imageproc.Options, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{fetcher: fetcher, model: model, opts: opts, logger: logger}
}

// ModelName is the name of the underlying vision model.
func (a *Analyzer) ModelName() string {
	return a.model.Name()
}

// Analyze returns a *domain.FetchError when the image cannot be obtained or
// decoded, in which case the model is never called, and a *domain.ModelError
// when the model call fails.
func (a *Analyzer) Analyze(ctx context.Context, ref domain.ImageReference) (*domain.RawAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ModelError{Reason: domain.ModelErrorCancelled, Model: a.model.Name(), Err: err}
	}

	data, contentType, err := a.resolve(ctx, ref)
	if err != nil {
		return nil, &domain.FetchError{Source: ref.String(), Err: err}
	}

	img, err := imageproc.Normalize(data, contentType, a.opts)
	if err != nil {
		return nil, &domain.FetchError{Source: ref.String(), Err: err}
	}

	a.logger.Debug("image normalized",
		zap.String("source_format", img.SourceFormat),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Int("bytes", len(img.Data)),
	)

	start := time.Now()
	raw, err := a.model.GenerateStructuredAnalysis(ctx, img)
	if err != nil {
		modelErr := a.modelError(ctx, err)
		a.logger.Warn("image analysis failed",
			zap.String("reason", string(modelErr.Reason)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, modelErr
	}
	if raw == nil {
		return nil, &domain.ModelError{Reason: domain.ModelErrorMalformed, Model: a.model.Name(), Err: vision.ErrMalformedResponse}
	}

	a.logger.Debug("image analyzed",
		zap.String("category", raw.Category),
		zap.Duration("duration", time.Since(start)),
	)
	return raw, nil
}

func (a *Analyzer) resolve(ctx context.Context, ref domain.ImageReference) ([]byte, string, error) {
	switch ref.Kind() {
	case domain.ReferenceUpload:
		return ref.Data(), ref.ContentType(), nil
	case domain.ReferenceURL:
		if a.fetcher == nil {
			return nil, "", errors.New("no image fetcher configured")
		}
		payload, err := a.fetcher.Fetch(ctx, ref.URL())
		if err != nil {
			return nil, "", err
		}
		return payload.Data, payload.ContentType, nil
	default:
		return nil, "", fmt.Errorf("unsupported image reference kind %s", ref.Kind())
	}
}

func (a *Analyzer) modelError(ctx context.Context, err error) *domain.ModelError {
	reason := domain.ModelErrorUpstream
	switch {
	case ctx.Err() != nil:
		// The caller gave up; report its reason rather than the transport's.
		reason = domain.ModelErrorCancelled
		err = ctx.Err()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		reason = domain.ModelErrorCancelled
	case isNetTimeout(err):
		reason = domain.ModelErrorTimeout
	case errors.Is(err, vision.ErrMalformedResponse):
		reason = domain.ModelErrorMalformed
	}
	return &domain.ModelError{Reason: reason, Model: a.model.Name(), Err: err}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
