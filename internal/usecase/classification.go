package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/logging"
)

const (
	stageAnalysis       = "analysis"
	stageClassification = "classification"
)

// Analyzer is the analysis stage: one fetch plus one model call.
type Analyzer interface {
	Analyze(ctx context.Context, ref domain.ImageReference) (*domain.RawAnalysis, error)
}

// Classifier is the pure classification stage.
type Classifier interface {
	Classify(raw domain.RawAnalysis) domain.ClassificationResult
}

// Option customizes a ClassificationUseCase.
type Option func(*ClassificationUseCase)

// WithRetry retries the analysis stage on temporary failures. attempts counts
// the first try, so 1 disables retries.
func WithRetry(attempts int, initialBackoff, maxBackoff time.Duration) Option {
	return func(uc *ClassificationUseCase) {
		if attempts < 1 {
			attempts = 1
		}
		uc.retryAttempts = attempts
		if initialBackoff > 0 {
			uc.initialBackoff = initialBackoff
		}
		if maxBackoff > 0 {
			uc.maxBackoff = maxBackoff
		}
	}
}

// WithMetrics records stage timings and outcomes.
func WithMetrics(m *Metrics) Option {
	return func(uc *ClassificationUseCase) {
		uc.metrics = m
	}
}

// ClassificationUseCase runs analysis then classification for one image.
type ClassificationUseCase struct {
	analyzer       Analyzer
	classifier     Classifier
	logger         *zap.Logger
	metrics        *Metrics
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewClassificationUseCase constructs a new use case instance. Without
// WithRetry every request makes exactly one analysis attempt.
func NewClassificationUseCase(analyzer Analyzer, classifier Classifier, logger *zap.Logger, opts ...Option) *ClassificationUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &ClassificationUseCase{
		analyzer:       analyzer,
		classifier:     classifier,
		logger:         logger.Named("classification_usecase"),
		retryAttempts:  1,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ClassifyURL validates imageURL and classifies the image behind it.
func (uc *ClassificationUseCase) ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error) {
	ref, err := domain.NewURLReference(imageURL)
	if err != nil {
		uc.metrics.incFailure(stageAnalysis, failureReason(err))
		return nil, err
	}
	return uc.Run(ctx, ref)
}

// ClassifyUpload classifies uploaded image bytes.
func (uc *ClassificationUseCase) ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error) {
	ref, err := domain.NewUploadReference(data, contentType)
	if err != nil {
		uc.metrics.incFailure(stageAnalysis, failureReason(err))
		return nil, err
	}
	return uc.Run(ctx, ref)
}

// Run executes the pipeline. Errors are the analysis stage's typed errors
// (*domain.FetchError, *domain.ModelError) unchanged; classification cannot fail.
func (uc *ClassificationUseCase) Run(ctx context.Context, ref domain.ImageReference) (*domain.ClassificationResult, error) {
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.ContextWithRequestID(ctx, requestID)
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.classify", requestID)
	defer uc.metrics.trackInFlight()()

	opLogger.Info("classification started", zap.Stringer("source", ref))

	start := time.Now()
	var raw *domain.RawAnalysis
	err := uc.withRetry(ctx, opLogger, stageAnalysis, func() error {
		analysis, err := uc.analyzer.Analyze(ctx, ref)
		if err != nil {
			return err
		}
		if analysis == nil {
			return &domain.ModelError{Reason: domain.ModelErrorMalformed, Err: errors.New("empty analysis")}
		}
		raw = analysis
		return nil
	})
	if err != nil {
		uc.metrics.observeStage(stageAnalysis, "error", time.Since(start))
		uc.metrics.incFailure(stageAnalysis, failureReason(err))
		opLogger.Error("image analysis failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	uc.metrics.observeStage(stageAnalysis, "ok", time.Since(start))

	classifyStart := time.Now()
	result := uc.classifier.Classify(*raw)
	uc.metrics.observeStage(stageClassification, "ok", time.Since(classifyStart))
	uc.metrics.incResult(string(result.Category), string(result.SeverityLevel))

	opLogger.Info("classification completed",
		zap.String("category", string(result.Category)),
		zap.Int("severity", result.Severity),
		zap.String("severity_level", string(result.SeverityLevel)),
		zap.String("model_category", raw.Category),
		zap.Bool("indoor_household", raw.IndoorHousehold),
		zap.Duration("duration", time.Since(start)),
	)
	return &result, nil
}

// withRetry calls fn until it succeeds, fails permanently, or attempts run
// out. When ctx ends during a backoff the last error is returned as is.
func (uc *ClassificationUseCase) withRetry(ctx context.Context, opLogger *zap.Logger, stage string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return fn()
	}

	backoff := uc.initialBackoff
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
			uc.metrics.incRetry(stage)
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("stage succeeded after retry", zap.String("stage", stage), zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return err
		}

		opLogger.Warn("transient stage error", zap.String("stage", stage), zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return err
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up; another attempt cannot help.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}

func failureReason(err error) string {
	var inputErr *domain.InputError
	var fetchErr *domain.FetchError
	var modelErr *domain.ModelError
	switch {
	case errors.As(err, &inputErr):
		return "input"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &modelErr):
		return "model_" + string(modelErr.Reason)
	default:
		return "internal"
	}
}
