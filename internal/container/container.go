// Package container builds the classification pipeline from configuration.
package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/example/ecoclassify/internal/analysis"
	"github.com/example/ecoclassify/internal/classifier"
	"github.com/example/ecoclassify/internal/config"
	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/imagefetch"
	"github.com/example/ecoclassify/internal/imageproc"
	"github.com/example/ecoclassify/internal/logging"
	"github.com/example/ecoclassify/internal/severity"
	"github.com/example/ecoclassify/internal/usecase"
	"github.com/example/ecoclassify/internal/vision"
)

// ErrModelNotConfigured is reported for every request when no API key is set.
var ErrModelNotConfigured = errors.New("vision model is not configured")

// Container holds the wired pipeline and the pieces the servers need from it.
type Container struct {
	UseCase    *usecase.ClassificationUseCase
	Classifier *classifier.Classifier
	Metrics    *usecase.Metrics
	// ModelName is empty when no model is configured.
	ModelName string
}

// New wires fetcher, model, analyzer, classifier and use case. reg may be nil
// to skip metrics.
func New(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	table := severity.Default()
	if cfg.SeverityThresholdsFile != "" {
		loaded, err := severity.Load(cfg.SeverityThresholdsFile)
		if err != nil {
			return nil, logging.NewOperationError("container.load_thresholds", "", err)
		}
		table = loaded
		logger.Info("severity thresholds loaded", zap.String("path", cfg.SeverityThresholdsFile))
	}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return nil, logging.NewOperationError("container.image_fetcher", "", err)
	}

	var model vision.Model
	modelName := ""
	if cfg.ModelConfigured() {
		openAIModel, err := vision.NewOpenAIModel(vision.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.VisionTemperature,
			MaxTokens:   cfg.VisionMaxTokens,
		}, logger.Named("vision"))
		if err != nil {
			return nil, logging.NewOperationError("container.vision_model", "", err)
		}
		model = openAIModel
		modelName = openAIModel.Name()
	} else {
		logger.Warn("OPENAI_API_KEY not set; classification requests will fail")
		model = unconfiguredModel{name: cfg.OpenAIModel}
	}

	analyzer := analysis.NewAnalyzer(fetcher, model, imageproc.Options{
		MaxBytes:  cfg.MaxUploadBytes,
		MaxPixels: cfg.MaxImagePixels,
	}, logger.Named("analysis"))

	opts := []usecase.Option{usecase.WithRetry(cfg.RetryAttempts, 500*time.Millisecond, 4*time.Second)}
	var metrics *usecase.Metrics
	if reg != nil {
		metrics, err = usecase.NewMetrics(reg)
		if err != nil {
			return nil, logging.NewOperationError("container.metrics", "", err)
		}
		opts = append(opts, usecase.WithMetrics(metrics))
	}

	cls := classifier.New(table)
	return &Container{
		UseCase:    usecase.NewClassificationUseCase(analyzer, cls, logger, opts...),
		Classifier: cls,
		Metrics:    metrics,
		ModelName:  modelName,
	}, nil
}

func newFetcher(cfg *config.Config, logger *zap.Logger) (imagefetch.Fetcher, error) {
	router := imagefetch.NewRouter(imagefetch.NewHTTPFetcher(imagefetch.HTTPOptions{
		Timeout:  cfg.ImageFetchTimeout,
		MaxBytes: cfg.MaxUploadBytes,
	}))
	if !cfg.AzureConfigured() {
		return router, nil
	}

	blobFetcher, err := imagefetch.NewAzureBlobFetcher(cfg.AzureStorageAccount, cfg.AzureStorageKey, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("azure blob fetcher: %w", err)
	}
	router.Handle(blobFetcher.Host(), blobFetcher)
	logger.Info("azure blob downloads enabled", zap.String("host", blobFetcher.Host()))
	return router, nil
}

type unconfiguredModel struct {
	name string
}

func (m unconfiguredModel) Name() string { return m.name }

func (m unconfiguredModel) GenerateStructuredAnalysis(ctx context.Context, img *domain.Image) (*domain.RawAnalysis, error) {
	return nil, ErrModelNotConfigured
}
