package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/example/ecoclassify/internal/domain"
)

// DefaultModel is used when OpenAIConfig.Model is empty.
const DefaultModel = "gpt-4o"

// OpenAIConfig configures an OpenAI compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	// Temperature 0 is omitted from the request and the provider default applies.
	Temperature float32
	MaxTokens   int
}

// OpenAIModel implements Model with one non-streaming chat completion.
type OpenAIModel struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIModel builds a client for cfg. BaseURL may point at any OpenAI
// compatible server.
func NewOpenAIModel(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIModel{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (m *OpenAIModel) Name() string {
	return m.cfg.Model
}

func (m *OpenAIModel) GenerateStructuredAnalysis(ctx context.Context, img *domain.Image) (*domain.RawAnalysis, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.New("no image to analyze")
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data))

	req := openai.ChatCompletionRequest{
		Model: m.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: analysisPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: analysisSchema(),
				Strict: true,
			},
		},
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		m.logger.Warn("vision model call failed",
			zap.String("model", m.cfg.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, classifyProviderError(err)
	}

	m.logger.Debug("vision model call completed",
		zap.String("model", m.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("%w: model refused: %s", ErrMalformedResponse, choice.Message.Refusal)
	}
	return ParseRawAnalysis(choice.Message.Content)
}

// classifyProviderError keeps context and network errors as they are and wraps
// HTTP level failures so their status survives.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}
