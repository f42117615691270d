package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/logging"
)

// MaxUploadSize is the default limit for a single uploaded image.
const MaxUploadSize = 10 << 20

// Room for multipart boundaries and headers on top of the file itself.
const multipartOverhead = 1 << 20

// Classifier is the subset of the classification use case served over HTTP.
type Classifier interface {
	ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error)
	ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error)
}

// Options configure the HTTP surface.
type Options struct {
	MaxUploadSize  int64
	RequestTimeout time.Duration
	// ModelName is reported by /health; empty means no model is configured.
	ModelName      string
	MetricsHandler http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

type classifyURLRequest struct {
	ImageURL string `json:"image_url"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// NewRouter builds a gin engine with recovery, request ids, access logging,
// CORS and all routes registered.
func NewRouter(uc Classifier, opts Options) *gin.Engine {
	opts = opts.withDefaults()

	router := gin.New()
	router.MaxMultipartMemory = opts.MaxUploadSize
	router.Use(gin.Recovery(), requestIDMiddleware(), accessLogMiddleware(opts.Logger), cors.New(corsConfig(opts.AllowedOrigins)))

	RegisterRoutes(router, uc, opts)
	return router
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router gin.IRouter, uc Classifier, opts Options) {
	opts = opts.withDefaults()

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "ecoclassify",
			"description": "Classifies images of garbage, potholes and deforestation and scores their severity.",
			"endpoints": gin.H{
				"POST /classify":        `JSON body {"image_url": "https://..."}`,
				"POST /classify-upload": "multipart/form-data with an image in field \"file\"",
				"GET /health":           "service health",
			},
			"categories": domain.IssueCategories(),
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"model_configured": opts.ModelName != "",
			"model":            opts.ModelName,
		})
	})

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	router.POST("/classify", func(c *gin.Context) {
		var req classifyURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &domain.InputError{Field: "body", Message: "expected JSON object with image_url", Err: err})
			return
		}

		ctx, cancel := requestContext(c, opts.RequestTimeout)
		defer cancel()

		result, err := uc.ClassifyURL(ctx, req.ImageURL)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	router.POST("/classify-upload", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("file")
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeStatus(c, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit")
				return
			}
			writeError(c, &domain.InputError{Field: "file", Message: "image file is required", Err: err})
			return
		}
		if file.Size > opts.MaxUploadSize {
			writeStatus(c, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit")
			return
		}

		contentType := file.Header.Get("Content-Type")
		if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
			writeStatus(c, http.StatusUnsupportedMediaType, "unsupported_media_type", "file must be an image")
			return
		}

		src, err := file.Open()
		if err != nil {
			writeError(c, &domain.InputError{Field: "file", Message: "unable to open image", Err: err})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			writeStatus(c, http.StatusInternalServerError, "internal_error", "failed to read image")
			return
		}

		ctx, cancel := requestContext(c, opts.RequestTimeout)
		defer cancel()

		result, err := uc.ClassifyUpload(ctx, data, contentType)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

func (o Options) withDefaults() Options {
	if o.MaxUploadSize <= 0 {
		o.MaxUploadSize = MaxUploadSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader}
	return cfg
}

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	var inputErr *domain.InputError
	var fetchErr *domain.FetchError
	var modelErr *domain.ModelError
	switch {
	case errors.As(err, &inputErr), errors.As(err, &fetchErr):
		return http.StatusBadRequest
	case errors.As(err, &modelErr):
		switch modelErr.Reason {
		case domain.ModelErrorCancelled, domain.ModelErrorTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	code := "internal_error"
	message := "internal server error"

	var modelErr *domain.ModelError
	switch {
	case status == http.StatusBadRequest:
		code = "invalid_request"
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			code = "image_unavailable"
		}
		message = err.Error()
	case errors.As(err, &modelErr):
		code = "model_" + string(modelErr.Reason)
		message = "image analysis failed"
	}

	logger := loggerFrom(c)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeStatus(c, status, code, message)
}

func writeStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     code,
		Message:   message,
		RequestID: logging.RequestIDFromContext(c.Request.Context()),
	})
}
