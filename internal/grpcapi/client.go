package grpcapi

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/logging"
)

// Client calls a remote Classifier service and translates its status codes
// back into the pipeline's error types.
type Client struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, logger: logger}
}

// DialClassifier returns a ready-to-use client for the classifier service at addr.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, extra ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithBlock(),
	}, extra...)

	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcapi.dial_classifier", "", err)
		logger.Error("failed to dial classifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewClient(conn, logger), conn, nil
}

// ClassifyURL asks the server to fetch and classify imageURL.
func (c *Client) ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error) {
	return c.classify(ctx, &ClassifyRequest{ImageURL: imageURL})
}

// ClassifyUpload sends the image bytes inline.
func (c *Client) ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error) {
	return c.classify(ctx, &ClassifyRequest{ImageData: data, ContentType: contentType})
}

func (c *Client) classify(ctx context.Context, req *ClassifyRequest) (*domain.ClassificationResult, error) {
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, requestIDMetadata, requestID)
	}

	var header metadata.MD
	resp := new(ClassifyResponse)
	err := c.conn.Invoke(ctx, classifyFullMethod, req, resp, grpc.CallContentSubtype(codecName), grpc.Header(&header))

	requestID := logging.RequestIDFromContext(ctx)
	if values := header.Get(requestIDMetadata); len(values) > 0 {
		requestID = values[0]
	}
	if err != nil {
		mapped := fromStatus(ctx, requestID, err)
		c.logger.Warn("remote classification failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, mapped
	}

	return &domain.ClassificationResult{
		Category:      domain.Category(resp.Category),
		Severity:      resp.Severity,
		SeverityLevel: domain.SeverityLevel(resp.SeverityLevel),
		Scale:         resp.Scale,
	}, nil
}

func fromStatus(ctx context.Context, requestID string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &domain.ModelError{Reason: domain.ModelErrorCancelled, Err: ctxErr}
	}

	st, ok := status.FromError(err)
	if !ok {
		return logging.NewOperationError("grpcapi.classify", requestID, err)
	}
	cause := errors.New(st.Message())
	switch st.Code() {
	case codes.InvalidArgument:
		return &domain.InputError{Message: st.Message()}
	case codes.FailedPrecondition:
		return &domain.FetchError{Err: cause}
	case codes.DataLoss:
		return &domain.ModelError{Reason: domain.ModelErrorMalformed, Err: cause}
	case codes.DeadlineExceeded:
		return &domain.ModelError{Reason: domain.ModelErrorTimeout, Err: cause}
	case codes.Canceled:
		return &domain.ModelError{Reason: domain.ModelErrorCancelled, Err: cause}
	case codes.Unavailable:
		return &domain.ModelError{Reason: domain.ModelErrorUpstream, Err: err}
	default:
		return logging.NewOperationError("grpcapi.classify", requestID, err)
	}
}
