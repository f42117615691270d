package grpcapi

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/example/ecoclassify/internal/domain"
	"github.com/example/ecoclassify/internal/logging"
)

// Classifier is the use case the server delegates to.
type Classifier interface {
	ClassifyURL(ctx context.Context, imageURL string) (*domain.ClassificationResult, error)
	ClassifyUpload(ctx context.Context, data []byte, contentType string) (*domain.ClassificationResult, error)
}

// Server implements ClassifierServer on top of the classification use case.
type Server struct {
	uc     Classifier
	logger *zap.Logger
}

// NewServer returns a Server backed by uc. A nil logger discards logs.
func NewServer(uc Classifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{uc: uc, logger: logger.Named("grpc_server")}
}

// NewGRPCServer returns a grpc.Server with the classifier registered and
// request id plus logging interceptors installed.
func NewGRPCServer(uc Classifier, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	srv := NewServer(uc, logger)
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(srv.unaryInterceptor)}, opts...)
	s := grpc.NewServer(opts...)
	RegisterClassifierServer(s, srv)
	return s
}

// Classify runs one request through the use case. Exactly one image source
// must be set.
func (s *Server) Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
	hasURL := req.ImageURL != ""
	hasData := len(req.ImageData) > 0
	if hasURL == hasData {
		return nil, status.Error(codes.InvalidArgument, "exactly one of image_url or image_data is required")
	}

	var (
		result *domain.ClassificationResult
		err    error
	)
	if hasURL {
		result, err = s.uc.ClassifyURL(ctx, req.ImageURL)
	} else {
		result, err = s.uc.ClassifyUpload(ctx, req.ImageData, req.ContentType)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	return &ClassifyResponse{
		Category:      string(result.Category),
		Severity:      result.Severity,
		SeverityLevel: string(result.SeverityLevel),
		Scale:         result.Scale,
		RequestID:     logging.RequestIDFromContext(ctx),
	}, nil
}

func (s *Server) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	requestID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(requestIDMetadata); len(values) > 0 {
			requestID = values[0]
		}
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = logging.ContextWithRequestID(ctx, requestID)
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadata, requestID))

	start := time.Now()
	resp, err := handler(ctx, req)

	opLogger := logging.WithOperation(s.logger, "grpc"+info.FullMethod, requestID)
	code := status.Code(err)
	fields := []zap.Field{zap.String("code", code.String()), zap.Duration("duration", time.Since(start))}
	switch code {
	case codes.OK:
		opLogger.Info("rpc completed", fields...)
	case codes.InvalidArgument, codes.FailedPrecondition:
		opLogger.Info("rpc rejected", append(fields, zap.Error(err))...)
	default:
		opLogger.Error("rpc failed", append(fields, zap.Error(err))...)
	}
	return resp, err
}

// toStatus maps pipeline errors onto gRPC status codes.
func toStatus(err error) error {
	var inputErr *domain.InputError
	var fetchErr *domain.FetchError
	var modelErr *domain.ModelError
	switch {
	case errors.As(err, &inputErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &fetchErr):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &modelErr):
		switch modelErr.Reason {
		case domain.ModelErrorCancelled:
			if errors.Is(modelErr.Err, context.DeadlineExceeded) {
				return status.Error(codes.DeadlineExceeded, err.Error())
			}
			return status.Error(codes.Canceled, err.Error())
		case domain.ModelErrorTimeout:
			return status.Error(codes.DeadlineExceeded, err.Error())
		case domain.ModelErrorMalformed:
			return status.Error(codes.DataLoss, err.Error())
		default:
			return status.Error(codes.Unavailable, err.Error())
		}
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
