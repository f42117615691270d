package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName        = "ecoclassify.v1.Classifier"
	classifyFullMethod = "/" + serviceName + "/Classify"
	requestIDMetadata  = "x-request-id"
)

// ClassifyRequest carries exactly one of ImageURL or ImageData.
type ClassifyRequest struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImageData   []byte `json:"image_data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// ClassifyResponse mirrors domain.ClassificationResult plus the request id.
type ClassifyResponse struct {
	Category      string `json:"category"`
	Severity      int    `json:"severity"`
	SeverityLevel string `json:"severity_level"`
	Scale         string `json:"scale"`
	RequestID     string `json:"request_id,omitempty"`
}

// ClassifierServer is the server API for the Classifier service.
type ClassifierServer interface {
	Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error)
}

// RegisterClassifierServer registers srv on s.
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&classifierServiceDesc, srv)
}

func classifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClassifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: classifyFullMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClassifierServer).Classify(ctx, req.(*ClassifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Classify",
			Handler:    classifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ecoclassify/v1/classifier",
}
