package logger

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// GRPCInterceptorOptions configures the gRPC interceptors
type GRPCInterceptorOptions struct {
	// SkipMethods are not logged, e.g. "/grpc.health.v1.Health/Check"
	SkipMethods []string
	// LogMetadata enables logging incoming gRPC metadata
	LogMetadata bool
}

// UnaryServerInterceptor returns a new unary server interceptor for logging
func UnaryServerInterceptor(logger *Logger) grpc.UnaryServerInterceptor {
	return UnaryServerInterceptorWithConfig(logger, GRPCInterceptorOptions{})
}

// UnaryServerInterceptorWithConfig returns a new unary server interceptor with custom config
func UnaryServerInterceptorWithConfig(logger *Logger, opts GRPCInterceptorOptions) grpc.UnaryServerInterceptor {
	skipMethods := toSet(opts.SkipMethods)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if skipMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		requestID := extractRequestID(ctx)
		ctx = WithRequestID(ctx, requestID)

		start := time.Now()
		resp, err := handler(ctx, req)

		fields := callFields(ctx, requestID, info.FullMethod, opts.LogMetadata)
		logCall(logger, "gRPC call", append(fields, zap.Duration("latency", time.Since(start))), err)
		return resp, err
	}
}

// StreamServerInterceptor returns a new stream server interceptor for logging
func StreamServerInterceptor(logger *Logger) grpc.StreamServerInterceptor {
	return StreamServerInterceptorWithConfig(logger, GRPCInterceptorOptions{})
}

// StreamServerInterceptorWithConfig returns a new stream server interceptor with custom config
func StreamServerInterceptorWithConfig(logger *Logger, opts GRPCInterceptorOptions) grpc.StreamServerInterceptor {
	skipMethods := toSet(opts.SkipMethods)

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if skipMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		requestID := extractRequestID(ss.Context())
		ctx := WithRequestID(ss.Context(), requestID)

		start := time.Now()
		err := handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})

		fields := callFields(ctx, requestID, info.FullMethod, opts.LogMetadata)
		fields = append(fields,
			zap.Bool("is_client_stream", info.IsClientStream),
			zap.Bool("is_server_stream", info.IsServerStream),
			zap.Duration("latency", time.Since(start)),
		)
		logCall(logger, "gRPC stream", fields, err)
		return err
	}
}

func callFields(ctx context.Context, requestID, fullMethod string, withMetadata bool) []zap.Field {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", fullMethod),
		zap.String("service", path.Dir(fullMethod)[1:]),
		zap.String("rpc", path.Base(fullMethod)),
	}
	if withMetadata {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			fields = append(fields, zap.Any("metadata", md))
		}
	}
	return fields
}

func logCall(logger *Logger, msg string, fields []zap.Field, err error) {
	st, _ := status.FromError(err)
	fields = append(fields, zap.String("code", st.Code().String()))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	switch st.Code() {
	case codes.OK:
		logger.Info(msg, fields...)
	case codes.Canceled, codes.DeadlineExceeded, codes.NotFound:
		logger.Warn(msg, fields...)
	default:
		logger.Error(msg, fields...)
	}
}

// extractRequestID returns the request ID from ctx or incoming metadata, or a new one
func extractRequestID(ctx context.Context) string {
	if requestID := GetRequestID(ctx); requestID != "" {
		return requestID
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-request-id"); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return uuid.New().String()
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// wrappedServerStream wraps grpc.ServerStream with custom context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// RecoveryInterceptor returns a unary server interceptor for panic recovery
func RecoveryInterceptor(logger *Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC panic recovered",
					zap.String("request_id", GetRequestID(ctx)),
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				err = status.Errorf(codes.Internal, "internal server error: %v", r)
			}
		}()

		return handler(ctx, req)
	}
}

// RecoveryStreamInterceptor returns a stream server interceptor for panic recovery
func RecoveryStreamInterceptor(logger *Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC stream panic recovered",
					zap.String("request_id", GetRequestID(ss.Context())),
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				err = status.Errorf(codes.Internal, "internal server error: %v", r)
			}
		}()

		return handler(srv, ss)
	}
}
