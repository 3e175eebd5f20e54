package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"gateway/pkg/logger"
)

// logRPC writes one completion line for an internal RPC; failures log at
// error with the grpc code attached.
func logRPC(kind, method string, start time.Time, err error) {
	attrs := []any{
		"method", method,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if st, ok := status.FromError(err); ok {
		attrs = append(attrs, "code", st.Code().String())
	}

	if err != nil {
		logger.Log.Error(kind+" failed", append(attrs, "error", err.Error())...)
		return
	}
	logger.Log.Info(kind+" completed", attrs...)
}

// LoggingInterceptor logs every unary RPC on the internal surface.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC("gRPC request", info.FullMethod, start, err)
		return resp, err
	}
}

// StreamLoggingInterceptor logs streaming RPCs (health Watch).
func StreamLoggingInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC("gRPC stream", info.FullMethod, start, err)
		return err
	}
}
