package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// startRPCSpan opens a server-kind span for one RPC on the internal
// health/admin surface.
func startRPCSpan(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, fullMethod, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.String("rpc.method", fullMethod))
	return ctx, span
}

// finishRPCSpan closes out a span with the RPC's outcome.
func finishRPCSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	st, _ := status.FromError(err)
	span.SetStatus(codes.Error, st.Message())
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	span.RecordError(err)
}

// UnaryServerInterceptor traces unary RPCs on the internal gRPC
// surface.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := startRPCSpan(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		finishRPCSpan(span, err)
		return resp, err
	}
}

// StreamServerInterceptor traces streaming RPCs (health Watch), wrapping
// the stream so the handler sees the span's context.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, span := startRPCSpan(ss.Context(), info.FullMethod)
		defer span.End()
		span.SetAttributes(attribute.Bool("rpc.stream", true))

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		finishRPCSpan(span, err)
		return err
	}
}

// tracedServerStream substitutes the span-carrying context for the
// stream's own.
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}
