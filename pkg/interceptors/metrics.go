package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"gateway/pkg/metrics"
)

// MetricsInterceptor counts and times unary RPCs on the internal
// surface: an in-flight gauge via RequestTracker, a per-method duration
// histogram via Timer.
func MetricsInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	m := metrics.Get()
	tracker := metrics.NewRequestTracker(m.GRPCRequestsInFlight)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		tracker.Start(info.FullMethod)
		defer tracker.End(info.FullMethod)

		timer := metrics.NewTimer(m.GRPCRequestDuration, info.FullMethod)
		resp, err := handler(ctx, req)
		timer.ObserveDuration()

		st, _ := status.FromError(err)
		m.GRPCRequestsTotal.WithLabelValues(info.FullMethod, st.Code().String()).Inc()

		return resp, err
	}
}

// StreamMetricsInterceptor is the stream-side counterpart.
func StreamMetricsInterceptor(serviceName string) grpc.StreamServerInterceptor {
	m := metrics.Get()
	tracker := metrics.NewRequestTracker(m.GRPCRequestsInFlight)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		tracker.Start(info.FullMethod)
		defer tracker.End(info.FullMethod)

		timer := metrics.NewTimer(m.GRPCRequestDuration, info.FullMethod)
		err := handler(srv, ss)
		timer.ObserveDuration()

		st, _ := status.FromError(err)
		m.GRPCRequestsTotal.WithLabelValues(info.FullMethod, st.Code().String()).Inc()

		return err
	}
}
