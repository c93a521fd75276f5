package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"meeting-minutes-service/internal/observability/metrics"
)

// UnaryServerInterceptor returns a gRPC unary interceptor that records call
// counts and latency per method and logs every call. Failed calls are logged
// at warn level.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		code := status.Code(err).String()
		m.RecordUnaryCall(info.FullMethod, code, duration.Seconds())

		logCall(err, info.FullMethod, code, duration).Msg("gRPC unary call")
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for metrics and logging.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RecordStreamStart()

		err := handler(srv, ss)

		duration := time.Since(start)
		code := status.Code(err).String()
		m.RecordStreamEnd(err == nil, duration.Seconds())
		m.RecordStreamCode(info.FullMethod, code)

		logCall(err, info.FullMethod, code, duration).
			Bool("success", err == nil).
			Msg("gRPC stream completed")
		return err
	}
}

func logCall(err error, method, code string, duration time.Duration) *zerolog.Event {
	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	return event.
		Str("method", method).
		Str("code", code).
		Dur("duration", duration)
}
