package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"meeting-minutes-service/internal/observability/metrics"
)

func TestServer_Readiness(t *testing.T) {
	s := NewServer(":0")
	h := s.Handler()

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("expected healthz 200, got %d", code)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("expected readyz 503 before SetReady, got %d", code)
	}
	s.SetReady(true)
	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("expected readyz 200 after SetReady, got %d", code)
	}
	if code := get("/metrics"); code != http.StatusOK {
		t.Errorf("expected metrics 200, got %d", code)
	}
}

func TestUnaryServerInterceptor_PassesThrough(t *testing.T) {
	interceptor := UnaryServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.UnaryServerInfo{FullMethod: "/meeting.v1.TranscriptService/PushSegment"}
	okCalls := metrics.DefaultMetrics.RPCCalls.WithLabelValues(info.FullMethod, "OK")
	notFoundCalls := metrics.DefaultMetrics.RPCCalls.WithLabelValues(info.FullMethod, "NotFound")
	okBefore := testutil.ToFloat64(okCalls)
	notFoundBefore := testutil.ToFloat64(notFoundCalls)

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return req.(string) + "-ok", nil
	})
	if err != nil || resp != "req-ok" {
		t.Errorf("expected req-ok, got %v %v", resp, err)
	}

	want := status.Error(codes.NotFound, "missing")
	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected handler error to be returned, got %v", err)
	}

	if got := testutil.ToFloat64(okCalls) - okBefore; got != 1 {
		t.Errorf("expected 1 OK call recorded, got %v", got)
	}
	if got := testutil.ToFloat64(notFoundCalls) - notFoundBefore; got != 1 {
		t.Errorf("expected 1 NotFound call recorded, got %v", got)
	}
}

func TestStreamServerInterceptor_RecordsCode(t *testing.T) {
	interceptor := StreamServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.StreamServerInfo{FullMethod: "/meeting.v1.TranscriptService/WatchTranscript"}

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"ok", nil, "OK"},
		{"canceled", status.Error(codes.Canceled, "gone"), "Canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := metrics.DefaultMetrics.RPCCalls.WithLabelValues(info.FullMethod, tt.code)
			before := testutil.ToFloat64(calls)

			err := interceptor(nil, nil, info, func(srv interface{}, ss grpc.ServerStream) error {
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
			if got := testutil.ToFloat64(calls) - before; got != 1 {
				t.Errorf("expected 1 %s call recorded, got %v", tt.code, got)
			}
		})
	}
}
