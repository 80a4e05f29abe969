package api

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/signalsfoundry/flight-twin/internal/logging"
)

func TestRequestIDInterceptorReusesInboundID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "abc-123"))
	var gotID string
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		gotID = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
	if gotID != "abc-123" {
		t.Fatalf("request id = %q, want %q", gotID, "abc-123")
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(logging.Noop())
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	var gotID string
	_, _ = interceptor(context.Background(), nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
		gotID = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if gotID == "" {
		t.Fatalf("expected a generated request id")
	}
}
