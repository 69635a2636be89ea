package grpcclient

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

func TestNewClient(t *testing.T) {
	cfg := Config{
		Target:  "localhost:50051",
		Service: "test.Service",
		Method:  "TestMethod",
		Timeout: 5 * time.Second,
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.FullMethod() != "/test.Service/TestMethod" {
		t.Errorf("FullMethod() = %q", client.FullMethod())
	}
	if client.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", client.timeout)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{Target: "localhost:50051", Service: "s", Method: "m"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s default", client.timeout)
	}
	if client.conn != nil {
		t.Error("Expected conn to be nil initially")
	}
}

func TestNewClientRequiresMethod(t *testing.T) {
	if _, err := NewClient(Config{Target: "localhost:50051", Service: "s"}); err == nil {
		t.Fatal("expected error without method")
	}
}

func TestClientWithMetadata(t *testing.T) {
	client, err := NewClient(Config{
		Target:  "localhost:50051",
		Service: "test.Service",
		Method:  "TestMethod",
		Metadata: map[string]string{
			"authorization": "Bearer token123",
			"x-custom":      "value",
		},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if len(client.md) != 2 {
		t.Errorf("Expected 2 metadata entries, got %d", len(client.md))
	}
}

func TestClientInvokeWithoutConnect(t *testing.T) {
	client, err := NewClient(Config{Target: "localhost:50051", Service: "s", Method: "m"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res, err := client.Invoke(context.Background(), &emptypb.Empty{}, &emptypb.Empty{}, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Invoke() error = %v, want ErrNotConnected", err)
	}
	if res.Code != codes.Unavailable {
		t.Errorf("Code = %v, want Unavailable", res.Code)
	}
}

func TestClientCloseWithoutConnect(t *testing.T) {
	client, err := NewClient(Config{Target: "localhost:50051", Service: "s", Method: "m"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close without connect should not error, got: %v", err)
	}
}

func TestDialTLSVariants(t *testing.T) {
	for _, cfg := range []Config{
		{Target: "localhost:50051"},
		{Target: "localhost:50051", UseTLS: true},
		{Target: "localhost:50051", UseTLS: true, Insecure: true},
	} {
		conn, err := Dial(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Dial(%+v) error = %v", cfg, err)
		}
		_ = conn.Close()
	}
}

type mdCapture struct {
	healthpb.UnimplementedHealthServer
	got chan metadata.MD
}

func (m *mdCapture) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	m.got <- md
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func startBufServer(t *testing.T, register func(*grpc.Server)) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestClientInvokeOverBufconn(t *testing.T) {
	capture := &mdCapture{got: make(chan metadata.MD, 1)}
	lis := startBufServer(t, func(s *grpc.Server) { healthpb.RegisterHealthServer(s, capture) })

	client, err := NewClient(Config{
		Target:      "passthrough:///bufnet",
		Service:     "grpc.health.v1.Health",
		Method:      "Check",
		Metadata:    map[string]string{"x-run": "1"},
		DialOptions: []grpc.DialOption{bufDialer(lis)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Connect(context.Background()); err == nil {
		t.Error("second Connect should fail")
	}

	resp := &healthpb.HealthCheckResponse{}
	res, err := client.Invoke(context.Background(), &healthpb.HealthCheckRequest{Service: "x"}, resp,
		metadata.Pairs("authorization", "Bearer t"))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Code != codes.OK {
		t.Errorf("Code = %v, want OK", res.Code)
	}
	if res.BytesSent == 0 || res.BytesRecv == 0 {
		t.Errorf("bytes not counted: %+v", res)
	}
	md := <-capture.got
	if got := md.Get("x-run"); len(got) != 1 || got[0] != "1" {
		t.Errorf("x-run metadata = %v", got)
	}
	if got := md.Get("authorization"); len(got) != 1 {
		t.Errorf("authorization metadata = %v", got)
	}
}

func TestClientInvokeReportsStatusCode(t *testing.T) {
	lis := startBufServer(t, func(s *grpc.Server) { healthpb.RegisterHealthServer(s, health.NewServer()) })

	client, err := NewClient(Config{
		Target:      "passthrough:///bufnet",
		Service:     "grpc.health.v1.Health",
		Method:      "Check",
		DialOptions: []grpc.DialOption{bufDialer(lis)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	// The default health server answers NotFound for unknown services.
	res, err := client.Invoke(context.Background(), &healthpb.HealthCheckRequest{Service: "missing"}, &healthpb.HealthCheckResponse{}, nil)
	if err == nil {
		t.Fatal("expected error for unknown service")
	}
	if res.Code != codes.NotFound {
		t.Errorf("Code = %v, want NotFound", res.Code)
	}
}

const greeterProto = `syntax = "proto3";
package helloworld;
service Greeter {
  rpc SayHello (HelloRequest) returns (HelloReply);
}
message HelloRequest { string name = 1; }
message HelloReply { string message = 1; }
`

func writeProto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greeter.proto")
	if err := os.WriteFile(path, []byte(greeterProto), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadMethod(t *testing.T) {
	path := writeProto(t)
	for _, svc := range []string{"helloworld.Greeter", "Greeter"} {
		m, err := LoadMethod(path, svc, "SayHello")
		if err != nil {
			t.Fatalf("LoadMethod(%q) error = %v", svc, err)
		}
		if m.GetInputType().GetName() != "HelloRequest" {
			t.Errorf("input type = %q", m.GetInputType().GetName())
		}
	}
	if _, err := LoadMethod(path, "helloworld.Greeter", "Missing"); err == nil {
		t.Error("expected error for missing method")
	}
	if _, err := LoadMethod("", "s", "m"); err == nil {
		t.Error("expected error for empty proto path")
	}
}

func TestNewRequest(t *testing.T) {
	m, err := LoadMethod(writeProto(t), "helloworld.Greeter", "SayHello")
	if err != nil {
		t.Fatalf("LoadMethod error = %v", err)
	}
	req, err := NewRequest(m, `{"name":"perf"}`)
	if err != nil {
		t.Fatalf("NewRequest error = %v", err)
	}
	if req == nil {
		t.Fatal("nil request")
	}
	if _, err := NewRequest(m, `{"name":`); err == nil {
		t.Error("expected error for malformed payload")
	}
	if _, err := NewRequest(m, ""); err != nil {
		t.Errorf("empty payload error = %v", err)
	}
	if NewResponse(m) == nil {
		t.Error("nil response")
	}
}
