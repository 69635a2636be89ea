package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jhump/protoreflect/desc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/grpcclient"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
	"github.com/torosent/perfgauge/internal/tracing"
)

// grpcAdapter issues one unary call per request against a method described
// by a .proto file. The method name is reported as the operation.
type grpcAdapter struct {
	target    string
	cfg       config.GRPCConfig
	method    *desc.MethodDescriptor
	request   proto.Message
	provider  auth.Provider
	propagate bool
	dialOpts  []grpc.DialOption
}

func newGRPCAdapter(cfg *config.Config, provider auth.Provider, propagate bool) (*grpcAdapter, error) {
	method, err := grpcclient.LoadMethod(cfg.GRPC.ProtoFile, cfg.GRPC.Service, cfg.GRPC.Method)
	if err != nil {
		return nil, err
	}
	req, err := grpcclient.NewRequest(method, cfg.GRPC.Message)
	if err != nil {
		return nil, err
	}
	return &grpcAdapter{
		target:    cfg.TargetURL,
		cfg:       cfg.GRPC,
		method:    method,
		request:   req,
		provider:  provider,
		propagate: propagate,
	}, nil
}

func (a *grpcAdapter) BuildClient(ctx context.Context) (runner.Client, error) {
	c, err := grpcclient.NewClient(grpcclient.Config{
		Target:      a.target,
		Service:     a.method.GetService().GetFullyQualifiedName(),
		Method:      a.method.GetName(),
		Metadata:    a.cfg.Metadata,
		Timeout:     a.cfg.Timeout,
		UseTLS:      a.cfg.TLS,
		Insecure:    a.cfg.Insecure,
		DialOptions: a.dialOpts,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("grpc connect: %w", err)
	}
	return c, nil
}

func (a *grpcAdapter) SendRequest(ctx context.Context, client runner.Client) metrics.Outcome {
	operation := a.method.GetName()
	start := time.Now()
	c, ok := client.(*grpcclient.Client)
	if !ok {
		return metrics.Failed("Invalid client", 0).WithOperation(operation)
	}

	md, err := authMetadata(ctx, a.provider)
	if err != nil {
		return metrics.Failed(fallbackStatus(err), time.Since(start)).WithOperation(operation)
	}
	if a.propagate {
		if md == nil {
			md = metadata.MD{}
		}
		tracing.InjectGRPCMetadata(ctx, md)
	}

	res, err := c.Invoke(ctx, a.request, grpcclient.NewResponse(a.method), md)
	elapsed := time.Since(start)
	bytes := uint64(res.BytesSent + res.BytesRecv)
	if err != nil {
		status := res.Code.String()
		if res.Code == codes.OK {
			status = fallbackStatus(err)
		}
		return metrics.Failed(status, elapsed).WithBytes(bytes).WithOperation(operation)
	}
	return metrics.Succeeded(res.Code.String(), bytes, elapsed).WithOperation(operation)
}
