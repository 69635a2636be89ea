package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/objstore"
	"github.com/torosent/perfgauge/internal/runner"
)

const (
	opRead      = "read"
	opRangeRead = "range-read"
	opWrite     = "write"

	uploadCleanupTimeout = 10 * time.Second
)

// objectStoreAdapter benchmarks whole-object reads, ranged reads or the
// status query of one resumable upload session.
type objectStoreAdapter struct {
	cfg      config.ObjectStoreConfig
	timeout  time.Duration
	provider auth.Provider
	rnd      *randSource
	log      *zap.Logger

	mu       sync.Mutex
	client   *objstore.Client
	uploadID string
}

func newObjectStoreAdapter(cfg *config.Config, provider auth.Provider, rnd *randSource, log *zap.Logger) *objectStoreAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	store := cfg.ObjectStore
	if store.Operation == "" {
		store.Operation = config.ObjectStoreRead
	}
	return &objectStoreAdapter{
		cfg:      store,
		timeout:  cfg.Timeout,
		provider: provider,
		rnd:      rnd,
		log:      log,
	}
}

func (a *objectStoreAdapter) BuildClient(context.Context) (runner.Client, error) {
	cfg := objstore.Config{Endpoint: a.cfg.Endpoint, Timeout: a.timeout}
	if a.provider != nil {
		cfg.Auth = a.provider
	}
	c, err := objstore.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// InitializeWorkload opens the upload session queried by the write workload.
func (a *objectStoreAdapter) InitializeWorkload(ctx context.Context, client runner.Client) error {
	if a.cfg.Operation != config.ObjectStoreWrite {
		return nil
	}
	c, ok := client.(*objstore.Client)
	if !ok {
		return fmt.Errorf("unexpected client type %T", client)
	}
	uploadID, err := c.StartResumableWrite(ctx, a.cfg.Bucket, a.cfg.Upload)
	if err != nil {
		return fmt.Errorf("start resumable write: %w", err)
	}
	a.mu.Lock()
	a.client, a.uploadID = c, uploadID
	a.mu.Unlock()
	a.log.Debug("upload session opened", zap.String("bucket", a.cfg.Bucket), zap.String("object", a.cfg.Upload))
	return nil
}

func (a *objectStoreAdapter) SendRequest(ctx context.Context, client runner.Client) metrics.Outcome {
	c, ok := client.(*objstore.Client)
	if !ok {
		return metrics.Failed("Invalid client", 0).AsFatal()
	}
	switch a.cfg.Operation {
	case config.ObjectStoreWrite:
		return a.queryWrite(ctx, c)
	case config.ObjectStoreRangeRead:
		return a.read(opRangeRead, func(object string) (objstore.ReadResult, error) {
			return c.RangeRead(ctx, a.cfg.Bucket, object, int64(a.cfg.RangeOffset), int64(a.cfg.RangeBytes))
		})
	}
	return a.read(opRead, func(object string) (objstore.ReadResult, error) {
		return c.ReadObject(ctx, a.cfg.Bucket, object)
	})
}

func (a *objectStoreAdapter) read(op string, fetch func(object string) (objstore.ReadResult, error)) metrics.Outcome {
	object := a.cfg.Objects[a.rnd.Intn(len(a.cfg.Objects))]
	start := time.Now()
	res, err := fetch(object)
	elapsed := time.Since(start)
	if err != nil {
		return objectStoreFailure(err, elapsed, false).WithOperation(op)
	}
	return metrics.Succeeded(statusOK, uint64(res.Bytes), elapsed).WithOperation(op)
}

func (a *objectStoreAdapter) queryWrite(ctx context.Context, c *objstore.Client) metrics.Outcome {
	a.mu.Lock()
	uploadID := a.uploadID
	a.mu.Unlock()
	if uploadID == "" {
		return metrics.Failed("Upload session missing", 0).WithOperation(opWrite).AsFatal()
	}

	start := time.Now()
	_, err := c.QueryWriteStatus(ctx, uploadID)
	elapsed := time.Since(start)
	if err != nil {
		return objectStoreFailure(err, elapsed, true).WithOperation(opWrite)
	}
	return metrics.Succeeded(statusOK, 0, elapsed).WithOperation(opWrite)
}

// objectStoreFailure maps a client error to an outcome. Rejected credentials
// are fatal, and so is a vanished upload session when session is set.
func objectStoreFailure(err error, elapsed time.Duration, session bool) metrics.Outcome {
	var se *objstore.StatusError
	if errors.As(err, &se) {
		o := metrics.Failed(httpStatus(se.StatusCode), elapsed)
		if se.Unauthorized() || (session && se.SessionGone()) {
			o = o.AsFatal()
		}
		return o
	}
	return metrics.Failed(fallbackStatus(err), elapsed)
}

// Close cancels the upload session opened by InitializeWorkload.
func (a *objectStoreAdapter) Close() error {
	a.mu.Lock()
	c, uploadID := a.client, a.uploadID
	a.client, a.uploadID = nil, ""
	a.mu.Unlock()
	if c == nil || uploadID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), uploadCleanupTimeout)
	defer cancel()
	if err := c.DeleteWrite(ctx, uploadID); err != nil {
		return fmt.Errorf("cancel upload session: %w", err)
	}
	return nil
}
