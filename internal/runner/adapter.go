package runner

import (
	"context"

	"github.com/torosent/perfgauge/internal/metrics"
)

// Client is an opaque handle produced by an Adapter and handed back to it on
// every call. The runner never inspects it.
type Client any

// Adapter is the protocol-specific unit of work driven by the runner.
type Adapter interface {
	// BuildClient is called once per run, or once per worker when the
	// adapter asks for PerWorker clients. An error aborts the run.
	BuildClient(ctx context.Context) (Client, error)
	// SendRequest performs one call. It may block on I/O and must be safe to
	// call concurrently when the client is shared.
	SendRequest(ctx context.Context, client Client) metrics.Outcome
}

// WorkloadInitializer is implemented by adapters that need one-time setup
// before the first call, such as opening an upload session.
type WorkloadInitializer interface {
	InitializeWorkload(ctx context.Context, client Client) error
}

// ClientScope selects how many clients the runner builds.
type ClientScope int

const (
	// SharedClient builds one client used by every worker.
	SharedClient ClientScope = iota
	// PerWorker builds one client per worker.
	PerWorker
)

// ClientScoper is implemented by adapters whose clients must not be shared.
type ClientScoper interface {
	ClientScope() ClientScope
}

// Recorder receives every outcome. *metrics.Aggregator implements it.
type Recorder interface {
	Record(o metrics.Outcome)
}

func scopeOf(a Adapter) ClientScope {
	if s, ok := a.(ClientScoper); ok {
		return s.ClientScope()
	}
	return SharedClient
}
