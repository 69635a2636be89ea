package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/runner"
)

// adapterDeps carries what every protocol adapter may need.
type adapterDeps struct {
	auth      auth.Provider
	propagate bool
	rnd       *randSource
	log       *zap.Logger
}

// newAdapterFromConfig creates the protocol adapter named by cfg.Protocol.
func newAdapterFromConfig(cfg *config.Config, deps adapterDeps) (runner.Adapter, error) {
	if deps.rnd == nil {
		deps.rnd = newRandSource(cfg.Seed)
	}
	protocol := cfg.Protocol
	if protocol == "" {
		protocol = config.ProtocolHTTP
	}

	switch protocol {
	case config.ProtocolHTTP:
		return newHTTPAdapter(cfg, deps.auth, deps.propagate)
	case config.ProtocolObjectStore:
		return newObjectStoreAdapter(cfg, deps.auth, deps.rnd, deps.log), nil
	case config.ProtocolGRPC:
		return newGRPCAdapter(cfg, deps.auth, deps.propagate)
	case config.ProtocolWebSocket:
		return newWebSocketAdapter(cfg, deps.auth, deps.propagate)
	case config.ProtocolRedis:
		return newRedisAdapter(cfg, deps.rnd), nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", protocol)
	}
}

// decorate applies the adapter-side policies in the order the run needs
// them: logging sees every attempt, retries share one endpoint choice.
func decorate(a runner.Adapter, cfg *config.Config, selector *endpointSelector, rnd *randSource, log *zap.Logger) runner.Adapter {
	if cfg.Output.LogErrors {
		a = runner.WithLogging(a, log)
	}
	if cfg.Retries > 0 {
		a = runner.WithRetry(a, newRetryPolicy(cfg.Retries, cfg.RetryDelay, rnd))
	}
	return selector.Wrap(a)
}
