package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/httpclient"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
	"github.com/torosent/perfgauge/internal/tracing"
	"github.com/torosent/perfgauge/internal/websocket"
)

const opSession = "session"

// websocketAdapter runs one full session per call: connect, exchange the
// configured messages, close.
type websocketAdapter struct {
	url       string
	headers   http.Header
	cfg       config.WebSocketConfig
	messages  [][]byte
	provider  auth.Provider
	propagate bool
}

func newWebSocketAdapter(cfg *config.Config, provider auth.Provider, propagate bool) (*websocketAdapter, error) {
	headers, err := httpclient.CanonicalHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	messages := make([][]byte, 0, len(cfg.WebSocket.Messages))
	for _, m := range cfg.WebSocket.Messages {
		messages = append(messages, []byte(m))
	}
	return &websocketAdapter{
		url:       cfg.TargetURL,
		headers:   headers,
		cfg:       cfg.WebSocket,
		messages:  messages,
		provider:  provider,
		propagate: propagate,
	}, nil
}

func (a *websocketAdapter) BuildClient(context.Context) (runner.Client, error) {
	return nil, nil
}

func (a *websocketAdapter) SendRequest(ctx context.Context, _ runner.Client) metrics.Outcome {
	start := time.Now()
	headers := a.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if err := ensureAuthHeader(ctx, a.provider, headers); err != nil {
		return metrics.Failed(fallbackStatus(err), time.Since(start)).WithOperation(opSession)
	}
	if a.propagate {
		tracing.InjectHTTPHeaders(ctx, headers)
	}

	res, err := websocket.Session(ctx, websocket.Config{
		URL:              a.url,
		Headers:          headers,
		HandshakeTimeout: a.cfg.HandshakeTimeout,
		ReadTimeout:      a.cfg.ReceiveTimeout,
		WriteTimeout:     a.cfg.ReceiveTimeout,
	}, a.messages, a.cfg.MessageInterval)
	elapsed := time.Since(start)
	bytes := uint64(res.BytesSent + res.BytesReceived)
	if err != nil {
		status := fallbackStatus(err)
		var he *websocket.HandshakeError
		if errors.As(err, &he) {
			status = httpStatus(he.StatusCode)
		}
		return metrics.Failed(status, elapsed).WithBytes(bytes).WithOperation(opSession)
	}
	return metrics.Succeeded(statusOK, bytes, elapsed).WithOperation(opSession)
}
