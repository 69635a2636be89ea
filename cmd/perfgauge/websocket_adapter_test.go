package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
)

func newEchoServer(t *testing.T, seenAuth chan<- string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seenAuth != nil {
			seenAuth <- r.Header.Get("Authorization")
		}
		if r.Header.Get("X-Reject") != "" {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketAdapterSession(t *testing.T) {
	seen := make(chan string, 1)
	url := newEchoServer(t, seen)
	a, err := newWebSocketAdapter(&config.Config{
		TargetURL: url,
		WebSocket: config.WebSocketConfig{
			Messages:       []string{"ping", "hello"},
			ReceiveTimeout: 2 * time.Second,
		},
	}, auth.NewStaticTokenProvider("ws-token"), false)
	if err != nil {
		t.Fatalf("newWebSocketAdapter: %v", err)
	}

	o := a.SendRequest(context.Background(), nil)
	if !o.Success {
		t.Fatalf("outcome = %+v", o)
	}
	if o.Status != "OK" || o.Operation != "session" {
		t.Errorf("outcome = %+v", o)
	}
	if o.Bytes != 18 {
		t.Errorf("Bytes = %d, want 18 (9 sent + 9 echoed)", o.Bytes)
	}
	if got := <-seen; got != "Bearer ws-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestWebSocketAdapterHandshakeRejected(t *testing.T) {
	url := newEchoServer(t, nil)
	a, err := newWebSocketAdapter(&config.Config{
		TargetURL: url,
		Headers:   map[string]string{"X-Reject": "1"},
	}, nil, false)
	if err != nil {
		t.Fatalf("newWebSocketAdapter: %v", err)
	}

	o := a.SendRequest(context.Background(), nil)
	if o.Success {
		t.Fatal("expected handshake failure")
	}
	if o.Status != "403 Forbidden" {
		t.Errorf("Status = %q, want 403 Forbidden", o.Status)
	}
}

func TestWebSocketAdapterInvalidHeaders(t *testing.T) {
	_, err := newWebSocketAdapter(&config.Config{
		TargetURL: "ws://localhost:1",
		Headers:   map[string]string{"X-Bad": "a\r\nb"},
	}, nil, false)
	if err == nil {
		t.Fatal("expected error for header with CRLF")
	}
}
