package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockOAuth2Server provides a test OAuth2 server that tracks requests
type mockOAuth2Server struct {
	server       *httptest.Server
	requestCount atomic.Int32
	expiresIn    int
	statusCode   int

	mu        sync.Mutex
	lastForm  map[string]string
	basicUser string
	basicPass string
}

func newMockOAuth2Server(t *testing.T, expiresIn int) *mockOAuth2Server {
	t.Helper()
	m := &mockOAuth2Server{expiresIn: expiresIn, statusCode: http.StatusOK}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := m.requestCount.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.lastForm = map[string]string{}
		for k := range r.PostForm {
			m.lastForm[k] = r.PostForm.Get(k)
		}
		m.basicUser, m.basicPass, _ = r.BasicAuth()
		status := m.statusCode
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"token_type":   "Bearer",
			"expires_in":   m.expiresIn,
		})
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockOAuth2Server) form(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastForm[key]
}

func TestClientCredentialsBasicFlow(t *testing.T) {
	srv := newMockOAuth2Server(t, 3600)
	p, err := NewOAuth2ClientCredentialsProvider(srv.server.URL, "client", "secret", []string{"read", "write"}, time.Minute)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}

	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "token-1" {
			t.Fatalf("Token = %q, want cached token-1", tok)
		}
	}
	if got := srv.requestCount.Load(); got != 1 {
		t.Fatalf("token endpoint hit %d times, want 1", got)
	}
	if srv.form("grant_type") != "client_credentials" {
		t.Fatalf("grant_type = %q", srv.form("grant_type"))
	}
	if srv.form("scope") != "read write" {
		t.Fatalf("scope = %q", srv.form("scope"))
	}
	if srv.basicUser != "client" || srv.basicPass != "secret" {
		t.Fatalf("client credentials should travel in basic auth, got %q/%q", srv.basicUser, srv.basicPass)
	}
	if srv.form("client_secret") != "" {
		t.Fatalf("client secret leaked into the form body")
	}
}

func TestClientCredentialsRefreshesBeforeExpiry(t *testing.T) {
	srv := newMockOAuth2Server(t, 30)
	// Tokens living 30s with a 60s refresh window are always stale.
	p, err := NewOAuth2ClientCredentialsProvider(srv.server.URL, "client", "secret", nil, time.Minute)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}
	first, _ := p.Token(context.Background())
	second, _ := p.Token(context.Background())
	if first == second {
		t.Fatalf("expected a refreshed token, got %q twice", first)
	}
	if got := srv.requestCount.Load(); got != 2 {
		t.Fatalf("token endpoint hit %d times, want 2", got)
	}
}

func TestResourceOwnerBasicFlow(t *testing.T) {
	srv := newMockOAuth2Server(t, 3600)
	p, err := NewOAuth2ResourceOwnerProvider(srv.server.URL, "client", "secret", "alice", "pw", nil, 0)
	if err != nil {
		t.Fatalf("NewOAuth2ResourceOwnerProvider: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := p.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer token-1" {
		t.Fatalf("Authorization = %q", got)
	}
	if srv.form("grant_type") != "password" || srv.form("username") != "alice" || srv.form("password") != "pw" {
		t.Fatalf("unexpected password grant form")
	}
}

func TestOAuth2ErrorHandling(t *testing.T) {
	srv := newMockOAuth2Server(t, 3600)
	srv.statusCode = http.StatusUnauthorized

	p, err := NewOAuth2ClientCredentialsProvider(srv.server.URL, "client", "wrong", nil, 0)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}
	if _, err := p.Token(context.Background()); err == nil {
		t.Fatalf("expected error from rejected token request")
	}
}

func TestOAuth2TokenCachingConcurrency(t *testing.T) {
	srv := newMockOAuth2Server(t, 3600)
	p, err := NewOAuth2ClientCredentialsProvider(srv.server.URL, "client", "secret", nil, 0)
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentialsProvider: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Token(context.Background()); err != nil {
				t.Errorf("Token: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := srv.requestCount.Load(); got != 1 {
		t.Fatalf("token endpoint hit %d times under concurrency, want 1", got)
	}
}

func TestProviderContextCancellation(t *testing.T) {
	srv := newMockOAuth2Server(t, 3600)
	p, _ := NewOAuth2ClientCredentialsProvider(srv.server.URL, "client", "secret", nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Token(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestProviderConstructorValidation(t *testing.T) {
	if _, err := NewOAuth2ClientCredentialsProvider("", "", "", nil, 0); err == nil {
		t.Fatalf("expected missing field error")
	}
	if _, err := NewOAuth2ResourceOwnerProvider("http://x", "id", "secret", "", "", nil, 0); err == nil {
		t.Fatalf("expected missing username error")
	}
}
