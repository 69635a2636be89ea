package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

func TestBuildEndpointTemplateOverrides(t *testing.T) {
	cfg := &config.Config{
		TargetURL: "https://api.example.com",
		Method:    http.MethodPost,
		Headers: map[string]string{
			"Authorization": "Bearer base",
		},
		Body: "{}",
	}

	ep := config.Endpoint{
		Name:   "list",
		Weight: 2,
		Path:   "/users",
		Method: http.MethodGet,
		Headers: map[string]string{
			"X-Feature": "beta",
		},
	}

	tmpl, err := buildEndpointTemplate(cfg, ep, nil)
	if err != nil {
		t.Fatalf("buildEndpointTemplate error: %v", err)
	}
	if tmpl.name != "list" || tmpl.weight != 2 {
		t.Fatalf("template = %q/%d, want list/2", tmpl.name, tmpl.weight)
	}

	req, err := tmpl.builder.Build(context.Background())
	if err != nil {
		t.Fatalf("builder.Build error: %v", err)
	}
	if req.Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", req.Method)
	}
	if req.URL.String() != "https://api.example.com/users" {
		t.Fatalf("unexpected url: %s", req.URL.String())
	}
	if req.Header.Get("Authorization") != "Bearer base" {
		t.Fatalf("base header missing")
	}
	if req.Header.Get("X-Feature") != "beta" {
		t.Fatalf("endpoint header missing")
	}
}

func TestBuildEndpointTemplateDefaultsNameToURL(t *testing.T) {
	cfg := &config.Config{TargetURL: "https://api.example.com"}
	tmpl, err := buildEndpointTemplate(cfg, config.Endpoint{URL: "https://other.example.com/x"}, nil)
	if err != nil {
		t.Fatalf("buildEndpointTemplate error: %v", err)
	}
	if tmpl.name != "https://other.example.com/x" {
		t.Errorf("name = %q", tmpl.name)
	}
	if tmpl.weight != 1 {
		t.Errorf("weight = %d, want 1", tmpl.weight)
	}
}

func TestResolveEndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		ep      config.Endpoint
		want    string
		wantErr bool
	}{
		{"absolute url wins", "https://a.example.com", config.Endpoint{URL: "https://b.example.com/x", Path: "/y"}, "https://b.example.com/x", false},
		{"path resolves against base", "https://a.example.com/api/", config.Endpoint{Path: "users"}, "https://a.example.com/api/users", false},
		{"no path uses base", "https://a.example.com", config.Endpoint{}, "https://a.example.com", false},
		{"no base no url", "", config.Endpoint{Path: "/users"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveEndpointURL(tt.base, tt.ep)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeHeaders(t *testing.T) {
	got := mergeHeaders(map[string]string{"x-a": "1", "X-B": "2"}, map[string]string{"x-b": "3", " ": "skip"})
	if got["X-A"] != "1" || got["X-B"] != "3" {
		t.Errorf("merged = %v", got)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
	if mergeHeaders(nil, nil) != nil {
		t.Error("expected nil for empty inputs")
	}
}

func TestPickTemplateFollowsWeights(t *testing.T) {
	selector := &endpointSelector{
		templates: []*endpointTemplate{
			{name: "heavy", weight: 9},
			{name: "light", weight: 1},
		},
		totalWeight: 10,
		rnd:         newRandSource(7),
	}
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[selector.pickTemplate().name]++
	}
	if counts["heavy"] < 8500 || counts["heavy"] > 9500 {
		t.Errorf("heavy picked %d times, want about 9000", counts["heavy"])
	}
	if counts["light"] == 0 {
		t.Error("light never picked")
	}
}

type endpointRecorder struct {
	failures int
	attempts int
	seen     map[*endpointTemplate]int
}

func (r *endpointRecorder) BuildClient(context.Context) (runner.Client, error) { return nil, nil }

func (r *endpointRecorder) SendRequest(ctx context.Context, _ runner.Client) metrics.Outcome {
	r.attempts++
	if r.seen == nil {
		r.seen = map[*endpointTemplate]int{}
	}
	r.seen[endpointFromContext(ctx)]++
	if r.attempts <= r.failures {
		return metrics.Failed("503 Service Unavailable", 0)
	}
	return metrics.Succeeded("200 OK", 0, 0)
}

func TestEndpointSelectionWrapperReusesChoiceAcrossRetries(t *testing.T) {
	selector := &endpointSelector{
		templates: []*endpointTemplate{
			{name: "a", weight: 1},
			{name: "b", weight: 1},
		},
		totalWeight: 2,
		rnd:         newRandSource(3),
	}

	recorder := &endpointRecorder{failures: 2}
	wrapped := selector.Wrap(runner.WithRetry(recorder, runner.RetryPolicy{MaxAttempts: 3}))

	o := wrapped.SendRequest(context.Background(), nil)
	if !o.Success {
		t.Fatalf("outcome = %+v, want success", o)
	}
	if recorder.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", recorder.attempts)
	}
	if len(recorder.seen) != 1 {
		t.Fatalf("expected a single template across retries, got %d", len(recorder.seen))
	}
	for tmpl := range recorder.seen {
		if tmpl == nil {
			t.Fatal("template missing from context")
		}
	}
}

func TestNilSelectorWrapIsIdentity(t *testing.T) {
	var selector *endpointSelector
	inner := &endpointRecorder{}
	if got := selector.Wrap(inner); got != runner.Adapter(inner) {
		t.Error("nil selector should return the inner adapter")
	}
	if selector.testedEndpoints() != nil {
		t.Error("nil selector should list no endpoints")
	}
}

func TestNewEndpointSelectorNoEndpoints(t *testing.T) {
	selector, err := newEndpointSelector(&config.Config{TargetURL: "http://x"}, nil, newRandSource(1))
	if err != nil || selector != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", selector, err)
	}
}
