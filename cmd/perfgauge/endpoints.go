package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/torosent/perfgauge/internal/auth"
	"github.com/torosent/perfgauge/internal/config"
	"github.com/torosent/perfgauge/internal/httpclient"
	"github.com/torosent/perfgauge/internal/metrics"
	"github.com/torosent/perfgauge/internal/runner"
)

// endpointTemplate is one weighted request shape. Its name is reported as
// the operation.
type endpointTemplate struct {
	name    string
	weight  int
	builder *httpclient.RequestBuilder
}

type endpointSelector struct {
	templates   []*endpointTemplate
	totalWeight int
	rnd         *randSource
}

func newEndpointSelector(cfg *config.Config, provider auth.Provider, rnd *randSource) (*endpointSelector, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, nil
	}

	templates := make([]*endpointTemplate, 0, len(cfg.Endpoints))
	total := 0
	for idx, ep := range cfg.Endpoints {
		tmpl, err := buildEndpointTemplate(cfg, ep, provider)
		if err != nil {
			name := ep.Name
			if strings.TrimSpace(name) == "" {
				name = fmt.Sprintf("index %d", idx)
			}
			return nil, fmt.Errorf("endpoint %s: %w", name, err)
		}
		templates = append(templates, tmpl)
		total += tmpl.weight
	}
	if total <= 0 {
		return nil, fmt.Errorf("endpoint weights must sum to > 0")
	}

	return &endpointSelector{
		templates:   templates,
		totalWeight: total,
		rnd:         rnd,
	}, nil
}

func buildEndpointTemplate(cfg *config.Config, ep config.Endpoint, provider auth.Provider) (*endpointTemplate, error) {
	weight := ep.Weight
	if weight <= 0 {
		weight = 1
	}

	method := strings.TrimSpace(ep.Method)
	if method == "" {
		method = cfg.Method
	}
	if method == "" {
		method = http.MethodGet
	}

	target, err := resolveEndpointURL(strings.TrimSpace(cfg.TargetURL), ep)
	if err != nil {
		return nil, err
	}

	body, bodyFile := cfg.Body, cfg.BodyFile
	if strings.TrimSpace(ep.Body) != "" {
		body, bodyFile = ep.Body, ""
	}
	if strings.TrimSpace(ep.BodyFile) != "" {
		body, bodyFile = "", ep.BodyFile
	}
	source, err := httpclient.NewBodySource(body, bodyFile)
	if err != nil {
		return nil, err
	}

	spec := httpclient.Spec{
		Method:  method,
		URL:     target,
		Headers: mergeHeaders(cfg.Headers, ep.Headers),
		Body:    source,
	}
	var builder *httpclient.RequestBuilder
	if provider != nil {
		builder, err = httpclient.NewRequestBuilderWithAuth(spec, provider)
	} else {
		builder, err = httpclient.NewRequestBuilder(spec)
	}
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(ep.Name)
	if name == "" {
		name = target
	}
	return &endpointTemplate{name: name, weight: weight, builder: builder}, nil
}

func resolveEndpointURL(base string, ep config.Endpoint) (string, error) {
	if trimmed := strings.TrimSpace(ep.URL); trimmed != "" {
		return trimmed, nil
	}
	if base == "" {
		return "", fmt.Errorf("url is required when global target is empty")
	}
	if strings.TrimSpace(ep.Path) == "" {
		return base, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base target %q: %w", base, err)
	}
	rel, err := url.Parse(strings.TrimSpace(ep.Path))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint path %q: %w", ep.Path, err)
	}
	return baseURL.ResolveReference(rel).String(), nil
}

func mergeHeaders(base map[string]string, overrides map[string]string) map[string]string {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
	}
	for k, v := range overrides {
		key := http.CanonicalHeaderKey(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		merged[key] = v
	}
	return merged
}

func (s *endpointSelector) pickTemplate() *endpointTemplate {
	if s == nil || len(s.templates) == 0 {
		return nil
	}
	if s.totalWeight <= 0 {
		return s.templates[0]
	}
	n := s.rnd.Intn(s.totalWeight)
	cumulative := 0
	for _, tmpl := range s.templates {
		cumulative += tmpl.weight
		if n < cumulative {
			return tmpl
		}
	}
	return s.templates[len(s.templates)-1]
}

// Wrap picks an endpoint before next runs, so retries of one call stay on
// the same endpoint.
func (s *endpointSelector) Wrap(next runner.Adapter) runner.Adapter {
	if s == nil || len(s.templates) == 0 || next == nil {
		return next
	}
	return &endpointSelectionAdapter{Decorator: runner.Decorator{Inner: next}, selector: s}
}

// testedEndpoints lists the templates for the HTML report.
func (s *endpointSelector) testedEndpoints() []endpointInfo {
	if s == nil {
		return nil
	}
	out := make([]endpointInfo, 0, len(s.templates))
	for _, tmpl := range s.templates {
		out = append(out, endpointInfo{name: tmpl.name, method: tmpl.builder.Method(), url: tmpl.builder.Target()})
	}
	return out
}

type endpointInfo struct {
	name, method, url string
}

type endpointSelectionAdapter struct {
	runner.Decorator
	selector *endpointSelector
}

func (e *endpointSelectionAdapter) SendRequest(ctx context.Context, client runner.Client) metrics.Outcome {
	if endpointFromContext(ctx) != nil {
		return e.Inner.SendRequest(ctx, client)
	}
	tmpl := e.selector.pickTemplate()
	if tmpl == nil {
		return e.Inner.SendRequest(ctx, client)
	}
	return e.Inner.SendRequest(context.WithValue(ctx, endpointContextKey, tmpl), client)
}

type endpointCtxKey struct{}

var endpointContextKey = endpointCtxKey{}

func endpointFromContext(ctx context.Context) *endpointTemplate {
	if ctx == nil {
		return nil
	}
	if tmpl, ok := ctx.Value(endpointContextKey).(*endpointTemplate); ok {
		return tmpl
	}
	return nil
}
