package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/perfgauge/internal/config"
)

func TestLoadWithoutArgsRequestsHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()

	if cfg.Method != "GET" {
		t.Errorf("Method = %q, want GET", cfg.Method)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Concurrency)
	}
	if cfg.Rate != 0 {
		t.Errorf("Rate = %v, want 0", cfg.Rate)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
	if cfg.Output.JSON {
		t.Errorf("Output.JSON = true, want false")
	}
	if cfg.Protocol != config.ProtocolHTTP {
		t.Errorf("Protocol = %q, want http", cfg.Protocol)
	}
	if cfg.ObjectStore.Operation != config.ObjectStoreRead {
		t.Errorf("ObjectStore.Operation = %q, want read", cfg.ObjectStore.Operation)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"label": "checkout",
		"target": "https://api.example.com",
		"method": "PUT",
		"headers": {"Content-Type": "application/json"},
		"body": "{\"foo\":\"bar\"}",
		"concurrency": 10,
		"rate": 100,
		"total": 500,
		"timeout": "45s",
		"retries": 3,
		"output": {"json": true, "prometheus_listen": ":9102"},
		"log": {"level": "debug", "format": "json"}
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--method", "PATCH", "--header", "Authorization=Bearer token"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Label != "checkout" {
		t.Errorf("Label = %q, want checkout", cfg.Label)
	}
	if cfg.TargetURL != "https://api.example.com" {
		t.Errorf("TargetURL = %q, want https://api.example.com", cfg.TargetURL)
	}
	if cfg.Method != "PATCH" {
		t.Errorf("Method = %q, want PATCH", cfg.Method)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if cfg.Headers["Authorization"] != "Bearer token" {
		t.Errorf("Headers[Authorization] = %q, want Bearer token", cfg.Headers["Authorization"])
	}
	if cfg.Body != `{"foo":"bar"}` {
		t.Errorf("Body = %q, want {\"foo\":\"bar\"}", cfg.Body)
	}
	if cfg.Concurrency != 10 {
		t.Errorf("Concurrency = %d, want 10", cfg.Concurrency)
	}
	if cfg.Rate != 100 {
		t.Errorf("Rate = %v, want 100", cfg.Rate)
	}
	if cfg.Total != 500 {
		t.Errorf("Total = %d, want 500", cfg.Total)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %s, want 45s", cfg.Timeout)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.Retries)
	}
	if !cfg.Output.JSON || cfg.Output.PrometheusListen != ":9102" {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"protocol: objectstore",
		"concurrency: 4",
		"rate: 20",
		"duration: 30s",
		"objectstore:",
		"  endpoint: http://127.0.0.1:4443",
		"  bucket: bench",
		"  objects:",
		"    - small.bin",
		"    - large.bin",
		"thresholds:",
		"  - latency:p99 < 500",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Protocol != config.ProtocolObjectStore {
		t.Errorf("Protocol = %q, want objectstore", cfg.Protocol)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.Rate != 20 {
		t.Errorf("Rate = %v, want 20", cfg.Rate)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", cfg.Duration)
	}
	if cfg.ObjectStore.Bucket != "bench" || len(cfg.ObjectStore.Objects) != 2 {
		t.Errorf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.ObjectStore.Operation != config.ObjectStoreRead {
		t.Errorf("ObjectStore.Operation = %q, want read default", cfg.ObjectStore.Operation)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestFlagBodyOverridesConfigBodyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"bodyFile":"payload.json"}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--body", "inline"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Body != "inline" {
		t.Errorf("Body = %q, want inline", cfg.Body)
	}
	if cfg.BodyFile != "" {
		t.Errorf("BodyFile = %q, want empty", cfg.BodyFile)
	}
}

func TestFlagBodyFileOverridesConfigBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"body":"inline-config"}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load([]string{"--config", path, "--body-file", "payload.txt"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BodyFile != "payload.txt" {
		t.Errorf("BodyFile = %q, want payload.txt", cfg.BodyFile)
	}
	if cfg.Body != "" {
		t.Errorf("Body = %q, want empty", cfg.Body)
	}
}

func validBase() config.Config {
	cfg := *config.Defaults()
	cfg.TargetURL = "https://example.com"
	cfg.Total = 10
	return cfg
}

func TestConfigValidationErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{
			name:   "missing target",
			mutate: func(c *config.Config) { c.TargetURL = "" },
			want:   []string{"target"},
		},
		{
			name: "negative values",
			mutate: func(c *config.Config) {
				c.Concurrency = -1
				c.Rate = -5
				c.Total = -10
				c.Timeout = -1
				c.Retries = -1
			},
			want: []string{"concurrency", "rate", "total", "timeout", "retries"},
		},
		{
			name: "body conflict",
			mutate: func(c *config.Config) {
				c.Body = "inline"
				c.BodyFile = "payload.json"
			},
			want: []string{"body"},
		},
		{
			name:   "two stop conditions",
			mutate: func(c *config.Config) { c.Duration = time.Minute },
			want:   []string{"mutually exclusive"},
		},
		{
			name:   "no stop condition",
			mutate: func(c *config.Config) { c.Total = 0 },
			want:   []string{"one of total or duration"},
		},
		{
			name: "objectstore grpc api",
			mutate: func(c *config.Config) {
				c.Protocol = config.ProtocolObjectStore
				c.ObjectStore.API = "grpc"
			},
			want: []string{"grpc api", "bucket", "objects"},
		},
		{
			name: "objectstore write without upload",
			mutate: func(c *config.Config) {
				c.Protocol = config.ProtocolObjectStore
				c.ObjectStore.Bucket = "b"
				c.ObjectStore.Operation = config.ObjectStoreWrite
			},
			want: []string{"upload is required"},
		},
		{
			name: "objectstore range-read without length",
			mutate: func(c *config.Config) {
				c.Protocol = config.ProtocolObjectStore
				c.ObjectStore.Bucket = "b"
				c.ObjectStore.Objects = []string{"o"}
				c.ObjectStore.Operation = config.ObjectStoreRangeRead
				c.ObjectStore.RangeOffset = -1
			},
			want: []string{"range_bytes", "range_offset"},
		},
		{
			name: "redis without address",
			mutate: func(c *config.Config) {
				c.Protocol = config.ProtocolRedis
				c.Redis.ReadRatio = 2
			},
			want: []string{"redis: address", "redis: keys", "read_ratio"},
		},
		{
			name: "grpc requirements",
			mutate: func(c *config.Config) {
				c.Protocol = config.ProtocolGRPC
			},
			want: []string{"proto_file", "service", "method"},
		},
		{
			name:   "bad log format",
			mutate: func(c *config.Config) { c.Log.Format = "xml" },
			want:   []string{"log: format"},
		},
		{
			name: "static auth without token",
			mutate: func(c *config.Config) {
				c.Auth.Type = config.AuthTypeStatic
			},
			want: []string{"static_token"},
		},
		{
			name:   "unknown protocol",
			mutate: func(c *config.Config) { c.Protocol = "ftp" },
			want:   []string{"protocol: must be"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBase()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error %q missing %q", err.Error(), want)
				}
			}
		})
	}
}

func TestValidateRedisNeedsNoTarget(t *testing.T) {
	cfg := validBase()
	cfg.TargetURL = ""
	cfg.Protocol = config.ProtocolRedis
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.Keys = []string{"k"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadPatternsImplyDuration(t *testing.T) {
	cfg := validBase()
	cfg.Total = 0
	cfg.LoadPatterns = []config.LoadPattern{
		{Type: config.LoadPatternTypeRamp, FromRPS: 1, ToRPS: 10, Duration: 10 * time.Second},
		{Type: config.LoadPatternTypeStep, Steps: []config.LoadStep{
			{RPS: 5, Duration: 5 * time.Second},
			{RPS: 7, Duration: 5 * time.Second},
		}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := cfg.EffectiveDuration(); got != 20*time.Second {
		t.Fatalf("EffectiveDuration() = %v, want 20s", got)
	}
}

func TestWarnings(t *testing.T) {
	cfg := validBase()
	if len(cfg.Warnings()) != 0 {
		t.Fatalf("unexpected warnings: %v", cfg.Warnings())
	}
	cfg.Rate = 5000
	cfg.Concurrency = 1000
	if got := len(cfg.Warnings()); got != 2 {
		t.Fatalf("Warnings() = %d entries, want 2", got)
	}
}

func TestTracingConfigPropagation(t *testing.T) {
	off := false
	cases := []struct {
		name string
		cfg  config.TracingConfig
		want bool
	}{
		{"disabled", config.TracingConfig{}, false},
		{"enabled", config.TracingConfig{Endpoint: "localhost:4317"}, true},
		{"explicit off", config.TracingConfig{Endpoint: "localhost:4317", Propagate: &off}, false},
	}
	for _, tc := range cases {
		if got := tc.cfg.ShouldPropagate(); got != tc.want {
			t.Errorf("%s: ShouldPropagate() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
