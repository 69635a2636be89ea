package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// Environment fallbacks for secrets that should stay out of config files.
const (
	EnvAuthClientSecret = "PERFGAUGE_AUTH_CLIENT_SECRET"
	EnvAuthPassword     = "PERFGAUGE_AUTH_PASSWORD"
	EnvAuthStaticToken  = "PERFGAUGE_AUTH_STATIC_TOKEN"
	EnvRedisPassword    = "PERFGAUGE_REDIS_PASSWORD"
)

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag applies.
func Defaults() *Config {
	return &Config{
		Method:      "GET",
		Headers:     map[string]string{},
		Concurrency: 1,
		Timeout:     30 * time.Second,
		Protocol:    ProtocolHTTP,
		Arrival:     ArrivalConfig{Model: ArrivalModelUniform},
		ObjectStore: ObjectStoreConfig{API: "json", Operation: ObjectStoreRead},
		WebSocket: WebSocketConfig{
			ReceiveTimeout:   10 * time.Second,
			HandshakeTimeout: 30 * time.Second,
		},
		GRPC:    GRPCConfig{Timeout: 30 * time.Second},
		Redis:   RedisConfig{Command: RedisGet, ValueSize: 64, ReadRatio: 0.8},
		Log:     LogConfig{Level: "info", Format: "console"},
		Tracing: TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(cfg.Method)
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	applySecretFallbacks(cfg)

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

func applySecretFallbacks(cfg *Config) {
	if cfg.Auth.ClientSecret == "" {
		cfg.Auth.ClientSecret = os.Getenv(EnvAuthClientSecret)
	}
	if cfg.Auth.Password == "" {
		cfg.Auth.Password = os.Getenv(EnvAuthPassword)
	}
	if cfg.Auth.StaticToken == "" {
		cfg.Auth.StaticToken = os.Getenv(EnvAuthStaticToken)
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = os.Getenv(EnvRedisPassword)
	}
}

// section wraps one settings map and records the first conversion error.
type section struct {
	settings map[string]interface{}
	err      error
}

func (s *section) fail(key string, err error) {
	if err != nil && s.err == nil {
		s.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (s *section) str(dst *string, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asString(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = strings.TrimSpace(val)
	}
}

func (s *section) rawStr(dst *string, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asString(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) integer(dst *int, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asInt(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) bigint(dst *int64, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asInt64(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) float(dst *float64, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asFloat64(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) boolean(dst *bool, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asBool(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) duration(dst *time.Duration, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asDuration(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) list(dst *[]string, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

func (s *section) stringMap(dst *map[string]string, keys ...string) {
	if raw, ok := lookupSetting(s.settings, keys...); ok {
		val, err := asStringMap(raw)
		if err != nil {
			s.fail(keys[0], err)
			return
		}
		*dst = val
	}
}

// sub returns the nested section under key, or nil when absent.
func (s *section) sub(keys ...string) *section {
	raw, ok := lookupSetting(s.settings, keys...)
	if !ok || raw == nil {
		return nil
	}
	entry, err := toStringKeyMap(raw)
	if err != nil {
		s.fail(keys[0], err)
		return nil
	}
	return &section{settings: entry}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	s := &section{settings: settings}

	s.str(&cfg.Label, "label")
	s.str(&cfg.TargetURL, "target")
	s.str(&cfg.Method, "method")
	s.rawStr(&cfg.Body, "body")
	s.str(&cfg.BodyFile, "bodyfile", "body_file", "body-file")
	s.integer(&cfg.Concurrency, "concurrency")
	s.float(&cfg.Rate, "rate")
	s.duration(&cfg.Duration, "duration")
	s.bigint(&cfg.Total, "total")
	s.duration(&cfg.Timeout, "timeout")
	s.integer(&cfg.Retries, "retries")
	s.duration(&cfg.RetryDelay, "retrydelay", "retry_delay", "retry-delay")
	s.bigint(&cfg.Seed, "seed")
	s.list(&cfg.Thresholds, "thresholds")
	if s.err != nil {
		return s.err
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "loadpatterns", "load_patterns", "load-patterns"); ok {
		patterns, err := parseLoadPatterns(raw)
		if err != nil {
			return fmt.Errorf("loadPatterns: %w", err)
		}
		cfg.LoadPatterns = patterns
	}

	if raw, ok := lookupSetting(settings, "arrival", "arrivalmodel", "arrival_model", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "endpoints"); ok {
		endpoints, err := parseEndpoints(raw)
		if err != nil {
			return fmt.Errorf("endpoints: %w", err)
		}
		cfg.Endpoints = endpoints
	}

	if auth := s.sub("auth"); auth != nil {
		applyAuthSettings(&cfg.Auth, auth)
		s.fail("auth", auth.err)
	}
	if store := s.sub("objectstore", "object_store", "object-store"); store != nil {
		applyObjectStoreSettings(&cfg.ObjectStore, store)
		s.fail("objectstore", store.err)
	}
	if ws := s.sub("websocket"); ws != nil {
		ws.list(&cfg.WebSocket.Messages, "messages")
		ws.duration(&cfg.WebSocket.MessageInterval, "messageinterval", "message_interval", "message-interval")
		ws.duration(&cfg.WebSocket.ReceiveTimeout, "receivetimeout", "receive_timeout", "receive-timeout")
		ws.duration(&cfg.WebSocket.HandshakeTimeout, "handshaketimeout", "handshake_timeout", "handshake-timeout")
		s.fail("websocket", ws.err)
	}
	if g := s.sub("grpc"); g != nil {
		g.rawStr(&cfg.GRPC.ProtoFile, "protofile", "proto_file", "proto-file")
		g.rawStr(&cfg.GRPC.Service, "service")
		g.rawStr(&cfg.GRPC.Method, "method")
		g.rawStr(&cfg.GRPC.Message, "message")
		g.stringMap(&cfg.GRPC.Metadata, "metadata")
		g.duration(&cfg.GRPC.Timeout, "timeout")
		g.boolean(&cfg.GRPC.TLS, "tls")
		g.boolean(&cfg.GRPC.Insecure, "insecure")
		s.fail("grpc", g.err)
	}
	if r := s.sub("redis"); r != nil {
		applyRedisSettings(&cfg.Redis, r)
		s.fail("redis", r.err)
	}
	if out := s.sub("output"); out != nil {
		out.boolean(&cfg.Output.JSON, "json")
		out.boolean(&cfg.Output.YAML, "yaml")
		out.str(&cfg.Output.HTML, "html")
		out.boolean(&cfg.Output.Dashboard, "dashboard")
		out.str(&cfg.Output.ResultsLog, "resultslog", "results_log", "results-log")
		out.str(&cfg.Output.PrometheusListen, "prometheuslisten", "prometheus_listen", "prometheus-listen")
		out.str(&cfg.Output.PrometheusPushURL, "prometheuspushurl", "prometheus_push_url", "prometheus-push-url")
		out.duration(&cfg.Output.ReportInterval, "reportinterval", "report_interval", "report-interval")
		out.boolean(&cfg.Output.LogErrors, "logerrors", "log_errors", "log-errors")
		s.fail("output", out.err)
	}
	if l := s.sub("log"); l != nil {
		l.str(&cfg.Log.Level, "level")
		l.str(&cfg.Log.Format, "format")
		s.fail("log", l.err)
	}
	if t := s.sub("tracing"); t != nil {
		t.str(&cfg.Tracing.Endpoint, "endpoint")
		t.str(&cfg.Tracing.Protocol, "protocol")
		t.str(&cfg.Tracing.ServiceName, "servicename", "service_name", "service-name")
		t.float(&cfg.Tracing.SampleRate, "samplerate", "sample_rate", "sample-rate")
		t.boolean(&cfg.Tracing.Insecure, "insecure")
		if raw, ok := lookupSetting(t.settings, "propagate"); ok {
			val, err := asBool(raw)
			if err != nil {
				t.fail("propagate", err)
			} else {
				cfg.Tracing.Propagate = &val
			}
		}
		s.fail("tracing", t.err)
	}

	return s.err
}

func applyAuthSettings(auth *AuthConfig, s *section) {
	var kind string
	s.str(&kind, "type")
	auth.Type = AuthType(strings.ToLower(kind))
	s.str(&auth.TokenURL, "tokenurl", "token_url", "token-url")
	s.str(&auth.ClientID, "clientid", "client_id", "client-id")
	s.str(&auth.ClientSecret, "clientsecret", "client_secret", "client-secret")
	s.str(&auth.Username, "username")
	s.str(&auth.Password, "password")
	s.list(&auth.Scopes, "scopes")
	s.str(&auth.StaticToken, "statictoken", "static_token", "static-token")
	s.duration(&auth.RefreshBeforeExpiry, "refreshbeforeexpiry", "refresh_before_expiry", "refresh-before-expiry")
}

func applyObjectStoreSettings(store *ObjectStoreConfig, s *section) {
	s.str(&store.Endpoint, "endpoint")
	s.str(&store.API, "api")
	s.str(&store.Bucket, "bucket")
	s.list(&store.Objects, "objects")
	s.str(&store.Upload, "upload")
	s.integer(&store.RangeOffset, "rangeoffset", "range_offset", "range-offset")
	s.integer(&store.RangeBytes, "rangebytes", "range_bytes", "range-bytes")
	var op string
	s.str(&op, "operation")
	if op != "" {
		store.Operation = ObjectStoreOperation(strings.ToLower(op))
	}
}

func applyRedisSettings(r *RedisConfig, s *section) {
	s.str(&r.Address, "address", "addr")
	s.rawStr(&r.Password, "password")
	s.integer(&r.DB, "db")
	var cmd string
	s.str(&cmd, "command")
	if cmd != "" {
		r.Command = RedisCommand(strings.ToLower(cmd))
	}
	s.list(&r.Keys, "keys")
	s.integer(&r.ValueSize, "valuesize", "value_size", "value-size")
	s.float(&r.ReadRatio, "readratio", "read_ratio", "read-ratio")
	s.duration(&r.KeyTTL, "keyttl", "key_ttl", "key-ttl")
	s.integer(&r.PoolSize, "poolsize", "pool_size", "pool-size")
	s.duration(&r.DialTimeout, "dialtimeout", "dial_timeout", "dial-timeout")
}

func parseLoadPatterns(value interface{}) ([]LoadPattern, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	patterns := make([]LoadPattern, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		pattern, err := buildLoadPattern(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

func buildLoadPattern(settings map[string]interface{}) (LoadPattern, error) {
	var pattern LoadPattern
	s := &section{settings: settings}
	s.str(&pattern.Name, "name")
	var kind string
	s.str(&kind, "type")
	pattern.Type = LoadPatternType(strings.ToLower(kind))
	s.float(&pattern.FromRPS, "fromrps", "from_rps", "from-rps")
	s.float(&pattern.ToRPS, "torps", "to_rps", "to-rps")
	s.duration(&pattern.Duration, "duration")
	s.float(&pattern.RPS, "rps")
	if s.err != nil {
		return LoadPattern{}, s.err
	}
	if raw, ok := lookupSetting(settings, "steps"); ok {
		steps, err := parseLoadSteps(raw)
		if err != nil {
			return LoadPattern{}, fmt.Errorf("steps: %w", err)
		}
		pattern.Steps = steps
	}
	return pattern, nil
}

func parseLoadSteps(value interface{}) ([]LoadStep, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	steps := make([]LoadStep, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var step LoadStep
		s := &section{settings: entry}
		s.float(&step.RPS, "rps")
		s.duration(&step.Duration, "duration")
		if s.err != nil {
			return nil, fmt.Errorf("index %d %w", idx, s.err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	switch v := value.(type) {
	case string:
		model := strings.ToLower(strings.TrimSpace(v))
		if model == "" {
			return ArrivalConfig{}, nil
		}
		return ArrivalConfig{Model: ArrivalModel(model)}, nil
	default:
		entry, err := toStringKeyMap(value)
		if err != nil {
			return ArrivalConfig{}, err
		}
		if raw, ok := lookupSetting(entry, "model"); ok {
			val, err := asString(raw)
			if err != nil {
				return ArrivalConfig{}, fmt.Errorf("model: %w", err)
			}
			return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
		}
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
}

func parseEndpoints(value interface{}) ([]Endpoint, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	endpoints := make([]Endpoint, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		endpoint, err := buildEndpoint(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

func buildEndpoint(settings map[string]interface{}) (Endpoint, error) {
	endpoint := Endpoint{Weight: 1}
	s := &section{settings: settings}
	s.str(&endpoint.Name, "name")
	s.integer(&endpoint.Weight, "weight")
	s.str(&endpoint.Method, "method")
	s.str(&endpoint.URL, "url", "target")
	s.str(&endpoint.Path, "path")
	s.rawStr(&endpoint.Body, "body")
	s.rawStr(&endpoint.BodyFile, "bodyfile", "body_file", "body-file")
	if s.err != nil {
		return Endpoint{}, s.err
	}
	endpoint.Method = strings.ToUpper(endpoint.Method)

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return Endpoint{}, fmt.Errorf("headers: %w", err)
		}
		if len(hdrs) > 0 {
			endpoint.Headers = map[string]string{}
			for key, value := range hdrs {
				trimmedKey := strings.TrimSpace(key)
				if trimmedKey == "" {
					return Endpoint{}, fmt.Errorf("headers: key cannot be empty")
				}
				endpoint.Headers[http.CanonicalHeaderKey(trimmedKey)] = value
			}
		}
	}
	return endpoint, nil
}
