package config

import (
	"fmt"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolObjectStore Protocol = "objectstore"
	ProtocolHTTP        Protocol = "http"
	ProtocolGRPC        Protocol = "grpc"
	ProtocolWebSocket   Protocol = "websocket"
	ProtocolRedis       Protocol = "redis"
)

type Config struct {
	Label        string            `mapstructure:"label"`
	TargetURL    string            `mapstructure:"target"`
	Method       string            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	Body         string            `mapstructure:"body"`
	BodyFile     string            `mapstructure:"body_file"`
	Concurrency  int               `mapstructure:"concurrency"`
	Rate         float64           `mapstructure:"rate"`
	Duration     time.Duration     `mapstructure:"duration"`
	Total        int64             `mapstructure:"total"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Retries      int               `mapstructure:"retries"`
	RetryDelay   time.Duration     `mapstructure:"retry_delay"`
	Seed         int64             `mapstructure:"seed"`
	ConfigFile   string            `mapstructure:"-"`
	LoadPatterns []LoadPattern     `mapstructure:"load_patterns"`
	Arrival      ArrivalConfig     `mapstructure:"arrival"`
	Endpoints    []Endpoint        `mapstructure:"endpoints"`
	Auth         AuthConfig        `mapstructure:"auth"`
	Protocol     Protocol          `mapstructure:"protocol"`
	ObjectStore  ObjectStoreConfig `mapstructure:"objectstore"`
	WebSocket    WebSocketConfig   `mapstructure:"websocket"`
	GRPC         GRPCConfig        `mapstructure:"grpc"`
	Redis        RedisConfig       `mapstructure:"redis"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Output       OutputConfig      `mapstructure:"output"`
	Log          LogConfig         `mapstructure:"log"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
}

type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

type LoadPattern struct {
	Name     string          `mapstructure:"name"`
	Type     LoadPatternType `mapstructure:"type"`
	FromRPS  float64         `mapstructure:"from_rps"`
	ToRPS    float64         `mapstructure:"to_rps"`
	Duration time.Duration   `mapstructure:"duration"`
	Steps    []LoadStep      `mapstructure:"steps"`
	RPS      float64         `mapstructure:"rps"`
}

type LoadStep struct {
	RPS      float64       `mapstructure:"rps"`
	Duration time.Duration `mapstructure:"duration"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// Endpoint is one weighted HTTP request shape. Its name becomes the
// operation name in per-operation reports.
type Endpoint struct {
	Name     string            `mapstructure:"name"`
	Weight   int               `mapstructure:"weight"`
	Method   string            `mapstructure:"method"`
	URL      string            `mapstructure:"url"`
	Path     string            `mapstructure:"path"`
	Headers  map[string]string `mapstructure:"headers"`
	Body     string            `mapstructure:"body"`
	BodyFile string            `mapstructure:"body_file"`
}

type ObjectStoreOperation string

const (
	ObjectStoreRead      ObjectStoreOperation = "read"
	ObjectStoreRangeRead ObjectStoreOperation = "range-read"
	ObjectStoreWrite     ObjectStoreOperation = "write"
)

type ObjectStoreConfig struct {
	Endpoint    string               `mapstructure:"endpoint"`     // API base URL
	API         string               `mapstructure:"api"`          // "json" (default) or "grpc"
	Bucket      string               `mapstructure:"bucket"`       // Bucket name
	Objects     []string             `mapstructure:"objects"`      // Objects to read, picked at random
	Operation   ObjectStoreOperation `mapstructure:"operation"`    // "read", "range-read" or "write"
	Upload      string               `mapstructure:"upload"`       // Object name for the write workload
	RangeOffset int                  `mapstructure:"range_offset"` // First byte fetched by range-read
	RangeBytes  int                  `mapstructure:"range_bytes"`  // Bytes fetched by range-read
}

type WebSocketConfig struct {
	Messages         []string      `mapstructure:"messages"`          // Messages to send
	MessageInterval  time.Duration `mapstructure:"message_interval"`  // Interval between messages
	ReceiveTimeout   time.Duration `mapstructure:"receive_timeout"`   // Timeout for receiving responses
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // WebSocket handshake timeout
}

type GRPCConfig struct {
	ProtoFile string            `mapstructure:"proto_file"` // Path to .proto file
	Service   string            `mapstructure:"service"`    // Service name (e.g., "helloworld.Greeter")
	Method    string            `mapstructure:"method"`     // Method name (e.g., "SayHello")
	Message   string            `mapstructure:"message"`    // JSON message payload
	Metadata  map[string]string `mapstructure:"metadata"`   // gRPC metadata (headers)
	Timeout   time.Duration     `mapstructure:"timeout"`    // Per-call timeout
	TLS       bool              `mapstructure:"tls"`        // Use TLS
	Insecure  bool              `mapstructure:"insecure"`   // Skip TLS verification
}

type RedisCommand string

const (
	RedisGet   RedisCommand = "get"
	RedisSet   RedisCommand = "set"
	RedisMixed RedisCommand = "mixed"
)

type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Command     RedisCommand  `mapstructure:"command"`
	Keys        []string      `mapstructure:"keys"`
	ValueSize   int           `mapstructure:"value_size"`
	ReadRatio   float64       `mapstructure:"read_ratio"` // Share of GETs in the mixed workload
	KeyTTL      time.Duration `mapstructure:"key_ttl"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type OutputConfig struct {
	JSON              bool          `mapstructure:"json"`
	YAML              bool          `mapstructure:"yaml"`
	HTML              string        `mapstructure:"html"`
	Dashboard         bool          `mapstructure:"dashboard"`
	ResultsLog        string        `mapstructure:"results_log"`
	PrometheusListen  string        `mapstructure:"prometheus_listen"`
	PrometheusPushURL string        `mapstructure:"prometheus_push_url"`
	ReportInterval    time.Duration `mapstructure:"report_interval"` // Periodic progress and reporter cadence
	LogErrors         bool          `mapstructure:"log_errors"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate defaults to Enabled when Propagate is unset.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type AuthType string

const (
	AuthTypeStatic                  AuthType = "static"
	AuthTypeOAuth2ClientCredentials AuthType = "oauth2_client_credentials"
	AuthTypeOAuth2ResourceOwner     AuthType = "oauth2_resource_owner"
)

type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	Scopes              []string      `mapstructure:"scopes"`
	StaticToken         string        `mapstructure:"static_token"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// EffectiveDuration returns the run length, falling back to the combined
// length of the load patterns when neither total nor duration is set.
func (c Config) EffectiveDuration() time.Duration {
	if c.Duration > 0 || c.Total > 0 {
		return c.Duration
	}
	var d time.Duration
	for _, p := range c.LoadPatterns {
		switch p.Type {
		case LoadPatternTypeStep:
			for _, s := range p.Steps {
				d += s.Duration
			}
		default:
			d += p.Duration
		}
	}
	return d
}

// Warnings returns non-fatal concerns about the configuration.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high rate limit configured (%g RPS); ensure you have authorization to test the target system", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d workers); ensure you have authorization to test the target system", c.Concurrency))
	}
	if c.Auth.Type == AuthTypeOAuth2ResourceOwner {
		warnings = append(warnings, "oauth2_resource_owner (password grant) is a legacy flow; prefer oauth2_client_credentials")
	}
	if c.Protocol == ProtocolGRPC && c.GRPC.Insecure {
		warnings = append(warnings, "gRPC TLS verification is disabled (insecure: true)")
	}
	return warnings
}

func (c Config) Validate() error {
	var issues []string

	protocol := c.Protocol
	if protocol == "" {
		protocol = ProtocolHTTP
	}

	if needsTarget(protocol) && strings.TrimSpace(c.TargetURL) == "" {
		targetSatisfied := false
		if protocol == ProtocolHTTP && len(c.Endpoints) > 0 {
			targetSatisfied = true
			for _, ep := range c.Endpoints {
				if strings.TrimSpace(ep.URL) == "" {
					targetSatisfied = false
					break
				}
			}
		}
		if !targetSatisfied {
			issues = append(issues, "target is required (use --help for usage information)")
		}
	}

	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Total < 0 {
		issues = append(issues, "total must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.RetryDelay < 0 {
		issues = append(issues, "retry_delay must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Total > 0 && c.Duration > 0 {
		issues = append(issues, "total and duration are mutually exclusive")
	}
	if c.Total == 0 && c.Duration == 0 && len(c.LoadPatterns) == 0 {
		issues = append(issues, "one of total or duration is required")
	}
	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and bodyFile are mutually exclusive")
	}
	if c.Output.Dashboard && (c.Output.JSON || c.Output.YAML) {
		issues = append(issues, "dashboard and structured stdout output are mutually exclusive")
	}
	if c.Output.JSON && c.Output.YAML {
		issues = append(issues, "json and yaml output are mutually exclusive")
	}
	if c.Output.ReportInterval < 0 {
		issues = append(issues, "output: report_interval must be >= 0")
	}

	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateLoadPatterns(c.LoadPatterns)...)
	issues = append(issues, validateEndpoints(c.Endpoints)...)
	issues = append(issues, validateAuthConfig(c.Auth)...)
	issues = append(issues, validateProtocolConfig(c)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func needsTarget(p Protocol) bool {
	switch p {
	case ProtocolHTTP, ProtocolGRPC, ProtocolWebSocket:
		return true
	}
	return false
}

func validateLogConfig(l LogConfig) []string {
	var issues []string
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log: unsupported level %q", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format must be 'console' or 'json', got %q", l.Format))
	}
	return issues
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateLoadPatterns(patterns []LoadPattern) []string {
	var issues []string
	for idx, pattern := range patterns {
		typeLabel := strings.TrimSpace(string(pattern.Type))
		if typeLabel == "" {
			issues = append(issues, fmt.Sprintf("loadPatterns[%d]: type is required", idx))
			continue
		}
		switch LoadPatternType(strings.ToLower(typeLabel)) {
		case LoadPatternTypeRamp:
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: duration must be > 0 for ramp", idx))
			}
			if pattern.FromRPS < 0 || pattern.ToRPS < 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: from_rps and to_rps must be >= 0", idx))
			}
		case LoadPatternTypeStep:
			if len(pattern.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: steps are required for step pattern", idx))
			}
			for stepIdx, step := range pattern.Steps {
				if step.RPS < 0 {
					issues = append(issues, fmt.Sprintf("loadPatterns[%d].steps[%d]: rps must be >= 0", idx, stepIdx))
				}
				if step.Duration <= 0 {
					issues = append(issues, fmt.Sprintf("loadPatterns[%d].steps[%d]: duration must be > 0", idx, stepIdx))
				}
			}
		case LoadPatternTypeSpike:
			if pattern.RPS <= 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: rps must be > 0 for spike", idx))
			}
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: duration must be > 0 for spike", idx))
			}
		default:
			issues = append(issues, fmt.Sprintf("loadPatterns[%d]: unsupported type %q", idx, pattern.Type))
		}
	}
	return issues
}

func validateEndpoints(endpoints []Endpoint) []string {
	var issues []string
	seenNames := map[string]int{}
	for idx, ep := range endpoints {
		if ep.Weight <= 0 {
			issues = append(issues, fmt.Sprintf("endpoints[%d]: weight must be >= 1", idx))
		}
		if strings.TrimSpace(ep.Body) != "" && strings.TrimSpace(ep.BodyFile) != "" {
			issues = append(issues, fmt.Sprintf("endpoints[%d]: body and bodyFile are mutually exclusive", idx))
		}
		name := strings.TrimSpace(ep.Name)
		if name != "" {
			key := strings.ToLower(name)
			if prev, ok := seenNames[key]; ok {
				issues = append(issues, fmt.Sprintf("endpoints[%d]: duplicate name also defined at index %d", idx, prev))
			} else {
				seenNames[key] = idx
			}
		}
	}
	return issues
}

func validateAuthConfig(auth AuthConfig) []string {
	var issues []string
	if auth.Type == "" {
		return nil
	}

	requireOAuth := func(kind AuthType) {
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, fmt.Sprintf("auth: token_url is required for %s", kind))
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, fmt.Sprintf("auth: client_id is required for %s", kind))
		}
		if strings.TrimSpace(auth.ClientSecret) == "" {
			issues = append(issues, fmt.Sprintf("auth: client_secret is required for %s", kind))
		}
	}

	switch auth.Type {
	case AuthTypeStatic:
		if strings.TrimSpace(auth.StaticToken) == "" {
			issues = append(issues, "auth: static_token is required for static")
		}
	case AuthTypeOAuth2ClientCredentials:
		requireOAuth(auth.Type)
	case AuthTypeOAuth2ResourceOwner:
		requireOAuth(auth.Type)
		if strings.TrimSpace(auth.Username) == "" {
			issues = append(issues, "auth: username is required for oauth2_resource_owner")
		}
		if strings.TrimSpace(auth.Password) == "" {
			issues = append(issues, "auth: password is required for oauth2_resource_owner")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: unsupported type %q", auth.Type))
	}
	if auth.RefreshBeforeExpiry < 0 {
		issues = append(issues, "auth: refresh_before_expiry must be >= 0")
	}

	return issues
}

func validateProtocolConfig(c Config) []string {
	var issues []string

	protocol := c.Protocol
	if protocol == "" {
		return nil
	}

	switch protocol {
	case ProtocolObjectStore, ProtocolHTTP, ProtocolGRPC, ProtocolWebSocket, ProtocolRedis:
	default:
		issues = append(issues, fmt.Sprintf("protocol: must be 'objectstore', 'http', 'grpc', 'websocket', or 'redis', got %q", protocol))
		return issues
	}

	switch protocol {
	case ProtocolObjectStore:
		store := c.ObjectStore
		switch strings.ToLower(store.API) {
		case "", "json":
		case "grpc":
			issues = append(issues, "objectstore: the grpc api is not supported, use json")
		default:
			issues = append(issues, fmt.Sprintf("objectstore: unsupported api %q", store.API))
		}
		if strings.TrimSpace(store.Bucket) == "" {
			issues = append(issues, "objectstore: bucket is required")
		}
		switch store.Operation {
		case "", ObjectStoreRead:
			if len(store.Objects) == 0 {
				issues = append(issues, "objectstore: objects are required for read")
			}
		case ObjectStoreRangeRead:
			if len(store.Objects) == 0 {
				issues = append(issues, "objectstore: objects are required for range-read")
			}
			if store.RangeBytes <= 0 {
				issues = append(issues, "objectstore: range_bytes must be > 0 for range-read")
			}
			if store.RangeOffset < 0 {
				issues = append(issues, "objectstore: range_offset must be >= 0")
			}
		case ObjectStoreWrite:
			if strings.TrimSpace(store.Upload) == "" {
				issues = append(issues, "objectstore: upload is required for write")
			}
		default:
			issues = append(issues, fmt.Sprintf("objectstore: operation must be 'read', 'range-read' or 'write', got %q", store.Operation))
		}
	case ProtocolWebSocket:
		ws := c.WebSocket
		if ws.MessageInterval < 0 {
			issues = append(issues, "websocket: message_interval must be >= 0")
		}
		if ws.ReceiveTimeout < 0 {
			issues = append(issues, "websocket: receive_timeout must be >= 0")
		}
		if ws.HandshakeTimeout < 0 {
			issues = append(issues, "websocket: handshake_timeout must be >= 0")
		}
	case ProtocolGRPC:
		g := c.GRPC
		if g.ProtoFile == "" {
			issues = append(issues, "grpc: proto_file is required")
		}
		if g.Service == "" {
			issues = append(issues, "grpc: service is required")
		}
		if g.Method == "" {
			issues = append(issues, "grpc: method is required")
		}
		if g.Timeout < 0 {
			issues = append(issues, "grpc: timeout must be >= 0")
		}
	case ProtocolRedis:
		r := c.Redis
		if strings.TrimSpace(r.Address) == "" {
			issues = append(issues, "redis: address is required")
		}
		if len(r.Keys) == 0 {
			issues = append(issues, "redis: keys are required")
		}
		switch r.Command {
		case "", RedisGet, RedisSet, RedisMixed:
		default:
			issues = append(issues, fmt.Sprintf("redis: command must be 'get', 'set', or 'mixed', got %q", r.Command))
		}
		if r.ValueSize < 0 {
			issues = append(issues, "redis: value_size must be >= 0")
		}
		if r.ReadRatio < 0 || r.ReadRatio > 1 {
			issues = append(issues, "redis: read_ratio must be between 0 and 1")
		}
	}

	return issues
}
