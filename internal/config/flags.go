package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "perfgauge",
		Short:         "Protocol-agnostic load generator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Core request flags
	flags.String("label", "", "Label for the run in reports (default \"perfgauge\")")
	flags.String("target", "", "Target URL or address to load test")
	flags.String("method", "GET", "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")

	// Load control flags
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.Float64P("rate", "r", 0, "Requests per second limit (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to run the test (e.g. 30s, 1m)")
	flags.Int64P("total", "t", 0, "Total number of requests to send")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Int("retries", 0, "Number of retries per failed request")
	flags.Duration("retry-delay", 0, "Delay between retries")
	flags.Int64("seed", 0, "Random seed for arrivals and workload selection (0 picks one)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing requests (uniform or poisson)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted report on stdout")
	flags.Bool("yaml-output", false, "Emit YAML formatted report on stdout")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.String("results-log", "", "Append one JSON line per run to the specified file")
	flags.String("prometheus-listen", "", "Serve Prometheus metrics on this address while running (e.g. :9102)")
	flags.String("prometheus-push", "", "Push final metrics to a Prometheus pushgateway URL")
	flags.Duration("report-interval", 0, "Interval for periodic progress reports (0 disables)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console or json")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Protocol flags
	flags.String("protocol", "http", "Protocol mode: 'objectstore', 'http', 'grpc', 'websocket', or 'redis'")

	// Object store flags
	flags.String("os-endpoint", "", "Object store API base URL")
	flags.String("os-api", "json", "Object store API: json")
	flags.String("os-bucket", "", "Object store bucket")
	flags.StringSlice("os-object", nil, "Object to read (repeatable)")
	flags.String("os-operation", string(ObjectStoreRead), "Object store operation: read, range-read or write")
	flags.String("os-upload", "", "Object name used by the write workload")
	flags.Int("os-range-offset", 0, "First byte fetched by range-read")
	flags.Int("os-range-bytes", 0, "Bytes fetched per range-read call")

	// WebSocket flags
	flags.StringSlice("ws-messages", nil, "WebSocket messages to send (repeatable)")
	flags.Duration("ws-message-interval", 0, "Interval between WebSocket messages")
	flags.Duration("ws-receive-timeout", 10*time.Second, "WebSocket receive timeout")
	flags.Duration("ws-handshake-timeout", 30*time.Second, "WebSocket handshake timeout")

	// gRPC flags
	flags.String("grpc-proto-file", "", "Path to .proto file for gRPC")
	flags.String("grpc-service", "", "gRPC service name (e.g., helloworld.Greeter)")
	flags.String("grpc-method", "", "gRPC method name (e.g., SayHello)")
	flags.String("grpc-message", "", "gRPC message payload (JSON format)")
	flags.StringToString("grpc-metadata", nil, "gRPC metadata key=value pairs")
	flags.Duration("grpc-timeout", 30*time.Second, "gRPC per-call timeout")
	flags.Bool("grpc-tls", false, "Use TLS for gRPC connection")
	flags.Bool("grpc-insecure", false, "Skip TLS verification for gRPC")

	// Redis flags
	flags.String("redis-address", "", "Redis server address (host:port)")
	flags.String("redis-command", string(RedisGet), "Redis workload: get, set, or mixed")
	flags.StringSlice("redis-key", nil, "Redis key to exercise (repeatable)")
	flags.Int("redis-value-size", 64, "Size in bytes of values written by SET")
	flags.Float64("redis-read-ratio", 0.8, "Share of GETs in the mixed workload")
	flags.Int("redis-db", 0, "Redis logical database")

	// Tracing flags
	flags.String("otel-endpoint", "", "OTLP endpoint for request spans")
	flags.String("otel-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("otel-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("otel-sample-rate", 1.0, "Trace sampling ratio between 0 and 1")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'latency:p99 < 500')")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var firstErr error
	str := func(name string, dst *string, trim bool) {
		if firstErr != nil || !fs.Changed(name) {
			return
		}
		val, err := fs.GetString(name)
		if err != nil {
			firstErr = err
			return
		}
		if trim {
			val = strings.TrimSpace(val)
		}
		*dst = val
	}
	dur := func(name string, dst *time.Duration) {
		if firstErr != nil || !fs.Changed(name) {
			return
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			firstErr = err
			return
		}
		*dst = val
	}
	boolean := func(name string, dst *bool) {
		if firstErr != nil || !fs.Changed(name) {
			return
		}
		val, err := fs.GetBool(name)
		if err != nil {
			firstErr = err
			return
		}
		*dst = val
	}
	integer := func(name string, dst *int) {
		if firstErr != nil || !fs.Changed(name) {
			return
		}
		val, err := fs.GetInt(name)
		if err != nil {
			firstErr = err
			return
		}
		*dst = val
	}
	float := func(name string, dst *float64) {
		if firstErr != nil || !fs.Changed(name) {
			return
		}
		val, err := fs.GetFloat64(name)
		if err != nil {
			firstErr = err
			return
		}
		*dst = val
	}
	slice := func(name string, dst *[]string) {
		if firstErr != nil || !fs.Changed(name) {
			return
		}
		val, err := fs.GetStringSlice(name)
		if err != nil {
			firstErr = err
			return
		}
		*dst = val
	}

	str("label", &cfg.Label, true)
	str("target", &cfg.TargetURL, true)
	str("method", &cfg.Method, false)
	if fs.Changed("body") {
		str("body", &cfg.Body, false)
		cfg.BodyFile = ""
	}
	if fs.Changed("body-file") {
		str("body-file", &cfg.BodyFile, false)
		cfg.Body = ""
	}
	integer("concurrency", &cfg.Concurrency)
	float("rate", &cfg.Rate)
	dur("duration", &cfg.Duration)
	if fs.Changed("total") {
		val, err := fs.GetInt64("total")
		if err != nil {
			return err
		}
		cfg.Total = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	dur("timeout", &cfg.Timeout)
	integer("retries", &cfg.Retries)
	dur("retry-delay", &cfg.RetryDelay)
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	boolean("json-output", &cfg.Output.JSON)
	boolean("yaml-output", &cfg.Output.YAML)
	boolean("dashboard", &cfg.Output.Dashboard)
	boolean("log-errors", &cfg.Output.LogErrors)
	str("html-output", &cfg.Output.HTML, true)
	str("results-log", &cfg.Output.ResultsLog, true)
	str("prometheus-listen", &cfg.Output.PrometheusListen, true)
	str("prometheus-push", &cfg.Output.PrometheusPushURL, true)
	dur("report-interval", &cfg.Output.ReportInterval)
	str("log-level", &cfg.Log.Level, true)
	str("log-format", &cfg.Log.Format, true)

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("protocol") {
		val, err := fs.GetString("protocol")
		if err != nil {
			return err
		}
		cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(val)))
	}

	str("os-endpoint", &cfg.ObjectStore.Endpoint, true)
	str("os-api", &cfg.ObjectStore.API, true)
	str("os-bucket", &cfg.ObjectStore.Bucket, true)
	slice("os-object", &cfg.ObjectStore.Objects)
	str("os-upload", &cfg.ObjectStore.Upload, true)
	integer("os-range-offset", &cfg.ObjectStore.RangeOffset)
	integer("os-range-bytes", &cfg.ObjectStore.RangeBytes)
	if fs.Changed("os-operation") {
		val, err := fs.GetString("os-operation")
		if err != nil {
			return err
		}
		cfg.ObjectStore.Operation = ObjectStoreOperation(strings.ToLower(strings.TrimSpace(val)))
	}

	slice("ws-messages", &cfg.WebSocket.Messages)
	dur("ws-message-interval", &cfg.WebSocket.MessageInterval)
	dur("ws-receive-timeout", &cfg.WebSocket.ReceiveTimeout)
	dur("ws-handshake-timeout", &cfg.WebSocket.HandshakeTimeout)

	str("grpc-proto-file", &cfg.GRPC.ProtoFile, false)
	str("grpc-service", &cfg.GRPC.Service, false)
	str("grpc-method", &cfg.GRPC.Method, false)
	str("grpc-message", &cfg.GRPC.Message, false)
	if fs.Changed("grpc-metadata") {
		val, err := fs.GetStringToString("grpc-metadata")
		if err != nil {
			return err
		}
		cfg.GRPC.Metadata = val
	}
	dur("grpc-timeout", &cfg.GRPC.Timeout)
	boolean("grpc-tls", &cfg.GRPC.TLS)
	boolean("grpc-insecure", &cfg.GRPC.Insecure)

	str("redis-address", &cfg.Redis.Address, true)
	slice("redis-key", &cfg.Redis.Keys)
	integer("redis-value-size", &cfg.Redis.ValueSize)
	float("redis-read-ratio", &cfg.Redis.ReadRatio)
	integer("redis-db", &cfg.Redis.DB)
	if fs.Changed("redis-command") {
		val, err := fs.GetString("redis-command")
		if err != nil {
			return err
		}
		cfg.Redis.Command = RedisCommand(strings.ToLower(strings.TrimSpace(val)))
	}

	str("otel-endpoint", &cfg.Tracing.Endpoint, true)
	str("otel-protocol", &cfg.Tracing.Protocol, true)
	boolean("otel-insecure", &cfg.Tracing.Insecure)
	float("otel-sample-rate", &cfg.Tracing.SampleRate)

	slice("threshold", &cfg.Thresholds)

	return firstErr
}
