package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "DISTCONSOLE"

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Security     SecurityConfig     `yaml:"security" envconfig:"SECURITY"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Upstream     UpstreamConfig     `yaml:"upstream" envconfig:"UPSTREAM"`
	Distribution DistributionConfig `yaml:"distribution" envconfig:"DISTRIBUTION"`
	WebSocket    WebSocketConfig    `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST" default:"127.0.0.1"`
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	IncludeStack    bool          `yaml:"include_stack" envconfig:"INCLUDE_STACK" default:"false"`
}

// Address returns the listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"100"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format    string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output    string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath  string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/distconsole.log"`
	AddSource bool   `yaml:"add_source" envconfig:"ADD_SOURCE" default:"false"`
}

// UpstreamConfig describes the remote data-source API
type UpstreamConfig struct {
	BaseURL          string        `yaml:"base_url" envconfig:"BASE_URL" default:"http://localhost:8000/api"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	RPS              float64       `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst            int           `yaml:"burst" envconfig:"BURST" default:"20"`
	DefaultDataframe string        `yaml:"default_dataframe" envconfig:"DEFAULT_DATAFRAME" default:"bills"`
	PageSize         int           `yaml:"page_size" envconfig:"PAGE_SIZE" default:"100"`
}

// DistributionConfig controls the distribution status machine
type DistributionConfig struct {
	// PollInterval enables auto-refresh while the view is pending. Zero disables it.
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL" default:"0s"`
	// LoadOnStart fetches the latest distribution once the server is up.
	LoadOnStart bool `yaml:"load_on_start" envconfig:"LOAD_ON_START" default:"false"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
	MaxMessageSize  int64         `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING" default:"false"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"stdout"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// Load reads configuration from the environment, then overlays the YAML
// file named by DISTCONSOLE_CONFIG_FILE (or the first config.yaml found).
// Environment variables that are explicitly set win over the file.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overlays only variables that are present in the environment, so
// file values survive envconfig's defaults.
func applyEnv(cfg *Config) error {
	var env Config
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	key := func(section, field string) bool {
		_, ok := os.LookupEnv(EnvPrefix + "_" + section + "_" + field)
		return ok
	}

	if key("SERVER", "HOST") {
		cfg.Server.Host = env.Server.Host
	}
	if key("SERVER", "PORT") {
		cfg.Server.Port = env.Server.Port
	}
	if key("SERVER", "READ_TIMEOUT") {
		cfg.Server.ReadTimeout = env.Server.ReadTimeout
	}
	if key("SERVER", "WRITE_TIMEOUT") {
		cfg.Server.WriteTimeout = env.Server.WriteTimeout
	}
	if key("SERVER", "IDLE_TIMEOUT") {
		cfg.Server.IdleTimeout = env.Server.IdleTimeout
	}
	if key("SERVER", "REQUEST_TIMEOUT") {
		cfg.Server.RequestTimeout = env.Server.RequestTimeout
	}
	if key("SERVER", "SHUTDOWN_TIMEOUT") {
		cfg.Server.ShutdownTimeout = env.Server.ShutdownTimeout
	}
	if key("SERVER", "INCLUDE_STACK") {
		cfg.Server.IncludeStack = env.Server.IncludeStack
	}

	if key("SECURITY", "ALLOWED_ORIGINS") {
		cfg.Security.AllowedOrigins = env.Security.AllowedOrigins
	}
	if key("SECURITY", "ENABLE_CORS") {
		cfg.Security.EnableCORS = env.Security.EnableCORS
	}
	if key("SECURITY", "RATE_LIMIT_ENABLED") {
		cfg.Security.RateLimit.Enabled = env.Security.RateLimit.Enabled
	}
	if key("SECURITY", "RATE_LIMIT_RPS") {
		cfg.Security.RateLimit.RPS = env.Security.RateLimit.RPS
	}
	if key("SECURITY", "RATE_LIMIT_BURST") {
		cfg.Security.RateLimit.Burst = env.Security.RateLimit.Burst
	}

	if key("LOGGING", "LEVEL") {
		cfg.Logging.Level = env.Logging.Level
	}
	if key("LOGGING", "FORMAT") {
		cfg.Logging.Format = env.Logging.Format
	}
	if key("LOGGING", "OUTPUT") {
		cfg.Logging.Output = env.Logging.Output
	}
	if key("LOGGING", "FILE_PATH") {
		cfg.Logging.FilePath = env.Logging.FilePath
	}
	if key("LOGGING", "ADD_SOURCE") {
		cfg.Logging.AddSource = env.Logging.AddSource
	}

	if key("UPSTREAM", "BASE_URL") {
		cfg.Upstream.BaseURL = env.Upstream.BaseURL
	}
	if key("UPSTREAM", "TIMEOUT") {
		cfg.Upstream.Timeout = env.Upstream.Timeout
	}
	if key("UPSTREAM", "RPS") {
		cfg.Upstream.RPS = env.Upstream.RPS
	}
	if key("UPSTREAM", "BURST") {
		cfg.Upstream.Burst = env.Upstream.Burst
	}
	if key("UPSTREAM", "DEFAULT_DATAFRAME") {
		cfg.Upstream.DefaultDataframe = env.Upstream.DefaultDataframe
	}
	if key("UPSTREAM", "PAGE_SIZE") {
		cfg.Upstream.PageSize = env.Upstream.PageSize
	}

	if key("DISTRIBUTION", "POLL_INTERVAL") {
		cfg.Distribution.PollInterval = env.Distribution.PollInterval
	}
	if key("DISTRIBUTION", "LOAD_ON_START") {
		cfg.Distribution.LoadOnStart = env.Distribution.LoadOnStart
	}

	if key("WEBSOCKET", "READ_BUFFER_SIZE") {
		cfg.WebSocket.ReadBufferSize = env.WebSocket.ReadBufferSize
	}
	if key("WEBSOCKET", "WRITE_BUFFER_SIZE") {
		cfg.WebSocket.WriteBufferSize = env.WebSocket.WriteBufferSize
	}
	if key("WEBSOCKET", "PING_PERIOD") {
		cfg.WebSocket.PingPeriod = env.WebSocket.PingPeriod
	}
	if key("WEBSOCKET", "PONG_WAIT") {
		cfg.WebSocket.PongWait = env.WebSocket.PongWait
	}
	if key("WEBSOCKET", "MAX_MESSAGE_SIZE") {
		cfg.WebSocket.MaxMessageSize = env.WebSocket.MaxMessageSize
	}

	if key("TELEMETRY", "ENVIRONMENT") {
		cfg.Telemetry.Environment = env.Telemetry.Environment
	}
	if key("TELEMETRY", "ENABLE_TRACING") {
		cfg.Telemetry.EnableTracing = env.Telemetry.EnableTracing
	}
	if key("TELEMETRY", "ENABLE_METRICS") {
		cfg.Telemetry.EnableMetrics = env.Telemetry.EnableMetrics
	}
	if key("TELEMETRY", "TRACE_EXPORTER") {
		cfg.Telemetry.TraceExporter = env.Telemetry.TraceExporter
	}
	if key("TELEMETRY", "METRIC_EXPORTER") {
		cfg.Telemetry.MetricExporter = env.Telemetry.MetricExporter
	}
	if key("TELEMETRY", "SAMPLE_RATIO") {
		cfg.Telemetry.SampleRatio = env.Telemetry.SampleRatio
	}

	return nil
}

// Validate checks the configuration for values the console cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified when CORS is enabled")
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream base URL: %q", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}
	if c.Upstream.RPS < 0 {
		return fmt.Errorf("upstream rps must not be negative")
	}

	if c.Distribution.PollInterval < 0 {
		return fmt.Errorf("distribution poll interval must not be negative")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0,1]")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   100,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/distconsole.log",
		},
		Upstream: UpstreamConfig{
			BaseURL:          "http://localhost:8000/api",
			Timeout:          30 * time.Second,
			RPS:              10,
			Burst:            20,
			DefaultDataframe: "bills",
			PageSize:         100,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageSize:  64 * 1024,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableMetrics:  true,
			TraceExporter:  "stdout",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
