// Package config loads tradeflow server settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given and the file exists.
const DefaultPath = "tradeflow.yaml"

// DevJWTSecret is the signing key used when none is configured.
// The server logs a warning at startup when it is in use.
const DevJWTSecret = "tradeflow-dev-secret-change-me"

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Auth         AuthConfig         `yaml:"auth"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Log          LogConfig          `yaml:"log"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Modules      ModulesConfig      `yaml:"modules"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Chat         ChatConfig         `yaml:"chat"`
	Notify       NotifyConfig       `yaml:"notify"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	Issuer            string        `yaml:"issuer"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	AllowRegistration bool          `yaml:"allow_registration"`
}

// RateLimitConfig expresses limits the way the original middleware did:
// N requests per window per client.
type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Requests       int           `yaml:"requests"`
	Window         time.Duration `yaml:"window"`
	LoginRequests  int           `yaml:"login_requests"`
	LoginWindow    time.Duration `yaml:"login_window"`
	ClientIdleTime time.Duration `yaml:"client_idle_time"`
}

type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type ModulesConfig struct {
	// CatalogFile replaces the embedded catalog when set.
	CatalogFile      string        `yaml:"catalog_file"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	MinLatency       time.Duration `yaml:"min_latency"`
	MaxLatency       time.Duration `yaml:"max_latency"`
}

type OrchestratorConfig struct {
	// MaxConcurrent caps concurrently running plans; 0 means unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type ChatConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite
	DSN    string `yaml:"dsn"`
}

type NotifyConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "",
			Port:            3001,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:5173"},
			MaxBodyBytes:    10 << 20,
		},
		Auth: AuthConfig{
			JWTSecret:         DevJWTSecret,
			Issuer:            "tradeflow",
			TokenTTL:          7 * 24 * time.Hour,
			AllowRegistration: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Requests:       100,
			Window:         15 * time.Minute,
			LoginRequests:  5,
			LoginWindow:    15 * time.Minute,
			ClientIdleTime: 30 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			Environment: "development",
			SampleRate:  1.0,
		},
		Modules: ModulesConfig{
			DispatchTimeout:  30 * time.Second,
			BatchConcurrency: 8,
			MinLatency:       500 * time.Millisecond,
			MaxLatency:       1500 * time.Millisecond,
		},
		Chat: ChatConfig{
			Driver: "memory",
			DSN:    "tradeflow-chat.db",
		},
		Notify: NotifyConfig{
			BufferSize:   64,
			PingInterval: 25 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads path onto the defaults, applies environment overrides and validates.
// An empty path loads DefaultPath when it exists and defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables. TRADEFLOW_* names win over the
// legacy names (PORT, JWT_SECRET, ...) when both are set.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(names ...string) (string, bool) {
		for _, n := range names {
			if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := get("TRADEFLOW_PORT", "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := get("TRADEFLOW_ADDRESS"); ok {
		c.Server.Address = v
	}
	if v, ok := get("TRADEFLOW_CORS_ORIGINS", "SOCKET_CORS_ORIGIN"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := get("TRADEFLOW_JWT_SECRET", "JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := get("TRADEFLOW_JWT_EXPIRES_IN", "JWT_EXPIRES_IN"); ok {
		ttl, err := ParseTTL(v)
		if err != nil {
			return fmt.Errorf("parse JWT_EXPIRES_IN: %w", err)
		}
		c.Auth.TokenTTL = ttl
	}
	if v, ok := get("TRADEFLOW_LOG_LEVEL", "LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("TRADEFLOW_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := get("TRADEFLOW_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v, ok := get("TRADEFLOW_CHAT_DRIVER"); ok {
		c.Chat.Driver = v
	}
	if v, ok := get("TRADEFLOW_CHAT_DSN"); ok {
		c.Chat.DSN = v
	}
	if v, ok := get("TRADEFLOW_MODULE_CATALOG"); ok {
		c.Modules.CatalogFile = v
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
		}
		if c.RateLimit.LoginRequests <= 0 || c.RateLimit.LoginWindow <= 0 {
			return fmt.Errorf("rate_limit.login_requests and rate_limit.login_window must be positive")
		}
	}
	if c.Modules.DispatchTimeout <= 0 {
		return fmt.Errorf("modules.dispatch_timeout must be positive")
	}
	if c.Modules.BatchConcurrency <= 0 {
		return fmt.Errorf("modules.batch_concurrency must be positive")
	}
	if c.Modules.MinLatency < 0 || c.Modules.MaxLatency < c.Modules.MinLatency {
		return fmt.Errorf("modules.max_latency must be >= modules.min_latency >= 0")
	}
	if c.Orchestrator.MaxConcurrent < 0 {
		return fmt.Errorf("orchestrator.max_concurrent must not be negative")
	}
	switch c.Chat.Driver {
	case "memory":
	case "sqlite":
		if c.Chat.DSN == "" {
			return fmt.Errorf("chat.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown chat.driver %q (expected memory or sqlite)", c.Chat.Driver)
	}
	if c.Notify.BufferSize <= 0 {
		return fmt.Errorf("notify.buffer_size must be positive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1]")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ParseTTL accepts Go durations plus a day suffix ("7d").
func ParseTTL(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
