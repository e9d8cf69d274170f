package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"soonpsy/internal/providers/registry"
)

const (
	DefaultEndpointURL = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel       = "openai/gpt-oss-20b"
)

var (
	ErrMissingAPIKey   = errors.New("GROQ_API_KEY is required")
	ErrMissingEndpoint = errors.New("GROQ_BASE_URL must not be empty")
)

type Config struct {
	Provider ProviderConfig
	HTTP     HTTPConfig
	Server   ServerConfig
	Log      LogConfig
}

type ProviderConfig struct {
	APIKey      string
	EndpointURL string
	Model       string
	Transport   string
}

type HTTPConfig struct {
	ClientTimeout time.Duration
}

type ServerConfig struct {
	ListenAddr      string
	HealthPath      string
	MetricsPath     string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Option adjusts a loaded Config before it is validated.
type Option func(*Config)

// WithTransport overrides CHAT_TRANSPORT when kind is not empty.
func WithTransport(kind string) Option {
	return func(c *Config) {
		if strings.TrimSpace(kind) != "" {
			c.Provider.Transport = registry.Normalize(kind)
		}
	}
}

// Load reads configuration from the environment. The API key has no
// default and must be injected at runtime.
func Load(opts ...Option) (*Config, error) {
	cfg := &Config{
		Provider: ProviderConfig{
			APIKey:      mustEnv("GROQ_API_KEY", ""),
			EndpointURL: mustEnv("GROQ_BASE_URL", DefaultEndpointURL),
			Model:       mustEnv("GROQ_MODEL", DefaultModel),
			Transport:   registry.Normalize(mustEnv("CHAT_TRANSPORT", registry.KindHTTP)),
		},
		HTTP: HTTPConfig{
			// Zero leaves provider calls without a client deadline.
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 0),
		},
		Server: ServerConfig{
			ListenAddr:      mustEnv("LISTEN_ADDR", ":8080"),
			HealthPath:      mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:     mustEnv("METRICS_PATH", "/metrics"),
			ReadTimeout:     mustDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			ShutdownTimeout: mustDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(mustEnv("LOG_LEVEL", "info")),
			Pretty: mustBool("LOG_PRETTY", false),
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Provider.EndpointURL == "" {
		return ErrMissingEndpoint
	}
	switch c.Provider.Transport {
	case registry.KindHTTP, registry.KindSDKResponses, registry.KindSDKChat:
	default:
		return fmt.Errorf("unsupported CHAT_TRANSPORT %q", c.Provider.Transport)
	}
	return nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustBool(key string, def bool) bool {
	switch strings.ToLower(mustEnv(key, "")) {
	case "1", "t", "true", "yes":
		return true
	case "0", "f", "false", "no":
		return false
	default:
		return def
	}
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
