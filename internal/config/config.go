package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the full proxy configuration. It is built once at startup
// and never mutated afterwards.
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	// OpenAIAPIVersion selects the Azure client when non-empty.
	OpenAIAPIVersion string

	// AnthropicAPIKey is the optional shared secret clients must present.
	// When empty, all inbound requests are admitted.
	AnthropicAPIKey string

	BigModel          string
	SmallModel        string
	PreferredProvider string

	MaxTokensLimit int64
	RequestTimeout time.Duration

	Host string
	Port int

	LogLevel logrus.Level

	// CustomHeaders are injected on every upstream request.
	CustomHeaders map[string]string
}

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultBigModel       = "gpt-4o"
	defaultSmallModel     = "gpt-4o-mini"
	defaultProvider       = "openai"
	defaultMaxTokensLimit = 16384
	defaultTimeoutSecs    = 90
	defaultHost           = "0.0.0.0"
	defaultPort           = 8082

	customHeaderPrefix = "CUSTOM_HEADER_"
)

// Load builds the configuration from the environment. A .env file in the
// working directory is read first; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     envOr("OPENAI_BASE_URL", defaultBaseURL),
		OpenAIAPIVersion:  os.Getenv("OPENAI_API_VERSION"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		BigModel:          envOr("BIG_MODEL", defaultBigModel),
		SmallModel:        envOr("SMALL_MODEL", defaultSmallModel),
		PreferredProvider: envOr("PREFERRED_PROVIDER", defaultProvider),
		Host:              envOr("SERVER_HOST", defaultHost),
		CustomHeaders:     customHeaders(os.Environ()),
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	limit, err := envInt64("MAX_TOKENS_LIMIT", defaultMaxTokensLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("MAX_TOKENS_LIMIT must be positive, got %d", limit)
	}
	cfg.MaxTokensLimit = limit

	timeout, err := envInt64("REQUEST_TIMEOUT", defaultTimeoutSecs)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeout) * time.Second

	port, err := envInt64("SERVER_PORT", defaultPort)
	if err != nil {
		return nil, err
	}
	cfg.Port = int(port)

	level := envOr("LOG_LEVEL", "error")
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	cfg.LogLevel = parsed

	return cfg, nil
}

// ClientAuthEnabled reports whether inbound requests must present the
// shared secret.
func (c *Config) ClientAuthEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// customHeaders collects CUSTOM_HEADER_* variables into header names.
// CUSTOM_HEADER_X_FOO=bar becomes X-Foo: bar.
func customHeaders(environ []string) map[string]string {
	headers := make(map[string]string)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, customHeaderPrefix) {
			continue
		}
		suffix := strings.TrimPrefix(name, customHeaderPrefix)
		if suffix == "" {
			continue
		}
		parts := strings.Split(suffix, "_")
		for i, p := range parts {
			if p == "" {
				continue
			}
			parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
		}
		headers[strings.Join(parts, "-")] = value
	}
	return headers
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
