package relay

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/relayhq/relay-go/internal/logging"
)

// DefaultBaseURL is the production Relay API endpoint.
const DefaultBaseURL = "https://api.relay.dev"

// Config holds construction-time settings for a [Client]. Token is the
// only required field.
type Config struct {
	// Token is the service token, "rly_<project>_<environment>_<secret>".
	Token string
	// BaseURL overrides the API endpoint. Defaults to DefaultBaseURL.
	BaseURL string
	// Context is the initial personalization context, if any.
	Context *Context
	// DefaultFlags maps flag keys to fallback values used when a flag
	// is absent or disabled. Immutable for the client's lifetime.
	DefaultFlags map[string]any
	// DisableStreaming turns off the push channel; the client then
	// serves the first fetch until Refresh, Identify, or Reset.
	DisableStreaming bool
	// Transport overrides the HTTP/SSE transport. Defaults to the
	// bundled one; tests inject fakes here.
	Transport Transport
	// Store persists the last-known snapshot across restarts.
	// Defaults to none.
	Store Store
	// Logger receives structured diagnostics. Defaults to a silent
	// logger.
	Logger *slog.Logger
}

type envConfig struct {
	Token            string `env:"RELAY_TOKEN,required"`
	BaseURL          string `env:"RELAY_BASE_URL" envDefault:"https://api.relay.dev"`
	LogLevel         string `env:"RELAY_LOG_LEVEL" envDefault:"info"`
	DisableStreaming bool   `env:"RELAY_DISABLE_STREAMING"`
	DefaultsFile     string `env:"RELAY_DEFAULTS_FILE"`
}

// FromEnv builds a Config from RELAY_* environment variables:
//
//   - RELAY_TOKEN (required): service token.
//   - RELAY_BASE_URL: API endpoint (default DefaultBaseURL).
//   - RELAY_LOG_LEVEL: slog level for the default logger (default "info").
//   - RELAY_DISABLE_STREAMING: "true" disables the push channel.
//   - RELAY_DEFAULTS_FILE: path to a YAML file of default flag values.
func FromEnv() (Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("relay: parse environment: %w", err)
	}

	cfg := Config{
		Token:            ec.Token,
		BaseURL:          ec.BaseURL,
		DisableStreaming: ec.DisableStreaming,
		Logger:           logging.New(ec.LogLevel),
	}
	if ec.DefaultsFile != "" {
		defaults, err := LoadDefaults(ec.DefaultsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.DefaultFlags = defaults
	}
	return cfg, nil
}

// LoadDefaults reads a YAML mapping of flag key to default value:
//
//	dark-mode: false
//	greeting: "hello"
//	page-size: 20
func LoadDefaults(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relay: read defaults file: %w", err)
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("relay: parse defaults file: %w", err)
	}
	return defaults, nil
}
