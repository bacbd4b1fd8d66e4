package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix selects environment overrides: RELAY_OPENAI__MODEL sets
// openai.model.
const EnvPrefix = "RELAY_"

// legacyEnv maps the bare variable names the bot has always read onto
// their config keys.
var legacyEnv = map[string]string{
	"CHANNEL_ACCESS_TOKEN": "line.channel_access_token",
	"CHANNEL_SECRET":       "line.channel_secret",
	"OPENAI_API_KEY":       "openai.api_key",
	"PORT":                 "server.port",
}

// Config is the top-level relay configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Line    LineConfig    `yaml:"line"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LineConfig holds LINE Messaging API credentials.
type LineConfig struct {
	ChannelSecret      string        `yaml:"channel_secret"`
	ChannelAccessToken string        `yaml:"channel_access_token"`
	APIBase            string        `yaml:"api_base"`
	Timeout            time.Duration `yaml:"timeout"`
}

// OpenAIConfig holds completion settings. Timeout bounds one attempt;
// Budget bounds all attempts for one event. Stub replaces the API with a
// canned StubReply (or an echo when empty) for local development.
type OpenAIConfig struct {
	Stub        bool          `yaml:"stub"`
	StubReply   string        `yaml:"stub_reply"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Budget      time.Duration `yaml:"budget"`
}

// RelayConfig holds orchestration settings.
type RelayConfig struct {
	Concurrency     int      `yaml:"concurrency"`
	Locale          string   `yaml:"locale"`
	LocaleDirs      []string `yaml:"locale_dirs"`
	OutcomeCapacity int      `yaml:"outcome_capacity"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used before any file or environment
// override is applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			RequestTimeout: 25 * time.Second,
		},
		Line: LineConfig{
			Timeout: 5 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-3.5-turbo",
			Timeout:     10 * time.Second,
			MaxAttempts: 2,
			RetryDelay:  300 * time.Millisecond,
			Budget:      20 * time.Second,
		},
		Relay: RelayConfig{
			Concurrency:     4,
			Locale:          "th",
			OutcomeCapacity: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Read layers defaults, the YAML file at path (skipped when it does not
// exist) and the environment. The result is not validated.
func Read(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedValue), nil); err != nil {
		return nil, fmt.Errorf("loading %s environment: %w", EnvPrefix, err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.expandEnv()
	return cfg, nil
}

// Load reads and validates the configuration.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func legacyValue(key, value string) (string, interface{}) {
	k, ok := legacyEnv[key]
	if !ok || value == "" {
		return "", nil
	}
	return k, value
}

func prefixedValue(key, value string) (string, interface{}) {
	k := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	k = strings.ReplaceAll(k, "__", ".")
	if k == "relay.locale_dirs" {
		return k, strings.Split(value, ",")
	}
	return k, value
}

// expandEnv replaces ${VAR} references in secret-bearing fields so that
// secrets can stay out of the YAML file.
func (c *Config) expandEnv() {
	c.Line.ChannelSecret = os.ExpandEnv(c.Line.ChannelSecret)
	c.Line.ChannelAccessToken = os.ExpandEnv(c.Line.ChannelAccessToken)
	c.OpenAI.APIKey = os.ExpandEnv(c.OpenAI.APIKey)
}

// Validate checks required credentials and value constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Line.ChannelSecret == "" {
		return fmt.Errorf("line.channel_secret is required (CHANNEL_SECRET)")
	}
	if c.Line.ChannelAccessToken == "" {
		return fmt.Errorf("line.channel_access_token is required (CHANNEL_ACCESS_TOKEN)")
	}
	if c.OpenAI.APIKey == "" && !c.OpenAI.Stub {
		return fmt.Errorf("openai.api_key is required (OPENAI_API_KEY)")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("openai.timeout must be positive")
	}
	if c.OpenAI.MaxAttempts < 1 {
		return fmt.Errorf("openai.max_attempts must be at least 1, got %d", c.OpenAI.MaxAttempts)
	}
	if c.OpenAI.RetryDelay < 0 {
		return fmt.Errorf("openai.retry_delay must be non-negative")
	}
	if c.OpenAI.Budget <= 0 || c.OpenAI.Budget >= c.Server.RequestTimeout {
		return fmt.Errorf("openai.budget (%s) must be positive and below server.request_timeout (%s)",
			c.OpenAI.Budget, c.Server.RequestTimeout)
	}
	if c.Relay.Concurrency < 1 {
		return fmt.Errorf("relay.concurrency must be at least 1, got %d", c.Relay.Concurrency)
	}
	if c.Relay.Locale == "" {
		return fmt.Errorf("relay.locale is required")
	}
	if c.Relay.OutcomeCapacity < 0 {
		return fmt.Errorf("relay.outcome_capacity must be non-negative")
	}
	return nil
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	out.Line.ChannelSecret = mask(c.Line.ChannelSecret)
	out.Line.ChannelAccessToken = mask(c.Line.ChannelAccessToken)
	out.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	out.Relay.LocaleDirs = append([]string(nil), c.Relay.LocaleDirs...)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
