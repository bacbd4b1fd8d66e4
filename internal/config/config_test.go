package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "relay.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// setCredentials provides the three required secrets through the
// environment names the bot has always used.
func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("CHANNEL_SECRET", "env-secret")
	t.Setenv("CHANNEL_ACCESS_TOKEN", "env-token")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("PORT", "")
}

// clearCredentials keeps the host environment from leaking into tests
// that read credentials from the file.
func clearCredentials(t *testing.T) {
	t.Helper()
	for k := range legacyEnv {
		t.Setenv(k, "")
	}
}

func TestLoad_ValidFull(t *testing.T) {
	clearCredentials(t)
	yaml := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 30s
line:
  channel_secret: "file-secret"
  channel_access_token: "file-token"
  api_base: "http://localhost:9999"
  timeout: 3s
openai:
  api_key: "file-key"
  base_url: "http://localhost:8888/v1"
  model: gpt-4o-mini
  max_tokens: 256
  timeout: 5s
  max_attempts: 3
  retry_delay: 100ms
  budget: 15s
relay:
  concurrency: 8
  locale: en
  locale_dirs:
    - "./locales"
    - "/opt/locales"
  outcome_capacity: 50
logging:
  level: debug
  format: text
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Server
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("server.request_timeout = %v, want 30s", cfg.Server.RequestTimeout)
	}

	// Line
	if cfg.Line.ChannelSecret != "file-secret" || cfg.Line.ChannelAccessToken != "file-token" {
		t.Errorf("line credentials = %q/%q", cfg.Line.ChannelSecret, cfg.Line.ChannelAccessToken)
	}
	if cfg.Line.APIBase != "http://localhost:9999" {
		t.Errorf("line.api_base = %q", cfg.Line.APIBase)
	}
	if cfg.Line.Timeout != 3*time.Second {
		t.Errorf("line.timeout = %v, want 3s", cfg.Line.Timeout)
	}

	// OpenAI
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("openai.model = %q, want %q", cfg.OpenAI.Model, "gpt-4o-mini")
	}
	if cfg.OpenAI.MaxTokens != 256 || cfg.OpenAI.MaxAttempts != 3 {
		t.Errorf("openai.max_tokens/max_attempts = %d/%d", cfg.OpenAI.MaxTokens, cfg.OpenAI.MaxAttempts)
	}
	if cfg.OpenAI.RetryDelay != 100*time.Millisecond {
		t.Errorf("openai.retry_delay = %v, want 100ms", cfg.OpenAI.RetryDelay)
	}
	if cfg.OpenAI.Budget != 15*time.Second {
		t.Errorf("openai.budget = %v, want 15s", cfg.OpenAI.Budget)
	}

	// Relay
	if cfg.Relay.Concurrency != 8 || cfg.Relay.Locale != "en" || cfg.Relay.OutcomeCapacity != 50 {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if len(cfg.Relay.LocaleDirs) != 2 {
		t.Errorf("relay.locale_dirs len = %d, want 2", len(cfg.Relay.LocaleDirs))
	}

	// Logging
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	setCredentials(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default server.host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("default server.port = %d, want %d", cfg.Server.Port, 3000)
	}
	if cfg.OpenAI.Model != "gpt-3.5-turbo" {
		t.Errorf("default openai.model = %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.Timeout != 10*time.Second || cfg.OpenAI.MaxAttempts != 2 {
		t.Errorf("default openai timeout/attempts = %v/%d", cfg.OpenAI.Timeout, cfg.OpenAI.MaxAttempts)
	}
	if cfg.Relay.Concurrency != 4 {
		t.Errorf("default relay.concurrency = %d, want 4", cfg.Relay.Concurrency)
	}
	if cfg.Relay.Locale != "th" {
		t.Errorf("default relay.locale = %q, want %q", cfg.Relay.Locale, "th")
	}
	if cfg.Relay.OutcomeCapacity != 1000 {
		t.Errorf("default relay.outcome_capacity = %d, want 1000", cfg.Relay.OutcomeCapacity)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
	if cfg.Line.ChannelSecret != "env-secret" || cfg.OpenAI.APIKey != "env-key" {
		t.Errorf("credentials not read from environment: %q/%q", cfg.Line.ChannelSecret, cfg.OpenAI.APIKey)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load(writeTemp(t, "openai:\n  model: gpt-4o\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("openai.model = %q, want gpt-4o", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.MaxAttempts != 2 || cfg.OpenAI.Budget != 20*time.Second {
		t.Errorf("untouched openai fields lost their defaults: %+v", cfg.OpenAI)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setCredentials(t)
	t.Setenv("PORT", "8081")
	t.Setenv("RELAY_OPENAI__MODEL", "gpt-4o")
	t.Setenv("RELAY_RELAY__CONCURRENCY", "2")
	t.Setenv("RELAY_OPENAI__RETRY_DELAY", "50ms")
	t.Setenv("RELAY_RELAY__LOCALE_DIRS", "/a,/b")

	yaml := `
server:
  port: 9090
line:
  channel_secret: "file-secret"
openai:
  model: gpt-4
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8081 {
		t.Errorf("server.port = %d, want 8081 from PORT", cfg.Server.Port)
	}
	if cfg.Line.ChannelSecret != "env-secret" {
		t.Errorf("line.channel_secret = %q, want env value", cfg.Line.ChannelSecret)
	}
	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("openai.model = %q, want gpt-4o", cfg.OpenAI.Model)
	}
	if cfg.Relay.Concurrency != 2 {
		t.Errorf("relay.concurrency = %d, want 2", cfg.Relay.Concurrency)
	}
	if cfg.OpenAI.RetryDelay != 50*time.Millisecond {
		t.Errorf("openai.retry_delay = %v, want 50ms", cfg.OpenAI.RetryDelay)
	}
	if got := strings.Join(cfg.Relay.LocaleDirs, ","); got != "/a,/b" {
		t.Errorf("relay.locale_dirs = %q, want /a,/b", got)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearCredentials(t)
	t.Setenv("TEST_LINE_SECRET", "expanded-secret")
	t.Setenv("TEST_LINE_TOKEN", "expanded-token")
	t.Setenv("TEST_OPENAI_KEY", "expanded-key")

	yaml := `
line:
  channel_secret: "${TEST_LINE_SECRET}"
  channel_access_token: "${TEST_LINE_TOKEN}"
openai:
  api_key: "${TEST_OPENAI_KEY}"
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Line.ChannelSecret != "expanded-secret" {
		t.Errorf("line.channel_secret = %q", cfg.Line.ChannelSecret)
	}
	if cfg.Line.ChannelAccessToken != "expanded-token" {
		t.Errorf("line.channel_access_token = %q", cfg.Line.ChannelAccessToken)
	}
	if cfg.OpenAI.APIKey != "expanded-key" {
		t.Errorf("openai.api_key = %q", cfg.OpenAI.APIKey)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "{{{{not yaml"))
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "bad port",
			yaml:    "server:\n  port: 99999\n",
			wantErr: "server.port",
		},
		{
			name:    "missing channel secret",
			env:     map[string]string{"CHANNEL_SECRET": ""},
			wantErr: "line.channel_secret",
		},
		{
			name:    "missing access token",
			env:     map[string]string{"CHANNEL_ACCESS_TOKEN": ""},
			wantErr: "line.channel_access_token",
		},
		{
			name:    "missing api key",
			env:     map[string]string{"OPENAI_API_KEY": ""},
			wantErr: "openai.api_key",
		},
		{
			name:    "budget not below request timeout",
			yaml:    "server:\n  request_timeout: 10s\nopenai:\n  budget: 10s\n",
			wantErr: "openai.budget",
		},
		{
			name:    "zero attempts",
			yaml:    "openai:\n  max_attempts: 0\n",
			wantErr: "openai.max_attempts",
		},
		{
			name:    "zero concurrency",
			yaml:    "relay:\n  concurrency: 0\n",
			wantErr: "relay.concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			content := tt.yaml
			if content == "" {
				content = "{}"
			}

			_, err := Load(writeTemp(t, content))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_StubNeedsNoAPIKey(t *testing.T) {
	setCredentials(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("RELAY_OPENAI__STUB", "true")

	cfg, err := Load(writeTemp(t, "openai:\n  stub_reply: canned\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.OpenAI.Stub || cfg.OpenAI.StubReply != "canned" {
		t.Errorf("openai stub settings = %v/%q", cfg.OpenAI.Stub, cfg.OpenAI.StubReply)
	}
}

func TestRead_SkipsValidation(t *testing.T) {
	clearCredentials(t)

	cfg, err := Read(writeTemp(t, "line:\n  channel_secret: only-secret\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Line.ChannelSecret != "only-secret" {
		t.Errorf("line.channel_secret = %q", cfg.Line.ChannelSecret)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject the missing credentials")
	}
}

func TestRedacted(t *testing.T) {
	setCredentials(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r := cfg.Redacted()
	for name, v := range map[string]string{
		"channel_secret":       r.Line.ChannelSecret,
		"channel_access_token": r.Line.ChannelAccessToken,
		"api_key":              r.OpenAI.APIKey,
	} {
		if strings.Contains(v, "env-") {
			t.Errorf("%s not redacted: %q", name, v)
		}
	}
	if cfg.Line.ChannelSecret != "env-secret" {
		t.Error("Redacted must not modify the original")
	}
	if r.Server.Port != cfg.Server.Port {
		t.Error("non-secret fields should be kept")
	}
}
