package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Chat.MaxToolRounds != 10 || cfg.Chat.MaxMessages != 100 || cfg.Chat.MaxConversations != 20 {
		t.Errorf("chat defaults = %+v", cfg.Chat)
	}
	if cfg.LLM.MaxRetries != 3 {
		t.Errorf("llm max retries = %d, want 3", cfg.LLM.MaxRetries)
	}
	if !cfg.Audit.Enabled || !cfg.RateLimit.Enabled {
		t.Error("audit and rate limiting must default to enabled")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
chat:
  max_tool_rounds: 5
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Chat.MaxToolRounds != 5 {
		t.Errorf("max_tool_rounds = %d, want 5", cfg.Chat.MaxToolRounds)
	}
	// Untouched keys keep defaults.
	if cfg.Server.Host != "0.0.0.0" || cfg.Chat.MaxMessages != 100 {
		t.Errorf("defaults lost: host=%q max_messages=%d", cfg.Server.Host, cfg.Chat.MaxMessages)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("FAREWATCH_TEST_SECRET", "s3cret")
	path := writeConfig(t, `
auth:
  jwt_secret: ${FAREWATCH_TEST_SECRET}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("jwt_secret = %q, want expanded env value", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	if _, err := Parse([]byte("server: [not a map")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDurationsParse(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  shutdown_timeout: 30s
database:
  conn_max_lifetime: 10m
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.ConnMaxLifetime != 10*time.Minute {
		t.Errorf("conn_max_lifetime = %v", cfg.Database.ConnMaxLifetime)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("Validate() = %v, want jwt_secret error", err)
	}

	cfg.Auth.JWTSecret = "secret"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("Validate() = %v, want api_key error", err)
	}

	cfg.LLM.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("out-of-range port accepted")
	}
}
