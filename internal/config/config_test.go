package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, existed := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if existed {
				os.Setenv(k, old)
			}
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t, "REDIS_HOST", "REDIS_PORT", "STATE_KEY", "QUEUE_NAME", "SANDBOX_ROOT",
		"CIRCUIT_BREAKER_TTL_SECONDS", "USE_RIPGREP", "CLI_PROVIDER_PRIORITY")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.RedisHost != "localhost" {
		t.Errorf("RedisHost = %q, want localhost", cfg.RedisHost)
	}
	if cfg.RedisPort != 6379 {
		t.Errorf("RedisPort = %d, want 6379", cfg.RedisPort)
	}
	if cfg.StateKey != "supervisor:state" {
		t.Errorf("StateKey = %q, want supervisor:state", cfg.StateKey)
	}
	if cfg.CircuitBreakerTTL != 24*time.Hour {
		t.Errorf("CircuitBreakerTTL = %v, want 24h", cfg.CircuitBreakerTTL)
	}
	if !cfg.UseRipgrep {
		t.Errorf("UseRipgrep = false, want true by default")
	}
	if len(cfg.CLIProviderPriority) != len(defaultProviderPriority) {
		t.Errorf("CLIProviderPriority = %v, want default list", cfg.CLIProviderPriority)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t, "REDIS_HOST", "REDIS_PORT", "CLI_PROVIDER_PRIORITY", "CLAUDE_CLI_PATH",
		"HELPER_DETERMINISTIC_ENABLED", "CIRCUIT_BREAKER_TTL_SECONDS")

	os.Setenv("REDIS_HOST", "redis.internal")
	os.Setenv("REDIS_PORT", "6380")
	os.Setenv("CLI_PROVIDER_PRIORITY", "claude, codex ,gemini")
	os.Setenv("CLAUDE_CLI_PATH", "/opt/bin/claude")
	os.Setenv("HELPER_DETERMINISTIC_ENABLED", "true")
	os.Setenv("CIRCUIT_BREAKER_TTL_SECONDS", "60")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.RedisHost != "redis.internal" {
		t.Errorf("RedisHost = %q, want redis.internal", cfg.RedisHost)
	}
	if cfg.RedisPort != 6380 {
		t.Errorf("RedisPort = %d, want 6380", cfg.RedisPort)
	}
	want := []string{"claude", "codex", "gemini"}
	if len(cfg.CLIProviderPriority) != len(want) {
		t.Fatalf("CLIProviderPriority = %v, want %v", cfg.CLIProviderPriority, want)
	}
	for i, p := range want {
		if cfg.CLIProviderPriority[i] != p {
			t.Errorf("CLIProviderPriority[%d] = %q, want %q", i, cfg.CLIProviderPriority[i], p)
		}
	}
	if cfg.ProviderCLIPath("claude") != "/opt/bin/claude" {
		t.Errorf("ProviderCLIPath(claude) = %q, want /opt/bin/claude", cfg.ProviderCLIPath("claude"))
	}
	if cfg.ProviderCLIPath("codex") != "codex" {
		t.Errorf("ProviderCLIPath(codex) = %q, want codex (unset falls back to name)", cfg.ProviderCLIPath("codex"))
	}
	if !cfg.HelperDeterministicEnabled {
		t.Errorf("HelperDeterministicEnabled = false, want true")
	}
	if cfg.CircuitBreakerTTL != 60*time.Second {
		t.Errorf("CircuitBreakerTTL = %v, want 60s", cfg.CircuitBreakerTTL)
	}
}

func TestFromEnvInvalidInt(t *testing.T) {
	clearEnv(t, "REDIS_PORT")
	os.Setenv("REDIS_PORT", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("FromEnv() error = nil, want error for invalid REDIS_PORT")
	}
}
