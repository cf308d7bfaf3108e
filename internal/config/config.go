// Package config builds the supervisor's single immutable Config value
// from environment variables, once, at process start. No other package
// reads os.Getenv; the CLI copies the Config's fields into each
// component constructor's arguments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the supervisor's ambient configuration, built once per
// command by the CLI's newApp and held by reference there; components
// receive the individual values they need.
type Config struct {
	RedisHost string
	RedisPort int
	StateDB   int
	QueueDB   int

	StateKey  string
	QueueName string

	SandboxRoot string

	// ProviderCLIPaths maps a provider name to its CLI binary path,
	// e.g. "claude" -> CLAUDE_CLI_PATH.
	ProviderCLIPaths map[string]string

	// CLIProviderPriority overrides the default provider priority list.
	CLIProviderPriority []string

	HelperAgentMode             string
	HelperDeterministicEnabled  bool
	HelperDeterministicPercent  int
	HelperDeterministicMaxFiles int
	HelperDeterministicMaxBytes int64
	UseLocalHelperAgent         bool
	LocalHelperModel            string
	OllamaBaseURL               string

	CircuitBreakerTTL time.Duration

	PerformanceLoggingEnabled bool
	UseRipgrep                bool
	DisableSessionReuse       bool

	// StrictHelper requires at least one executed verification command
	// before Stage 3 may trust a helper's isValid=true with zero
	// commands. Off by default: a bare isValid=true is trusted.
	StrictHelper bool
}

// defaultProviderPriority is the provider order used when CLI_PROVIDER_PRIORITY is unset.
var defaultProviderPriority = []string{"gemini", "copilot", "cursor", "codex", "claude", "gemini_stub"}

// providerCLIEnvVars lists every provider whose CLI path can be overridden.
var providerCLIEnvVars = map[string]string{
	"cursor":      "CURSOR_CLI_PATH",
	"gemini":      "GEMINI_CLI_PATH",
	"copilot":     "COPILOT_CLI_PATH",
	"codex":       "CODEX_CLI_PATH",
	"claude":      "CLAUDE_CLI_PATH",
	"ollama":      "OLLAMA_CLI_PATH",
	"gemini_stub": "GEMINI_STUB_CLI_PATH",
}

// FromEnv builds a Config from the process environment, applying
// built-in defaults for anything unset.
func FromEnv() (*Config, error) {
	cfg := &Config{
		RedisHost:                  getEnv("REDIS_HOST", "localhost"),
		StateKey:                   getEnv("STATE_KEY", "supervisor:state"),
		QueueName:                  getEnv("QUEUE_NAME", "tasks"),
		SandboxRoot:                getEnv("SANDBOX_ROOT", "./sandbox"),
		HelperAgentMode:            getEnv("HELPER_AGENT_MODE", "remote"),
		LocalHelperModel:           getEnv("LOCAL_HELPER_MODEL", ""),
		OllamaBaseURL:              getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		HelperDeterministicPercent: 0,
		ProviderCLIPaths:           make(map[string]string, len(providerCLIEnvVars)),
	}

	var err error
	if cfg.RedisPort, err = getEnvInt("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	if cfg.StateDB, err = getEnvInt("STATE_DB", 0); err != nil {
		return nil, err
	}
	if cfg.QueueDB, err = getEnvInt("QUEUE_DB", 0); err != nil {
		return nil, err
	}
	if cfg.HelperDeterministicMaxFiles, err = getEnvInt("HELPER_DETERMINISTIC_MAX_FILES", 2000); err != nil {
		return nil, err
	}
	if cfg.HelperDeterministicPercent, err = getEnvInt("HELPER_DETERMINISTIC_PERCENT", 0); err != nil {
		return nil, err
	}
	maxBytes, err := getEnvInt("HELPER_DETERMINISTIC_MAX_BYTES", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	cfg.HelperDeterministicMaxBytes = int64(maxBytes)

	ttlSeconds, err := getEnvInt("CIRCUIT_BREAKER_TTL_SECONDS", 24*60*60)
	if err != nil {
		return nil, err
	}
	cfg.CircuitBreakerTTL = time.Duration(ttlSeconds) * time.Second

	cfg.HelperDeterministicEnabled = getEnvBool("HELPER_DETERMINISTIC_ENABLED", false)
	cfg.UseLocalHelperAgent = getEnvBool("USE_LOCAL_HELPER_AGENT", false)
	cfg.PerformanceLoggingEnabled = getEnvBool("PERFORMANCE_LOGGING_ENABLED", false)
	cfg.UseRipgrep = getEnvBool("USE_RIPGREP", true)
	cfg.DisableSessionReuse = getEnvBool("DISABLE_SESSION_REUSE", false)
	cfg.StrictHelper = getEnvBool("STRICT_HELPER", false)

	for provider, envVar := range providerCLIEnvVars {
		if path := os.Getenv(envVar); path != "" {
			cfg.ProviderCLIPaths[provider] = path
		}
	}

	cfg.CLIProviderPriority = defaultProviderPriority
	if raw := os.Getenv("CLI_PROVIDER_PRIORITY"); raw != "" {
		parts := strings.Split(raw, ",")
		priority := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				priority = append(priority, p)
			}
		}
		if len(priority) > 0 {
			cfg.CLIProviderPriority = priority
		}
	}

	return cfg, nil
}

// ProviderCLIPath returns the configured CLI path for a provider, or
// the provider's own name (resolved via PATH) if unset.
func (c *Config) ProviderCLIPath(provider string) string {
	if path, ok := c.ProviderCLIPaths[provider]; ok && path != "" {
		return path
	}
	return provider
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
