// Package config loads the agent runtime's YAML configuration, grounded
// on the teacher's internal/config/config.go Load/defaults/validate shape,
// trimmed to the sub-configs this runtime actually has: server, database,
// auth, session, LLM, tools, and observability.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Session       SessionConfig       `yaml:"session"`
	LLM           LLMConfig           `yaml:"llm"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the agentcored process's listeners.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the event store backend.
type DatabaseConfig struct {
	// Driver is "memory" or "sqlite". Defaults to "sqlite".
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig configures JWT issuance, static API keys, and OAuth refresh.
type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenExpiry time.Duration  `yaml:"token_expiry"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
	OAuth       OAuthConfig    `yaml:"oauth"`
	// CredentialsPath is the versioned auth-material JSON file (§3/§6).
	CredentialsPath string `yaml:"credentials_path"`
}

// APIKeyConfig is one statically-configured API key.
type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Email  string `yaml:"email"`
	Name   string `yaml:"name"`
}

// OAuthConfig configures provider OAuth client credentials.
type OAuthConfig struct {
	Google OAuthProviderConfig `yaml:"google"`
	GitHub OAuthProviderConfig `yaml:"github"`
}

// OAuthProviderConfig is one OAuth provider's client registration.
type OAuthProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// SessionConfig controls session lifecycle defaults.
type SessionConfig struct {
	MaxActiveSessions int           `yaml:"max_active_sessions"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
	ExpirySweepCron   string        `yaml:"expiry_sweep_cron"`
}

// LLMConfig configures provider credentials and the default/fallback chain.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	FallbackChain   []string                     `yaml:"fallback_chain"`
}

// LLMProviderConfig is one provider's credentials and defaults.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"` // bedrock
}

// ToolsConfig controls tool execution behavior.
type ToolsConfig struct {
	WorkspaceRoot string              `yaml:"workspace_root"`
	Execution     ToolExecutionConfig `yaml:"execution"`
}

// ToolExecutionConfig bounds per-call tool execution.
type ToolExecutionConfig struct {
	PerToolTimeout time.Duration `yaml:"per_tool_timeout"`
	MaxToolCalls   int           `yaml:"max_tool_calls"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig controls slog's handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`
	ServiceName    string  `yaml:"service_name"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	Insecure       bool    `yaml:"insecure"`
}

// Load reads, expands environment variables in, and validates the
// configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.Auth.CredentialsPath == "" {
		cfg.Auth.CredentialsPath = "auth.json"
	}

	if cfg.Session.MaxActiveSessions == 0 {
		cfg.Session.MaxActiveSessions = 64
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 24 * time.Hour
	}
	if cfg.Session.ExpirySweepCron == "" {
		cfg.Session.ExpirySweepCron = "@hourly"
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}

	if cfg.Tools.WorkspaceRoot == "" {
		cfg.Tools.WorkspaceRoot = "."
	}
	if cfg.Tools.Execution.PerToolTimeout == 0 {
		cfg.Tools.Execution.PerToolTimeout = 30 * time.Second
	}
	if cfg.Tools.Execution.MaxToolCalls == 0 {
		cfg.Tools.Execution.MaxToolCalls = 50
	}

	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "agentcored"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

// ValidationError reports every config field that failed validation.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "memory", "sqlite":
	default:
		issues = append(issues, `database.driver must be "memory" or "sqlite"`)
	}

	if cfg.Session.MaxActiveSessions < 0 {
		issues = append(issues, "session.max_active_sessions must be >= 0")
	}
	if cfg.Session.IdleTTL < 0 {
		issues = append(issues, "session.idle_ttl must be >= 0")
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}

	seenKeys := map[string]struct{}{}
	for i, entry := range cfg.Auth.APIKeys {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			issues = append(issues, fmt.Sprintf("auth.api_keys[%d].key must be set", i))
			continue
		}
		if _, ok := seenKeys[key]; ok {
			issues = append(issues, fmt.Sprintf("auth.api_keys[%d].key must be unique", i))
		}
		seenKeys[key] = struct{}{}
	}
	if jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret); jwtSecret != "" && len(jwtSecret) < 32 {
		issues = append(issues, "auth.jwt_secret must be at least 32 characters")
	}

	if cfg.Tools.Execution.PerToolTimeout < 0 {
		issues = append(issues, "tools.execution.per_tool_timeout must be >= 0")
	}
	if cfg.Tools.Execution.MaxToolCalls < 0 {
		issues = append(issues, "tools.execution.max_tool_calls must be >= 0")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
