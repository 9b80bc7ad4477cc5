package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  extra: true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.HTTPPort)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 64, cfg.Session.MaxActiveSessions)
}

func TestLoad_RejectsShortJWTSecret(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "too-short"
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsMissingDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestJSONSchema_ReturnsValidJSON(t *testing.T) {
	raw, err := JSONSchema()
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}
