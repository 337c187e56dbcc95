package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfigMergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  password: ${DB_SECRET}
redis:
  addr: localhost:6379
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)
	writeFile(t, dir, "secrets.env", "DB_SECRET=\"s3cret\"\n")

	cfg, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db := cfg["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, "s3cret", db["password"])
	assert.Equal(t, "localhost:6379", cfg["redis"].(map[string]interface{})["addr"])
}

func TestProcessEnvironmentWinsOverSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "ai:\n  api_key: ${AI_TEST_KEY}\n")
	writeFile(t, dir, "secrets.env", "AI_TEST_KEY=from-file\n")
	t.Setenv("AI_TEST_KEY", "from-env")

	var out struct {
		AI AIConfig `yaml:"ai"`
	}
	require.NoError(t, Decode("local", dir, &out))
	assert.Equal(t, "from-env", out.AI.APIKey)
}

func TestLoadConfigMissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&cfg)

	assert.Equal(t, "pg", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Driver)
}

func TestOverrideAIFromEnvEnablesClient(t *testing.T) {
	t.Setenv("AI_API_KEY", "k")
	var cfg AIConfig
	OverrideAIFromEnv(&cfg)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "k", cfg.APIKey)
}
