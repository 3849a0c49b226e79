package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("database.url", "postgres://localhost/memstore")
	v.Set("security.jwt_secret", "0123456789abcdef0123456789abcdef")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 60, cfg.Security.RateLimit.PerMinute)
	assert.Equal(t, 10, cfg.Security.RateLimit.Burst)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, time.Hour, cfg.Integration.SummarizationInterval)
	assert.Equal(t, 0.85, cfg.Integration.SimilarityThreshold)
	assert.Equal(t, time.Hour, cfg.Security.JWTExpiry())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  url: postgres://db.internal/memstore
security:
  jwt_secret: 0123456789abcdef0123456789abcdef
  rate_limit:
    per_min: 20
    per_hr: 200
    per_day: 1000
`), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Security.RateLimit.PerMinute)
	assert.Equal(t, 200, cfg.Security.RateLimit.PerHour)
}

func TestLoad_MissingNamedFileFails(t *testing.T) {
	_, err := Load(viper.New(), "/does/not/exist.yaml")
	require.Error(t, err)
}

func TestValidate_AccumulatesProblems(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "database.url")
	assert.Contains(t, err.Error(), "jwt_secret or security.api_keys")
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	v := viper.New()
	v.Set("database.url", "postgres://localhost/memstore")
	v.Set("security.jwt_secret", "too-short")

	_, err := Load(v, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}
