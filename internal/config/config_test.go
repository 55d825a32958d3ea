package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, "./git_metrics.db", cfg.SQLitePath)
	assert.Equal(t, 1000, cfg.FetchLimit)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "8000", cfg.APIPort)
	assert.Equal(t, "http://localhost:8000", cfg.APIEndpoint)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("FETCH_LIMIT", "50")
	t.Setenv("HTTP_TIMEOUT", "5")
	t.Setenv("API_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, 50, cfg.FetchLimit)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "9000", cfg.APIPort)
}

func TestLoadIgnoresInvalidInt(t *testing.T) {
	t.Setenv("FETCH_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.FetchLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "sqlite", cfg: Config{StorageType: "sqlite"}},
		{name: "memory", cfg: Config{StorageType: "memory"}},
		{name: "postgres with url", cfg: Config{StorageType: "postgres", PostgresURL: "postgres://localhost/metrics"}},
		{name: "postgres without url", cfg: Config{StorageType: "postgres"}, wantErr: "POSTGRES_URL"},
		{name: "unknown storage", cfg: Config{StorageType: "cassandra"}, wantErr: "STORAGE_TYPE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
