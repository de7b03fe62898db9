package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Model.MatchTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  path: "/models/actions.yaml"
  match_timeout: 500ms
logging:
  level: "debug"
  development: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/models/actions.yaml", cfg.Model.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Model.MatchTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: \"warn\"\n"), 0o600))
	t.Setenv("SUGGEST_LOGGING_LEVEL", "error")
	t.Setenv("SUGGEST_MODEL_PATH", "/env/model.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, "/env/model.yaml", cfg.Model.Path)
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	t.Setenv("SUGGEST_LOGGING_LEVEL", "loud")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{{"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.Model.MatchTimeout = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Model.MatchTimeout = -time.Second }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "silent" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Model:   ModelConfig{MatchTimeout: time.Second},
				Logging: LoggingConfig{Level: "info"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
