package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromViper_Defaults(t *testing.T) {
	dir := t.TempDir()
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v, dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, filepath.Join(dir, DefaultPolicyFile), cfg.PolicyPath)
	assert.Equal(t, filepath.Join(dir, DefaultPacksDir), cfg.PacksDir)
	assert.Equal(t, filepath.Join(dir, DefaultLogFile), cfg.AuditLogPath)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)

	assert.Equal(t, "127.0.0.1:8001", cfg.Server.Addr)
	assert.Equal(t, ProviderRemote, cfg.Provider.Kind)
	assert.Equal(t, 15*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "http://localhost:8001", cfg.Executor.APIURL)
	assert.Equal(t, 1, cfg.Executor.MaxRetries)
	assert.Equal(t, 50, cfg.Executor.MaxSteps)
	assert.True(t, cfg.Executor.DryRun)
	assert.Equal(t, 2*time.Second, cfg.Executor.MaxWait)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestNewViper_ReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
provider:
  kind: llm
  model: local-model
executor:
  max_retries: 3
  backend: robot
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("DESKTOP_AGENT_VLM_URL", "https://vlm.example/plan")
	t.Setenv("DESKPILOT_SERVER_ADDR", "0.0.0.0:9000")

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := NewConfigFromViper(v, dir)
	require.NoError(t, err)

	assert.Equal(t, ProviderLLM, cfg.Provider.Kind)
	assert.Equal(t, "local-model", cfg.Provider.Model)
	assert.Equal(t, "https://vlm.example/plan", cfg.Provider.URL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Executor.MaxRetries)
	assert.Equal(t, "robot", cfg.Executor.Backend)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestNewViper_MissingFileIsFine(t *testing.T) {
	v, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", v.GetString("logger.level"))
}

func TestNewViper_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [oops"), 0600))
	_, err := NewViper(path)
	assert.Error(t, err)
}

func TestLoad_UsesHomeOverride(t *testing.T) {
	home := filepath.Join(t.TempDir(), "dp")
	t.Setenv(EnvHome, home)

	cfg, err := Load("", "/tmp/custom-policy.yaml", "")
	require.NoError(t, err)

	assert.DirExists(t, home)
	assert.Equal(t, home, cfg.ConfigDir)
	assert.Equal(t, "/tmp/custom-policy.yaml", cfg.PolicyPath)
	assert.Equal(t, filepath.Join(home, DefaultLogFile), cfg.AuditLogPath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad provider", func(c *Config) { c.Provider.Kind = "oracle" }},
		{"zero timeout", func(c *Config) { c.Provider.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Executor.MaxRetries = -1 }},
		{"too many steps", func(c *Config) { c.Executor.MaxSteps = 5000 }},
		{"bad backend", func(c *Config) { c.Executor.Backend = "vnc" }},
		{"bad screen", func(c *Config) { c.Executor.ScreenWidth = 0 }},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			cfg, err := NewConfigFromViper(v, t.TempDir())
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
