package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".deskpilot"
	DefaultConfigFile = "config.yaml"
	DefaultPolicyFile = "policy.yaml"
	DefaultPacksDir   = "packs"
	DefaultLogFile    = "audit.jsonl"
	DefaultStateFile  = "state.db"

	// EnvHome overrides the configuration directory.
	EnvHome   = "DESKPILOT_HOME"
	envPrefix = "DESKPILOT"
)

// Provider kinds understood by the planner.
const (
	ProviderStub   = "stub"
	ProviderRemote = "vlm"
	ProviderLLM    = "llm"
)

type Config struct {
	ConfigDir    string `mapstructure:"-"`
	PolicyPath   string `mapstructure:"policy_path"`
	PacksDir     string `mapstructure:"packs_dir"`
	AuditLogPath string `mapstructure:"audit_log"`
	StatePath    string `mapstructure:"state_path"`

	Logger   LoggerConfig   `mapstructure:"logger"`
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	// Metrics exposes /metrics when true.
	Metrics bool `mapstructure:"metrics"`
}

type ProviderConfig struct {
	Kind    string        `mapstructure:"kind"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is requests per second towards the remote provider; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

type ExecutorConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	MaxSteps       int           `mapstructure:"max_steps"`
	DryRun         bool          `mapstructure:"dry_run"`
	Backend        string        `mapstructure:"backend"`
	ScreenWidth    int           `mapstructure:"screen_width"`
	ScreenHeight   int           `mapstructure:"screen_height"`
	MaxWait        time.Duration `mapstructure:"max_wait"`
}

type TracingConfig struct {
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Environment  string  `mapstructure:"environment"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:8001")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.metrics", true)

	// -- Provider --
	v.SetDefault("provider.kind", ProviderRemote)
	v.SetDefault("provider.url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "gpt-4o-mini")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.rate_limit", 2.0)
	v.SetDefault("provider.burst", 2)

	// -- Executor --
	v.SetDefault("executor.api_url", "http://localhost:8001")
	v.SetDefault("executor.request_timeout", "20s")
	v.SetDefault("executor.max_retries", 1)
	v.SetDefault("executor.max_steps", 50)
	v.SetDefault("executor.dry_run", true)
	v.SetDefault("executor.backend", "dryrun")
	v.SetDefault("executor.screen_width", 1920)
	v.SetDefault("executor.screen_height", 1080)
	v.SetDefault("executor.max_wait", "2s")

	// -- Tracing --
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.environment", "")
}

// NewViper returns a viper instance with defaults, env bindings and, when
// present, the config file loaded.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The remote provider keeps its historical variable names.
	_ = v.BindEnv("provider.url", "DESKPILOT_PROVIDER_URL", "DESKTOP_AGENT_VLM_URL")
	_ = v.BindEnv("provider.api_key", "DESKPILOT_PROVIDER_API_KEY", "DESKTOP_AGENT_VLM_API_KEY")

	if configFile == "" {
		return v, nil
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read config %s: %w", configFile, err)
	}
	return v, nil
}

// NewConfigFromViper unmarshals v, resolves file paths relative to dir and
// validates the result.
func NewConfigFromViper(v *viper.Viper, dir string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.ConfigDir = dir
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = filepath.Join(dir, DefaultPolicyFile)
	}
	if cfg.PacksDir == "" {
		cfg.PacksDir = filepath.Join(dir, DefaultPacksDir)
	}
	if cfg.AuditLogPath == "" {
		cfg.AuditLogPath = filepath.Join(dir, DefaultLogFile)
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(dir, DefaultStateFile)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load resolves the configuration directory, reads config.yaml (or
// configFile) and applies explicit policy/log path overrides.
func Load(configFile, policyPath, logPath string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	if configFile == "" {
		configFile = filepath.Join(dir, DefaultConfigFile)
	}

	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if policyPath != "" {
		v.Set("policy_path", policyPath)
	}
	if logPath != "" {
		v.Set("audit_log", logPath)
	}
	return NewConfigFromViper(v, dir)
}

// Dir returns $DESKPILOT_HOME or ~/.deskpilot.
func Dir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, DefaultConfigDir), nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderStub, ProviderRemote, ProviderLLM:
	default:
		return fmt.Errorf("provider.kind must be one of stub, vlm, llm; got %q", c.Provider.Kind)
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if c.Provider.RateLimit < 0 {
		return fmt.Errorf("provider.rate_limit must not be negative")
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor.max_retries must not be negative")
	}
	if c.Executor.MaxSteps < 1 || c.Executor.MaxSteps > 1000 {
		return fmt.Errorf("executor.max_steps must be between 1 and 1000")
	}
	switch c.Executor.Backend {
	case "dryrun", "robot":
	default:
		return fmt.Errorf("executor.backend must be dryrun or robot; got %q", c.Executor.Backend)
	}
	if c.Executor.ScreenWidth <= 0 || c.Executor.ScreenHeight <= 0 {
		return fmt.Errorf("executor screen size must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be between 0 and 1")
	}
	return nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
