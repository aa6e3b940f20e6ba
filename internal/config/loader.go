package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path uses the default
// location under the user's home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration file, applies environment overrides
// (DECONSTRUCTOR_*), and validates the result. A missing file yields
// the defaults, still subject to environment overrides.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".deconstructor", "config.yaml")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DECONSTRUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key must be registered for AutomaticEnv to surface its
	// DECONSTRUCTOR_* override through Unmarshal.
	setDefaults(v)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every configuration key with its default value.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("provider", defaults.Provider)
	v.SetDefault("model", defaults.Model)
	v.SetDefault("temperature", defaults.Temperature)
	v.SetDefault("max_tokens", defaults.MaxTokens)
	v.SetDefault("ruleset_path", defaults.RulesetPath)
	v.SetDefault("max_attempts", defaults.MaxAttempts)

	v.SetDefault("loop.max_iterations", defaults.Loop.MaxIterations)
	v.SetDefault("loop.tool_timeout", defaults.Loop.ToolTimeout)
	v.SetDefault("loop.token_budget", defaults.Loop.TokenBudget)
	v.SetDefault("loop.max_concurrent_tool_calls", defaults.Loop.MaxConcurrentToolCalls)
	v.SetDefault("loop.retry_limit", defaults.Loop.RetryLimit)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.pretty", defaults.Log.Pretty)

	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	v.SetDefault("tracing.protocol", defaults.Tracing.Protocol)
	v.SetDefault("tracing.insecure", defaults.Tracing.Insecure)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
}
