package config

import "time"

// Config is the full application configuration.
type Config struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	RulesetPath string        `mapstructure:"ruleset_path"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Loop        LoopConfig    `mapstructure:"loop"`
	Log         LogConfig     `mapstructure:"log"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// LoopConfig caps the agent loop.
type LoopConfig struct {
	MaxIterations          int           `mapstructure:"max_iterations"`
	ToolTimeout            time.Duration `mapstructure:"tool_timeout"`
	TokenBudget            int           `mapstructure:"token_budget"`
	MaxConcurrentToolCalls int           `mapstructure:"max_concurrent_tool_calls"`
	RetryLimit             int           `mapstructure:"retry_limit"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Pretty bool   `mapstructure:"pretty"`
}

// TracingConfig configures span export. An empty endpoint disables
// export while keeping spans locally.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Protocol    string `mapstructure:"protocol"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:    "anthropic",
		Model:       "claude-3-5-sonnet-20241022",
		Temperature: 0.7,
		MaxTokens:   4096,
		MaxAttempts: 3,
		Loop: LoopConfig{
			MaxIterations:          10,
			ToolTimeout:            30 * time.Second,
			TokenBudget:            64000,
			MaxConcurrentToolCalls: 4,
			RetryLimit:             3,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "deconstructor",
		},
	}
}
