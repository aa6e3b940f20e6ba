package config

import "fmt"

// Validate rejects configurations the application cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}

	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("loop max iterations must be positive")
	}
	if c.Loop.ToolTimeout <= 0 {
		return fmt.Errorf("loop tool timeout must be positive")
	}
	if c.Loop.TokenBudget <= 0 {
		return fmt.Errorf("loop token budget must be positive")
	}
	if c.Loop.MaxConcurrentToolCalls <= 0 {
		return fmt.Errorf("loop max concurrent tool calls must be positive")
	}
	if c.Loop.RetryLimit < 0 {
		return fmt.Errorf("loop retry limit cannot be negative")
	}

	switch c.Tracing.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("tracing protocol must be grpc or http")
	}

	return nil
}
