package agent

import (
	"fmt"
	"time"
)

// Options caps the loop's resource usage.
type Options struct {
	Model                  string
	Temperature            float64
	MaxCompletionTokens    int
	MaxIterations          int
	ToolTimeout            time.Duration
	TokenBudget            int
	MaxConcurrentToolCalls int
	RetryLimit             int
}

// DefaultOptions returns the loop defaults.
func DefaultOptions() Options {
	return Options{
		Model:                  "claude-3-5-sonnet-20241022",
		Temperature:            0.7,
		MaxCompletionTokens:    4096,
		MaxIterations:          10,
		ToolTimeout:            30 * time.Second,
		TokenBudget:            64000,
		MaxConcurrentToolCalls: 4,
		RetryLimit:             3,
	}
}

// validate rejects option values the loop cannot run with.
func (o Options) validate() error {
	if o.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive")
	}
	if o.MaxConcurrentToolCalls <= 0 {
		return fmt.Errorf("max concurrent tool calls must be positive")
	}
	if o.RetryLimit < 0 {
		return fmt.Errorf("retry limit cannot be negative")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}
