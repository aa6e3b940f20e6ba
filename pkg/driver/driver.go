package driver

import (
	"context"
	"fmt"

	"github.com/kyleroche/deconstructor/pkg/transcript"
)

// ToolSchema is the provider-facing description of one tool.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Request carries the full context for one completion call.
type Request struct {
	Model       string
	System      string
	Messages    []transcript.Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is a driver's normalized answer: optional text plus zero
// or more tool-call requests.
type Completion struct {
	Text      string
	ToolCalls []transcript.ToolCallRequest
	Usage     Usage
}

// Driver is the uniform interface to a model backend.
type Driver interface {
	// Complete submits the request and returns a parsed completion.
	// Failures use the package error taxonomy.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Name returns the provider name.
	Name() string
}

// New creates a driver for the named provider.
func New(provider, apiKey string) (Driver, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicDriver(apiKey), nil
	case "openai":
		return NewOpenAIDriver(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// validateRequest enforces the driver contract: a non-empty message
// sequence ending with a non-assistant turn.
func validateRequest(req Request) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("request must carry at least one message")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role == transcript.RoleAssistant {
		return fmt.Errorf("request must not end with an assistant message")
	}
	return nil
}
