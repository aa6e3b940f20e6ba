package driver

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kyleroche/deconstructor/pkg/transcript"
)

// AnthropicDriver implements Driver for Anthropic Claude.
type AnthropicDriver struct {
	client anthropic.Client
}

// NewAnthropicDriver creates an Anthropic-backed driver.
func NewAnthropicDriver(apiKey string) *AnthropicDriver {
	return &AnthropicDriver{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (d *AnthropicDriver) Name() string {
	return "anthropic"
}

// Complete submits the conversation and parses the response into the
// normalized completion shape.
func (d *AnthropicDriver) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  anthropicMessages(req.Messages),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}

	response, err := d.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(d.Name(), err)
	}

	completion := &Completion{
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			completion.Text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, &MalformedCompletionError{
					Provider: d.Name(),
					Reason:   "unparseable tool input for " + b.Name + ": " + err.Error(),
				}
			}
			completion.ToolCalls = append(completion.ToolCalls, transcript.ToolCallRequest{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return completion, nil
}

// anthropicMessages converts transcript messages to the SDK shape. The
// system turn travels in the request's System field, not the message
// list.
func anthropicMessages(messages []transcript.Message) []anthropic.MessageParam {
	out := []anthropic.MessageParam{}

	for _, msg := range messages {
		switch msg.Role {
		case transcript.RoleSystem:
			continue

		case transcript.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError),
			))

		case transcript.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, call := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
				}
				out = append(out, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				out = append(out, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}

		case transcript.RoleUser:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return out
}

// anthropicTools converts tool schemas to SDK tool params.
func anthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := []anthropic.ToolUnionParam{}

	for _, tool := range tools {
		param := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: tool.InputSchema["properties"],
			},
		}
		// Schemas built elsewhere may carry the required list as
		// []interface{} after a JSON round trip.
		switch required := tool.InputSchema["required"].(type) {
		case []string:
			param.InputSchema.Required = required
		case []interface{}:
			names := make([]string, 0, len(required))
			for _, name := range required {
				if s, ok := name.(string); ok {
					names = append(names, s)
				}
			}
			param.InputSchema.Required = names
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}

	return out
}
