package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kyleroche/deconstructor/pkg/transcript"
)

// OpenAIDriver implements Driver for OpenAI chat completions.
type OpenAIDriver struct {
	client openai.Client
}

// NewOpenAIDriver creates an OpenAI-backed driver.
func NewOpenAIDriver(apiKey string) *OpenAIDriver {
	return &OpenAIDriver{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (d *OpenAIDriver) Name() string {
	return "openai"
}

// Complete submits the conversation and parses the response into the
// normalized completion shape.
func (d *OpenAIDriver) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	messages, err := openaiMessages(req.System, req.Messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = openaiTools(req.Tools)
	}

	response, err := d.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(d.Name(), err)
	}
	if len(response.Choices) == 0 {
		return nil, &MalformedCompletionError{Provider: d.Name(), Reason: "no response choices returned"}
	}

	choice := response.Choices[0]
	completion := &Completion{
		Text: choice.Message.Content,
		Usage: Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}

	for _, call := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, &MalformedCompletionError{
				Provider: d.Name(),
				Reason:   "unparseable tool arguments for " + call.Function.Name + ": " + err.Error(),
			}
		}
		completion.ToolCalls = append(completion.ToolCalls, transcript.ToolCallRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	return completion, nil
}

// openaiMessages converts transcript messages to the SDK union shape.
func openaiMessages(system string, messages []transcript.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case transcript.RoleSystem:
			continue

		case transcript.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))

		case transcript.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := []openai.ChatCompletionMessageToolCall{}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Arguments)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			out = append(out, assistant.ToParam())

		case transcript.RoleTool:
			out = append(out, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}

	return out, nil
}

// openaiTools converts tool schemas to SDK function definitions.
func openaiTools(tools []ToolSchema) []openai.ChatCompletionToolParam {
	out := []openai.ChatCompletionToolParam{}
	for _, tool := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.InputSchema),
			},
		})
	}
	return out
}
