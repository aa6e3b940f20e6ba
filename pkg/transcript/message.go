package transcript

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a tool invocation the model asked for. IDs are
// unique within the assistant message that carries them.
type ToolCallRequest struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message represents a single conversation turn.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	// IsError marks a tool message that carries a failure payload.
	IsError bool `json:"is_error,omitempty"`
}

// clone returns a deep copy so the log never aliases caller slices or
// argument maps.
func (m Message) clone() Message {
	if len(m.ToolCalls) == 0 {
		m.ToolCalls = nil
		return m
	}
	calls := make([]ToolCallRequest, len(m.ToolCalls))
	for i, call := range m.ToolCalls {
		if call.Arguments != nil {
			args := make(map[string]interface{}, len(call.Arguments))
			for k, v := range call.Arguments {
				args[k] = v
			}
			call.Arguments = args
		}
		calls[i] = call
	}
	m.ToolCalls = calls
	return m
}
