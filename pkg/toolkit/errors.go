package toolkit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrUnknownTool is returned when resolving an unregistered name.
	ErrUnknownTool = errors.New("unknown tool")
)

// SchemaValidationError reports why a set of arguments failed a tool's
// schema. It is recoverable: callers convert it into an error Result
// surfaced back to the model.
type SchemaValidationError struct {
	Tool     string
	Findings []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("arguments for tool %q rejected: %s", e.Tool, strings.Join(e.Findings, "; "))
}
