package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of one tool invocation. Error results are data
// fed back to the model, never loop-fatal.
type Result struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
	IsError    bool   `json:"is_error"`
}

// maxOutputBytes caps tool output surfaced to the model.
const maxOutputBytes = 10 * 1024

// DefaultTimeout applies when the caller passes a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// Invoke executes the handler under the given timeout. Handler errors,
// panics, and timeouts produce error Results; Invoke itself never fails.
func Invoke(ctx context.Context, def *Definition, args map[string]interface{}, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	outcome := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- Result{
					Output:  fmt.Sprintf("tool %s panicked: %v", def.Name, r),
					IsError: true,
				}
			}
		}()

		output, err := def.Handler(invokeCtx, args)
		if err != nil {
			outcome <- Result{Output: err.Error(), IsError: true}
			return
		}
		outcome <- Result{Output: renderOutput(output)}
	}()

	select {
	case result := <-outcome:
		log.Debug().
			Str("tool", def.Name).
			Dur("duration", time.Since(started)).
			Bool("is_error", result.IsError).
			Msg("Tool invocation finished")
		return result

	case <-invokeCtx.Done():
		log.Warn().
			Str("tool", def.Name).
			Dur("duration", time.Since(started)).
			Msg("Tool invocation timed out")
		if ctx.Err() != nil {
			return Result{
				Output:  fmt.Sprintf("tool %s cancelled: %v", def.Name, ctx.Err()),
				IsError: true,
			}
		}
		return Result{
			Output:  fmt.Sprintf("tool %s timed out after %v", def.Name, timeout),
			IsError: true,
		}
	}
}

// renderOutput converts a handler's return value into model-facing text,
// truncating oversized payloads.
func renderOutput(output interface{}) string {
	var text string
	switch v := output.(type) {
	case nil:
		text = ""
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		if encoded, err := json.Marshal(v); err == nil {
			text = string(encoded)
		} else {
			text = fmt.Sprintf("%v", v)
		}
	}

	if len(text) > maxOutputBytes {
		text = text[:maxOutputBytes] + "\n... [output truncated]"
	}
	return text
}
