package agent

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kyleroche/deconstructor/internal/tracing"
	"github.com/kyleroche/deconstructor/pkg/toolkit"
	"github.com/kyleroche/deconstructor/pkg/transcript"
)

// dispatch executes every tool call from one assistant turn. Calls run
// in parallel bounded by MaxConcurrentToolCalls, but results come back
// indexed by request position so the caller appends them in request
// order. Every request yields exactly one result; failures of any kind
// are error results, never missing entries.
func (l *Loop) dispatch(ctx context.Context, calls []transcript.ToolCallRequest) []toolkit.Result {
	results := make([]toolkit.Result, len(calls))
	sem := make(chan struct{}, l.opts.MaxConcurrentToolCalls)
	var wg sync.WaitGroup

	for i := range calls {
		wg.Add(1)
		go func(i int, call transcript.ToolCallRequest) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = toolkit.Result{
					ToolCallID: call.ID,
					Output:     "tool call cancelled: " + ctx.Err().Error(),
					IsError:    true,
				}
				return
			}

			results[i] = l.invokeOne(ctx, call)
		}(i, calls[i])
	}

	wg.Wait()
	return results
}

// invokeOne resolves, validates, and invokes a single tool call.
// Unknown names and rejected arguments are surfaced to the model as
// error results: the model chose them, so they are data, not bugs.
func (l *Loop) invokeOne(ctx context.Context, call transcript.ToolCallRequest) toolkit.Result {
	ctx, span := tracing.StartSpan(ctx, tracerName, "tool.invoke",
		attribute.String("tool", call.Name),
		attribute.String("tool_call_id", call.ID),
	)
	defer span.End()

	def, err := l.registry.Resolve(call.Name)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return toolkit.Result{ToolCallID: call.ID, Output: err.Error(), IsError: true}
	}

	if err := l.registry.ValidateArguments(call.Name, call.Arguments); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return toolkit.Result{ToolCallID: call.ID, Output: err.Error(), IsError: true}
	}

	result := toolkit.Invoke(ctx, def, call.Arguments, l.opts.ToolTimeout)
	result.ToolCallID = call.ID
	if result.IsError {
		span.SetStatus(codes.Error, result.Output)
	}
	return result
}
