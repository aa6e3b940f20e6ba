package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleroche/deconstructor/pkg/driver"
	"github.com/kyleroche/deconstructor/pkg/toolkit"
	"github.com/kyleroche/deconstructor/pkg/transcript"
)

// scriptedDriver replays a fixed sequence of completions and errors,
// recording every request it receives.
type scriptedDriver struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []driver.Request
}

type scriptedStep struct {
	completion *driver.Completion
	err        error
}

func (d *scriptedDriver) Complete(_ context.Context, req driver.Request) (*driver.Completion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, req)
	if len(d.steps) == 0 {
		return nil, fmt.Errorf("script exhausted after %d calls", len(d.requests))
	}
	step := d.steps[0]
	d.steps = d.steps[1:]
	return step.completion, step.err
}

func (d *scriptedDriver) Name() string { return "scripted" }

func (d *scriptedDriver) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func (d *scriptedDriver) request(i int) driver.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[i]
}

func textStep(text string, usage driver.Usage) scriptedStep {
	return scriptedStep{completion: &driver.Completion{Text: text, Usage: usage}}
}

func toolStep(calls ...transcript.ToolCallRequest) scriptedStep {
	return scriptedStep{completion: &driver.Completion{ToolCalls: calls}}
}

func testOptions() Options {
	return Options{
		Model:                  "test-model",
		Temperature:            0.2,
		MaxCompletionTokens:    1024,
		MaxIterations:          5,
		ToolTimeout:            2 * time.Second,
		TokenBudget:            100000,
		MaxConcurrentToolCalls: 4,
		RetryLimit:             3,
	}
}

func newTestLoop(t *testing.T, d driver.Driver, registry *toolkit.Registry, opts Options) *Loop {
	t.Helper()
	if registry == nil {
		registry = toolkit.NewRegistry()
	}
	loop, err := New(Config{
		Driver:   d,
		Registry: registry,
		Logger:   zerolog.Nop(),
		Options:  opts,
	})
	require.NoError(t, err)
	return loop
}

func echoRegistry(t *testing.T) *toolkit.Registry {
	t.Helper()
	registry := toolkit.NewRegistry()
	err := registry.Register(toolkit.Definition{
		Name:        "echo",
		Description: "Echoes the given text after an optional delay",
		Parameters: []toolkit.Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
			{Name: "delay_ms", Type: "number", Description: "Delay before answering, in milliseconds"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if delay, ok := args["delay_ms"].(float64); ok {
				select {
				case <-time.After(time.Duration(delay) * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return args["text"], nil
		},
	})
	require.NoError(t, err)
	return registry
}

func TestNewLoop(t *testing.T) {
	t.Run("should require a driver", func(t *testing.T) {
		_, err := New(Config{Registry: toolkit.NewRegistry()})
		assert.ErrorContains(t, err, "driver is required")
	})

	t.Run("should require a registry", func(t *testing.T) {
		_, err := New(Config{Driver: &scriptedDriver{}})
		assert.ErrorContains(t, err, "registry is required")
	})

	t.Run("should fall back to default options", func(t *testing.T) {
		loop, err := New(Config{Driver: &scriptedDriver{}, Registry: toolkit.NewRegistry()})
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), loop.opts)
	})

	t.Run("should reject invalid options", func(t *testing.T) {
		opts := testOptions()
		opts.MaxIterations = 0
		_, err := New(Config{Driver: &scriptedDriver{}, Registry: toolkit.NewRegistry(), Options: opts})
		assert.ErrorContains(t, err, "max iterations")
	})
}

func TestRunCompletesWithoutTools(t *testing.T) {
	d := &scriptedDriver{steps: []scriptedStep{
		textStep("final answer", driver.Usage{InputTokens: 12, OutputTokens: 7}),
	}}
	loop := newTestLoop(t, d, nil, testOptions())

	result, err := loop.Run(context.Background(), "You are terse.", "What is up?")
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, "final answer", result.Text)
	assert.Equal(t, StatusCompleted, result.Session.Status)
	assert.Equal(t, driver.Usage{InputTokens: 12, OutputTokens: 7}, result.Usage)
	assert.Equal(t, 1, d.calls())

	messages := result.Session.Log.Snapshot()
	require.Len(t, messages, 3)
	assert.Equal(t, transcript.RoleSystem, messages[0].Role)
	assert.Equal(t, transcript.RoleUser, messages[1].Role)
	assert.Equal(t, transcript.RoleAssistant, messages[2].Role)

	assert.Equal(t, "You are terse.", d.request(0).System)
	assert.Equal(t, "test-model", d.request(0).Model)
}

func TestRunSingleToolRoundTrip(t *testing.T) {
	d := &scriptedDriver{steps: []scriptedStep{
		toolStep(transcript.ToolCallRequest{
			ID:        "call_1",
			Name:      "echo",
			Arguments: map[string]interface{}{"text": "pong"},
		}),
		textStep("done: pong", driver.Usage{}),
	}}
	loop := newTestLoop(t, d, echoRegistry(t), testOptions())

	result, err := loop.Run(context.Background(), "You can echo.", "ping")
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.Equal(t, 2, d.calls())

	// The second request must carry the full exchange in order.
	replayed := d.request(1).Messages
	require.Len(t, replayed, 4)
	assert.Equal(t, transcript.RoleSystem, replayed[0].Role)
	assert.Equal(t, transcript.RoleUser, replayed[1].Role)
	assert.Equal(t, transcript.RoleAssistant, replayed[2].Role)
	require.Len(t, replayed[2].ToolCalls, 1)
	assert.Equal(t, transcript.RoleTool, replayed[3].Role)
	assert.Equal(t, "call_1", replayed[3].ToolCallID)
	assert.Equal(t, "pong", replayed[3].Content)
	assert.False(t, replayed[3].IsError)

	messages := result.Session.Log.Snapshot()
	require.Len(t, messages, 5)
	assert.Equal(t, "done: pong", messages[4].Content)
}

func TestRunParallelToolOrder(t *testing.T) {
	d := &scriptedDriver{steps: []scriptedStep{
		toolStep(
			transcript.ToolCallRequest{ID: "call_a", Name: "echo",
				Arguments: map[string]interface{}{"text": "first", "delay_ms": 60.0}},
			transcript.ToolCallRequest{ID: "call_b", Name: "echo",
				Arguments: map[string]interface{}{"text": "second", "delay_ms": 30.0}},
			transcript.ToolCallRequest{ID: "call_c", Name: "echo",
				Arguments: map[string]interface{}{"text": "third"}},
		),
		textStep("done", driver.Usage{}),
	}}
	loop := newTestLoop(t, d, echoRegistry(t), testOptions())

	result, err := loop.Run(context.Background(), "", "go")
	require.NoError(t, err)

	// Results land in request order even though slower calls finish last.
	messages := result.Session.Log.Snapshot()
	require.Len(t, messages, 6)
	assert.Equal(t, "call_a", messages[2].ToolCallID)
	assert.Equal(t, "first", messages[2].Content)
	assert.Equal(t, "call_b", messages[3].ToolCallID)
	assert.Equal(t, "second", messages[3].Content)
	assert.Equal(t, "call_c", messages[4].ToolCallID)
	assert.Equal(t, "third", messages[4].Content)
}

func TestRunContainsToolFailures(t *testing.T) {
	t.Run("should surface handler errors as error results", func(t *testing.T) {
		registry := toolkit.NewRegistry()
		require.NoError(t, registry.Register(toolkit.Definition{
			Name:        "flaky",
			Description: "Always fails",
			Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
				return nil, errors.New("backend unreachable")
			},
		}))
		d := &scriptedDriver{steps: []scriptedStep{
			toolStep(transcript.ToolCallRequest{ID: "call_1", Name: "flaky", Arguments: map[string]interface{}{}}),
			textStep("recovered", driver.Usage{}),
		}}
		loop := newTestLoop(t, d, registry, testOptions())

		result, err := loop.Run(context.Background(), "", "try it")
		require.NoError(t, err)
		assert.True(t, result.Converged)

		messages := result.Session.Log.Snapshot()
		require.Len(t, messages, 4)
		assert.True(t, messages[2].IsError)
		assert.Contains(t, messages[2].Content, "backend unreachable")
	})

	t.Run("should surface unknown tool names as error results", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{
			toolStep(transcript.ToolCallRequest{ID: "call_1", Name: "nope", Arguments: map[string]interface{}{}}),
			textStep("recovered", driver.Usage{}),
		}}
		loop := newTestLoop(t, d, echoRegistry(t), testOptions())

		result, err := loop.Run(context.Background(), "", "try it")
		require.NoError(t, err)

		messages := result.Session.Log.Snapshot()
		assert.True(t, messages[2].IsError)
		assert.Contains(t, messages[2].Content, "unknown tool")
	})

	t.Run("should surface rejected arguments as error results", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{
			toolStep(transcript.ToolCallRequest{
				ID:        "call_1",
				Name:      "echo",
				Arguments: map[string]interface{}{"bogus": true},
			}),
			textStep("recovered", driver.Usage{}),
		}}
		loop := newTestLoop(t, d, echoRegistry(t), testOptions())

		result, err := loop.Run(context.Background(), "", "try it")
		require.NoError(t, err)

		messages := result.Session.Log.Snapshot()
		assert.True(t, messages[2].IsError)
		assert.Contains(t, messages[2].Content, "echo")
	})
}

func TestRunIterationCap(t *testing.T) {
	call := transcript.ToolCallRequest{ID: "call_1", Name: "echo",
		Arguments: map[string]interface{}{"text": "again"}}
	d := &scriptedDriver{steps: []scriptedStep{
		toolStep(call), toolStep(call), toolStep(call),
	}}
	opts := testOptions()
	opts.MaxIterations = 2
	loop := newTestLoop(t, d, echoRegistry(t), opts)

	result, err := loop.Run(context.Background(), "", "loop forever")
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Empty(t, result.Text)
	assert.Equal(t, StatusMaxIterationsExceeded, result.Session.Status)
	assert.Equal(t, 2, result.Session.Iterations)
	assert.Equal(t, 2, d.calls())
}

func TestRunRetriesTransientFailures(t *testing.T) {
	throttled := scriptedStep{err: &driver.RateLimitError{
		Provider:   "scripted",
		RetryAfter: time.Millisecond,
		Err:        errors.New("429"),
	}}

	t.Run("should succeed when failures stay within the limit", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{
			throttled, throttled, throttled,
			textStep("finally", driver.Usage{}),
		}}
		opts := testOptions()
		opts.RetryLimit = 5
		loop := newTestLoop(t, d, nil, opts)

		result, err := loop.Run(context.Background(), "", "hello")
		require.NoError(t, err)
		assert.Equal(t, "finally", result.Text)
		assert.Equal(t, 4, d.calls())
	})

	t.Run("should fail when failures exceed the limit", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{throttled, throttled, throttled}}
		opts := testOptions()
		opts.RetryLimit = 2
		loop := newTestLoop(t, d, nil, opts)

		result, err := loop.Run(context.Background(), "", "hello")
		require.Error(t, err)
		assert.ErrorContains(t, err, "retry limit (2) exhausted")
		assert.Equal(t, StatusFailed, result.Session.Status)
		assert.Equal(t, 3, d.calls())
	})
}

func TestRunFailsFastOnAuthErrors(t *testing.T) {
	d := &scriptedDriver{steps: []scriptedStep{
		{err: &driver.AuthError{Provider: "scripted", Err: errors.New("401")}},
	}}
	loop := newTestLoop(t, d, nil, testOptions())

	result, err := loop.Run(context.Background(), "", "hello")
	require.Error(t, err)
	assert.True(t, driver.IsAuth(err))
	assert.Equal(t, StatusFailed, result.Session.Status)
	assert.Equal(t, 1, d.calls())
}

func TestRunCorrectiveRetry(t *testing.T) {
	malformed := scriptedStep{err: &driver.MalformedCompletionError{
		Provider: "scripted", Reason: "bad tool JSON",
	}}

	t.Run("should retry once with a corrective message", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{
			malformed,
			textStep("fixed", driver.Usage{}),
		}}
		loop := newTestLoop(t, d, nil, testOptions())

		result, err := loop.Run(context.Background(), "", "hello")
		require.NoError(t, err)
		assert.Equal(t, "fixed", result.Text)
		assert.Equal(t, 2, d.calls())
		assert.Contains(t, d.request(1).System, "could not be parsed")
	})

	t.Run("should treat an empty completion as malformed", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{
			{completion: &driver.Completion{}},
			textStep("fixed", driver.Usage{}),
		}}
		loop := newTestLoop(t, d, nil, testOptions())

		result, err := loop.Run(context.Background(), "", "hello")
		require.NoError(t, err)
		assert.Equal(t, "fixed", result.Text)
		assert.Equal(t, 2, d.calls())
	})

	t.Run("should fail after a second malformed completion", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{malformed, malformed}}
		loop := newTestLoop(t, d, nil, testOptions())

		result, err := loop.Run(context.Background(), "", "hello")
		require.Error(t, err)
		assert.True(t, driver.IsMalformed(err))
		assert.Equal(t, StatusFailed, result.Session.Status)
		assert.Equal(t, 2, d.calls())
	})
}

func TestRunCancellation(t *testing.T) {
	t.Run("should fail before the first completion on a dead context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		d := &scriptedDriver{steps: []scriptedStep{textStep("never", driver.Usage{})}}
		loop := newTestLoop(t, d, nil, testOptions())

		result, err := loop.Run(ctx, "", "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusFailed, result.Session.Status)
		assert.Equal(t, 0, d.calls())
	})

	t.Run("should stop after in-flight tool calls settle", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		registry := toolkit.NewRegistry()
		require.NoError(t, registry.Register(toolkit.Definition{
			Name:        "trip",
			Description: "Cancels the run from inside a tool",
			Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
				cancel()
				return "tripped", nil
			},
		}))
		d := &scriptedDriver{steps: []scriptedStep{
			toolStep(transcript.ToolCallRequest{ID: "call_1", Name: "trip", Arguments: map[string]interface{}{}}),
			textStep("never", driver.Usage{}),
		}}
		loop := newTestLoop(t, d, registry, testOptions())

		result, err := loop.Run(ctx, "", "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusFailed, result.Session.Status)
		assert.Equal(t, 1, d.calls())

		// The tool result still made it into the transcript.
		messages := result.Session.Log.Snapshot()
		require.Len(t, messages, 3)
		assert.Equal(t, transcript.RoleTool, messages[2].Role)
	})
}

func TestRunTruncatesToBudget(t *testing.T) {
	t.Run("should fail when the budget cannot be satisfied", func(t *testing.T) {
		d := &scriptedDriver{steps: []scriptedStep{textStep("never", driver.Usage{})}}
		registry := toolkit.NewRegistry()
		opts := testOptions()
		opts.TokenBudget = 10
		loop, err := New(Config{
			Driver:    d,
			Registry:  registry,
			Logger:    zerolog.Nop(),
			Estimator: fixedCostEstimator{cost: 20},
			Options:   opts,
		})
		require.NoError(t, err)

		result, err := loop.Run(context.Background(), "", "hello")
		require.Error(t, err)

		var unsatisfiable *transcript.BudgetUnsatisfiableError
		assert.ErrorAs(t, err, &unsatisfiable)
		assert.Equal(t, StatusFailed, result.Session.Status)
		assert.Equal(t, 0, d.calls())
	})
}

func TestRunIsDeterministic(t *testing.T) {
	script := func() []scriptedStep {
		return []scriptedStep{
			toolStep(transcript.ToolCallRequest{
				ID: "call_1", Name: "echo",
				Arguments: map[string]interface{}{"text": "stable"},
			}),
			textStep("answer", driver.Usage{InputTokens: 3, OutputTokens: 2}),
		}
	}

	run := func() Result {
		d := &scriptedDriver{steps: script()}
		loop := newTestLoop(t, d, echoRegistry(t), testOptions())
		result, err := loop.Run(context.Background(), "sys", "stable input")
		require.NoError(t, err)
		return result
	}

	first := run()
	second := run()

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Usage, second.Usage)
	assert.Equal(t, first.Session.Log.Snapshot(), second.Session.Log.Snapshot())
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
}

type fixedCostEstimator struct {
	cost int
}

func (e fixedCostEstimator) EstimateTokens(transcript.Message) int { return e.cost }
