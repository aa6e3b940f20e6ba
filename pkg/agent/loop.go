package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kyleroche/deconstructor/internal/tracing"
	"github.com/kyleroche/deconstructor/pkg/driver"
	"github.com/kyleroche/deconstructor/pkg/toolkit"
	"github.com/kyleroche/deconstructor/pkg/transcript"
)

const tracerName = "deconstructor.agent"

// correctivePrompt is injected after a malformed completion before the
// single corrective retry.
const correctivePrompt = "Your previous response could not be parsed. " +
	"Reply again, making sure any tool calls carry well-formed JSON arguments."

// Config wires a Loop's collaborators.
type Config struct {
	Driver    driver.Driver
	Registry  *toolkit.Registry
	Logger    zerolog.Logger
	Estimator transcript.Estimator
	Options   Options
}

// Loop drives alternating model-completion and tool-dispatch turns for
// one session at a time. A single Loop may run many sessions, but each
// Run owns its Session exclusively.
type Loop struct {
	driver    driver.Driver
	registry  *toolkit.Registry
	logger    zerolog.Logger
	estimator transcript.Estimator
	opts      Options
}

// Result is the outcome of one run. Converged is false when the loop
// hit its iteration cap; the full transcript is still available through
// Session.
type Result struct {
	Text      string
	Session   *Session
	Converged bool
	Usage     driver.Usage
}

// New creates a loop from the given configuration.
func New(cfg Config) (*Loop, error) {
	if cfg.Driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	opts := cfg.Options
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	estimator := cfg.Estimator
	if estimator == nil {
		estimator = transcript.HeuristicEstimator{}
	}

	return &Loop{
		driver:    cfg.Driver,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		estimator: estimator,
		opts:      opts,
	}, nil
}

// Run executes the loop until the model produces a final text answer,
// the iteration cap is reached, or a fatal error occurs.
func (l *Loop) Run(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sess := NewSession()
	ctx = tracing.WithSessionID(ctx, sess.ID)
	ctx = tracing.WithRunID(ctx, tracing.NewRunID())
	ctx, span := tracing.StartSpan(ctx, tracerName, "loop.run",
		attribute.String("session_id", sess.ID),
		attribute.String("provider", l.driver.Name()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, l.logger)

	if systemPrompt != "" {
		sess.Log.Append(transcript.Message{Role: transcript.RoleSystem, Content: systemPrompt})
	}
	sess.Log.Append(transcript.Message{Role: transcript.RoleUser, Content: userPrompt})

	var usage driver.Usage

	for {
		if err := ctx.Err(); err != nil {
			return l.fail(span, sess, usage, fmt.Errorf("run cancelled at iteration %d: %w", sess.Iterations, err))
		}

		iterCtx, iterSpan := tracing.StartSpan(ctx, tracerName, "loop.iteration",
			attribute.Int("iteration", sess.Iterations),
		)

		if err := sess.Log.TruncateToBudget(l.opts.TokenBudget, l.estimator); err != nil {
			closeSpanError(iterSpan, err)
			return l.fail(span, sess, usage, fmt.Errorf("message log at iteration %d: %w", sess.Iterations, err))
		}

		completion, err := l.complete(iterCtx, sess)
		if err != nil {
			closeSpanError(iterSpan, err)
			return l.fail(span, sess, usage, fmt.Errorf("driver at iteration %d: %w", sess.Iterations, err))
		}
		usage.InputTokens += completion.Usage.InputTokens
		usage.OutputTokens += completion.Usage.OutputTokens

		if len(completion.ToolCalls) == 0 {
			sess.Log.Append(transcript.Message{Role: transcript.RoleAssistant, Content: completion.Text})
			sess.Status = StatusCompleted
			iterSpan.End()
			logger.Info().
				Int("iterations", sess.Iterations+1).
				Int("messages", sess.Log.Len()).
				Msg("Session completed")
			return Result{Text: completion.Text, Session: sess, Converged: true, Usage: usage}, nil
		}

		sess.Log.Append(transcript.Message{
			Role:      transcript.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		for _, result := range l.dispatch(iterCtx, completion.ToolCalls) {
			sess.Log.Append(transcript.Message{
				Role:       transcript.RoleTool,
				Content:    result.Output,
				ToolCallID: result.ToolCallID,
				IsError:    result.IsError,
			})
		}

		if err := ctx.Err(); err != nil {
			closeSpanError(iterSpan, err)
			return l.fail(span, sess, usage, fmt.Errorf("run cancelled at iteration %d: %w", sess.Iterations, err))
		}

		sess.Iterations++
		iterSpan.End()

		if sess.Iterations >= l.opts.MaxIterations {
			sess.Status = StatusMaxIterationsExceeded
			logger.Warn().
				Int("iterations", sess.Iterations).
				Msg("Session did not converge within iteration limit")
			return Result{Session: sess, Converged: false, Usage: usage}, nil
		}
	}
}

// fail marks the session terminated and records the error on the run
// span so cancellation and fatal errors never leave spans open.
func (l *Loop) fail(span trace.Span, sess *Session, usage driver.Usage, err error) (Result, error) {
	sess.Status = StatusFailed
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return Result{Session: sess, Usage: usage}, err
}

// closeSpanError records an error on a span and ends it.
func closeSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// toolSchemas renders the registry for the driver.
func (l *Loop) toolSchemas() []driver.ToolSchema {
	defs := l.registry.Definitions()
	if len(defs) == 0 {
		return nil
	}
	schemas := make([]driver.ToolSchema, 0, len(defs))
	for _, def := range defs {
		schemas = append(schemas, driver.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}
	return schemas
}

// systemPromptFrom joins every system message in the log; drivers carry
// the system turn out-of-band.
func systemPromptFrom(messages []transcript.Message) string {
	parts := []string{}
	for _, msg := range messages {
		if msg.Role == transcript.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
