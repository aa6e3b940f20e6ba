package agent

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kyleroche/deconstructor/internal/tracing"
	"github.com/kyleroche/deconstructor/pkg/driver"
	"github.com/kyleroche/deconstructor/pkg/transcript"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// complete calls the driver with the current log snapshot, retrying
// transient and rate-limit failures with backoff up to the retry limit.
// A malformed completion gets exactly one corrective retry: a system
// message is injected and the turn is resubmitted. Auth failures are
// surfaced immediately.
func (l *Loop) complete(ctx context.Context, sess *Session) (*driver.Completion, error) {
	logger := tracing.LoggerFromContext(ctx, l.logger)
	attempts := 0
	correctiveUsed := false

	for {
		snapshot := sess.Log.Snapshot()
		req := driver.Request{
			Model:       l.opts.Model,
			System:      systemPromptFrom(snapshot),
			Messages:    snapshot,
			Tools:       l.toolSchemas(),
			Temperature: l.opts.Temperature,
			MaxTokens:   l.opts.MaxCompletionTokens,
		}

		callCtx, span := tracing.StartSpan(ctx, tracerName, "driver.complete",
			attribute.String("provider", l.driver.Name()),
			attribute.Int("attempt", attempts),
		)
		completion, err := l.driver.Complete(callCtx, req)
		if err == nil && completion.Text == "" && len(completion.ToolCalls) == 0 {
			err = &driver.MalformedCompletionError{Provider: l.driver.Name(), Reason: "empty completion"}
		}
		if err != nil {
			closeSpanError(span, err)
		} else {
			span.End()
			return completion, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if driver.IsMalformed(err) {
			if correctiveUsed {
				return nil, err
			}
			correctiveUsed = true
			logger.Warn().Err(err).Msg("Malformed completion, injecting corrective message")
			sess.Log.Append(transcript.Message{
				Role:    transcript.RoleSystem,
				Content: correctivePrompt,
			})
			continue
		}

		if !driver.Retryable(err) {
			return nil, err
		}

		attempts++
		if attempts > l.opts.RetryLimit {
			return nil, fmt.Errorf("retry limit (%d) exhausted: %w", l.opts.RetryLimit, err)
		}

		delay := backoffDelay(attempts, driver.RetryAfterHint(err))
		logger.Info().
			Int("attempt", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying driver call after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes the exponential backoff with jitter for the
// given attempt, preferring a provider-supplied hint when present.
func backoffDelay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}

	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}

	// Jitter in [0.75, 1.25) of the nominal delay.
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(delay) * jitter)
}
