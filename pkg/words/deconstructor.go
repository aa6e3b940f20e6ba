package words

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kyleroche/deconstructor/pkg/agent"
	"github.com/kyleroche/deconstructor/pkg/rules"
)

// Runner abstracts the agent loop so tests can script sessions.
type Runner interface {
	Run(ctx context.Context, systemPrompt, userPrompt string) (agent.Result, error)
}

// Deconstructor turns words into validated WordOutput structures. Each
// attempt runs a fresh agent session; sessions are never shared.
type Deconstructor struct {
	runner      Runner
	ruleset     *rules.Ruleset
	maxAttempts int
	logger      zerolog.Logger
}

// DeconstructorConfig wires a Deconstructor.
type DeconstructorConfig struct {
	Runner      Runner
	Ruleset     *rules.Ruleset
	MaxAttempts int
	Logger      zerolog.Logger
}

// NewDeconstructor creates a Deconstructor.
func NewDeconstructor(cfg DeconstructorConfig) (*Deconstructor, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	ruleset := cfg.Ruleset
	if ruleset == nil {
		ruleset = rules.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Deconstructor{
		runner:      cfg.Runner,
		ruleset:     ruleset,
		maxAttempts: maxAttempts,
		logger:      cfg.Logger,
	}, nil
}

// Deconstruct analyzes a single word, retrying with feedback when the
// model's answer fails schema or DAG validation. Loop-level failures
// (auth, retry exhaustion, cancellation) abort immediately.
func (d *Deconstructor) Deconstruct(ctx context.Context, word string) (*WordOutput, error) {
	if word == "" {
		return nil, fmt.Errorf("word cannot be empty")
	}

	systemPrompt := SystemPrompt(d.ruleset)
	var attempts []Attempt

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result, err := d.runner.Run(ctx, systemPrompt, PromptFor(word, attempts))
		if err != nil {
			return nil, fmt.Errorf("agent run failed on attempt %d: %w", attempt, err)
		}
		if !result.Converged {
			return nil, fmt.Errorf("agent did not converge on attempt %d for %q", attempt, word)
		}

		output, err := ParseOutput(result.Text)
		if err == nil {
			d.logger.Info().
				Str("word", word).
				Int("attempt", attempt).
				Int("parts", len(output.Parts)).
				Msg("Word deconstructed")
			return output, nil
		}

		d.logger.Warn().
			Str("word", word).
			Int("attempt", attempt).
			Err(err).
			Msg("Deconstruction attempt rejected")

		attempts = append(attempts, Attempt{
			Output: result.Text,
			Error:  err.Error(),
		})
	}

	return nil, fmt.Errorf("no valid deconstruction for %q after %d attempts", word, d.maxAttempts)
}
