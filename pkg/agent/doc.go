// Package agent drives the model-completion / tool-dispatch loop for a
// single session.
//
// Invariants:
// - A Session is owned by exactly one Run invocation; nothing else
//   touches its log while the loop is running.
// - Tool results are appended in request order regardless of execution
//   completion order, so replaying the same completions and tool
//   outputs yields an identical transcript.
// - Tool failures are data fed back to the model; only driver auth
//   failures, retry exhaustion, budget exhaustion, and cancellation
//   terminate a run with an error.
//
// Usage:
//
//	loop, _ := agent.New(agent.Config{Driver: d, Registry: reg, Logger: logger})
//	result, err := loop.Run(ctx, systemPrompt, "hello")
package agent
