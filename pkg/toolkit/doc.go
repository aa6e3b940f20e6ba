// Package toolkit maps tool names to argument schemas and handlers and
// executes individual invocations under a timeout.
//
// Invariants:
// - Registration happens once at startup; definitions are immutable
//   during a run.
// - Handler failures, panics, timeouts, and argument validation errors
//   become error Results. They never propagate out of Invoke.
package toolkit
