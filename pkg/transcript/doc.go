// Package transcript holds the ordered, append-only record of a
// single conversation.
//
// Invariants:
// - Appended messages are never mutated or reordered.
// - TruncateToBudget is the only operation that removes messages, and
//   it never removes system messages or the trailing exchange.
// - A Log is owned by exactly one agent loop; it is not safe for
//   concurrent use.
package transcript
