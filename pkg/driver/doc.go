// Package driver abstracts model providers behind a uniform completion
// interface. Drivers are stateless across calls: every request carries
// the full conversation. Provider failures are normalized into a small
// error taxonomy so the agent loop can apply per-kind retry policy
// without knowing anything about transports.
package driver
