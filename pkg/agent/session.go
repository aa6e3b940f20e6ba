package agent

import (
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kyleroche/deconstructor/pkg/transcript"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning               Status = "running"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
	StatusMaxIterationsExceeded Status = "max_iterations_exceeded"
)

// Session is the mutable run-state for one agent execution. It is
// created at the start of a run and owned exclusively by that run.
type Session struct {
	ID         string
	Log        *transcript.Log
	Iterations int
	Status     Status
}

// NewSession creates a fresh session with an empty log.
func NewSession() *Session {
	id, err := gonanoid.New()
	if err != nil {
		id = "session"
	}
	return &Session{
		ID:     id,
		Log:    transcript.NewLog(),
		Status: StatusRunning,
	}
}
