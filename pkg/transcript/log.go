package transcript

import "fmt"

// BudgetUnsatisfiableError reports that the messages which must be kept
// (system prompt plus the most recent exchange) already exceed the
// token budget. The caller must treat this as fatal for the run.
type BudgetUnsatisfiableError struct {
	Budget int
	Needed int
}

func (e *BudgetUnsatisfiableError) Error() string {
	return fmt.Sprintf("token budget unsatisfiable: mandatory messages need %d tokens, budget is %d", e.Needed, e.Budget)
}

// Estimator reports the approximate token cost of a message.
type Estimator interface {
	EstimateTokens(msg Message) int
}

// Log is the append-only message record for one session.
type Log struct {
	messages []Message
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a message to the end of the log.
func (l *Log) Append(msg Message) {
	l.messages = append(l.messages, msg.clone())
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	return len(l.messages)
}

// Snapshot returns a copy of the full ordered message sequence.
func (l *Log) Snapshot() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Last returns the most recent message, or false when the log is empty.
func (l *Log) Last() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// TruncateToBudget drops the oldest droppable messages until the
// estimated token total fits maxTokens. System messages and the
// trailing exchange (the last assistant message and everything after
// it, or just the last message when no assistant turn exists) are never
// dropped. Returns BudgetUnsatisfiableError when the protected messages
// alone exceed the budget.
func (l *Log) TruncateToBudget(maxTokens int, est Estimator) error {
	if maxTokens <= 0 || len(l.messages) == 0 {
		return nil
	}

	costs := make([]int, len(l.messages))
	total := 0
	for i, msg := range l.messages {
		costs[i] = est.EstimateTokens(msg)
		total += costs[i]
	}
	if total <= maxTokens {
		return nil
	}

	protected := l.protectedIndices()
	mandatory := 0
	for i := range l.messages {
		if protected[i] {
			mandatory += costs[i]
		}
	}
	if mandatory > maxTokens {
		return &BudgetUnsatisfiableError{Budget: maxTokens, Needed: mandatory}
	}

	keep := make([]bool, len(l.messages))
	for i := range keep {
		keep[i] = true
	}
	for i := range l.messages {
		if total <= maxTokens {
			break
		}
		if protected[i] || !keep[i] {
			continue
		}
		keep[i] = false
		total -= costs[i]

		// An assistant turn with tool calls and its tool results form
		// one unit: a surviving tool message with no originating
		// assistant turn would break the log's pairing invariant.
		if l.messages[i].Role == RoleAssistant && len(l.messages[i].ToolCalls) > 0 {
			for j := i + 1; j < len(l.messages) && l.messages[j].Role == RoleTool; j++ {
				if keep[j] && !protected[j] {
					keep[j] = false
					total -= costs[j]
				}
			}
		}
	}

	kept := l.messages[:0]
	for i, msg := range l.messages {
		if keep[i] {
			kept = append(kept, msg)
		}
	}
	l.messages = kept
	return nil
}

// protectedIndices marks messages that truncation must never remove.
func (l *Log) protectedIndices() []bool {
	protected := make([]bool, len(l.messages))

	tail := -1
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == RoleAssistant {
			tail = i
			break
		}
	}
	if tail == -1 {
		tail = len(l.messages) - 1
	}

	for i := range l.messages {
		if l.messages[i].Role == RoleSystem || i >= tail {
			protected[i] = true
		}
	}
	return protected
}
