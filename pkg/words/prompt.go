package words

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kyleroche/deconstructor/pkg/rules"
)

// SystemPrompt combines the analyst role, the expected output schema,
// and the active ruleset.
func SystemPrompt(ruleset *rules.Ruleset) string {
	var b strings.Builder
	b.WriteString("You are an etymology analyst. You deconstruct words into their " +
		"historical components and respond with a single JSON object matching this schema:\n\n")
	b.WriteString(outputSchema)
	if rendered := ruleset.Render(); rendered != "" {
		b.WriteString("\n\n")
		b.WriteString(rendered)
	}
	return b.String()
}

// PromptFor builds the user prompt for one deconstruction attempt.
// Failed earlier attempts travel with the prompt so the model can fix
// its mistakes instead of repeating them.
func PromptFor(word string, previousAttempts []Attempt) string {
	prompt := fmt.Sprintf("Your task is to deconstruct this EXACT word: '%s'\n"+
		"Do not analyze any other word. Focus only on '%s'.\n"+
		"Break down '%s' into its etymological components.", word, word, word)

	if len(previousAttempts) == 0 {
		return prompt
	}

	serialized, err := json.MarshalIndent(previousAttempts, "", "  ")
	if err != nil {
		return prompt
	}
	return prompt + fmt.Sprintf("\n\nPrevious attempts:\n%s\n\nPlease fix all the issues and try again.", serialized)
}

// Attempt records one failed deconstruction for feedback to the model.
type Attempt struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}
