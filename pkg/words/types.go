// Package words implements the etymology deconstruction flow: it asks
// the agent for a structured breakdown of a single word, validates the
// model's JSON answer, and retries with accumulated feedback until the
// answer is well-formed.
package words

import "strings"

// WordPart is one etymological component of the input word.
type WordPart struct {
	// ID is a lowercase identifier, unique across parts and combinations.
	ID string `json:"id"`
	// Text is the exact section of the input word.
	Text string `json:"text"`
	// OriginalWord is the oldest word or affix this part comes from.
	OriginalWord string `json:"originalWord"`
	// Origin names the source language (Latin, Greek, etc).
	Origin string `json:"origin"`
	// Meaning is the concise meaning of this part.
	Meaning string `json:"meaning"`
}

// Combination merges parts or earlier combinations into a larger unit.
type Combination struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Definition string   `json:"definition"`
	SourceIDs  []string `json:"sourceIds"`
}

// WordOutput is the structured answer for one deconstructed word. The
// combination layers form a DAG from the parts up to the final word.
type WordOutput struct {
	Thought      string          `json:"thought"`
	Parts        []WordPart      `json:"parts"`
	Combinations [][]Combination `json:"combinations"`
}

// FinalDefinition returns the definition of the completed word: the
// first combination in the last layer.
func (o *WordOutput) FinalDefinition() string {
	if len(o.Combinations) == 0 {
		return ""
	}
	last := o.Combinations[len(o.Combinations)-1]
	if len(last) == 0 {
		return ""
	}
	return last[0].Definition
}

// PartsSummary renders the parts as "text (meaning), …" for compact
// CLI output.
func (o *WordOutput) PartsSummary() string {
	parts := make([]string, 0, len(o.Parts))
	for _, part := range o.Parts {
		parts = append(parts, part.Text+" ("+part.Meaning+")")
	}
	return strings.Join(parts, ", ")
}
