package words

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// outputSchema is the JSON Schema the model's final answer must satisfy.
const outputSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["thought", "parts", "combinations"],
  "properties": {
    "thought": {"type": "string", "minLength": 1},
    "parts": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["id", "text", "originalWord", "origin", "meaning"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "text": {"type": "string", "minLength": 1},
          "originalWord": {"type": "string"},
          "origin": {"type": "string"},
          "meaning": {"type": "string"}
        }
      }
    },
    "combinations": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "array",
        "minItems": 1,
        "items": {
          "type": "object",
          "additionalProperties": false,
          "required": ["id", "text", "definition", "sourceIds"],
          "properties": {
            "id": {"type": "string", "minLength": 1},
            "text": {"type": "string"},
            "definition": {"type": "string", "minLength": 1},
            "sourceIds": {"type": "array", "minItems": 1, "items": {"type": "string"}}
          }
        }
      }
    }
  }
}`

var compiledSchema = gojsonschema.NewStringLoader(outputSchema)

// ParseOutput extracts and validates a WordOutput from the model's
// final text. The text may wrap the JSON object in a fenced code block
// or surrounding prose.
func ParseOutput(text string) (*WordOutput, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object found in model output")
	}

	result, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}
	if !result.Valid() {
		findings := make([]string, 0, len(result.Errors()))
		for _, finding := range result.Errors() {
			findings = append(findings, finding.String())
		}
		return nil, fmt.Errorf("output schema violations: %s", strings.Join(findings, "; "))
	}

	var output WordOutput
	if err := json.Unmarshal([]byte(payload), &output); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}

	if err := output.Validate(); err != nil {
		return nil, err
	}
	return &output, nil
}

// Validate checks the structural invariants the schema cannot express:
// unique lowercase identifiers and a well-formed combination DAG where
// every source ID refers to a part or an earlier combination.
func (o *WordOutput) Validate() error {
	known := make(map[string]bool, len(o.Parts))

	for _, part := range o.Parts {
		if part.ID != strings.ToLower(part.ID) {
			return fmt.Errorf("part id %q must be lowercase", part.ID)
		}
		if known[part.ID] {
			return fmt.Errorf("duplicate id %q", part.ID)
		}
		known[part.ID] = true
	}

	for layer, combinations := range o.Combinations {
		// IDs become referenceable only from the next layer on, so a
		// combination cannot source itself or a sibling.
		introduced := make([]string, 0, len(combinations))
		for _, combo := range combinations {
			if combo.ID != strings.ToLower(combo.ID) {
				return fmt.Errorf("combination id %q must be lowercase", combo.ID)
			}
			if known[combo.ID] {
				return fmt.Errorf("duplicate id %q", combo.ID)
			}
			for _, sourceID := range combo.SourceIDs {
				if !known[sourceID] {
					return fmt.Errorf("combination %q (layer %d) references unknown source %q", combo.ID, layer, sourceID)
				}
			}
			introduced = append(introduced, combo.ID)
		}
		for _, id := range introduced {
			known[id] = true
		}
	}

	return nil
}

// extractJSON pulls the outermost JSON object out of free-form model
// text, handling fenced code blocks.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			text = rest[:end]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
