// Package rules loads the ruleset that shapes the agent's system
// prompt. Rulesets live in a local YAML file and can be hot-reloaded
// while a process is running.
package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ruleset is a named list of behavioral rules appended to the system
// prompt.
type Ruleset struct {
	Name  string   `yaml:"name" json:"name"`
	Rules []string `yaml:"rules" json:"rules"`
}

// Render formats the ruleset as a system prompt block.
func (r *Ruleset) Render() string {
	if r == nil || len(r.Rules) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Ruleset: %s\n", r.Name)
	for _, rule := range r.Rules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Default returns the built-in etymology ruleset used when no file is
// configured or the configured file is missing.
func Default() *Ruleset {
	return &Ruleset{
		Name: "Etymology Ruleset",
		Rules: []string{
			"Analyze only the exact word you are given, never a related word.",
			"Break the word into its smallest meaningful etymological parts.",
			"Give each part its oldest known source word or affix and its origin language.",
			"Build combinations layer by layer until they form the complete word.",
			"Answer with a single JSON object and nothing else.",
		},
	}
}

// Load reads a ruleset from a YAML file. A missing file falls back to
// the default ruleset; a present but invalid file is an error.
func Load(path string) (*Ruleset, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read ruleset: %w", err)
	}

	var ruleset Ruleset
	if err := yaml.Unmarshal(data, &ruleset); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	if ruleset.Name == "" {
		return nil, fmt.Errorf("ruleset must have a name")
	}
	if len(ruleset.Rules) == 0 {
		return nil, fmt.Errorf("ruleset %q has no rules", ruleset.Name)
	}

	return &ruleset, nil
}
