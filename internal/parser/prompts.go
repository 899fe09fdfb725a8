package parser

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/biocurator-go/internal/models"
)

// ErrNoPrompts is returned for a prompt file that defines nothing.
var ErrNoPrompts = errors.New("no prompts defined")

// LoadPromptsFile reads a prompt set from a YAML file on disk.
func LoadPromptsFile(path string) ([]models.Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	prompts, err := LoadPrompts(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return prompts, nil
}

// LoadPrompts parses a YAML mapping of prompt name to prompt text. Prompts are
// returned in file order.
func LoadPrompts(data []byte) ([]models.Prompt, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, ErrNoPrompts
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("prompts must be a mapping of name to text (line %d)", root.Line)
	}

	seen := make(map[string]bool, len(root.Content)/2)
	prompts := make([]models.Prompt, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("prompt %q must be text (line %d)", key.Value, val.Line)
		}
		if seen[key.Value] {
			return nil, fmt.Errorf("duplicate prompt %q (line %d)", key.Value, key.Line)
		}
		seen[key.Value] = true
		prompts = append(prompts, models.Prompt{Name: key.Value, Text: val.Value})
	}
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}
	return prompts, nil
}
