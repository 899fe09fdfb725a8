package parser

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/raphaelgruber/biocurator-go/internal/platform"
)

// LoadToolsFile reads an assistant toolset from a JSON file on disk.
func LoadToolsFile(path string) ([]platform.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read functions file: %w", err)
	}
	tools, err := LoadTools(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tools, nil
}

// LoadTools parses a JSON array of tool declarations. Function tools must name
// their function.
func LoadTools(data []byte) ([]platform.Tool, error) {
	var tools []platform.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("invalid tool list: %w", err)
	}
	for i, t := range tools {
		switch {
		case t.Type == "":
			return nil, fmt.Errorf("tool %d: missing type", i)
		case t.Type == platform.ToolTypeFunction && (t.Function == nil || t.Function.Name == ""):
			return nil, fmt.Errorf("tool %d: function tool without a name", i)
		}
	}
	return tools, nil
}
