package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Defaults for the optional curation keys.
const (
	DefaultFunctionsFile = "functions.json"
	DefaultAssistantName = "Biocurator"
	DefaultStateFile     = ".biocurator-state.yaml"
	DefaultPollInterval  = 5 * time.Second
)

// ErrInvalidCuration is returned when the curation file is incomplete.
var ErrInvalidCuration = errors.New("invalid curation config")

// Curation holds the [DEFAULT] section of the curation config file.
type Curation struct {
	Model                 string
	AssistantInstructions string
	PromptsFile           string
	OutputDir             string
	InputDir              string
	Timeout               time.Duration

	FunctionsFile string
	AssistantName string
	StateFile     string
	PollInterval  time.Duration
}

// LoadCuration parses an INI curation file. Multi-line values use indented
// continuation lines.
func LoadCuration(path string) (Curation, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		IgnoreInlineComment:        true,
		InsensitiveKeys:            true,
	}, path)
	if err != nil {
		return Curation{}, fmt.Errorf("load %s: %w", path, err)
	}

	sec := file.Section(ini.DefaultSection)
	c := Curation{
		Model:                 strings.TrimSpace(sec.Key("model").String()),
		AssistantInstructions: strings.TrimSpace(sec.Key("assistant_instructions").String()),
		PromptsFile:           strings.TrimSpace(sec.Key("prompts_yaml_file").String()),
		OutputDir:             strings.TrimSpace(sec.Key("output_dir").String()),
		InputDir:              strings.TrimSpace(sec.Key("input_dir").String()),
		FunctionsFile:         stringOr(sec, "functions_file", DefaultFunctionsFile),
		AssistantName:         stringOr(sec, "assistant_name", DefaultAssistantName),
		StateFile:             stringOr(sec, "state_file", DefaultStateFile),
		PollInterval:          DefaultPollInterval,
	}

	if sec.HasKey("timeout_seconds") {
		secs, err := sec.Key("timeout_seconds").Int()
		if err != nil {
			return Curation{}, fmt.Errorf("%w: timeout_seconds: %v", ErrInvalidCuration, err)
		}
		c.Timeout = time.Duration(secs) * time.Second
	}
	if sec.HasKey("poll_interval_seconds") {
		secs, err := sec.Key("poll_interval_seconds").Float64()
		if err != nil {
			return Curation{}, fmt.Errorf("%w: poll_interval_seconds: %v", ErrInvalidCuration, err)
		}
		c.PollInterval = time.Duration(secs * float64(time.Second))
	}

	return c, nil
}

// Validate checks that every key the batch needs is set.
func (c Curation) Validate() error {
	var missing []string
	for _, kv := range []struct {
		key, val string
	}{
		{"model", c.Model},
		{"assistant_instructions", c.AssistantInstructions},
		{"prompts_yaml_file", c.PromptsFile},
		{"output_dir", c.OutputDir},
		{"input_dir", c.InputDir},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCuration, strings.Join(missing, ", "))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout_seconds must be positive", ErrInvalidCuration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval_seconds must be positive", ErrInvalidCuration)
	}
	return nil
}

func stringOr(sec *ini.Section, key, def string) string {
	if v := strings.TrimSpace(sec.Key(key).String()); v != "" {
		return v
	}
	return def
}
