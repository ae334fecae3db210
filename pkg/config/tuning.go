package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GenerationParams are the sampling knobs for one class of engine call.
type GenerationParams struct {
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// TuningProfile groups generation parameters per call class. Derivation
// covers summaries, briefings, dispute points and fact extraction; Analysis
// covers participant profiling; Sanitize and Judgment are the two record
// assessment phases.
type TuningProfile struct {
	Name       string           `yaml:"name" json:"name"`
	Derivation GenerationParams `yaml:"derivation" json:"derivation"`
	Analysis   GenerationParams `yaml:"analysis" json:"analysis"`
	Sanitize   GenerationParams `yaml:"sanitize" json:"sanitize"`
	Judgment   GenerationParams `yaml:"judgment" json:"judgment"`
}

// DefaultTuning returns the built-in profile. Derivations run warm so
// summaries read naturally; record assessment runs cool with a larger
// output budget.
func DefaultTuning() *TuningProfile {
	return &TuningProfile{
		Name:       "default",
		Derivation: GenerationParams{Temperature: 0.7, MaxTokens: 2000},
		Analysis:   GenerationParams{Temperature: 0.3, MaxTokens: 2000},
		Sanitize:   GenerationParams{Temperature: 0.3, MaxTokens: 6000},
		Judgment:   GenerationParams{Temperature: 0.4, MaxTokens: 6000},
	}
}

// LoadTuning loads tuning_<name>.yaml from dir. Fields left zero in the
// file keep their default values.
func LoadTuning(dir, name string) (*TuningProfile, error) {
	name = strings.ToLower(name)
	path := filepath.Join(dir, fmt.Sprintf("tuning_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tuning %q: %w", name, err)
	}

	profile := DefaultTuning()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse tuning %q: %w", name, err)
	}
	if profile.Name == "" || profile.Name == "default" {
		profile.Name = name
	}
	return profile, nil
}
