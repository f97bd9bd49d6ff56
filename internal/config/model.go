// Package config loads the model configuration and the CLI service configuration.
//
// Model configuration never fails: every missing or malformed field falls back
// to a compiled-in default and the returned error only describes what was
// substituted.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/emodiary/internal/emotion"
)

// Compiled-in model defaults.
const (
	DefaultMaxLength  = 512
	DefaultNumLabels  = 6
	DefaultOutputName = "logits"
)

// Model directory file names.
const (
	ConfigFile       = "config.json"
	LabelMappingFile = "label_mapping.json"
	ModelFile        = "model.onnx"
)

// ErrConfigLoad marks a configuration problem that was recovered with defaults.
var ErrConfigLoad = errors.New("model configuration defaulted")

// DefaultInputNames returns the default [token ids, attention mask] input names.
func DefaultInputNames() []string {
	return []string{"input_ids", "attention_mask"}
}

// ModelConfig describes the tensor contract of the classification model.
type ModelConfig struct {
	MaxLength  int
	NumLabels  int
	InputNames []string // [token ids] or [token ids, attention mask]
	OutputName string
	Labels     emotion.IndexMap
}

// DefaultModelConfig returns the compiled-in configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		MaxLength:  DefaultMaxLength,
		NumLabels:  DefaultNumLabels,
		InputNames: DefaultInputNames(),
		OutputName: DefaultOutputName,
		Labels:     emotion.DefaultIndexMap(),
	}
}

// rawModelConfig keeps fields undecoded so each one can fall back on its own.
type rawModelConfig struct {
	MaxLength   json.RawMessage `json:"max_length"`
	NumLabels   json.RawMessage `json:"num_labels"`
	InputNames  json.RawMessage `json:"input_names"`
	OutputNames json.RawMessage `json:"output_names"`
}

// LoadModelConfig reads config.json and label_mapping.json.
//
// The returned config is always usable. A non-nil error wraps ErrConfigLoad
// and lists the fields that were defaulted.
func LoadModelConfig(configPath, labelMappingPath string) (ModelConfig, error) {
	var problems []error

	cfgData, err := os.ReadFile(configPath) //nolint:gosec // G304: Path comes from trusted caller
	if err != nil {
		problems = append(problems, fmt.Errorf("failed to read %s: %w", configPath, err))
		cfgData = nil
	}
	mappingData, err := os.ReadFile(labelMappingPath) //nolint:gosec // G304: Path comes from trusted caller
	if err != nil {
		problems = append(problems, fmt.Errorf("failed to read %s: %w", labelMappingPath, err))
		mappingData = nil
	}

	cfg, parseProblems := parseModelConfig(cfgData, mappingData)
	return cfg, wrapProblems(append(problems, parseProblems...))
}

// LoadModelDir reads the configuration files of a model directory.
func LoadModelDir(dir string) (ModelConfig, error) {
	return LoadModelConfig(filepath.Join(dir, ConfigFile), filepath.Join(dir, LabelMappingFile))
}

// ParseModelConfig decodes config.json and label_mapping.json contents.
// A nil document is treated as missing and defaults all of its fields.
func ParseModelConfig(cfgData, mappingData []byte) (ModelConfig, error) {
	cfg, problems := parseModelConfig(cfgData, mappingData)
	return cfg, wrapProblems(problems)
}

func parseModelConfig(cfgData, mappingData []byte) (ModelConfig, []error) {
	cfg := DefaultModelConfig()
	var problems []error

	var raw rawModelConfig
	if cfgData != nil {
		if err := json.Unmarshal(cfgData, &raw); err != nil {
			problems = append(problems, fmt.Errorf("failed to parse config: %w", err))
			raw = rawModelConfig{}
		}
	}

	if n, err := positiveInt(raw.MaxLength); err != nil {
		problems = append(problems, fmt.Errorf("max_length: %w", err))
	} else {
		cfg.MaxLength = n
	}

	if n, err := positiveInt(raw.NumLabels); err != nil {
		problems = append(problems, fmt.Errorf("num_labels: %w", err))
	} else {
		cfg.NumLabels = n
	}

	if names, err := stringList(raw.InputNames); err != nil {
		problems = append(problems, fmt.Errorf("input_names: %w", err))
	} else if len(names) < 1 || len(names) > 2 {
		problems = append(problems, fmt.Errorf("input_names: want 1 or 2 names, got %d", len(names)))
	} else {
		cfg.InputNames = names
	}

	if names, err := stringList(raw.OutputNames); err != nil {
		problems = append(problems, fmt.Errorf("output_names: %w", err))
	} else if len(names) == 0 {
		problems = append(problems, errors.New("output_names: empty list"))
	} else {
		cfg.OutputName = names[0]
	}

	labels, err := ParseLabelMapping(mappingData)
	if err != nil {
		problems = append(problems, err)
	}
	if len(labels) > 0 {
		cfg.Labels = labels
	}
	if !cfg.Labels.Covers(cfg.NumLabels) {
		problems = append(problems, fmt.Errorf("label mapping does not cover all %d model outputs", cfg.NumLabels))
	}

	return cfg, problems
}

// ParseLabelMapping decodes a {"0": "기쁨", ...} document.
//
// Invalid keys and unknown tags are skipped and reported. An empty result
// means the caller should use emotion.DefaultIndexMap.
func ParseLabelMapping(data []byte) (emotion.IndexMap, error) {
	if data == nil {
		return nil, errors.New("label mapping: missing")
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse label mapping: %w", err)
	}

	var problems []error
	labels := make(emotion.IndexMap, len(raw))
	for key, tag := range raw {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			problems = append(problems, fmt.Errorf("label mapping: invalid index %q", key))
			continue
		}
		label, ok := emotion.FromTag(tag)
		if !ok {
			problems = append(problems, fmt.Errorf("label mapping: unknown label %q at index %d", tag, index))
			continue
		}
		labels[index] = label
	}
	if len(labels) == 0 {
		problems = append(problems, errors.New("label mapping: empty, using default mapping"))
	}
	return labels, errors.Join(problems...)
}

func positiveInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func stringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing")
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("not a list of strings: %s", raw)
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty name at position %d", i)
		}
	}
	return names, nil
}

func wrapProblems(problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfigLoad, errors.Join(problems...))
}
