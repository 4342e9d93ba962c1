package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pipeline file document header.
const (
	PipelinesAPIVersion = "duck-etl/v1"
	PipelinesKind       = "PipelineList"
)

// PipelineConfig is one configured pipeline instance.
type PipelineConfig struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"` // registered source implementation, e.g. "customers"
	Description string `yaml:"description,omitempty"`
	Schedule    string `yaml:"schedule,omitempty"` // cron expression; empty means manual only
	IsPaused    bool   `yaml:"is_paused,omitempty"`
	InputDir    string `yaml:"input_dir,omitempty"`
}

// PipelinesDoc is the YAML pipeline file.
type PipelinesDoc struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Pipelines  []PipelineConfig `yaml:"pipelines"`
}

// LoadPipelines reads and validates a pipeline file.
func LoadPipelines(path string) ([]PipelineConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	pipelines, err := ParsePipelines(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pipelines, nil
}

// ParsePipelines decodes a pipeline document. Unknown fields are rejected.
func ParsePipelines(data []byte) ([]PipelineConfig, error) {
	var doc PipelinesDoc
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if doc.APIVersion != PipelinesAPIVersion {
		return nil, fmt.Errorf("unsupported apiVersion %q (expected %q)", doc.APIVersion, PipelinesAPIVersion)
	}
	if doc.Kind != PipelinesKind {
		return nil, fmt.Errorf("unexpected kind %q (expected %q)", doc.Kind, PipelinesKind)
	}
	seen := make(map[string]bool, len(doc.Pipelines))
	for i, p := range doc.Pipelines {
		if p.Name == "" {
			return nil, fmt.Errorf("pipelines[%d]: name is required", i)
		}
		if p.Kind == "" {
			return nil, fmt.Errorf("pipeline %q: kind is required", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("pipeline %q declared twice", p.Name)
		}
		seen[p.Name] = true
	}
	return doc.Pipelines, nil
}
