package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrConfigSchema is returned when a config file does not match the schema.
var ErrConfigSchema = errors.New("config file does not match schema")

//go:embed schema.json
var schemaJSON []byte

// validateFile checks a YAML config file against the embedded schema.
// Files in other formats are left to viper.
func validateFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return ValidateYAML(raw)
}

// ValidateYAML checks raw YAML config against the embedded schema.
// An empty document is valid.
func ValidateYAML(raw []byte) error {
	var doc any

	err := yaml.Unmarshal(raw, &doc)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate config file: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrConfigSchema, strings.Join(problems, "; "))
}
