package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"gopkg.in/yaml.v3"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Loader reads configuration and cycle input files. Every format is turned
// into a JSON document, checked against a CUE schema and then decoded.
//
// Supported formats by extension: .cue, .yaml/.yml, .json and .star.
type Loader struct {
	schemas  *SchemaRegistry
	starlark *StarlarkEvaluator
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{
		schemas:  NewSchemaRegistry(),
		starlark: NewStarlarkEvaluator(10 * time.Second),
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads a config file. Fields it leaves out keep DefaultConfig values.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := l.LoadBytes(ctx, path, data)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.Dir = filepath.Dir(abs)
	} else {
		cfg.Dir = filepath.Dir(path)
	}
	return cfg, nil
}

// LoadBytes parses config content; name's extension selects the format.
func (l *Loader) LoadBytes(ctx context.Context, name string, data []byte) (*Config, error) {
	doc, err := l.document(ctx, "config", name, data)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(doc, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadInputs reads the collaborator inputs for one cycle.
func (l *Loader) LoadInputs(ctx context.Context, path string) (*engine.Inputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs %s: %w", path, err)
	}
	return l.LoadInputsBytes(ctx, path, data)
}

// LoadInputsBytes parses inputs content; name's extension selects the format.
func (l *Loader) LoadInputsBytes(ctx context.Context, name string, data []byte) (*engine.Inputs, error) {
	doc, err := l.document(ctx, "inputs", name, data)
	if err != nil {
		return nil, err
	}

	var inputs engine.Inputs
	if err := json.Unmarshal(doc, &inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs %s: %w", name, err)
	}
	return &inputs, nil
}

// document converts content to JSON and validates it against schema.
func (l *Loader) document(ctx context.Context, schema, name string, data []byte) ([]byte, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".cue":
		return l.cueDocument(schema, name, data)
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML %s: %w", name, err)
		}
		return l.jsonDocument(schema, name, doc)
	case ".json":
		var doc map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON %s: %w", name, err)
		}
		return l.jsonDocument(schema, name, doc)
	case ".star":
		result, err := l.starlark.Evaluate(ctx, filepath.Base(name), string(data), nil)
		if err != nil {
			return nil, err
		}
		return l.jsonDocument(schema, name, result.Output)
	default:
		return nil, fmt.Errorf("unsupported file type %q for %s", ext, name)
	}
}

func (l *Loader) cueDocument(schema, name string, data []byte) ([]byte, error) {
	val := l.schemas.Context().CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	if err := l.schemas.Validate(schema, val); err != nil {
		return nil, err
	}
	doc, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", name, err)
	}
	return doc, nil
}

func (l *Loader) jsonDocument(schema, name string, doc map[string]interface{}) ([]byte, error) {
	if doc == nil {
		doc = map[string]interface{}{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := l.schemas.ValidateJSON(schema, name, data); err != nil {
		return nil, err
	}
	return data, nil
}
