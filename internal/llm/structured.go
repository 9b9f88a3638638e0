package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema used both to constrain model output and
// to validate it afterwards.
type Schema struct {
	name     string
	doc      map[string]any
	compiled *jsonschema.Schema
}

// CompileSchema compiles doc under the given resource name.
func CompileSchema(name string, doc map[string]any) (*Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	loc := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, parsed); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, doc: doc, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name string, doc map[string]any) *Schema {
	s, err := CompileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Document returns the schema as sent to providers.
func (s *Schema) Document() map[string]any {
	return s.doc
}

// Validate checks an already-valid JSON text against the schema.
func (s *Schema) Validate(text string) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("%s: invalid JSON: %w", s.name, err)
	}
	if err := s.compiled.Validate(inst); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// Decode repairs raw model output, validates it and unmarshals it into
// target.
func (s *Schema) Decode(raw string, target any) (RepairStats, error) {
	repaired, stats, err := RepairJSON(raw)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", s.name, err)
	}
	if err := s.Validate(repaired); err != nil {
		return stats, err
	}
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return stats, fmt.Errorf("%s: %w", s.name, err)
	}
	return stats, nil
}
