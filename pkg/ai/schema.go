package ai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Type enumerates the JSON types a Schema node may declare.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
)

// Schema is a provider-neutral description of the structured output a call
// expects. Adapters translate it into their native schema representation.
type Schema struct {
	Type        Type
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

// Document renders the schema as a JSON Schema document. Properties that are
// not required accept null as well, since providers emit explicit nulls.
func (s *Schema) Document() map[string]any {
	return s.document(false)
}

func (s *Schema) document(nullable bool) map[string]any {
	doc := map[string]any{}
	if nullable {
		doc["type"] = []string{string(s.Type), "null"}
	} else {
		doc["type"] = string(s.Type)
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		doc["enum"] = s.Enum
	}

	switch s.Type {
	case TypeObject:
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.document(!required[name])
		}
		doc["properties"] = props
		if len(s.Required) > 0 {
			doc["required"] = s.Required
		}
	case TypeArray:
		if s.Items != nil {
			doc["items"] = s.Items.document(false)
		}
	}

	return doc
}

// MarshalJSON renders the JSON Schema document.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// Compile builds a validator for the schema.
func (s *Schema) Compile(name string) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s.Document())
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}

	url := fmt.Sprintf("https://avinci.local/schemas/%s.json", name)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}

	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return compiled, nil
}
