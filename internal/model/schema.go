package model

import (
	"google.golang.org/genai"
)

// Kind is the JSON kind of a declared field.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// FieldSpec declares one field of the structured reply.
type FieldSpec struct {
	Name        string
	Kind        Kind
	Description string
	Optional    bool
	Items       *FieldSpec  // element spec for arrays
	Fields      []FieldSpec // member specs for objects
}

// JSONSchema renders the top-level fields as a JSON Schema object.
func JSONSchema(fields []FieldSpec) map[string]any {
	return objectSchema(fields)
}

func objectSchema(fields []FieldSpec) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func fieldSchema(f FieldSpec) map[string]any {
	var s map[string]any
	switch f.Kind {
	case KindObject:
		s = objectSchema(f.Fields)
	case KindArray:
		s = map[string]any{"type": "array"}
		if f.Items != nil {
			s["items"] = fieldSchema(*f.Items)
		}
	default:
		s = map[string]any{"type": string(f.Kind)}
	}
	if f.Description != "" {
		s["description"] = f.Description
	}
	return s
}

// GenaiSchema renders the top-level fields as a Gemini function parameter schema.
func GenaiSchema(fields []FieldSpec) *genai.Schema {
	return genaiObject(fields)
}

func genaiObject(fields []FieldSpec) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
	}
	for _, f := range fields {
		s.Properties[f.Name] = genaiField(f)
		if !f.Optional {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func genaiField(f FieldSpec) *genai.Schema {
	var s *genai.Schema
	switch f.Kind {
	case KindObject:
		s = genaiObject(f.Fields)
	case KindArray:
		s = &genai.Schema{Type: genai.TypeArray}
		if f.Items != nil {
			s.Items = genaiField(*f.Items)
		}
	case KindNumber:
		s = &genai.Schema{Type: genai.TypeNumber}
	case KindBoolean:
		s = &genai.Schema{Type: genai.TypeBoolean}
	default:
		s = &genai.Schema{Type: genai.TypeString}
	}
	s.Description = f.Description
	return s
}
