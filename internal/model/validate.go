package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dgallion1/docgloss/internal/doctree"
)

// Result holds the validated fields of a structured reply.
type Result map[string]any

// String returns a string field, "" if absent.
func (r Result) String(name string) string {
	s, _ := r[name].(string)
	return s
}

// Items returns an array field's object elements.
func (r Result) Items(name string) []map[string]any {
	arr, _ := r[name].([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// Validate checks raw against the declared fields. Every non-optional field
// must be present with its declared kind, recursively.
func Validate(provider string, fields []FieldSpec, raw map[string]any) (Result, error) {
	if raw == nil {
		return nil, &MalformedResponseError{Provider: provider, Reason: "no structured reply"}
	}
	if err := validateObject(provider, "", fields, raw); err != nil {
		return nil, err
	}
	return Result(raw), nil
}

func validateObject(provider, prefix string, fields []FieldSpec, obj map[string]any) error {
	for _, f := range fields {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Optional {
				continue
			}
			return &MalformedResponseError{Provider: provider, Field: path, Reason: "missing required field"}
		}
		if err := validateValue(provider, path, f, v); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(provider, path string, f FieldSpec, v any) error {
	wrongKind := &MalformedResponseError{
		Provider: provider,
		Field:    path,
		Reason:   fmt.Sprintf("expected %s, got %T", f.Kind, v),
	}
	switch f.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return wrongKind
		}
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int64, json.Number:
		default:
			return wrongKind
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return wrongKind
		}
	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return wrongKind
		}
		if f.Items == nil {
			return nil
		}
		for i, item := range arr {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				return &MalformedResponseError{Provider: provider, Field: itemPath, Reason: "null element"}
			}
			if err := validateValue(provider, itemPath, *f.Items, item); err != nil {
				return err
			}
		}
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return wrongKind
		}
		return validateObject(provider, path, f.Fields, obj)
	default:
		return &MalformedResponseError{Provider: provider, Field: path, Reason: fmt.Sprintf("undeclared kind %q", f.Kind)}
	}
	return nil
}

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
		`new\s+instructions)`,
)

const maxDefinitionLen = 500

// ParseTerms converts a validated terms reply into annotations. Items that
// cannot be matched or shown safely are dropped and counted.
func ParseTerms(res Result) (terms []doctree.TermAnnotation, dropped int) {
	seen := make(map[string]bool)
	for _, item := range res.Items("terms") {
		word, _ := item["word"].(string)
		def, _ := item["definition"].(string)
		ann := doctree.TermAnnotation{Term: strings.TrimSpace(word), Definition: strings.TrimSpace(def)}
		key := strings.ToLower(ann.Term)
		if !validTerm(ann) || seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		terms = append(terms, ann)
	}
	return terms, dropped
}

func validTerm(a doctree.TermAnnotation) bool {
	if a.Term == "" || a.Definition == "" {
		return false
	}
	// Overlay matching is per token.
	if strings.IndexFunc(a.Term, unicode.IsSpace) >= 0 {
		return false
	}
	if len(a.Definition) > maxDefinitionLen {
		return false
	}
	return !injectionPattern.MatchString(a.Definition)
}
