// Package schema validates model output against JSON Schema documents.
//
// Model text is untrusted: the JSON object is extracted from the raw reply,
// declared defaults are filled in for absent optional fields, and every
// violation is reported as an *apperr.ValidationError. Nothing is truncated
// or coerced to make it fit.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pressroom/backend/internal/apperr"
)

const rootField = "(root)"

// Schema is a compiled JSON Schema plus the raw document used to resolve
// defaults.
type Schema struct {
	name     string
	compiled *gojsonschema.Schema
	doc      map[string]any
}

func Compile(name, doc string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", name, err)
	}

	return &Schema{name: name, compiled: compiled, doc: raw}, nil
}

func MustCompile(name, doc string) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Parse extracts a JSON object from raw, validates it and decodes it into T.
func Parse[T any](s *Schema, raw string) (T, error) {
	var out T

	data, err := s.Validate(raw)
	if err != nil {
		return out, err
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("failed to re-encode %s: %w", s.name, err)
	}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return out, apperr.NewValidationError(s.name, apperr.Violation{Field: rootField, Reason: err.Error()})
	}

	return out, nil
}

func (s *Schema) Validate(raw string) (map[string]any, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return nil, apperr.NewValidationError(s.name, apperr.Violation{Field: rootField, Reason: "no JSON object found in model output"})
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, apperr.NewValidationError(s.name, apperr.Violation{Field: rootField, Reason: "invalid JSON: " + err.Error()})
	}

	applyDefaults(s.doc, data)

	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, apperr.NewValidationError(s.name, apperr.Violation{Field: rootField, Reason: err.Error()})
	}
	if !result.Valid() {
		violations := make([]apperr.Violation, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			violations = append(violations, apperr.Violation{Field: re.Field(), Reason: re.Description()})
		}
		return nil, apperr.NewValidationError(s.name, violations...)
	}

	return data, nil
}

// ExtractJSON strips markdown code fences and returns the first {...}
// object in text that decodes as JSON. Braces in surrounding prose are
// skipped.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&obj); err == nil {
			return string(obj), true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func applyDefaults(schemaDoc map[string]any, data map[string]any) {
	props, _ := schemaDoc["properties"].(map[string]any)
	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]any)
		if !ok {
			continue
		}

		value, present := data[name]
		if !present {
			if def, ok := prop["default"]; ok {
				data[name] = cloneDefault(def)
			}
			continue
		}

		switch v := value.(type) {
		case map[string]any:
			applyDefaults(prop, v)
		case []any:
			items, ok := prop["items"].(map[string]any)
			if !ok {
				continue
			}
			for _, elem := range v {
				if obj, ok := elem.(map[string]any); ok {
					applyDefaults(items, obj)
				}
			}
		}
	}
}

func cloneDefault(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneDefault(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneDefault(e)
		}
		return out
	default:
		return v
	}
}
