// Package structured handles answers requested in strict JSON mode. The answer is
// validated against a schema built from the field list, then turned into the
// same record extract.Structure yields for line answers.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"invoice-extractor/api/internal/extract"
)

var ErrNotJSON = errors.New("response is not a JSON object")

// BuildSchema returns a JSON Schema for an object carrying every field as string or null.
// Unknown properties are allowed so extra invoice fields survive.
func BuildSchema(schema extract.Schema) json.RawMessage {
	props := make(map[string]any, schema.Len())
	for _, n := range schema.Names() {
		props[n] = map[string]any{"type": []string{"string", "number", "null"}}
	}
	doc := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
	b, _ := json.Marshal(doc)
	return b
}

// Validator checks answers against a compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator(schemaJSON json.RawMessage) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load structured schema: %w", err)
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile structured schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate parses text (code fences allowed) and validates it.
func (v *Validator) Validate(text string) error {
	obj, err := decodeObject(text)
	if err != nil {
		return err
	}
	if err := v.schema.Validate(obj); err != nil {
		return fmt.Errorf("structured output failed validation: %w", err)
	}
	return nil
}

// Structure builds the record straight from a JSON object answer, so keys and
// values keep every character. Strings are trimmed, null and empty strings
// become nil, other values become compact JSON text.
func Structure(text string, schema extract.Schema) (extract.Record, error) {
	obj, err := decodeObject(text)
	if err != nil {
		return extract.Record{}, err
	}
	m := obj.(map[string]any)
	keys, err := memberOrder(StripCodeFences(text))
	if err != nil || len(keys) != len(m) {
		keys = keys[:0]
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	rec := extract.Record{Known: extract.NewFields(), Extra: extract.NewFields()}
	for _, name := range schema.Names() {
		rec.Known.Set(name, nil)
	}
	for _, k := range keys {
		key := strings.TrimSpace(strings.ReplaceAll(k, "\n", " "))
		if key == "" {
			continue
		}
		v := value(m[k])
		if schema.Contains(key) {
			rec.Known.Set(key, v)
		} else {
			rec.Extra.Set(key, v)
		}
	}
	return rec, nil
}

func value(raw any) extract.Value {
	var s string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		s = strings.TrimSpace(strings.ReplaceAll(val, "\n", " "))
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
	default:
		vb, _ := json.Marshal(val)
		s = string(vb)
	}
	return &s
}

func decodeObject(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(StripCodeFences(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, ErrNotJSON
	}
	return v, nil
}

// memberOrder lists the top-level keys of a JSON object in document order.
func memberOrder(text string) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		k, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// StripCodeFences removes a surrounding ```json ... ``` block.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
