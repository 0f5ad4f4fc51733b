// Package extract turns a model's free-text answer into a fixed set of named fields.
//
// The model is asked for a JSON-looking listing, but nothing guarantees it; parsing
// is line based so that partial, fenced or chatty answers still yield every field
// that appears as a "key: value" line.
package extract

import (
	"strings"
)

// Record is the structured form of one model answer.
type Record struct {
	// Known holds every schema field, in schema order, nil when not found.
	Known *Fields
	// Extra holds fields reported by the model that are not in the schema.
	Extra *Fields
}

// Structure parses rawText against schema. It never fails: lines that are not
// "key: value" pairs are skipped.
func Structure(rawText string, schema Schema) Record {
	rec := Record{Known: NewFields(), Extra: NewFields()}
	for _, name := range schema.names {
		rec.Known.Set(name, nil)
	}

	for _, line := range strings.Split(rawText, "\n") {
		key, value, ok := splitLine(line)
		if !ok {
			continue
		}
		if schema.Contains(key) {
			rec.Known.Set(key, value)
		} else {
			rec.Extra.Set(key, value)
		}
	}
	return rec
}

// splitLine cuts a line at its first colon and cleans both halves.
func splitLine(line string) (string, Value, bool) {
	k, v, found := strings.Cut(line, ":")
	if !found {
		return "", nil, false
	}
	key := strings.TrimSpace(unquote(strings.TrimSpace(k)))
	if key == "" {
		return "", nil, false
	}
	return key, Normalize(v), true
}

// Normalize cleans a raw value: surrounding space, one trailing comma and
// surrounding quotes go away; "null" (any case) and empty become nil.
func Normalize(raw string) Value {
	v := strings.TrimSpace(raw)
	v = strings.TrimSpace(strings.TrimSuffix(v, ","))
	v = strings.TrimSpace(unquote(v))
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

// unquote removes one layer of matching double or single quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
