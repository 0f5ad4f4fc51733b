package extract

import (
	"bytes"
	"encoding/json"
)

// Value is an extracted field value. nil means the field is absent and is written as JSON null.
type Value = *string

// Str returns a Value holding s.
func Str(s string) Value { return &s }

// Fields is a string map that remembers insertion order.
// Setting an existing key replaces its value but keeps its original position.
type Fields struct {
	keys   []string
	values map[string]Value
}

func NewFields() *Fields {
	return &Fields{values: map[string]Value{}}
}

func (f *Fields) Set(key string, v Value) {
	if f.values == nil {
		f.values = map[string]Value{}
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = v
}

// Get returns the value for key and whether the key is present at all.
func (f *Fields) Get(key string) (Value, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[key]
	return v, ok
}

func (f *Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.keys...)
}

func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Map returns a plain copy, with absent values as nil.
func (f *Fields) Map() map[string]Value {
	out := make(map[string]Value, f.Len())
	if f == nil {
		return out
	}
	for _, k := range f.keys {
		out[k] = f.values[k]
	}
	return out
}

// Each calls fn for every entry in insertion order.
func (f *Fields) Each(fn func(key string, v Value)) {
	if f == nil {
		return
	}
	for _, k := range f.keys {
		fn(k, f.values[k])
	}
}

func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := f.writeMembers(&buf, true); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeMembers writes `"k":v` pairs without braces so several Fields can share one object.
func (f *Fields) writeMembers(buf *bytes.Buffer, first bool) error {
	var err error
	f.Each(func(k string, v Value) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		err = WriteMember(buf, k, v)
	})
	return err
}

// WriteMember appends one `"key":value` JSON member to buf.
func WriteMember(buf *bytes.Buffer, key string, v any) error {
	kb, err := json.Marshal(key)
	if err != nil {
		return err
	}
	vb, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
	return nil
}

// UnmarshalJSON reads a flat JSON object of string or null values, keeping document order.
func (f *Fields) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = Fields{values: map[string]Value{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		f.Set(key, v)
	}
	_, err := dec.Token()
	return err
}
