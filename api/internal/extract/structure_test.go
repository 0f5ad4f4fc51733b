package extract

import (
	"encoding/json"
	"reflect"
	"testing"
)

func deref(v Value) any {
	if v == nil {
		return nil
	}
	return *v
}

func TestStructure_KnownKeysAlwaysPresent(t *testing.T) {
	schema := DefaultInvoiceSchema()
	texts := []string{
		"",
		"   \n\t ",
		"UHID: 1\nfoo: bar",
		"no colon here\nanother line",
		"```json\n{\n  \"UHID\": \"A1\",\n  \"Extra Thing\": \"x\"\n}\n```",
	}
	for _, text := range texts {
		rec := Structure(text, schema)
		if got := rec.Known.Keys(); !reflect.DeepEqual(got, schema.Names()) {
			t.Errorf("text %q: known keys = %v, want schema order", text, got)
		}
		for _, k := range rec.Extra.Keys() {
			if schema.Contains(k) {
				t.Errorf("text %q: extra field %q is a schema field", text, k)
			}
		}
	}
}

func TestStructure_EmptyText(t *testing.T) {
	rec := Structure("", DefaultInvoiceSchema())
	rec.Known.Each(func(k string, v Value) {
		if v != nil {
			t.Errorf("expected %q to be nil, got %q", k, *v)
		}
	})
	if rec.Extra.Len() != 0 {
		t.Errorf("expected no extra fields, got %v", rec.Extra.Keys())
	}
}

func TestStructure_Scenarios(t *testing.T) {
	schema := NewSchema("UHID", "Bill No", "Age", "Patient Name", "Date")

	tests := []struct {
		name      string
		text      string
		known     map[string]any
		extra     map[string]any
		noExtraOf []string
	}{
		{
			name:  "quoted value with trailing comma",
			text:  `UHID: "12345",`,
			known: map[string]any{"UHID": "12345"},
		},
		{
			name:  "unknown field goes to extras",
			text:  "Random Note: some text",
			extra: map[string]any{"Random Note": "some text"},
		},
		{
			name:  "null literal is absence",
			text:  "Bill No: null",
			known: map[string]any{"Bill No": nil},
		},
		{
			name:  "null is case-insensitive",
			text:  `"Bill No": "NULL",`,
			known: map[string]any{"Bill No": nil},
		},
		{
			name:  "empty value is absence",
			text:  "Age:   ",
			known: map[string]any{"Age": nil},
		},
		{
			name:  "last write wins for known",
			text:  "Age: 45\nsomething else\nAge: 46",
			known: map[string]any{"Age": "46"},
		},
		{
			name:  "last write wins for extras",
			text:  "Ward: A\nWard: B",
			extra: map[string]any{"Ward": "B"},
		},
		{
			name:  "only first colon splits",
			text:  "Date: 12:30:00",
			known: map[string]any{"Date": "12:30:00"},
		},
		{
			name:  "quoted key",
			text:  `  "Patient Name" :  'John Doe' `,
			known: map[string]any{"Patient Name": "John Doe"},
		},
		{
			name:  "single quoted key",
			text:  `'UHID': 'X-9'`,
			known: map[string]any{"UHID": "X-9"},
		},
		{
			name:      "wrong case is an extra",
			text:      "uhid: 77",
			known:     map[string]any{"UHID": nil},
			extra:     map[string]any{"uhid": "77"},
			noExtraOf: []string{"UHID"},
		},
		{
			name:  "key whitespace is trimmed",
			text:  "UHID  : 55",
			known: map[string]any{"UHID": "55"},
		},
		{
			name:  "windows line endings",
			text:  "UHID: 1\r\nAge: 2\r\n",
			known: map[string]any{"UHID": "1", "Age": "2"},
		},
		{
			name: "lines without colon are ignored",
			text: "Invoice summary\n{\n}\n",
		},
		{
			name: "empty key is ignored",
			text: ": orphan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Structure(tt.text, schema)
			for k, want := range tt.known {
				got, ok := rec.Known.Get(k)
				if !ok {
					t.Fatalf("known field %q missing", k)
				}
				if deref(got) != want {
					t.Errorf("known[%q] = %v, want %v", k, deref(got), want)
				}
			}
			for k, want := range tt.extra {
				got, ok := rec.Extra.Get(k)
				if !ok {
					t.Fatalf("extra field %q missing", k)
				}
				if deref(got) != want {
					t.Errorf("extra[%q] = %v, want %v", k, deref(got), want)
				}
			}
			if tt.extra == nil && rec.Extra.Len() != 0 {
				t.Errorf("unexpected extras: %v", rec.Extra.Keys())
			}
			for _, k := range tt.noExtraOf {
				if rec.Extra.Has(k) {
					t.Errorf("extra must not contain %q", k)
				}
			}
		})
	}
}

func TestStructure_ReparseIsStable(t *testing.T) {
	schema := DefaultInvoiceSchema()
	text := "```json\n{\n" +
		`  "UHID": "U-100",` + "\n" +
		`  "Patient Name": "Asha Rao",` + "\n" +
		`  "Bill Date": "01/02/2024 10:15",` + "\n" +
		`  "Bill No": null,` + "\n" +
		`  "Ward": "General",` + "\n" +
		"}\n```"

	first := Structure(text, schema)
	b, err := json.MarshalIndent(first.Known, "", "    ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second := Structure(string(b), schema)

	if !reflect.DeepEqual(first.Known.Map(), second.Known.Map()) {
		t.Errorf("reparse changed known fields:\nfirst  %v\nsecond %v", first.Known.Map(), second.Known.Map())
	}
}

func TestSchema_Dedup(t *testing.T) {
	s := NewSchema("A", "B", "A", "C")
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(s.Names(), want) {
		t.Errorf("Names() = %v, want %v", s.Names(), want)
	}
	if s.Contains("a") {
		t.Error("Contains must be case-sensitive")
	}
	if DefaultInvoiceSchema().Len() != 40 {
		t.Errorf("invoice schema has %d fields, want 40", DefaultInvoiceSchema().Len())
	}
}

func TestFields_JSONOrder(t *testing.T) {
	f := NewFields()
	f.Set("b", Str("1"))
	f.Set("a", nil)
	f.Set("b", Str("2"))

	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(b), `{"b":"2","a":null}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	var back Fields
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back.Keys(), []string{"b", "a"}) {
		t.Errorf("order lost: %v", back.Keys())
	}
}
