package pipeline

import (
	"bytes"
	"encoding/json"

	"invoice-extractor/api/internal/clarity"
	"invoice-extractor/api/internal/extract"
)

const (
	keyFileName     = "file_name"
	keyClarity      = "image_clarity"
	keyResponseTime = "response_time_seconds"
)

// Document is the JSON written for one processed image.
type Document struct {
	FileName            string
	Known               *extract.Fields
	Extra               *extract.Fields
	Clarity             clarity.Record
	ResponseTimeSeconds float64
}

func reserved(key string) bool {
	return key == keyFileName || key == keyClarity || key == keyResponseTime
}

// MarshalJSON writes file_name, the schema fields in schema order, extra fields in
// the order they appeared, image_clarity and response_time_seconds.
// Extra fields named like one of the fixed members are dropped.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := extract.WriteMember(&buf, keyFileName, d.FileName); err != nil {
		return nil, err
	}
	var err error
	write := func(k string, v extract.Value) {
		if err != nil || reserved(k) {
			return
		}
		buf.WriteByte(',')
		err = extract.WriteMember(&buf, k, v)
	}
	if d.Known != nil {
		d.Known.Each(write)
	}
	if d.Extra != nil {
		d.Extra.Each(write)
	}
	if err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := extract.WriteMember(&buf, keyClarity, d.Clarity); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := extract.WriteMember(&buf, keyResponseTime, d.ResponseTimeSeconds); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders the document the way it is stored: indented by four spaces.
func (d Document) Encode() ([]byte, error) {
	return json.MarshalIndent(d, "", "    ")
}
