package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields is a document body: a map of string, number, timestamp, boolean and
// array values. Numbers decoded from storage are json.Number.
type Fields map[string]any

// Encode converts a struct into Fields using its json tags
func Encode(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return ParseFields(data)
}

// MustEncode is Encode for values that are known to marshal
func MustEncode(v any) Fields {
	f, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseFields decodes a JSON object into Fields
func ParseFields(data []byte) (Fields, error) {
	if len(data) == 0 {
		return Fields{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var f Fields
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if f == nil {
		f = Fields{}
	}
	return f, nil
}

// Marshal serializes Fields for storage
func (f Fields) Marshal() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(f))
}

// Decode unmarshals the fields into v
func (f Fields) Decode(v any) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Clone returns a deep copy through a JSON round trip
func (f Fields) Clone() Fields {
	data, err := f.Marshal()
	if err != nil {
		return Fields{}
	}
	c, err := ParseFields(data)
	if err != nil {
		return Fields{}
	}
	return c
}

// Apply returns the document that results from applying w to current.
// current may be nil when the document does not exist.
func Apply(current Fields, w Write) Fields {
	if !w.Merge || current == nil {
		return w.Data.Clone()
	}
	out := current.Clone()
	for k, v := range w.Data.Clone() {
		out[k] = v
	}
	return out
}
