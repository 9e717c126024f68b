package data

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Record is one projected entry. Fields keep schema order.
type Record struct {
	Entry  int64
	names  []string
	values []any
}

// NewRecord builds a record from parallel name and value slices.
func NewRecord(entry int64, names []string, values []any) Record {
	return Record{Entry: entry, names: names, values: values}
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.names) }

// Names returns the field names in schema order.
func (r Record) Names() []string { return r.names }

// Values returns the field values in schema order.
func (r Record) Values() []any { return r.values }

// Get returns the value of a field.
func (r Record) Get(name string) (any, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the record as the generic form accepted by the Avro encoder.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.names))
	for i, n := range r.names {
		m[n] = r.values[i]
	}
	return m
}

// MarshalJSON writes the fields in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
