package models

import "strings"

// FieldType is the logical type of a schema field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeInteger FieldType = "integer"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeUnknown FieldType = "unknown"
)

// Field describes one column of a record.
type Field struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Origin string    `json:"origin,omitempty"`
}

// Schema is the ordered list of fields shared by every record of a stream.
type Schema []Field

// IndexOf returns the position of the named field, or -1 when the name is blank or unknown.
func (s Schema) IndexOf(name string) int {
	if strings.TrimSpace(name) == "" {
		return -1
	}
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Append returns a new schema with the given fields added at the end.
// The receiver is never modified.
func (s Schema) Append(fields ...Field) Schema {
	out := make(Schema, 0, len(s)+len(fields))
	out = append(out, s...)
	return append(out, fields...)
}

// Record is one row of values, positionally aligned with a Schema.
// A record may be physically shorter than its schema; missing trailing values are nil.
type Record []any

// Resize returns a copy of the record that is at least width values long.
// Existing values keep their indices.
func (r Record) Resize(width int) Record {
	n := len(r)
	if width > n {
		n = width
	}
	out := make(Record, n)
	copy(out, r)
	return out
}

// Get returns the value at idx, or nil when idx is outside the record's storage.
func (r Record) Get(idx int) any {
	if idx < 0 || idx >= len(r) {
		return nil
	}
	return r[idx]
}
