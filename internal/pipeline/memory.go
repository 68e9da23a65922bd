package pipeline

import (
	"context"
	"io"

	"geocoding-enricher/internal/models"
)

// SliceSource serves rows held in memory.
type SliceSource struct {
	schema models.Schema
	rows   []models.Record
	pos    int
}

// NewSliceSource serves rows, all sharing schema.
func NewSliceSource(schema models.Schema, rows []models.Record) *SliceSource {
	return &SliceSource{schema: schema, rows: rows}
}

// GetRow implements RowSource.
func (s *SliceSource) GetRow(_ context.Context) (models.Record, models.Schema, error) {
	if s.pos >= len(s.rows) {
		return nil, nil, io.EOF
	}
	rec := s.rows[s.pos]
	s.pos++
	return rec, s.schema, nil
}

// Schema implements SchemaSource.
func (s *SliceSource) Schema() models.Schema {
	return s.schema
}

// SliceSink collects rows in memory.
type SliceSink struct {
	Schema models.Schema
	Rows   []models.Record
	Closed bool
}

// PutRow implements RowSink.
func (s *SliceSink) PutRow(_ context.Context, schema models.Schema, rec models.Record) error {
	s.Schema = schema
	s.Rows = append(s.Rows, rec)
	return nil
}

// Prepare implements SchemaSink.
func (s *SliceSink) Prepare(_ context.Context, schema models.Schema) error {
	s.Schema = schema
	return nil
}

// Close implements RowSink.
func (s *SliceSink) Close(_ context.Context) error {
	s.Closed = true
	return nil
}
