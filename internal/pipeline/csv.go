package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"geocoding-enricher/internal/models"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// CSVSource reads rows from CSV with a header line. Every column is text and empty cells
// are null.
type CSVSource struct {
	r      *csv.Reader
	schema models.Schema
}

// NewCSVSource reads from r. The header is consumed on the first GetRow.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &CSVSource{r: cr}
}

// GetRow implements RowSource.
func (s *CSVSource) GetRow(_ context.Context) (models.Record, models.Schema, error) {
	if s.schema == nil {
		header, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil, io.EOF
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "csv: read header")
		}
		schema := make(models.Schema, len(header))
		for i, name := range header {
			schema[i] = models.Field{Name: name, Type: models.FieldTypeString}
		}
		s.schema = schema
	}

	line, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, io.EOF
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "csv: read row")
	}

	rec := make(models.Record, len(line))
	for i, cell := range line {
		if cell != "" {
			rec[i] = cell
		}
	}
	return rec, s.schema, nil
}

// Schema implements SchemaSource. It is nil until the header has been read.
func (s *CSVSource) Schema() models.Schema {
	return s.schema
}

// CSVSink writes rows as CSV, starting with a header from the first row's schema.
type CSVSink struct {
	w             *csv.Writer
	headerWritten bool
}

// NewCSVSink writes to w. The caller owns w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// PutRow implements RowSink.
func (s *CSVSink) PutRow(ctx context.Context, schema models.Schema, rec models.Record) error {
	if err := s.Prepare(ctx, schema); err != nil {
		return err
	}

	line := make([]string, len(schema))
	for i := range line {
		v := rec.Get(i)
		if v == nil {
			continue
		}
		text, err := cast.ToStringE(v)
		if err != nil {
			return eris.Wrapf(err, "csv: field %q", schema[i].Name)
		}
		line[i] = text
	}
	if err := s.w.Write(line); err != nil {
		return eris.Wrap(err, "csv: write row")
	}
	return nil
}

// Prepare implements SchemaSink by writing the header once.
func (s *CSVSink) Prepare(_ context.Context, schema models.Schema) error {
	if s.headerWritten {
		return nil
	}
	if err := s.w.Write(schema.Names()); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	s.headerWritten = true
	return nil
}

// Close implements RowSink.
func (s *CSVSink) Close(_ context.Context) error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return eris.Wrap(err, "csv: flush")
	}
	return nil
}
