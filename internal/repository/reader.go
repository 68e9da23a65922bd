package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"

	"geocoding-enricher/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// RowReader streams query results as records. The query runs on the first GetRow.
type RowReader struct {
	db    DB
	query string
	args  []any

	rows   pgx.Rows
	schema models.Schema
	done   bool
}

// GetRow returns the next row, or io.EOF after the last one
func (r *RowReader) GetRow(ctx context.Context) (models.Record, models.Schema, error) {
	if r.done {
		return nil, nil, io.EOF
	}
	if r.rows == nil {
		rows, err := r.db.Query(ctx, r.query, r.args...)
		if err != nil {
			r.done = true
			return nil, nil, fmt.Errorf("repository: failed to execute input query: %w", err)
		}
		r.rows = rows
		r.schema = schemaFromFields(rows.FieldDescriptions())
	}

	if !r.rows.Next() {
		r.done = true
		r.rows.Close()
		if err := r.rows.Err(); err != nil {
			return nil, nil, fmt.Errorf("repository: error iterating rows: %w", err)
		}
		return nil, nil, io.EOF
	}

	values, err := r.rows.Values()
	if err != nil {
		return nil, nil, fmt.Errorf("repository: failed to read row values: %w", err)
	}
	rec := make(models.Record, len(values))
	for i, v := range values {
		rec[i] = plainValue(v)
	}
	return rec, r.schema, nil
}

// Schema is the result set's schema, known once the query has run.
func (r *RowReader) Schema() models.Schema {
	return r.schema
}

// Close releases the result set early.
func (r *RowReader) Close() {
	if r.rows != nil {
		r.rows.Close()
	}
	r.done = true
}

func schemaFromFields(fields []pgconn.FieldDescription) models.Schema {
	schema := make(models.Schema, len(fields))
	for i, f := range fields {
		schema[i] = models.Field{Name: f.Name, Type: fieldType(f.DataTypeOID)}
	}
	return schema
}

func fieldType(oid uint32) models.FieldType {
	switch oid {
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID:
		return models.FieldTypeString
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return models.FieldTypeInteger
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return models.FieldTypeNumber
	case pgtype.BoolOID:
		return models.FieldTypeBoolean
	case pgtype.DateOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return models.FieldTypeDate
	default:
		return models.FieldTypeUnknown
	}
}

// plainValue unwraps pgtype values such as Numeric into their driver form so they can be
// coerced to text downstream.
func plainValue(v any) any {
	valuer, ok := v.(driver.Valuer)
	if !ok {
		return v
	}
	plain, err := valuer.Value()
	if err != nil {
		return v
	}
	return plain
}
