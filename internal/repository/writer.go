package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"geocoding-enricher/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/spf13/cast"
)

// RowWriter copies records into a table of TEXT columns named after the output schema.
type RowWriter struct {
	db        DB
	table     pgx.Identifier
	batchSize int

	columns []string
	buf     [][]any
	written int64
}

// Prepare creates the output table for schema unless that has already happened.
func (w *RowWriter) Prepare(ctx context.Context, schema models.Schema) error {
	if w.columns != nil {
		return nil
	}
	if err := w.createTable(ctx, schema); err != nil {
		return err
	}
	w.columns = schema.Names()
	return nil
}

// PutRow buffers rec, creating the table on the first call and flushing full batches
func (w *RowWriter) PutRow(ctx context.Context, schema models.Schema, rec models.Record) error {
	if err := w.Prepare(ctx, schema); err != nil {
		return err
	}

	row := make([]any, len(w.columns))
	for i := range row {
		v, err := textValue(rec.Get(i))
		if err != nil {
			return fmt.Errorf("repository: column %q: %w", w.columns[i], err)
		}
		row[i] = v
	}
	w.buf = append(w.buf, row)

	if len(w.buf) >= w.batchSize {
		return w.flush(ctx)
	}
	return nil
}

// Close flushes buffered rows.
func (w *RowWriter) Close(ctx context.Context) error {
	return w.flush(ctx)
}

// Written is the number of rows committed by COPY so far.
func (w *RowWriter) Written() int64 {
	return w.written
}

func (w *RowWriter) createTable(ctx context.Context, schema models.Schema) error {
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = pq.QuoteIdentifier(f.Name) + " TEXT"
	}
	sql := "CREATE TABLE IF NOT EXISTS " + quoteTable(w.table) + " (" + strings.Join(cols, ", ") + ")"

	if _, err := w.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("repository: failed to create output table: %w", err)
	}
	return nil
}

func (w *RowWriter) flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	n, err := w.db.CopyFrom(ctx, w.table, w.columns, pgx.CopyFromRows(w.buf))
	if err != nil {
		return fmt.Errorf("repository: failed to copy %d rows: %w", len(w.buf), err)
	}
	w.written += n
	w.buf = w.buf[:0]
	return nil
}

// textValue renders v for a TEXT column. nil stays NULL.
func textValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	default:
		return cast.ToStringE(v)
	}
}
