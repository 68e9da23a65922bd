package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DefaultBatchSize is how many rows a RowWriter buffers per COPY.
const DefaultBatchSize = 500

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Repository reads input rows from and writes enriched rows to PostgreSQL
type Repository struct {
	db DB
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// NewRowReader returns a source streaming the result of query.
func (r *Repository) NewRowReader(query string, args ...any) *RowReader {
	return &RowReader{db: r.db, query: query, args: args}
}

// NewRowWriter returns a sink writing into table, creating it on the first row.
// A batchSize of zero or less uses DefaultBatchSize.
func (r *Repository) NewRowWriter(table string, batchSize int) *RowWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RowWriter{db: r.db, table: tableIdentifier(table), batchSize: batchSize}
}

// CountRows returns the number of rows in table
func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	sql := "SELECT COUNT(*) FROM " + quoteTable(tableIdentifier(table))

	var count int64
	if err := r.db.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// tableIdentifier splits an optionally schema-qualified table name.
func tableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

func quoteTable(id pgx.Identifier) string {
	parts := make([]string, len(id))
	for i, p := range id {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
