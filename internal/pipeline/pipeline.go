// Package pipeline drives a geocoder over a stream of rows, one row at a time.
package pipeline

import (
	"context"
	"errors"
	"io"

	"geocoding-enricher/internal/models"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// DefaultFeedbackSize is how many rows pass between progress log lines.
const DefaultFeedbackSize = 1000

// RowSource yields input rows. GetRow returns io.EOF once the stream is exhausted.
type RowSource interface {
	GetRow(ctx context.Context) (models.Record, models.Schema, error)
}

// RowSink receives output rows. Close flushes anything buffered.
type RowSink interface {
	PutRow(ctx context.Context, schema models.Schema, rec models.Record) error
	Close(ctx context.Context) error
}

// SchemaSource is a RowSource that can report its schema without yielding a row, such as a
// CSV file holding only a header or a query matching nothing.
type SchemaSource interface {
	RowSource
	Schema() models.Schema
}

// SchemaSink is a RowSink that can lay out its output before any row arrives. Prepare must
// be idempotent since PutRow may call it too.
type SchemaSink interface {
	RowSink
	Prepare(ctx context.Context, schema models.Schema) error
}

// Geocoder enriches rows. It is implemented by service.GeoCodeService.
type Geocoder interface {
	OutputSchema(in models.Schema) (models.Schema, error)
	Geocode(ctx context.Context, rec models.Record, schema models.Schema) models.Record
}

// Stats counts rows through a step.
type Stats struct {
	Read     int64 `json:"read"`
	Written  int64 `json:"written"`
	Geocoded int64 `json:"geocoded"`
}

// Step holds the per-run state of one geocoding pass.
type Step struct {
	geocoder     Geocoder
	source       RowSource
	sink         RowSink
	feedbackSize int64
	progress     func(Stats)

	schema models.Schema
	stats  Stats
}

// Option configures a Step.
type Option func(*Step)

// WithFeedbackSize sets how often progress is logged. Zero or less disables it.
func WithFeedbackSize(n int) Option {
	return func(s *Step) {
		s.feedbackSize = int64(n)
	}
}

// WithProgress registers a callback run after every written row.
func WithProgress(fn func(Stats)) Option {
	return func(s *Step) {
		s.progress = fn
	}
}

// NewStep wires a geocoder between a source and a sink.
func NewStep(g Geocoder, src RowSource, sink RowSink, opts ...Option) *Step {
	s := &Step{
		geocoder:     g,
		source:       src,
		sink:         sink,
		feedbackSize: DefaultFeedbackSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OutputSchema is the schema rows are written with. It is nil until the first row is read,
// or until an empty run ends with a source that knows its schema.
func (s *Step) OutputSchema() models.Schema {
	return s.schema
}

// Stats returns the counters so far.
func (s *Step) Stats() Stats {
	return s.stats
}

// ProcessRow reads, geocodes and writes a single row. It returns false once the source is
// exhausted. The output schema is computed from the first row's schema and reused for the
// rest of the run.
func (s *Step) ProcessRow(ctx context.Context) (bool, error) {
	rec, in, err := s.source.GetRow(ctx)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "pipeline: read row")
	}
	s.stats.Read++

	if s.schema == nil {
		out, err := s.geocoder.OutputSchema(in)
		if err != nil {
			return false, eris.Wrap(err, "pipeline: output schema")
		}
		s.schema = out
	}

	out := s.geocoder.Geocode(ctx, rec, s.schema)
	if s.geocoded(out) {
		s.stats.Geocoded++
	}

	if err := s.sink.PutRow(ctx, s.schema, out); err != nil {
		return false, eris.Wrap(err, "pipeline: write row")
	}
	s.stats.Written++

	if s.progress != nil {
		s.progress(s.stats)
	}
	if s.feedbackSize > 0 && s.stats.Read%s.feedbackSize == 0 {
		log.Info().Int64("rows", s.stats.Read).Int64("geocoded", s.stats.Geocoded).Msg("geocoder progress")
	}
	return true, nil
}

// geocoded reports whether either appended coordinate field holds a value.
func (s *Step) geocoded(rec models.Record) bool {
	n := len(s.schema)
	return rec.Get(n-2) != nil || rec.Get(n-1) != nil
}

// Run processes rows until the source is exhausted or ctx is cancelled, then closes the sink.
func (s *Step) Run(ctx context.Context) (Stats, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, eris.Wrap(err, "pipeline: run cancelled"))
		}
		more, err := s.ProcessRow(ctx)
		if err != nil {
			return s.finish(ctx, err)
		}
		if !more {
			break
		}
	}
	if err := s.prepareEmpty(ctx); err != nil {
		return s.finish(ctx, err)
	}

	if err := s.sink.Close(ctx); err != nil {
		return s.stats, eris.Wrap(err, "pipeline: close sink")
	}
	log.Info().
		Int64("read", s.stats.Read).
		Int64("written", s.stats.Written).
		Int64("geocoded", s.stats.Geocoded).
		Msg("geocoder finished")
	return s.stats, nil
}

// prepareEmpty lays out the sink when the source ended before its first row, so an empty
// input still yields a header or table.
func (s *Step) prepareEmpty(ctx context.Context) error {
	if s.schema != nil {
		return nil
	}
	src, ok := s.source.(SchemaSource)
	if !ok || src.Schema() == nil {
		return nil
	}
	out, err := s.geocoder.OutputSchema(src.Schema())
	if err != nil {
		return eris.Wrap(err, "pipeline: output schema")
	}
	s.schema = out

	if sink, ok := s.sink.(SchemaSink); ok {
		if err := sink.Prepare(ctx, out); err != nil {
			return eris.Wrap(err, "pipeline: prepare sink")
		}
	}
	return nil
}

// finish closes the sink after a failed run, keeping the run's error.
func (s *Step) finish(ctx context.Context, runErr error) (Stats, error) {
	if err := s.sink.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("failed to close sink after error")
	}
	return s.stats, runErr
}
