package main

import (
	"context"
	"os"
	"time"

	"geocoding-enricher/internal/config"
	"geocoding-enricher/internal/pipeline"
	"geocoding-enricher/internal/provider"
	"geocoding-enricher/internal/service"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

func newGeocoder(c *config.Config) *service.GeoCodeService {
	mapping := c.FieldMapping()
	return service.NewGeoCodeService(mapping, service.WithProvidersFrom(mapping,
		provider.WithHTTPClient(provider.NewHTTPClient(c.HTTPTimeout())),
		provider.WithLimiter(provider.NewLimiter(c.Geocoder.MaxRPS)),
	))
}

// runStep geocodes every row from src into sink, tagging the run's log lines with a run id.
func runStep(ctx context.Context, c *config.Config, src pipeline.RowSource, sink pipeline.RowSink, desc string) (pipeline.Stats, error) {
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Str("source", desc).Logger()

	opts := []pipeline.Option{pipeline.WithFeedbackSize(c.Pipeline.FeedbackSize)}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetDescription("Geocoding "+desc),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		opts = append(opts, pipeline.WithProgress(func(pipeline.Stats) {
			if err := bar.Add(1); err != nil {
				logger.Debug().Err(err).Msg("failed to update progress bar")
			}
		}))
	}

	logger.Info().Msg("geocoding run started")
	start := time.Now()

	stats, err := pipeline.NewStep(newGeocoder(c), src, sink, opts...).Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return stats, err
	}

	logger.Info().
		Int64("read", stats.Read).
		Int64("written", stats.Written).
		Int64("geocoded", stats.Geocoded).
		Dur("elapsed", time.Since(start)).
		Msg("geocoding run complete")
	return stats, nil
}
