package main

import (
	"context"

	"geocoding-enricher/internal/config"
	"geocoding-enricher/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var postgresOpts struct {
	query string
	table string
}

var postgresCmd = &cobra.Command{
	Use:   "postgres",
	Short: "Geocode the rows of a query into a new table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.DBSource == "" {
			return eris.New("postgres: db_source is not configured")
		}
		ctx := cmd.Context()

		pool, err := pgxpool.New(ctx, cfg.DBSource)
		if err != nil {
			return eris.Wrap(err, "postgres: connect")
		}
		defer pool.Close()

		return geocodeTable(ctx, cfg, pool, postgresOpts.query, postgresOpts.table)
	},
}

// geocodeTable geocodes the rows of query into table and checks the table holds them. An
// empty result still creates the table.
func geocodeTable(ctx context.Context, c *config.Config, db repository.DB, query, table string) error {
	repo := repository.NewRepository(db)
	reader := repo.NewRowReader(query)
	defer reader.Close()
	writer := repo.NewRowWriter(table, c.Pipeline.BatchSize)

	stats, err := runStep(ctx, c, reader, writer, table)
	if err != nil {
		return err
	}
	if reader.Schema() == nil {
		return eris.Errorf("postgres: query returned no columns, %s not created", table)
	}

	count, err := repo.CountRows(ctx, table)
	if err != nil {
		return eris.Wrap(err, "postgres: verify output")
	}
	if count < stats.Written {
		return eris.Errorf("postgres: %s holds %d rows, expected at least %d", table, count, stats.Written)
	}
	log.Info().Str("table", table).Int64("rows", count).Msg("output table verified")
	return nil
}

func init() {
	postgresCmd.Flags().StringVar(&postgresOpts.query, "query", "", "SELECT producing the input rows")
	postgresCmd.Flags().StringVar(&postgresOpts.table, "table", "", "output table, optionally schema-qualified")
	_ = postgresCmd.MarkFlagRequired("query")
	_ = postgresCmd.MarkFlagRequired("table")
}
