package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"geocoding-enricher/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "enricher",
	Short: "Add latitude and longitude to address records",
	Long:  "Geocodes address rows from CSV files or PostgreSQL queries with Nominatim, falling back to Mapbox, and writes the rows back out with two coordinate columns appended.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configDir)
		if err != nil {
			return err
		}
		cfg = c

		return config.InitLogger(cfg.Log)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory holding config.yaml and .env")
	rootCmd.AddCommand(csvCmd, postgresCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("enricher failed")
		stop()
		os.Exit(1)
	}
}
