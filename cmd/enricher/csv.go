package main

import (
	"os"

	"geocoding-enricher/internal/pipeline"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var csvOpts struct {
	input  string
	output string
}

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Geocode a CSV file with a header row",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := os.Open(csvOpts.input)
		if err != nil {
			return eris.Wrap(err, "csv: open input")
		}
		defer in.Close()

		out, err := os.Create(csvOpts.output)
		if err != nil {
			return eris.Wrap(err, "csv: create output")
		}

		_, runErr := runStep(cmd.Context(), cfg, pipeline.NewCSVSource(in), pipeline.NewCSVSink(out), csvOpts.input)
		if err := out.Close(); err != nil && runErr == nil {
			return eris.Wrap(err, "csv: close output")
		}
		return runErr
	},
}

func init() {
	csvCmd.Flags().StringVar(&csvOpts.input, "input", "", "CSV file to read")
	csvCmd.Flags().StringVar(&csvOpts.output, "output", "", "CSV file to write")
	_ = csvCmd.MarkFlagRequired("input")
	_ = csvCmd.MarkFlagRequired("output")
}
