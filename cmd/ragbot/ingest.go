package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) newIngestCmd() *cobra.Command {
	var (
		build   bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch the source pages and extract their text",
		Long: `Downloads every URL listed in SOURCES_FILE that is not already stored, records where
each page came from in the source registry and extracts the page text.
Failed pages are logged and counted; they never stop the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			stats, err := c.app.Ingest(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				if err := printJSON(cmd, stats); err != nil {
					return err
				}
			} else {
				cmd.Printf("Sources: %d\n", stats.Sources)
				cmd.Printf("Fetched: %d, already stored: %d, failed: %d\n", stats.Fetch.Fetched, stats.Fetch.Skipped, stats.Fetch.Failed)
				cmd.Printf("Parsed: %d, empty: %d, failed: %d\n", stats.Parse.Parsed, stats.Parse.Empty, stats.Parse.Failed)
			}
			if !build {
				return nil
			}
			return c.runBuildIndex(cmd, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "rebuild the index after ingesting")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output statistics as JSON")
	return cmd
}
