package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func (c *cli) newBuildIndexCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Chunk the extracted pages and rebuild the vector index",
		Long: `Cuts every extracted page into overlapping chunks, embeds them and atomically replaces
the index. A running server picks up the new index on its next query.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runBuildIndex(cmd, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output statistics as JSON")
	return cmd
}

func (c *cli) runBuildIndex(cmd *cobra.Command, jsonOut bool) error {
	stats, err := c.app.RebuildWithChunks(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd, stats)
	}

	build := stats.Build
	cmd.Printf("Documents: %d, chunks written: %d\n", stats.Chunks.Documents, stats.Chunks.Chunks)
	cmd.Printf("Embedded: %d of %d, skipped: %d\n", build.ChunksEmbedded, build.ChunksAttempted, build.ChunksSkipped)
	reasons := make([]string, 0, len(build.ChunksSkippedReasons))
	for reason := range build.ChunksSkippedReasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		cmd.Printf("  %s: %d\n", reason, build.ChunksSkippedReasons[reason])
	}
	if build.UnresolvedURLs > 0 {
		cmd.Printf("Chunks without a source URL: %d\n", build.UnresolvedURLs)
	}
	if !build.Replaced {
		cmd.Println("Nothing was embedded; the previous index was kept.")
		return nil
	}
	cmd.Printf("Index generation %s, dimension %d\n", build.Generation, build.Dimension)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
