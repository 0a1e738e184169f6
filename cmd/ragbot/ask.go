package main

import (
	"strings"

	"github.com/spf13/cobra"

	"ragbot/internal/rag"
)

func (c *cli) newAskCmd() *cobra.Command {
	var (
		k       int
		debug   bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the index",
		Long: `Asks a single question without a chat session. The answer lists the source pages
behind each [n] citation. Use --debug to see the retrieved chunks and their distances.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.app.Engine.Ask(cmd.Context(), rag.AskRequest{
				Question: strings.Join(args, " "),
				K:        k,
				Debug:    debug,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd, resp)
			}
			printAnswer(cmd, resp)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of chunks to retrieve (0 uses TOP_K)")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the retrieved chunks")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the full response as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, resp rag.AskResponse) {
	if resp.RawAnswer != "" && resp.Status == rag.StatusAnswered {
		cmd.Println(resp.RawAnswer)
	} else {
		cmd.Println(resp.Answer)
	}
	if resp.Status != rag.StatusAnswered {
		cmd.Printf("(status: %s)\n", resp.Status)
	}

	if len(resp.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, url := range resp.Sources {
			cmd.Printf("  [%d] %s\n", i+1, url)
		}
	}
	if len(resp.InvalidCitations) > 0 {
		cmd.Printf("Citations without a source: %v\n", resp.InvalidCitations)
	}

	if len(resp.Chunks) > 0 {
		cmd.Println()
		cmd.Println("Retrieved chunks:")
		for _, chunk := range resp.Chunks {
			marker := " "
			if chunk.InPrompt {
				marker = "*"
			}
			cmd.Printf(" %s %d. %s (distance %.4f) %s\n", marker, chunk.Rank, chunk.SourceFile, chunk.Distance, chunk.URL)
		}
	}
}
