package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"ragbot/internal/handlers"
)

func (c *cli) newHealthCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the index, the source registry and the LLM server",
		Long: `Runs the same checks as GET /api/health and exits non-zero unless everything is healthy.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			checker := handlers.NewHealthHandler(a.Store, a.Registry, a.Models, a.Config.LLMModelName)
			report := checker.Check(cmd.Context())

			if jsonOut {
				if err := printJSON(cmd, report); err != nil {
					return err
				}
			} else {
				cmd.Printf("Status: %s\n", report.Status)
				names := make([]string, 0, len(report.Checks))
				for name := range report.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					cmd.Printf("  %s: %s\n", name, report.Checks[name])
				}
				if report.Index != nil {
					cmd.Printf("Index: %s generation %s, %d vectors of dimension %d\n",
						report.Index.Backend, report.Index.Generation, report.Index.Count, report.Index.Dimension)
				}
				cmd.Printf("Sources: %d\n", report.Sources)
				if len(report.Issues) > 0 {
					cmd.Printf("Issues: %s\n", strings.Join(report.Issues, ", "))
				}
			}

			if !report.Healthy() {
				return fmt.Errorf("service is %s", report.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the report as JSON")
	return cmd
}
