package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the library directory and update the track catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *jobs.Store, cat *catalog.Store) error {
				s := scanner.New(cfg, cat, logging.NewNop())
				stats, err := s.Scan(cmd.Context())
				if err != nil {
					return fmt.Errorf("scan library: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Scanned", "Indexed", "Pruned", "Elapsed"},
					[][]string{{
						fmt.Sprint(stats.Scanned),
						fmt.Sprint(stats.Indexed),
						fmt.Sprint(stats.Pruned),
						stats.Elapsed,
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
