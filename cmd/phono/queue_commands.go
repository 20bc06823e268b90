package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/jobs"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *jobs.Store, cat *catalog.Store) error {
				var states []jobs.State
				for _, raw := range strings.Split(stateFlag, ",") {
					raw = strings.TrimSpace(raw)
					if raw == "" {
						continue
					}
					state, ok := jobs.ParseState(raw)
					if !ok {
						return fmt.Errorf("unknown state %q (valid: queued, running, done, failed)", raw)
					}
					states = append(states, state)
				}

				list, err := store.List(cmd.Context(), states...)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(list))
				for _, job := range list {
					detail := job.Result
					if job.State == jobs.StateFailed {
						detail = job.Error
					}
					rows = append(rows, []string{
						fmt.Sprint(job.ID),
						string(job.Kind),
						job.ResourceKey,
						string(job.State),
						job.RequestedAt.Local().Format(time.DateTime),
						truncate(detail, 48),
					})
				}

				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Resource", "State", "Requested", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "Comma-separated state filter")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *jobs.Store, cat *catalog.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(stats))
				total := 0
				for _, state := range jobs.AllStates() {
					count := stats[state]
					total += count
					rows = append(rows, []string{string(state), fmt.Sprint(count)})
				}
				rows = append(rows, []string{"total", fmt.Sprint(total)})

				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Jobs"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var doneOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *jobs.Store, cat *catalog.Store) error {
				var (
					removed int64
					err     error
				)
				switch {
				case failedOnly && doneOnly:
					return fmt.Errorf("choose one of --failed or --done")
				case failedOnly:
					removed, err = store.ClearFailed(cmd.Context())
				case doneOnly:
					removed, err = store.ClearDone(cmd.Context())
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only remove failed jobs")
	cmd.Flags().BoolVar(&doneOnly, "done", false, "Only remove done jobs")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(cfg *config.Config, store *jobs.Store, cat *catalog.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database: %s\n", store.Path())
				fmt.Fprintf(out, "Healthy:  %s\n", yesNo(health.Healthy()))
				fmt.Fprintf(out, "Jobs:     %d\n", health.TotalJobs)
				if health.Error != "" {
					fmt.Fprintf(out, "Detail:   %s\n", health.Error)
				}
				if health.StuckRunning > 0 {
					fmt.Fprintf(out, "Warning:  %d job(s) stuck running; a crashed worker may have abandoned them\n", health.StuckRunning)
				}
				return nil
			})
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
