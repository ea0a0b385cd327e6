package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Arshim28/nbfc-system/internal/analytics"
)

var (
	runsLimit  int
	statsSince string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openDB()
		if err != nil {
			return err
		}
		defer history.Close()

		runs, err := history.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPIPELINE\tSTATUS\tCOMPLETION\tSTARTED\tDATA DIR")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
				r.ID, r.Pipeline, r.Status, r.CompletionRate*100, r.StartedAt, r.DataDir)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its stage transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openDB()
		if err != nil {
			return err
		}
		defer history.Close()

		r, err := history.GetRun(args[0])
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		cmd.Printf("Run %s\n", r.ID)
		cmd.Printf("  pipeline:   %s (%s)\n", r.Pipeline, r.Company)
		cmd.Printf("  data dir:   %s\n", r.DataDir)
		cmd.Printf("  status:     %s (%.0f%% complete)\n", r.Status, r.CompletionRate*100)
		cmd.Printf("  started:    %s\n", r.StartedAt)
		if r.FinishedAt != "" {
			cmd.Printf("  finished:   %s\n", r.FinishedAt)
		}
		if r.Error != "" {
			cmd.Printf("  error:      %s\n", r.Error)
		}

		events, err := history.ListStageEvents(r.ID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		cmd.Println("\nStage transitions:")
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTAGE\tAGENT\tSTATUS\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp, e.Stage, e.Agent, e.Status, e.Detail)
		}
		return w.Flush()
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate stage durations, reliability and daily throughput",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openDB()
		if err != nil {
			return err
		}
		defer history.Close()

		durations, err := analytics.QueryStageDurations(history, statsSince)
		if err != nil {
			return err
		}
		reliability, err := analytics.QueryStageReliability(history, statsSince)
		if err != nil {
			return err
		}
		throughput, err := analytics.QueryRunThroughput(history, statsSince)
		if err != nil {
			return err
		}

		if len(durations) == 0 && len(reliability) == 0 && len(throughput) == 0 {
			cmd.Println("No run history recorded.")
			return nil
		}

		if len(durations) > 0 {
			cmd.Println("Stage durations (minutes per attempt):")
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tATTEMPTS\tAVG\tP50\tP95")
			for _, d := range durations {
				fmt.Fprintf(w, "%s\t%d\t%.1f\t%.1f\t%.1f\n", d.Stage, d.Count, d.Avg, d.P50, d.P95)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if len(reliability) > 0 {
			cmd.Println("\nStage reliability:")
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tEXECUTIONS\tFIRST PASS\tAFTER RETRY\tFAILED")
			for _, r := range reliability {
				fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.1f%%\t%.1f%%\n",
					r.Stage, r.Executions, r.FirstPass, r.AfterRetry, r.Failed)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if len(throughput) > 0 {
			cmd.Println("\nDaily throughput:")
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tSTARTED\tCOMPLETED\tFAILED\tAVG COMPLETION\tAVG DURATION")
			for _, tp := range throughput {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t%.1f min\n",
					tp.Period, tp.Started, tp.Completed, tp.Failed, tp.AvgCompletion, tp.AvgDurationMin)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsStatsCmd.Flags().StringVar(&statsSince, "since", "", "only include history at or after this timestamp (e.g. 2026-01-01)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
}
