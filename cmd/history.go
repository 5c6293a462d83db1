package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DethRaid/SanityEngine/pkg/history"
	"github.com/DethRaid/SanityEngine/pkg/pipeline"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previous runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd)
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the stages of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showOutput, err := cmd.Flags().GetBool("output")
		if err != nil {
			return err
		}

		store, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		report, err := store.Get(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %s started %s (%s)\n", report.ID, report.Started.Format(time.RFC3339), result(report))
		for _, stage := range report.Stages {
			fmt.Fprintf(out, "  %-9s %-13s %s\n", stage.Stage, stage.Status, stage.Duration.Round(time.Millisecond))
			for _, warning := range stage.Warnings {
				fmt.Fprintf(out, "    warning: %s\n", warning)
			}
			if stage.Error != "" {
				fmt.Fprintf(out, "    %s: %s\n", stage.Kind, stage.Error)
			}

			if showOutput {
				output, err := store.Output(report.ID, stage.Stage)
				if err != nil {
					return err
				}
				if output != "" {
					fmt.Fprintln(out, "    output:")
					io.WriteString(out, output)
					if output[len(output)-1] != '\n' {
						io.WriteString(out, "\n")
					}
				}
			}
		}

		return nil
	},
}

func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	return history.Open(cfg.Abs(cfg.History.Path), cfg.History.Keep)
}

func result(report *pipeline.Report) string {
	if report.Success {
		return "success"
	}
	return "failed"
}

func listRuns(cmd *cobra.Command) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tRESULT\tSTAGES")
	for _, report := range reports {
		stages := ""
		for idx, stage := range report.Stages {
			if idx > 0 {
				stages += ","
			}
			stages += string(stage.Stage)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			report.ID,
			report.Started.Format("2006-01-02 15:04:05"),
			report.Finished.Sub(report.Started).Round(time.Millisecond),
			result(report),
			stages,
		)
	}
	return w.Flush()
}

func init() {
	historyShowCmd.Flags().BoolP("output", "o", false, "print the captured output of each stage")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
