package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DethRaid/SanityEngine/pkg"
	"github.com/DethRaid/SanityEngine/pkg/history"
	"github.com/DethRaid/SanityEngine/pkg/pipeline"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

var runCmd = &cobra.Command{
	Use:   "run [key=value...]",
	Short: "Run the whole pipeline",
	Long: `Runs all enabled stages in order: build, shaders, stage, bindings and editor.
The key=value arguments are passed to the profile script as options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args, nil)
	},
}

var stageDescriptions = []struct {
	stage pipeline.StageName
	short string
}{
	{pipeline.StageBuild, "Run the native toolchain"},
	{pipeline.StageShaders, "Compile the HLSL shaders"},
	{pipeline.StageStage, "Copy the runtime artifacts to the editor directory"},
	{pipeline.StageBindings, "Generate bindings for the engine API"},
}

func runPipeline(cmd *cobra.Command, args []string, stages []pipeline.StageName) error {
	s, err := prepare(cmd, args)
	if err != nil {
		return err
	}
	defer s.close()

	names := make([]string, len(stages))
	for idx, stage := range stages {
		names[idx] = string(stage)
	}

	err = s.cfg.Validate(names...)
	if err != nil {
		return pipeline.NewError(pipeline.ConfigError, "", err)
	}

	opts := pipeline.Options{
		Live:     os.Stdout,
		Progress: pkg.NewCountBar,
	}

	if s.cfg.History.Enabled {
		store, err := history.Open(s.cfg.Abs(s.cfg.History.Path), s.cfg.History.Keep)
		if err != nil {
			sblog.Log(s.ctx).Warn().Err(err).Msg("Failed to open the history, this run won't be recorded")
		} else {
			defer store.Close()
			opts.Recorder = store
		}
	}

	p := pipeline.New(s.cfg, opts)
	if len(stages) == 0 || stages[0] == pipeline.StageBuild {
		sblog.Log(s.ctx).Debug().Msgf("Toolchain command: %s", p.BuildConfiguration())
	}

	report, err := p.Run(s.ctx, stages)
	if report != nil {
		printReport(report)
	}
	return err
}

func printReport(report *pipeline.Report) {
	pkg.PrintTask(fmt.Sprintf("Run %s finished in %s", report.ID, report.Finished.Sub(report.Started).Round(time.Millisecond)))
	for _, result := range report.Stages {
		line := fmt.Sprintf("%-9s %s", result.Stage, result.Status)
		if result.Status == pipeline.StatusSucceeded || result.Status == pipeline.StatusFailed {
			line += fmt.Sprintf(" (%s)", result.Duration.Round(time.Millisecond))
		}

		if result.Status == pipeline.StatusFailed {
			pkg.PrintError(line + ": " + result.Error)
		} else {
			pkg.PrintSubtask(line)
		}

		for _, warning := range result.Warnings {
			pkg.PrintSubtask("    warning: " + warning)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	for _, item := range stageDescriptions {
		stage := item.stage
		rootCmd.AddCommand(&cobra.Command{
			Use:   string(stage) + " [key=value...]",
			Short: item.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPipeline(cmd, args, []pipeline.StageName{stage})
			},
		})
	}
}
