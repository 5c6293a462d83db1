// Package cmd implements the sanity-build CLI
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DethRaid/SanityEngine/pkg"
	"github.com/DethRaid/SanityEngine/pkg/config"
	"github.com/DethRaid/SanityEngine/pkg/pipeline"
	"github.com/DethRaid/SanityEngine/pkg/profile"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

var rootCmd = &cobra.Command{
	Use:   "sanity-build",
	Short: "Build pipeline for SanityEngine",
	Long: `This command builds SanityEngine: it runs the native toolchain, compiles shaders, copies
the runtime DLLs next to the editor and generates bindings for the engine's C++ API.
The pipeline is configured in sanity-build.toml which is searched in the current directory and its parents.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to "+config.FileName+" (searched upwards from the working directory by default)")
	rootCmd.PersistentFlags().Bool("json", false, "print JSON lines instead of coloured messages")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "print debug messages")
}

// Execute runs the CLI and exits with a non-zero code on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pkg.PrintError(err.Error())
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "failed to retrieve the current working directory")
		}

		path, err = config.FindFile(wd)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, pipeline.NewError(pipeline.ConfigError, "", err)
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	if jsonOutput {
		cfg.Log.JSON = true
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (*zerolog.Logger, func(), error) {
	var out io.Writer = NewConsoleWriter(os.Stderr)
	if cfg.Log.JSON {
		out = os.Stderr
	}

	closer := func() {}
	if cfg.Log.File != "" {
		logPath := cfg.Abs(cfg.Log.File)
		err := os.MkdirAll(filepath.Dir(logPath), 0770)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "failed to create the directory for %s", logPath)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "failed to open log file %s", logPath)
		}

		out = zerolog.MultiLevelWriter(out, f)
		closer = func() {
			f.Close()
		}
	}

	logger := zerolog.New(out).Level(cfg.LogLevel()).With().Timestamp().Logger()
	return &logger, closer, nil
}

// session bundles everything a command needs once the config is loaded and the profile script ran
type session struct {
	ctx   context.Context
	cfg   *config.Config
	close func()
}

// prepare loads the config, sets up logging and applies the profile script with the given key=value
// options. The returned context is cancelled on Ctrl+C.
func prepare(cmd *cobra.Command, args []string) (*session, error) {
	options, err := profile.ParseOptions(args)
	if err != nil {
		return nil, pipeline.NewError(pipeline.ConfigError, "", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = sblog.WithLogger(ctx, logger)
	s := &session{
		ctx: ctx,
		cfg: cfg,
		close: func() {
			stop()
			closeLog()
		},
	}

	if cfg.File() != "" {
		sblog.Log(ctx).Debug().Str("path", cfg.File()).Msg("Loaded configuration")
	} else {
		sblog.Log(ctx).Warn().Msgf("No %s found, using defaults", config.FileName)
	}

	if cfg.Script.Path != "" {
		_, err = profile.Apply(ctx, cfg, cfg.Abs(cfg.Script.Path), options)
		if err != nil {
			s.close()
			return nil, err
		}
	} else if len(options) > 0 {
		s.close()
		return nil, pipeline.NewError(pipeline.ConfigError, "", eris.New("options were passed but no profile script is configured"))
	}

	return s, nil
}
