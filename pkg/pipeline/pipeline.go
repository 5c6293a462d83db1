// Package pipeline runs the engine build: the native toolchain, shader compilation, artifact
// staging and binding generation.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/DethRaid/SanityEngine/pkg/bindgen"
	"github.com/DethRaid/SanityEngine/pkg/config"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

// Recorder persists finished reports
type Recorder interface {
	Record(ctx context.Context, report *Report) error
}

// Options controls how a Pipeline reports what it's doing
type Options struct {
	// Live receives the output of the toolchain, the shader compiler and hooks while it's produced
	Live io.Writer
	// Progress creates the progress bar shown while staging. A nil func disables it.
	Progress func(count int, desc string) *progressbar.ProgressBar
	Recorder Recorder
}

// Pipeline executes the stages described by a config
type Pipeline struct {
	cfg  *config.Config
	opts Options
}

// New returns a pipeline for the given (validated) config
func New(cfg *config.Config, opts Options) *Pipeline {
	return &Pipeline{cfg: cfg, opts: opts}
}

// BuildConfiguration returns the toolchain invocation described by the build section
func (p *Pipeline) BuildConfiguration() BuildConfiguration {
	cfg := p.cfg.Build
	return BuildConfiguration{
		Toolchain:    cfg.Toolchain,
		Project:      cfg.Project,
		Target:       cfg.Target,
		Flags:        cfg.Flags,
		Args:         cfg.Args,
		TargetSwitch: cfg.TargetSwitch,
		FlagSwitch:   cfg.FlagSwitch,
		WorkDir:      p.cfg.WorkDir,
		Env:          p.environ(StageBuild),
		Timeout:      cfg.Timeout,
	}
}

func (p *Pipeline) environ(stage StageName) []string {
	if stage == StageBuild {
		return Environ(os.Environ(), p.cfg.Env, p.cfg.Build.Env)
	}
	return Environ(os.Environ(), p.cfg.Env)
}

func (p *Pipeline) shell(stage StageName) *Shell {
	return &Shell{
		Dir:    p.cfg.WorkDir,
		Env:    p.environ(stage),
		Stdout: p.opts.Live,
		Stderr: p.opts.Live,
	}
}

// selectStages returns the requested stages in canonical order without duplicates. No stages
// means all of them.
func selectStages(stages []StageName) []StageName {
	if len(stages) == 0 {
		return Stages
	}

	index := map[StageName]int{}
	for idx, stage := range Stages {
		index[stage] = idx
	}

	seen := map[StageName]bool{}
	result := make([]StageName, 0, len(stages))
	for _, stage := range stages {
		if _, known := index[stage]; !known || seen[stage] {
			continue
		}
		seen[stage] = true
		result = append(result, stage)
	}

	sort.Slice(result, func(i, j int) bool {
		return index[result[i]] < index[result[j]]
	})
	return result
}

// Run executes the given stages (or all if none are passed) in order. The report is returned
// even if a stage failed. The first fatal failure stops the run and is returned as *Error.
func (p *Pipeline) Run(ctx context.Context, stages []StageName) (*Report, error) {
	report := &Report{
		ID:      nanoid.New(),
		Started: time.Now(),
	}
	ctx = sblog.WithStr(ctx, "run", report.ID)

	selected := selectStages(stages)
	if len(selected) == 0 {
		return nil, eris.New("no valid stages selected")
	}

	var failure *Error
	if err := checkWorkDir(p.cfg.WorkDir); err != nil {
		failure = NewError(ToolchainInvocationError, selected[0], err)
		report.Stages = append(report.Stages, &StageResult{
			Stage:   selected[0],
			Status:  StatusFailed,
			Started: time.Now(),
			Kind:    failure.Kind,
			Error:   failure.Err.Error(),
		})
		sblog.Log(sblog.WithStr(ctx, "stage", string(selected[0]))).Error().Err(failure).Msg("Can't start the pipeline")
	}

	for _, name := range selected {
		if failure != nil {
			break
		}

		result := &StageResult{
			Stage:   name,
			Started: time.Now(),
		}
		report.Stages = append(report.Stages, result)
		stageCtx := sblog.WithStr(ctx, "stage", string(name))

		var err error
		if ctx.Err() != nil {
			err = NewError(Cancelled, name, eris.Wrap(ctx.Err(), "run was cancelled"))
		} else {
			err = p.runStage(stageCtx, name, result)
		}
		result.Duration = time.Since(result.Started)

		if err != nil {
			failure = asError(err, name)
			result.Status = StatusFailed
			result.Kind = failure.Kind
			result.Error = failure.Err.Error()
			if result.Output == "" {
				result.Output = failure.Output
			}

			sblog.Log(stageCtx).Error().Err(failure.Err).Str("kind", string(failure.Kind)).Msgf("Stage %s failed", name)
			break
		}

		sblog.Log(stageCtx).Info().
			Str("status", string(result.Status)).
			Dur("duration", result.Duration).
			Msgf("Stage %s %s", name, result.Status)
	}

	report.Finished = time.Now()
	report.Success = failure == nil

	if p.opts.Recorder != nil {
		err := p.opts.Recorder.Record(ctx, report)
		if err != nil {
			sblog.Log(ctx).Warn().Err(err).Msg("Could not record this run")
		}
	}

	if failure != nil {
		return report, failure
	}
	return report, nil
}

func asError(err error, stage StageName) *Error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}

	kind := HookFailure
	switch stage {
	case StageBuild:
		kind = BuildFailure
	case StageShaders:
		kind = ShaderCompileError
	case StageStage:
		kind = ArtifactCopyError
	case StageBindings:
		kind = HeaderParseError
	}
	return NewError(kind, stage, err)
}

func (p *Pipeline) runStage(ctx context.Context, name StageName, result *StageResult) error {
	if !p.cfg.Enabled(string(name)) {
		result.Status = StatusSkipped
		return nil
	}

	switch name {
	case StageEditor:
		result.Status = StatusNotAvailable
		result.warn("compiling the editor is not available, yet")
		return nil
	case StageShaders:
		if p.cfg.Shaders.SourceDir == "" {
			result.Status = StatusSkipped
			result.warn("shaders.source_dir is not set")
			return nil
		}
	}

	sh := p.shell(name)
	before, after := p.cfg.Hooks(string(name))
	if err := sh.runHooks(ctx, name, "before", before); err != nil {
		return err
	}

	var err error
	switch name {
	case StageBuild:
		err = p.build(ctx, result)
	case StageShaders:
		err = p.shaders(ctx, result)
	case StageStage:
		err = p.stage(ctx, result)
	case StageBindings:
		err = p.bindings(ctx, result)
	}
	if err != nil {
		return err
	}

	if err := sh.runHooks(ctx, name, "after", after); err != nil {
		return err
	}

	result.Status = StatusSucceeded
	return nil
}

func (p *Pipeline) build(ctx context.Context, result *StageResult) error {
	output, err := Invoke(ctx, p.BuildConfiguration(), p.opts.Live)
	result.Output = output
	return err
}

func (p *Pipeline) shaders(ctx context.Context, result *StageResult) error {
	warnings, output, err := CompileShaders(ctx, ShaderConfig{
		Compiler:  p.cfg.Shaders.Compiler,
		SourceDir: p.cfg.Abs(p.cfg.Shaders.SourceDir),
		OutputDir: p.cfg.Abs(p.cfg.Shaders.OutputDir),
		WorkDir:   p.cfg.WorkDir,
		Env:       p.environ(StageShaders),
		Timeout:   p.cfg.Shaders.Timeout,
	}, p.opts.Live)

	result.Warnings = append(result.Warnings, warnings...)
	result.Output = output
	return err
}

func (p *Pipeline) stage(ctx context.Context, result *StageResult) error {
	manifest := NewManifest(p.cfg.Stage.Artifacts, p.cfg.Abs(p.cfg.Stage.Source), p.cfg.Abs(p.cfg.Stage.Dest))
	if len(manifest) == 0 {
		result.warn("no artifacts configured")
		return nil
	}

	var bar *progressbar.ProgressBar
	if p.opts.Progress != nil {
		bar = p.opts.Progress(len(manifest), "staging")
	}

	warnings, err := StageArtifacts(ctx, manifest, bar)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		return NewError(Cancelled, StageStage, err)
	}
	return nil
}

func (p *Pipeline) bindings(ctx context.Context, result *StageResult) error {
	spec := p.cfg.BindingSpec()
	if err := spec.Validate(); err != nil {
		return NewError(ConfigError, StageBindings, err)
	}

	generated, err := bindgen.Generate(ctx, spec)
	if err != nil {
		return NewError(HeaderParseError, StageBindings, err)
	}

	for _, msg := range generated.Warnings {
		sblog.Log(ctx).Warn().Msg(msg)
		result.warn(msg)
	}

	err = bindgen.WriteOutput(spec.Output, generated.Source)
	if err != nil {
		return NewError(WriteError, StageBindings, err)
	}

	sblog.Log(ctx).Info().
		Strs("types", generated.Types).
		Str("path", spec.Output).
		Msgf("Wrote bindings for %d types", len(generated.Types))
	return nil
}
