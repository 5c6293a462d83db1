package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

// ShaderConfig describes where HLSL sources are found and where the DXIL output goes.
type ShaderConfig struct {
	Compiler  string
	SourceDir string
	OutputDir string
	WorkDir   string
	Env       []string
	// Timeout applies to each compiler invocation
	Timeout time.Duration
}

var shaderProfiles = []struct {
	suffix  string
	profile string
}{
	{".pixel.hlsl", "ps_6_5"},
	{".vertex.hlsl", "vs_6_5"},
	{".compute.hlsl", "cs_6_5"},
}

func shaderProfile(path string) string {
	for _, item := range shaderProfiles {
		if strings.HasSuffix(path, item.suffix) {
			return item.profile
		}
	}
	return ""
}

func findShaders(dir string) ([]string, error) {
	var result []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && strings.HasSuffix(path, ".hlsl") {
			result = append(result, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to search %s for shaders", dir)
	}
	return result, nil
}

// CompileShaders compiles every HLSL file below cfg.SourceDir to DXIL. All shaders are attempted
// before a failure is reported.
func CompileShaders(ctx context.Context, cfg ShaderConfig, live io.Writer) (warnings []string, output string, err error) {
	shaders, err := findShaders(cfg.SourceDir)
	if err != nil {
		return nil, "", NewError(ShaderCompileError, StageShaders, err)
	}

	if len(shaders) == 0 {
		return []string{"no shaders found in " + cfg.SourceDir}, "", nil
	}

	compiler, err := lookTool(cfg.Compiler, cfg.WorkDir)
	if err != nil {
		return nil, "", NewError(ShaderCompileError, StageShaders, err)
	}

	err = os.MkdirAll(cfg.OutputDir, 0770)
	if err != nil {
		return nil, "", NewError(ShaderCompileError, StageShaders, eris.Wrapf(err, "failed to create %s", cfg.OutputDir))
	}

	var (
		allOutput strings.Builder
		failed    []string
	)
	for _, path := range shaders {
		if ctx.Err() != nil {
			break
		}

		profile := shaderProfile(path)
		if profile == "" {
			msg := "could not determine the shading stage of " + path + ", skipping"
			sblog.Log(ctx).Warn().Str("path", path).Msg(msg)
			warnings = append(warnings, msg)
			continue
		}

		dest := filepath.Join(cfg.OutputDir, strings.TrimSuffix(filepath.Base(path), ".hlsl"))
		args := []string{"-E", "main", "-T", profile, path, "-Fo", dest}

		sblog.Log(ctx).Info().Str("path", path).Msgf("Compiling %s", path)
		out, _, err := execTool(ctx, compiler, args, cfg.WorkDir, cfg.Env, cfg.Timeout, live)
		allOutput.WriteString(out)

		if err != nil {
			if ctx.Err() != nil {
				break
			}

			sblog.Log(ctx).Error().Err(err).Str("path", path).Msgf("Could not compile %s", path)
			failed = append(failed, path)
		}
	}

	output = allOutput.String()
	if ctx.Err() != nil {
		pErr := NewError(Cancelled, StageShaders, eris.Wrap(ctx.Err(), "shader compilation was cancelled"))
		pErr.Output = output
		return warnings, output, pErr
	}

	if len(failed) > 0 {
		pErr := NewError(ShaderCompileError, StageShaders, eris.Errorf("failed to compile %s", strings.Join(failed, ", ")))
		pErr.Output = output
		return warnings, output, pErr
	}

	return warnings, output, nil
}
