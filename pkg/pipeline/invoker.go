package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

// Invoke launches the toolchain described by cfg and blocks until it exits. The captured output is
// returned in both cases. If live is not nil, the output is also streamed to it.
func Invoke(ctx context.Context, cfg BuildConfiguration, live io.Writer) (string, error) {
	if err := checkWorkDir(cfg.WorkDir); err != nil {
		return "", NewError(ToolchainInvocationError, StageBuild, err)
	}

	toolchain, err := lookTool(cfg.Toolchain, cfg.WorkDir)
	if err != nil {
		return "", NewError(ToolchainInvocationError, StageBuild, err)
	}

	args := cfg.Arguments()
	sblog.Log(ctx).Info().
		Str("toolchain", toolchain).
		Strs("args", args).
		Msg("Starting native build")

	output, started, err := execTool(ctx, toolchain, args, cfg.WorkDir, cfg.Env, cfg.Timeout, live)
	if err != nil {
		if !started {
			return output, NewError(ToolchainInvocationError, StageBuild, err)
		}

		pErr := NewError(BuildFailure, StageBuild, err)
		pErr.Output = output
		return output, pErr
	}

	sblog.Log(ctx).Debug().Str("output", output).Msg("Native build finished")
	return output, nil
}

func checkWorkDir(dir string) error {
	if dir == "" {
		return eris.New("no working directory configured")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return eris.Wrapf(err, "working directory %s is not accessible", dir)
	}

	if !info.IsDir() {
		return eris.Errorf("working directory %s is not a directory", dir)
	}

	hdl, err := os.Open(dir)
	if err != nil {
		return eris.Wrapf(err, "working directory %s is not readable", dir)
	}
	return hdl.Close()
}

// lookTool resolves a tool name through PATH. Relative paths are resolved against dir.
func lookTool(name, dir string) (string, error) {
	if name == "" {
		return "", eris.New("no tool configured")
	}

	if !filepath.IsAbs(name) && strings.ContainsAny(name, `/\`) {
		name = filepath.Join(dir, name)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", eris.Wrapf(err, "could not find %s", name)
	}
	return path, nil
}

// execTool runs a child process and captures its combined output. started is false if the process
// couldn't be launched at all.
func execTool(ctx context.Context, path string, args []string, dir string, env []string, timeout time.Duration, live io.Writer) (output string, started bool, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var buffer bytes.Buffer
	var out io.Writer = &buffer
	if live != nil {
		out = io.MultiWriter(&buffer, live)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return "", false, eris.Wrapf(err, "failed to launch %s", path)
	}

	err = cmd.Wait()
	if err != nil {
		name := filepath.Base(path)
		switch ctx.Err() {
		case nil:
			err = eris.Wrapf(err, "%s failed", name)
		case context.DeadlineExceeded:
			err = eris.Errorf("%s was killed after exceeding the timeout of %s", name, timeout)
		default:
			err = eris.Errorf("%s was cancelled", name)
		}
	}

	return buffer.String(), true, err
}
