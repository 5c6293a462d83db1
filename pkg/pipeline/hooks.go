package pipeline

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/DethRaid/SanityEngine/pkg/posix"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

var defaultExecHandler = interp.DefaultExecHandler(2)

func execHandler(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)

	// always use our cross-platform implementation for these operations to make sure they
	// behave consistently
	handled, err := posix.Run(hc.Dir, args)
	if handled {
		if err != nil {
			fmt.Fprintf(hc.Stderr, "%s: %s\n", args[0], err)
			return interp.NewExitStatus(1)
		}
		return nil
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// Shell runs shell commands with the mvdan.cc/sh interpreter.
type Shell struct {
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Run parses and executes script. Like "sh -e", the first failing command ends the script.
func (s *Shell) Run(ctx context.Context, name, script string) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return eris.Wrapf(err, "failed to parse %s", name)
	}

	stdout, stderr := s.Stdout, s.Stderr
	if stdout == nil {
		stdout = ioutil.Discard
	}
	if stderr == nil {
		stderr = ioutil.Discard
	}

	runner, err := interp.New(
		interp.Dir(s.Dir),
		interp.Env(expand.ListEnviron(s.Env...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}
	for _, stmt := range file.Stmts {
		strBuffer.Reset()
		_ = printer.Print(&strBuffer, stmt)
		sblog.Log(ctx).Info().
			Bool("command", true).
			Msg(strBuffer.String())

		err = runner.Run(ctx, stmt)
		if err != nil {
			return eris.Wrapf(err, "command %q failed", strBuffer.String())
		}

		if runner.Exited() {
			return nil
		}
	}

	return nil
}

// runHooks executes each command in order and stops at the first failure.
func (s *Shell) runHooks(ctx context.Context, stage StageName, phase string, cmds []string) error {
	for idx, cmd := range cmds {
		name := fmt.Sprintf("%s.%s[%d]", stage, phase, idx)
		err := s.Run(ctx, name, cmd)
		if err != nil {
			return NewError(HookFailure, stage, eris.Wrapf(err, "%s hook failed", phase))
		}
	}
	return nil
}
