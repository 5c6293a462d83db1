// Package profile runs Starlark scripts that adjust the loaded configuration to the current machine,
// e.g. by locating vcpkg or importing the MSVC developer environment.
package profile

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/DethRaid/SanityEngine/pkg/config"
	"github.com/DethRaid/SanityEngine/pkg/pipeline"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

func init() {
	// allows if and for statements outside of functions
	resolve.AllowGlobalReassign = true
}

// Option is a script parameter declared with option()
type Option struct {
	Default string
	Help    string
}

type scriptCtx struct {
	ctx          context.Context
	cfg          *config.Config
	filepath     string
	options      map[string]Option
	optionValues map[string]string
	yamlCache    map[string]interface{}
}

func getCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

// normalizePath resolves paths relative to the script. A leading // refers to the working directory.
func normalizePath(ctx *scriptCtx, pathList ...string) string {
	result := filepath.Dir(ctx.filepath)

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(ctx.cfg.WorkDir, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

func simplifyPath(ctx *scriptCtx, path string) string {
	rel, err := filepath.Rel(ctx.cfg.WorkDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "//" + filepath.ToSlash(rel)
}

func (ctx *scriptCtx) environ() []string {
	return pipeline.Environ(os.Environ(), ctx.cfg.Env)
}

func logAt(thread *starlark.Thread, level zerolog.Level, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos
	path := simplifyPath(ctx, ctx.filepath)

	sblog.Log(ctx.ctx).WithLevel(level).
		Msgf("%s:%d:%d: %s", path, pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// Apply executes the script at path against cfg. options holds the key=value pairs passed on the
// command line. The options declared by the script are returned. All failures are reported as
// ConfigError.
func Apply(ctx context.Context, cfg *config.Config, path string, options map[string]string) (map[string]Option, error) {
	declared, err := apply(ctx, cfg, path, options)
	if err != nil {
		return nil, pipeline.NewError(pipeline.ConfigError, "", err)
	}
	return declared, nil
}

func apply(ctx context.Context, cfg *config.Config, path string, options map[string]string) (map[string]Option, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", path)
	}

	if cfg.Env == nil {
		cfg.Env = map[string]string{}
	}
	if cfg.Build.Flags == nil {
		cfg.Build.Flags = map[string]string{}
	}
	if options == nil {
		options = map[string]string{}
	}

	builtins := starlark.StringDict{
		"OS":             starlark.String(runtime.GOOS),
		"ARCH":           starlark.String(runtime.GOARCH),
		"info":           starlark.NewBuiltin("info", starInfo),
		"warn":           starlark.NewBuiltin("warn", starWarn),
		"error":          starlark.NewBuiltin("error", starError),
		"option":         starlark.NewBuiltin("option", option),
		"getenv":         starlark.NewBuiltin("getenv", getenv),
		"setenv":         starlark.NewBuiltin("setenv", setenv),
		"prepend_path":   starlark.NewBuiltin("prepend_path", prependPathDir),
		"isfile":         starlark.NewBuiltin("isfile", starIsfile),
		"isdir":          starlark.NewBuiltin("isdir", starIsdir),
		"resolve_path":   starlark.NewBuiltin("resolve_path", resolvePath),
		"read_yaml":      starlark.NewBuiltin("read_yaml", readYaml),
		"execute":        starlark.NewBuiltin("execute", starExec),
		"load_vcvars":    starlark.NewBuiltin("load_vcvars", starLoadVcvars),
		"toolchain":      starlark.NewBuiltin("toolchain", setToolchain),
		"build_flag":     starlark.NewBuiltin("build_flag", buildFlag),
		"build_arg":      starlark.NewBuiltin("build_arg", buildArg),
		"artifact":       starlark.NewBuiltin("artifact", artifact),
		"clang_arg":      starlark.NewBuiltin("clang_arg", clangArg),
		"define":         starlark.NewBuiltin("define", define),
		"include_dir":    starlark.NewBuiltin("include_dir", includeDir),
		"whitelist_type": starlark.NewBuiltin("whitelist_type", whitelistType),
	}

	threadCtx := &scriptCtx{
		ctx:          ctx,
		cfg:          cfg,
		filepath:     path,
		options:      map[string]Option{},
		optionValues: options,
		yamlCache:    map[string]interface{}{},
	}
	thread := &starlark.Thread{
		Name: "profile",
		Print: func(thread *starlark.Thread, msg string) {
			sblog.Log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal("scriptCtx", threadCtx)

	script, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	_, err = starlark.ExecFile(thread, simplifyPath(threadCtx, path), script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", simplifyPath(threadCtx, path), evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", simplifyPath(threadCtx, path))
	}

	var unknown []string
	for name := range options {
		if _, ok := threadCtx.options[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, eris.Errorf("%s doesn't declare the option(s) %s", simplifyPath(threadCtx, path), strings.Join(unknown, ", "))
	}

	return threadCtx.options, nil
}

// ParseOptions converts key=value arguments into an option map
func ParseOptions(args []string) (map[string]string, error) {
	options := make(map[string]string, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) < 2 || parts[0] == "" {
			return nil, eris.Errorf("invalid option %q, expected key=value", arg)
		}
		options[parts[0]] = parts[1]
	}
	return options, nil
}
