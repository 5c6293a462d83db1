package profile

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/DethRaid/SanityEngine/pkg/pipeline"
	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

func unpackStrings(fnName string, args starlark.Tuple) ([]string, error) {
	result := make([]string, len(args))
	for idx, arg := range args {
		value, ok := starlark.AsString(arg)
		if !ok {
			return nil, eris.Errorf("%s: for parameter %d: got %s, want string", fnName, idx+1, arg.Type())
		}
		result[idx] = value
	}
	return result, nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	logAt(thread, zerolog.InfoLevel, "%s", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	logAt(thread, zerolog.WarnLevel, "%s", message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	ctx.options[name] = Option{
		Default: defaultValue.GoString(),
		Help:    help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	value, ok := getCtx(thread).cfg.Env[key]
	if !ok {
		value = os.Getenv(key)
	}

	return starlark.String(value), nil
}

func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	getCtx(thread).cfg.Env[key] = value
	return starlark.True, nil
}

func prependPathDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pathDir string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &pathDir)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	path, ok := ctx.cfg.Env["PATH"]
	if !ok {
		path = os.Getenv("PATH")
	}

	ctx.cfg.Env["PATH"] = normalizePath(ctx, pathDir) + string(os.PathListSeparator) + path
	return starlark.String(ctx.cfg.Env["PATH"]), nil
}

func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) < 1 {
		return nil, eris.Errorf("%s: expects at least one argument", fn.Name())
	}

	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword argument %s", fn.Name(), kwargs[0][0])
	}

	parts, err := unpackStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	return starlark.String(normalizePath(getCtx(thread), parts...)), nil
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getCtx(thread), dirPath))
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(normalizePath(getCtx(thread), filePath))
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var yamlFile string
	var yamlKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &yamlFile, &yamlKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	yamlFile = normalizePath(ctx, yamlFile)

	doc, loaded := ctx.yamlCache[yamlFile]
	if !loaded {
		content, err := ioutil.ReadFile(yamlFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", yamlFile)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", yamlFile)
		}
		ctx.yamlCache[yamlFile] = doc
	}

	value := reflect.ValueOf(doc)
	for _, key := range strings.Split(yamlKey, ".") {
		if value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(key))
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= value.Len() {
				return defaultValue, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return defaultValue, nil
		default:
			return nil, eris.Errorf("%s: can't look up %s in a %v", fn.Name(), key, value.Kind())
		}
	}

	if !value.IsValid() || (value.Kind() == reflect.Interface && value.IsNil()) {
		return defaultValue, nil
	}

	return interfaceToStarlark(value.Interface())
}

// shellCommand turns a list of arguments into a shell command. Arguments containing special
// characters are single-quoted.
func shellCommand(parts []string) (string, error) {
	cmd := new(syntax.CallExpr)
	cmd.Args = make([]*syntax.Word, len(parts))
	for idx, arg := range parts {
		var wordPart syntax.WordPart
		if arg == "" || strings.ContainsAny(arg, " \t\n$'\"\\*?&|;<>()`#~") {
			if strings.Contains(arg, "'") {
				return "", eris.Errorf("argument %q contains a single quote", arg)
			}
			wordPart = &syntax.SglQuoted{Value: arg}
		} else {
			wordPart = &syntax.Lit{Value: arg}
		}

		cmd.Args[idx] = &syntax.Word{Parts: []syntax.WordPart{wordPart}}
	}

	strBuffer := strings.Builder{}
	err := syntax.NewPrinter(syntax.Minify(true)).Print(&strBuffer, cmd)
	if err != nil {
		return "", eris.Wrap(err, "failed to print command")
	}
	return strBuffer.String(), nil
}

func starExec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	var outputFormat string
	var showError bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &outputFormat, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if outputFormat == "" {
		outputFormat = "text"
	}

	if outputFormat != "text" && outputFormat != "json" {
		return nil, eris.Errorf("unsupported format %s", outputFormat)
	}

	var script string
	switch command := command.(type) {
	case starlark.String:
		script = command.GoString()
	case *starlark.List, starlark.Tuple:
		items := make(starlark.Tuple, 0)
		iter := command.(starlark.Iterable).Iterate()
		var item starlark.Value
		for iter.Next(&item) {
			items = append(items, item)
		}
		iter.Done()

		parts, err := unpackStrings(fn.Name(), items)
		if err != nil {
			return nil, err
		}

		script, err = shellCommand(parts)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("unexpected type %s for command parameter, only strings, lists and tuples are valid", command.Type())
	}

	ctx := getCtx(thread)
	outputBuffer := strings.Builder{}
	shell := &pipeline.Shell{
		Dir:    filepath.Dir(ctx.filepath),
		Env:    ctx.environ(),
		Stdout: &outputBuffer,
	}
	if showError {
		shell.Stderr = os.Stderr
	}

	err = shell.Run(ctx.ctx, fn.Name(), script)
	if err != nil {
		if showError {
			sblog.Log(ctx.ctx).Error().Err(err).Msg("shell error")
		}
		return starlark.False, nil
	}

	if outputFormat == "json" {
		var decoded interface{}
		err = json.Unmarshal([]byte(outputBuffer.String()), &decoded)
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse command output")
		}

		return interfaceToStarlark(decoded)
	}

	return starlark.String(outputBuffer.String()), nil
}

func starLoadVcvars(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	arch := "amd64"

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0, &arch)
	if err != nil {
		return nil, err
	}

	if runtime.GOOS != "windows" {
		return starlark.True, nil
	}

	ctx := getCtx(thread)

	vsWherePath := "C:\\Program Files (x86)\\Microsoft Visual Studio\\Installer\\vswhere.exe"
	cmd := exec.Command(vsWherePath, "-property", "installationPath", "-latest")
	output, err := cmd.Output()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to run %s", vsWherePath)
	}

	vsPath := strings.Trim(string(output), " \r\n")
	if vsPath == "" {
		return nil, eris.New("no Visual Studio installation found")
	}

	vcvarsall := filepath.Join(vsPath, "VC", "Auxiliary", "Build", "vcvarsall.bat")
	_, err = os.Stat(vcvarsall)
	if err != nil {
		return nil, eris.Wrap(err, "could not find vcvarsall.bat")
	}

	tmpDir, err := ioutil.TempDir("", "sanity-build")
	if err != nil {
		return nil, eris.Wrap(err, "could not create temporary directory")
	}
	defer os.RemoveAll(tmpDir)

	script := filepath.Join(tmpDir, "vchelper.bat")
	err = ioutil.WriteFile(script, []byte(`@echo off
call "`+vcvarsall+`" %*
echo SB_PATH=%PATH%
echo SB_INCLUDE=%INCLUDE%
echo SB_LIBPATH=%LIBPATH%
echo SB_LIB=%LIB%
`), 0700)
	if err != nil {
		return nil, eris.Wrap(err, "failed to write helper script")
	}

	cmd = exec.Command("cmd", "/C", script, arch)
	cmd.Env = ctx.environ()
	output, err = cmd.Output()
	if err != nil {
		return nil, eris.Wrap(err, "failed to run helper script")
	}

	for _, line := range strings.Split(string(output), "\r\n") {
		if strings.HasPrefix(line, "SB_") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) < 2 {
				sblog.Log(ctx.ctx).Error().Msgf("vchelper produced malformed line %s", line)
			} else {
				ctx.cfg.Env[parts[0][3:]] = parts[1]
			}
		}
	}

	return starlark.True, nil
}

func setToolchain(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	// plain names are looked up in PATH
	if strings.ContainsAny(path, `/\`) {
		path = normalizePath(ctx, path)
	}
	ctx.cfg.Build.Toolchain = path
	return starlark.None, nil
}

func buildFlag(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key, value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	getCtx(thread).cfg.Build.Flags[key] = value
	return starlark.None, nil
}

func buildArg(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	values, err := unpackStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	cfg := getCtx(thread).cfg
	cfg.Build.Args = append(cfg.Build.Args, values...)
	return starlark.None, nil
}

func artifact(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	values, err := unpackStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	cfg := getCtx(thread).cfg
	cfg.Stage.Artifacts = append(cfg.Stage.Artifacts, values...)
	return starlark.None, nil
}

func clangArg(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	values, err := unpackStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	cfg := getCtx(thread).cfg
	cfg.Bindings.Args = append(cfg.Bindings.Args, values...)
	return starlark.None, nil
}

func define(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name, &value)
	if err != nil {
		return nil, err
	}

	arg := "-D" + name
	switch value := value.(type) {
	case starlark.NoneType:
	case starlark.String:
		arg += "=" + value.GoString()
	case starlark.Int:
		arg += "=" + value.String()
	case starlark.Bool:
		if value {
			arg += "=1"
		} else {
			arg += "=0"
		}
	default:
		return nil, eris.Errorf("%s: unsupported value type %s", fn.Name(), value.Type())
	}

	cfg := getCtx(thread).cfg
	cfg.Bindings.Args = append(cfg.Bindings.Args, arg)
	return starlark.None, nil
}

func includeDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &path)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	ctx.cfg.Bindings.Args = append(ctx.cfg.Bindings.Args, "-I"+normalizePath(ctx, path))
	return starlark.None, nil
}

func whitelistType(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	values, err := unpackStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	cfg := getCtx(thread).cfg
	cfg.Bindings.Types = append(cfg.Bindings.Types, values...)
	return starlark.None, nil
}

func interfaceToStarlark(value interface{}) (starlark.Value, error) {
	// handle a few simple and common cases first
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float64:
		if value == float64(int64(value)) {
			return starlark.MakeInt64(int64(value)), nil
		}
		return starlark.Float(value), nil
	}

	refValue := reflect.ValueOf(value)
	switch refValue.Kind() {
	case reflect.Slice, reflect.Array:
		list := make([]starlark.Value, refValue.Len())
		for idx := 0; idx < refValue.Len(); idx++ {
			item, err := interfaceToStarlark(refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
			list[idx] = item
		}

		return starlark.NewList(list), nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := interfaceToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			value, err := interfaceToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(key, value)
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %T", value)
}
