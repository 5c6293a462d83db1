package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/DethRaid/SanityEngine/pkg/bindgen"
)

// FileName is the name of the config file searched for in the working directory and its parents
const FileName = "sanity-build.toml"

// BuildConfig configures the native build
type BuildConfig struct {
	Enabled      bool              `toml:"enabled" yaml:"enabled" default:"true"`
	Toolchain    string            `toml:"toolchain" yaml:"toolchain" usage:"Path to msbuild or any other native build tool"`
	Project      string            `toml:"project" yaml:"project" usage:"Project file passed to the toolchain"`
	Target       string            `toml:"target" yaml:"target" default:"Build"`
	TargetSwitch string            `toml:"target_switch" yaml:"target_switch" default:"/t:{target}" usage:"Template for the target argument"`
	FlagSwitch   string            `toml:"flag_switch" yaml:"flag_switch" default:"/p:{key}={value}" usage:"Template for each build flag"`
	Flags        map[string]string `toml:"flags" yaml:"flags"`
	Args         []string          `toml:"args" yaml:"args" usage:"Extra arguments appended to the command line"`
	Env          map[string]string `toml:"env" yaml:"env"`
	Timeout      time.Duration     `toml:"timeout" yaml:"timeout" default:"1h"`
	Before       []string          `toml:"before" yaml:"before"`
	After        []string          `toml:"after" yaml:"after"`
}

// StageConfig configures the artifact stager
type StageConfig struct {
	Enabled   bool     `toml:"enabled" yaml:"enabled" default:"true"`
	Source    string   `toml:"source" yaml:"source" usage:"Directory containing the native build output"`
	Dest      string   `toml:"dest" yaml:"dest" usage:"Runtime directory of the consuming application"`
	Artifacts []string `toml:"artifacts" yaml:"artifacts"`
	Before    []string `toml:"before" yaml:"before"`
	After     []string `toml:"after" yaml:"after"`
}

// BindingsConfig configures the binding generator
type BindingsConfig struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled" default:"true"`
	Header         string   `toml:"header" yaml:"header"`
	Args           []string `toml:"args" yaml:"args" usage:"Compiler arguments (-std=, -I, -D, -U)"`
	Types          []string `toml:"types" yaml:"types" usage:"Whitelisted types"`
	Output         string   `toml:"output" yaml:"output"`
	Language       string   `toml:"language" yaml:"language" default:"rust" usage:"Output language (rust or go)"`
	Package        string   `toml:"package" yaml:"package" usage:"Package name for go output"`
	StrictIncludes bool     `toml:"strict_includes" yaml:"strict_includes" default:"false"`
	Before         []string `toml:"before" yaml:"before"`
	After          []string `toml:"after" yaml:"after"`
}

// ShadersConfig configures the HLSL compilation
type ShadersConfig struct {
	Enabled   bool          `toml:"enabled" yaml:"enabled" default:"true"`
	Compiler  string        `toml:"compiler" yaml:"compiler" default:"dxc"`
	SourceDir string        `toml:"source_dir" yaml:"source_dir"`
	OutputDir string        `toml:"output_dir" yaml:"output_dir"`
	Timeout   time.Duration `toml:"timeout" yaml:"timeout" default:"10m"`
	Before    []string      `toml:"before" yaml:"before"`
	After     []string      `toml:"after" yaml:"after"`
}

// EditorConfig configures the editor compilation which isn't available, yet
type EditorConfig struct {
	Enabled bool     `toml:"enabled" yaml:"enabled" default:"true"`
	Before  []string `toml:"before" yaml:"before"`
	After   []string `toml:"after" yaml:"after"`
}

// Config describes all configuration options
type Config struct {
	WorkDir string            `toml:"work_dir" yaml:"work_dir" default:"." usage:"Working directory, relative to the config file"`
	Env     map[string]string `toml:"env" yaml:"env" usage:"Environment overrides for the toolchain and hooks"`
	Log     struct {
		Level string `toml:"level" yaml:"level" default:"info"`
		File  string `toml:"file" yaml:"file" usage:"Additionally write JSON events to this file"`
		JSON  bool   `toml:"json" yaml:"json" default:"false" usage:"Output JSON lines instead of pretty console messages"`
	} `toml:"log" yaml:"log"`
	Build    BuildConfig    `toml:"build" yaml:"build"`
	Stage    StageConfig    `toml:"stage" yaml:"stage"`
	Bindings BindingsConfig `toml:"bindings" yaml:"bindings"`
	Shaders  ShadersConfig  `toml:"shaders" yaml:"shaders"`
	Editor   EditorConfig   `toml:"editor" yaml:"editor"`
	History  struct {
		Enabled bool   `toml:"enabled" yaml:"enabled" default:"true"`
		Path    string `toml:"path" yaml:"path" default:".sanity-build/history.db"`
		Keep    int    `toml:"keep" yaml:"keep" default:"50" usage:"Number of runs to keep, 0 keeps everything"`
	} `toml:"history" yaml:"history"`
	Script struct {
		Path string `toml:"path" yaml:"path" usage:"Starlark profile script executed after loading the config"`
	} `toml:"script" yaml:"script"`

	file string
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// mapFields lists the options holding a table of arbitrary keys
var mapFields = []string{"env", "build.env", "build.flags"}

// tomlDecoder folds map tables back into aconfig's "key:value,key:value" notation. aconfigtoml
// flattens [build.flags] into one entry per key which aconfig would report as unknown fields.
type tomlDecoder struct {
	aconfig.FileDecoder
}

func (d tomlDecoder) DecodeFile(filename string) (map[string]interface{}, error) {
	fields, err := d.FileDecoder.DecodeFile(filename)
	if err != nil {
		return nil, err
	}

	for _, table := range mapFields {
		prefix := table + "."
		entries := []string{}
		for key, value := range fields {
			if !strings.HasPrefix(key, prefix) {
				continue
			}

			name := key[len(prefix):]
			text := fmt.Sprint(value)
			if strings.ContainsAny(name, ":,") {
				return nil, eris.Errorf("%s: invalid key %s, keys in [%s] must not contain ':' or ','", filename, name, table)
			}
			if strings.Contains(text, ",") {
				return nil, eris.Errorf("%s: the value of %s must not contain ','", filename, key)
			}

			entries = append(entries, name+":"+text)
			delete(fields, key)
		}

		if len(entries) > 0 {
			sort.Strings(entries)
			fields[table] = strings.Join(entries, ",")
		}
	}
	return fields, nil
}

// Loader initializes an empty config object and returns a new Loader for this object
func Loader(files ...string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "SANITY",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": tomlDecoder{aconfigtoml.New()},
		},
	})
}

// FindFile looks for sanity-build.toml in dir and its parents. An empty string is returned if
// there is none.
func FindFile(dir string) (string, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", dir)
	}

	for {
		cfgPath := filepath.Join(path, FileName)
		_, err := os.Stat(cfgPath)
		if err == nil {
			return cfgPath, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", cfgPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", nil
		}
		path = parent
	}
}

// Load reads the given config file (if any) and the SANITY_* environment variables. The working
// directory is made absolute relative to the config file.
func Load(file string) (*Config, error) {
	var files []string
	if file != "" {
		files = append(files, file)
	}

	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrapf(err, "failed to load configuration")
	}

	base, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "failed to retrieve the current working directory")
	}

	if file != "" {
		cfg.file, err = filepath.Abs(file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve %s", file)
		}
		base = filepath.Dir(cfg.file)
	}

	if !filepath.IsAbs(cfg.WorkDir) {
		cfg.WorkDir = filepath.Join(base, cfg.WorkDir)
	}
	cfg.WorkDir = filepath.Clean(cfg.WorkDir)

	if cfg.Env == nil {
		cfg.Env = map[string]string{}
	}
	if cfg.Build.Flags == nil {
		cfg.Build.Flags = map[string]string{}
	}

	return cfg, nil
}

// File returns the path of the loaded config file or an empty string
func (cfg *Config) File() string {
	return cfg.file
}

// Abs resolves path relative to the working directory
func (cfg *Config) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.WorkDir, path)
}

// Validate verifies that all config fields have valid values. If stage names are passed, only
// the sections of these stages are checked.
func (cfg *Config) Validate(stages ...string) error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf("invalid value for log.level: %s", cfg.Log.Level)
	}

	selected := func(stage string) bool {
		if !cfg.Enabled(stage) {
			return false
		}
		if len(stages) == 0 {
			return true
		}
		for _, name := range stages {
			if name == stage {
				return true
			}
		}
		return false
	}

	if selected("build") {
		if cfg.Build.Toolchain == "" {
			return eris.New("build.toolchain is required")
		}

		if cfg.Build.Target != "" && !strings.Contains(cfg.Build.TargetSwitch, "{target}") {
			return eris.Errorf("invalid value for build.target_switch: %s (must contain {target})", cfg.Build.TargetSwitch)
		}

		if !strings.Contains(cfg.Build.FlagSwitch, "{key}") {
			return eris.Errorf("invalid value for build.flag_switch: %s (must contain {key})", cfg.Build.FlagSwitch)
		}

		if cfg.Build.Timeout < 0 {
			return eris.New("build.timeout must not be negative")
		}
	}

	if selected("stage") && len(cfg.Stage.Artifacts) > 0 {
		if cfg.Stage.Source == "" || cfg.Stage.Dest == "" {
			return eris.New("stage.source and stage.dest are required to stage artifacts")
		}
	}

	if selected("bindings") {
		if cfg.Bindings.Output == "" {
			return eris.New("bindings.output is required")
		}

		if err := cfg.BindingSpec().Validate(); err != nil {
			return eris.Wrap(err, "invalid bindings section")
		}
	}

	if selected("shaders") && cfg.Shaders.SourceDir != "" {
		if cfg.Shaders.OutputDir == "" {
			return eris.New("shaders.output_dir is required when shaders.source_dir is set")
		}

		if cfg.Shaders.Timeout < 0 {
			return eris.New("shaders.timeout must not be negative")
		}
	}

	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return eris.New("history.path is required")
		}

		if cfg.History.Keep < 0 {
			return eris.New("history.keep must not be negative")
		}
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// BindingSpec returns the binding generator input described by the bindings section
func (cfg *Config) BindingSpec() bindgen.Spec {
	return bindgen.Spec{
		Header:         cfg.Abs(cfg.Bindings.Header),
		Args:           cfg.Bindings.Args,
		Types:          cfg.Bindings.Types,
		Output:         cfg.Abs(cfg.Bindings.Output),
		Language:       bindgen.Language(cfg.Bindings.Language),
		Package:        cfg.Bindings.Package,
		StrictIncludes: cfg.Bindings.StrictIncludes,
		BaseDir:        cfg.WorkDir,
	}
}

// Hooks returns the before and after commands configured for a stage
func (cfg *Config) Hooks(stage string) (before, after []string) {
	switch stage {
	case "build":
		return cfg.Build.Before, cfg.Build.After
	case "stage":
		return cfg.Stage.Before, cfg.Stage.After
	case "bindings":
		return cfg.Bindings.Before, cfg.Bindings.After
	case "shaders":
		return cfg.Shaders.Before, cfg.Shaders.After
	case "editor":
		return cfg.Editor.Before, cfg.Editor.After
	}
	return nil, nil
}

// Enabled reports whether a stage is switched on
func (cfg *Config) Enabled(stage string) bool {
	switch stage {
	case "build":
		return cfg.Build.Enabled
	case "stage":
		return cfg.Stage.Enabled
	case "bindings":
		return cfg.Bindings.Enabled
	case "shaders":
		return cfg.Shaders.Enabled
	case "editor":
		return cfg.Editor.Enabled
	}
	return false
}
