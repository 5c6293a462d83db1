package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleConfig = `work_dir = ".."

[env]
VCPKG_ROOT = "C:/vcpkg"

[log]
level = "debug"

[build]
toolchain = "msbuild"
project = "SanityEngine.sln"
target_switch = "-target:{target}"
args = ["/maxCpuCount:20"]
timeout = "45m"
before = ["mkdir -p x64/Debug"]

[build.flags]
Configuration = "Debug"
Platform = "x64"

[stage]
source = "x64/Debug"
dest = "sanity_editor/target/debug"
artifacts = ["glfw3.dll", "zlibd1.dll"]

[bindings]
header = "SanityEngine/src/sanity_engine.hpp"
args = ["-std=c++20", "-DWIN32"]
types = ["SanityEngine"]
output = "sanity_editor/generated_files/sanity/engine.rs"

[shaders]
enabled = false

[history]
keep = 10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "tools")
	if err := os.MkdirAll(dir, 0770); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	root := filepath.Dir(filepath.Dir(path))
	if cfg.WorkDir != root {
		t.Errorf("expected work dir %s, got %s", root, cfg.WorkDir)
	}
	if cfg.File() != path {
		t.Errorf("expected file %s, got %s", path, cfg.File())
	}

	if cfg.LogLevel() != zerolog.DebugLevel {
		t.Errorf("unexpected log level %s", cfg.LogLevel())
	}

	if cfg.Env["VCPKG_ROOT"] != "C:/vcpkg" {
		t.Errorf("unexpected env %v", cfg.Env)
	}

	b := cfg.Build
	if !b.Enabled || b.Toolchain != "msbuild" || b.Target != "Build" || b.TargetSwitch != "-target:{target}" {
		t.Errorf("unexpected build section %+v", b)
	}
	if b.FlagSwitch != "/p:{key}={value}" {
		t.Errorf("flag_switch default not applied: %s", b.FlagSwitch)
	}
	if b.Flags["Configuration"] != "Debug" || b.Flags["Platform"] != "x64" {
		t.Errorf("unexpected flags %v", b.Flags)
	}
	if b.Timeout != 45*time.Minute {
		t.Errorf("unexpected timeout %s", b.Timeout)
	}
	if len(b.Before) != 1 || len(b.Args) != 1 {
		t.Errorf("unexpected lists %v %v", b.Before, b.Args)
	}

	if len(cfg.Stage.Artifacts) != 2 || !cfg.Stage.Enabled {
		t.Errorf("unexpected stage section %+v", cfg.Stage)
	}

	if cfg.Bindings.Language != "rust" || cfg.Bindings.StrictIncludes {
		t.Errorf("binding defaults not applied: %+v", cfg.Bindings)
	}

	if cfg.Shaders.Enabled || cfg.Shaders.Compiler != "dxc" || cfg.Shaders.Timeout != 10*time.Minute {
		t.Errorf("unexpected shaders section %+v", cfg.Shaders)
	}

	if !cfg.Editor.Enabled || !cfg.History.Enabled || cfg.History.Keep != 10 || cfg.History.Path != ".sanity-build/history.db" {
		t.Errorf("unexpected editor/history sections %+v %+v", cfg.Editor, cfg.History)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	os.Setenv("SANITY_BUILD_TARGET", "Rebuild")
	defer os.Unsetenv("SANITY_BUILD_TARGET")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Build.Target != "Rebuild" {
		t.Errorf("expected the environment to override the target, got %s", cfg.Build.Target)
	}
}

func TestLoadTables(t *testing.T) {
	path := writeConfig(t, `
[env]
VCPKG_ROOT = "C:/vcpkg"
VCPKG_DEFAULT_TRIPLET = "x64-windows"

[build]
toolchain = "msbuild"

[build.env]
UseMultiToolTask = "true"

[build.flags]
VcpkgEnableManifest = "true"
Configuration = "Debug"
Platform = "x64"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	expected := map[string]string{"VcpkgEnableManifest": "true", "Configuration": "Debug", "Platform": "x64"}
	if len(cfg.Build.Flags) != len(expected) {
		t.Errorf("unexpected flags %v", cfg.Build.Flags)
	}
	for key, value := range expected {
		if cfg.Build.Flags[key] != value {
			t.Errorf("%s: expected %q, got %q", key, value, cfg.Build.Flags[key])
		}
	}

	if cfg.Env["VCPKG_ROOT"] != "C:/vcpkg" || cfg.Env["VCPKG_DEFAULT_TRIPLET"] != "x64-windows" {
		t.Errorf("unexpected env %v", cfg.Env)
	}
	if len(cfg.Build.Env) != 1 || cfg.Build.Env["UseMultiToolTask"] != "true" {
		t.Errorf("unexpected build env %v", cfg.Build.Env)
	}

	_, err = Load(writeConfig(t, "[build.flags]\nDefines = \"A,B\"\n"))
	if err == nil || !strings.Contains(err.Error(), "build.flags.Defines") {
		t.Errorf("expected an error for a comma in a table value, got %v", err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "..", FileName))
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Build.Toolchain != "msbuild" || cfg.Build.Flags["VcpkgEnableManifest"] != "true" || cfg.Build.Flags["Platform"] != "x64" {
		t.Errorf("unexpected build section %+v", cfg.Build)
	}
	if len(cfg.Stage.Artifacts) != 4 || len(cfg.Bindings.Types) != 1 {
		t.Errorf("unexpected stage/bindings sections %+v %+v", cfg.Stage, cfg.Bindings)
	}
	if cfg.WorkDir != filepath.Dir(path) {
		t.Errorf("unexpected work dir %s", cfg.WorkDir)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorkDir != wd {
		t.Errorf("expected the current directory, got %s", cfg.WorkDir)
	}

	// nothing configured means there's nothing to build
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "build.toolchain") {
		t.Errorf("expected a missing toolchain, got %v", err)
	}
}

func TestFindFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	nested := filepath.Join(filepath.Dir(path), "a", "b")
	if err := os.MkdirAll(nested, 0770); err != nil {
		t.Fatal(err)
	}

	found, err := FindFile(nested)
	if err != nil {
		t.Fatal(err)
	}
	if found != path {
		t.Errorf("expected %s, got %s", path, found)
	}

	found, err = FindFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if found != "" {
		// a sanity-build.toml above the temp directory would be odd but possible
		t.Logf("found unrelated config %s", found)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		message string
	}{
		{"valid", func(cfg *Config) {}, ""},
		{"log level", func(cfg *Config) { cfg.Log.Level = "loud" }, "log.level"},
		{"target switch", func(cfg *Config) { cfg.Build.TargetSwitch = "/t:Build" }, "{target}"},
		{"flag switch", func(cfg *Config) { cfg.Build.FlagSwitch = "/p" }, "{key}"},
		{"stage paths", func(cfg *Config) { cfg.Stage.Dest = "" }, "stage.dest"},
		{"disabled stage", func(cfg *Config) { cfg.Stage.Enabled = false; cfg.Stage.Dest = "" }, ""},
		{"binding language", func(cfg *Config) { cfg.Bindings.Language = "zig" }, "unsupported output language"},
		{"go package", func(cfg *Config) { cfg.Bindings.Language = "go" }, "package"},
		{"binding types", func(cfg *Config) { cfg.Bindings.Types = nil }, "whitelisted"},
		{"binding args", func(cfg *Config) { cfg.Bindings.Args = []string{"-fno-exceptions"} }, ""},
		{"shader output", func(cfg *Config) { cfg.Shaders.Enabled = true; cfg.Shaders.SourceDir = "shaders" }, "shaders.output_dir"},
		{"history keep", func(cfg *Config) { cfg.History.Keep = -1 }, "history.keep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleConfig))
			if err != nil {
				t.Fatal(err)
			}

			tt.modify(cfg)
			err = cfg.Validate()
			if tt.message == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected an error containing %q, got %v", tt.message, err)
			}
		})
	}
}

func TestValidateSelectedStages(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Build.Toolchain = ""
	cfg.Bindings.Output = ""

	if err := cfg.Validate("stage"); err != nil {
		t.Errorf("the stage section is valid, got %v", err)
	}

	if err := cfg.Validate("stage", "bindings"); err == nil || !strings.Contains(err.Error(), "bindings.output") {
		t.Errorf("expected a bindings error, got %v", err)
	}

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "build.toolchain") {
		t.Errorf("expected a build error, got %v", err)
	}

	cfg.Log.Level = "loud"
	if err := cfg.Validate("stage"); err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Errorf("the log level has to be checked for every stage, got %v", err)
	}
}

func TestAbsAndBindingSpec(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Abs("") != "" {
		t.Error("empty paths must stay empty")
	}

	abs := filepath.Join(t.TempDir(), "x")
	if cfg.Abs(abs) != abs {
		t.Error("absolute paths must not change")
	}

	spec := cfg.BindingSpec()
	if spec.Header != filepath.Join(cfg.WorkDir, "SanityEngine", "src", "sanity_engine.hpp") {
		t.Errorf("header wasn't resolved against the working directory: %s", spec.Header)
	}
	if spec.BaseDir != cfg.WorkDir || string(spec.Language) != "rust" {
		t.Errorf("unexpected spec %+v", spec)
	}

	before, after := cfg.Hooks("build")
	if len(before) != 1 || len(after) != 0 {
		t.Errorf("unexpected hooks %v %v", before, after)
	}
	if cfg.Enabled("shaders") || !cfg.Enabled("bindings") || cfg.Enabled("package") {
		t.Error("unexpected stage switches")
	}
}
