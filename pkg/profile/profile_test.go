package profile

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/DethRaid/SanityEngine/pkg/config"
	"github.com/DethRaid/SanityEngine/pkg/pipeline"
)

func writeScript(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "pipeline.star")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{WorkDir: t.TempDir()}
	cfg.Build.Flags = map[string]string{"Configuration": "Debug"}
	return cfg
}

func TestApplyMutators(t *testing.T) {
	cfg := newConfig(t)
	path := writeScript(t, cfg.WorkDir, `
config = option("configuration", "Debug", help = "Debug or Release")
vcpkg = option("vcpkg_root", "C:/vcpkg")

toolchain("msbuild")
build_flag("Configuration", config)
build_flag("VcpkgEnableManifest", "true")
build_arg("/maxCpuCount:20")

if config == "Debug":
    artifact("assimp-vc142-mtd.dll", "zlibd1.dll")
else:
    artifact("assimp-vc142-mt.dll", "zlib1.dll")
artifact("glfw3.dll")

clang_arg("-std=c++20")
include_dir("//RexCore/include")
define("WIN32")
define("RX_API", "RX_EXPORT")
define("TRACY_ENABLE", True)
whitelist_type("SanityEngine")

setenv("VCPKG_ROOT", vcpkg)
`)

	declared, err := Apply(context.Background(), cfg, path, map[string]string{"configuration": "Release"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(declared) != 2 || declared["configuration"].Help != "Debug or Release" || declared["vcpkg_root"].Default != "C:/vcpkg" {
		t.Errorf("unexpected options %+v", declared)
	}

	if cfg.Build.Toolchain != "msbuild" {
		t.Errorf("unexpected toolchain %s", cfg.Build.Toolchain)
	}
	if cfg.Build.Flags["Configuration"] != "Release" || cfg.Build.Flags["VcpkgEnableManifest"] != "true" {
		t.Errorf("unexpected flags %v", cfg.Build.Flags)
	}
	if strings.Join(cfg.Build.Args, " ") != "/maxCpuCount:20" {
		t.Errorf("unexpected args %v", cfg.Build.Args)
	}
	if strings.Join(cfg.Stage.Artifacts, ",") != "assimp-vc142-mt.dll,zlib1.dll,glfw3.dll" {
		t.Errorf("unexpected artifacts %v", cfg.Stage.Artifacts)
	}

	expected := []string{
		"-std=c++20",
		"-I" + filepath.Join(cfg.WorkDir, "RexCore", "include"),
		"-DWIN32",
		"-DRX_API=RX_EXPORT",
		"-DTRACY_ENABLE=1",
	}
	if strings.Join(cfg.Bindings.Args, "|") != strings.Join(expected, "|") {
		t.Errorf("expected %v, got %v", expected, cfg.Bindings.Args)
	}
	if len(cfg.Bindings.Types) != 1 || cfg.Bindings.Types[0] != "SanityEngine" {
		t.Errorf("unexpected types %v", cfg.Bindings.Types)
	}

	if cfg.Env["VCPKG_ROOT"] != "C:/vcpkg" {
		t.Errorf("unexpected env %v", cfg.Env)
	}
}

func TestApplyEnvironment(t *testing.T) {
	cfg := newConfig(t)
	tools := filepath.Join(cfg.WorkDir, "tools")
	if err := os.Mkdir(tools, 0770); err != nil {
		t.Fatal(err)
	}

	path := writeScript(t, cfg.WorkDir, `
setenv("SANITY_PROFILE_TEST", "yes")
if getenv("SANITY_PROFILE_TEST") != "yes":
    error("setenv didn't work")

prepend_path("tools")
if not isdir("tools") or isfile("tools") or not isfile("pipeline.star"):
    error("isdir/isfile are broken")

if resolve_path("//tools", "dxc") != resolve_path("tools/dxc"):
    error("resolve_path is broken")

if OS != "windows" and not load_vcvars():
    error("load_vcvars failed")
`)

	_, err := Apply(context.Background(), cfg, path, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !strings.HasPrefix(cfg.Env["PATH"], tools+string(os.PathListSeparator)) {
		t.Errorf("tools wasn't prepended to PATH: %s", cfg.Env["PATH"])
	}
}

func TestApplyReadYaml(t *testing.T) {
	cfg := newConfig(t)
	err := os.WriteFile(filepath.Join(cfg.WorkDir, "vcpkg.yml"), []byte(`
vcpkg:
  root: C:/vcpkg
  triplets:
    - x64-windows
    - x64-windows-static
  jobs: 8
  manifest: true
`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	path := writeScript(t, cfg.WorkDir, `
build_flag("root", read_yaml("vcpkg.yml", "vcpkg.root"))
build_flag("triplet", read_yaml("vcpkg.yml", "vcpkg.triplets.1"))
build_flag("jobs", str(read_yaml("vcpkg.yml", "vcpkg.jobs")))
build_flag("manifest", str(read_yaml("vcpkg.yml", "vcpkg.manifest")))
build_flag("missing", read_yaml("vcpkg.yml", "vcpkg.overlay", "none"))
build_flag("out_of_range", read_yaml("vcpkg.yml", "vcpkg.triplets.5", "none"))
`)

	_, err = Apply(context.Background(), cfg, path, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	expected := map[string]string{
		"root":         "C:/vcpkg",
		"triplet":      "x64-windows-static",
		"jobs":         "8",
		"manifest":     "True",
		"missing":      "none",
		"out_of_range": "none",
	}
	for key, value := range expected {
		if cfg.Build.Flags[key] != value {
			t.Errorf("%s: expected %q, got %q", key, value, cfg.Build.Flags[key])
		}
	}
}

func TestApplyExecute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell features")
	}

	cfg := newConfig(t)
	path := writeScript(t, cfg.WorkDir, `
setenv("GREETING", "hello")
out = execute("echo $GREETING")
if out != "hello\n":
    error("unexpected output %r" % out)

meta = execute("echo '{\"version\": \"1.2\", \"jobs\": 4}'", format = "json")
if meta["version"] != "1.2" or meta["jobs"] != 4:
    error("unexpected json %r" % meta)

if execute("false") != False:
    error("a failing command should return False")

quoted = execute(["echo", "two words", "$HOME"])
if quoted != "two words $HOME\n":
    error("unexpected quoting %r" % quoted)
`)

	_, err := Apply(context.Background(), cfg, path, nil)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		options map[string]string
		message string
	}{
		{"error builtin", `error("vcpkg not found")`, nil, "vcpkg not found"},
		{"syntax", "toolchain(", nil, "pipeline.star"},
		{"unknown option", `option("configuration", "Debug")`, map[string]string{"config": "Release"}, "config"},
		{"wrong type", `artifact(42)`, nil, "want string"},
		{"bad format", `execute("true", format = "xml")`, nil, "unsupported format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t)
			path := writeScript(t, cfg.WorkDir, tt.script)

			_, err := Apply(context.Background(), cfg, path, tt.options)
			if err == nil {
				t.Fatal("expected an error")
			}

			if pipeline.KindOf(err) != pipeline.ConfigError {
				t.Errorf("expected a ConfigError, got %v", err)
			}

			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected %q in %q", tt.message, err.Error())
			}
		})
	}

	_, err := Apply(context.Background(), newConfig(t), filepath.Join(t.TempDir(), "missing.star"), nil)
	if pipeline.KindOf(err) != pipeline.ConfigError {
		t.Errorf("expected a ConfigError for a missing script, got %v", err)
	}
}

func TestParseOptions(t *testing.T) {
	options, err := ParseOptions([]string{"configuration=Release", "defines=A=1"})
	if err != nil {
		t.Fatal(err)
	}

	if options["configuration"] != "Release" || options["defines"] != "A=1" {
		t.Errorf("unexpected options %v", options)
	}

	_, err = ParseOptions([]string{"Release"})
	if err == nil {
		t.Error("expected an error for an argument without =")
	}
}
