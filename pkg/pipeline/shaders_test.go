package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeDxc writes "<profile> <source>" to the -Fo path and fails for sources containing "broken"
const fakeDxc = `profile=""
src=""
out=""
while [ $# -gt 0 ]; do
	case "$1" in
		-E) shift ;;
		-T) shift; profile="$1" ;;
		-Fo) shift; out="$1" ;;
		*) src="$1" ;;
	esac
	shift
done
case "$src" in
	*broken*) echo "$src:1:1: error: unexpected token" >&2; exit 1 ;;
esac
echo "$profile $src" > "$out"`

func TestCompileShaders(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "dxil")
	writeFile(t, filepath.Join(src, "forward.pixel.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "nested", "fullscreen.vertex.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "cull.compute.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "common.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "README.md"), "", 0644)

	warnings, _, err := CompileShaders(context.Background(), ShaderConfig{
		Compiler:  fakeTool(t, t.TempDir(), "dxc", fakeDxc),
		SourceDir: src,
		OutputDir: out,
		WorkDir:   src,
	}, nil)
	if err != nil {
		t.Fatalf("CompileShaders failed: %v", err)
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "common.hlsl") {
		t.Errorf("expected a warning about common.hlsl, got %v", warnings)
	}

	expected := map[string]string{
		"forward.pixel":     "ps_6_5",
		"fullscreen.vertex": "vs_6_5",
		"cull.compute":      "cs_6_5",
	}
	for name, profile := range expected {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Errorf("%s wasn't compiled: %v", name, err)
			continue
		}

		if !strings.HasPrefix(string(data), profile+" ") {
			t.Errorf("%s: expected profile %s, got %q", name, profile, data)
		}
	}

	if exists(filepath.Join(out, "common")) {
		t.Error("common.hlsl shouldn't have been compiled")
	}
}

func TestCompileShadersReportsAllFailures(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(src, "a_broken.pixel.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "b.pixel.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "c_broken.vertex.hlsl"), "", 0644)

	_, output, err := CompileShaders(context.Background(), ShaderConfig{
		Compiler:  fakeTool(t, t.TempDir(), "dxc", fakeDxc),
		SourceDir: src,
		OutputDir: out,
		WorkDir:   src,
	}, nil)
	if KindOf(err) != ShaderCompileError {
		t.Fatalf("expected a ShaderCompileError, got %v", err)
	}

	for _, name := range []string{"a_broken.pixel.hlsl", "c_broken.vertex.hlsl"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q doesn't mention %s", err, name)
		}
	}

	if !strings.Contains(output, "unexpected token") {
		t.Errorf("compiler output is missing: %q", output)
	}

	// failures don't stop the remaining shaders
	if !exists(filepath.Join(out, "b.pixel")) {
		t.Error("b.pixel.hlsl wasn't compiled")
	}
}

func TestCompileShadersWithoutShaders(t *testing.T) {
	warnings, _, err := CompileShaders(context.Background(), ShaderConfig{
		Compiler:  "sanity-dxc-does-not-exist",
		SourceDir: t.TempDir(),
		OutputDir: t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(warnings) != 1 || !strings.Contains(warnings[0], "no shaders found") {
		t.Errorf("unexpected warnings %v", warnings)
	}
}

func TestCompileShadersMissingCompiler(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.pixel.hlsl"), "", 0644)

	_, _, err := CompileShaders(context.Background(), ShaderConfig{
		Compiler:  "sanity-dxc-does-not-exist",
		SourceDir: src,
		OutputDir: t.TempDir(),
		WorkDir:   src,
	}, nil)
	if KindOf(err) != ShaderCompileError {
		t.Errorf("expected a ShaderCompileError, got %v", err)
	}
}

func TestCompileShadersCancelled(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(src, "a.pixel.hlsl"), "", 0644)
	writeFile(t, filepath.Join(src, "b.pixel.hlsl"), "", 0644)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	started := time.Now()
	_, _, err := CompileShaders(ctx, ShaderConfig{
		Compiler:  fakeTool(t, t.TempDir(), "dxc", `exec sleep 10`),
		SourceDir: src,
		OutputDir: out,
		WorkDir:   src,
	}, nil)
	if KindOf(err) != Cancelled {
		t.Errorf("expected a cancelled run, got %v", err)
	}

	if time.Since(started) > 5*time.Second {
		t.Error("the compiler wasn't killed")
	}
	if exists(filepath.Join(out, "b.pixel")) {
		t.Error("b.pixel.hlsl was compiled after the cancellation")
	}
}
