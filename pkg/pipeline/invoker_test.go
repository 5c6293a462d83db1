package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestArguments(t *testing.T) {
	tests := []struct {
		name     string
		cfg      BuildConfiguration
		expected string
	}{
		{
			name: "msbuild",
			cfg: BuildConfiguration{
				Project:      "SanityEngine.sln",
				Target:       "Build",
				TargetSwitch: "/t:{target}",
				FlagSwitch:   "/p:{key}={value}",
				Flags: map[string]string{
					"VcpkgEnableManifest": "true",
					"Configuration":       "Debug",
					"Platform":            "x64",
				},
				Args: []string{"/maxCpuCount:20"},
			},
			expected: "SanityEngine.sln /t:Build /p:Configuration=Debug /p:Platform=x64 /p:VcpkgEnableManifest=true /maxCpuCount:20",
		},
		{
			name: "dash style",
			cfg: BuildConfiguration{
				Project:      "SanityEngine.sln",
				Target:       "Build",
				TargetSwitch: "-target:{target}",
				FlagSwitch:   "-property:{key}={value}",
				Flags:        map[string]string{"Configuration": "Debug"},
			},
			expected: "SanityEngine.sln -target:Build -property:Configuration=Debug",
		},
		{
			name: "no target",
			cfg: BuildConfiguration{
				FlagSwitch: "-D{key}={value}",
				Flags:      map[string]string{"B": "2", "A": "1"},
				Args:       []string{"all"},
			},
			expected: "-DA=1 -DB=2 all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.Join(tt.cfg.Arguments(), " ")
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestInvokeCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	tool := fakeTool(t, t.TempDir(), "msbuild", `echo "out $1"; echo "err" >&2; pwd`)

	var live bytes.Buffer
	output, err := Invoke(context.Background(), BuildConfiguration{
		Toolchain: tool,
		Project:   "engine.sln",
		WorkDir:   dir,
	}, &live)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	for _, expected := range []string{"out engine.sln", "err", filepath.Base(dir)} {
		if !strings.Contains(output, expected) {
			t.Errorf("output %q is missing %q", output, expected)
		}
	}

	if live.String() != output {
		t.Errorf("live output %q doesn't match the captured output %q", live.String(), output)
	}
}

func TestInvokeFailures(t *testing.T) {
	failing := fakeTool(t, t.TempDir(), "msbuild", `echo "LINK : fatal error LNK1104"; exit 1`)
	sleeping := fakeTool(t, t.TempDir(), "msbuild", `exec sleep 10`)

	tests := []struct {
		name    string
		cfg     BuildConfiguration
		kind    Kind
		message string
		output  string
	}{
		{
			name:    "missing working directory",
			cfg:     BuildConfiguration{Toolchain: failing, WorkDir: filepath.Join(t.TempDir(), "missing")},
			kind:    ToolchainInvocationError,
			message: "working directory",
		},
		{
			name:    "working directory is a file",
			cfg:     BuildConfiguration{Toolchain: failing, WorkDir: failing},
			kind:    ToolchainInvocationError,
			message: "not a directory",
		},
		{
			name:    "missing toolchain",
			cfg:     BuildConfiguration{Toolchain: "sanity-msbuild-does-not-exist", WorkDir: t.TempDir()},
			kind:    ToolchainInvocationError,
			message: "could not find",
		},
		{
			name:    "non-zero exit",
			cfg:     BuildConfiguration{Toolchain: failing, WorkDir: t.TempDir()},
			kind:    BuildFailure,
			message: "msbuild failed",
			output:  "LNK1104",
		},
		{
			name:    "timeout",
			cfg:     BuildConfiguration{Toolchain: sleeping, WorkDir: t.TempDir(), Timeout: 100 * time.Millisecond},
			kind:    BuildFailure,
			message: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Invoke(context.Background(), tt.cfg, nil)
			if err == nil {
				t.Fatal("expected an error")
			}

			if KindOf(err) != tt.kind {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}

			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected %q in %q", tt.message, err.Error())
			}

			pErr := err.(*Error)
			if !strings.Contains(pErr.Output, tt.output) {
				t.Errorf("expected %q in the output %q", tt.output, pErr.Output)
			}
		})
	}
}

func TestInvokeCancelled(t *testing.T) {
	tool := fakeTool(t, t.TempDir(), "msbuild", `exec sleep 10`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	started := time.Now()
	_, err := Invoke(ctx, BuildConfiguration{Toolchain: tool, WorkDir: t.TempDir()}, nil)
	if KindOf(err) != BuildFailure || !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("expected a cancelled build, got %v", err)
	}

	if time.Since(started) > 5*time.Second {
		t.Error("the toolchain wasn't killed")
	}
}
