package bindgen

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func spaced(toks []token) string {
	texts := make([]string, 0, len(toks))
	for _, tok := range toks {
		if tok.kind != tokDoc {
			texts = append(texts, tok.text)
		}
	}
	return strings.Join(texts, " ")
}

func preprocessIn(t *testing.T, dir, src string, strict bool, args ...string) (string, *preprocessor, error) {
	t.Helper()

	header := filepath.Join(dir, "header.hpp")
	writeFile(t, header, src)

	parsed, err := parseCompilerArgs(args, dir)
	if err != nil {
		t.Fatalf("failed to parse arguments: %v", err)
	}

	pp, err := newPreprocessor(parsed, strict)
	if err != nil {
		t.Fatalf("failed to set up preprocessor: %v", err)
	}

	toks, err := pp.run(header)
	return spaced(toks), pp, err
}

func TestPreprocessMacros(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []string
		want string
	}{
		{
			name: "object-like",
			src:  "#define N 4\nint a[N];\n",
			want: "int a [ 4 ] ;",
		},
		{
			name: "function-like",
			src:  "#define ADD(a, b) ((a) + (b))\nint x = ADD(1, 2);\n",
			want: "int x = ( ( 1 ) + ( 2 ) ) ;",
		},
		{
			name: "stringize and paste",
			src:  "#define STR(x) #x\n#define CAT(a, b) a##b\nconst char* s = STR(hello world);\nint CAT(foo, bar);\n",
			want: `const char * s = "hello world" ; int foobar ;`,
		},
		{
			name: "variadic",
			src:  "#define CALL(f, ...) f(__VA_ARGS__)\nint y = CALL(g, 1, 2);\n",
			want: "int y = g ( 1 , 2 ) ;",
		},
		{
			name: "nested expansion",
			src:  "#define EXPORT __declspec(dllexport)\n#define API EXPORT\nclass API Foo;\n",
			want: "class __declspec ( dllexport ) Foo ;",
		},
		{
			name: "self reference",
			src:  "#define foo foo + 1\nint x = foo;\n",
			want: "int x = foo + 1 ;",
		},
		{
			name: "function-like name without arguments",
			src:  "#define f(x) x\nint f;\n",
			want: "int f ;",
		},
		{
			name: "undef",
			src:  "#define A 1\n#undef A\nint x = A;\n",
			want: "int x = A ;",
		},
		{
			name: "command line",
			src:  "#ifdef BAR\nint bar;\n#endif\nint foo = FOO;\n",
			args: []string{"-DFOO=2", "-DBAR", "-UBAR"},
			want: "int foo = 2 ;",
		},
		{
			name: "language version",
			src:  "#if __cplusplus >= 202002L\nint cxx20;\n#else\nint older;\n#endif\n",
			args: []string{"-std=c++20"},
			want: "int cxx20 ;",
		},
		{
			name: "line splice",
			src:  "#define LONG 1 + \\\n 2\nint x = LONG;\n",
			want: "int x = 1 + 2 ;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := preprocessIn(t, t.TempDir(), tt.src, true, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocessConditionals(t *testing.T) {
	src := `#define A 1
#if A == 1 && defined(A)
int yes;
#elif 1
int no1;
#else
int no2;
#endif
#ifdef B
int no3;
#endif
#ifndef B
int yes2;
#endif
#if 0
it's prose, not code
#error not reached
#endif
#if defined B || UNKNOWN
int no4;
#elif !defined(B) && __has_cpp_attribute(nodiscard) == 0
int yes3;
#endif
#if 0
#if 1
int no5;
#endif
#else
int yes4;
#endif
`

	got, _, err := preprocessIn(t, t.TempDir(), src, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "int yes ; int yes2 ; int yes3 ; int yes4 ;"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPreprocessErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"error directive", "#error boom\n", "#error boom"},
		{"unterminated conditional", "#if 1\nint x;\n", "unterminated conditional"},
		{"stray endif", "#endif\n", "#endif without #if"},
		{"else after else", "#if 1\n#else\n#else\n#endif\n", "#else after #else"},
		{"unknown directive", "#frobnicate\n", "unknown directive"},
		{"bad condition", "#if 1 +\n#endif\n", "unexpected end of expression"},
		{"missing include", "#include \"missing.h\"\n", "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := preprocessIn(t, t.TempDir(), tt.src, true)
			if err == nil {
				t.Fatal("expected an error")
			}

			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected a *ParseError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestPreprocessIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "include", "defs.h"), "#pragma once\n#define VALUE 3\nint hidden;\n")
	writeFile(t, filepath.Join(dir, "local.h"), "#include <defs.h>\n#define LOCAL VALUE\n")

	src := `#include "local.h"
#include <defs.h>
#include <vector>
#if __has_include(<defs.h>) && !__has_include("nope.h")
int v = LOCAL;
#endif
`

	got, pp, err := preprocessIn(t, dir, src, true, "-I", "include")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "int v = 3 ;" {
		t.Errorf("got %q", got)
	}
	if len(pp.warnings) != 0 {
		t.Errorf("unexpected warnings: %v", pp.warnings)
	}
}

func TestPreprocessMissingIncludeLax(t *testing.T) {
	got, pp, err := preprocessIn(t, t.TempDir(), "#include \"rx/core/ptr.h\"\nint x;\n", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "int x ;" {
		t.Errorf("got %q", got)
	}
	if len(pp.warnings) != 1 || !strings.Contains(pp.warnings[0], "rx/core/ptr.h") {
		t.Errorf("expected a warning about the missing include, got %v", pp.warnings)
	}
}
