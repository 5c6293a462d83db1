package bindgen

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const engineHeader = `#pragma once

#include <cstdint>
#include "rx/core/ptr.h"

#define SANITY_API __declspec(dllexport)

namespace sanity {
    class World;
}

/// Tracks the frame rate
struct FramerateTracker {
    uint32_t max_samples;
    float samples[16];
};

enum class RenderMode : uint8_t {
    Forward,
    Deferred = 4,
    Debug,
};

/// The engine
class SANITY_API [[sanity::runtime_class]] SanityEngine {
public:
    explicit SanityEngine(const char* executable_directory);

    ~SanityEngine();

    void tick();

    [[nodiscard]] sanity::World* get_world() const;

#pragma region internals
private:
    FramerateTracker framerate_tracker{1000};
    RenderMode mode;
    sanity::World* world = nullptr;
    double frame_time;

    void update_time() { frame_time += 1.0; }
#pragma endregion
};

struct Sibling {
    int x;
};
`

func generateFrom(t *testing.T, header string, spec Spec) (*Result, error) {
	t.Helper()

	dir := t.TempDir()
	spec.Header = filepath.Join(dir, "sanity_engine.hpp")
	spec.BaseDir = dir
	writeFile(t, spec.Header, header)

	return Generate(context.Background(), spec)
}

func mustGenerate(t *testing.T, header string, spec Spec) string {
	t.Helper()

	result, err := generateFrom(t, header, spec)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return string(result.Source)
}

func assertContains(t *testing.T, src string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if !strings.Contains(src, part) {
			t.Errorf("output does not contain %q:\n%s", part, src)
		}
	}
}

func assertNotContains(t *testing.T, src string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if strings.Contains(src, part) {
			t.Errorf("output unexpectedly contains %q:\n%s", part, src)
		}
	}
}

func TestGenerateWhitelistExcludesSiblings(t *testing.T) {
	src := mustGenerate(t, engineHeader, Spec{
		Args:  []string{"-std=c++20"},
		Types: []string{"SanityEngine"},
	})

	assertContains(t, src, "pub struct SanityEngine {", "_unused: [u8; 0],")
	assertNotContains(t, src, "Sibling", "pub struct FramerateTracker", "pub type RenderMode")
}

func TestGenerateRustLayout(t *testing.T) {
	result, err := generateFrom(t, engineHeader, Spec{
		Args:  []string{"-std=c++20", "-DWIN32"},
		Types: []string{"SanityEngine", "FramerateTracker", "RenderMode"},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	src := string(result.Source)

	assertContains(t, src,
		"/// Tracks the frame rate\n#[repr(C)]\n#[derive(Debug, Copy, Clone)]\npub struct FramerateTracker {\n",
		"    pub max_samples: u32,\n",
		"    pub samples: [f32; 16],\n",
		"pub const RenderMode_Forward: RenderMode = 0;\n",
		"pub const RenderMode_Deferred: RenderMode = 4;\n",
		"pub const RenderMode_Debug: RenderMode = 5;\n",
		"pub type RenderMode = u8;\n",
		"/// The engine\n",
		"`SanityEngine(const char* executable_directory)`",
		"`void tick()`",
		"`sanity::World* get_world() const`",
		"pub struct SanityEngine {\n"+
			"    pub framerate_tracker: FramerateTracker,\n"+
			"    pub mode: RenderMode,\n"+
			"    pub world: *mut ::std::os::raw::c_void,\n"+
			"    pub frame_time: f64,\n"+
			"}\n",
	)
	assertNotContains(t, src, "update_time", "vtable_", "Sibling")

	wantTypes := []string{"FramerateTracker", "RenderMode", "SanityEngine"}
	if strings.Join(result.Types, ",") != strings.Join(wantTypes, ",") {
		t.Errorf("got types %v, want %v", result.Types, wantTypes)
	}

	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "rx/core/ptr.h") {
		t.Errorf("expected one warning about the missing include, got %v", result.Warnings)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "sanity_engine.hpp")
	writeFile(t, header, engineHeader)

	spec := Spec{
		Header: header,
		Types:  []string{"SanityEngine", "FramerateTracker", "RenderMode"},
	}

	first, err := Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := Generate(context.Background(), spec)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !bytes.Equal(first.Source, second.Source) {
		t.Errorf("outputs differ:\n%s\n---\n%s", first.Source, second.Source)
	}
}

func TestGenerateGo(t *testing.T) {
	src := mustGenerate(t, engineHeader, Spec{
		Types:    []string{"SanityEngine", "FramerateTracker", "RenderMode"},
		Language: LanguageGo,
		Package:  "sanity",
	})

	normalized := strings.Join(strings.Fields(src), " ")
	assertContains(t, normalized,
		"// Code generated by sanity-build. DO NOT EDIT.",
		"package sanity",
		`import "unsafe"`,
		"type RenderMode uint8",
		"RenderModeDeferred RenderMode = 4",
		"type FramerateTracker struct { MaxSamples uint32 // max_samples Samples [16]float32 // samples }",
		"FramerateTracker FramerateTracker // framerate_tracker",
		"Mode RenderMode // mode",
		"World unsafe.Pointer // world",
		"FrameTime float64 // frame_time",
	)
}

func TestGenerateTargetSizes(t *testing.T) {
	header := "struct Sizes { long a; unsigned long b; wchar_t c; };\n"
	spec := Spec{
		Types:    []string{"Sizes"},
		Language: LanguageGo,
		Package:  "sizes",
	}

	windows := spec
	windows.Args = []string{"-DWIN32"}
	src := strings.Join(strings.Fields(mustGenerate(t, header, windows)), " ")
	assertContains(t, src, "A int32 // a", "B uint32 // b", "C uint16 // c")

	src = strings.Join(strings.Fields(mustGenerate(t, header, spec)), " ")
	assertContains(t, src, "A int64 // a", "B uint64 // b", "C int32 // c")
}

func TestGenerateOpaqueRecords(t *testing.T) {
	header := `
namespace Rx {
    template <typename T> class Vector { T* data; };
}

struct Flags {
    unsigned dirty : 1;
};

struct Variant {
    union {
        int i;
        float f;
    };
};

struct Holder {
    Rx::Vector<int> items;
};

struct Container {
    Flags flags;
    int count;
};

struct Pointers {
    Flags* flags;
    const Holder& holder;
    void (*callback)(int);
};
`

	src := mustGenerate(t, header, Spec{
		Types: []string{"Flags", "Variant", "Holder", "Container", "Pointers"},
	})

	assertContains(t, src,
		"/// Opaque: bit-field dirty\n",
		"/// Opaque: member of anonymous struct or union type\n",
		"/// Opaque: field items: template type Rx::Vector<int>\n",
		"/// Opaque: field flags holds opaque type Flags\n",
		"pub struct Pointers {\n"+
			"    pub flags: *mut Flags,\n"+
			"    pub holder: *const Holder,\n"+
			"    pub callback: *mut ::std::os::raw::c_void,\n"+
			"}\n",
	)
}

func TestGenerateInheritance(t *testing.T) {
	header := `
struct Base {
    virtual ~Base();
    int id;
};

struct Derived : public Base {
    float weight;
};

struct Orphan : Unknown {
    int x;
};

struct Empty {};
`

	src := mustGenerate(t, header, Spec{
		Types: []string{"Base", "Derived", "Orphan", "Empty"},
	})

	assertContains(t, src,
		"pub struct Base {\n    pub vtable_: *const ::std::os::raw::c_void,\n    pub id: ::std::os::raw::c_int,\n}\n",
		"pub struct Derived {\n    pub _base: Base,\n    pub weight: f32,\n}\n",
		"/// Opaque: base class Unknown is not whitelisted\n",
		"pub struct Empty {\n    pub _address: u8,\n}\n",
	)
}

func TestGenerateNestedTypesAndAliases(t *testing.T) {
	header := `
typedef struct {
    int a;
} Plain;

using Handle = Plain*;

namespace gfx {
    struct Outer {
        struct Inner {
            int v;
        };

        enum Kind { KindA = 1 << 2, KindB };

        Inner inner;
        Kind kind;
        int values[KindB];
    };
}
`

	src := mustGenerate(t, header, Spec{
		Types: []string{"Plain", "Handle", "gfx::Outer", "Outer::Inner"},
	})

	assertContains(t, src,
		"pub struct Plain {\n    pub a: ::std::os::raw::c_int,\n}\n",
		"pub type Handle = *mut Plain;\n",
		"pub struct Outer {\n"+
			"    pub inner: Outer_Inner,\n"+
			"    pub kind: ::std::os::raw::c_uint,\n"+
			"    pub values: [::std::os::raw::c_int; 5],\n"+
			"}\n",
		"pub struct Outer_Inner {\n",
	)
	assertNotContains(t, src, "pub type Outer_Kind")
}

func TestGenerateKeywordsAreEscaped(t *testing.T) {
	src := mustGenerate(t, "struct Keywords { int type; float match; };\n", Spec{
		Types: []string{"Keywords"},
	})

	assertContains(t, src, "pub type_: ::std::os::raw::c_int,", "pub match_: f32,")
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
		spec   Spec
		msg    string
	}{
		{
			name:   "missing type",
			header: "struct Foo { int x; };\n",
			spec:   Spec{Types: []string{"Bar"}},
			msg:    "whitelisted type Bar not found",
		},
		{
			name:   "strict include",
			header: "#include \"missing.h\"\nstruct Foo { int x; };\n",
			spec:   Spec{Types: []string{"Foo"}, StrictIncludes: true},
			msg:    "not found",
		},
		{
			name:   "unbalanced braces",
			header: "struct Foo { int x;\n",
			spec:   Spec{Types: []string{"Foo"}},
			msg:    "missing '}'",
		},
		{
			name:   "bad enumerator of whitelisted enum",
			header: "enum Bad { X = sizeof(int) };\n",
			spec:   Spec{Types: []string{"Bad"}},
			msg:    "sizeof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := generateFrom(t, tt.header, tt.spec)
			if err == nil {
				t.Fatal("expected an error")
			}

			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected a *ParseError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not mention %q", err, tt.msg)
			}
		})
	}
}

func TestGenerateAnonymousUnionInSibling(t *testing.T) {
	header := `
struct Sibling {
    int x;
};

struct Engine {
    union {
        int i;
        float f;
    };
};
`

	src := mustGenerate(t, header, Spec{Types: []string{"Sibling"}})

	assertContains(t, src, "pub struct Sibling {\n", "    pub x: i32,\n")
	assertNotContains(t, src, "Engine")
}

func TestGenerateIgnoresBadEnumWhenNotWhitelisted(t *testing.T) {
	header := "enum Bad { X = sizeof(int) };\nstruct Good { int x; };\n"
	if _, err := generateFrom(t, header, Spec{Types: []string{"Good"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"no header", Spec{Types: []string{"A"}}},
		{"no types", Spec{Header: "a.hpp"}},
		{"go without package", Spec{Header: "a.hpp", Types: []string{"A"}, Language: LanguageGo}},
		{"unknown language", Spec{Header: "a.hpp", Types: []string{"A"}, Language: "zig"}},
		{"bad standard", Spec{Header: "a.hpp", Types: []string{"A"}, Args: []string{"-std=c++99"}}},
		{"dangling include flag", Spec{Header: "a.hpp", Types: []string{"A"}, Args: []string{"-I"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.spec.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestWriteOutputCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated_files", "sanity", "engine.rs")
	if err := WriteOutput(path, []byte("pub type A = u8;\n")); err != nil {
		t.Fatalf("WriteOutput failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pub type A = u8;\n" {
		t.Errorf("unexpected content %q", data)
	}
}
