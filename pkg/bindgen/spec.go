package bindgen

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Language selects the emitter used for the generated source.
type Language string

const (
	LanguageRust Language = "rust"
	LanguageGo   Language = "go"
)

// Spec describes a single binding generation.
type Spec struct {
	// Header is the header file that is parsed. Declarations from included files are never emitted.
	Header string
	// Args are clang-style compiler arguments. -std=, -I, -isystem, -D and -U are understood.
	Args []string
	// Types lists the whitelisted type names. Nested and namespaced types may be given with "::".
	Types []string
	// Output is the file the generated source is written to.
	Output string
	// Language defaults to rust.
	Language Language
	// Package is the package clause used for go output.
	Package string
	// StrictIncludes turns unresolvable quoted includes into errors.
	StrictIncludes bool
	// BaseDir is used to resolve relative include directories. Defaults to the current directory.
	BaseDir string
}

func (s Spec) language() Language {
	if s.Language == "" {
		return LanguageRust
	}
	return s.Language
}

// Validate checks the spec for missing or contradicting values.
func (s Spec) Validate() error {
	if s.Header == "" {
		return eris.New("no header configured")
	}

	if len(s.Types) == 0 {
		return eris.New("no whitelisted types configured")
	}

	switch s.language() {
	case LanguageRust:
	case LanguageGo:
		if s.Package == "" {
			return eris.New("go output requires a package name")
		}
	default:
		return eris.Errorf("unsupported output language %q", s.Language)
	}

	_, err := parseCompilerArgs(s.Args, s.BaseDir)
	return err
}

type macroOp struct {
	undef bool
	name  string
	value string
}

type compilerArgs struct {
	std         string
	includeDirs []string
	macros      []macroOp
	ignored     []string
}

var cplusplusVersions = map[string]string{
	"c++98": "199711L",
	"c++03": "199711L",
	"c++11": "201103L",
	"c++0x": "201103L",
	"c++14": "201402L",
	"c++1y": "201402L",
	"c++17": "201703L",
	"c++1z": "201703L",
	"c++20": "202002L",
	"c++2a": "202002L",
}

func (a compilerArgs) cplusplus() string {
	std := strings.Replace(a.std, "gnu++", "c++", 1)
	if version, ok := cplusplusVersions[std]; ok {
		return version
	}
	return "201703L"
}

func parseCompilerArgs(args []string, baseDir string) (compilerArgs, error) {
	var result compilerArgs

	resolveDir := func(dir string) string {
		if filepath.IsAbs(dir) || baseDir == "" {
			return filepath.Clean(dir)
		}
		return filepath.Join(baseDir, dir)
	}

	// value returns the argument of a flag that is either glued to it (-Ifoo) or follows it (-I foo)
	value := func(idx *int, flag string) (string, error) {
		arg := args[*idx]
		if len(arg) > len(flag) {
			return strings.TrimPrefix(arg[len(flag):], "="), nil
		}

		*idx++
		if *idx >= len(args) {
			return "", eris.Errorf("missing value for %s", flag)
		}
		return args[*idx], nil
	}

	for idx := 0; idx < len(args); idx++ {
		arg := args[idx]
		switch {
		case strings.HasPrefix(arg, "-std="):
			std := strings.TrimPrefix(arg, "-std=")
			if _, ok := cplusplusVersions[strings.Replace(std, "gnu++", "c++", 1)]; !ok {
				return result, eris.Errorf("unsupported language standard %s", std)
			}
			result.std = std
		case strings.HasPrefix(arg, "-isystem"):
			dir, err := value(&idx, "-isystem")
			if err != nil {
				return result, err
			}
			result.includeDirs = append(result.includeDirs, resolveDir(dir))
		case strings.HasPrefix(arg, "-I"):
			dir, err := value(&idx, "-I")
			if err != nil {
				return result, err
			}
			result.includeDirs = append(result.includeDirs, resolveDir(dir))
		case strings.HasPrefix(arg, "-D"):
			def, err := value(&idx, "-D")
			if err != nil {
				return result, err
			}

			name, body := def, "1"
			if pos := strings.IndexByte(def, '='); pos != -1 {
				name, body = def[:pos], def[pos+1:]
			}
			if name == "" {
				return result, eris.Errorf("invalid define %q", def)
			}
			result.macros = append(result.macros, macroOp{name: name, value: body})
		case strings.HasPrefix(arg, "-U"):
			name, err := value(&idx, "-U")
			if err != nil {
				return result, err
			}
			result.macros = append(result.macros, macroOp{undef: true, name: name})
		case arg == "-x":
			// the language is always C++
			idx++
		default:
			result.ignored = append(result.ignored, arg)
		}
	}

	return result, nil
}
