// Package bindgen generates FFI declarations for types declared in a C++ header.
//
// The header is run through a small preprocessor and declaration parser. Only the whitelisted
// types are emitted; everything else a whitelisted type refers to is either reduced to a primitive,
// accessed through an untyped pointer or makes the referring type opaque.
package bindgen

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

// Result holds the generated source and what was learned while producing it.
type Result struct {
	Source []byte
	// Types lists the emitted binding names in output order.
	Types    []string
	Warnings []string
}

// Generate parses spec.Header and renders bindings for the whitelisted types. The output only
// depends on the inputs, generating twice yields identical bytes.
func Generate(ctx context.Context, spec Spec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	args, err := parseCompilerArgs(spec.Args, spec.BaseDir)
	if err != nil {
		return nil, err
	}

	pp, err := newPreprocessor(args, spec.StrictIncludes)
	if err != nil {
		return nil, err
	}

	toks, err := pp.run(spec.Header)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "binding generation cancelled")
	}

	hdr, err := parseHeader(toks)
	if err != nil {
		return nil, err
	}

	sblog.Log(ctx).Debug().
		Str("header", spec.Header).
		Int("tokens", len(toks)).
		Int("declarations", len(hdr.decls)).
		Msg("Parsed header")

	_, win32 := pp.macros["WIN32"]
	_, win32Alt := pp.macros["_WIN32"]

	items, err := bindTypes(hdr, spec.Header, spec.Types, win32 || win32Alt)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, arg := range args.ignored {
		result.Warnings = append(result.Warnings, fmt.Sprintf("ignored compiler argument %s", arg))
	}
	result.Warnings = append(result.Warnings, pp.warnings...)

	for _, item := range items {
		var name string
		switch v := item.(type) {
		case *boundRecord:
			name = v.rec.bindName
			if v.opaque != "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s is opaque: %s", name, v.opaque))
			}
		case *boundEnum:
			name = v.enum.bindName
		case *boundAlias:
			name = v.alias.bindName
		}
		result.Types = append(result.Types, name)
	}

	switch spec.language() {
	case LanguageGo:
		result.Source, err = emitGo(spec.Package, items)
		if err != nil {
			return nil, err
		}
	default:
		result.Source = emitRust(items)
	}

	return result, nil
}

// WriteOutput writes generated source to path, creating missing parent directories.
func WriteOutput(path string, source []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}

	if err := ioutil.WriteFile(path, source, 0o644); err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
