package bindgen

import (
	"fmt"
	"strings"
)

type prim struct {
	rust   string
	golang string
}

type ctypeKind int

const (
	ctPrim ctypeKind = iota
	ctVoid
	ctNamed
	ctPointer
	ctArray
)

// ctype is a mapped type that both emitters know how to render.
type ctype struct {
	kind      ctypeKind
	prim      prim
	name      string
	ref       decl
	elem      *ctype
	constElem bool
	length    int64
}

var voidType = &ctype{kind: ctVoid}

func rawType(name string) prim {
	return prim{rust: "::std::os::raw::" + name}
}

func primitiveFor(name string, windows bool) (prim, bool) {
	name = strings.TrimPrefix(name, "::")
	name = strings.TrimPrefix(name, "std::")

	long, ulong, wchar := prim{golang: "int64"}, prim{golang: "uint64"}, prim{rust: "i32", golang: "int32"}
	if windows {
		long.golang, ulong.golang = "int32", "uint32"
		wchar = prim{rust: "u16", golang: "uint16"}
	}
	long.rust, ulong.rust = rawType("c_long").rust, rawType("c_ulong").rust

	switch name {
	case "bool":
		return prim{rust: "bool", golang: "bool"}, true
	case "char":
		return prim{rust: rawType("c_char").rust, golang: "int8"}, true
	case "signed char":
		return prim{rust: rawType("c_schar").rust, golang: "int8"}, true
	case "unsigned char":
		return prim{rust: rawType("c_uchar").rust, golang: "uint8"}, true
	case "short":
		return prim{rust: rawType("c_short").rust, golang: "int16"}, true
	case "unsigned short":
		return prim{rust: rawType("c_ushort").rust, golang: "uint16"}, true
	case "int":
		return prim{rust: rawType("c_int").rust, golang: "int32"}, true
	case "unsigned int":
		return prim{rust: rawType("c_uint").rust, golang: "uint32"}, true
	case "long":
		return long, true
	case "unsigned long":
		return ulong, true
	case "long long":
		return prim{rust: rawType("c_longlong").rust, golang: "int64"}, true
	case "unsigned long long":
		return prim{rust: rawType("c_ulonglong").rust, golang: "uint64"}, true
	case "float":
		return prim{rust: "f32", golang: "float32"}, true
	case "double":
		return prim{rust: "f64", golang: "float64"}, true
	case "wchar_t":
		return wchar, true
	case "char8_t", "uint8_t":
		return prim{rust: "u8", golang: "uint8"}, true
	case "char16_t", "uint16_t":
		return prim{rust: "u16", golang: "uint16"}, true
	case "char32_t", "uint32_t":
		return prim{rust: "u32", golang: "uint32"}, true
	case "uint64_t":
		return prim{rust: "u64", golang: "uint64"}, true
	case "int8_t":
		return prim{rust: "i8", golang: "int8"}, true
	case "int16_t":
		return prim{rust: "i16", golang: "int16"}, true
	case "int32_t":
		return prim{rust: "i32", golang: "int32"}, true
	case "int64_t":
		return prim{rust: "i64", golang: "int64"}, true
	case "size_t", "uintptr_t":
		return prim{rust: "usize", golang: "uintptr"}, true
	case "ptrdiff_t", "intptr_t", "ssize_t":
		return prim{rust: "isize", golang: "int"}, true
	}

	return prim{}, false
}

type boundField struct {
	name string
	doc  string
	typ  *ctype
}

type boundRecord struct {
	rec     *record
	opaque  string
	base    *ctype
	vtable  bool
	fields  []boundField
	methods []*method
}

type boundEnum struct {
	enum       *enum
	underlying prim
}

type boundAlias struct {
	alias  *alias
	target *ctype
	opaque string
}

type typeMapper struct {
	hdr     *header
	bound   map[decl]bool
	windows bool
}

const maxAliasDepth = 16

// mapType maps t as used from scope. The returned reason is non-empty if t has no representation.
func (m *typeMapper) mapType(t typeRef, scope string, array [][]token, depth int) (*ctype, string) {
	indirect := t.pointers > 0 || t.reference

	var (
		result *ctype
		reason string
	)

	if t.funcPtr {
		result = &ctype{kind: ctPointer, elem: voidType}
	} else {
		result, reason = m.mapBase(t, scope, indirect, depth)
		if reason != "" {
			return nil, reason
		}

		isConst := func(level int) bool {
			return level < len(t.quals) && t.quals[level]
		}

		for idx := 1; idx <= t.pointers; idx++ {
			result = &ctype{kind: ctPointer, elem: result, constElem: isConst(idx - 1)}
		}
		if t.reference {
			result = &ctype{kind: ctPointer, elem: result, constElem: isConst(t.pointers)}
		}
	}

	for idx := len(array) - 1; idx >= 0; idx-- {
		if len(array[idx]) == 0 {
			return nil, "flexible array member"
		}

		length, err := evalExpr(mergeQualified(array[idx]), "", 0, func(name string) (int64, bool) {
			return m.hdr.constant(scope, name)
		})
		if err != nil || length < 0 {
			return nil, fmt.Sprintf("array size %q is not a constant", joinTokens(array[idx]))
		}

		result = &ctype{kind: ctArray, elem: result, length: length}
	}

	return result, ""
}

func (m *typeMapper) mapBase(t typeRef, scope string, indirect bool, depth int) (*ctype, string) {
	if t.builtin && t.name == "void" {
		if indirect {
			return voidType, ""
		}
		return nil, "void value"
	}

	if p, ok := primitiveFor(t.name, m.windows); ok && !t.template {
		return &ctype{kind: ctPrim, prim: p}, ""
	}

	unmappable := func(reason string) (*ctype, string) {
		if indirect {
			return voidType, ""
		}
		return nil, reason
	}

	if t.builtin {
		return unmappable(fmt.Sprintf("type %s has no equivalent", t.name))
	}

	if t.template {
		return unmappable(fmt.Sprintf("template type %s", t.spelled))
	}

	d := m.hdr.lookup(scope, t.name)
	if d == nil {
		return unmappable(fmt.Sprintf("unknown type %s", t.spelled))
	}

	_, bindName := d.names()
	if m.bound[d] {
		return &ctype{kind: ctNamed, name: bindName, ref: d}, ""
	}

	switch v := d.(type) {
	case *alias:
		if depth >= maxAliasDepth {
			return unmappable(fmt.Sprintf("alias %s nests too deeply", v.cppName))
		}

		target, reason := m.mapType(v.target, parentScope(v.cppName), v.array, depth+1)
		if reason != "" {
			return unmappable(reason)
		}
		return target, ""
	case *enum:
		p, err := m.enumPrim(v)
		if err != nil {
			return unmappable(err.Error())
		}
		return &ctype{kind: ctPrim, prim: p}, ""
	}

	return unmappable(fmt.Sprintf("type %s is not whitelisted", t.spelled))
}

// enumPrim returns the primitive an enum is stored as. Unscoped enums without a fixed type are
// unsigned unless one of their values is negative.
func (m *typeMapper) enumPrim(e *enum) (prim, error) {
	underlying, reason := m.mapBase(e.underlyingRef(), parentScope(e.cppName), false, 0)
	if reason != "" || underlying.kind != ctPrim {
		return prim{}, newParseError(e.file, e.line, "unsupported underlying type of enum %s", e.cppName)
	}

	if e.underlying == nil && !e.scoped {
		for _, item := range e.items {
			if item.value < 0 {
				return prim{rust: rawType("c_int").rust, golang: "int32"}, nil
			}
		}
		return prim{rust: rawType("c_uint").rust, golang: "uint32"}, nil
	}

	return underlying.prim, nil
}

// byValue returns the bound record t embeds without indirection, if any.
func byValue(t *ctype) []decl {
	switch t.kind {
	case ctNamed:
		return []decl{t.ref}
	case ctArray:
		return byValue(t.elem)
	}
	return nil
}

// bindTypes resolves the whitelisted names and maps their declarations. Items are returned in header order.
func bindTypes(hdr *header, headerPath string, names []string, windows bool) ([]interface{}, error) {
	m := &typeMapper{
		hdr:     hdr,
		bound:   make(map[decl]bool),
		windows: windows,
	}

	for _, name := range names {
		d := hdr.find(name)
		if d == nil {
			return nil, newParseError(headerPath, 0, "whitelisted type %s not found", name)
		}
		m.bound[d] = true
	}

	var items []interface{}
	records := make(map[decl]*boundRecord)
	aliases := make(map[decl]*boundAlias)

	for _, d := range hdr.decls {
		if !m.bound[d] {
			continue
		}

		switch v := d.(type) {
		case *record:
			br := m.bindRecord(v)
			records[d] = br
			items = append(items, br)
		case *enum:
			if v.err != nil {
				return nil, v.err
			}

			underlying, err := m.enumPrim(v)
			if err != nil {
				return nil, err
			}
			items = append(items, &boundEnum{enum: v, underlying: underlying})
		case *alias:
			ba := &boundAlias{alias: v}
			ba.target, ba.opaque = m.mapType(v.target, parentScope(v.cppName), v.array, 0)
			aliases[d] = ba
			items = append(items, ba)
		}
	}

	opaque := func(d decl) string {
		if br, ok := records[d]; ok {
			return br.opaque
		}
		if ba, ok := aliases[d]; ok {
			if ba.opaque != "" {
				return ba.opaque
			}
			for _, inner := range byValue(ba.target) {
				if br, ok := records[inner]; ok && br.opaque != "" {
					return br.opaque
				}
			}
		}
		return ""
	}

	// a record embedding an opaque record cannot be laid out either
	for changed := true; changed; {
		changed = false
		for _, item := range items {
			br, ok := item.(*boundRecord)
			if !ok || br.opaque != "" {
				continue
			}

			if br.base != nil && opaque(br.base.ref) != "" {
				br.opaque = fmt.Sprintf("base class %s is opaque", br.base.name)
				changed = true
				continue
			}

			for _, f := range br.fields {
				for _, inner := range byValue(f.typ) {
					if opaque(inner) != "" {
						_, bindName := inner.names()
						br.opaque = fmt.Sprintf("field %s holds opaque type %s", f.name, bindName)
						changed = true
						break
					}
				}
				if br.opaque != "" {
					break
				}
			}
		}
	}

	return items, nil
}

func (m *typeMapper) bindRecord(rec *record) *boundRecord {
	br := &boundRecord{
		rec:    rec,
		opaque: rec.opaque,
	}

	for _, meth := range rec.methods {
		if meth.access == accessPublic {
			br.methods = append(br.methods, meth)
		}
	}

	if br.opaque != "" {
		return br
	}

	switch len(rec.bases) {
	case 0:
		br.vtable = rec.polymorphic
	case 1:
		baseRef := typeRef{name: rec.bases[0], spelled: rec.bases[0], quals: []bool{false}}
		if strings.Contains(rec.bases[0], "<") {
			baseRef.template = true
		}

		base, reason := m.mapBase(baseRef, parentScope(rec.cppName), false, 0)
		if reason != "" || base.kind != ctNamed {
			br.opaque = fmt.Sprintf("base class %s is not whitelisted", rec.bases[0])
			return br
		}

		baseRec, ok := base.ref.(*record)
		if !ok {
			br.opaque = fmt.Sprintf("base class %s is not a class", rec.bases[0])
			return br
		}
		if rec.polymorphic && !baseRec.polymorphic {
			br.opaque = "virtual methods on top of a non-polymorphic base class"
			return br
		}
		br.base = base
	default:
		br.opaque = "multiple base classes"
		return br
	}

	for _, f := range rec.fields {
		typ, reason := m.mapType(f.typ, rec.cppName, f.array, 0)
		if reason != "" {
			br.opaque = fmt.Sprintf("field %s: %s", f.name, reason)
			br.fields = nil
			return br
		}

		br.fields = append(br.fields, boundField{
			name: f.name,
			doc:  f.doc,
			typ:  typ,
		})
	}

	return br
}
