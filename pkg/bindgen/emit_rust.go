package bindgen

import (
	"fmt"
	"strings"
)

var rustKeywords = map[string]bool{
	"abstract": true, "as": true, "async": true, "await": true, "become": true, "box": true,
	"break": true, "const": true, "continue": true, "crate": true, "do": true, "dyn": true,
	"else": true, "enum": true, "extern": true, "false": true, "final": true, "fn": true,
	"for": true, "if": true, "impl": true, "in": true, "let": true, "loop": true,
	"macro": true, "match": true, "mod": true, "move": true, "mut": true, "override": true,
	"priv": true, "pub": true, "ref": true, "return": true, "self": true, "Self": true,
	"static": true, "struct": true, "super": true, "trait": true, "true": true, "try": true,
	"type": true, "typeof": true, "unsafe": true, "unsized": true, "use": true, "virtual": true,
	"where": true, "while": true, "yield": true,
}

func rustIdent(name string) string {
	if rustKeywords[name] {
		return name + "_"
	}
	return name
}

func rustType(t *ctype) string {
	switch t.kind {
	case ctPrim:
		return t.prim.rust
	case ctVoid:
		return "::std::os::raw::c_void"
	case ctNamed:
		return rustIdent(t.name)
	case ctPointer:
		if t.constElem {
			return "*const " + rustType(t.elem)
		}
		return "*mut " + rustType(t.elem)
	case ctArray:
		return fmt.Sprintf("[%s; %d]", rustType(t.elem), t.length)
	}
	return "::std::os::raw::c_void"
}

func writeRustDoc(buf *strings.Builder, indent, doc string) {
	if doc == "" {
		return
	}

	for _, line := range strings.Split(doc, "\n") {
		if line == "" {
			fmt.Fprintf(buf, "%s///\n", indent)
			continue
		}
		fmt.Fprintf(buf, "%s/// %s\n", indent, line)
	}
}

// recordDoc combines the declaration comment with the opacity reason and the public methods.
func recordDoc(br *boundRecord, opaque string, quote string) string {
	var parts []string
	if br.rec.doc != "" {
		parts = append(parts, br.rec.doc)
	}

	if opaque != "" {
		parts = append(parts, "Opaque: "+opaque)
	}

	if len(br.methods) > 0 {
		lines := []string{"Methods:"}
		for _, meth := range br.methods {
			lines = append(lines, " - "+quote+meth.signature+quote)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

func emitRust(items []interface{}) []byte {
	var buf strings.Builder
	buf.WriteString("/* automatically generated by sanity-build, do not edit */\n")

	for _, item := range items {
		buf.WriteByte('\n')

		switch v := item.(type) {
		case *boundRecord:
			emitRustRecord(&buf, v)
		case *boundEnum:
			emitRustEnum(&buf, v)
		case *boundAlias:
			name := rustIdent(v.alias.bindName)
			if v.opaque != "" {
				writeRustDoc(&buf, "", joinDoc(v.alias.doc, "Opaque: "+v.opaque))
				emitRustOpaque(&buf, name)
				continue
			}

			writeRustDoc(&buf, "", v.alias.doc)
			fmt.Fprintf(&buf, "pub type %s = %s;\n", name, rustType(v.target))
		}
	}

	return []byte(buf.String())
}

func joinDoc(parts ...string) string {
	var nonEmpty []string
	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func emitRustOpaque(buf *strings.Builder, name string) {
	buf.WriteString("#[repr(C)]\n")
	buf.WriteString("#[derive(Debug, Copy, Clone)]\n")
	fmt.Fprintf(buf, "pub struct %s {\n", name)
	buf.WriteString("    _unused: [u8; 0],\n")
	buf.WriteString("}\n")
}

func emitRustRecord(buf *strings.Builder, br *boundRecord) {
	name := rustIdent(br.rec.bindName)
	writeRustDoc(buf, "", recordDoc(br, br.opaque, "`"))

	if br.opaque != "" {
		emitRustOpaque(buf, name)
		return
	}

	keyword := "struct"
	buf.WriteString("#[repr(C)]\n")
	if br.rec.kind == kindUnion {
		keyword = "union"
		buf.WriteString("#[derive(Copy, Clone)]\n")
	} else {
		buf.WriteString("#[derive(Debug, Copy, Clone)]\n")
	}
	fmt.Fprintf(buf, "pub %s %s {\n", keyword, name)

	if br.vtable {
		buf.WriteString("    pub vtable_: *const ::std::os::raw::c_void,\n")
	}
	if br.base != nil {
		fmt.Fprintf(buf, "    pub _base: %s,\n", rustType(br.base))
	}

	for _, f := range br.fields {
		writeRustDoc(buf, "    ", f.doc)
		fmt.Fprintf(buf, "    pub %s: %s,\n", rustIdent(f.name), rustType(f.typ))
	}

	if !br.vtable && br.base == nil && len(br.fields) == 0 {
		buf.WriteString("    pub _address: u8,\n")
	}
	buf.WriteString("}\n")
}

func emitRustEnum(buf *strings.Builder, be *boundEnum) {
	name := rustIdent(be.enum.bindName)
	for _, item := range be.enum.items {
		writeRustDoc(buf, "", item.doc)
		fmt.Fprintf(buf, "pub const %s_%s: %s = %d;\n", be.enum.bindName, item.name, name, item.value)
	}

	writeRustDoc(buf, "", be.enum.doc)
	fmt.Fprintf(buf, "pub type %s = %s;\n", name, be.underlying.rust)
}
