package bindgen

import (
	"fmt"
	"go/format"
	gotoken "go/token"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

type goEmitter struct {
	buf        strings.Builder
	usesUnsafe bool
}

func goIdent(name string) string {
	if gotoken.IsKeyword(name) {
		return name + "_"
	}
	return name
}

// exportedName turns a C++ member name like m_frame_count into FrameCount style Go names.
func exportedName(name string) string {
	name = strings.TrimPrefix(name, "m_")

	var buf strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		buf.WriteString(string(runes))
	}

	result := buf.String()
	if result == "" || !unicode.IsLetter([]rune(result)[0]) {
		result = "X" + result
	}
	return result
}

func (g *goEmitter) typ(t *ctype) string {
	switch t.kind {
	case ctPrim:
		return t.prim.golang
	case ctNamed:
		return goIdent(t.name)
	case ctPointer:
		if t.elem.kind == ctVoid {
			g.usesUnsafe = true
			return "unsafe.Pointer"
		}
		return "*" + g.typ(t.elem)
	case ctArray:
		return fmt.Sprintf("[%d]%s", t.length, g.typ(t.elem))
	}

	g.usesUnsafe = true
	return "unsafe.Pointer"
}

func (g *goEmitter) doc(indent, doc string) {
	if doc == "" {
		return
	}

	for _, line := range strings.Split(doc, "\n") {
		if line == "" {
			fmt.Fprintf(&g.buf, "%s//\n", indent)
			continue
		}
		fmt.Fprintf(&g.buf, "%s// %s\n", indent, line)
	}
}

func (g *goEmitter) opaque(name string) {
	fmt.Fprintf(&g.buf, "type %s struct{ _ [0]byte }\n", name)
}

func (g *goEmitter) record(br *boundRecord) {
	name := goIdent(br.rec.bindName)

	opaque := br.opaque
	if opaque == "" && br.rec.kind == kindUnion {
		opaque = "unions have no Go representation"
	}

	g.doc("", recordDoc(br, opaque, ""))
	if opaque != "" {
		g.opaque(name)
		return
	}

	fmt.Fprintf(&g.buf, "type %s struct {\n", name)
	if br.vtable {
		g.usesUnsafe = true
		g.buf.WriteString("\tvtable unsafe.Pointer\n")
	}
	if br.base != nil {
		fmt.Fprintf(&g.buf, "\t%s\n", g.typ(br.base))
	}

	used := make(map[string]bool)
	for _, f := range br.fields {
		fieldName := exportedName(f.name)
		for used[fieldName] {
			fieldName += "_"
		}
		used[fieldName] = true

		g.doc("\t", f.doc)
		fmt.Fprintf(&g.buf, "\t%s %s // %s\n", fieldName, g.typ(f.typ), f.name)
	}

	if !br.vtable && br.base == nil && len(br.fields) == 0 {
		g.buf.WriteString("\t_ uint8\n")
	}
	g.buf.WriteString("}\n")
}

func (g *goEmitter) enum(be *boundEnum) {
	name := goIdent(be.enum.bindName)
	g.doc("", be.enum.doc)
	fmt.Fprintf(&g.buf, "type %s %s\n", name, be.underlying.golang)

	if len(be.enum.items) == 0 {
		return
	}

	g.buf.WriteString("\nconst (\n")
	for _, item := range be.enum.items {
		g.doc("\t", item.doc)
		fmt.Fprintf(&g.buf, "\t%s%s %s = %d\n", be.enum.bindName, exportedName(item.name), name, item.value)
	}
	g.buf.WriteString(")\n")
}

func emitGo(pkg string, items []interface{}) ([]byte, error) {
	g := &goEmitter{}

	for _, item := range items {
		g.buf.WriteByte('\n')

		switch v := item.(type) {
		case *boundRecord:
			g.record(v)
		case *boundEnum:
			g.enum(v)
		case *boundAlias:
			name := goIdent(v.alias.bindName)
			if v.opaque != "" {
				g.doc("", joinDoc(v.alias.doc, "Opaque: "+v.opaque))
				g.opaque(name)
				continue
			}

			g.doc("", v.alias.doc)
			fmt.Fprintf(&g.buf, "type %s = %s\n", name, g.typ(v.target))
		}
	}

	var out strings.Builder
	out.WriteString("// Code generated by sanity-build. DO NOT EDIT.\n\n")
	fmt.Fprintf(&out, "package %s\n", pkg)
	if g.usesUnsafe {
		out.WriteString("\nimport \"unsafe\"\n")
	}
	out.WriteString(g.buf.String())

	src, err := format.Source([]byte(out.String()))
	if err != nil {
		return nil, eris.Wrap(err, "failed to format generated Go source")
	}
	return src, nil
}
