package bindgen

import "strings"

type access int

const (
	accessPublic access = iota
	accessProtected
	accessPrivate
)

type recordKind string

const (
	kindStruct recordKind = "struct"
	kindClass  recordKind = "class"
	kindUnion  recordKind = "union"
)

// typeRef is a type as spelled in a declaration.
type typeRef struct {
	// name is either a canonical builtin ("unsigned int") or a possibly qualified identifier ("Rx::Ptr")
	name     string
	builtin  bool
	template bool
	spelled  string
	// quals[0] is the constness of the base type, quals[i] the one of the i-th pointer
	quals     []bool
	pointers  int
	reference bool
	funcPtr   bool
}

func (t typeRef) String() string {
	var buf strings.Builder
	if len(t.quals) > 0 && t.quals[0] {
		buf.WriteString("const ")
	}
	buf.WriteString(t.spelled)
	for idx := 1; idx <= t.pointers; idx++ {
		buf.WriteByte('*')
		if idx < len(t.quals) && t.quals[idx] {
			buf.WriteString(" const")
		}
	}
	if t.reference {
		buf.WriteByte('&')
	}
	return buf.String()
}

func (t typeRef) indirect() bool {
	return t.pointers > 0 || t.reference || t.funcPtr
}

type field struct {
	name string
	doc  string
	typ  typeRef
	// array holds the dimension expressions, one entry per []
	array    [][]token
	bitField bool
	access   access
	line     int
}

type method struct {
	name      string
	signature string
	access    access
	virtual   bool
	static    bool
}

type record struct {
	cppName  string
	bindName string
	kind     recordKind
	doc      string
	file     string
	line     int
	fields   []*field
	methods  []*method
	bases    []string
	// opaque is set while parsing when the layout cannot be reproduced regardless of the field types
	opaque      string
	polymorphic bool
}

type enumerator struct {
	name  string
	doc   string
	value int64
}

type enum struct {
	cppName    string
	bindName   string
	doc        string
	file       string
	line       int
	scoped     bool
	underlying *typeRef
	items      []*enumerator
	// err is reported only if the enum is actually emitted
	err error
}

type alias struct {
	cppName  string
	bindName string
	doc      string
	target   typeRef
	array    [][]token
}

// decl is one of *record, *enum or *alias.
type decl interface {
	names() (cppName, bindName string)
}

func (r *record) names() (string, string) { return r.cppName, r.bindName }
func (e *enum) names() (string, string)   { return e.cppName, e.bindName }
func (a *alias) names() (string, string)  { return a.cppName, a.bindName }

type header struct {
	decls []decl
	byCpp map[string]decl
	// constants holds the values of all enumerators, unqualified for unscoped enums and qualified for all
	constants map[string]int64
}

func newHeader() *header {
	return &header{
		byCpp:     make(map[string]decl),
		constants: make(map[string]int64),
	}
}

func (h *header) add(d decl) {
	cppName, _ := d.names()
	if existing, ok := h.byCpp[cppName]; ok {
		// a complete definition replaces an earlier one, e.g. a typedef of a forward declared struct
		if _, isAlias := existing.(*alias); !isAlias {
			return
		}
		for idx, other := range h.decls {
			if other == existing {
				h.decls = append(h.decls[:idx], h.decls[idx+1:]...)
				break
			}
		}
	}

	h.decls = append(h.decls, d)
	h.byCpp[cppName] = d
}

func parentScope(scope string) string {
	pos := strings.LastIndex(scope, "::")
	if pos == -1 {
		return ""
	}
	return scope[:pos]
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "::" + name
}

// lookup resolves a type name the way C++ name lookup would from inside scope.
func (h *header) lookup(scope, name string) decl {
	if strings.HasPrefix(name, "::") {
		return h.byCpp[strings.TrimPrefix(name, "::")]
	}

	for {
		if d, ok := h.byCpp[qualify(scope, name)]; ok {
			return d
		}

		if scope == "" {
			break
		}
		scope = parentScope(scope)
	}

	// names made visible through using directives
	var found decl
	for _, d := range h.decls {
		cppName, _ := d.names()
		if strings.HasSuffix(cppName, "::"+name) {
			if found != nil {
				return nil
			}
			found = d
		}
	}
	return found
}

// find resolves a whitelisted type name.
func (h *header) find(name string) decl {
	name = strings.TrimPrefix(name, "::")
	if d, ok := h.byCpp[name]; ok {
		return d
	}

	var found decl
	for _, d := range h.decls {
		cppName, bindName := d.names()
		if bindName == name || strings.HasSuffix(cppName, "::"+name) {
			if found != nil {
				return nil
			}
			found = d
		}
	}
	return found
}
