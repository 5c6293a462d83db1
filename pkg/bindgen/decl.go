package bindgen

import "strings"

type declFlags struct {
	static  bool
	virtual bool
	friend  bool
	typedef bool
}

type declarator struct {
	name     string
	typ      typeRef
	array    [][]token
	bitField bool
	funcPtr  bool
	isFunc   bool
	pure     bool
	params   []token
	quals    []token
}

var builtinWords = map[string]bool{
	"void":     true,
	"bool":     true,
	"_Bool":    true,
	"char":     true,
	"wchar_t":  true,
	"char8_t":  true,
	"char16_t": true,
	"char32_t": true,
	"short":    true,
	"int":      true,
	"long":     true,
	"signed":   true,
	"unsigned": true,
	"float":    true,
	"double":   true,
	"__int8":   true,
	"__int16":  true,
	"__int32":  true,
	"__int64":  true,
}

var specifierWords = map[string]bool{
	"static":        true,
	"virtual":       true,
	"friend":        true,
	"typedef":       true,
	"inline":        true,
	"explicit":      true,
	"constexpr":     true,
	"consteval":     true,
	"constinit":     true,
	"mutable":       true,
	"extern":        true,
	"thread_local":  true,
	"register":      true,
	"typename":      true,
	"volatile":      true,
	"__forceinline": true,
	"__inline":      true,
}

var cvWords = map[string]bool{
	"volatile":     true,
	"__restrict":   true,
	"__restrict__": true,
	"restrict":     true,
	"__ptr32":      true,
	"__ptr64":      true,
	"__unaligned":  true,
}

var callingConventions = map[string]bool{
	"__cdecl":      true,
	"__stdcall":    true,
	"__fastcall":   true,
	"__vectorcall": true,
	"__thiscall":   true,
	"__clrcall":    true,
}

func canonicalBuiltin(words []string) string {
	count := make(map[string]int)
	for _, word := range words {
		switch word {
		case "__int8":
			count["char"]++
		case "__int16":
			count["short"]++
		case "__int32":
			count["int"]++
		case "__int64":
			count["long"] += 2
		case "_Bool":
			count["bool"]++
		default:
			count[word]++
		}
	}

	sign := func(name string) string {
		if count["unsigned"] > 0 {
			return "unsigned " + name
		}
		return name
	}

	switch {
	case count["void"] > 0:
		return "void"
	case count["bool"] > 0:
		return "bool"
	case count["wchar_t"] > 0:
		return "wchar_t"
	case count["char8_t"] > 0:
		return "char8_t"
	case count["char16_t"] > 0:
		return "char16_t"
	case count["char32_t"] > 0:
		return "char32_t"
	case count["float"] > 0:
		return "float"
	case count["double"] > 0:
		if count["long"] > 0 {
			return "long double"
		}
		return "double"
	case count["char"] > 0:
		if count["signed"] > 0 {
			return "signed char"
		}
		return sign("char")
	case count["short"] > 0:
		return sign("short")
	case count["long"] >= 2:
		return sign("long long")
	case count["long"] == 1:
		return sign("long")
	}
	return sign("int")
}

func stripSpecifiers(toks []token) ([]token, declFlags) {
	var flags declFlags
	idx := 0
	for idx < len(toks) {
		if n := attributeLen(toks, idx); n > 0 {
			idx += n
			continue
		}

		tok := toks[idx]
		if tok.kind != tokIdent || !specifierWords[tok.text] {
			break
		}

		switch tok.text {
		case "static":
			flags.static = true
		case "virtual":
			flags.virtual = true
		case "friend":
			flags.friend = true
		case "typedef":
			flags.typedef = true
		case "explicit":
			if idx+1 < len(toks) && toks[idx+1].is("(") {
				idx = matchClose(toks, idx+1, "(", ")")
			}
		}
		idx++
	}

	if idx > len(toks) {
		idx = len(toks)
	}
	return toks[idx:], flags
}

// looksLikeMacro reports whether the single identifier before idx is an export or attribute macro
// rather than a type name, judging from what follows it.
func looksLikeMacro(toks []token, idx int) bool {
	if idx >= len(toks) {
		return false
	}

	next := toks[idx]
	if next.kind != tokIdent || next.is("operator") || next.is("const") || cvWords[next.text] || callingConventions[next.text] || attributeWords[next.text] {
		return false
	}

	if builtinWords[next.text] || specifierWords[next.text] || next.is("struct") || next.is("class") || next.is("union") || next.is("enum") {
		return true
	}

	if idx+1 >= len(toks) {
		return false
	}

	after := toks[idx+1]
	return after.kind == tokIdent || after.is("*") || after.is("&") || after.is("&&") || after.is("::") || after.is("<")
}

// parseQualifiedName parses Foo, ::Foo, Foo::Bar or Foo<T>::Bar starting at idx. It returns the number
// of consumed tokens, which is zero if there is no name at idx.
func parseQualifiedName(toks []token, idx int) (int, string, string, bool) {
	var (
		name     strings.Builder
		spelled  strings.Builder
		template bool
	)

	pos := idx
	if pos < len(toks) && toks[pos].is("::") {
		name.WriteString("::")
		spelled.WriteString("::")
		pos++
	}

	for {
		if pos >= len(toks) || toks[pos].kind != tokIdent {
			return 0, "", "", false
		}

		name.WriteString(toks[pos].text)
		spelled.WriteString(toks[pos].text)
		pos++

		if pos < len(toks) && toks[pos].is("<") {
			end := skipAngles(toks, pos)
			if end >= len(toks) {
				return 0, "", "", false
			}

			spelled.WriteString(joinTokensTight(toks[pos : end+1]))
			template = true
			pos = end + 1
		}

		if pos+1 < len(toks) && toks[pos].is("::") && toks[pos+1].kind == tokIdent {
			name.WriteString("::")
			spelled.WriteString("::")
			pos++
			continue
		}

		return pos - idx, name.String(), spelled.String(), template
	}
}

// parseDeclSpec parses the declaration specifiers at the start of toks and returns the base type
// together with the index of the first declarator token.
func parseDeclSpec(toks []token) (typeRef, int, declFlags, error) {
	var (
		ref   = typeRef{quals: []bool{false}}
		flags declFlags
		words []string
		idx   int
	)

loop:
	for idx < len(toks) {
		if n := attributeLen(toks, idx); n > 0 {
			idx += n
			continue
		}

		tok := toks[idx]
		if tok.kind != tokIdent && !tok.is("::") {
			break
		}

		switch {
		case tok.is("const"):
			ref.quals[0] = true
		case tok.is("static"):
			flags.static = true
		case tok.is("virtual"):
			flags.virtual = true
		case tok.is("friend"):
			flags.friend = true
		case tok.is("typedef"):
			flags.typedef = true
		case tok.is("explicit") && idx+1 < len(toks) && toks[idx+1].is("("):
			idx = matchClose(toks, idx+1, "(", ")")
		case specifierWords[tok.text] || cvWords[tok.text] || callingConventions[tok.text]:
		case tok.is("struct") || tok.is("class") || tok.is("union") || tok.is("enum"):
		case builtinWords[tok.text]:
			if ref.name != "" {
				break loop
			}
			words = append(words, tok.text)
		case tok.is("auto") || tok.is("decltype"):
			if ref.name != "" || len(words) > 0 {
				break loop
			}
			ref.name, ref.spelled, ref.template = tok.text, tok.text, true
			if tok.is("decltype") && idx+1 < len(toks) && toks[idx+1].is("(") {
				idx = matchClose(toks, idx+1, "(", ")")
			}
		default:
			if ref.name != "" || len(words) > 0 {
				break loop
			}

			n, name, spelled, template := parseQualifiedName(toks, idx)
			if n == 0 {
				break loop
			}
			if n == 1 && looksLikeMacro(toks, idx+1) {
				idx++
				continue
			}

			ref.name, ref.spelled, ref.template = name, spelled, template
			idx += n
			continue
		}
		idx++
	}

	if idx > len(toks) {
		idx = len(toks)
	}

	if len(words) > 0 {
		ref.name = canonicalBuiltin(words)
		ref.spelled = ref.name
		ref.builtin = true
	}

	if ref.name == "" {
		at := token{}
		if len(toks) > 0 {
			at = toks[0]
		}
		return ref, idx, flags, newParseError(at.file, at.line, "missing type specifier in %q", joinTokens(toks))
	}

	return ref, idx, flags, nil
}

func isPointerGroup(inner []token) bool {
	for idx, tok := range inner {
		switch {
		case callingConventions[tok.text]:
			continue
		case tok.is("*") || tok.is("&") || tok.is("&&") || tok.is("^"):
			return true
		case tok.kind == tokIdent && idx+2 < len(inner) && inner[idx+1].is("::") && inner[idx+2].is("*"):
			// pointer to member
			return true
		}
		return false
	}
	return false
}

func skipInitializer(toks []token, idx int) int {
	level := 0
	for ; idx < len(toks); idx++ {
		tok := toks[idx]
		switch {
		case tok.is("(") || tok.is("[") || tok.is("{"):
			level++
		case tok.is(")") || tok.is("]") || tok.is("}"):
			level--
		case tok.is(",") && level <= 0:
			return idx
		}
	}
	return idx
}

// parseDeclarator parses one declarator starting at idx and returns the index of the following ',' or len(toks).
func parseDeclarator(base typeRef, toks []token, idx int) (declarator, int) {
	d := declarator{typ: base}
	d.typ.quals = append([]bool{}, base.quals...)
	if len(d.typ.quals) == 0 {
		d.typ.quals = []bool{false}
	}

prefix:
	for idx < len(toks) {
		if n := attributeLen(toks, idx); n > 0 {
			idx += n
			continue
		}

		tok := toks[idx]
		switch {
		case tok.is("*"):
			d.typ.pointers++
			d.typ.quals = append(d.typ.quals, false)
		case tok.is("const"):
			d.typ.quals[len(d.typ.quals)-1] = true
		case tok.is("&") || tok.is("&&"):
			d.typ.reference = true
		case cvWords[tok.text] || callingConventions[tok.text]:
		default:
			break prefix
		}
		idx++
	}

	if idx < len(toks) {
		tok := toks[idx]
		switch {
		case tok.is("("):
			end := matchClose(toks, idx, "(", ")")
			inner := toks[idx+1 : end]
			if isPointerGroup(inner) {
				d.funcPtr = true
				d.typ.funcPtr = true
				for _, t := range inner {
					if t.kind == tokIdent && !t.is("const") && !cvWords[t.text] && !callingConventions[t.text] {
						d.name = t.text
					}
				}

				idx = end + 1
				if idx < len(toks) && toks[idx].is("(") {
					idx = matchClose(toks, idx, "(", ")") + 1
				}
				for idx < len(toks) && toks[idx].is("[") {
					idx = matchClose(toks, idx, "[", "]") + 1
				}
			}
		case tok.is("operator"):
			end := idx + 1
			if end+1 < len(toks) && toks[end].is("(") && toks[end+1].is(")") {
				end += 2
			}
			for end < len(toks) && !toks[end].is("(") {
				end++
			}

			op := joinTokensTight(toks[idx+1 : end])
			if op != "" && isIdentStart(op[0]) {
				d.name = "operator " + joinTokens(toks[idx+1:end])
			} else {
				d.name = "operator" + op
			}
			idx = end
		case tok.is("~") && idx+1 < len(toks):
			d.name = "~" + toks[idx+1].text
			idx += 2
		case tok.kind == tokIdent:
			d.name = tok.text
			idx++
			for idx+1 < len(toks) && toks[idx].is("::") && toks[idx+1].kind == tokIdent {
				d.name = toks[idx+1].text
				idx += 2
			}
		}
	}

	for idx < len(toks) {
		tok := toks[idx]
		switch {
		case tok.is(","):
			return d, idx
		case tok.is("[") && !d.isFunc:
			end := matchClose(toks, idx, "[", "]")
			d.array = append(d.array, toks[idx+1:end])
			idx = end + 1
		case tok.is("(") && !d.isFunc && !d.funcPtr:
			end := matchClose(toks, idx, "(", ")")
			d.isFunc = true
			d.params = toks[idx+1 : end]
			idx = end + 1
		case tok.is(":") || tok.is("=") || tok.is("{"):
			if d.isFunc {
				if tok.is("=") && idx+1 < len(toks) && toks[idx+1].text == "0" {
					d.pure = true
				}
				return d, len(toks)
			}

			if tok.is(":") {
				d.bitField = true
			}
			idx = skipInitializer(toks, idx+1)
		default:
			if d.isFunc {
				d.quals = append(d.quals, tok)
			}
			idx++
		}
	}

	if idx > len(toks) {
		idx = len(toks)
	}
	return d, idx
}
