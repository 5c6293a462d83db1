package bindgen

import (
	"fmt"
	"strings"
)

type scopeCtx struct {
	cpp    string
	bind   string
	rec    *record
	access access
}

type parser struct {
	toks []token
	docs map[int]string
	pos  int
	hdr  *header
}

// parseHeader builds the declaration model from preprocessed tokens.
func parseHeader(input []token) (*header, error) {
	p := &parser{
		docs: make(map[int]string),
		hdr:  newHeader(),
	}

	var pending []string
	for _, tok := range input {
		if tok.kind == tokDoc {
			pending = append(pending, tok.text)
			continue
		}

		if len(pending) > 0 {
			p.docs[len(p.toks)] = strings.Join(pending, "\n")
			pending = nil
		}
		p.toks = append(p.toks, tok)
	}

	if err := p.scope(&scopeCtx{}, false); err != nil {
		return nil, err
	}
	return p.hdr, nil
}

func (p *parser) peek(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos+offset]
}

func (p *parser) accept(text string) bool {
	if p.peek(0).is(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errorf(format string, args ...interface{}) error {
	tok := p.peek(0)
	if tok.kind == tokEOF && len(p.toks) > 0 {
		tok = p.toks[len(p.toks)-1]
	}
	return newParseError(tok.file, tok.line, format, args...)
}

func (p *parser) scope(ctx *scopeCtx, braced bool) error {
	for {
		tok := p.peek(0)
		switch {
		case tok.kind == tokEOF:
			if braced {
				return p.errorf("missing '}' at end of file")
			}
			return nil
		case tok.is("}"):
			if !braced {
				return p.errorf("unexpected '}'")
			}
			p.pos++
			return nil
		}

		if err := p.declaration(ctx); err != nil {
			return err
		}
	}
}

func (p *parser) declaration(ctx *scopeCtx) error {
	start := p.pos
	doc := p.docs[start]
	tok := p.peek(0)

	switch {
	case tok.is(";"):
		p.pos++
		return nil
	case tok.is("namespace") || (tok.is("inline") && p.peek(1).is("namespace")):
		return p.namespace(ctx)
	case tok.is("extern") && p.peek(1).kind == tokString:
		p.pos += 2
		if p.accept("{") {
			return p.scope(ctx, true)
		}
		return nil
	case tok.is("template"):
		return p.skipTemplate()
	case tok.is("using"):
		return p.using(ctx, doc)
	case tok.is("typedef"):
		return p.typedef(ctx, doc)
	case tok.is("static_assert") || tok.is("friend"):
		return p.skipDeclaration()
	case ctx.rec != nil && p.peek(1).is(":") && (tok.is("public") || tok.is("protected") || tok.is("private")):
		switch tok.text {
		case "public":
			ctx.access = accessPublic
		case "protected":
			ctx.access = accessProtected
		default:
			ctx.access = accessPrivate
		}
		p.pos += 2
		return nil
	case tok.is("class") || tok.is("struct") || tok.is("union"):
		_, handled, err := p.recordDecl(ctx, doc, false)
		if handled || err != nil {
			return err
		}
		p.pos = start
	case tok.is("enum"):
		_, handled, err := p.enumDecl(ctx, doc, false)
		if handled || err != nil {
			return err
		}
		p.pos = start
	}

	toks, err := p.collectDeclaration()
	if err != nil {
		return err
	}

	if ctx.rec != nil {
		p.member(ctx, doc, toks)
	}
	return nil
}

func (p *parser) namespace(ctx *scopeCtx) error {
	p.accept("inline")
	p.pos++ // namespace
	p.skipAttributes()

	var name string
	for {
		tok := p.peek(0)
		if tok.is("inline") {
			p.pos++
			continue
		}
		if tok.is("::") {
			name += "::"
			p.pos++
			continue
		}
		if tok.kind != tokIdent {
			break
		}
		name += tok.text
		p.pos++
	}
	p.skipAttributes()

	if p.peek(0).is("=") {
		return p.skipDeclaration()
	}

	if !p.accept("{") {
		return p.errorf("expected '{' after namespace %s", name)
	}

	inner := &scopeCtx{
		cpp:  ctx.cpp,
		bind: ctx.bind,
	}
	if name != "" {
		inner.cpp = qualify(ctx.cpp, name)
	}
	return p.scope(inner, true)
}

// skipAttributes skips attribute specifiers and returns whether anything was skipped.
func (p *parser) skipAttributes() bool {
	skipped := false
	for {
		n := attributeLen(p.toks, p.pos)
		if n == 0 {
			return skipped
		}
		p.pos += n
		skipped = true
	}
}

var attributeWords = map[string]bool{
	"__declspec":    true,
	"__attribute__": true,
	"__attribute":   true,
	"alignas":       true,
	"_Alignas":      true,
	"__pragma":      true,
	"_Pragma":       true,
}

// attributeLen returns the number of tokens making up the attribute at idx.
func attributeLen(toks []token, idx int) int {
	if idx >= len(toks) {
		return 0
	}

	tok := toks[idx]
	if tok.is("[") && idx+1 < len(toks) && toks[idx+1].is("[") {
		return matchClose(toks, idx, "[", "]") + 1 - idx
	}

	if tok.kind == tokIdent && attributeWords[tok.text] {
		if idx+1 < len(toks) && toks[idx+1].is("(") {
			return matchClose(toks, idx+1, "(", ")") + 1 - idx
		}
		return 1
	}

	return 0
}

// matchClose returns the index of the token closing the bracket at idx, or len(toks) if it is missing.
func matchClose(toks []token, idx int, open, close string) int {
	level := 0
	for end := idx; end < len(toks); end++ {
		switch {
		case toks[end].is(open):
			level++
		case toks[end].is(close):
			level--
			if level == 0 {
				return end
			}
		}
	}
	return len(toks)
}

func (p *parser) skipBalanced(open, close string) error {
	end := matchClose(p.toks, p.pos, open, close)
	if end >= len(p.toks) {
		return p.errorf("missing '%s'", close)
	}
	p.pos = end + 1
	return nil
}

func (p *parser) skipTemplate() error {
	p.pos++ // template
	if p.peek(0).is("<") {
		end := skipAngles(p.toks, p.pos)
		if end >= len(p.toks) {
			return p.errorf("unterminated template parameter list")
		}
		p.pos = end + 1
	}

	return p.skipDeclaration()
}

// skipAngles returns the index of the '>' closing the template argument list starting at idx.
func skipAngles(toks []token, idx int) int {
	level := 0
	for end := idx; end < len(toks); end++ {
		tok := toks[end]
		switch {
		case tok.is("("):
			end = matchClose(toks, end, "(", ")")
		case tok.is("<"):
			level++
		case tok.is(">"):
			level--
		case tok.is(">>"):
			level -= 2
		case tok.is(";") || tok.is("{") || tok.is("}"):
			return len(toks)
		}

		if level <= 0 {
			return end
		}
	}
	return len(toks)
}

func (p *parser) skipDeclaration() error {
	sawAssign := false
	classLike := false

	for {
		tok := p.peek(0)
		switch {
		case tok.kind == tokEOF:
			return p.errorf("unexpected end of file")
		case tok.is(";"):
			p.pos++
			return nil
		case tok.is("}"):
			return nil
		case tok.is("("):
			if err := p.skipBalanced("(", ")"); err != nil {
				return err
			}
		case tok.is("["):
			if err := p.skipBalanced("[", "]"); err != nil {
				return err
			}
		case tok.is("{"):
			if err := p.skipBalanced("{", "}"); err != nil {
				return err
			}
			if p.accept(";") {
				return nil
			}
			if !sawAssign && !classLike {
				// function body
				return nil
			}
		default:
			if tok.is("=") && !p.prevIs("operator") {
				sawAssign = true
			}
			if tok.is("class") || tok.is("struct") || tok.is("union") || tok.is("enum") {
				classLike = true
			}
			p.pos++
		}
	}
}

func (p *parser) prevIs(text string) bool {
	return p.pos > 0 && p.toks[p.pos-1].is(text)
}

// collectDeclaration consumes a member or namespace level declaration. Function bodies and brace
// initializers are dropped from the result, a lone '{' marks where an initializer was.
func (p *parser) collectDeclaration() ([]token, error) {
	var (
		out       []token
		sawAssign bool
		groups    int
		isFunc    bool
		ctorInit  bool
	)

	for {
		tok := p.peek(0)
		switch {
		case tok.kind == tokEOF:
			return nil, p.errorf("unexpected end of file")
		case tok.is(";"):
			p.pos++
			return out, nil
		case tok.is("}"):
			return out, nil
		case tok.is("(") || tok.is("["):
			closer := ")"
			if tok.is("[") {
				closer = "]"
			}

			end := matchClose(p.toks, p.pos, tok.text, closer)
			if end >= len(p.toks) {
				return nil, p.errorf("missing '%s'", closer)
			}

			if tok.is("(") && !sawAssign && !ctorInit {
				if groups == 0 {
					inner := p.toks[p.pos+1 : end]
					isFunc = len(inner) == 0 || !(inner[0].is("*") || inner[0].is("&") || inner[0].is("^") || callingConventions[inner[0].text])
					if len(out) > 0 && out[len(out)-1].is("operator") {
						// operator() has its parameter list in the next group
						groups--
					}
				}
				groups++
			}

			out = append(out, p.toks[p.pos:end+1]...)
			p.pos = end + 1
		case tok.is("{"):
			prev := token{}
			if p.pos > 0 {
				prev = p.toks[p.pos-1]
			}

			if err := p.skipBalanced("{", "}"); err != nil {
				return nil, err
			}

			if isFunc && (!ctorInit || !(prev.kind == tokIdent || prev.is(">"))) {
				// function body, no ';' required
				p.accept(";")
				return out, nil
			}
			out = append(out, tok)
		case tok.is(":") && isFunc && groups > 0:
			ctorInit = true
			out = append(out, tok)
			p.pos++
		default:
			if tok.is("=") && !p.prevIs("operator") {
				sawAssign = true
			}
			out = append(out, tok)
			p.pos++
		}
	}
}

func (p *parser) using(ctx *scopeCtx, doc string) error {
	p.pos++ // using
	if p.peek(0).is("namespace") || p.peek(0).kind != tokIdent {
		return p.skipDeclaration()
	}

	name := p.peek(0).text
	save := p.pos
	p.pos++
	p.skipAttributes()
	if !p.accept("=") {
		// using-declaration
		p.pos = save
		return p.skipDeclaration()
	}

	toks, err := p.collectDeclaration()
	if err != nil {
		return err
	}

	base, n, _, err := parseDeclSpec(toks)
	if err != nil {
		// alias of something that cannot be represented, e.g. a dependent type
		return nil
	}

	d, _ := parseDeclarator(base, toks, n)
	target := d.typ
	if d.isFunc {
		target.funcPtr = true
	}

	p.addAlias(ctx, name, doc, target, d.array)
	return nil
}

func (p *parser) addAlias(ctx *scopeCtx, name, doc string, target typeRef, array [][]token) {
	cppName := qualify(ctx.cpp, name)
	if !target.builtin && !target.indirect() && len(array) == 0 {
		// typedef struct Foo Foo;
		if target.name == name || strings.TrimPrefix(target.name, "::") == cppName {
			return
		}
	}

	p.hdr.add(&alias{
		cppName:  cppName,
		bindName: ctx.bind + name,
		doc:      doc,
		target:   target,
		array:    array,
	})
}

func (p *parser) typedef(ctx *scopeCtx, doc string) error {
	p.pos++ // typedef
	tok := p.peek(0)

	var (
		named   decl
		tagName string
	)

	switch {
	case tok.is("struct") || tok.is("class") || tok.is("union"):
		rec, handled, err := p.recordDecl(ctx, doc, true)
		if err != nil {
			return err
		}
		if handled && rec != nil {
			named, tagName = rec, rec.cppName
		}
	case tok.is("enum"):
		e, handled, err := p.enumDecl(ctx, doc, true)
		if err != nil {
			return err
		}
		if handled && e != nil {
			named, tagName = e, e.cppName
		}
	}

	toks, err := p.collectDeclaration()
	if err != nil {
		return err
	}

	var (
		base typeRef
		idx  int
	)
	if named != nil {
		base = typeRef{name: "::" + tagName, spelled: tagName, quals: []bool{false}}
		idx = 0
	} else {
		base, idx, _, err = parseDeclSpec(toks)
		if err != nil {
			return nil
		}
	}

	for idx < len(toks) {
		d, next := parseDeclarator(base, toks, idx)
		if d.name != "" {
			target := d.typ
			if d.isFunc {
				target.funcPtr = true
			}

			anonymous := named != nil && tagName == ""
			plain := !target.indirect() && len(d.array) == 0
			switch {
			case anonymous && plain:
				// typedef struct { ... } Name;
				p.nameAnonymous(ctx, named, d.name)
				tagName = qualify(ctx.cpp, d.name)
				base.name, base.spelled = "::"+tagName, tagName
			case anonymous:
				// pointer typedef of an anonymous type, nothing to refer to
			default:
				p.addAlias(ctx, d.name, doc, target, d.array)
			}
		}

		if next < len(toks) && toks[next].is(",") {
			next++
		}
		if next <= idx {
			break
		}
		idx = next
	}

	return nil
}

func (p *parser) nameAnonymous(ctx *scopeCtx, d decl, name string) {
	cppName := qualify(ctx.cpp, name)
	bindName := ctx.bind + name

	switch v := d.(type) {
	case *record:
		v.cppName, v.bindName = cppName, bindName
	case *enum:
		v.cppName, v.bindName = cppName, bindName
	}
	p.hdr.add(d)
}

// recordDecl parses a class, struct or union definition. handled is false if the tokens turn out to
// be an elaborated type specifier of some other declaration.
func (p *parser) recordDecl(ctx *scopeCtx, doc string, typedefed bool) (*record, bool, error) {
	start := p.pos
	kindTok := p.peek(0)
	p.pos++

	var names []string
	for {
		if p.skipAttributes() {
			continue
		}

		tok := p.peek(0)
		if tok.is("final") && (p.peek(1).is("{") || p.peek(1).is(":")) {
			p.pos++
			continue
		}

		if tok.kind != tokIdent && !tok.is("::") {
			break
		}

		n, name, _, template := parseQualifiedName(p.toks, p.pos)
		if n == 0 || template {
			p.pos = start
			return nil, false, nil
		}
		names = append(names, name)
		p.pos += n
	}

	switch tok := p.peek(0); {
	case tok.is("{") || tok.is(":"):
	case tok.is(";") && !typedefed && (len(names) == 1 || (len(names) == 2 && ctx.rec == nil)):
		// forward declaration
		p.pos++
		return nil, true, nil
	default:
		p.pos = start
		return nil, false, nil
	}

	rec := &record{
		kind: recordKind(kindTok.text),
		doc:  doc,
		file: kindTok.file,
		line: kindTok.line,
	}

	var name string
	if len(names) > 0 {
		name = strings.TrimPrefix(names[len(names)-1], "::")
		rec.cppName = qualify(ctx.cpp, name)
		rec.bindName = ctx.bind + strings.ReplaceAll(name, "::", "_")
	}

	if p.accept(":") {
		bases, err := p.baseClause()
		if err != nil {
			return nil, true, err
		}
		rec.bases = bases
	}

	if !p.accept("{") {
		return nil, true, p.errorf("expected '{' in definition of %s", name)
	}

	if name != "" {
		p.hdr.add(rec)
	}

	inner := &scopeCtx{
		cpp:    rec.cppName,
		bind:   rec.bindName + "_",
		rec:    rec,
		access: accessPublic,
	}
	if rec.kind == kindClass {
		inner.access = accessPrivate
	}
	if name == "" {
		inner.cpp = qualify(ctx.cpp, "(anonymous)")
		inner.bind = ctx.bind
	}

	if err := p.scope(inner, true); err != nil {
		return nil, true, err
	}

	if typedefed {
		return rec, true, nil
	}

	toks, err := p.collectDeclaration()
	if err != nil {
		return nil, true, err
	}

	if ctx.rec != nil {
		switch {
		case name == "":
			ctx.rec.markOpaque("member of anonymous struct or union type")
		case len(toks) > 0:
			base := typeRef{name: "::" + rec.cppName, spelled: rec.cppName, quals: []bool{false}}
			p.fields(ctx, "", base, toks, 0)
		}
	}

	return rec, true, nil
}

func (p *parser) baseClause() ([]string, error) {
	var (
		bases   []string
		current []token
	)

	flush := func() {
		var name []token
		for _, tok := range current {
			if tok.is("public") || tok.is("protected") || tok.is("private") || tok.is("virtual") {
				continue
			}
			name = append(name, tok)
		}
		if len(name) > 0 {
			bases = append(bases, joinTokensTight(name))
		}
		current = nil
	}

	for {
		tok := p.peek(0)
		switch {
		case tok.kind == tokEOF:
			return nil, p.errorf("unexpected end of file in base clause")
		case tok.is("{"):
			flush()
			return bases, nil
		case tok.is("<"):
			end := skipAngles(p.toks, p.pos)
			if end >= len(p.toks) {
				return nil, p.errorf("unterminated template argument list")
			}
			current = append(current, p.toks[p.pos:end+1]...)
			p.pos = end + 1
		case tok.is(","):
			flush()
			p.pos++
		default:
			if attributeLen(p.toks, p.pos) > 0 {
				p.skipAttributes()
				continue
			}
			current = append(current, tok)
			p.pos++
		}
	}
}

func (p *parser) enumDecl(ctx *scopeCtx, doc string, typedefed bool) (*enum, bool, error) {
	start := p.pos
	kindTok := p.peek(0)
	p.pos++ // enum

	e := &enum{
		doc:  doc,
		file: kindTok.file,
		line: kindTok.line,
	}
	e.scoped = p.accept("class") || p.accept("struct")
	p.skipAttributes()

	var name string
	if tok := p.peek(0); tok.kind == tokIdent || tok.is("::") {
		n, qualified, _, _ := parseQualifiedName(p.toks, p.pos)
		if n == 0 {
			p.pos = start
			return nil, false, nil
		}
		name = strings.TrimPrefix(qualified, "::")
		p.pos += n
	}
	p.skipAttributes()

	if p.accept(":") {
		var toks []token
		for p.peek(0).kind != tokEOF && !p.peek(0).is("{") && !p.peek(0).is(";") {
			toks = append(toks, p.peek(0))
			p.pos++
		}

		underlying, _, _, err := parseDeclSpec(toks)
		if err != nil {
			return nil, true, p.errorf("invalid underlying type of enum %s", name)
		}
		e.underlying = &underlying
	}

	if p.peek(0).is(";") && name != "" {
		// opaque enum declaration
		p.pos++
		return nil, true, nil
	}

	if !p.accept("{") {
		p.pos = start
		return nil, false, nil
	}

	if name != "" {
		e.cppName = qualify(ctx.cpp, name)
		e.bindName = ctx.bind + strings.ReplaceAll(name, "::", "_")
		p.hdr.add(e)
	}

	if err := p.enumerators(ctx, e); err != nil {
		return nil, true, err
	}

	if typedefed {
		return e, true, nil
	}

	toks, err := p.collectDeclaration()
	if err != nil {
		return nil, true, err
	}

	if ctx.rec != nil && len(toks) > 0 {
		base := typeRef{name: "::" + e.cppName, spelled: e.cppName, quals: []bool{false}}
		if name == "" {
			base = e.underlyingRef()
		}
		p.fields(ctx, "", base, toks, 0)
	}

	return e, true, nil
}

func (e *enum) underlyingRef() typeRef {
	if e.underlying != nil {
		return *e.underlying
	}
	return typeRef{name: "int", builtin: true, spelled: "int", quals: []bool{false}}
}

func (p *parser) enumerators(ctx *scopeCtx, e *enum) error {
	var next int64

	for {
		tok := p.peek(0)
		switch {
		case tok.kind == tokEOF:
			return p.errorf("unexpected end of file in enum %s", e.cppName)
		case tok.is("}"):
			p.pos++
			return nil
		case tok.kind != tokIdent:
			return p.errorf("unexpected %q in enum %s", tok.text, e.cppName)
		}

		item := &enumerator{
			name:  tok.text,
			doc:   p.docs[p.pos],
			value: next,
		}
		p.pos++
		p.skipAttributes()

		if p.accept("=") {
			var expr []token
			level := 0
			for {
				cur := p.peek(0)
				if cur.kind == tokEOF || (level == 0 && (cur.is(",") || cur.is("}"))) {
					break
				}
				if cur.is("(") || cur.is("[") || cur.is("{") {
					level++
				}
				if cur.is(")") || cur.is("]") || cur.is("}") {
					level--
				}
				expr = append(expr, cur)
				p.pos++
			}

			value, err := evalExpr(mergeQualified(expr), tok.file, tok.line, p.constResolver(ctx.cpp, e))
			if err != nil && e.err == nil {
				e.err = err
			}
			item.value = value
		}

		e.items = append(e.items, item)
		next = item.value + 1

		if !e.scoped {
			p.hdr.constants[qualify(ctx.cpp, item.name)] = item.value
		}
		if e.cppName != "" {
			p.hdr.constants[qualify(e.cppName, item.name)] = item.value
		}

		if !p.accept(",") && !p.peek(0).is("}") {
			return p.errorf("expected ',' or '}' after enumerator %s", item.name)
		}
	}
}

// constResolver looks up enumerators visible from scope. Items of e are found before their enum is complete.
func (p *parser) constResolver(scope string, e *enum) identResolver {
	return func(name string) (int64, bool) {
		if e != nil {
			for _, item := range e.items {
				if item.name == name {
					return item.value, true
				}
			}
		}
		return p.hdr.constant(scope, name)
	}
}

func (h *header) constant(scope, name string) (int64, bool) {
	for {
		if value, ok := h.constants[qualify(scope, name)]; ok {
			return value, true
		}
		if scope == "" {
			return 0, false
		}
		scope = parentScope(scope)
	}
}

// mergeQualified joins qualified names like Foo::Bar into single identifier tokens.
func mergeQualified(toks []token) []token {
	var out []token
	for idx := 0; idx < len(toks); idx++ {
		tok := toks[idx]
		if tok.is("::") && idx+1 < len(toks) && toks[idx+1].kind == tokIdent {
			if len(out) > 0 && out[len(out)-1].kind == tokIdent {
				out[len(out)-1].text += "::" + toks[idx+1].text
			} else {
				merged := toks[idx+1]
				merged.text = "::" + merged.text
				out = append(out, merged)
			}
			idx++
			continue
		}
		out = append(out, tok)
	}
	return out
}

func (r *record) markOpaque(reason string) {
	if r.opaque == "" {
		r.opaque = reason
	}
}

func simpleName(cppName string) string {
	pos := strings.LastIndex(cppName, "::")
	if pos < 0 {
		return cppName
	}
	return cppName[pos+2:]
}

// member records the fields or method declared by toks inside the current record.
func (p *parser) member(ctx *scopeCtx, doc string, toks []token) {
	rest, flags := stripSpecifiers(toks)
	if len(rest) == 0 || flags.friend || flags.typedef {
		return
	}

	rec := ctx.rec
	if rest[0].is("~") || rest[0].is("operator") || (rec.cppName != "" && rest[0].is(simpleName(rec.cppName)) && len(rest) > 1 && rest[1].is("(")) {
		d, _ := parseDeclarator(typeRef{}, rest, 0)
		if d.isFunc {
			p.method(ctx, d, "", flags)
		}
		return
	}

	base, n, more, err := parseDeclSpec(rest)
	if err != nil {
		rec.markOpaque(fmt.Sprintf("cannot parse member declaration %q", joinTokens(toks)))
		return
	}

	flags.static = flags.static || more.static
	flags.virtual = flags.virtual || more.virtual

	if n < len(rest) {
		d, _ := parseDeclarator(base, rest, n)
		if d.isFunc {
			p.method(ctx, d, d.typ.String(), flags)
			return
		}
	}

	if flags.static {
		return
	}

	p.fields(ctx, doc, base, rest, n)
}

func (p *parser) fields(ctx *scopeCtx, doc string, base typeRef, toks []token, idx int) {
	rec := ctx.rec
	for idx < len(toks) {
		d, next := parseDeclarator(base, toks, idx)

		switch {
		case d.isFunc:
		case d.bitField:
			if d.name == "" {
				rec.markOpaque("unnamed bit-field")
			} else {
				rec.markOpaque(fmt.Sprintf("bit-field %s", d.name))
			}
		case d.name != "":
			rec.fields = append(rec.fields, &field{
				name:   d.name,
				doc:    doc,
				typ:    d.typ,
				array:  d.array,
				access: ctx.access,
				line:   toks[idx].line,
			})
		}

		doc = ""
		if next < len(toks) && toks[next].is(",") {
			next++
		}
		if next <= idx {
			return
		}
		idx = next
	}
}

func (p *parser) method(ctx *scopeCtx, d declarator, returnType string, flags declFlags) {
	virtual := flags.virtual || d.pure
	for _, q := range d.quals {
		if q.is("override") || q.is("final") {
			virtual = true
		}
	}
	if virtual {
		ctx.rec.polymorphic = true
	}

	signature := d.name + "(" + joinTokens(d.params) + ")"
	if returnType != "" {
		signature = returnType + " " + signature
	}
	if len(d.quals) > 0 {
		signature += " " + joinTokens(d.quals)
	}

	ctx.rec.methods = append(ctx.rec.methods, &method{
		name:      d.name,
		signature: signature,
		access:    ctx.access,
		virtual:   virtual,
		static:    flags.static,
	})
}
