package bindgen

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

const maxIncludeDepth = 64

type macro struct {
	name     string
	funcLike bool
	params   []string
	variadic bool
	body     []token
}

type condFrame struct {
	line         int
	parentActive bool
	active       bool
	taken        bool
	sawElse      bool
}

type preprocessor struct {
	args     compilerArgs
	strict   bool
	macros   map[string]*macro
	visited  map[string]bool
	warnings []string
}

func newPreprocessor(args compilerArgs, strict bool) (*preprocessor, error) {
	pp := &preprocessor{
		args:    args,
		strict:  strict,
		macros:  make(map[string]*macro),
		visited: make(map[string]bool),
	}

	if err := pp.defineText("<builtin>", 0, "__cplusplus "+args.cplusplus()); err != nil {
		return nil, err
	}

	for _, op := range args.macros {
		if op.undef {
			delete(pp.macros, op.name)
			continue
		}

		if err := pp.defineText("<command line>", 0, op.name+" "+op.value); err != nil {
			return nil, err
		}
	}

	return pp, nil
}

func (pp *preprocessor) warnf(file string, line int, format string, args ...interface{}) {
	pp.warnings = append(pp.warnings, fmt.Sprintf("%s:%d: %s", file, line, fmt.Sprintf(format, args...)))
}

// run preprocesses the primary header and returns its expanded tokens. Included files only contribute macros.
func (pp *preprocessor) run(path string) ([]token, error) {
	return pp.file(path, true, 0)
}

func (pp *preprocessor) file(path string, primary bool, depth int) ([]token, error) {
	if depth > maxIncludeDepth {
		return nil, newParseError(path, 0, "#include nested too deeply")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	pp.visited[abs] = true

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, newParseError(path, 0, "failed to read file: %s", err)
	}

	toks, err := lex(path, string(data))
	if err != nil {
		return nil, err
	}

	var (
		out     []token
		pending []token
		stack   []condFrame
	)

	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}

		expanded, err := pp.expand(pending, map[string]bool{})
		pending = pending[:0]
		if err != nil {
			return err
		}

		if primary {
			out = append(out, expanded...)
		}
		return nil
	}

	for _, tok := range toks {
		if tok.kind != tokDirective {
			if active() {
				pending = append(pending, tok)
			}
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		name, rest := splitDirective(tok.text)
		switch name {
		case "if", "ifdef", "ifndef":
			frame := condFrame{line: tok.line, parentActive: active()}
			if frame.parentActive {
				cond, err := pp.condition(name, rest, tok)
				if err != nil {
					return nil, err
				}
				frame.active = cond
				frame.taken = cond
			}
			stack = append(stack, frame)
		case "elif":
			if len(stack) == 0 {
				return nil, newParseError(path, tok.line, "#elif without #if")
			}

			frame := &stack[len(stack)-1]
			if frame.sawElse {
				return nil, newParseError(path, tok.line, "#elif after #else")
			}

			frame.active = false
			if frame.parentActive && !frame.taken {
				cond, err := pp.condition("if", rest, tok)
				if err != nil {
					return nil, err
				}
				frame.active = cond
				frame.taken = cond
			}
		case "else":
			if len(stack) == 0 {
				return nil, newParseError(path, tok.line, "#else without #if")
			}

			frame := &stack[len(stack)-1]
			if frame.sawElse {
				return nil, newParseError(path, tok.line, "#else after #else")
			}
			frame.sawElse = true
			frame.active = frame.parentActive && !frame.taken
			frame.taken = true
		case "endif":
			if len(stack) == 0 {
				return nil, newParseError(path, tok.line, "#endif without #if")
			}
			stack = stack[:len(stack)-1]
		default:
			if !active() {
				continue
			}

			if err := pp.directive(path, name, rest, tok, depth); err != nil {
				return nil, err
			}
		}
	}

	if len(stack) > 0 {
		return nil, newParseError(path, stack[len(stack)-1].line, "unterminated conditional directive")
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}

func splitDirective(text string) (string, string) {
	end := 0
	for end < len(text) && isIdentChar(text[end]) {
		end++
	}

	return text[:end], strings.TrimSpace(text[end:])
}

func (pp *preprocessor) directive(path, name, rest string, tok token, depth int) error {
	switch name {
	case "":
		// null directive
	case "define":
		return pp.defineText(path, tok.line, rest)
	case "undef":
		delete(pp.macros, strings.TrimSpace(rest))
	case "include", "include_next", "import":
		return pp.include(path, rest, tok, depth)
	case "error":
		return newParseError(path, tok.line, "#error %s", rest)
	case "warning":
		pp.warnf(path, tok.line, "#warning %s", rest)
	case "pragma", "line", "ident", "sccs":
	default:
		return newParseError(path, tok.line, "unknown directive #%s", name)
	}

	return nil
}

func (pp *preprocessor) defineText(file string, line int, text string) error {
	toks, err := lexFragment(file, line, text)
	if err != nil {
		return err
	}

	if len(toks) == 0 || toks[0].kind != tokIdent {
		return newParseError(file, line, "macro name missing")
	}

	m := &macro{name: toks[0].text}
	body := toks[1:]

	if len(body) > 0 && body[0].is("(") && !body[0].space {
		m.funcLike = true
		idx := 1
		for ; idx < len(body); idx++ {
			t := body[idx]
			if t.is(")") {
				break
			}
			if t.is(",") {
				continue
			}

			switch {
			case t.is("..."):
				m.variadic = true
			case t.kind == tokIdent:
				m.params = append(m.params, t.text)
			default:
				return newParseError(file, line, "invalid parameter %q in macro %s", t.text, m.name)
			}
		}

		if idx >= len(body) {
			return newParseError(file, line, "missing ')' in parameter list of macro %s", m.name)
		}
		body = body[idx+1:]
	}

	for _, t := range body {
		if t.kind != tokDoc {
			m.body = append(m.body, t)
		}
	}

	pp.macros[m.name] = m
	return nil
}

func (pp *preprocessor) include(path, rest string, tok token, depth int) error {
	target, angled, ok := parseIncludeTarget(rest)
	if !ok {
		// computed include
		toks, err := lexFragment(path, tok.line, rest)
		if err != nil {
			return err
		}

		expanded, err := pp.expand(toks, map[string]bool{})
		if err != nil {
			return err
		}

		target, angled, ok = parseIncludeTarget(joinTokens(expanded))
		if !ok {
			return newParseError(path, tok.line, "malformed #include %s", rest)
		}
	}

	resolved, found := pp.resolveInclude(path, target, angled)
	if !found {
		if angled {
			// system header
			return nil
		}

		if pp.strict {
			return newParseError(path, tok.line, "include file %q not found", target)
		}
		pp.warnf(path, tok.line, "include file %q not found", target)
		return nil
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		abs = resolved
	}
	if pp.visited[abs] {
		return nil
	}

	_, err = pp.file(resolved, false, depth+1)
	return err
}

func parseIncludeTarget(text string) (string, bool, bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return "", false, false
	}

	switch text[0] {
	case '"':
		end := strings.IndexByte(text[1:], '"')
		if end == -1 {
			return "", false, false
		}
		return text[1 : end+1], false, true
	case '<':
		end := strings.IndexByte(text, '>')
		if end == -1 {
			return "", false, false
		}
		return strings.TrimSpace(text[1:end]), true, true
	}

	return "", false, false
}

func (pp *preprocessor) resolveInclude(from, target string, angled bool) (string, bool) {
	var candidates []string
	if filepath.IsAbs(target) {
		candidates = append(candidates, target)
	} else {
		if !angled {
			candidates = append(candidates, filepath.Join(filepath.Dir(from), target))
		}
		for _, dir := range pp.args.includeDirs {
			candidates = append(candidates, filepath.Join(dir, target))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true
		}
	}

	return "", false
}

func (pp *preprocessor) condition(kind, rest string, tok token) (bool, error) {
	switch kind {
	case "ifdef", "ifndef":
		name, _ := splitDirective(rest)
		if name == "" {
			return false, newParseError(tok.file, tok.line, "#%s without macro name", kind)
		}

		_, defined := pp.macros[name]
		return defined == (kind == "ifdef"), nil
	}

	toks, err := lexFragment(tok.file, tok.line, rest)
	if err != nil {
		return false, err
	}

	toks, err = pp.replaceQueries(toks, tok)
	if err != nil {
		return false, err
	}

	toks, err = pp.expand(toks, map[string]bool{})
	if err != nil {
		return false, err
	}

	value, err := evalExpr(toks, tok.file, tok.line, func(string) (int64, bool) {
		// identifiers left over after expansion evaluate to zero
		return 0, true
	})
	if err != nil {
		return false, err
	}

	return value != 0, nil
}

func numberToken(value bool, at token) token {
	text := "0"
	if value {
		text = "1"
	}
	return token{kind: tokNumber, text: text, file: at.file, line: at.line, space: at.space}
}

// replaceQueries evaluates defined and the __has_* operators before macro expansion touches their operands.
func (pp *preprocessor) replaceQueries(toks []token, at token) ([]token, error) {
	var out []token
	for idx := 0; idx < len(toks); idx++ {
		t := toks[idx]
		if t.kind != tokIdent {
			out = append(out, t)
			continue
		}

		switch t.text {
		case "defined":
			var name string
			if idx+1 < len(toks) && toks[idx+1].is("(") {
				if idx+3 >= len(toks) || toks[idx+2].kind != tokIdent || !toks[idx+3].is(")") {
					return nil, newParseError(at.file, at.line, "malformed defined() operator")
				}
				name = toks[idx+2].text
				idx += 3
			} else if idx+1 < len(toks) && toks[idx+1].kind == tokIdent {
				name = toks[idx+1].text
				idx++
			} else {
				return nil, newParseError(at.file, at.line, "defined without macro name")
			}

			_, defined := pp.macros[name]
			out = append(out, numberToken(defined, t))
		case "__has_include", "__has_include_next":
			end, arg, err := parenArg(toks, idx+1, at)
			if err != nil {
				return nil, err
			}

			target, angled, ok := parseIncludeTarget(joinTokensTight(arg))
			if !ok {
				return nil, newParseError(at.file, at.line, "malformed __has_include operand")
			}

			_, found := pp.resolveInclude(at.file, target, angled)
			out = append(out, numberToken(found, t))
			idx = end
		case "__has_cpp_attribute", "__has_attribute", "__has_builtin", "__has_feature", "__has_extension", "__has_declspec_attribute":
			end, _, err := parenArg(toks, idx+1, at)
			if err != nil {
				return nil, err
			}

			out = append(out, numberToken(false, t))
			idx = end
		default:
			out = append(out, t)
		}
	}

	return out, nil
}

// parenArg returns the tokens between the parenthesis starting at idx and the index of the closing one.
func parenArg(toks []token, idx int, at token) (int, []token, error) {
	if idx >= len(toks) || !toks[idx].is("(") {
		return 0, nil, newParseError(at.file, at.line, "expected '('")
	}

	level := 0
	for end := idx; end < len(toks); end++ {
		switch {
		case toks[end].is("("):
			level++
		case toks[end].is(")"):
			level--
			if level == 0 {
				return end, toks[idx+1 : end], nil
			}
		}
	}

	return 0, nil, newParseError(at.file, at.line, "missing ')'")
}

func joinTokens(toks []token) string {
	var buf strings.Builder
	for idx, t := range toks {
		if idx > 0 && t.space {
			buf.WriteByte(' ')
		}
		buf.WriteString(t.text)
	}
	return buf.String()
}

func joinTokensTight(toks []token) string {
	var buf strings.Builder
	for _, t := range toks {
		buf.WriteString(t.text)
	}
	return buf.String()
}

// expand performs macro replacement on toks. disabled holds the macros currently being expanded.
func (pp *preprocessor) expand(toks []token, disabled map[string]bool) ([]token, error) {
	var out []token
	for idx := 0; idx < len(toks); idx++ {
		t := toks[idx]
		if t.kind != tokIdent || disabled[t.text] {
			out = append(out, t)
			continue
		}

		m, ok := pp.macros[t.text]
		if !ok {
			out = append(out, t)
			continue
		}

		var args [][]token
		if m.funcLike {
			next := idx + 1
			for next < len(toks) && toks[next].kind == tokDoc {
				next++
			}
			if next >= len(toks) || !toks[next].is("(") {
				// a function-like macro name without arguments is left alone
				out = append(out, t)
				continue
			}

			end, inner, err := parenArg(toks, next, t)
			if err != nil {
				return nil, newParseError(t.file, t.line, "unterminated invocation of macro %s", m.name)
			}

			args, err = splitArgs(m, inner, t)
			if err != nil {
				return nil, err
			}
			idx = end
		}

		body, err := pp.substitute(m, args, disabled, t)
		if err != nil {
			return nil, err
		}

		disabled[m.name] = true
		expanded, err := pp.expand(body, disabled)
		delete(disabled, m.name)
		if err != nil {
			return nil, err
		}

		out = append(out, expanded...)
	}

	return out, nil
}

func splitArgs(m *macro, inner []token, at token) ([][]token, error) {
	var (
		args    [][]token
		current []token
		level   int
	)

	for _, t := range inner {
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			level++
		case t.is(")") || t.is("]") || t.is("}"):
			level--
		case t.is(",") && level == 0:
			args = append(args, current)
			current = nil
			continue
		}
		current = append(current, t)
	}
	args = append(args, current)

	if len(m.params) == 0 && len(args) == 1 && len(args[0]) == 0 {
		args = nil
	}

	if m.variadic {
		if len(args) < len(m.params) {
			return nil, newParseError(at.file, at.line, "macro %s expects at least %d arguments, got %d", m.name, len(m.params), len(args))
		}

		var rest []token
		for idx, arg := range args[len(m.params):] {
			if idx > 0 {
				rest = append(rest, token{kind: tokPunct, text: ",", file: at.file, line: at.line})
			}
			rest = append(rest, arg...)
		}
		return append(args[:len(m.params)], rest), nil
	}

	if len(args) != len(m.params) {
		return nil, newParseError(at.file, at.line, "macro %s expects %d arguments, got %d", m.name, len(m.params), len(args))
	}
	return args, nil
}

func (m *macro) paramIndex(name string) int {
	for idx, param := range m.params {
		if param == name {
			return idx
		}
	}

	if m.variadic && name == "__VA_ARGS__" {
		return len(m.params)
	}
	return -1
}

func stringize(toks []token, at token) token {
	text := joinTokens(toks)
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `"`, `\"`)
	return token{kind: tokString, text: `"` + text + `"`, file: at.file, line: at.line, space: true}
}

func (pp *preprocessor) substitute(m *macro, args [][]token, disabled map[string]bool, at token) ([]token, error) {
	var out []token
	body := m.body

	for idx := 0; idx < len(body); idx++ {
		t := body[idx]
		t.file = at.file
		t.line = at.line

		switch {
		case m.funcLike && t.is("#") && idx+1 < len(body) && m.paramIndex(body[idx+1].text) != -1:
			out = append(out, stringize(args[m.paramIndex(body[idx+1].text)], at))
			idx++
		case t.is("##") && len(out) > 0 && idx+1 < len(body):
			idx++
			rhs := []token{body[idx]}
			if param := m.paramIndex(body[idx].text); m.funcLike && param != -1 {
				rhs = args[param]
			}
			if len(rhs) == 0 {
				continue
			}

			pasted, err := pasteTokens(out[len(out)-1], rhs[0], at)
			if err != nil {
				return nil, err
			}
			out[len(out)-1] = pasted
			out = append(out, rhs[1:]...)
		case t.kind == tokIdent && m.funcLike && m.paramIndex(t.text) != -1:
			arg := append([]token(nil), args[m.paramIndex(t.text)]...)
			if len(arg) > 0 {
				arg[0].space = t.space
			}
			if idx+1 < len(body) && body[idx+1].is("##") {
				out = append(out, arg...)
				continue
			}

			expanded, err := pp.expand(arg, disabled)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		default:
			out = append(out, t)
		}
	}

	if len(out) > 0 {
		out[0].space = at.space
	}
	return out, nil
}

func pasteTokens(lhs, rhs token, at token) (token, error) {
	text := lhs.text + rhs.text
	toks, err := lexFragment(at.file, at.line, text)
	if err != nil {
		return token{}, err
	}

	if len(toks) != 1 {
		return token{}, newParseError(at.file, at.line, "pasting %q and %q does not give a valid token", lhs.text, rhs.text)
	}

	pasted := toks[0]
	pasted.space = lhs.space
	return pasted, nil
}
