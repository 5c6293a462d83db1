package bindgen

import (
	"strconv"
	"strings"
)

// identResolver maps an identifier inside a constant expression to its value.
type identResolver func(name string) (int64, bool)

type exprParser struct {
	toks    []token
	pos     int
	file    string
	line    int
	resolve identResolver
}

// evalExpr evaluates an integral constant expression as found in #if directives and enumerators.
func evalExpr(toks []token, file string, line int, resolve identResolver) (int64, error) {
	p := &exprParser{
		toks:    toks,
		file:    file,
		line:    line,
		resolve: resolve,
	}

	if len(toks) == 0 {
		return 0, p.errorf("empty expression")
	}

	value, err := p.ternary()
	if err != nil {
		return 0, err
	}

	if p.pos < len(p.toks) {
		return 0, p.errorf("unexpected %q in expression", p.toks[p.pos].text)
	}
	return value, nil
}

func (p *exprParser) errorf(format string, args ...interface{}) error {
	return newParseError(p.file, p.line, format, args...)
}

func (p *exprParser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *exprParser) accept(text string) bool {
	tok, ok := p.peek()
	if ok && tok.kind == tokPunct && tok.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) ternary() (int64, error) {
	cond, err := p.binary(1)
	if err != nil {
		return 0, err
	}

	if !p.accept("?") {
		return cond, nil
	}

	whenTrue, err := p.ternary()
	if err != nil {
		return 0, err
	}

	if !p.accept(":") {
		return 0, p.errorf("expected ':' in conditional expression")
	}

	whenFalse, err := p.ternary()
	if err != nil {
		return 0, err
	}

	if cond != 0 {
		return whenTrue, nil
	}
	return whenFalse, nil
}

var binaryPrecedence = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (p *exprParser) binary(minPrec int) (int64, error) {
	lhs, err := p.unary()
	if err != nil {
		return 0, err
	}

	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokPunct {
			return lhs, nil
		}

		prec, isBinary := binaryPrecedence[tok.text]
		if !isBinary || prec < minPrec {
			return lhs, nil
		}
		p.pos++

		rhs, err := p.binary(prec + 1)
		if err != nil {
			return 0, err
		}

		lhs, err = p.apply(tok.text, lhs, rhs)
		if err != nil {
			return 0, err
		}
	}
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (p *exprParser) apply(op string, lhs, rhs int64) (int64, error) {
	switch op {
	case "||":
		return boolValue(lhs != 0 || rhs != 0), nil
	case "&&":
		return boolValue(lhs != 0 && rhs != 0), nil
	case "|":
		return lhs | rhs, nil
	case "^":
		return lhs ^ rhs, nil
	case "&":
		return lhs & rhs, nil
	case "==":
		return boolValue(lhs == rhs), nil
	case "!=":
		return boolValue(lhs != rhs), nil
	case "<":
		return boolValue(lhs < rhs), nil
	case "<=":
		return boolValue(lhs <= rhs), nil
	case ">":
		return boolValue(lhs > rhs), nil
	case ">=":
		return boolValue(lhs >= rhs), nil
	case "<<":
		if rhs < 0 || rhs > 63 {
			return 0, p.errorf("shift count %d out of range", rhs)
		}
		return lhs << uint(rhs), nil
	case ">>":
		if rhs < 0 || rhs > 63 {
			return 0, p.errorf("shift count %d out of range", rhs)
		}
		return lhs >> uint(rhs), nil
	case "+":
		return lhs + rhs, nil
	case "-":
		return lhs - rhs, nil
	case "*":
		return lhs * rhs, nil
	case "/", "%":
		if rhs == 0 {
			return 0, p.errorf("division by zero")
		}
		if op == "/" {
			return lhs / rhs, nil
		}
		return lhs % rhs, nil
	}

	return 0, p.errorf("unsupported operator %s", op)
}

func (p *exprParser) unary() (int64, error) {
	tok, ok := p.peek()
	if !ok {
		return 0, p.errorf("unexpected end of expression")
	}

	if tok.kind == tokPunct {
		switch tok.text {
		case "!", "~", "-", "+":
			p.pos++
			value, err := p.unary()
			if err != nil {
				return 0, err
			}

			switch tok.text {
			case "!":
				return boolValue(value == 0), nil
			case "~":
				return ^value, nil
			case "-":
				return -value, nil
			default:
				return value, nil
			}
		case "(":
			p.pos++
			value, err := p.ternary()
			if err != nil {
				return 0, err
			}
			if !p.accept(")") {
				return 0, p.errorf("missing ')' in expression")
			}
			return value, nil
		}
	}

	return p.primary()
}

func (p *exprParser) primary() (int64, error) {
	tok, _ := p.peek()
	p.pos++

	switch tok.kind {
	case tokNumber:
		value, err := parseIntLiteral(tok.text)
		if err != nil {
			return 0, p.errorf("%s", err.Error())
		}
		return value, nil
	case tokChar:
		value, err := parseCharLiteral(tok.text)
		if err != nil {
			return 0, p.errorf("%s", err.Error())
		}
		return value, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return 1, nil
		case "false":
			return 0, nil
		}

		if p.resolve != nil {
			if value, ok := p.resolve(tok.text); ok {
				return value, nil
			}
		}
		return 0, p.errorf("cannot evaluate identifier %s", tok.text)
	}

	return 0, p.errorf("unexpected %q in expression", tok.text)
}

func parseIntLiteral(text string) (int64, error) {
	clean := strings.ReplaceAll(text, "'", "")
	clean = strings.TrimRight(clean, "uUlLzZ")
	lower := strings.ToLower(clean)

	base := 10
	switch {
	case strings.HasPrefix(lower, "0x"):
		base = 16
		clean = clean[2:]
	case strings.HasPrefix(lower, "0b"):
		base = 2
		clean = clean[2:]
	case len(clean) > 1 && clean[0] == '0':
		base = 8
		clean = clean[1:]
	}

	if base != 16 && strings.ContainsAny(lower, ".e") {
		return 0, &strconv.NumError{Func: "parseIntLiteral", Num: text, Err: strconv.ErrSyntax}
	}

	value, err := strconv.ParseUint(clean, base, 64)
	if err != nil {
		return 0, &strconv.NumError{Func: "parseIntLiteral", Num: text, Err: strconv.ErrSyntax}
	}
	return int64(value), nil
}

func parseCharLiteral(text string) (int64, error) {
	start := strings.IndexByte(text, '\'')
	if start == -1 || len(text) < start+3 || text[len(text)-1] != '\'' {
		return 0, &strconv.NumError{Func: "parseCharLiteral", Num: text, Err: strconv.ErrSyntax}
	}

	value, _, tail, err := strconv.UnquoteChar(text[start+1:len(text)-1], '\'')
	if err != nil || tail != "" {
		return 0, &strconv.NumError{Func: "parseCharLiteral", Num: text, Err: strconv.ErrSyntax}
	}
	return int64(value), nil
}
