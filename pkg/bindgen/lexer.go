package bindgen

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokChar
	tokPunct
	tokDirective
	tokDoc
)

type token struct {
	kind tokenKind
	text string
	file string
	line int
	// space is set if whitespace preceded the token on the same line
	space bool
}

func (t token) is(text string) bool {
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

// Longest punctuators first so that the greedy match below works.
var punctuators = []string{
	"<<=", ">>=", "...", "->*",
	"::", "->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "##", ".*",
}

type lexer struct {
	src       string
	file      string
	pos       int
	line      int
	lineStart bool
	space     bool
	tokens    []token
}

func lex(file, src string) ([]token, error) {
	l := &lexer{
		src:       src,
		file:      file,
		line:      1,
		lineStart: true,
	}

	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

// lexFragment tokenizes a macro body or directive argument. Directives inside are not recognized.
func lexFragment(file string, line int, src string) ([]token, error) {
	l := &lexer{
		src:  src,
		file: file,
		line: line,
	}

	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return newParseError(l.file, l.line, format, args...)
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) emit(kind tokenKind, text string, line int) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, file: l.file, line: line, space: l.space})
	l.space = false
	l.lineStart = false
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]

		switch {
		case c == '\n':
			l.pos++
			l.line++
			l.lineStart = true
			l.space = false
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
			l.space = true
		case c == '\\' && (l.peek(1) == '\n' || (l.peek(1) == '\r' && l.peek(2) == '\n')):
			// line splice outside of a directive
			if l.peek(1) == '\r' {
				l.pos++
			}
			l.pos += 2
			l.line++
			l.space = true
		case c == '#' && l.lineStart:
			if err := l.directive(); err != nil {
				return err
			}
		case c == '/' && l.peek(1) == '/':
			l.lineComment()
		case c == '/' && l.peek(1) == '*':
			if err := l.blockComment(); err != nil {
				return err
			}
		case isIdentStart(c):
			if err := l.identOrPrefixedLiteral(); err != nil {
				return err
			}
		case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
			l.number()
		case c == '"':
			if err := l.quoted('"', tokString, l.pos); err != nil {
				return err
			}
		case c == '\'':
			if err := l.quoted('\'', tokChar, l.pos); err != nil {
				return err
			}
		default:
			l.punct()
		}
	}

	return nil
}

func (l *lexer) directive() error {
	startLine := l.line
	l.pos++ // '#'

	var buf strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && (l.peek(1) == '\n' || (l.peek(1) == '\r' && l.peek(2) == '\n')) {
			if l.peek(1) == '\r' {
				l.pos++
			}
			l.pos += 2
			l.line++
			buf.WriteByte(' ')
			continue
		}

		if c == '\n' {
			break
		}

		if c == '/' && l.peek(1) == '/' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			break
		}

		if c == '/' && l.peek(1) == '*' {
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end == -1 {
				return l.errorf("unterminated comment")
			}
			l.line += strings.Count(l.src[l.pos:l.pos+2+end], "\n")
			l.pos += end + 4
			buf.WriteByte(' ')
			continue
		}

		if c == '"' || c == '\'' {
			// keep string literals intact so that "//" inside an include path survives
			end := l.pos + 1
			for end < len(l.src) && l.src[end] != c && l.src[end] != '\n' {
				if l.src[end] == '\\' {
					end++
				}
				end++
			}
			if end < len(l.src) && l.src[end] == c {
				end++
			}
			buf.WriteString(l.src[l.pos:end])
			l.pos = end
			continue
		}

		buf.WriteByte(c)
		l.pos++
	}

	l.emit(tokDirective, strings.TrimSpace(buf.String()), startLine)
	return nil
}

func (l *lexer) lineComment() {
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}

	text := l.src[start:l.pos]
	if (strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "////")) || strings.HasPrefix(text, "//!") {
		line := l.line
		l.emit(tokDoc, strings.TrimSpace(text[3:]), line)
		return
	}

	l.space = true
}

func (l *lexer) blockComment() error {
	start := l.pos
	startLine := l.line
	end := strings.Index(l.src[l.pos+2:], "*/")
	if end == -1 {
		return l.errorf("unterminated comment")
	}

	l.pos += end + 4
	text := l.src[start:l.pos]
	l.line += strings.Count(text, "\n")

	if len(text) > 4 && (text[2] == '*' || text[2] == '!') && text != "/**/" {
		wasLineStart := l.lineStart
		l.emit(tokDoc, cleanBlockDoc(text[3:len(text)-2]), startLine)
		l.lineStart = wasLineStart
		return nil
	}

	l.space = true
	return nil
}

func cleanBlockDoc(body string) string {
	lines := strings.Split(body, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		result = append(result, strings.TrimSpace(line))
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}

func (l *lexer) identOrPrefixedLiteral() error {
	start := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.pos++
	}
	word := l.src[start:l.pos]

	if l.pos < len(l.src) {
		next := l.src[l.pos]
		switch word {
		case "R", "u8R", "uR", "UR", "LR":
			if next == '"' {
				return l.rawString(start)
			}
		case "L", "u8", "u", "U":
			if next == '"' {
				return l.quoted('"', tokString, start)
			}
			if next == '\'' {
				return l.quoted('\'', tokChar, start)
			}
		}
	}

	l.emit(tokIdent, word, l.line)
	return nil
}

func (l *lexer) rawString(start int) error {
	line := l.line
	l.pos++ // opening quote
	open := strings.IndexByte(l.src[l.pos:], '(')
	if open == -1 {
		return l.errorf("malformed raw string literal")
	}

	delim := l.src[l.pos : l.pos+open]
	terminator := ")" + delim + "\""
	end := strings.Index(l.src[l.pos+open+1:], terminator)
	if end == -1 {
		return l.errorf("unterminated raw string literal")
	}

	l.pos += open + 1 + end + len(terminator)
	text := l.src[start:l.pos]
	l.line += strings.Count(text, "\n")
	l.emit(tokString, text, line)
	return nil
}

func (l *lexer) quoted(quote byte, kind tokenKind, start int) error {
	line := l.line

	// start may point at an encoding prefix, l.pos is at the opening quote
	i := l.pos + 1
	for i < len(l.src) {
		c := l.src[i]
		if c == '\\' {
			i += 2
			continue
		}
		if c == '\n' {
			break
		}
		if c == quote {
			l.pos = i + 1
			l.emit(kind, l.src[start:l.pos], line)
			return nil
		}
		i++
	}

	// a stray apostrophe usually is prose inside an #if 0 block
	if quote == '\'' {
		l.pos++
		l.emit(tokPunct, "'", line)
		return nil
	}
	return l.errorf("unterminated literal")
}

func (l *lexer) number() {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isIdentChar(c) || c == '.' {
			l.pos++
			continue
		}

		// digit separator
		if c == '\'' && isIdentChar(l.peek(1)) {
			l.pos++
			continue
		}

		// exponent sign
		if (c == '+' || c == '-') && l.pos > start {
			prev := l.src[l.pos-1]
			isHex := strings.HasPrefix(strings.ToLower(l.src[start:l.pos]), "0x")
			if (!isHex && (prev == 'e' || prev == 'E')) || (isHex && (prev == 'p' || prev == 'P')) {
				l.pos++
				continue
			}
		}

		break
	}

	l.emit(tokNumber, l.src[start:l.pos], l.line)
}

func (l *lexer) punct() {
	rest := l.src[l.pos:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			l.pos += len(p)
			l.emit(tokPunct, p, l.line)
			return
		}
	}

	l.pos++
	l.emit(tokPunct, rest[:1], l.line)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
