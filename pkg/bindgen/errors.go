package bindgen

import "fmt"

// ParseError describes a problem in the processed header or one of its includes.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func newParseError(file string, line int, format string, args ...interface{}) *ParseError {
	return &ParseError{
		File: file,
		Line: line,
		Msg:  fmt.Sprintf(format, args...),
	}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Msg)
	}
	return e.Msg
}
