package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures
type Kind string

const (
	ToolchainInvocationError Kind = "ToolchainInvocationError"
	BuildFailure             Kind = "BuildFailure"
	ArtifactCopyError        Kind = "ArtifactCopyError"
	HeaderParseError         Kind = "HeaderParseError"
	WriteError               Kind = "WriteError"
	ConfigError              Kind = "ConfigError"
	HookFailure              Kind = "HookFailure"
	ShaderCompileError       Kind = "ShaderCompileError"
	Cancelled                Kind = "Cancelled"
)

// Error is returned for every failure that aborts a run. Output holds whatever the failed
// process printed, if anything.
type Error struct {
	Kind   Kind
	Stage  StageName
	Output string
	Err    error
}

// NewError creates a new *Error for the given stage
func NewError(kind Kind, stage StageName, err error) *Error {
	return &Error{
		Kind:  kind,
		Stage: stage,
		Err:   err,
	}
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain or an empty string.
func KindOf(err error) Kind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return ""
}

// Fatal reports whether an error of this kind halts the run
func (k Kind) Fatal() bool {
	return k != ArtifactCopyError
}
