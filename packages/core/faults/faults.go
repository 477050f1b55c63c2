// Package faults defines the error taxonomy of the replay engine.
//
// Every failure the engine raises is an *Error carrying a Kind. Kinds are
// themselves errors, so callers can branch with errors.Is:
//
//	if errors.Is(err, faults.MissingResultSource) { ... }
//
// All kinds abort the current virtual-user iteration except
// ResponseParseError, which is reported and then ignored.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a replay failure
type Kind int

const (
	// MissingResultSource means a step referenced a resultId that was never stored
	MissingResultSource Kind = iota + 1
	// PathNotFound means a path expression produced no usable match
	PathNotFound
	// VariableTargetMissing means a substitution named a variable absent from the template
	VariableTargetMissing
	// HeaderComputationFailed means a step-local header had no usable value
	HeaderComputationFailed
	// HeaderSetterFailed means a header setter could not extract its value
	HeaderSetterFailed
	// CheckFailed means a non warn-only result check did not pass
	CheckFailed
	// StatusMismatch means the HTTP status differed from the expected status
	StatusMismatch
	// ResponseParseError means the response body was not valid JSON
	ResponseParseError
	// InvalidTarget means a step selected a host index outside the host list
	InvalidTarget
	// InvalidPayload means a REST payload could not be parsed for substitution
	InvalidPayload
)

var kindNames = map[Kind]string{
	MissingResultSource:     "MissingResultSource",
	PathNotFound:            "PathNotFound",
	VariableTargetMissing:   "VariableTargetMissing",
	HeaderComputationFailed: "HeaderComputationFailed",
	HeaderSetterFailed:      "HeaderSetterFailed",
	CheckFailed:             "CheckFailed",
	StatusMismatch:          "StatusMismatch",
	ResponseParseError:      "ResponseParseError",
	InvalidTarget:           "InvalidTarget",
	InvalidPayload:          "InvalidPayload",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error lets a Kind be used as an errors.Is target
func (k Kind) Error() string {
	return k.String()
}

// Error is a replay failure tied to a step
type Error struct {
	Kind     Kind
	Step     int    // step index, -1 when not tied to a step
	Repeat   int    // repeat index within the step
	StepName string // display name of the step, if any
	ResultID string // resultId involved, if any
	Path     string // path expression involved, if any
	Msg      string
	Err      error
}

// New creates an Error not yet bound to a step
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Step: -1,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error with an underlying cause
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Step >= 0 {
		fmt.Fprintf(&b, " at step %d", e.Step)
		if e.Repeat > 0 {
			fmt.Fprintf(&b, " (repeat %d)", e.Repeat)
		}
		if e.StepName != "" {
			fmt.Fprintf(&b, " %q", e.StepName)
		}
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.ResultID != "" {
		fmt.Fprintf(&b, " [resultId=%s]", e.ResultID)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " [path=%s]", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so errors.Is(err, faults.PathNotFound) works
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

// AtStep binds the error to a step position, keeping any earlier binding
func (e *Error) AtStep(index, repeat int, name string) *Error {
	if e.Step < 0 {
		e.Step = index
		e.Repeat = repeat
		e.StepName = name
	}
	return e
}

// KindOf returns the Kind of err, or 0 when err is not a replay fault
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}

// IsFatal reports whether err must abort the current iteration
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != ResponseParseError
}
