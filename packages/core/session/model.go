package session

import (
	"fmt"
	"time"
)

// Kind selects the payload shape of a step
type Kind string

const (
	KindGraphQL Kind = "graphql"
	KindREST    Kind = "rest"
)

// UserResultID is the result id seeded with the virtual user before the
// first step runs
const UserResultID = "user"

// Session is an ordered, read-only list of recorded steps
type Session struct {
	Name  string
	Steps []Step
	Path  string // source file, if loaded from disk
}

// Step is one recorded interaction. It is either a *GraphQLStep or a
// *RestStep; both embed StepBase.
type Step interface {
	Base() *StepBase
	Kind() Kind
}

// StepBase holds the attributes shared by both step shapes
type StepBase struct {
	Name          string
	TargetIndex   int
	ResultID      string
	ResultChecks  []ResultCheck
	HeaderSetters []HeaderSetter
	Headers       []HeaderSpec
	RepeatCount   int
	// SleepOverride is the pause after the step in milliseconds, nil to
	// derive it from recorded timestamps
	SleepOverride  *int64
	ExpectedStatus int // 0 means unchecked

	RecordedStart    *time.Time
	RecordedEnd      *time.Time
	RecordedDuration float64
	// RecordedResult and RecordedStatus are the captured response, used as the
	// mocked response during dry runs
	RecordedResult any
	RecordedStatus int
}

// Repeats returns how many times the step runs, at least once
func (b *StepBase) Repeats() int {
	if b.RepeatCount < 1 {
		return 1
	}
	return b.RepeatCount
}

// GraphQLStep sends {query, operationName, variables} to its host
type GraphQLStep struct {
	StepBase
	Query            string
	OperationName    *string
	Variables        any
	VariableSettings []VariableSetting
}

func (s *GraphQLStep) Base() *StepBase { return &s.StepBase }
func (s *GraphQLStep) Kind() Kind      { return KindGraphQL }

// RestStep sends a recorded payload to its host
type RestStep struct {
	StepBase
	Method         string
	Payload        any
	QueryString    string
	PayloadChanges []PayloadChange
}

func (s *RestStep) Base() *StepBase { return &s.StepBase }
func (s *RestStep) Kind() Kind      { return KindREST }

// ResultCheck is a declarative assertion on a response body
type ResultCheck struct {
	Path     string
	Min      *int
	Max      *int
	Equal    any // nil means unset
	Truthy   bool
	WarnOnly bool
}

// VariableSetting overwrites a GraphQL variable with a stored result value
type VariableSetting struct {
	ValueFromResultID string
	Path              string
	VariableName      string
}

// PayloadChange overwrites a REST payload field with a stored result value
type PayloadChange struct {
	TargetPath        string
	ValueFromResultID string
	PathInResults     string
}

// HeaderSetter derives a persistent header from the step's own response
type HeaderSetter struct {
	Path   string
	Header string
	Prefix string
	Suffix string
}

// HeaderSpec is a header attached to the step's own request
type HeaderSpec struct {
	ID    string
	Value string
	Hash  *HashSpec
}

// HashSpec asks for a keyed hash of the outbound payload
type HashSpec struct {
	Algorithm string
	Secret    string
}

// DisplayName returns the name used in logs and metrics:
// "<kind>-<operationName>", falling back to the step name
func DisplayName(s Step) string {
	name := s.Base().Name
	if g, ok := s.(*GraphQLStep); ok && g.OperationName != nil && *g.OperationName != "" {
		name = *g.OperationName
	}
	if name == "" {
		name = "op missing"
	}
	return fmt.Sprintf("%s-%s", s.Kind(), name)
}

// StripRecordedResults drops captured response bodies so they do not bloat
// diagnostics during live runs
func (s *Session) StripRecordedResults() {
	for _, step := range s.Steps {
		step.Base().RecordedResult = nil
	}
}

// ResultIDs lists the result ids declared by the session in step order
func (s *Session) ResultIDs() []string {
	var ids []string
	for _, step := range s.Steps {
		if id := step.Base().ResultID; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
