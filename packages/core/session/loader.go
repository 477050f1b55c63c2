package session

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a session document
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks the format by file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// document is the recorded trace as written by the recorder tooling
type document struct {
	TestName  string     `json:"testName"`
	TestSteps []wireStep `json:"testSteps"`
}

type wireStep struct {
	StepType          string             `json:"stepType,omitempty"`
	Host              int                `json:"host,omitempty"`
	Name              string             `json:"name,omitempty"`
	StartTime         string             `json:"startTime,omitempty"`
	EndTime           string             `json:"endTime,omitempty"`
	Result            any                `json:"result,omitempty"`
	Duration          float64            `json:"duration,omitempty"`
	ResultID          string             `json:"resultId,omitempty"`
	ResultChecks      []wireCheck        `json:"resultChecks,omitempty"`
	NumberOfRepeats   int                `json:"numberOfRepeats,omitempty"`
	SleepTimeout      *float64           `json:"sleepTimeout,omitempty"`
	HTTPHeaderSetters []wireHeaderSetter `json:"httpHeaderSetters,omitempty"`
	HTTPHeader        []wireHeader       `json:"httpHeader,omitempty"`
	HTTPResponseCheck int                `json:"httpResponseCheck,omitempty"`
	HTTPResponse      int                `json:"httpResponse,omitempty"`

	// REST
	Method         string              `json:"method,omitempty"`
	Payload        any                 `json:"payload,omitempty"`
	QueryStrings   string              `json:"queryStrings,omitempty"`
	PayloadChanges []wirePayloadChange `json:"payloadChanges,omitempty"`

	// GraphQL
	Query            string                `json:"query,omitempty"`
	OperationName    *string               `json:"operationName,omitempty"`
	Variables        any                   `json:"variables,omitempty"`
	VariableSettings []wireVariableSetting `json:"variableSettings,omitempty"`
}

type wireCheck struct {
	JSONPath string `json:"jsonPath"`
	Min      *int   `json:"min,omitempty"`
	Max      *int   `json:"max,omitempty"`
	Equal    any    `json:"equal,omitempty"`
	Truthy   bool   `json:"truthy,omitempty"`
	WarnOnly bool   `json:"warnOnly,omitempty"`
}

type wireHeaderSetter struct {
	JSONPath string `json:"jsonPath"`
	Header   string `json:"header"`
	Prefix   string `json:"prefix,omitempty"`
	Suffix   string `json:"suffix,omitempty"`
}

type wireHeader struct {
	ID          string    `json:"id"`
	Value       string    `json:"value,omitempty"`
	HashCompute *wireHash `json:"hashCompute,omitempty"`
}

type wireHash struct {
	Secret    string `json:"secret"`
	Algorithm string `json:"algorithm"`
}

type wirePayloadChange struct {
	FindAndReplaceJSONPath string `json:"findAndReplaceJsonPath"`
	ValueFromResultID      string `json:"valueFromResultId"`
	JSONPathInResults      string `json:"jsonPathInResults"`
}

type wireVariableSetting struct {
	ValueFromResultID string `json:"valueFromResultId"`
	JSONPath          string `json:"jsonPath"`
	VariableName      string `json:"variableName"`
}

// Load reads and decodes a session file
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	s, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Decode validates a session document against the trace schema and converts
// it to the in-memory model
func Decode(data []byte, format Format) (*Session, error) {
	data, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}

	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}

	s := &Session{Name: doc.TestName, Steps: make([]Step, 0, len(doc.TestSteps))}
	for i, ws := range doc.TestSteps {
		step, err := ws.toStep()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

func toJSON(data []byte, format Format) ([]byte, error) {
	if format != FormatYAML {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("converting yaml: %w", err)
	}
	return out, nil
}

func (ws wireStep) toStep() (Step, error) {
	base := StepBase{
		Name:             ws.Name,
		TargetIndex:      ws.Host,
		ResultID:         ws.ResultID,
		RepeatCount:      ws.NumberOfRepeats,
		ExpectedStatus:   ws.HTTPResponseCheck,
		RecordedDuration: ws.Duration,
		RecordedResult:   ws.Result,
		RecordedStatus:   ws.HTTPResponse,
	}

	if ws.SleepTimeout != nil {
		ms := int64(math.Round(*ws.SleepTimeout))
		base.SleepOverride = &ms
	}

	var err error
	if base.RecordedStart, err = parseTimestamp(ws.StartTime); err != nil {
		return nil, fmt.Errorf("startTime: %w", err)
	}
	if base.RecordedEnd, err = parseTimestamp(ws.EndTime); err != nil {
		return nil, fmt.Errorf("endTime: %w", err)
	}

	for _, c := range ws.ResultChecks {
		base.ResultChecks = append(base.ResultChecks, ResultCheck{
			Path:     c.JSONPath,
			Min:      c.Min,
			Max:      c.Max,
			Equal:    c.Equal,
			Truthy:   c.Truthy,
			WarnOnly: c.WarnOnly,
		})
	}
	for _, hs := range ws.HTTPHeaderSetters {
		base.HeaderSetters = append(base.HeaderSetters, HeaderSetter{
			Path:   hs.JSONPath,
			Header: hs.Header,
			Prefix: hs.Prefix,
			Suffix: hs.Suffix,
		})
	}
	for _, h := range ws.HTTPHeader {
		spec := HeaderSpec{ID: h.ID, Value: h.Value}
		if h.HashCompute != nil {
			spec.Hash = &HashSpec{Algorithm: h.HashCompute.Algorithm, Secret: h.HashCompute.Secret}
		}
		base.Headers = append(base.Headers, spec)
	}

	switch Kind(strings.ToLower(ws.StepType)) {
	case "", KindGraphQL:
		g := &GraphQLStep{
			StepBase:      base,
			Query:         ws.Query,
			OperationName: ws.OperationName,
			Variables:     ws.Variables,
		}
		for _, vs := range ws.VariableSettings {
			g.VariableSettings = append(g.VariableSettings, VariableSetting{
				ValueFromResultID: vs.ValueFromResultID,
				Path:              vs.JSONPath,
				VariableName:      vs.VariableName,
			})
		}
		return g, nil
	case KindREST:
		r := &RestStep{
			StepBase:    base,
			Method:      strings.ToUpper(ws.Method),
			Payload:     ws.Payload,
			QueryString: ws.QueryStrings,
		}
		if r.Method == "" {
			r.Method = "POST"
		}
		for _, pc := range ws.PayloadChanges {
			r.PayloadChanges = append(r.PayloadChanges, PayloadChange{
				TargetPath:        pc.FindAndReplaceJSONPath,
				ValueFromResultID: pc.ValueFromResultID,
				PathInResults:     pc.JSONPathInResults,
			})
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown stepType %q", ws.StepType)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

// Encode writes the session back out in the recorded trace format
func Encode(s *Session) ([]byte, error) {
	doc := document{TestName: s.Name}
	for _, step := range s.Steps {
		doc.TestSteps = append(doc.TestSteps, fromStep(step))
	}
	return json.MarshalIndent(doc, "", "  ")
}

func fromStep(step Step) wireStep {
	b := step.Base()
	ws := wireStep{
		StepType:          string(step.Kind()),
		Host:              b.TargetIndex,
		Name:              b.Name,
		Result:            b.RecordedResult,
		Duration:          b.RecordedDuration,
		ResultID:          b.ResultID,
		NumberOfRepeats:   b.RepeatCount,
		HTTPResponseCheck: b.ExpectedStatus,
		HTTPResponse:      b.RecordedStatus,
	}
	if b.RecordedStart != nil {
		ws.StartTime = b.RecordedStart.Format(time.RFC3339Nano)
	}
	if b.RecordedEnd != nil {
		ws.EndTime = b.RecordedEnd.Format(time.RFC3339Nano)
	}
	if b.SleepOverride != nil {
		ms := float64(*b.SleepOverride)
		ws.SleepTimeout = &ms
	}
	for _, c := range b.ResultChecks {
		ws.ResultChecks = append(ws.ResultChecks, wireCheck{
			JSONPath: c.Path, Min: c.Min, Max: c.Max, Equal: c.Equal, Truthy: c.Truthy, WarnOnly: c.WarnOnly,
		})
	}
	for _, hs := range b.HeaderSetters {
		ws.HTTPHeaderSetters = append(ws.HTTPHeaderSetters, wireHeaderSetter{
			JSONPath: hs.Path, Header: hs.Header, Prefix: hs.Prefix, Suffix: hs.Suffix,
		})
	}
	for _, h := range b.Headers {
		wh := wireHeader{ID: h.ID, Value: h.Value}
		if h.Hash != nil {
			wh.HashCompute = &wireHash{Secret: h.Hash.Secret, Algorithm: h.Hash.Algorithm}
		}
		ws.HTTPHeader = append(ws.HTTPHeader, wh)
	}

	switch s := step.(type) {
	case *GraphQLStep:
		ws.Query = s.Query
		ws.OperationName = s.OperationName
		ws.Variables = s.Variables
		for _, vs := range s.VariableSettings {
			ws.VariableSettings = append(ws.VariableSettings, wireVariableSetting{
				ValueFromResultID: vs.ValueFromResultID, JSONPath: vs.Path, VariableName: vs.VariableName,
			})
		}
	case *RestStep:
		ws.Method = s.Method
		ws.Payload = s.Payload
		ws.QueryStrings = s.QueryString
		for _, pc := range s.PayloadChanges {
			ws.PayloadChanges = append(ws.PayloadChanges, wirePayloadChange{
				FindAndReplaceJSONPath: pc.TargetPath, ValueFromResultID: pc.ValueFromResultID, JSONPathInResults: pc.PathInResults,
			})
		}
	}
	return ws
}
