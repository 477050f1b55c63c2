package assertions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/jsonpath"
)

// Result is the outcome of one check
type Result struct {
	Passed   bool
	WarnOnly bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

// Report is the outcome of checking one response. Body is the parsed
// response on success and nil on failure, so a failed step is never
// mistaken for a valid empty body.
type Report struct {
	Passed   bool
	Status   int
	Body     any
	Raw      []byte
	Results  []*Result
	ParseErr error // ResponseParseError fault, reported but never fatal
	Err      error // StatusMismatch or CheckFailed fault when !Passed
}

// Failed returns the checks that did not pass, warn-only ones included
func (r *Report) Failed() []*Result {
	var out []*Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Evaluator runs result checks against one parsed response body
type Evaluator struct {
	raw []byte
}

// NewEvaluator prepares an evaluator over raw JSON. The caller passes
// valid JSON; Check substitutes "{}" for absent or malformed bodies.
func NewEvaluator(raw []byte) *Evaluator {
	return &Evaluator{raw: raw}
}

// Check applies the step's status check and result checks to a response.
// A status mismatch fails the step before the body is looked at.
func Check(step *session.StepBase, status int, body []byte) *Report {
	r := &Report{Status: status, Raw: body}

	if step.ExpectedStatus != 0 && status != step.ExpectedStatus {
		r.Results = append(r.Results, &Result{
			Subject:  "status",
			Operator: "==",
			Expected: step.ExpectedStatus,
			Actual:   status,
			Message:  fmt.Sprintf("expected status %d, got %d", step.ExpectedStatus, status),
		})
		r.Err = faults.New(faults.StatusMismatch, "expected status %d, got %d", step.ExpectedStatus, status)
		return r
	}

	doc, raw, parseErr := parseBody(body)
	r.ParseErr = parseErr

	e := NewEvaluator(raw)
	var failed []string
	for i := range step.ResultChecks {
		res := e.Evaluate(&step.ResultChecks[i])
		r.Results = append(r.Results, res)
		if !res.Passed && !res.WarnOnly {
			failed = append(failed, res.Subject)
		}
	}

	if len(failed) > 0 {
		fe := faults.New(faults.CheckFailed, "%d of %d result checks failed", len(failed), len(step.ResultChecks))
		fe.Path = strings.Join(failed, ",")
		r.Err = fe
		return r
	}

	r.Passed = true
	r.Body = doc
	return r
}

// parseBody decodes a response body. Absent bodies and malformed bodies both
// evaluate as an empty object; only the latter reports a parse error.
func parseBody(body []byte) (any, []byte, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}, []byte("{}"), nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return map[string]any{}, []byte("{}"), faults.Wrap(faults.ResponseParseError, err, "response body is not valid JSON")
	}
	return doc, body, nil
}

// Evaluate runs one check. Only the first applicable condition is tested,
// in the order truthy, min, max, equal.
func (e *Evaluator) Evaluate(check *session.ResultCheck) *Result {
	result := &Result{
		Subject:  check.Path,
		WarnOnly: check.WarnOnly,
	}

	matches, err := jsonpath.QueryBytes(check.Path, e.raw)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	value, found := matches.First()
	length := 0
	if found {
		length = Length(value)
	}
	result.Actual = value

	switch {
	case check.Truthy && (!found || length == 0):
		result.Operator = "truthy"
		result.Expected = true
		result.Message = fmt.Sprintf("expected %s to exist and be non-empty", check.Path)
	case check.Min != nil && length < *check.Min:
		result.Operator = "min"
		result.Expected = *check.Min
		result.Actual = length
		result.Message = fmt.Sprintf("expected at least %d, got %d", *check.Min, length)
	case check.Max != nil && length > *check.Max:
		result.Operator = "max"
		result.Expected = *check.Max
		result.Actual = length
		result.Message = fmt.Sprintf("expected at most %d, got %d", *check.Max, length)
	case check.Equal != nil && !equals(value, check.Equal):
		result.Operator = "equal"
		result.Expected = check.Equal
		result.Message = fmt.Sprintf("expected %v, got %v", check.Equal, value)
	default:
		result.Passed = true
	}
	return result
}

// Length is the size used by truthy/min/max checks: rune count for strings,
// element count for arrays and objects, 0 for null, and 0 or 1 for other
// scalars depending on truthiness
func Length(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return utf8.RuneCountInString(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	if jsonpath.Truthy(v) {
		return 1
	}
	return 0
}

func equals(actual, expected any) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}

	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if aOk && eOk {
		return actualNum == expectedNum
	}

	if isScalar(actual) && isScalar(expected) {
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
	}
	return false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int64, int32:
		return true
	}
	return false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
