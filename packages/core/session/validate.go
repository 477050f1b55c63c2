package session

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/tracereplay/packages/jsonpath"
	"github.com/abdul-hamid-achik/tracereplay/packages/tree"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// ValidateDocument checks a JSON session document against the trace schema
func ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("session does not match schema: %s", strings.Join(msgs, "; "))
}

// Validate performs static checks that do not need a live target: every
// referenced resultId is declared by an earlier step, every path compiles,
// and host indexes fit the host list. hostCount <= 0 skips the host check.
func (s *Session) Validate(hostCount int) error {
	var errs []error
	declared := map[string]bool{UserResultID: true}

	for i, step := range s.Steps {
		b := step.Base()
		where := fmt.Sprintf("step %d (%s)", i, DisplayName(step))

		if hostCount > 0 && (b.TargetIndex < 0 || b.TargetIndex >= hostCount) {
			errs = append(errs, fmt.Errorf("%s: host index %d outside %d configured hosts", where, b.TargetIndex, hostCount))
		}

		for _, c := range b.ResultChecks {
			if _, err := jsonpath.Compile(c.Path); err != nil {
				errs = append(errs, fmt.Errorf("%s: result check: %w", where, err))
			}
			if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
				errs = append(errs, fmt.Errorf("%s: result check %s has min > max", where, c.Path))
			}
		}
		for _, hs := range b.HeaderSetters {
			if _, err := jsonpath.Compile(hs.Path); err != nil {
				errs = append(errs, fmt.Errorf("%s: header setter: %w", where, err))
			}
		}
		for _, h := range b.Headers {
			if h.Hash == nil && h.Value == "" {
				errs = append(errs, fmt.Errorf("%s: header %s has neither value nor hashCompute", where, h.ID))
			}
		}

		switch st := step.(type) {
		case *GraphQLStep:
			for _, vs := range st.VariableSettings {
				errs = append(errs, checkReference(where, declared, vs.ValueFromResultID, vs.Path)...)
				if !tree.Exists(st.Variables, vs.VariableName) {
					errs = append(errs, fmt.Errorf("%s: variable %q is not declared in the step variables", where, vs.VariableName))
				}
			}
		case *RestStep:
			for _, pc := range st.PayloadChanges {
				errs = append(errs, checkReference(where, declared, pc.ValueFromResultID, pc.PathInResults)...)
				if _, err := tree.ParsePath(pc.TargetPath); err != nil {
					errs = append(errs, fmt.Errorf("%s: payload change: %w", where, err))
				}
			}
		}

		if b.ResultID != "" {
			declared[b.ResultID] = true
		}
	}

	return errors.Join(errs...)
}

func checkReference(where string, declared map[string]bool, resultID, path string) []error {
	var errs []error
	if !declared[resultID] {
		errs = append(errs, fmt.Errorf("%s: resultId %q is not produced by an earlier step", where, resultID))
	}
	if _, err := jsonpath.Compile(path); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", where, err))
	}
	return errs
}
