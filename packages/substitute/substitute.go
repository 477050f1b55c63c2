package substitute

import (
	"bytes"
	"encoding/json"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/tree"
)

// Resolver supplies values from earlier results. *capture.Store implements it.
type Resolver interface {
	Resolve(resultID, path string) (any, error)
}

type graphQLBody struct {
	Query         string  `json:"query"`
	OperationName *string `json:"operationName"`
	Variables     any     `json:"variables"`
}

// Body builds the outbound request body for any step kind
func Body(step session.Step, r Resolver) ([]byte, error) {
	switch s := step.(type) {
	case *session.GraphQLStep:
		return GraphQL(s, r)
	case *session.RestStep:
		return REST(s, r)
	default:
		return nil, faults.New(faults.InvalidPayload, "unsupported step type %T", step)
	}
}

// Variables returns a working copy of the step's variable template with every
// variable setting applied. The step itself is not modified.
func Variables(step *session.GraphQLStep, r Resolver) (any, error) {
	vars := tree.Clone(step.Variables)
	for _, vs := range step.VariableSettings {
		value, err := r.Resolve(vs.ValueFromResultID, vs.Path)
		if err != nil {
			return nil, err
		}
		if !tree.Exists(vars, vs.VariableName) {
			e := faults.New(faults.VariableTargetMissing, "variable %q not declared in template", vs.VariableName)
			e.ResultID = vs.ValueFromResultID
			e.Path = vs.Path
			return nil, e
		}
		vars, err = tree.Set(vars, vs.VariableName, value)
		if err != nil {
			return nil, faults.Wrap(faults.VariableTargetMissing, err, "setting variable %q", vs.VariableName)
		}
	}
	return vars, nil
}

// GraphQL serializes {query, operationName, variables} after substitution
func GraphQL(step *session.GraphQLStep, r Resolver) ([]byte, error) {
	vars, err := Variables(step, r)
	if err != nil {
		return nil, err
	}
	return Marshal(graphQLBody{
		Query:         step.Query,
		OperationName: step.OperationName,
		Variables:     vars,
	})
}

// REST returns the payload unchanged when no payload changes are declared.
// Otherwise the payload is parsed, each change is applied (creating nested
// paths as needed) and the tree is re-serialized.
func REST(step *session.RestStep, r Resolver) ([]byte, error) {
	if len(step.PayloadChanges) == 0 {
		return raw(step.Payload)
	}

	payload, err := parsePayload(step.Payload)
	if err != nil {
		return nil, err
	}

	for _, pc := range step.PayloadChanges {
		value, err := r.Resolve(pc.ValueFromResultID, pc.PathInResults)
		if err != nil {
			return nil, err
		}
		payload, err = tree.Set(payload, pc.TargetPath, value)
		if err != nil {
			return nil, faults.Wrap(faults.InvalidPayload, err, "applying payload change to %q", pc.TargetPath)
		}
	}
	return Marshal(payload)
}

func raw(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		return Marshal(p)
	}
}

func parsePayload(payload any) (any, error) {
	switch p := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		return decode([]byte(p))
	case []byte:
		return decode(p)
	default:
		return tree.Clone(p), nil
	}
}

func decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, faults.Wrap(faults.InvalidPayload, err, "payload is not valid JSON")
	}
	return v, nil
}

// Marshal encodes v as compact JSON without HTML escaping, so the bytes that
// get signed are exactly the bytes that get sent
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, faults.Wrap(faults.InvalidPayload, err, "encoding body")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
