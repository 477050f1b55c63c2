package substitute

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/abdul-hamid-achik/tracereplay/packages/capture"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestRESTWithoutChangesIsIdentity(t *testing.T) {
	store := capture.NewStore()

	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"string payload", `{"a": 1,  "b":"<x>"}`, `{"a": 1,  "b":"<x>"}`},
		{"object payload", map[string]any{"b": "<x>"}, `{"b":"<x>"}`},
		{"no payload", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := REST(&session.RestStep{Payload: tt.payload}, store)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))
		})
	}
}

func TestGraphQLWithoutSettingsKeepsVariables(t *testing.T) {
	op := "GetCart"
	step := &session.GraphQLStep{
		Query:         "query GetCart($id: ID!) { cart(id: $id) { id } }",
		OperationName: &op,
		Variables:     map[string]any{"id": "c1"},
	}
	body, err := GraphQL(step, capture.NewStore())
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"query GetCart($id: ID!) { cart(id: $id) { id } }","operationName":"GetCart","variables":{"id":"c1"}}`, string(body))
}

func TestRESTPayloadChangeCreatesPath(t *testing.T) {
	store := capture.NewStore()
	store.Put("login", map[string]any{"id": 42})

	step := &session.RestStep{
		Payload: map[string]any{"other": true},
		PayloadChanges: []session.PayloadChange{
			{TargetPath: "user.id", ValueFromResultID: "login", PathInResults: "$.id"},
		},
	}

	body, err := REST(step, store)
	require.NoError(t, err)
	out := decodeJSON(t, body)
	assert.Equal(t, 42.0, out["user"].(map[string]any)["id"])
	assert.Equal(t, true, out["other"])

	assert.Equal(t, map[string]any{"other": true}, step.Payload)
}

func TestRESTPayloadChangeOnStringPayload(t *testing.T) {
	store := capture.NewStore()
	store.Put("cart", map[string]any{"items": []any{map[string]any{"sku": "A-1"}}})

	step := &session.RestStep{
		Payload: `{"line":{"sku":"old"}}`,
		PayloadChanges: []session.PayloadChange{
			{TargetPath: "line.sku", ValueFromResultID: "cart", PathInResults: "$.items[0].sku"},
		},
	}
	body, err := REST(step, store)
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":{"sku":"A-1"}}`, string(body))
}

func TestRESTInvalidPayload(t *testing.T) {
	store := capture.NewStore()
	store.Put("r", map[string]any{"id": 1})
	step := &session.RestStep{
		Payload: `not json`,
		PayloadChanges: []session.PayloadChange{
			{TargetPath: "id", ValueFromResultID: "r", PathInResults: "$.id"},
		},
	}
	_, err := REST(step, store)
	assert.True(t, errors.Is(err, faults.InvalidPayload))
}

func TestGraphQLVariableSettings(t *testing.T) {
	store := capture.NewSeededStore(map[string]any{"email": "jane@example.com"})
	store.Put("login", map[string]any{"data": map[string]any{"login": map[string]any{"user": map[string]any{"id": "u-7"}}}})

	template := map[string]any{
		"email": "recorded@example.com",
		"input": map[string]any{"ownerId": "recorded"},
	}
	step := &session.GraphQLStep{
		Query:     "mutation",
		Variables: template,
		VariableSettings: []session.VariableSetting{
			{ValueFromResultID: "user", Path: "$.user.email", VariableName: "email"},
			{ValueFromResultID: "login", Path: "$.data.login.user.id", VariableName: "input.ownerId"},
		},
	}

	vars, err := Variables(step, store)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"email": "jane@example.com",
		"input": map[string]any{"ownerId": "u-7"},
	}, vars)
	assert.Equal(t, "recorded@example.com", template["email"])

	body, err := GraphQL(step, store)
	require.NoError(t, err)
	out := decodeJSON(t, body)
	assert.Nil(t, out["operationName"])
	assert.Equal(t, "u-7", out["variables"].(map[string]any)["input"].(map[string]any)["ownerId"])
}

func TestGraphQLFailures(t *testing.T) {
	store := capture.NewStore()
	store.Put("login", map[string]any{"token": "abc", "blank": ""})

	tests := []struct {
		name    string
		setting session.VariableSetting
		kind    faults.Kind
	}{
		{"missing result", session.VariableSetting{ValueFromResultID: "nope", Path: "$.token", VariableName: "token"}, faults.MissingResultSource},
		{"path not found", session.VariableSetting{ValueFromResultID: "login", Path: "$.missing", VariableName: "token"}, faults.PathNotFound},
		{"falsy match", session.VariableSetting{ValueFromResultID: "login", Path: "$.blank", VariableName: "token"}, faults.PathNotFound},
		{"undeclared variable", session.VariableSetting{ValueFromResultID: "login", Path: "$.token", VariableName: "input.token"}, faults.VariableTargetMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &session.GraphQLStep{
				Variables:        map[string]any{"token": "old"},
				VariableSettings: []session.VariableSetting{tt.setting},
			}
			_, err := GraphQL(step, store)
			require.Error(t, err)
			assert.Equal(t, tt.kind, faults.KindOf(err))
		})
	}
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	out, err := Marshal(map[string]any{"q": "<a&b>"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"<a&b>"}`, string(out))
}

func TestBodyDispatchesOnKind(t *testing.T) {
	body, err := Body(&session.RestStep{Payload: "x"}, capture.NewStore())
	require.NoError(t, err)
	assert.Equal(t, "x", string(body))
}
