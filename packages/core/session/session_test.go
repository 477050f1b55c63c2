package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrace = `{
  "testName": "checkout",
  "testSteps": [
    {
      "stepType": "graphql",
      "host": 0,
      "query": "mutation Login($email: String!) { login(email: $email) { token user { id } } }",
      "operationName": "Login",
      "variables": {"email": "recorded@example.com"},
      "variableSettings": [
        {"valueFromResultId": "user", "jsonPath": "$.email", "variableName": "email"}
      ],
      "resultId": "login",
      "resultChecks": [{"jsonPath": "$.data.login.token", "truthy": true}],
      "httpHeaderSetters": [{"jsonPath": "$.data.login.token", "header": "Authorization", "prefix": "Bearer "}],
      "startTime": "2024-03-01T10:00:00.000Z",
      "endTime": "2024-03-01T10:00:00.250Z",
      "result": {"data": {"login": {"token": "abc"}}},
      "httpResponse": 200
    },
    {
      "stepType": "rest",
      "host": 1,
      "method": "put",
      "queryStrings": "a=1",
      "payload": {"cart": {"owner": "x"}},
      "payloadChanges": [
        {"findAndReplaceJsonPath": "cart.owner", "valueFromResultId": "login", "jsonPathInResults": "$.data.login.user.id"}
      ],
      "httpHeader": [
        {"id": "X-Client", "value": "replay"},
        {"id": "X-Signature", "hashCompute": {"secret": "s3cret", "algorithm": "sha256"}}
      ],
      "numberOfRepeats": 3,
      "sleepTimeout": 1500,
      "httpResponseCheck": 201,
      "startTime": "2024-03-01T10:00:02.000Z"
    }
  ]
}`

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(sampleTrace), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "checkout", s.Name)
	require.Len(t, s.Steps, 2)

	g, ok := s.Steps[0].(*GraphQLStep)
	require.True(t, ok)
	assert.Equal(t, KindGraphQL, g.Kind())
	require.NotNil(t, g.OperationName)
	assert.Equal(t, "Login", *g.OperationName)
	assert.Equal(t, "login", g.ResultID)
	require.Len(t, g.VariableSettings, 1)
	assert.Equal(t, "email", g.VariableSettings[0].VariableName)
	require.Len(t, g.ResultChecks, 1)
	assert.True(t, g.ResultChecks[0].Truthy)
	require.Len(t, g.HeaderSetters, 1)
	assert.Equal(t, "Bearer ", g.HeaderSetters[0].Prefix)
	require.NotNil(t, g.RecordedStart)
	require.NotNil(t, g.RecordedEnd)
	assert.Equal(t, 250*time.Millisecond, g.RecordedEnd.Sub(*g.RecordedStart))
	assert.Equal(t, 200, g.RecordedStatus)
	assert.Nil(t, g.SleepOverride)
	assert.Equal(t, 1, g.Repeats())

	r, ok := s.Steps[1].(*RestStep)
	require.True(t, ok)
	assert.Equal(t, "PUT", r.Method)
	assert.Equal(t, 1, r.TargetIndex)
	assert.Equal(t, "a=1", r.QueryString)
	require.Len(t, r.PayloadChanges, 1)
	assert.Equal(t, "cart.owner", r.PayloadChanges[0].TargetPath)
	require.Len(t, r.Headers, 2)
	assert.Nil(t, r.Headers[0].Hash)
	require.NotNil(t, r.Headers[1].Hash)
	assert.Equal(t, "sha256", r.Headers[1].Hash.Algorithm)
	require.NotNil(t, r.SleepOverride)
	assert.Equal(t, int64(1500), *r.SleepOverride)
	assert.Equal(t, 3, r.Repeats())
	assert.Equal(t, 201, r.ExpectedStatus)
}

func TestDecodeDefaults(t *testing.T) {
	s, err := Decode([]byte(`{"testName":"t","testSteps":[{"query":"{ me { id } }"},{"stepType":"rest"}]}`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, s.Steps, 2)

	assert.Equal(t, KindGraphQL, s.Steps[0].Kind())
	assert.Equal(t, "POST", s.Steps[1].(*RestStep).Method)
}

func TestDecodeYAML(t *testing.T) {
	doc := `
testName: yaml
testSteps:
  - stepType: rest
    method: get
    host: 0
    resultId: ping
`
	s, err := Decode([]byte(doc), FormatYAML)
	require.NoError(t, err)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "GET", s.Steps[0].(*RestStep).Method)
	assert.Equal(t, "ping", s.Steps[0].Base().ResultID)
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing steps", `{"testName":"x"}`},
		{"unknown step type", `{"testName":"x","testSteps":[{"stepType":"soap"}]}`},
		{"negative host", `{"testName":"x","testSteps":[{"host":-1}]}`},
		{"check without path", `{"testName":"x","testSteps":[{"resultChecks":[{"min":1}]}]}`},
		{"bad timestamp", `{"testName":"x","testSteps":[{"startTime":"yesterday"}]}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc), FormatJSON)
			assert.Error(t, err)
		})
	}
}

func TestLoadAndEncodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "steps.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrace), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)

	out, err := Encode(s)
	require.NoError(t, err)

	again, err := Decode(out, FormatJSON)
	require.NoError(t, err)
	require.Len(t, again.Steps, 2)
	assert.Equal(t, s.Steps[1].(*RestStep).PayloadChanges, again.Steps[1].(*RestStep).PayloadChanges)
	assert.Equal(t, *s.Steps[1].Base().SleepOverride, *again.Steps[1].Base().SleepOverride)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	op := "GetCart"
	empty := ""
	tests := []struct {
		step Step
		want string
	}{
		{&GraphQLStep{OperationName: &op}, "graphql-GetCart"},
		{&GraphQLStep{OperationName: &empty, StepBase: StepBase{Name: "named"}}, "graphql-named"},
		{&GraphQLStep{}, "graphql-op missing"},
		{&RestStep{StepBase: StepBase{Name: "cart"}}, "rest-cart"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayName(tt.step))
	}
}

func TestStripRecordedResults(t *testing.T) {
	s, err := Decode([]byte(sampleTrace), FormatJSON)
	require.NoError(t, err)
	require.NotNil(t, s.Steps[0].Base().RecordedResult)

	s.StripRecordedResults()
	for _, step := range s.Steps {
		assert.Nil(t, step.Base().RecordedResult)
	}
	assert.Equal(t, []string{"login"}, s.ResultIDs())
}

func TestValidate(t *testing.T) {
	s, err := Decode([]byte(sampleTrace), FormatJSON)
	require.NoError(t, err)
	assert.NoError(t, s.Validate(2))
	assert.NoError(t, s.Validate(0))

	err = s.Validate(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host index 1")
}

func TestValidateForwardReference(t *testing.T) {
	doc := `{"testName":"x","testSteps":[
	  {"stepType":"rest","payload":{"a":1},
	   "payloadChanges":[{"findAndReplaceJsonPath":"a","valueFromResultId":"later","jsonPathInResults":"$.id"}]},
	  {"stepType":"rest","resultId":"later"}
	]}`
	s, err := Decode([]byte(doc), FormatJSON)
	require.NoError(t, err)

	err = s.Validate(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `resultId "later"`)
}

func TestValidateUndeclaredVariable(t *testing.T) {
	doc := `{"testName":"x","testSteps":[
	  {"query":"q","variables":{"input":{}},
	   "variableSettings":[{"valueFromResultId":"user","jsonPath":"$.id","variableName":"input.id"}]}
	]}`
	s, err := Decode([]byte(doc), FormatJSON)
	require.NoError(t, err)

	err = s.Validate(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.id")
}
