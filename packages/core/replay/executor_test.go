package replay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

// scriptedClient answers requests in order and records what it was sent
type scriptedClient struct {
	mu        sync.Mutex
	responses []*http.Response
	sent      []*http.Request
}

func (c *scriptedClient) Do(_ context.Context, req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	if len(c.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: []byte(body)}
}

type recordingSleeper struct {
	pauses []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func msPtr(ms int64) *int64   { return &ms }

func at(ms int) *time.Time {
	t := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
	return &t
}

func decodeBody(t *testing.T, req *http.Request) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &m))
	return m
}

func TestRun_IdentityPayload(t *testing.T) {
	step := &session.GraphQLStep{
		Query:         "query Me { me { id } }",
		OperationName: strPtr("Me"),
		Variables:     map[string]any{"x": 1.0},
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{"data":{"me":{"id":"1"}}}`)}}
	sess := &session.Session{Steps: []session.Step{step}}

	err := New(sess, []string{"http://api"}, Host{Client: client, Sleeper: NopSleeper{}}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	req := client.sent[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "http://api", req.URL)
	assert.Equal(t, "application/json", req.Headers["Content-Type"])
	assert.JSONEq(t, `{"query":"query Me { me { id } }","operationName":"Me","variables":{"x":1}}`, string(req.Body))
	assert.Equal(t, "graphql-Me", req.Name)
}

func TestRun_HeaderSetterPersists(t *testing.T) {
	login := &session.GraphQLStep{
		StepBase: session.StepBase{
			ResultID:      "login",
			HeaderSetters: []session.HeaderSetter{{Path: "$.data.login.token", Header: "Authorization", Prefix: "Bearer "}},
		},
		Query: "mutation Login { login { token } }",
	}
	me := &session.GraphQLStep{Query: "query Me { me { id } }"}

	client := &scriptedClient{responses: []*http.Response{
		jsonResponse(200, `{"data":{"login":{"token":"abc"}}}`),
		jsonResponse(200, `{"data":{"me":{"id":"1"}}}`),
	}}
	sess := &session.Session{Steps: []session.Step{login, me}}
	exec := New(sess, []string{"http://api"}, Host{Client: client, Sleeper: NopSleeper{}})

	require.NoError(t, exec.Run(context.Background()))
	require.Len(t, client.sent, 2)

	_, sentOnFirst := client.sent[0].Headers["Authorization"]
	assert.False(t, sentOnFirst)
	assert.Equal(t, "Bearer abc", client.sent[1].Headers["Authorization"])

	v, ok := exec.Headers().Get("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer abc", v)
	assert.True(t, exec.Store().Has("login"))
}

func TestRun_RestPayloadChanges(t *testing.T) {
	create := &session.GraphQLStep{
		StepBase: session.StepBase{ResultID: "created"},
		Query:    "mutation { create { id } }",
	}
	update := &session.RestStep{
		StepBase:    session.StepBase{TargetIndex: 1},
		Method:      "PUT",
		QueryString: "force=true",
		Payload:     map[string]any{"user": map[string]any{"id": 0.0, "name": "x"}},
		PayloadChanges: []session.PayloadChange{
			{TargetPath: "user.id", ValueFromResultID: "created", PathInResults: "$.data.create.id"},
		},
	}
	client := &scriptedClient{responses: []*http.Response{
		jsonResponse(200, `{"data":{"create":{"id":42}}}`),
		jsonResponse(200, `{}`),
	}}
	sess := &session.Session{Steps: []session.Step{create, update}}

	err := New(sess, []string{"http://gql", "http://rest"}, Host{Client: client, Sleeper: NopSleeper{}}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, client.sent, 2)

	req := client.sent[1]
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "http://rest?force=true", req.BuildURL())
	body := decodeBody(t, req)
	assert.Equal(t, 42.0, body["user"].(map[string]any)["id"])
	assert.Equal(t, "x", body["user"].(map[string]any)["name"])

	assert.Equal(t, 0.0, update.Payload.(map[string]any)["user"].(map[string]any)["id"], "recorded payload must not change")
}

func TestRun_UserSeedsVariables(t *testing.T) {
	step := &session.GraphQLStep{
		Query:     "mutation Login($email: String!) { login(email: $email) { token } }",
		Variables: map[string]any{"email": "recorded@example.com"},
		VariableSettings: []session.VariableSetting{
			{ValueFromResultID: session.UserResultID, Path: "$.user.email", VariableName: "email"},
		},
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{}`)}}
	sess := &session.Session{Steps: []session.Step{step}}
	u := users.User{FirstName: "Ada", LastName: "Lovelace", Email: "adalovelace@test.com"}

	err := New(sess, []string{"http://api"}, Host{Client: client, Sleeper: NopSleeper{}}, WithUser(u)).Run(context.Background())
	require.NoError(t, err)

	vars := decodeBody(t, client.sent[0])["variables"].(map[string]any)
	assert.Equal(t, "adalovelace@test.com", vars["email"])
}

func TestRun_MinCheck(t *testing.T) {
	step := &session.GraphQLStep{
		StepBase: session.StepBase{
			ResultID:     "list",
			ResultChecks: []session.ResultCheck{{Path: "$.data.items", Min: intPtr(3)}},
		},
		Query: "query { items }",
	}

	t.Run("passes", func(t *testing.T) {
		client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{"data":{"items":[1,2,3]}}`)}}
		exec := New(&session.Session{Steps: []session.Step{step}}, []string{"h"}, Host{Client: client, Sleeper: NopSleeper{}})
		require.NoError(t, exec.Run(context.Background()))
		assert.True(t, exec.Store().Has("list"))
	})

	t.Run("fails and leaves store untouched", func(t *testing.T) {
		client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{"data":{"items":[1,2]}}`)}}
		counters := &Counters{}
		exec := New(&session.Session{Steps: []session.Step{step}}, []string{"h"}, Host{Client: client, Sleeper: NopSleeper{}, Recorder: counters})

		err := exec.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.CheckFailed))
		assert.False(t, exec.Store().Has("list"))
		assert.Equal(t, int64(1), counters.Errors())
		assert.Equal(t, int64(0), counters.Successes())
		assert.Equal(t, int64(1), counters.Requests())

		var fe *faults.Error
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, 0, fe.Step)
		assert.Equal(t, "$.data.items", fe.Path)
	})
}

func TestRun_WarnOnlyDoesNotAbort(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	step := &session.GraphQLStep{
		StepBase: session.StepBase{
			ResultID:     "r",
			ResultChecks: []session.ResultCheck{{Path: "$.data.missing", Truthy: true, WarnOnly: true}},
		},
		Query: "query { x }",
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{"data":{}}`)}}
	exec := New(&session.Session{Steps: []session.Step{step}}, []string{"h"},
		Host{Client: client, Sleeper: NopSleeper{}}, WithLogger(zap.New(core)))

	require.NoError(t, exec.Run(context.Background()))
	assert.True(t, exec.Store().Has("r"))
	assert.Equal(t, 1, logs.FilterMessage("check failed").Len())
}

func TestRun_MissingResultSourceAbortsBeforeSending(t *testing.T) {
	step := &session.GraphQLStep{
		Query:     "query Q($id: ID) { q(id: $id) }",
		Variables: map[string]any{"id": nil},
		VariableSettings: []session.VariableSetting{
			{ValueFromResultID: "never", Path: "$.id", VariableName: "id"},
		},
	}
	client := &scriptedClient{}
	err := New(&session.Session{Steps: []session.Step{step}}, []string{"h"}, Host{Client: client, Sleeper: NopSleeper{}}).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, faults.MissingResultSource, faults.KindOf(err))
	assert.Empty(t, client.sent)
}

func TestRun_StatusMismatch(t *testing.T) {
	step := &session.RestStep{
		StepBase: session.StepBase{ExpectedStatus: 201, ResultID: "r"},
		Method:   "POST",
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{}`)}}
	exec := New(&session.Session{Steps: []session.Step{step}}, []string{"h"}, Host{Client: client, Sleeper: NopSleeper{}})

	err := exec.Run(context.Background())
	assert.True(t, errors.Is(err, faults.StatusMismatch))
	assert.False(t, exec.Store().Has("r"))
}

func TestRun_InvalidTarget(t *testing.T) {
	step := &session.RestStep{StepBase: session.StepBase{TargetIndex: 2}, Method: "GET"}
	client := &scriptedClient{}
	err := New(&session.Session{Steps: []session.Step{step}}, []string{"h"}, Host{Client: client}).Run(context.Background())

	assert.True(t, errors.Is(err, faults.InvalidTarget))
	assert.Empty(t, client.sent)
}

func TestRun_RepeatsAndPacing(t *testing.T) {
	first := &session.GraphQLStep{
		StepBase: session.StepBase{RecordedStart: at(0), RepeatCount: 2},
		Query:    "query A { a }",
	}
	second := &session.GraphQLStep{
		StepBase: session.StepBase{RecordedStart: at(10_000), SleepOverride: msPtr(500)},
		Query:    "query B { b }",
	}
	third := &session.GraphQLStep{
		StepBase: session.StepBase{RecordedStart: at(12_000)},
		Query:    "query C { c }",
	}

	client := &scriptedClient{responses: []*http.Response{
		jsonResponse(200, `{}`), jsonResponse(200, `{}`), jsonResponse(200, `{}`), jsonResponse(200, `{}`),
	}}
	sleeper := &recordingSleeper{}
	sess := &session.Session{Steps: []session.Step{first, second, third}}

	require.NoError(t, New(sess, []string{"h"}, Host{Client: client, Sleeper: sleeper}).Run(context.Background()))
	assert.Len(t, client.sent, 4)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 500 * time.Millisecond, 0}, sleeper.pauses)
}

func TestRun_LongPauseWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	steps := []session.Step{
		&session.GraphQLStep{StepBase: session.StepBase{SleepOverride: msPtr(30_000)}, Query: "q"},
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{}`)}}
	err := New(&session.Session{Steps: steps}, []string{"h"},
		Host{Client: client, Sleeper: NopSleeper{}}, WithLogger(zap.New(core))).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("long pause between steps").Len())
}

func TestRun_ContextCancelledDuringSleep(t *testing.T) {
	steps := []session.Step{
		&session.GraphQLStep{StepBase: session.StepBase{SleepOverride: msPtr(60_000)}, Query: "q"},
		&session.GraphQLStep{Query: "q2"},
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{}`), jsonResponse(200, `{}`)}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(&session.Session{Steps: steps}, []string{"h"}, Host{Client: client}).Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, client.sent, 1)
}

func TestRun_SignedHeaderPlaceholderWithoutHasher(t *testing.T) {
	step := &session.RestStep{
		StepBase: session.StepBase{Headers: []session.HeaderSpec{
			{ID: "X-Signature", Hash: &session.HashSpec{Algorithm: "sha256", Secret: "k"}},
		}},
		Method:  "POST",
		Payload: `{"a":1}`,
	}
	client := &scriptedClient{responses: []*http.Response{jsonResponse(200, `{}`)}}
	require.NoError(t, New(&session.Session{Steps: []session.Step{step}}, []string{"h"}, Host{Client: client}).Run(context.Background()))
	assert.Equal(t, "TBD", client.sent[0].Headers["X-Signature"])
	assert.Equal(t, `{"a":1}`, string(client.sent[0].Body))
}

func TestRun_LiveClient(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if len(body) > 0 && r.URL.Path == "/login" {
			_, _ = w.Write([]byte(`{"token":"t0k"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	steps := []session.Step{
		&session.RestStep{
			StepBase: session.StepBase{
				ResultID:      "login",
				HeaderSetters: []session.HeaderSetter{{Path: "$.token", Header: "Authorization", Prefix: "Bearer "}},
			},
			Method:  "POST",
			Payload: map[string]any{"u": "x"},
		},
		&session.RestStep{
			StepBase: session.StepBase{
				TargetIndex:  1,
				ResultChecks: []session.ResultCheck{{Path: "$.ok", Equal: true}},
			},
			Method: "GET",
		},
	}

	client := http.NewClient(http.WithTimeout(5 * time.Second))
	hosts := []string{server.URL + "/login", server.URL + "/me"}
	err := New(&session.Session{Steps: steps}, hosts, Host{Client: client, Sleeper: NopSleeper{}}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Bearer t0k", gotAuth)
}

func TestPace(t *testing.T) {
	steps := []session.Step{
		&session.GraphQLStep{StepBase: session.StepBase{RecordedStart: at(1000)}},
		&session.GraphQLStep{StepBase: session.StepBase{RecordedStart: at(500)}},
		&session.GraphQLStep{},
		&session.GraphQLStep{StepBase: session.StepBase{RecordedStart: at(0), SleepOverride: msPtr(0)}},
	}

	assert.Equal(t, time.Duration(0), Pace(steps, 0), "negative gaps clamp to zero")
	assert.Equal(t, time.Duration(0), Pace(steps, 1), "missing timestamp")
	assert.Equal(t, time.Duration(0), Pace(steps, 3), "explicit zero override")
}

func TestDryRun(t *testing.T) {
	sess := &session.Session{Steps: []session.Step{
		&session.GraphQLStep{
			StepBase: session.StepBase{
				ResultID:       "login",
				RecordedResult: map[string]any{"data": map[string]any{"login": map[string]any{"token": "abc"}}},
				RecordedStatus: 200,
				HeaderSetters:  []session.HeaderSetter{{Path: "$.data.login.token", Header: "Authorization"}},
				SleepOverride:  msPtr(60_000),
			},
			Query:     "mutation Login($email: String) { login(email: $email) { token } }",
			Variables: map[string]any{"email": ""},
			VariableSettings: []session.VariableSetting{
				{ValueFromResultID: "user", Path: "$.user.email", VariableName: "email"},
			},
		},
		&session.GraphQLStep{
			StepBase: session.StepBase{
				ResultChecks: []session.ResultCheck{{Path: "$.data.login.token", Truthy: true}},
			},
			Query: "query Me { me }",
			VariableSettings: []session.VariableSetting{
				{ValueFromResultID: "login", Path: "$.data.login.token", VariableName: "token"},
			},
			Variables: map[string]any{"token": ""},
		},
	}}

	list := users.NewGenerator("test.com", 7).Generate(2)
	start := time.Now()
	result := DryRun(context.Background(), sess, nil, list)

	assert.Less(t, time.Since(start), 5*time.Second, "pauses are skipped")
	require.Len(t, result.Runs, 2)

	// The second step's recorded result is empty, so its truthy check fails.
	failed := result.Failed()
	require.Len(t, failed, 2)
	assert.True(t, errors.Is(failed[0].Err, faults.CheckFailed))
	require.Len(t, failed[0].Steps, 2)
	assert.NoError(t, failed[0].Steps[0].Err)
	assert.Equal(t, int64(2), result.Counters.Successes())
	assert.Equal(t, int64(2), result.Counters.Errors())
}
