package capture

import (
	"errors"
	"testing"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStoredResult(t *testing.T) {
	s := NewStore()
	body := map[string]any{"id": 42.0, "items": []any{"a", "b"}}
	s.Put("r1", body)

	v, err := s.Resolve("r1", "$.id")
	require.NoError(t, err)

	direct, err := jsonpath.Query("$.id", body)
	require.NoError(t, err)
	want, _ := direct.First()
	assert.Equal(t, want, v)

	v, err = s.Resolve("r1", "$.items[1]")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestResolveFailures(t *testing.T) {
	s := NewStore()
	s.Put("r1", map[string]any{"zero": 0.0, "empty": ""})

	tests := []struct {
		name     string
		resultID string
		path     string
		kind     faults.Kind
	}{
		{"missing result", "nope", "$.id", faults.MissingResultSource},
		{"no match", "r1", "$.id", faults.PathNotFound},
		{"falsy zero", "r1", "$.zero", faults.PathNotFound},
		{"falsy empty string", "r1", "$.empty", faults.PathNotFound},
		{"bad syntax", "r1", "$.[", faults.PathNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Resolve(tt.resultID, tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestSeededStore(t *testing.T) {
	type user struct {
		Email string `json:"email"`
	}
	s := NewSeededStore(user{Email: "jane.doe@example.com"})
	assert.True(t, s.Has("user"))
	assert.Equal(t, 1, s.Len())

	v, err := s.Resolve("user", "$.user.email")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", v)

	assert.Equal(t, 0, NewSeededStore(nil).Len())
}

func TestPutReplaces(t *testing.T) {
	s := NewStore()
	s.Put("r", 1)
	s.Put("r", 2)
	v, ok := s.Get("r")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
