package capture

import (
	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/jsonpath"
)

// Store maps a step's resultId to its captured response body. One store
// belongs to exactly one virtual-user iteration and is never shared.
type Store struct {
	results map[string]any
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{results: make(map[string]any)}
}

// NewSeededStore returns a store pre-populated with the virtual user under
// session.UserResultID, shaped as {"user": user}
func NewSeededStore(user any) *Store {
	s := NewStore()
	if user != nil {
		s.Put(session.UserResultID, map[string]any{"user": user})
	}
	return s
}

// Put records a result, replacing any earlier value for the same id
func (s *Store) Put(resultID string, body any) {
	s.results[resultID] = body
}

// Get returns the stored body for resultID
func (s *Store) Get(resultID string) (any, bool) {
	v, ok := s.results[resultID]
	return v, ok
}

// Has reports whether resultID has been stored
func (s *Store) Has(resultID string) bool {
	_, ok := s.results[resultID]
	return ok
}

// Len returns the number of stored results
func (s *Store) Len() int {
	return len(s.results)
}

// Resolve evaluates path against the stored result for resultID and returns
// the first match. A missing result is MissingResultSource; no match or a
// falsy first match is PathNotFound.
func (s *Store) Resolve(resultID, path string) (any, error) {
	body, ok := s.results[resultID]
	if !ok {
		e := faults.New(faults.MissingResultSource, "no stored result")
		e.ResultID = resultID
		e.Path = path
		return nil, e
	}

	matches, err := jsonpath.Query(path, body)
	if err != nil {
		e := faults.Wrap(faults.PathNotFound, err, "invalid path")
		e.ResultID = resultID
		e.Path = path
		return nil, e
	}

	value, found := matches.First()
	if !found || !jsonpath.Truthy(value) {
		e := faults.New(faults.PathNotFound, "no usable value")
		e.ResultID = resultID
		e.Path = path
		return nil, e
	}
	return value, nil
}
