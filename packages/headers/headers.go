package headers

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/jsonpath"
)

// Placeholder replaces hashed header values when no hasher is available
const Placeholder = "TBD"

// KeyedHasher computes a keyed hash (HMAC) of a payload
type KeyedHasher interface {
	Hash(algorithm, secret string, payload []byte) ([]byte, error)
}

// Entry is one header
type Entry struct {
	ID    string
	Value string
}

// Set is the ordered list of headers that persist across one run. It always
// starts with Content-Type: application/json.
type Set struct {
	entries []Entry
}

// NewSet returns a Set holding the default content type
func NewSet() *Set {
	return &Set{entries: []Entry{{ID: "Content-Type", Value: "application/json"}}}
}

// Add appends a persistent header
func (s *Set) Add(id, value string) {
	s.entries = append(s.entries, Entry{ID: id, Value: value})
}

// Entries returns a copy of the persisted headers
func (s *Set) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the last value recorded for id
func (s *Set) Get(id string) (string, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ID == id {
			return s.entries[i].Value, true
		}
	}
	return "", false
}

// ForRequest returns the headers for one outbound request: the persisted
// entries followed by the step's own headers. Hashed headers are signed
// over payload, or set to Placeholder when hasher is nil. Step headers are
// not persisted.
func (s *Set) ForRequest(step *session.StepBase, payload []byte, hasher KeyedHasher) ([]Entry, error) {
	out := s.Entries()
	for _, h := range step.Headers {
		value := h.Value
		if h.Hash != nil {
			if hasher == nil {
				value = Placeholder
			} else {
				sum, err := hasher.Hash(h.Hash.Algorithm, h.Hash.Secret, payload)
				if err != nil {
					return nil, faults.Wrap(faults.HeaderComputationFailed, err, "signing header %s", h.ID)
				}
				value = base64.StdEncoding.EncodeToString(sum)
			}
		}
		if value == "" {
			return nil, faults.New(faults.HeaderComputationFailed, "header %s has no value", h.ID)
		}
		out = append(out, Entry{ID: h.ID, Value: value})
	}
	return out, nil
}

// ApplySetters extracts values from the step's own response and appends the
// resulting headers to the set for the rest of the run
func (s *Set) ApplySetters(step *session.StepBase, body any) error {
	for _, hs := range step.HeaderSetters {
		matches, err := jsonpath.Query(hs.Path, body)
		if err != nil {
			e := faults.Wrap(faults.HeaderSetterFailed, err, "header %s", hs.Header)
			e.Path = hs.Path
			return e
		}
		value, found := matches.First()
		if !found || !jsonpath.Truthy(value) {
			e := faults.New(faults.HeaderSetterFailed, "no value for header %s", hs.Header)
			e.Path = hs.Path
			return e
		}
		s.Add(hs.Header, hs.Prefix+Stringify(value)+hs.Suffix)
	}
	return nil
}

// ToMap flattens entries into a map; later entries override earlier ones
func ToMap(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.ID] = e.Value
	}
	return m
}

// Stringify renders a decoded JSON value as header text
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
