package http

import (
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
)

// Request is one replayed call
type Request struct {
	Method      string
	URL         string
	QueryString string // raw query string appended after '?'
	Headers     map[string]string
	Body        []byte
	Timeout     time.Duration
	// Name labels the request in metrics and logs
	Name string
	// Step is the recorded step that produced the request. Clients that
	// answer from recordings instead of the network read it.
	Step session.Step
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// BuildURL appends the raw query string. The recorded query string is sent
// verbatim, so its encoding is preserved.
func (r *Request) BuildURL() string {
	if r.QueryString == "" {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + strings.TrimPrefix(r.QueryString, "?")
}
