package http

import (
	"strings"
	"time"
)

// Response is a host's answer to one replayed request, body fully read
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
	Timings    Timings
}

// Header returns the value for key, matched case-insensitively
func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TTFB is the time to first byte. Responses without phase timings, such as
// recorded ones, report their whole duration.
func (r *Response) TTFB() time.Duration {
	if r.Timings.Waiting > 0 {
		return r.Timings.Waiting
	}
	return r.Duration
}
