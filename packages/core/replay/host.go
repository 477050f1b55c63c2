package replay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/tracereplay/packages/headers"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
)

// Client dispatches one request. *http.Client is the live implementation.
type Client interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Sleeper pauses between steps
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Recorder receives aggregate counters. Implementations must tolerate
// concurrent calls from every virtual user; the executor never reads back.
type Recorder interface {
	Success(request string)
	Error(request string, err error)
	Timing(request string, resp *http.Response, passed bool)
}

// Host bundles the capabilities the executor borrows from its runtime.
// Hasher may be nil, in which case signed headers get a placeholder.
type Host struct {
	Client   Client
	Sleeper  Sleeper
	Hasher   headers.KeyedHasher
	Recorder Recorder
}

// TimerSleeper sleeps on a timer and wakes early when ctx ends
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NopSleeper returns immediately
type NopSleeper struct{}

func (NopSleeper) Sleep(context.Context, time.Duration) error { return nil }

type nopRecorder struct{}

func (nopRecorder) Success(string)                      {}
func (nopRecorder) Error(string, error)                 {}
func (nopRecorder) Timing(string, *http.Response, bool) {}

// Counters is a minimal Recorder backed by atomic counters
type Counters struct {
	successes atomic.Int64
	errors    atomic.Int64
	requests  atomic.Int64
}

func (c *Counters) Success(string)                      { c.successes.Add(1) }
func (c *Counters) Error(string, error)                 { c.errors.Add(1) }
func (c *Counters) Timing(string, *http.Response, bool) { c.requests.Add(1) }

func (c *Counters) Successes() int64 { return c.successes.Load() }
func (c *Counters) Errors() int64    { return c.errors.Load() }
func (c *Counters) Requests() int64  { return c.requests.Load() }
