package replay

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
	"github.com/abdul-hamid-achik/tracereplay/packages/substitute"
	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

// RecordedClient answers every request with the response recorded for its
// step. The recorded status defaults to 200 and the recorded result is
// served as the JSON body.
type RecordedClient struct{}

func (RecordedClient) Do(_ context.Context, req *http.Request) (*http.Response, error) {
	if req.Step == nil {
		return nil, fmt.Errorf("%s: request carries no recorded step", req.Name)
	}
	b := req.Step.Base()

	status := b.RecordedStatus
	if status == 0 {
		status = 200
	}

	var body []byte
	if b.RecordedResult != nil {
		var err error
		if body, err = substitute.Marshal(b.RecordedResult); err != nil {
			return nil, fmt.Errorf("%s: encoding recorded result: %w", req.Name, err)
		}
	}

	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, nethttp.StatusText(status)),
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
		Duration:   time.Duration(b.RecordedDuration * float64(time.Millisecond)),
	}, nil
}

// UserRun is the outcome of one dry-run iteration
type UserRun struct {
	User  users.User
	Steps []StepResult
	Err   error
}

// DryRunResult collects every iteration of a dry run
type DryRunResult struct {
	Runs     []UserRun
	Counters *Counters
}

// Failed returns the iterations that aborted
func (r *DryRunResult) Failed() []UserRun {
	var out []UserRun
	for _, run := range r.Runs {
		if run.Err != nil {
			out = append(out, run)
		}
	}
	return out
}

// DryRun replays the session once per user against its own recordings.
// Nothing touches the network, pauses are skipped, and signed headers carry
// the placeholder value. hosts may be empty, in which case every step's
// host index resolves to a stand-in so target checks still apply.
func DryRun(ctx context.Context, sess *session.Session, hosts []string, list []users.User, opts ...Option) *DryRunResult {
	if len(hosts) == 0 {
		hosts = placeholderHosts(sess)
	}

	result := &DryRunResult{Counters: &Counters{}}
	host := Host{
		Client:   RecordedClient{},
		Sleeper:  NopSleeper{},
		Recorder: result.Counters,
	}

	for _, u := range list {
		run := UserRun{User: u}
		all := append([]Option{WithUser(u), WithStepHook(func(sr StepResult) {
			run.Steps = append(run.Steps, sr)
		})}, opts...)
		run.Err = New(sess, hosts, host, all...).Run(ctx)
		result.Runs = append(result.Runs, run)
		if ctx.Err() != nil {
			break
		}
	}
	return result
}

func placeholderHosts(sess *session.Session) []string {
	n := 1
	for _, step := range sess.Steps {
		if idx := step.Base().TargetIndex; idx+1 > n {
			n = idx + 1
		}
	}
	hosts := make([]string, n)
	for i := range hosts {
		hosts[i] = fmt.Sprintf("http://recorded-host-%d.invalid", i)
	}
	return hosts
}
