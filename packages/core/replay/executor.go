package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tracereplay/packages/assertions"
	"github.com/abdul-hamid-achik/tracereplay/packages/capture"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/headers"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
	"github.com/abdul-hamid-achik/tracereplay/packages/substitute"
)

// Executor replays one session once, for one virtual user. It owns its
// result store and header set; nothing is shared between executors except
// the Host capabilities.
type Executor struct {
	session  *session.Session
	hosts    []string
	host     Host
	store    *capture.Store
	headers  *headers.Set
	logger   *zap.Logger
	user     any
	warnPace time.Duration
	onStep   func(StepResult)
}

// StepResult describes one completed repeat of a step
type StepResult struct {
	Index    int
	Repeat   int
	Name     string
	Request  *http.Request
	Response *http.Response
	Report   *assertions.Report
	Pause    time.Duration
	Err      error
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithUser seeds the result store with the virtual user under "user"
func WithUser(user any) Option {
	return func(e *Executor) {
		e.user = user
	}
}

// WithPaceWarnThreshold sets the pause above which a warning is logged
func WithPaceWarnThreshold(d time.Duration) Option {
	return func(e *Executor) {
		e.warnPace = d
	}
}

// WithStepHook registers a callback invoked after every repeat, including
// the one that fails
func WithStepHook(fn func(StepResult)) Option {
	return func(e *Executor) {
		e.onStep = fn
	}
}

// New creates an executor for one iteration. Missing Host capabilities are
// filled with defaults: a timer sleeper and a recorder that drops counts.
// Client is required.
func New(sess *session.Session, hosts []string, host Host, opts ...Option) *Executor {
	if host.Sleeper == nil {
		host.Sleeper = TimerSleeper{}
	}
	if host.Recorder == nil {
		host.Recorder = nopRecorder{}
	}
	e := &Executor{
		session:  sess,
		hosts:    hosts,
		host:     host,
		headers:  headers.NewSet(),
		logger:   zap.NewNop(),
		warnPace: DefaultPaceWarnThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.user != nil {
		e.store = capture.NewSeededStore(e.user)
	} else {
		e.store = capture.NewStore()
	}
	return e
}

// Store returns the result store
func (e *Executor) Store() *capture.Store {
	return e.store
}

// Headers returns the persisted header set
func (e *Executor) Headers() *headers.Set {
	return e.headers
}

// Run executes every step in order, honoring repeats and pacing. The first
// fatal failure aborts the run and is returned as a *faults.Error bound to
// its step; transport and context errors are returned wrapped.
func (e *Executor) Run(ctx context.Context) error {
	if e.host.Client == nil {
		return errors.New("replay: no client configured")
	}

	steps := e.session.Steps
	for i, step := range steps {
		name := session.DisplayName(step)
		for r := 0; r < step.Base().Repeats(); r++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			res := e.runStep(ctx, i, r, step)
			if res.Err == nil {
				res.Pause = Pace(steps, i)
			}
			if e.onStep != nil {
				e.onStep(res)
			}
			if res.Err != nil {
				if ctx.Err() != nil {
					return res.Err
				}
				e.host.Recorder.Error(name, res.Err)
				e.logger.Error("step failed",
					zap.Int("step", i),
					zap.Int("repeat", r),
					zap.String("name", name),
					zap.Error(res.Err),
				)
				return res.Err
			}

			if res.Pause > e.warnPace {
				e.logger.Warn("long pause between steps",
					zap.String("name", name),
					zap.Duration("pause", res.Pause),
				)
			}
			if err := e.host.Sleeper.Sleep(ctx, res.Pause); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, index, repeat int, step session.Step) StepResult {
	b := step.Base()
	name := session.DisplayName(step)
	res := StepResult{Index: index, Repeat: repeat, Name: name}

	fail := func(err error) StepResult {
		var fe *faults.Error
		if errors.As(err, &fe) {
			fe.AtStep(index, repeat, name)
		}
		res.Err = err
		return res
	}

	if b.TargetIndex < 0 || b.TargetIndex >= len(e.hosts) {
		return fail(faults.New(faults.InvalidTarget, "host index %d outside %d configured hosts", b.TargetIndex, len(e.hosts)))
	}

	payload, err := substitute.Body(step, e.store)
	if err != nil {
		return fail(err)
	}

	entries, err := e.headers.ForRequest(b, payload, e.host.Hasher)
	if err != nil {
		return fail(err)
	}

	req := http.NewRequest(method(step), e.hosts[b.TargetIndex])
	req.Headers = headers.ToMap(entries)
	req.Body = payload
	req.Name = name
	req.Step = step
	if rs, ok := step.(*session.RestStep); ok {
		req.QueryString = rs.QueryString
	}
	res.Request = req

	e.logger.Debug("sending request",
		zap.Int("step", index),
		zap.Int("repeat", repeat),
		zap.String("name", name),
		zap.String("method", req.Method),
		zap.String("url", req.BuildURL()),
	)

	resp, err := e.host.Client.Do(ctx, req)
	if err != nil {
		return fail(fmt.Errorf("step %d %q: %w", index, name, err))
	}
	res.Response = resp
	e.logger.Debug("response received",
		zap.String("name", name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
		zap.Duration("ttfb", resp.TTFB()),
	)

	report := assertions.Check(b, resp.StatusCode, resp.Body)
	res.Report = report
	if report.ParseErr != nil {
		e.logger.Warn("response body is not JSON",
			zap.String("name", name),
			zap.String("contentType", resp.Header("Content-Type")),
			zap.Error(report.ParseErr),
		)
	}
	for _, r := range report.Failed() {
		if r.WarnOnly {
			e.logger.Warn("check failed", zap.String("name", name), zap.String("path", r.Subject), zap.String("message", r.Message))
		} else {
			e.logger.Error("check failed", zap.String("name", name), zap.String("path", r.Subject), zap.String("message", r.Message))
		}
	}

	e.host.Recorder.Timing(name, resp, report.Passed)
	if !report.Passed {
		return fail(report.Err)
	}

	if b.ResultID != "" {
		e.store.Put(b.ResultID, report.Body)
	}
	if err := e.headers.ApplySetters(b, report.Body); err != nil {
		return fail(err)
	}
	e.host.Recorder.Success(name)
	return res
}

func method(step session.Step) string {
	if rs, ok := step.(*session.RestStep); ok && rs.Method != "" {
		return rs.Method
	}
	return "POST"
}
