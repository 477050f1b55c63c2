package stress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/replay"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/headers"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

// Sink receives the same signals as Metrics, for export to external
// systems. Implementations must be safe for concurrent use.
type Sink interface {
	replay.Recorder
	Iteration(outcome string)
	ActiveUsers(n int)
}

// Iteration outcomes reported to sinks
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// Runner executes a load run
type Runner struct {
	config   *Config
	session  *session.Session
	hosts    []string
	client   replay.Client
	hasher   headers.KeyedHasher
	users    users.Source
	reporter *Reporter
	logger   *zap.Logger
	sinks    []Sink
	version  string

	scheduler *Scheduler
	metrics   *Metrics
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithHTTPClient sets the client requests go through
func WithHTTPClient(client replay.Client) RunnerOption {
	return func(r *Runner) {
		r.client = client
	}
}

// WithHasher sets the keyed hasher used for signed headers
func WithHasher(h headers.KeyedHasher) RunnerOption {
	return func(r *Runner) {
		r.hasher = h
	}
}

// WithUsers sets where each iteration's user comes from
func WithUsers(src users.Source) RunnerOption {
	return func(r *Runner) {
		r.users = src
	}
}

// WithReporter sets the reporter
func WithReporter(reporter *Reporter) RunnerOption {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

// WithLogger sets the logger handed to every executor
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithSink adds an external metrics sink
func WithSink(s Sink) RunnerOption {
	return func(r *Runner) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

// WithVersion sets the version shown in the header
func WithVersion(v string) RunnerOption {
	return func(r *Runner) {
		r.version = v
	}
}

// NewRunner creates a runner replaying sess against hosts
func NewRunner(config *Config, sess *session.Session, hosts []string, opts ...RunnerOption) *Runner {
	r := &Runner{
		config:    config,
		session:   sess,
		hosts:     hosts,
		metrics:   NewMetrics(),
		scheduler: NewScheduler(config),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		r.client = http.NewClient()
	}
	if r.hasher == nil {
		r.hasher = http.HMACHasher{}
	}
	if r.users == nil {
		r.users = users.NewGenerator("", time.Now().UnixNano())
	}
	if r.reporter == nil {
		r.reporter = NewReporter()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	return r
}

// Metrics returns the collector shared by all virtual users
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Run executes the load run until every stage has elapsed or ctx ends
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(r.session.Steps) == 0 {
		return nil, errors.New("session has no steps")
	}
	if err := r.session.Validate(len(r.hosts)); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	r.reporter.Header(r.version, r.session.Name, r.hosts, r.config)
	r.logger.Info("load run starting",
		zap.String("test", r.session.Name),
		zap.Int("steps", len(r.session.Steps)),
		zap.Int("maxUsers", r.config.MaxUsers()),
		zap.Duration("duration", r.config.Duration()),
	)

	started := time.Now()
	r.metrics.Start()

	runCtx, cancel := context.WithTimeout(ctx, r.config.Duration())
	defer cancel()

	progressDone := make(chan struct{})
	progressStopped := make(chan struct{})
	go func() {
		defer close(progressStopped)
		r.progressLoop(progressDone)
	}()

	r.runStages(runCtx)

	r.metrics.Stop()
	close(progressDone)
	<-progressStopped
	r.reporter.ClearProgress()

	summary := r.metrics.GetSummary()
	var thresholdResults []ThresholdResult
	if r.config.Thresholds.HasThresholds() {
		thresholdResults = evaluate(summary, r.config.Thresholds)
	}

	r.reporter.Summary(summary, thresholdResults)

	passed := true
	for _, tr := range thresholdResults {
		if !tr.Passed {
			passed = false
			break
		}
	}

	r.logger.Info("load run finished",
		zap.Int64("iterations", summary.Iterations),
		zap.Int64("aborted", summary.Aborted),
		zap.Int64("requests", summary.TotalRequests),
		zap.Bool("passed", passed),
	)

	return &Result{
		TestName:   r.session.Name,
		StartedAt:  started,
		Summary:    summary,
		Thresholds: thresholdResults,
		Passed:     passed,
	}, nil
}

// runStages scales the pool along the stages until ctx ends
func (r *Runner) runStages(ctx context.Context) {
	pool := NewVUPool(r.scheduler, r.metrics, r.iterate)
	pool.Start(ctx)
	r.publishUsers(pool.Count())

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			pool.Stop()
			pool.Wait()
			r.publishUsers(0)
			return
		case <-ticker.C:
			pool.Scale(r.scheduler.TargetUsers(time.Since(start)))
			r.publishUsers(pool.Count())
		}
	}
}

// iterate runs one session iteration with a fresh user, store and header
// set. An iteration cut short by shutdown or scale-down is not counted.
func (r *Runner) iterate(ctx context.Context, vu int) {
	user := r.users.Next()
	host := replay.Host{
		Client:   r.client,
		Hasher:   r.hasher,
		Recorder: r.recorder(),
	}

	exec := replay.New(r.session, r.hosts, host,
		replay.WithUser(user),
		replay.WithLogger(r.logger.With(zap.Int("vu", vu))),
	)
	err := exec.Run(ctx)
	if err != nil && ctx.Err() != nil && faults.KindOf(err) == 0 {
		return
	}

	r.metrics.IterationDone(err)
	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeAborted
	}
	for _, s := range r.sinks {
		s.Iteration(outcome)
	}
}

func (r *Runner) recorder() replay.Recorder {
	if len(r.sinks) == 0 {
		return r.metrics
	}
	fan := make(fanout, 0, len(r.sinks)+1)
	fan = append(fan, r.metrics)
	for _, s := range r.sinks {
		fan = append(fan, s)
	}
	return fan
}

func (r *Runner) publishUsers(n int) {
	for _, s := range r.sinks {
		s.ActiveUsers(n)
	}
}

// progressLoop updates the progress display until done is closed
func (r *Runner) progressLoop(done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.reporter.Progress(r.metrics.GetCurrentStats(), r.config.Duration())
			r.metrics.AddTimePoint(r.metrics.Snapshot())
		}
	}
}

// fanout forwards every signal to each recorder in order
type fanout []replay.Recorder

func (f fanout) Success(name string) {
	for _, r := range f {
		r.Success(name)
	}
}

func (f fanout) Error(name string, err error) {
	for _, r := range f {
		r.Error(name, err)
	}
}

func (f fanout) Timing(name string, resp *http.Response, passed bool) {
	for _, r := range f {
		r.Timing(name, resp, passed)
	}
}

// Result holds the final result of a load run
type Result struct {
	TestName   string
	StartedAt  time.Time
	Summary    *Summary
	Thresholds []ThresholdResult
	Passed     bool
}

// HasThresholdFailures returns true if any thresholds failed
func (r *Result) HasThresholdFailures() bool {
	for _, tr := range r.Thresholds {
		if !tr.Passed {
			return true
		}
	}
	return false
}
