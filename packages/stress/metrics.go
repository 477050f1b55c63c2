package stress

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
)

// histogram range: 1us to 60s, 3 significant digits
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics collects and aggregates load run metrics. It implements
// replay.Recorder and is shared by every virtual user.
type Metrics struct {
	mu sync.RWMutex

	// Step outcomes
	successSteps atomic.Int64
	errorSteps   atomic.Int64

	// Requests that produced a response
	totalRequests atomic.Int64
	failedChecks  atomic.Int64

	// Iterations
	iterations atomic.Int64
	aborted    atomic.Int64
	abortKinds map[string]int64

	// Latency histogram (in microseconds for precision)
	histogram *hdrhistogram.Histogram
	phases    phaseTotals

	// Per-request metrics
	requestMetrics map[string]*RequestMetrics

	// Time series for real-time display
	timeSeries    []TimePoint
	lastTimePoint time.Time

	startTime time.Time
	endTime   time.Time

	activeVUs atomic.Int32
}

// RequestMetrics holds metrics for one request name
type RequestMetrics struct {
	Name      string
	Total     atomic.Int64
	Success   atomic.Int64
	Errors    atomic.Int64
	Histogram *hdrhistogram.Histogram
	mu        sync.Mutex
}

// phaseTotals sums the httptrace phases of every response
type phaseTotals struct {
	count      int64
	connecting time.Duration
	tls        time.Duration
	waiting    time.Duration
	receiving  time.Duration
}

// TimePoint represents a point in time for the time series
type TimePoint struct {
	Timestamp  time.Time     `json:"timestamp"`
	Requests   int64         `json:"requests"`
	Errors     int64         `json:"errors"`
	Iterations int64         `json:"iterations"`
	P50        time.Duration `json:"p50"`
	P95        time.Duration `json:"p95"`
	P99        time.Duration `json:"p99"`
	ActiveVUs  int32         `json:"activeVUs"`
	RPS        float64       `json:"rps"`
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		histogram:      hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		requestMetrics: make(map[string]*RequestMetrics),
		abortKinds:     make(map[string]int64),
		timeSeries:     make([]TimePoint, 0, 1000),
	}
}

// Start marks the beginning of the run
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = time.Now()
	m.lastTimePoint = m.startTime
}

// Stop marks the end of the run
func (m *Metrics) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endTime = time.Now()
}

// Success counts a step that passed its checks
func (m *Metrics) Success(name string) {
	m.successSteps.Add(1)
	m.requestMetricsFor(name).Success.Add(1)
}

// Error counts a step that aborted its iteration, with or without a response
func (m *Metrics) Error(name string, _ error) {
	m.errorSteps.Add(1)
	m.requestMetricsFor(name).Errors.Add(1)
}

// Timing records latency for a request that got a response
func (m *Metrics) Timing(name string, resp *http.Response, passed bool) {
	m.totalRequests.Add(1)
	if !passed {
		m.failedChecks.Add(1)
	}

	us := clampLatency(resp.Duration)
	rm := m.requestMetricsFor(name)
	rm.Total.Add(1)
	rm.mu.Lock()
	_ = rm.Histogram.RecordValue(us)
	rm.mu.Unlock()

	m.mu.Lock()
	_ = m.histogram.RecordValue(us)
	m.phases.count++
	m.phases.connecting += resp.Timings.Connecting
	m.phases.tls += resp.Timings.TLSHandshaking
	m.phases.waiting += resp.Timings.Waiting
	m.phases.receiving += resp.Timings.Receiving
	m.mu.Unlock()
}

// IterationDone counts a finished iteration. err is the fault that
// aborted it, nil for a complete pass.
func (m *Metrics) IterationDone(err error) {
	m.iterations.Add(1)
	if err == nil {
		return
	}
	m.aborted.Add(1)

	kind := "Transport"
	if k := faults.KindOf(err); k != 0 {
		kind = k.String()
	}
	m.mu.Lock()
	m.abortKinds[kind]++
	m.mu.Unlock()
}

func (m *Metrics) requestMetricsFor(name string) *RequestMetrics {
	m.mu.RLock()
	rm, ok := m.requestMetrics[name]
	m.mu.RUnlock()
	if ok {
		return rm
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rm, ok = m.requestMetrics[name]; !ok {
		rm = &RequestMetrics{
			Name:      name,
			Histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		}
		m.requestMetrics[name] = rm
	}
	return rm
}

func clampLatency(d time.Duration) int64 {
	us := d.Microseconds()
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

// IncrementActiveVUs increments active VU count
func (m *Metrics) IncrementActiveVUs() {
	m.activeVUs.Add(1)
}

// DecrementActiveVUs decrements active VU count
func (m *Metrics) DecrementActiveVUs() {
	m.activeVUs.Add(-1)
}

// ActiveVUs returns the number of running virtual users
func (m *Metrics) ActiveVUs() int32 {
	return m.activeVUs.Load()
}

// Snapshot captures current metrics for time series
func (m *Metrics) Snapshot() TimePoint {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := now.Sub(m.lastTimePoint).Seconds()
	if elapsed == 0 {
		elapsed = 1
	}

	total := m.totalRequests.Load()
	prevTotal := int64(0)
	if len(m.timeSeries) > 0 {
		prevTotal = m.timeSeries[len(m.timeSeries)-1].Requests
	}

	return TimePoint{
		Timestamp:  now,
		Requests:   total,
		Errors:     m.errorSteps.Load(),
		Iterations: m.iterations.Load(),
		P50:        quantile(m.histogram, 50),
		P95:        quantile(m.histogram, 95),
		P99:        quantile(m.histogram, 99),
		ActiveVUs:  m.activeVUs.Load(),
		RPS:        float64(total-prevTotal) / elapsed,
	}
}

// AddTimePoint adds a time point to the series
func (m *Metrics) AddTimePoint(point TimePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timeSeries = append(m.timeSeries, point)
	m.lastTimePoint = point.Timestamp
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

// Summary is the final metrics summary
type Summary struct {
	Duration      time.Duration
	TotalRequests int64
	SuccessCount  int64 // steps that passed
	ErrorCount    int64 // steps that aborted an iteration
	FailedChecks  int64

	Iterations   int64
	Aborted      int64
	AbortsByKind map[string]int64

	// Calculated rates
	RPS         float64
	SuccessRate float64
	ErrorRate   float64
	AbortRate   float64

	// Latency percentiles
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration

	// Mean time per connection phase
	Connecting time.Duration
	TLS        time.Duration
	Waiting    time.Duration
	Receiving  time.Duration

	// Per-request breakdown
	RequestBreakdown map[string]*RequestSummary

	TimeSeries []TimePoint
}

// RequestSummary holds the summary for one request name
type RequestSummary struct {
	Name    string
	Total   int64
	Success int64
	Errors  int64
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
	Mean    time.Duration
}

// GetSummary returns the metrics summary
func (m *Metrics) GetSummary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	total := m.totalRequests.Load()
	success := m.successSteps.Load()
	errs := m.errorSteps.Load()
	iterations := m.iterations.Load()
	aborted := m.aborted.Load()

	s := &Summary{
		Duration:      duration,
		TotalRequests: total,
		SuccessCount:  success,
		ErrorCount:    errs,
		FailedChecks:  m.failedChecks.Load(),
		Iterations:    iterations,
		Aborted:       aborted,
		AbortsByKind:  make(map[string]int64, len(m.abortKinds)),
		P50:           quantile(m.histogram, 50),
		P95:           quantile(m.histogram, 95),
		P99:           quantile(m.histogram, 99),
		Min:           time.Duration(m.histogram.Min()) * time.Microsecond,
		Max:           time.Duration(m.histogram.Max()) * time.Microsecond,
		Mean:          time.Duration(m.histogram.Mean()) * time.Microsecond,
		StdDev:        time.Duration(m.histogram.StdDev()) * time.Microsecond,
		TimeSeries:    append([]TimePoint(nil), m.timeSeries...),
	}
	for k, v := range m.abortKinds {
		s.AbortsByKind[k] = v
	}

	if duration.Seconds() > 0 {
		s.RPS = float64(total) / duration.Seconds()
	}
	if steps := success + errs; steps > 0 {
		s.SuccessRate = float64(success) / float64(steps)
		s.ErrorRate = float64(errs) / float64(steps)
	}
	if iterations > 0 {
		s.AbortRate = float64(aborted) / float64(iterations)
	}
	if n := m.phases.count; n > 0 {
		s.Connecting = m.phases.connecting / time.Duration(n)
		s.TLS = m.phases.tls / time.Duration(n)
		s.Waiting = m.phases.waiting / time.Duration(n)
		s.Receiving = m.phases.receiving / time.Duration(n)
	}

	s.RequestBreakdown = make(map[string]*RequestSummary)
	for name, rm := range m.requestMetrics {
		rm.mu.Lock()
		s.RequestBreakdown[name] = &RequestSummary{
			Name:    name,
			Total:   rm.Total.Load(),
			Success: rm.Success.Load(),
			Errors:  rm.Errors.Load(),
			P50:     quantile(rm.Histogram, 50),
			P95:     quantile(rm.Histogram, 95),
			P99:     quantile(rm.Histogram, 99),
			Mean:    time.Duration(rm.Histogram.Mean()) * time.Microsecond,
		}
		rm.mu.Unlock()
	}

	return s
}

// CurrentStats returns current statistics for real-time display
type CurrentStats struct {
	Elapsed    time.Duration
	Total      int64
	Success    int64
	Errors     int64
	Iterations int64
	Aborted    int64
	RPS        float64
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Max        time.Duration
	ActiveVUs  int32
	ErrorRate  float64
}

// GetCurrentStats returns current statistics
func (m *Metrics) GetCurrentStats() CurrentStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.startTime)
	total := m.totalRequests.Load()
	success := m.successSteps.Load()
	errs := m.errorSteps.Load()

	stats := CurrentStats{
		Elapsed:    elapsed,
		Total:      total,
		Success:    success,
		Errors:     errs,
		Iterations: m.iterations.Load(),
		Aborted:    m.aborted.Load(),
		P50:        quantile(m.histogram, 50),
		P95:        quantile(m.histogram, 95),
		P99:        quantile(m.histogram, 99),
		Max:        time.Duration(m.histogram.Max()) * time.Microsecond,
		ActiveVUs:  m.activeVUs.Load(),
	}
	if elapsed.Seconds() > 0 {
		stats.RPS = float64(total) / elapsed.Seconds()
	}
	if steps := success + errs; steps > 0 {
		stats.ErrorRate = float64(errs) / float64(steps)
	}
	return stats
}

// EvaluateThresholds evaluates the thresholds against the summary
func (m *Metrics) EvaluateThresholds(t Thresholds) []ThresholdResult {
	return evaluate(m.GetSummary(), t)
}

func evaluate(s *Summary, t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit > 0 {
			results = append(results, ThresholdResult{
				Name:     name,
				Passed:   actual <= limit,
				Expected: "< " + limit.String(),
				Actual:   actual.String(),
			})
		}
	}
	latency("p50", t.P50, s.P50)
	latency("p95", t.P95, s.P95)
	latency("p99", t.P99, s.P99)
	latency("max latency", t.MaxLatency, s.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   s.ErrorRate <= t.ErrorRate,
			Expected: "< " + formatPercent(t.ErrorRate),
			Actual:   formatPercent(s.ErrorRate),
		})
	}
	if t.AbortRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "abort rate",
			Passed:   s.AbortRate <= t.AbortRate,
			Expected: "< " + formatPercent(t.AbortRate),
			Actual:   formatPercent(s.AbortRate),
		})
	}
	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "min RPS",
			Passed:   s.RPS >= t.MinRPS,
			Expected: "> " + formatFloat(t.MinRPS),
			Actual:   formatFloat(s.RPS),
		})
	}

	return results
}

func formatPercent(f float64) string {
	return formatFloat(f*100) + "%"
}

func formatFloat(f float64) string {
	if f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
