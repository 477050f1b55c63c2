package stress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/faults"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
)

func response(d time.Duration) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Duration:   d,
		Timings:    http.Timings{Waiting: d / 2, Receiving: d / 4, Duration: d},
	}
}

func TestMetricsStepOutcomes(t *testing.T) {
	m := NewMetrics()
	m.Start()

	m.Timing("graphql-Login", response(100*time.Millisecond), true)
	m.Success("graphql-Login")
	m.Timing("graphql-Login", response(150*time.Millisecond), true)
	m.Success("graphql-Login")
	m.Timing("rest-cart", response(200*time.Millisecond), false)
	m.Error("rest-cart", faults.New(faults.CheckFailed, "nope"))
	m.Error("rest-cart", errors.New("connection refused"))

	m.Stop()

	s := m.GetSummary()
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(2), s.SuccessCount)
	assert.Equal(t, int64(2), s.ErrorCount)
	assert.Equal(t, int64(1), s.FailedChecks)
	assert.InDelta(t, 0.5, s.ErrorRate, 0.0001)

	require.Contains(t, s.RequestBreakdown, "graphql-Login")
	login := s.RequestBreakdown["graphql-Login"]
	assert.Equal(t, int64(2), login.Total)
	assert.Equal(t, int64(2), login.Success)

	cart := s.RequestBreakdown["rest-cart"]
	assert.Equal(t, int64(1), cart.Total)
	assert.Equal(t, int64(2), cart.Errors)

	assert.InDelta(t, float64(75*time.Millisecond), float64(s.Waiting), float64(time.Millisecond))
}

func TestMetricsIterations(t *testing.T) {
	m := NewMetrics()
	m.Start()

	m.IterationDone(nil)
	m.IterationDone(nil)
	m.IterationDone(faults.New(faults.MissingResultSource, "x"))
	m.IterationDone(errors.New("dial tcp: refused"))

	s := m.GetSummary()
	assert.Equal(t, int64(4), s.Iterations)
	assert.Equal(t, int64(2), s.Aborted)
	assert.InDelta(t, 0.5, s.AbortRate, 0.0001)
	assert.Equal(t, map[string]int64{"MissingResultSource": 1, "Transport": 1}, s.AbortsByKind)
}

func TestMetricsActiveVUs(t *testing.T) {
	m := NewMetrics()

	m.IncrementActiveVUs()
	m.IncrementActiveVUs()
	assert.Equal(t, int32(2), m.GetCurrentStats().ActiveVUs)

	m.DecrementActiveVUs()
	assert.Equal(t, int32(1), m.ActiveVUs())
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()
	m.Start()

	for i := 1; i <= 100; i++ {
		m.Timing("r", response(time.Duration(i)*time.Millisecond), true)
	}
	m.Stop()

	s := m.GetSummary()
	assert.InDelta(t, float64(50*time.Millisecond), float64(s.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(95*time.Millisecond), float64(s.P95), float64(time.Millisecond))
	assert.InDelta(t, float64(time.Millisecond), float64(s.Min), float64(100*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.Max), float64(time.Millisecond))
}

func TestMetricsConcurrentUse(t *testing.T) {
	m := NewMetrics()
	m.Start()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Timing("r", response(time.Millisecond), true)
				m.Success("r")
				m.IterationDone(nil)
			}
		}()
	}
	wg.Wait()

	s := m.GetSummary()
	assert.Equal(t, int64(1000), s.TotalRequests)
	assert.Equal(t, int64(1000), s.Iterations)
	assert.Equal(t, int64(1000), s.RequestBreakdown["r"].Success)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.Timing("r", response(time.Millisecond), true)

	point := m.Snapshot()
	assert.Equal(t, int64(1), point.Requests)
	m.AddTimePoint(point)

	assert.Len(t, m.GetSummary().TimeSeries, 1)
}

func TestEvaluateThresholds(t *testing.T) {
	summary := &Summary{
		P95:       300 * time.Millisecond,
		P99:       900 * time.Millisecond,
		ErrorRate: 0.02,
		AbortRate: 0.01,
		RPS:       40,
	}

	results := evaluate(summary, Thresholds{
		P95:       500 * time.Millisecond,
		P99:       800 * time.Millisecond,
		ErrorRate: 0.01,
		AbortRate: 0.05,
		MinRPS:    10,
	})

	got := map[string]bool{}
	for _, r := range results {
		got[r.Name] = r.Passed
	}
	assert.Equal(t, map[string]bool{
		"p95":        true,
		"p99":        false,
		"error rate": false,
		"abort rate": true,
		"min RPS":    true,
	}, got)
}
