package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hthttp "github.com/abdul-hamid-achik/tracereplay/packages/http"
)

func TestPrometheusRecorderCounters(t *testing.T) {
	p := NewPrometheusRecorder()

	ok := &hthttp.Response{StatusCode: 200, Duration: 20 * time.Millisecond}
	bad := &hthttp.Response{StatusCode: 500, Duration: 40 * time.Millisecond}

	p.Timing("graphql-Login", ok, true)
	p.Success("graphql-Login")
	p.Timing("graphql-Login", bad, false)
	p.Error("graphql-Login", errors.New("check failed"))
	p.Iteration("completed")
	p.Iteration("aborted")
	p.Iteration("aborted")
	p.ActiveUsers(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("graphql-Login", "passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("graphql-Login", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.statuses.WithLabelValues("graphql-Login", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.steps.WithLabelValues("graphql-Login", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.iterations.WithLabelValues("aborted")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.activeUsers))
	assert.Equal(t, 1, testutil.CollectAndCount(p.duration))
}

func TestPrometheusRecorderHandler(t *testing.T) {
	p := NewPrometheusRecorder()
	p.Timing("rest-cart", &hthttp.Response{StatusCode: 201, Duration: time.Millisecond}, true)
	p.ActiveUsers(3)

	server := httptest.NewServer(p.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `tracereplay_requests_total{request="rest-cart",result="passed"} 1`)
	assert.Contains(t, text, "tracereplay_request_duration_seconds_bucket")
	assert.Contains(t, text, "tracereplay_active_users 3")
}

func TestPrometheusRecorderServe(t *testing.T) {
	p := NewPrometheusRecorder()
	addr, err := p.Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = p.Close(context.Background()) }()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "tracereplay_active_users"))
}

func TestPrometheusRecorderIsolatedRegistries(t *testing.T) {
	a := NewPrometheusRecorder()
	b := NewPrometheusRecorder()
	a.Iteration("completed")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.iterations.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.iterations.WithLabelValues("completed")))
}
