// Package metrics exports load run signals to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	hthttp "github.com/abdul-hamid-achik/tracereplay/packages/http"
)

// PrometheusRecorder turns executor and runner signals into Prometheus
// metrics on a private registry. It satisfies stress.Sink.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	statuses    *prometheus.CounterVec
	steps       *prometheus.CounterVec
	iterations  *prometheus.CounterVec
	activeUsers prometheus.Gauge

	logger *zap.Logger
	server *http.Server
}

// PrometheusOption is a functional option for PrometheusRecorder
type PrometheusOption func(*PrometheusRecorder)

// WithLogger sets the logger used by the HTTP endpoint
func WithLogger(l *zap.Logger) PrometheusOption {
	return func(p *PrometheusRecorder) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPrometheusRecorder registers the tracereplay metrics on a fresh registry
func NewPrometheusRecorder(opts ...PrometheusOption) *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	p := &PrometheusRecorder{
		registry: reg,
		logger:   zap.NewNop(),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracereplay_requests_total",
			Help: "Replayed requests that got a response, by check result",
		}, []string{"request", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracereplay_request_duration_seconds",
			Help:    "Response time of replayed requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"request"}),
		statuses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracereplay_responses_total",
			Help: "Responses by HTTP status code",
		}, []string{"request", "code"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracereplay_steps_total",
			Help: "Step outcomes, including failures without a response",
		}, []string{"request", "outcome"}),
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracereplay_iterations_total",
			Help: "Session iterations by outcome",
		}, []string{"outcome"}),
		activeUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracereplay_active_users",
			Help: "Virtual users currently running",
		}),
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry exposes the private registry, mainly for tests
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) Success(name string) {
	p.steps.WithLabelValues(name, "passed").Inc()
}

func (p *PrometheusRecorder) Error(name string, _ error) {
	p.steps.WithLabelValues(name, "failed").Inc()
}

func (p *PrometheusRecorder) Timing(name string, resp *hthttp.Response, passed bool) {
	result := "passed"
	if !passed {
		result = "failed"
	}
	p.requests.WithLabelValues(name, result).Inc()
	p.duration.WithLabelValues(name).Observe(resp.Duration.Seconds())
	p.statuses.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()
}

func (p *PrometheusRecorder) Iteration(outcome string) {
	p.iterations.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ActiveUsers(n int) {
	p.activeUsers.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve starts the /metrics endpoint on addr and returns the bound address
func (p *PrometheusRecorder) Serve(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	p.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Close stops the endpoint, if running
func (p *PrometheusRecorder) Close(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}
