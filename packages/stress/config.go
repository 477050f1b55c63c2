// Package stress drives a recorded session under load. A pool of virtual
// users follows ramp/hold/ramp-down stages; every virtual user loops full
// session iterations with a fresh identity, while metrics, thresholds and a
// live reporter track the run.
package stress

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Stage moves the virtual-user target linearly to Target over Duration,
// starting from the previous stage's target (or zero)
type Stage struct {
	Name     string
	Duration time.Duration
	Target   int
}

// Config holds all configuration for a load run
type Config struct {
	Stages        []Stage
	IterationRate float64 // iteration starts per second across all users, 0 = unlimited
	Thresholds    Thresholds
}

// NewConfig builds the standard three stages: ramp up to maxUsers, hold, and
// ramp down to zero
func NewConfig(maxUsers int, rampUp, hold, rampDown time.Duration) *Config {
	stages := []Stage{
		{Name: "ramp-up", Duration: rampUp, Target: maxUsers},
		{Name: "hold", Duration: hold, Target: maxUsers},
	}
	if rampDown > 0 {
		stages = append(stages, Stage{Name: "ramp-down", Duration: rampDown, Target: 0})
	}
	return &Config{Stages: stages}
}

// Duration is the sum of all stage durations
func (c *Config) Duration() time.Duration {
	var total time.Duration
	for _, s := range c.Stages {
		total += s.Duration
	}
	return total
}

// MaxUsers is the highest target of any stage
func (c *Config) MaxUsers() int {
	max := 0
	for _, s := range c.Stages {
		if s.Target > max {
			max = s.Target
		}
	}
	return max
}

// TargetAt returns the virtual-user target at elapsed time
func (c *Config) TargetAt(elapsed time.Duration) int {
	prev := 0
	for _, s := range c.Stages {
		if elapsed < s.Duration {
			progress := float64(elapsed) / float64(s.Duration)
			return prev + int(float64(s.Target-prev)*progress)
		}
		elapsed -= s.Duration
		prev = s.Target
	}
	return prev
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	for i, s := range c.Stages {
		if s.Duration < 0 {
			return fmt.Errorf("stage %d: duration cannot be negative", i)
		}
		if s.Target < 0 {
			return fmt.Errorf("stage %d: target cannot be negative", i)
		}
	}
	if c.Duration() <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if c.MaxUsers() < 1 {
		return fmt.Errorf("at least one virtual user is required")
	}
	if c.IterationRate < 0 {
		return fmt.Errorf("iteration rate cannot be negative")
	}
	return nil
}

// Thresholds defines pass/fail criteria for a load run
type Thresholds struct {
	P50        time.Duration // 50th percentile latency
	P95        time.Duration // 95th percentile latency
	P99        time.Duration // 99th percentile latency
	MaxLatency time.Duration // maximum allowed latency
	ErrorRate  float64       // maximum failed step share (0.0 - 1.0)
	AbortRate  float64       // maximum aborted iteration share (0.0 - 1.0)
	MinRPS     float64       // minimum requests per second
}

// DefaultThresholds is applied when a run configures none
const DefaultThresholds = "p95<500ms,errors<1%"

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "p95<200ms,errors<0.1%"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}
	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	m := thresholdPattern.FindStringSubmatch(part)
	if len(m) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}
	metric, op, value := strings.ToLower(m[1]), m[2], strings.TrimSpace(m[3])
	upper := op == "<" || op == "<="

	switch metric {
	case "p50", "p95", "p99", "max", "maxlatency":
		if !upper {
			return fmt.Errorf("%s threshold must use < or <=", metric)
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", metric, value)
		}
		switch metric {
		case "p50":
			t.P50 = d
		case "p95":
			t.P95 = d
		case "p99":
			t.P99 = d
		default:
			t.MaxLatency = d
		}

	case "errors", "error", "errorrate", "aborts", "abortrate":
		if !upper {
			return fmt.Errorf("%s threshold must use < or <=", metric)
		}
		f, err := parseRate(value)
		if err != nil {
			return err
		}
		if strings.HasPrefix(metric, "abort") {
			t.AbortRate = f
		} else {
			t.ErrorRate = f
		}

	case "rps", "rate":
		if upper {
			return fmt.Errorf("RPS threshold must use > or >=")
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RPS: %s", value)
		}
		t.MinRPS = f

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}
	return nil
}

// parseRate accepts "0.5%" or a fraction like "0.005"
func parseRate(value string) (float64, error) {
	pct := strings.HasSuffix(value, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate: %s", value)
	}
	if pct {
		f /= 100
	}
	return f, nil
}

// HasThresholds returns true if any thresholds are configured
func (t *Thresholds) HasThresholds() bool {
	return t.P50 > 0 || t.P95 > 0 || t.P99 > 0 || t.MaxLatency > 0 ||
		t.ErrorRate > 0 || t.AbortRate > 0 || t.MinRPS > 0
}

// ThresholdResult holds the result of evaluating a threshold
type ThresholdResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}
