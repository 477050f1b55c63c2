package stress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter handles console output for load runs
type Reporter struct {
	writer     io.Writer
	noColor    bool
	noProgress bool
	verbose    bool

	// Colors
	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// ReporterOption configures the reporter
type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// WithNoProgress disables real-time progress display
func WithNoProgress(noProgress bool) ReporterOption {
	return func(r *Reporter) {
		r.noProgress = noProgress
	}
}

// WithVerbose enables verbose output
func WithVerbose(verbose bool) ReporterOption {
	return func(r *Reporter) {
		r.verbose = verbose
	}
}

// NewReporter creates a new reporter
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	// Initialize colors
	color.NoColor = r.noColor
	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.yellow = color.New(color.FgYellow)
	r.cyan = color.New(color.FgCyan)
	r.bold = color.New(color.Bold)
	r.dim = color.New(color.Faint)

	return r
}

// Header prints the run header
func (r *Reporter) Header(version, testName string, hosts []string, config *Config) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintf(r.writer, "tracereplay run %s\n", version)
	fmt.Fprintln(r.writer)

	r.cyan.Fprintf(r.writer, "Replaying: %s\n", testName)
	for i, h := range hosts {
		r.dim.Fprintf(r.writer, "  host %d: %s\n", i, h)
	}

	var stages []string
	for _, st := range config.Stages {
		stages = append(stages, fmt.Sprintf("%s %s→%d", st.Name, formatDuration(st.Duration), st.Target))
	}
	details := []string{
		fmt.Sprintf("Max users: %d", config.MaxUsers()),
		fmt.Sprintf("Duration: %s", formatDuration(config.Duration())),
	}
	if config.IterationRate > 0 {
		details = append(details, fmt.Sprintf("Iteration cap: %.1f/s", config.IterationRate))
	}

	fmt.Fprintf(r.writer, "%s\n", strings.Join(details, " | "))
	r.dim.Fprintf(r.writer, "Stages: %s\n", strings.Join(stages, ", "))
	fmt.Fprintln(r.writer)
}

// Progress prints real-time progress
func (r *Reporter) Progress(stats CurrentStats, duration time.Duration) {
	if r.noProgress {
		return
	}

	// Clear line and print progress
	fmt.Fprint(r.writer, "\r\033[K")

	// Progress bar
	progress := float64(stats.Elapsed) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	barWidth := 30
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	fmt.Fprintf(r.writer, "Progress %s %s / %s\n", bar, formatDuration(stats.Elapsed), formatDuration(duration))

	// Stats line
	fmt.Fprintf(r.writer, "Requests: ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(stats.Total))
	fmt.Fprintf(r.writer, " total | ")
	r.green.Fprintf(r.writer, "%s", formatNumber(stats.Success))
	fmt.Fprintf(r.writer, " success | ")
	if stats.Errors > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(stats.Errors))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(stats.Errors))
	}
	fmt.Fprintf(r.writer, " failed steps (%.2f%%)\n", stats.ErrorRate*100)

	fmt.Fprintf(r.writer, "Rate: ")
	r.cyan.Fprintf(r.writer, "%.1f", stats.RPS)
	fmt.Fprintf(r.writer, " req/s | Users: %d | Iterations: %s (%s aborted)\n",
		stats.ActiveVUs, formatNumber(stats.Iterations), formatNumber(stats.Aborted))

	fmt.Fprintf(r.writer, "Latency: p50: %s | p95: %s | p99: %s | max: %s\n",
		formatLatency(stats.P50),
		formatLatency(stats.P95),
		formatLatency(stats.P99),
		formatLatency(stats.Max))

	// Move cursor up for next update
	fmt.Fprint(r.writer, "\033[4A")
}

// ClearProgress clears the progress display
func (r *Reporter) ClearProgress() {
	if r.noProgress {
		return
	}
	// Move down and clear the progress lines
	fmt.Fprint(r.writer, "\033[4B\r\033[K\033[A\r\033[K\033[A\r\033[K\033[A\r\033[K")
}

// Summary prints the final summary
func (r *Reporter) Summary(summary *Summary, thresholdResults []ThresholdResult) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "LOAD RUN SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	// Duration and totals
	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(summary.TotalRequests))
	fmt.Fprintf(r.writer, " requests (%.1f req/s)\n", summary.RPS)

	fmt.Fprintf(r.writer, "Steps:      ")
	r.green.Fprintf(r.writer, "%s", formatNumber(summary.SuccessCount))
	fmt.Fprintf(r.writer, " passed (%.1f%%), ", summary.SuccessRate*100)
	if summary.ErrorCount > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(summary.ErrorCount))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(summary.ErrorCount))
	}
	fmt.Fprintf(r.writer, " failed (%.1f%%)\n", summary.ErrorRate*100)

	fmt.Fprintf(r.writer, "Iterations: ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(summary.Iterations))
	fmt.Fprintf(r.writer, " (%s aborted, %.1f%%)\n", formatNumber(summary.Aborted), summary.AbortRate*100)

	if len(summary.AbortsByKind) > 0 {
		kinds := make([]string, 0, len(summary.AbortsByKind))
		for k := range summary.AbortsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			r.yellow.Fprintf(r.writer, "  %-24s %s\n", k, formatNumber(summary.AbortsByKind[k]))
		}
	}

	// Latency
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "LATENCY (ms)")
	fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
		formatLatencyMs(summary.P50),
		formatLatencyMs(summary.P95),
		formatLatencyMs(summary.P99),
		formatLatencyMs(summary.Max))
	fmt.Fprintf(r.writer, "  min: %-6s | mean: %-5s | stddev: %s\n",
		formatLatencyMs(summary.Min),
		formatLatencyMs(summary.Mean),
		formatLatencyMs(summary.StdDev))
	r.dim.Fprintf(r.writer, "  connect: %s | tls: %s | waiting: %s | receiving: %s\n",
		formatLatencyMs(summary.Connecting),
		formatLatencyMs(summary.TLS),
		formatLatencyMs(summary.Waiting),
		formatLatencyMs(summary.Receiving))

	// Per-request breakdown (if verbose)
	if r.verbose && len(summary.RequestBreakdown) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "PER-REQUEST BREAKDOWN")
		names := make([]string, 0, len(summary.RequestBreakdown))
		for name := range summary.RequestBreakdown {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rs := summary.RequestBreakdown[name]
			fmt.Fprintf(r.writer, "  %s:\n", name)
			fmt.Fprintf(r.writer, "    Total: %s | Success: %s | Errors: %s\n",
				formatNumber(rs.Total), formatNumber(rs.Success), formatNumber(rs.Errors))
			fmt.Fprintf(r.writer, "    p50: %s | p95: %s | p99: %s\n",
				formatLatency(rs.P50), formatLatency(rs.P95), formatLatency(rs.P99))
		}
	}

	// Thresholds
	if len(thresholdResults) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "THRESHOLDS")
		allPassed := true
		for _, tr := range thresholdResults {
			if tr.Passed {
				r.green.Fprintf(r.writer, "  ✓ ")
			} else {
				r.red.Fprintf(r.writer, "  ✗ ")
				allPassed = false
			}
			fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
		}

		fmt.Fprintln(r.writer)
		if allPassed {
			r.green.Fprintln(r.writer, "All thresholds passed!")
		} else {
			r.red.Fprintln(r.writer, "Some thresholds failed!")
		}
	}

	fmt.Fprintln(r.writer)
}

type jsonRequest struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Errors  int64 `json:"errors"`
	P50     int64 `json:"p50"`
	P95     int64 `json:"p95"`
	P99     int64 `json:"p99"`
	Mean    int64 `json:"mean"`
}

type jsonSummary struct {
	TestName string `json:"testName,omitempty"`
	Duration string `json:"duration"`
	Passed   bool   `json:"passed"`
	Requests struct {
		Total        int64 `json:"total"`
		FailedChecks int64 `json:"failedChecks"`
	} `json:"requests"`
	Steps struct {
		Success int64 `json:"success"`
		Failed  int64 `json:"failed"`
	} `json:"steps"`
	Iterations struct {
		Total   int64            `json:"total"`
		Aborted int64            `json:"aborted"`
		ByKind  map[string]int64 `json:"byKind,omitempty"`
	} `json:"iterations"`
	Rates struct {
		RPS         float64 `json:"rps"`
		SuccessRate float64 `json:"successRate"`
		ErrorRate   float64 `json:"errorRate"`
		AbortRate   float64 `json:"abortRate"`
	} `json:"rates"`
	Latency          map[string]int64       `json:"latency"`
	Thresholds       []ThresholdResult      `json:"thresholds,omitempty"`
	RequestBreakdown map[string]jsonRequest `json:"requestBreakdown,omitempty"`
}

// JSONSummary writes the result as JSON. Latencies are milliseconds.
func (r *Reporter) JSONSummary(result *Result) error {
	summary := result.Summary

	var out jsonSummary
	out.TestName = result.TestName
	out.Duration = summary.Duration.String()
	out.Passed = result.Passed
	out.Requests.Total = summary.TotalRequests
	out.Requests.FailedChecks = summary.FailedChecks
	out.Steps.Success = summary.SuccessCount
	out.Steps.Failed = summary.ErrorCount
	out.Iterations.Total = summary.Iterations
	out.Iterations.Aborted = summary.Aborted
	out.Iterations.ByKind = summary.AbortsByKind
	out.Rates.RPS = summary.RPS
	out.Rates.SuccessRate = summary.SuccessRate
	out.Rates.ErrorRate = summary.ErrorRate
	out.Rates.AbortRate = summary.AbortRate
	out.Latency = map[string]int64{
		"p50":       summary.P50.Milliseconds(),
		"p95":       summary.P95.Milliseconds(),
		"p99":       summary.P99.Milliseconds(),
		"min":       summary.Min.Milliseconds(),
		"max":       summary.Max.Milliseconds(),
		"mean":      summary.Mean.Milliseconds(),
		"stddev":    summary.StdDev.Milliseconds(),
		"waiting":   summary.Waiting.Milliseconds(),
		"receiving": summary.Receiving.Milliseconds(),
	}
	out.Thresholds = result.Thresholds

	if len(summary.RequestBreakdown) > 0 {
		out.RequestBreakdown = make(map[string]jsonRequest, len(summary.RequestBreakdown))
		for name, rs := range summary.RequestBreakdown {
			out.RequestBreakdown[name] = jsonRequest{
				Total:   rs.Total,
				Success: rs.Success,
				Errors:  rs.Errors,
				P50:     rs.P50.Milliseconds(),
				P95:     rs.P95.Milliseconds(),
				P99:     rs.P99.Milliseconds(),
				Mean:    rs.Mean.Milliseconds(),
			}
		}
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// Error prints an error message
func (r *Reporter) Error(format string, args ...interface{}) {
	r.red.Fprintf(r.writer, "Error: "+format+"\n", args...)
}

// Warn prints a warning
func (r *Reporter) Warn(format string, args ...interface{}) {
	r.yellow.Fprintf(r.writer, "Warning: "+format+"\n", args...)
}

// Info prints an info message
func (r *Reporter) Info(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format+"\n", args...)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

// formatLatency formats latency for display
func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatLatencyMs formats latency in milliseconds
func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f", ms)
	}
	if ms < 10 {
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}

// formatNumber formats a number with commas
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	s := fmt.Sprintf("%d", n)
	result := make([]byte, 0, len(s)+(len(s)-1)/3)

	start := len(s) % 3
	if start == 0 {
		start = 3
	}

	result = append(result, s[:start]...)
	for i := start; i < len(s); i += 3 {
		result = append(result, ',')
		result = append(result, s[i:i+3]...)
	}

	return string(result)
}
