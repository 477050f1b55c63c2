package cmd

import (
	"errors"
	"net"
	"net/url"
)

// Exit codes for the tracereplay CLI
const (
	// ExitSuccess indicates the run passed
	ExitSuccess = 0

	// ExitTestFailure indicates failed thresholds or failed dry-run users
	ExitTestFailure = 1

	// ExitParseError indicates a steps or users file could not be parsed
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code for a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func parseError(err error) error  { return withCode(ExitParseError, err) }
func configError(err error) error { return withCode(ExitConfigError, err) }
func usageError(err error) error  { return withCode(ExitUsageError, err) }

// errFailed reports a run whose results failed without an underlying error
var errFailed = errors.New("run failed")

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return ExitNetworkError
	}
	return ExitTestFailure
}
