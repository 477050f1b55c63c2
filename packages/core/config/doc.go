// Package config loads the run configuration for a load replay.
//
// It provides functionality for:
//   - Loading test-config.json / test-config.yaml (or .tracereplay.*)
//   - Default values for users, ramp rate, duration and timeouts
//   - Merging command-line overrides over file values
//   - Deriving the ramp-up, hold and ramp-down stage durations
package config
