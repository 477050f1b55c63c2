// Package cmd implements the tracereplay CLI commands using Cobra.
//
// Available commands:
//   - run: Replay a recorded session as load, driven by a run config
//   - dry-run: Replay a session against its recorded responses
//   - validate: Check a steps file without sending anything
//   - generate-users: Write a file of synthetic users
//   - write-config: Write a steps file and run config into a directory
//   - history: Show load runs saved in the history database
//   - version: Show tracereplay version information
//
// Logging is configured once through the persistent --log-level and
// --log-format flags and handed to every component that logs.
package cmd
