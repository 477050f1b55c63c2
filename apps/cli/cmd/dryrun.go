package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/replay"
	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

// WatchDebounceDelay is the delay before re-running after a file change
const WatchDebounceDelay = 100 * time.Millisecond

var (
	dryRunUsersFlag   string
	dryRunCountFlag   int
	dryRunDomainFlag  string
	dryRunHostsFlag   []string
	dryRunWatchFlag   bool
	dryRunNoColorFlag bool
	dryRunVerboseFlag bool
)

var dryRunCmd = &cobra.Command{
	Use:   "dry-run <steps>",
	Short: "Replay a session against its recorded responses",
	Long: `Replay a steps file without sending anything. Every step is answered
with the response recorded in the trace, so substitutions, checks and
header setters run exactly as they would live. Pauses are skipped.

Examples:
  tracereplay dry-run dist/steps.json
  tracereplay dry-run steps.json --users users.json
  tracereplay dry-run steps.json -n 5 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: dryRunCommand,
}

func init() {
	dryRunCmd.Flags().StringVar(&dryRunUsersFlag, "users", "", "Users file to replay with, one iteration per user")
	dryRunCmd.Flags().IntVarP(&dryRunCountFlag, "count", "n", 1, "Number of generated users when no users file is given")
	dryRunCmd.Flags().StringVarP(&dryRunDomainFlag, "domain", "d", users.DefaultDomain, "Email domain for generated users")
	dryRunCmd.Flags().StringArrayVarP(&dryRunHostsFlag, "host", "H", nil, "Host shown in request URLs, repeatable")
	dryRunCmd.Flags().BoolVarP(&dryRunWatchFlag, "watch", "w", false, "Re-run when the steps or users file changes")
	dryRunCmd.Flags().BoolVar(&dryRunNoColorFlag, "no-color", false, "Disable colored output")
	dryRunCmd.Flags().BoolVarP(&dryRunVerboseFlag, "verbose", "v", false, "Print every step, not only failures")
}

func dryRunCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	resolver, err := newResolver(logger)
	if err != nil {
		return err
	}

	if dryRunNoColorFlag {
		color.NoColor = true
	}

	stepsPath := args[0]
	once := func() error {
		sess, err := loadSession(stepsPath, resolver)
		if err != nil {
			return err
		}
		list, err := dryRunUsers()
		if err != nil {
			return err
		}
		hosts := resolver.ResolveSlice(dryRunHostsFlag)

		result := replay.DryRun(cmd.Context(), sess, hosts, list, replay.WithLogger(logger))
		if !printDryRun(cmd.OutOrStdout(), result) {
			return withCode(ExitTestFailure, fmt.Errorf("%w: %d of %d users aborted", errFailed, len(result.Failed()), len(result.Runs)))
		}
		return nil
	}

	err = once()
	if !dryRunWatchFlag {
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}

	watched := []string{stepsPath}
	if dryRunUsersFlag != "" {
		watched = append(watched, dryRunUsersFlag)
	}
	return watchFiles(cmd, logger, watched, func() {
		if err := once(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	})
}

func dryRunUsers() ([]users.User, error) {
	if dryRunUsersFlag != "" {
		list, err := users.Load(dryRunUsersFlag)
		if err != nil {
			return nil, parseError(err)
		}
		return list, nil
	}
	if dryRunCountFlag <= 0 {
		return nil, usageError(fmt.Errorf("--count must be positive, got %d", dryRunCountFlag))
	}
	return users.NewGenerator(dryRunDomainFlag, 0).Generate(dryRunCountFlag), nil
}

// printDryRun writes one line per user and the failing step of each
// aborted run. It reports whether every user completed.
func printDryRun(w io.Writer, result *replay.DryRunResult) bool {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)

	for _, run := range result.Runs {
		if run.Err == nil {
			green.Fprintf(w, "✓ %s", run.User.Email)
			dim.Fprintf(w, " (%d steps)\n", len(run.Steps))
		} else {
			red.Fprintf(w, "✗ %s\n", run.User.Email)
		}
		for _, step := range run.Steps {
			if step.Err == nil && !dryRunVerboseFlag {
				continue
			}
			line := fmt.Sprintf("    #%d %s", step.Index, step.Name)
			if step.Repeat > 0 {
				line += fmt.Sprintf(" (repeat %d)", step.Repeat)
			}
			if step.Err != nil {
				red.Fprintf(w, "%s: %v\n", line, step.Err)
				continue
			}
			dim.Fprintf(w, "%s pause %s\n", line, step.Pause)
		}
	}

	failed := len(result.Failed())
	fmt.Fprintf(w, "\n%d users, %d completed, %d aborted; %d steps succeeded, %d failed\n",
		len(result.Runs), len(result.Runs)-failed, failed,
		result.Counters.Successes(), result.Counters.Errors())
	return failed == 0
}

// watchFiles calls rerun, debounced, whenever one of paths is written
func watchFiles(cmd *cobra.Command, logger *zap.Logger, paths []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(paths))
	watchedDirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		// editors replace files on save, so watch the directory
		dir := filepath.Dir(abs)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

	var debounceTimer *time.Timer
	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !targets[abs] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running...\n\n", name)
				rerun()
				fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
