package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tracereplay/packages/history"
)

var (
	historyDBFlag    string
	historyLimitFlag int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show saved load runs",
	Long: `Show load runs saved with run --history-db, newest first.

Examples:
  tracereplay history --history-db runs.db --limit 10`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "history-db", "tracereplay.db", "SQLite history database")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum runs to show")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := history.Open(historyDBFlag)
	if err != nil {
		return configError(err)
	}
	defer store.Close()

	runs, err := store.List(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTEST\tDURATION\tITERATIONS\tABORTED\tREQUESTS\tERRORS\tP95\tRESULT")
	for _, r := range runs {
		result := green("pass")
		if !r.Passed {
			result = red("fail")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.TestName,
			r.Duration.Round(time.Second),
			r.Iterations,
			r.Aborted,
			r.Requests,
			r.Errors,
			r.P95.Round(time.Millisecond),
			result,
		)
	}
	return w.Flush()
}
