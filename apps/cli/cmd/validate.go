package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
)

var validateHostsFlag int

var validateCmd = &cobra.Command{
	Use:   "validate <steps>...",
	Short: "Validate steps files without sending anything",
	Long: `Validate steps files against the trace schema and check that every
value a step reads comes from a result declared by an earlier step.

Examples:
  tracereplay validate dist/steps.json
  tracereplay validate --hosts 2 steps.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().IntVar(&validateHostsFlag, "hosts", 0, "Number of configured hosts to check targetIndex against (0 = skip)")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	hasErrors := false
	for _, file := range args {
		sess, err := session.Load(file)
		if err == nil {
			err = sess.Validate(validateHostsFlag)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d steps)\n", file, len(sess.Steps))
	}

	if hasErrors {
		return parseError(errors.New("validation failed"))
	}
	return nil
}
