package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

var (
	generateUsersCountFlag  int
	generateUsersDomainFlag string
	generateUsersOutFlag    string
	generateUsersSeedFlag   int64
)

var generateUsersCmd = &cobra.Command{
	Use:   "generate-users",
	Short: "Generate synthetic users",
	Long: `Generate synthetic users with random names and first.last@domain
emails. The list is printed as JSON, or written to --out.

Examples:
  tracereplay generate-users -n 500 -d example.org -o users.json`,
	Args: cobra.NoArgs,
	RunE: generateUsersCommand,
}

func init() {
	generateUsersCmd.Flags().IntVarP(&generateUsersCountFlag, "count", "n", 100, "Number of users")
	generateUsersCmd.Flags().StringVarP(&generateUsersDomainFlag, "domain", "d", users.DefaultDomain, "Email domain")
	generateUsersCmd.Flags().StringVarP(&generateUsersOutFlag, "out", "o", "", "Write to this file instead of stdout")
	generateUsersCmd.Flags().Int64Var(&generateUsersSeedFlag, "seed", 0, "Random seed (0 = random)")
}

func generateUsersCommand(cmd *cobra.Command, args []string) error {
	if generateUsersCountFlag <= 0 {
		return usageError(fmt.Errorf("--count must be positive, got %d", generateUsersCountFlag))
	}
	list := users.NewGenerator(generateUsersDomainFlag, generateUsersSeedFlag).Generate(generateUsersCountFlag)

	if generateUsersOutFlag != "" {
		if err := users.Save(generateUsersOutFlag, list); err != nil {
			return fmt.Errorf("writing users: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d users to %s\n", len(list), generateUsersOutFlag)
		return nil
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
