package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/config"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

const (
	stepsFileName  = "steps.json"
	usersFileName  = "users.json"
	configFileName = "test-config.json"
)

var (
	writeConfigStepsFlag    string
	writeConfigHostsFlag    []string
	writeConfigUsersFlag    int
	writeConfigRampFlag     float64
	writeConfigMinutesFlag  float64
	writeConfigDomainFlag   string
	writeConfigOutFlag      string
	writeConfigUserListFlag int
)

var writeConfigCmd = &cobra.Command{
	Use:   "write-config",
	Short: "Write a steps file, users and run config into a directory",
	Long: `Write everything a load run needs into one directory: the recorded
steps (without their captured responses), a generated users file and a
test-config.json pointing at both.

Examples:
  tracereplay write-config -t trace.json -H https://api.example.com/graphql
  tracereplay write-config -t trace.yaml -H https://a.example.com -H https://b.example.com -u 50 -r 1 -m 10 --out dist`,
	Args: cobra.NoArgs,
	RunE: writeConfigCommand,
}

func init() {
	writeConfigCmd.Flags().StringVarP(&writeConfigStepsFlag, "steps", "t", "", "Recorded steps file (required)")
	writeConfigCmd.Flags().StringArrayVarP(&writeConfigHostsFlag, "host", "H", nil, "Target host, repeatable, in targetIndex order (required)")
	writeConfigCmd.Flags().IntVarP(&writeConfigUsersFlag, "max-users", "u", config.DefaultMaxUsers, "Maximum concurrent users")
	writeConfigCmd.Flags().Float64VarP(&writeConfigRampFlag, "ramp-rate", "r", config.DefaultRampRateSeconds, "Seconds between added users")
	writeConfigCmd.Flags().Float64VarP(&writeConfigMinutesFlag, "minutes", "m", config.DefaultDurationMinutes, "Minutes to hold at max users")
	writeConfigCmd.Flags().StringVarP(&writeConfigDomainFlag, "domain", "d", config.DefaultEmailDomain, "Email domain for generated users")
	writeConfigCmd.Flags().StringVar(&writeConfigOutFlag, "out", "dist", "Output directory")
	writeConfigCmd.Flags().IntVarP(&writeConfigUserListFlag, "count", "n", 10, "Users to write to users.json (0 = generate per iteration)")
	_ = writeConfigCmd.MarkFlagRequired("steps")
	_ = writeConfigCmd.MarkFlagRequired("host")
}

func writeConfigCommand(cmd *cobra.Command, args []string) error {
	if len(writeConfigHostsFlag) == 0 {
		return usageError(errors.New("at least one --host is required"))
	}

	sess, err := session.Load(writeConfigStepsFlag)
	if err != nil {
		return parseError(err)
	}
	if err := sess.Validate(len(writeConfigHostsFlag)); err != nil {
		return configError(err)
	}
	sess.StripRecordedResults()

	if err := os.MkdirAll(writeConfigOutFlag, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", writeConfigOutFlag, err)
	}

	data, err := session.Encode(sess)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(writeConfigOutFlag, stepsFileName), data, 0644); err != nil {
		return fmt.Errorf("writing steps: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.StepsFile = "./" + stepsFileName
	cfg.Hosts = writeConfigHostsFlag
	cfg.MaxUsers = writeConfigUsersFlag
	cfg.RampRateSeconds = writeConfigRampFlag
	cfg.DurationMinutes = writeConfigMinutesFlag
	cfg.EmailDomain = writeConfigDomainFlag

	if writeConfigUserListFlag > 0 {
		list := users.NewGenerator(writeConfigDomainFlag, 0).Generate(writeConfigUserListFlag)
		if err := users.Save(filepath.Join(writeConfigOutFlag, usersFileName), list); err != nil {
			return fmt.Errorf("writing users: %w", err)
		}
		cfg.UsersFile = "./" + usersFileName
	}

	if err := cfg.Validate(); err != nil {
		return configError(err)
	}
	configPath := filepath.Join(writeConfigOutFlag, configFileName)
	if err := cfg.SaveConfig(configPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d steps, %d hosts)\n", configPath, len(sess.Steps), len(cfg.Hosts))
	fmt.Fprintf(cmd.OutOrStdout(), "Run it with: tracereplay run %s\n", configPath)
	return nil
}
