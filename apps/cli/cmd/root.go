package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/env"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	logLevelFlag  string
	logFormatFlag string
	envFileFlag   string
	varFlags      []string
)

var rootCmd = &cobra.Command{
	Use:   "tracereplay",
	Short: "Replay recorded API sessions as load.",
	Long: `tracereplay replays recorded GraphQL and REST sessions against live
hosts. Each virtual user walks the recorded steps in order, keeps the
recorded pacing, and feeds values from earlier responses into later
requests.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits with the code of the failure
func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "Load variables from a .env file")
	rootCmd.PersistentFlags().StringArrayVar(&varFlags, "var", nil, "Set a variable (name=value), repeatable")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dryRunCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(generateUsersCmd)
	rootCmd.AddCommand(writeConfigCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the zap logger from the persistent log flags. Logs go
// to stderr so they never mix with the report on stdout.
func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(logLevelFlag)
	if err != nil {
		return nil, usageError(fmt.Errorf("invalid --log-level: %w", err))
	}

	var cfg zap.Config
	switch strings.ToLower(logFormatFlag) {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, usageError(fmt.Errorf("invalid --log-format %q, expected console or json", logFormatFlag))
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// newResolver builds the variable resolver from TRACEREPLAY_* environment
// variables, --env-file and --var flags, later sources winning. {{$NAME}}
// always reads the process environment.
func newResolver(logger *zap.Logger) (*env.Resolver, error) {
	var fileVars map[string]string
	if envFileFlag != "" {
		vars, err := env.LoadAndExportDotEnv(envFileFlag)
		if err != nil {
			return nil, configError(fmt.Errorf("loading env file: %w", err))
		}
		fileVars = vars
	}

	cliVars, err := env.ParseAssignments(varFlags)
	if err != nil {
		return nil, usageError(err)
	}

	fromFile := make(map[string]any, len(fileVars))
	for k, v := range fileVars {
		fromFile[k] = v
	}

	resolver := env.NewResolver()
	resolver.SetVariables(env.MergeVariables(env.LoadSystemEnv("TRACEREPLAY_"), fromFile, cliVars))
	resolver.SetWarnFunc(func(format string, args ...any) {
		logger.Sugar().Warnf(format, args...)
	})
	return resolver, nil
}
