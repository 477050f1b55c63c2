package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tracereplay/packages/core/config"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/env"
	"github.com/abdul-hamid-achik/tracereplay/packages/core/session"
	"github.com/abdul-hamid-achik/tracereplay/packages/export/metrics"
	"github.com/abdul-hamid-achik/tracereplay/packages/history"
	"github.com/abdul-hamid-achik/tracereplay/packages/http"
	"github.com/abdul-hamid-achik/tracereplay/packages/stress"
	"github.com/abdul-hamid-achik/tracereplay/packages/users"
)

var (
	runStepsFlag         string
	runUsersFlag         string
	runHostsFlag         []string
	runMaxUsersFlag      int
	runRampRateFlag      float64
	runDurationFlag      float64
	runRampDownFlag      float64
	runIterationRateFlag float64
	runThresholdFlag     string
	runTimeoutFlag       int
	runProxyFlag         string
	runInsecureFlag      bool
	runMetricsAddrFlag   string
	runHistoryDBFlag     string
	runJSONFlag          bool
	runNoColorFlag       bool
	runNoProgressFlag    bool
	runVerboseFlag       bool
)

var runCmd = &cobra.Command{
	Use:   "run [config]",
	Short: "Replay a recorded session as load",
	Long: `Replay a recorded session as load against live hosts.

The run config (test-config.json) names the steps file, the hosts the
steps target and the load profile: users are added one every
rampRateSeconds up to maxUsers, held for durationMinutes, then wound
down over rampDownSeconds. Without an argument the config is searched
for in the working directory. Flags override config values.

Examples:
  tracereplay run dist/test-config.json
  tracereplay run -u 50 -r 1 -m 5
  tracereplay run --threshold "p95<300ms,errors<0.5%" --metrics-addr :9090
  tracereplay run --history-db runs.db --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommand,
}

func init() {
	runCmd.Flags().StringVarP(&runStepsFlag, "steps", "t", "", "Steps file (overrides stepsFile)")
	runCmd.Flags().StringVar(&runUsersFlag, "users", "", "Users file (overrides usersFile)")
	runCmd.Flags().StringArrayVarP(&runHostsFlag, "host", "H", nil, "Target host, repeatable, in targetIndex order")
	runCmd.Flags().IntVarP(&runMaxUsersFlag, "max-users", "u", 0, "Maximum concurrent users")
	runCmd.Flags().Float64VarP(&runRampRateFlag, "ramp-rate", "r", 0, "Seconds between added users")
	runCmd.Flags().Float64VarP(&runDurationFlag, "minutes", "m", 0, "Minutes to hold at max users")
	runCmd.Flags().Float64Var(&runRampDownFlag, "ramp-down", 0, "Seconds to wind users down")
	runCmd.Flags().Float64Var(&runIterationRateFlag, "iteration-rate", 0, "Maximum iteration starts per second (0 = unlimited)")
	runCmd.Flags().StringVar(&runThresholdFlag, "threshold", "", "Pass/fail thresholds (e.g. \"p95<500ms,errors<1%\")")
	runCmd.Flags().IntVar(&runTimeoutFlag, "timeout", 0, "Request timeout in milliseconds")
	runCmd.Flags().StringVar(&runProxyFlag, "proxy", "", "Proxy URL for requests")
	runCmd.Flags().BoolVarP(&runInsecureFlag, "insecure", "k", false, "Skip TLS certificate verification")
	runCmd.Flags().StringVar(&runMetricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().StringVar(&runHistoryDBFlag, "history-db", "", "Save the run summary to this SQLite database")
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "Print the summary as JSON")
	runCmd.Flags().BoolVar(&runNoColorFlag, "no-color", false, "Disable colored output")
	runCmd.Flags().BoolVar(&runNoProgressFlag, "no-progress", false, "Disable the live progress line")
	runCmd.Flags().BoolVarP(&runVerboseFlag, "verbose", "v", false, "Show the per-request breakdown")
}

func runCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	fileConfig, err := config.LoadConfig(path)
	if err != nil {
		return configError(err)
	}
	cfg := fileConfig.Merge(runFlagConfig())
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}
	if cfg.StepsFile == "" {
		return configError(fmt.Errorf("no steps file: set stepsFile in the config or pass --steps"))
	}

	resolver, err := newResolver(logger)
	if err != nil {
		return err
	}

	sess, err := loadSession(cfg.ResolvePath(cfg.StepsFile), resolver)
	if err != nil {
		return err
	}
	// Live runs never read the recorded responses
	sess.StripRecordedResults()

	hosts := resolver.ResolveSlice(cfg.Hosts)
	if err := sess.Validate(len(hosts)); err != nil {
		return configError(err)
	}

	source, err := userSource(cfg)
	if err != nil {
		return err
	}

	loadConfig, err := buildLoadConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSONFlag {
		out = cmd.ErrOrStderr()
	}
	reporter := stress.NewReporter(
		stress.WithWriter(out),
		stress.WithNoColor(runNoColorFlag),
		stress.WithNoProgress(runNoProgressFlag || runJSONFlag),
		stress.WithVerbose(runVerboseFlag),
	)

	opts := []stress.RunnerOption{
		stress.WithHTTPClient(http.NewClient(clientOptions(cfg)...)),
		stress.WithHasher(http.HMACHasher{}),
		stress.WithUsers(source),
		stress.WithReporter(reporter),
		stress.WithLogger(logger),
		stress.WithVersion(version),
	}

	if runMetricsAddrFlag != "" {
		recorder := metrics.NewPrometheusRecorder(metrics.WithLogger(logger))
		addr, err := recorder.Serve(runMetricsAddrFlag)
		if err != nil {
			return configError(fmt.Errorf("starting metrics endpoint: %w", err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = recorder.Close(ctx)
		}()
		logger.Info("serving metrics", zap.String("addr", "http://"+addr+"/metrics"))
		opts = append(opts, stress.WithSink(recorder))
	}

	runner := stress.NewRunner(loadConfig, sess, hosts, opts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if runHistoryDBFlag != "" {
		if err := saveHistory(runHistoryDBFlag, result); err != nil {
			logger.Error("saving run history", zap.Error(err))
		}
	}

	// the human report went to stderr so stdout carries only JSON
	if runJSONFlag {
		if err := stress.NewReporter(stress.WithWriter(cmd.OutOrStdout())).JSONSummary(result); err != nil {
			return err
		}
	}

	if result.HasThresholdFailures() {
		return withCode(ExitTestFailure, fmt.Errorf("%w: thresholds not met", errFailed))
	}
	return nil
}

// runFlagConfig collects explicitly set flags as a config overlay
func runFlagConfig() *config.Config {
	overlay := &config.Config{
		StepsFile:       runStepsFlag,
		UsersFile:       runUsersFlag,
		Hosts:           runHostsFlag,
		MaxUsers:        runMaxUsersFlag,
		RampRateSeconds: runRampRateFlag,
		DurationMinutes: runDurationFlag,
		RampDownSeconds: runRampDownFlag,
		Timeout:         runTimeoutFlag,
		Proxy:           runProxyFlag,
		IterationRate:   runIterationRateFlag,
		Thresholds:      runThresholdFlag,
	}
	if runInsecureFlag {
		overlay.ValidateSSL = config.BoolPtr(false)
	}
	return overlay
}

func buildLoadConfig(cfg *config.Config) (*stress.Config, error) {
	loadConfig := stress.NewConfig(cfg.MaxUsers, cfg.RampUp(), cfg.Hold(), cfg.RampDown())
	loadConfig.IterationRate = cfg.IterationRate

	expr := cfg.Thresholds
	if expr == "" {
		expr = stress.DefaultThresholds
	}
	thresholds, err := stress.ParseThresholds(expr)
	if err != nil {
		return nil, configError(fmt.Errorf("invalid thresholds: %w", err))
	}
	loadConfig.Thresholds = thresholds
	return loadConfig, nil
}

func clientOptions(cfg *config.Config) []http.ClientOption {
	opts := []http.ClientOption{
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithMaxIdleConnsPerHost(cfg.MaxUsers),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, http.WithTimeout(cfg.RequestTimeout()))
	}
	if cfg.Proxy != "" {
		opts = append(opts, http.WithProxy(cfg.Proxy))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, http.WithDefaultHeader(k, v))
	}
	return opts
}

// loadSession reads a steps file and resolves variables in its header
// values and signing secrets
func loadSession(path string, resolver *env.Resolver) (*session.Session, error) {
	sess, err := session.Load(path)
	if err != nil {
		return nil, parseError(err)
	}
	if resolver != nil {
		if err := resolver.ResolveSession(sess); err != nil {
			return nil, configError(err)
		}
	}
	return sess, nil
}

// userSource cycles through the users file when one is set, otherwise
// generates a fresh user per iteration
func userSource(cfg *config.Config) (users.Source, error) {
	if cfg.UsersFile == "" {
		return users.NewGenerator(cfg.EmailDomain, 0), nil
	}
	list, err := users.Load(cfg.ResolvePath(cfg.UsersFile))
	if err != nil {
		return nil, parseError(err)
	}
	return users.NewRoundRobin(list)
}

func saveHistory(path string, result *stress.Result) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = store.Save(ctx, history.FromResult(result))
	return err
}
