package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agentx-labs/extmgr/internal/branding"
	"github.com/agentx-labs/extmgr/internal/config"
	"github.com/agentx-labs/extmgr/internal/logging"
	"github.com/agentx-labs/extmgr/internal/metrics"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

// env is the per-invocation state built before any command runs.
var env struct {
	settings config.Settings
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` installs signed extension packages into a versioned store,
loads unpacked extensions for development, and keeps every install atomic.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("install-root", "", "Directory extension records are stored in (default ~/.extmgr/extensions)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
}

// setup loads configuration and builds the logger and metrics registry.
// Flags are bound per run since viper.Reset drops bindings.
func setup(cmd *cobra.Command, args []string) error {
	flags := cmd.Root().PersistentFlags()
	for key, name := range map[string]string{
		config.KeyInstallRoot: "install-root",
		config.KeyLogLevel:    "log-level",
		config.KeyMetricsFile: "metrics-file",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}

	if err := config.Load(); err != nil {
		return err
	}
	settings, err := config.Current()
	if err != nil {
		return err
	}
	env.settings = settings

	logCfg := logging.DefaultConfig()
	logCfg.Level = settings.Log.Level
	logCfg.Development = settings.Log.Development
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	env.logger = logger

	env.registry = prometheus.NewRegistry()
	env.metrics = metrics.New(env.registry)
	return nil
}

// finish flushes the logger and writes the metrics textfile. It runs after
// failed commands too, so failures show up in the metrics.
func finish() error {
	defer func() {
		env.settings = config.Settings{}
		env.logger = nil
		env.registry = nil
		env.metrics = nil
	}()
	if env.logger != nil {
		_ = env.logger.Sync()
	}
	if path := env.settings.MetricsFile; path != "" && env.registry != nil {
		if err := prometheus.WriteToTextfile(path, env.registry); err != nil {
			return fmt.Errorf("writing metrics file %s: %w", path, err)
		}
	}
	return nil
}

func run() error {
	err := rootCmd.Execute()
	if ferr := finish(); err == nil {
		err = ferr
	}
	return err
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := run()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}
