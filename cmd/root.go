package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/neosec/internal/config"
	"github.com/CodeMonkeyCybersecurity/neosec/internal/logger"
)

// Exit codes for the scan command.
const (
	ExitOK            = 0
	ExitPartialOrVuln = 1
	ExitConfigError   = 2
	ExitCancelled     = 130
)

var (
	cfg     *config.Config
	log     *logger.Logger
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "neosec",
	Short: "Declarative security-tool automation pipeline",
	Long: `NeoSec orchestrates external security-testing tools (scanners,
fuzzers, probers) through declarative workflow files. Tasks run in
dependency order with bounded concurrency; tool output is normalized
into a uniform asset and vulnerability model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if code, ok := err.(*exitError); ok {
			return code.code
		}
		return ExitConfigError
	}
	return ExitOK
}

// exitError carries a specific process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .neosec.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".neosec")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetEnvPrefix("NEOSEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg = config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if verbose {
		cfg.Logger.Level = "debug"
	}

	var err error
	log, err = logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func setDefaults() {
	defaults := config.DefaultConfig()

	viper.SetDefault("logger.level", defaults.Logger.Level)
	viper.SetDefault("logger.format", defaults.Logger.Format)
	viper.SetDefault("database.driver", defaults.Database.Driver)
	viper.SetDefault("database.dsn", defaults.Database.DSN)
	viper.SetDefault("database.max_connections", defaults.Database.MaxConnections)
	viper.SetDefault("executor.max_concurrent", defaults.Executor.MaxConcurrent)
	viper.SetDefault("executor.grace_period", defaults.Executor.GracePeriod)
	viper.SetDefault("executor.stdout_limit", defaults.Executor.StdoutLimit)
	viper.SetDefault("executor.stderr_limit", defaults.Executor.StderrLimit)
	viper.SetDefault("scheduler.global_timeout", defaults.Scheduler.GlobalTimeout)
	viper.SetDefault("output.data_dir", defaults.Output.DataDir)
	viper.SetDefault("severity_threshold", "")
}
