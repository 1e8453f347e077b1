// Package cli provides the command-line interface of scanvault.
// It wires the configuration, storage backends, ingest pipeline and API
// server behind Cobra commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/scanvault/internal/logging"
)

const (
	defaultConfigFile = "scanvault.yaml"
	envPrefix         = "SCANVAULT"
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scanvault",
	Short: "Nmap report ingestion and storage",
	Long: `Scanvault parses nmap XML reports and keeps the results in PostgreSQL
or MongoDB. Reports arrive through the CLI, a watched spool directory,
a REST API or a JSON-RPC websocket.`,
	Version:      getVersion(),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is ./%s)", defaultConfigFile))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig sets up environment overrides and logging.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	initLogging()
}

// getConfigFilePath returns the --config value or the default file name.
func getConfigFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigFile
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging from the configuration file,
// falling back to the default logger when it cannot be read.
func initLogging() {
	cfg, err := readConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		if verbose {
			fmt.Fprintf(os.Stderr, "Warning: using default logging: %v\n", err)
		}
		return
	}

	if verbose {
		cfg.Logging.Level = logging.LevelDebug
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Debug("Structured logging initialized",
			"config", getConfigFilePath(),
			"level", cfg.Logging.Level,
			"format", cfg.Logging.Format)
	}
}
